package grootfs

import "fmt"

// SidecarPrefix marks every internal bookkeeping file grootfs keeps
// alongside the tree it's faking permissions for -- hidden from readdir.
// Creating, renaming onto or looking up such a name is not refused.
const SidecarPrefix = ".groot."

// SymlinkSidecarName returns the name of the sidecar file a symlink's fake
// record is stored under, keyed by the symlink's device and inode rather
// than its path so a rename of the symlink doesn't orphan its claim.
// Symlinks can't carry their own user xattrs on most filesystems, so this
// sidecar is the only place their FakeRecord can live.
func SymlinkSidecarName(dev, ino uint64) string {
	return fmt.Sprintf("%ssymlink.%x_%x", SidecarPrefix, dev, ino)
}

// IsSidecar reports whether name is one of grootfs's own bookkeeping files,
// which must never be listed in readdir output or otherwise exposed to a
// caller as an ordinary entry.
func IsSidecar(name string) bool {
	return len(name) >= len(SidecarPrefix) && name[:len(SidecarPrefix)] == SidecarPrefix
}
