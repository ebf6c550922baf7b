package coordinator

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// fuseRootMode is the S_IFDIR bits the kernel wants in a FUSE mount's
// rootmode= option; grootfs always overlays a directory.
const fuseRootMode = 0o40000

// mountFuse opens /dev/fuse and performs the actual FUSE mount(2) at
// mountpoint, returning the opened device so its fd can be handed to the
// Mount Helper over SCM_RIGHTS. This runs inside the namespace this
// process just unshared, which is why the mount is visible only here and
// not to the Mount Helper that will go on to serve requests on the fd.
func mountFuse(mountpoint string) (*os.File, error) {
	dev, err := os.OpenFile("/dev/fuse", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("coordinator: open /dev/fuse: %w", err)
	}

	opts := fmt.Sprintf("fd=%d,rootmode=%o,user_id=0,group_id=0,allow_other", dev.Fd(), fuseRootMode)
	err = unix.Mount("fuse-grootfs", mountpoint, "fuse.fuse-grootfs", unix.MS_NOSUID|unix.MS_NODEV, opts)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("coordinator: mount fuse at %s: %w", mountpoint, err)
	}
	return dev, nil
}
