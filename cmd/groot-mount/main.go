// Command groot-mount runs a single grootfs session in the foreground
// against an already-privileged /dev/fuse mount, bypassing the namespace
// and helper-process dance cmd/groot performs. It exists purely to debug
// grootfs itself without the rest of the launcher in the way.
package main

import (
	"fmt"
	"os"

	"github.com/groot-project/groot/internal/fuseproto"
	"github.com/groot-project/groot/internal/grootfs"
	"github.com/groot-project/groot/pkg/grootlog"
	"golang.org/x/sys/unix"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s MOUNTPOINT\n", os.Args[0])
		os.Exit(1)
	}
	mountpoint := os.Args[1]

	// Capture a directory fd before mounting over the path: afterward,
	// opening mountpoint by name would resolve into the FUSE filesystem
	// grootfs is about to serve, not the real directory underneath it.
	baseFd, err := unix.Open(mountpoint, unix.O_DIRECTORY|unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		grootlog.Fatalf("groot-mount: open %s: %v", mountpoint, err)
	}

	dev, err := os.OpenFile("/dev/fuse", os.O_RDWR, 0)
	if err != nil {
		grootlog.Fatalf("groot-mount: open /dev/fuse: %v", err)
	}

	opts := fmt.Sprintf("fd=%d,rootmode=040000,user_id=%d,group_id=%d,allow_other", dev.Fd(), os.Getuid(), os.Getgid())
	if err := unix.Mount("fuse-grootfs", mountpoint, "fuse.fuse-grootfs", unix.MS_NOSUID|unix.MS_NODEV, opts); err != nil {
		grootlog.Fatalf("groot-mount: mount: %v", err)
	}
	defer unix.Unmount(mountpoint, 0)

	fs := grootfs.NewFromFD(baseFd, 65536, 65536)
	defer fs.Close()

	sess := grootfs.NewSession(fuseproto.NewConn(dev), fs)
	if err := sess.Serve(); err != nil {
		grootlog.Fatalf("groot-mount: session exited: %v", err)
	}
}
