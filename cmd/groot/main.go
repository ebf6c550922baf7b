// Command groot runs another command with faked root-like ownership and
// permissions over one or more directories, entirely inside an unprivileged
// user namespace.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/groot-project/groot/internal/coordinator"
	"github.com/groot-project/groot/internal/mounthelper"
	"github.com/groot-project/groot/internal/privmap"
	"github.com/groot-project/groot/internal/subid"
	"github.com/groot-project/groot/pkg/grootlog"
	"github.com/spf13/pflag"
)

func usage(progname string) {
	fmt.Fprintf(os.Stdout, "usage: %s [options] command [args..]\n\n"+
		"options:\n"+
		"   -h, --help          print help\n"+
		"   -w DIR              wrap directory\n"+
		"   -d                  log debug info\n", progname)
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case coordinator.PrivmapHelperArg:
			runPrivmapHelper()
			return
		case coordinator.MountHelperArg:
			runMountHelper()
			return
		}
	}

	if os.Getenv("GROOT_DISABLED") != "" {
		grootlog.Fatalf("groot: refusing to run recursively (GROOT_DISABLED set)")
	}

	flags := pflag.NewFlagSet("groot", pflag.ContinueOnError)
	flags.Usage = func() { usage(os.Args[0]) }

	var wraps []string
	var debug bool
	flags.StringArrayVarP(&wraps, "wrap", "w", nil, "wrap directory")
	flags.BoolVarP(&debug, "debug", "d", false, "log debug info")
	flags.SetInterspersed(false)

	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "see `%s -h' for usage\n", os.Args[0])
		os.Exit(1)
	}

	if debug {
		grootlog.SetDebug(true)
	}

	command := flags.Args()
	if len(command) == 0 {
		usage(os.Args[0])
		os.Exit(1)
	}

	if envWraps := os.Getenv("GROOT_WRAPFS"); envWraps != "" {
		wraps = append(wraps, splitColon(envWraps)...)
	}

	if err := coordinator.Run(coordinator.Options{WrapDirs: wraps, Command: command}); err != nil {
		grootlog.Fatalf("groot: %v", err)
	}
}

// runPrivmapHelper is the re-exec'd body of the detached Privilege-Map
// Helper: os/exec.Cmd.ExtraFiles hands its rendezvous socket to this
// process as fd 3.
func runPrivmapHelper() {
	sock := os.NewFile(3, "privmap-sock")

	pid, err := strconv.Atoi(os.Getenv("GROOT_TARGET_PID"))
	if err != nil {
		grootlog.Fatalf("privmap-helper: invalid GROOT_TARGET_PID: %v", err)
	}
	uidTable, err := subid.DecodeTable(os.Getenv("GROOT_UIDMAP"))
	if err != nil {
		grootlog.Fatalf("privmap-helper: invalid GROOT_UIDMAP: %v", err)
	}
	gidTable, err := subid.DecodeTable(os.Getenv("GROOT_GIDMAP"))
	if err != nil {
		grootlog.Fatalf("privmap-helper: invalid GROOT_GIDMAP: %v", err)
	}

	if err := privmap.Run(sock, pid, uidTable, gidTable); err != nil {
		grootlog.Fatalf("privmap-helper: %v", err)
	}
}

// runMountHelper is the re-exec'd body of the detached Mount Helper: fd 3 is
// its rendezvous socket, fd 4 onward are the pre-opened wrap directories in
// the order GROOT_WRAP_PATHS lists them.
func runMountHelper() {
	sock := os.NewFile(3, "mount-sock")

	pathList := os.Getenv("GROOT_WRAP_PATHS")
	var paths []string
	if pathList != "" {
		paths = splitColon(pathList)
	}

	maxUID, _ := strconv.ParseUint(os.Getenv("GROOT_MAX_UID"), 10, 32)
	maxGID, _ := strconv.ParseUint(os.Getenv("GROOT_MAX_GID"), 10, 32)

	wraps := make([]mounthelper.WrapRequest, len(paths))
	for i, p := range paths {
		wraps[i] = mounthelper.WrapRequest{Path: p, Fd: 4 + i}
	}

	if err := mounthelper.Run(sock, wraps, uint32(maxUID), uint32(maxGID)); err != nil {
		grootlog.Fatalf("mount-helper: %v", err)
	}

	select {} // sessions run in background goroutines; keep the process alive
}

func splitColon(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
