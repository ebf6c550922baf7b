// Command groot-preload is built with `go build -buildmode=c-shared` into a
// shared object meant to be loaded via LD_PRELOAD. The Go runtime executes
// every package's init() as soon as the shared object is dlopen'd, which is
// what lets this behave like the reference implementation's
// __attribute__((section(".init_array"))) constructor without any cgo.
package main

import "C"

import (
	"os"
	"strings"

	"github.com/groot-project/groot/internal/coordinator"
	"github.com/groot-project/groot/pkg/grootlog"
)

func init() {
	disabled := os.Getenv("GROOT_DISABLED")

	// Don't recursively enable groot in whatever this LD_PRELOAD ends up
	// exec'ing, even if that process re-enables LD_PRELOAD itself.
	unsetLDPreload()

	if disabled != "" {
		return
	}
	os.Setenv("GROOT_DISABLED", "1")

	if os.Getenv("GROOT_DEBUG") != "" {
		grootlog.SetDebug(true)
	}

	var wraps []string
	if envWrap := os.Getenv("GROOT_WRAPFS"); envWrap != "" {
		wraps = strings.Split(envWrap, ":")
	}

	grootlog.Debugf("enabling grootfs for %s - wrap %v", firstArg(), wraps)

	// Enter, not Run: this process is already executing the program whose
	// privileges are being faked, so there is nothing to exec afterward --
	// init() just returns and the dynamic loader carries on into the real
	// main() it was about to call anyway, now inside the faked namespace.
	if err := coordinator.Enter(wraps); err != nil {
		grootlog.Fatalf("groot-preload: %v", err)
	}
}

func unsetLDPreload() {
	os.Unsetenv("LD_PRELOAD")
}

func firstArg() string {
	if len(os.Args) > 0 {
		return os.Args[0]
	}
	return ""
}

// main is required by -buildmode=c-shared but never runs: a dlopen'd shared
// object's main is not called, only its init() above, after which the host
// program's own main carries on.
func main() {}
