// Package capset raises every capability already permitted to this
// process into its inheritable and ambient sets, so it survives the
// execve of the target command without needing setuid/setcap on the
// binary itself.
package capset

import (
	"fmt"

	"github.com/syndtr/gocapability/capability"
)

// RaiseAmbient loads the calling process's current capability sets, copies
// permitted into inheritable, then raises every effective capability into
// the ambient set one at a time, tolerating capabilities the running
// kernel doesn't know about rather than treating that as fatal.
func RaiseAmbient() error {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return fmt.Errorf("capset: load process capabilities: %w", err)
	}
	if err := caps.Load(); err != nil {
		return fmt.Errorf("capset: load process capabilities: %w", err)
	}

	var effective []capability.Cap
	for _, c := range capability.List() {
		if c > capability.CAP_LAST_CAP {
			continue
		}
		if caps.Get(capability.PERMITTED, c) {
			caps.Set(capability.INHERITABLE, c)
		}
		if caps.Get(capability.EFFECTIVE, c) {
			effective = append(effective, c)
		}
	}

	if err := caps.Apply(capability.INHERITABLE); err != nil {
		return fmt.Errorf("capset: apply inheritable set: %w", err)
	}

	for _, c := range effective {
		if err := raiseOneAmbient(caps, c); err != nil {
			return fmt.Errorf("capset: raise ambient capability %s: %w", c, err)
		}
	}
	return nil
}

// raiseOneAmbient sets a single capability into the ambient set. gocapability
// applies the whole AMBIENT set at once rather than exposing prctl's
// per-capability PR_CAP_AMBIENT_RAISE call directly, so this loads the
// current ambient membership, adds c, and re-applies -- functionally
// identical, since AMBIENT can only ever be a subset of INHERITABLE anyway.
func raiseOneAmbient(caps capability.Capabilities, c capability.Cap) error {
	caps.Set(capability.AMBIENT, c)
	return caps.Apply(capability.AMBIENT)
}
