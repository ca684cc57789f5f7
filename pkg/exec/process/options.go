package process

import (
	"fmt"

	cferrors "github.com/coflow-dev/coflow/pkg/common/errors"
)

// Descriptor back-end option keys. Unknown keys are rejected as a group:
// a SetOptions call containing one rolls back every pending change.
const (
	// OptionPty runs the command under a pseudo-terminal.
	OptionPty = "pty"

	// OptionProcessGroup places the child in its own process group so
	// teardown can signal the whole group.
	OptionProcessGroup = "process_group"

	// OptionDetach starts the child in a new session, detached from the
	// controlling terminal.
	OptionDetach = "detach"

	// OptionInheritEnv appends the parent environment to the explicit
	// environment map.
	OptionInheritEnv = "inherit_env"

	// OptionRedirectStderr merges stderr into the stdout pipe instead of
	// producing "Error: ..." entries.
	OptionRedirectStderr = "redirect_stderr"

	// OptionNewConsole requests a separate console window. Accepted for
	// compatibility; it has no effect on POSIX hosts.
	OptionNewConsole = "new_console"
)

var allowedOptions = map[string]struct{}{
	OptionPty:            {},
	OptionProcessGroup:   {},
	OptionDetach:         {},
	OptionInheritEnv:     {},
	OptionRedirectStderr: {},
	OptionNewConsole:     {},
}

// SetOptions merges descriptor options into the Proc. Every key is
// validated against the allow-list first; a single unknown key rejects the
// whole set, leaving previously applied options untouched, and reports a
// runtime failure.
func (p *Proc) SetOptions(opts map[string]bool) error {
	for key := range opts {
		if _, ok := allowedOptions[key]; !ok {
			return fmt.Errorf("%w: %s",
				cferrors.ErrRuntimeFailure,
				cferrors.NewOptionError(key, "unknown descriptor option"))
		}
	}
	return p.mutate("SetOptions", func() {
		for key, value := range opts {
			p.options[key] = value
		}
	})
}

// Options returns a copy of the currently applied option set.
func (p *Proc) Options() map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]bool, len(p.options))
	for k, v := range p.options {
		out[k] = v
	}
	return out
}

// DescriptorMode describes how one stdio slot of the descriptor back-end
// is wired.
type DescriptorMode string

const (
	// DescriptorPipe opens a pipe that the executor drains or closes.
	DescriptorPipe DescriptorMode = "pipe"

	// DescriptorClose leaves the slot closed.
	DescriptorClose DescriptorMode = "close"

	// DescriptorInherit passes the parent's descriptor through.
	DescriptorInherit DescriptorMode = "inherit"
)

// DescriptorSpec is the per-slot wiring for the descriptor back-end.
type DescriptorSpec struct {
	Stdin  DescriptorMode
	Stdout DescriptorMode
	Stderr DescriptorMode
}

// DefaultDescriptors returns the spec the descriptor back-end uses unless
// overridden: stdin closed immediately, stdout and stderr piped.
func DefaultDescriptors() DescriptorSpec {
	return DescriptorSpec{
		Stdin:  DescriptorClose,
		Stdout: DescriptorPipe,
		Stderr: DescriptorPipe,
	}
}

func (d DescriptorSpec) validate() error {
	for _, mode := range []DescriptorMode{d.Stdin, d.Stdout, d.Stderr} {
		switch mode {
		case DescriptorPipe, DescriptorClose, DescriptorInherit:
		default:
			return cferrors.NewOptionError(string(mode), "unknown descriptor mode")
		}
	}
	return nil
}
