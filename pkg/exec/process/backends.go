package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/creack/pty"

	cferrors "github.com/coflow-dev/coflow/pkg/common/errors"
)

// maxLineBytes bounds a single scanned output line. Lines beyond the
// default 64 KiB token limit are legitimate command output; lines beyond
// this are reported as a runtime failure rather than truncated.
const maxLineBytes = 1 << 20

// start launches the configured back-end. Collection always happens on a
// collector goroutine so Wait can poll for termination uniformly.
func (p *Proc) start() error {
	switch p.backend {
	case BackendPipe:
		return p.startPipe()
	case BackendDirect:
		return p.startDirect()
	case BackendShell:
		return p.startShell()
	case BackendDescriptor:
		return p.startDescriptor()
	case BackendCallback:
		return p.startCallback()
	case BackendStream:
		return p.startStream()
	default:
		return cferrors.NewOptionError("backend", fmt.Sprintf("unknown back-end %d", int(p.backend)))
	}
}

// buildCmd renders the command into an exec.Cmd. Array commands run without
// a shell; flat strings always go through `sh -c` with placeholders
// substituted and escaped first.
func (p *Proc) buildCmd() (*exec.Cmd, error) {
	if p.raw == "" && !p.isArray {
		return nil, cferrors.NewOptionError("command", fmt.Sprintf("%s back-end requires a command", p.backend))
	}

	var cmd *exec.Cmd
	if p.isArray {
		argv := substituteAll(p.args, p.env)
		cmd = exec.Command(argv[0], argv[1:]...)
	} else {
		line, err := p.Command()
		if err != nil {
			return nil, err
		}
		cmd = exec.Command("sh", "-c", line)
	}

	cmd.Dir = p.dir
	cmd.Env = p.childEnv()
	applySysProcAttr(cmd, p.options)
	return cmd, nil
}

// childEnv renders the environment map as KEY=VALUE pairs. The child sees
// only the explicit map unless the inherit_env option is set.
func (p *Proc) childEnv() []string {
	pairs := make([]string, 0, len(p.env))
	for k, v := range p.env {
		pairs = append(pairs, k+"="+v)
	}
	if p.options[OptionInheritEnv] {
		return append(os.Environ(), pairs...)
	}
	return pairs
}

// startPipe opens a unidirectional pipe to the command and drains it line
// by line until EOF, then captures the exit status.
func (p *Proc) startPipe() error {
	cmd, err := p.buildCmd()
	if err != nil {
		return err
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return cferrors.Wrap(err)
	}
	if err := cmd.Start(); err != nil {
		return cferrors.Wrap(err)
	}
	p.track(cmd)

	go func() {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		for scanner.Scan() {
			p.appendEntry(scanner.Text())
		}
		scanErr := scanner.Err()
		if scanErr != nil {
			// Unblock a child still writing before collecting its exit.
			_, _ = io.Copy(io.Discard, stdout)
		}
		err := p.recordExit(cmd.Wait())
		if err == nil && scanErr != nil {
			err = cferrors.Wrap(scanErr)
		}
		p.finish(err)
	}()
	return nil
}

// startDirect runs the command and keeps its output only when the exit
// status reports success.
func (p *Proc) startDirect() error {
	cmd, err := p.buildCmd()
	if err != nil {
		return err
	}

	var out strings.Builder
	cmd.Stdout = &out
	if err := cmd.Start(); err != nil {
		return cferrors.Wrap(err)
	}
	p.track(cmd)

	go func() {
		err := p.recordExit(cmd.Wait())
		if err == nil {
			p.setEntries(splitLines(out.String()))
		}
		p.finish(err)
	}()
	return nil
}

// startShell runs the command string through the shell and keeps the
// output verbatim.
func (p *Proc) startShell() error {
	cmd, err := p.buildCmd()
	if err != nil {
		return err
	}

	var out strings.Builder
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Start(); err != nil {
		return cferrors.Wrap(err)
	}
	p.track(cmd)

	go func() {
		err := p.recordExit(cmd.Wait())
		if s := out.String(); s != "" {
			p.setEntries([]string{strings.TrimSuffix(s, "\n")})
		}
		p.finish(err)
	}()
	return nil
}

// startDescriptor runs the command with each stdio slot wired per the
// DescriptorSpec: piped slots are drained with full reads (stdout merges
// into the result, stderr becomes an "Error: ..." entry), inherited slots
// pass the parent's descriptors through, and closed slots read or write
// the null device. A piped stdin is closed immediately; the back-end
// supplies no input.
func (p *Proc) startDescriptor() error {
	cmd, err := p.buildCmd()
	if err != nil {
		return err
	}

	if p.options[OptionPty] {
		return p.startDescriptorPty(cmd)
	}

	var stdin io.WriteCloser
	switch p.descriptors.Stdin {
	case DescriptorPipe:
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return cferrors.Wrap(err)
		}
	case DescriptorInherit:
		cmd.Stdin = os.Stdin
	}

	var stdout io.Reader
	switch p.descriptors.Stdout {
	case DescriptorPipe:
		sp, err := cmd.StdoutPipe()
		if err != nil {
			return cferrors.Wrap(err)
		}
		stdout = sp
	case DescriptorInherit:
		cmd.Stdout = os.Stdout
	}

	var stderr io.Reader
	if p.options[OptionRedirectStderr] {
		cmd.Stderr = cmd.Stdout
	} else {
		switch p.descriptors.Stderr {
		case DescriptorPipe:
			sp, err := cmd.StderrPipe()
			if err != nil {
				return cferrors.Wrap(err)
			}
			stderr = sp
		case DescriptorInherit:
			cmd.Stderr = os.Stderr
		}
	}

	if err := cmd.Start(); err != nil {
		return cferrors.Wrap(err)
	}
	p.track(cmd)

	// The child gets no input; closing a piped stdin up front unblocks
	// commands that read until EOF.
	if stdin != nil {
		_ = stdin.Close()
	}

	go func() {
		var outBytes []byte
		if stdout != nil {
			outBytes, _ = io.ReadAll(stdout)
		}
		var errBytes []byte
		if stderr != nil {
			errBytes, _ = io.ReadAll(stderr)
		}
		waitErr := cmd.Wait()
		p.recordExit(waitErr)

		for _, line := range splitLines(string(outBytes)) {
			p.appendEntry(line)
		}
		if msg := strings.TrimSpace(string(errBytes)); msg != "" {
			p.appendEntry("Error: " + msg)
		}

		// Descriptor runs terminate normally even on a non-zero exit:
		// the failure is carried by the stderr entry and the recorded
		// exit status.
		p.finish(nil)
	}()
	return nil
}

// startDescriptorPty runs the command under a pseudo-terminal and drains
// the combined terminal output.
func (p *Proc) startDescriptorPty(cmd *exec.Cmd) error {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("pty: %w", cferrors.Wrap(err))
	}
	p.mu.Lock()
	p.ptmx = ptmx
	p.mu.Unlock()
	p.track(cmd)

	go func() {
		scanner := bufio.NewScanner(ptmx)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		for scanner.Scan() {
			p.appendEntry(strings.TrimRight(scanner.Text(), "\r"))
		}
		scanErr := scanner.Err()
		if scanErr != nil {
			// Unblock a child still writing before collecting its exit.
			_, _ = io.Copy(io.Discard, ptmx)
		}
		p.recordExit(cmd.Wait())
		_ = ptmx.Close()
		// An ordinary read error after child exit is how a pty reports
		// EOF; an overlong line is a real failure and must surface.
		if errors.Is(scanErr, bufio.ErrTooLong) {
			p.finish(cferrors.Wrap(scanErr))
			return
		}
		p.finish(nil)
	}()
	return nil
}

// startCallback invokes the function on a collector goroutine and records
// its return value under the same lifecycle as a real process.
func (p *Proc) startCallback() error {
	go func() {
		var (
			v   interface{}
			err error
		)
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("callback panicked: %v: %w", r, cferrors.ErrRuntimeFailure)
				}
			}()
			v, err = p.callback()
		}()

		p.mu.Lock()
		p.value = v
		p.mu.Unlock()
		p.finish(cferrors.Wrap(err))
	}()
	return nil
}

// startStream drains the reader until EOF.
func (p *Proc) startStream() error {
	go func() {
		data, err := io.ReadAll(p.stream)
		if s := string(data); s != "" {
			p.setEntries([]string{strings.TrimSuffix(s, "\n")})
		}
		p.finish(cferrors.Wrap(err))
	}()
	return nil
}

// track records the spawned child for later signaling.
func (p *Proc) track(cmd *exec.Cmd) {
	p.mu.Lock()
	p.cmd = cmd
	if cmd.Process != nil {
		p.pid = cmd.Process.Pid
	}
	p.mu.Unlock()
}

// recordExit stores the exit status and classifies a Wait error.
func (p *Proc) recordExit(err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err == nil {
		p.exit = 0
		return nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		p.exit = exitErr.ExitCode()
		return fmt.Errorf("exit status %d: %w", p.exit, cferrors.ErrRuntimeFailure)
	}
	return cferrors.Wrap(err)
}

func (p *Proc) appendEntry(entry string) {
	p.mu.Lock()
	p.entries = append(p.entries, entry)
	p.mu.Unlock()
}

func (p *Proc) setEntries(entries []string) {
	p.mu.Lock()
	p.entries = entries
	p.mu.Unlock()
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
