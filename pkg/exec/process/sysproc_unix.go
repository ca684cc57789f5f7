//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// applySysProcAttr translates descriptor options into process attributes.
func applySysProcAttr(cmd *exec.Cmd, options map[string]bool) {
	attr := &syscall.SysProcAttr{}
	set := false

	if options[OptionProcessGroup] {
		attr.Setpgid = true
		set = true
	}
	if options[OptionDetach] {
		attr.Setsid = true
		set = true
	}
	if set {
		cmd.SysProcAttr = attr
	}
}

// killProcess forcibly terminates the child, taking the whole process
// group down when the child was started in one.
func killProcess(cmd *exec.Cmd, processGroup bool) {
	if cmd.Process == nil {
		return
	}
	if processGroup {
		// Negative pid addresses the group.
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		return
	}
	_ = cmd.Process.Kill()
}

// Terminate delivers a cooperative termination signal to the child. It is
// fire-and-forget: delivery is not confirmed and exit is not awaited.
func (p *Proc) Terminate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
}
