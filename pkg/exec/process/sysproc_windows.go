//go:build windows

package process

import "os/exec"

// applySysProcAttr is a no-op on Windows; the fork capability is reported
// as unavailable there, so command back-ends never start.
func applySysProcAttr(cmd *exec.Cmd, options map[string]bool) {}

func killProcess(cmd *exec.Cmd, processGroup bool) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

// Terminate forcibly kills the child; Windows has no cooperative
// termination signal.
func (p *Proc) Terminate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}
