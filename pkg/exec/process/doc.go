/*
Package process runs a single external command, stream, or in-process
callback through one of several interchangeable back-ends, under a uniform
lifecycle API.

A Proc represents exactly one run. It is created idle, configured through
mutators, started with Run, and observed with Wait:

	p, err := process.New([]string{"echo", "hello"}, process.BackendPipe)
	if err != nil {
		log.Fatal(err)
	}

	if err := p.Run(); err != nil {
		log.Fatal(err)
	}

	out, err := p.Wait(5 * time.Second)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(out)

# Back-ends

  - BackendPipe: opens a unidirectional pipe to the command and drains it
    line by line until EOF.
  - BackendDirect: runs the command and keeps its output only when the exit
    status reports success.
  - BackendShell: runs the raw command string through the shell and returns
    output verbatim.
  - BackendDescriptor: runs the command with explicit stdin/stdout/stderr
    pipes; stdin is closed immediately, stdout entries are merged into the
    result, and stderr becomes an "Error: ..." entry. Supports an
    allow-listed option set (pty, process_group, detach, inherit_env,
    redirect_stderr, new_console).
  - BackendCallback: invokes a Go function and records its return value,
    unifying custom logic under the same lifecycle.
  - BackendStream: drains an already-open reader until EOF.

# Lifecycle

The state machine is idle → running → {complete, timed-out, errored}.
Mutators (SetWorkingDirectory, SetEnvironment, SetDescriptors, SetOptions,
SetMode) are legal only while idle and fail with an invalid-state error
otherwise. Wait blocks by polling with a small sleep, never busy-spinning;
when its timeout elapses it forcibly tears the handle down and reports a
timeout failure. A spent Proc never runs again.

# Commands

A command is either a flat string or an argument array. Environment
placeholders of the form ${NAME} are substituted from the configured
environment map, and every substituted or array value is shell-escaped
before it can reach a shell. Command returns the final rendered line.

A Proc owns a live OS handle and therefore has no meaningful copy or
serialized form: it must not be copied after first use (go vet's copylocks
check flags this), and encoding one with encoding/json or encoding/gob
fails with an error rather than producing a dangling handle.
*/
package process
