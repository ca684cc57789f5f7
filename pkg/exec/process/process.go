package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coflow-dev/coflow/pkg/capability"
	cfcontext "github.com/coflow-dev/coflow/pkg/common/context"
	cferrors "github.com/coflow-dev/coflow/pkg/common/errors"
	"github.com/coflow-dev/coflow/pkg/common/logging"
	"github.com/coflow-dev/coflow/pkg/metrics"
)

// Backend selects the strategy used to launch and read a command.
type Backend int

const (
	// BackendPipe drains a unidirectional pipe to the command line by line.
	BackendPipe Backend = iota

	// BackendDirect runs the command and keeps output only on success.
	BackendDirect

	// BackendShell runs the raw command string through the shell.
	BackendShell

	// BackendDescriptor runs the command with explicit stdio pipes.
	BackendDescriptor

	// BackendCallback invokes an in-process function.
	BackendCallback

	// BackendStream drains an already-open reader until EOF.
	BackendStream
)

// String returns the back-end name used in errors and logs.
func (b Backend) String() string {
	switch b {
	case BackendPipe:
		return "pipe"
	case BackendDirect:
		return "direct"
	case BackendShell:
		return "shell"
	case BackendDescriptor:
		return "descriptor"
	case BackendCallback:
		return "callback"
	case BackendStream:
		return "stream"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// State is a Proc lifecycle phase.
type State int

const (
	// StateIdle is the only state in which mutators are legal.
	StateIdle State = iota

	// StateRunning means Run has started and no terminal state is reached.
	StateRunning

	// StateComplete means the run finished and its result is available.
	StateComplete

	// StateTimedOut means Wait expired and the handle was torn down.
	StateTimedOut

	// StateErrored means the run finished with a failure.
	StateErrored
)

// String returns the state name used in errors and logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateComplete:
		return "complete"
	case StateTimedOut:
		return "timed-out"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Callback is an in-process unit of work run under the Proc lifecycle.
type Callback func() (interface{}, error)

// Config holds optional Proc configuration.
type Config struct {
	// WorkingDirectory is the directory the command runs in.
	WorkingDirectory string

	// Environment is the placeholder-substitution and child-environment
	// map. No shell-level environment leaks in unless the inherit_env
	// option is set on the descriptor back-end.
	Environment map[string]string

	// Options are descriptor back-end options; see SetOptions for the
	// allow-list.
	Options map[string]bool

	// Logger receives lifecycle events. Nil means no logging.
	Logger *zap.Logger

	// Metrics, when non-nil, receives start/failure/timeout counters and
	// run durations labeled by back-end.
	Metrics *metrics.Registry
}

// Proc is a single external-command execution unit. One Proc represents
// exactly one run; a spent Proc cannot be reused.
type Proc struct {
	noCopy noCopy

	mu sync.Mutex

	id      string
	backend Backend

	// Exactly one of these inputs is set, depending on the back-end.
	args     []string // array command, escaped element-wise
	raw      string   // flat string command
	isArray  bool
	callback Callback
	stream   io.Reader

	dir         string
	env         map[string]string
	options     map[string]bool
	descriptors DescriptorSpec

	state State
	spent bool

	cmd     *exec.Cmd
	ptmx    io.Closer
	pid     int
	exit    int
	entries []string
	value   interface{}
	runErr  error
	done    chan struct{}
	started time.Time

	logger   *zap.Logger
	registry *metrics.Registry
}

// New creates an idle Proc for the given input and back-end. The input must
// match the back-end: a string or []string command for the pipe, direct,
// shell, and descriptor back-ends; a Callback for the callback back-end; an
// io.Reader for the stream back-end.
func New(input interface{}, backend Backend) (*Proc, error) {
	return NewWithConfig(input, backend, Config{})
}

// NewWithConfig creates an idle Proc with the provided configuration.
func NewWithConfig(input interface{}, backend Backend, cfg Config) (*Proc, error) {
	p := &Proc{
		id:          uuid.NewString(),
		backend:     backend,
		state:       StateIdle,
		exit:        -1,
		dir:         cfg.WorkingDirectory,
		env:         cloneEnv(cfg.Environment),
		options:     map[string]bool{},
		descriptors: DefaultDescriptors(),
		logger:      logging.OrNop(cfg.Logger),
		registry:    cfg.Metrics,
	}

	if err := p.setInput(input); err != nil {
		return nil, err
	}
	if len(cfg.Options) > 0 {
		if err := p.SetOptions(cfg.Options); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Proc) setInput(input interface{}) error {
	switch v := input.(type) {
	case string:
		if v == "" {
			return cferrors.NewOptionError("command", "command string cannot be empty")
		}
		p.raw = v
	case []string:
		if len(v) == 0 {
			return cferrors.NewOptionError("command", "command array cannot be empty")
		}
		p.args = append([]string(nil), v...)
		p.isArray = true
	case Callback:
		p.callback = v
	case func() (interface{}, error):
		p.callback = v
	case io.Reader:
		p.stream = v
	default:
		return cferrors.NewOptionError("command", fmt.Sprintf("unsupported input type %T", input))
	}

	switch p.backend {
	case BackendCallback:
		if p.callback == nil {
			return cferrors.NewOptionError("command", "callback back-end requires a function")
		}
	case BackendStream:
		if p.stream == nil {
			return cferrors.NewOptionError("command", "stream back-end requires a reader")
		}
	default:
		if p.raw == "" && !p.isArray {
			return cferrors.NewOptionError("command", fmt.Sprintf("%s back-end requires a command", p.backend))
		}
	}
	return nil
}

// ID returns the generated run identifier.
func (p *Proc) ID() string {
	return p.id
}

// State returns the current lifecycle state.
func (p *Proc) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsRunning reports whether the run has started and not yet terminated.
func (p *Proc) IsRunning() bool {
	return p.State() == StateRunning
}

// Pid returns the OS process id, or zero when no child was spawned.
func (p *Proc) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// ExitCode returns the child's exit status, or -1 before termination and
// for back-ends that spawn no child.
func (p *Proc) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exit
}

// mutate guards every configuration change behind the idle state.
func (p *Proc) mutate(op string, fn func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateIdle || p.spent {
		return cferrors.NewStateError(op, p.state.String())
	}
	fn()
	return nil
}

// SetWorkingDirectory sets the directory the command runs in.
// It fails with an invalid-state error once the Proc has started.
func (p *Proc) SetWorkingDirectory(dir string) error {
	return p.mutate("SetWorkingDirectory", func() { p.dir = dir })
}

// SetEnvironment replaces the environment map used for placeholder
// substitution and the child environment.
func (p *Proc) SetEnvironment(env map[string]string) error {
	return p.mutate("SetEnvironment", func() { p.env = cloneEnv(env) })
}

// SetDescriptors replaces the stdio descriptor specification used by the
// descriptor back-end.
func (p *Proc) SetDescriptors(spec DescriptorSpec) error {
	if err := spec.validate(); err != nil {
		return err
	}
	return p.mutate("SetDescriptors", func() { p.descriptors = spec })
}

// SetMode switches the back-end. It fails once the Proc has started.
func (p *Proc) SetMode(backend Backend) error {
	return p.mutate("SetMode", func() { p.backend = backend })
}

// Run starts exactly one execution using the configured back-end. It fails
// with an invalid-state error if the Proc is running or spent, and with a
// runtime failure if the back-end primitive is unavailable on the host or
// the underlying OS call fails.
func (p *Proc) Run() error {
	p.mu.Lock()
	if p.state == StateRunning {
		p.mu.Unlock()
		return cferrors.NewStateError("Run", StateRunning.String())
	}
	if p.spent {
		p.mu.Unlock()
		return cferrors.NewStateError("Run", "spent")
	}

	if p.backend != BackendCallback && p.backend != BackendStream {
		if err := capability.Require(capability.Fork); err != nil {
			p.mu.Unlock()
			return err
		}
	}

	p.state = StateRunning
	p.spent = true
	p.done = make(chan struct{})
	p.started = time.Now()
	p.mu.Unlock()

	if p.registry != nil {
		p.registry.ProcessStarts.WithLabelValues(p.backend.String()).Inc()
	}

	err := p.start()
	if err != nil {
		p.mu.Lock()
		p.state = StateErrored
		p.runErr = err
		close(p.done)
		p.mu.Unlock()
		p.recordFailure()
		p.logger.Warn("process start failed",
			zap.String("id", p.id),
			zap.String("backend", p.backend.String()),
			zap.Error(err))
		return err
	}

	p.logger.Debug("process started",
		zap.String("id", p.id),
		zap.String("backend", p.backend.String()),
		zap.Int("pid", p.Pid()))
	return nil
}

// Wait blocks until the run yields a terminal value or the timeout elapses,
// polling with short sleeps rather than busy-spinning. A timeout of zero
// means no limit. On expiry the underlying handle is forcibly torn down and
// Wait reports a timeout failure.
func (p *Proc) Wait(timeout time.Duration) (interface{}, error) {
	p.mu.Lock()
	if p.done == nil {
		p.mu.Unlock()
		return nil, cferrors.NewStateError("Wait", StateIdle.String())
	}
	done := p.done
	p.mu.Unlock()

	err := cfcontext.Poll(context.Background(), capability.PollInterval(), timeout, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	})
	if err != nil {
		p.teardown(StateTimedOut)
		if p.registry != nil {
			p.registry.ProcessTimeouts.WithLabelValues(p.backend.String()).Inc()
		}
		p.logger.Warn("process wait timed out",
			zap.String("id", p.id),
			zap.Duration("timeout", timeout))
		return nil, fmt.Errorf("wait %s: %w", p.id, cferrors.ErrTimeout)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runErr != nil {
		return nil, p.runErr
	}
	return p.output(), nil
}

// Output returns the normalized result so far without blocking: the
// callback's return value, the accumulated entries for the descriptor
// back-end, or the collected output string otherwise.
func (p *Proc) Output() interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.output()
}

func (p *Proc) output() interface{} {
	switch p.backend {
	case BackendCallback:
		return p.value
	case BackendDescriptor:
		return append([]string(nil), p.entries...)
	default:
		if len(p.entries) == 0 {
			return ""
		}
		return joinEntries(p.entries)
	}
}

// Close forcibly tears down the run. It is safe to call in any state; a
// completed run keeps its terminal state, anything still in flight becomes
// errored. The Proc is spent afterward.
func (p *Proc) Close() error {
	p.teardown(StateErrored)
	return nil
}

// teardown kills the child (if any), closes handles, and moves any
// non-terminal state to final.
func (p *Proc) teardown(final State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil && p.cmd.Process != nil {
		killProcess(p.cmd, p.options[OptionProcessGroup])
	}
	if p.ptmx != nil {
		_ = p.ptmx.Close()
		p.ptmx = nil
	}
	p.spent = true
	if p.state == StateRunning || p.state == StateIdle {
		p.state = final
		if p.runErr == nil && final != StateComplete {
			p.runErr = fmt.Errorf("process %s torn down: %w", p.id, cferrors.ErrRuntimeFailure)
		}
		if p.done != nil {
			select {
			case <-p.done:
			default:
				close(p.done)
			}
		}
	}
}

// finish records the outcome of the collector goroutine.
func (p *Proc) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateRunning {
		// Torn down concurrently; the terminal state already won.
		return
	}
	if err != nil {
		p.state = StateErrored
		p.runErr = err
	} else {
		p.state = StateComplete
	}
	close(p.done)

	if p.registry != nil {
		if err != nil {
			p.registry.ProcessFailures.WithLabelValues(p.backend.String()).Inc()
		}
		p.registry.ProcessDuration.WithLabelValues(p.backend.String()).Observe(time.Since(p.started).Seconds())
	}
	p.logger.Debug("process terminated",
		zap.String("id", p.id),
		zap.String("state", p.state.String()),
		zap.Int("exit", p.exit))
}

func (p *Proc) recordFailure() {
	if p.registry != nil {
		p.registry.ProcessFailures.WithLabelValues(p.backend.String()).Inc()
	}
}

// MarshalJSON always fails: a Proc owns a live OS handle with no meaningful
// serialized form.
func (p *Proc) MarshalJSON() ([]byte, error) {
	return nil, errors.New("process: a Proc cannot be serialized")
}

// GobEncode always fails for the same reason as MarshalJSON.
func (p *Proc) GobEncode() ([]byte, error) {
	return nil, errors.New("process: a Proc cannot be serialized")
}

func cloneEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

func joinEntries(entries []string) string {
	if len(entries) == 1 {
		return entries[0]
	}
	out := entries[0]
	for _, e := range entries[1:] {
		out += "\n" + e
	}
	return out
}

// noCopy triggers go vet's copylocks check when a Proc is copied by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
