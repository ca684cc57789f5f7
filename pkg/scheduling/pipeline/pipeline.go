package pipeline

import (
	"go.uber.org/zap"

	"github.com/coflow-dev/coflow/pkg/capability"
	"github.com/coflow-dev/coflow/pkg/common/logging"
	"github.com/coflow-dev/coflow/pkg/metrics"
	"github.com/coflow-dev/coflow/pkg/scheduling/async"
)

// signal is the private type behind the stop sentinels so no other value
// can masquerade as one.
type signal struct{ name string }

var (
	// Stop halts the pipeline and discards the current value.
	Stop = &signal{"stop"}

	// StopWithLastState halts the pipeline and keeps the last value that
	// was produced before the failing step.
	StopWithLastState = &signal{"stop-with-last-state"}
)

// ErrorHandler receives a step's failure together with the value the
// pipeline held when the step ran. It returns Stop, StopWithLastState,
// or any other value, which becomes the new current value and lets the
// pipeline continue.
type ErrorHandler func(err error, current interface{}) interface{}

// Config holds pipeline configuration.
type Config struct {
	// Async dispatches callable steps through a cooperative scheduler
	// when the host supports coroutines. Results are unchanged; only
	// the execution path differs.
	Async bool

	// Logger receives step failures. Nil means no logging.
	Logger *zap.Logger

	// Metrics, when non-nil, instruments the async dispatch path under
	// the given Name.
	Metrics *metrics.Registry

	// Name labels this pipeline's scheduler metrics.
	Name string
}

// Pipeline folds an initial value through an ordered list of steps,
// short-circuiting once stopped. Steps run eagerly: each Pipe call
// executes before returning, so Result only reads out the fold.
type Pipeline struct {
	value   interface{}
	last    interface{}
	err     error
	stopped bool
	handler ErrorHandler

	async  bool
	sched  *async.Scheduler
	logger *zap.Logger
}

// Chain starts a pipeline holding initial.
func Chain(initial interface{}) *Pipeline {
	return ChainWithConfig(initial, Config{})
}

// ChainWithConfig starts a pipeline with the given configuration.
func ChainWithConfig(initial interface{}, cfg Config) *Pipeline {
	p := &Pipeline{
		value:  initial,
		logger: logging.OrNop(cfg.Logger),
	}
	if cfg.Async && capability.Has(capability.Coroutines) {
		p.async = true
		p.sched = async.NewWithConfig(async.Config{
			Logger:  cfg.Logger,
			Metrics: cfg.Metrics,
			Name:    cfg.Name,
		})
	}
	return p
}

// Pipe applies one step. A callable step receives the current value and
// its return replaces it; callable means exactly
// func(interface{}) (interface{}, error) or func(interface{}) interface{}.
// Any other step, including functions of other signatures, becomes the
// new current value unconditionally. Once the pipeline is stopped, or
// holds an unhandled failure, Pipe never invokes the step.
func (p *Pipeline) Pipe(step interface{}) *Pipeline {
	if p.stopped || p.err != nil {
		return p
	}

	switch fn := step.(type) {
	case func(interface{}) (interface{}, error):
		p.apply(fn)
	case func(interface{}) interface{}:
		p.apply(func(v interface{}) (interface{}, error) {
			return fn(v), nil
		})
	default:
		p.last = p.value
		p.value = step
	}
	return p
}

// Catch registers the pipeline's single error handler. A failure already
// pending from an earlier step is resolved immediately, so Catch placed
// after the failing Pipe still sees it.
func (p *Pipeline) Catch(handler ErrorHandler) *Pipeline {
	p.handler = handler
	if p.err != nil && handler != nil {
		err := p.err
		p.err = nil
		p.resolve(err)
	}
	return p
}

// Result returns the folded value. An unhandled step failure is returned
// here, never swallowed; the value accompanying it is the last one
// produced before the failure.
func (p *Pipeline) Result() (interface{}, error) {
	if p.err != nil {
		return p.last, p.err
	}
	return p.value, nil
}

// Stopped reports whether an error handler halted the fold.
func (p *Pipeline) Stopped() bool {
	return p.stopped
}

func (p *Pipeline) apply(step func(interface{}) (interface{}, error)) {
	p.last = p.value
	out, err := p.invoke(step)
	if err != nil {
		p.logger.Warn("pipeline step failed", zap.Error(err))
		if p.handler == nil {
			p.err = err
			return
		}
		p.resolve(err)
		return
	}
	p.value = out
}

// resolve funnels a step failure through the registered handler and
// applies its signal.
func (p *Pipeline) resolve(err error) {
	switch out := p.handler(err, p.value); out {
	case Stop:
		p.stopped = true
		p.value = nil
	case StopWithLastState:
		p.stopped = true
		p.value = p.last
	default:
		p.value = out
	}
}

// invoke runs the step directly, or through the cooperative scheduler
// when async mode is active.
func (p *Pipeline) invoke(step func(interface{}) (interface{}, error)) (interface{}, error) {
	if !p.async {
		return step(p.value)
	}

	type outcome struct {
		value interface{}
		err   error
	}
	id, err := p.sched.Enqueue(func(y async.Yield) interface{} {
		v, err := step(p.value)
		return outcome{value: v, err: err}
	}, "")
	if err != nil {
		// The scheduler refused the task; fall back to a direct call.
		return step(p.value)
	}

	result, err := p.sched.Await(id, 0, 0)
	p.sched.Dequeue(id)
	if err != nil {
		return nil, err
	}
	o := result.(outcome)
	return o.value, o.err
}
