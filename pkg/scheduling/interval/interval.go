// Package interval provides repeated and delayed callback execution without
// an OS timer: a coroutine parks at a suspension point and external tick
// calls drive it forward.
package interval

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/coflow-dev/coflow/pkg/capability"
	cferrors "github.com/coflow-dev/coflow/pkg/common/errors"
	"github.com/coflow-dev/coflow/pkg/common/logging"
	"github.com/coflow-dev/coflow/pkg/scheduling/async"
)

// Handler is the callback fired by a tick. It receives the value passed to
// Run or Tick and returns the tick's result.
type Handler func(value interface{}) (interface{}, error)

// Config holds interval configuration.
type Config struct {
	// Delay is slept inside the coroutine, not the caller, before the
	// callback fires on each tick.
	Delay time.Duration

	// Logger receives lifecycle events. Nil means no logging.
	Logger *zap.Logger
}

// Interval drives a handler through an underlying coroutine. Construction
// starts the coroutine immediately; it parks at its first suspension point
// until the first tick arrives. The handler fires at most once per tick.
type Interval struct {
	co      *async.Coroutine
	delay   time.Duration
	running atomic.Bool

	schedule cron.Schedule
	next     time.Time

	lastErr error
	logger  *zap.Logger
}

// New creates an interval that fires handler on every tick, after delay
// elapses inside the coroutine. It fails when the cooperative primitive is
// unavailable on the host.
func New(handler Handler, delay time.Duration) (*Interval, error) {
	return newInterval(handler, Config{Delay: delay}, nil)
}

// NewWithConfig creates an interval with the given configuration.
func NewWithConfig(handler Handler, cfg Config) (*Interval, error) {
	return newInterval(handler, cfg, nil)
}

// cronParser accepts a seconds field plus @descriptors.
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewCron creates an interval gated by a cron expression: ticks that
// arrive before the schedule is due re-park the coroutine without firing.
func NewCron(expr string, handler Handler, cfg Config) (*Interval, error) {
	if expr == "" {
		return nil, cferrors.NewOptionError("cron", "expression cannot be empty")
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, cferrors.NewOptionError("cron", fmt.Sprintf("invalid expression: %v", err))
	}
	return newInterval(handler, cfg, schedule)
}

func newInterval(handler Handler, cfg Config, schedule cron.Schedule) (*Interval, error) {
	if handler == nil {
		return nil, cferrors.NewOptionError("handler", "handler cannot be nil")
	}
	if err := capability.Require(capability.Coroutines); err != nil {
		return nil, err
	}

	i := &Interval{
		delay:    cfg.Delay,
		schedule: schedule,
		logger:   logging.OrNop(cfg.Logger),
	}
	if schedule != nil {
		i.next = schedule.Next(time.Now())
	}
	i.running.Store(true)

	i.co = async.NewCoroutine(func(y async.Yield) interface{} {
		in := y(nil) // park until the first tick
		for i.running.Load() {
			if i.delay > 0 {
				time.Sleep(i.delay)
			}
			out := i.fire(handler, in)
			in = y(out) // re-park; the tick caller receives out
		}
		return nil
	})
	i.co.Start()
	return i, nil
}

// fire invokes the handler once, honoring the cron gate and capturing
// panics and errors for the tick caller.
func (i *Interval) fire(handler Handler, in interface{}) (out interface{}) {
	if i.schedule != nil {
		now := time.Now()
		if now.Before(i.next) {
			return nil
		}
		i.next = i.schedule.Next(now)
	}

	defer func() {
		if r := recover(); r != nil {
			i.lastErr = fmt.Errorf("interval handler panicked: %v: %w", r, cferrors.ErrRuntimeFailure)
		}
	}()

	result, err := handler(in)
	if err != nil {
		i.lastErr = fmt.Errorf("interval handler: %v: %w", err, cferrors.ErrRuntimeFailure)
		i.logger.Warn("interval handler failed", zap.Error(err))
		return nil
	}
	return result
}

// Run resumes the parked coroutine once, passing value through to the
// handler. It returns the handler's result for this tick. Handler failures
// propagate as runtime failures, never silently swallowed.
func (i *Interval) Run(value interface{}) (interface{}, error) {
	return i.Tick(value)
}

// Tick is Run; both names exist because callers read differently in
// one-shot and repeated usage.
func (i *Interval) Tick(value interface{}) (interface{}, error) {
	if !i.running.Load() || i.co.Terminated() {
		return nil, cferrors.NewStateError("Tick", "cleared")
	}

	out, _ := i.co.Resume(value)

	if err := i.lastErr; err != nil {
		i.lastErr = nil
		return nil, err
	}
	return out, nil
}

// Clear stops the interval: it clears the running flag and performs one
// final resume so the coroutine observes the flag and exits its loop. The
// handler does not fire again afterward.
func (i *Interval) Clear(value interface{}) {
	if !i.running.CompareAndSwap(true, false) {
		return
	}
	if !i.co.Terminated() {
		i.co.Resume(value)
	}
	i.logger.Debug("interval cleared")
}

// IsRunning reports whether the interval still accepts ticks.
func (i *Interval) IsRunning() bool {
	return i.running.Load() && !i.co.Terminated()
}
