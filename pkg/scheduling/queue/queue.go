package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coflow-dev/coflow/pkg/capability"
	cferrors "github.com/coflow-dev/coflow/pkg/common/errors"
	"github.com/coflow-dev/coflow/pkg/common/logging"
	"github.com/coflow-dev/coflow/pkg/exec/process"
	"github.com/coflow-dev/coflow/pkg/metrics"
	"github.com/coflow-dev/coflow/pkg/scheduling/async"
)

// Strategy selects how a batch executes.
type Strategy int

const (
	// StrategyAuto picks the strongest supported strategy at Run time.
	StrategyAuto Strategy = iota

	// StrategyCoroutine interleaves jobs on a cooperative scheduler.
	StrategyCoroutine

	// StrategyFork spawns command jobs as real children and collects
	// their exits; non-command jobs still run in the parent.
	StrategyFork

	// StrategySync runs jobs one after another in the caller.
	StrategySync
)

// String returns the strategy name used in logs and metric labels.
func (s Strategy) String() string {
	switch s {
	case StrategyCoroutine:
		return "coroutine"
	case StrategyFork:
		return "fork"
	case StrategySync:
		return "sync"
	default:
		return "auto"
	}
}

// ResponseFunc fires once per completed job, before the result merges
// into the accumulator. previous is the value accumulated so far; the
// queue is passed so the callback can Cancel the remaining jobs.
type ResponseFunc func(result interface{}, previous interface{}, q *Queue)

// Config holds queue configuration.
type Config struct {
	// Strategy overrides automatic selection. StrategyAuto (the zero
	// value) keeps the capability-driven choice.
	Strategy Strategy

	// Logger receives lifecycle events. Nil means no logging.
	Logger *zap.Logger

	// Metrics, when non-nil, receives batch and per-job counters under
	// the given Name.
	Metrics *metrics.Registry

	// Name labels this queue's metrics.
	Name string
}

type job struct {
	id   string // "" merges positionally
	item interface{}
}

// Queue collects jobs and runs them as one batch. A queue is reusable:
// each Run resets the accumulator and per-job errors, and jobs pushed
// after a run belong to the next batch.
type Queue struct {
	mu        sync.Mutex
	jobs      []job
	acc       *Accumulator
	errs      map[string]error
	running   bool
	completed bool
	canceled  bool

	cancelRun context.CancelFunc
	children  []*process.Proc

	strategy Strategy
	logger   *zap.Logger
	registry *metrics.Registry
	name     string
}

// New creates an empty queue.
func New() *Queue {
	return NewWithConfig(Config{})
}

// NewWithConfig creates an empty queue with the given configuration.
func NewWithConfig(cfg Config) *Queue {
	name := cfg.Name
	if name == "" {
		name = "default"
	}
	return &Queue{
		acc:      NewAccumulator(),
		errs:     make(map[string]error),
		strategy: cfg.Strategy,
		logger:   logging.OrNop(cfg.Logger),
		registry: cfg.Metrics,
		name:     name,
	}
}

// Wait creates a queue pre-loaded with the given jobs, merged
// positionally. It is the usual entry point for one-shot batches.
func Wait(jobs ...interface{}) *Queue {
	q := New()
	for _, item := range jobs {
		q.jobs = append(q.jobs, job{item: item})
	}
	return q
}

// Push adds a job. A non-empty id keys the job's result in the
// accumulator; pushing while a run is in progress is rejected.
func (q *Queue) Push(item interface{}, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return cferrors.NewStateError("Push", "running")
	}
	q.jobs = append(q.jobs, job{id: id, item: item})
	return nil
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// IsRunning reports whether a batch is currently executing.
func (q *Queue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// IsCompleted reports whether the last batch finished, including by
// timeout or cancellation.
func (q *Queue) IsCompleted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.completed
}

// Result returns the accumulated value of the last run: nil before any
// run, a bare value for a single unkeyed job, a slice for several, and
// a map once any job carried a key.
func (q *Queue) Result() interface{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.acc.Value()
}

// Errors returns the per-job failures of the last run, keyed by job id
// or positional index.
func (q *Queue) Errors() map[string]error {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]error, len(q.errs))
	for k, v := range q.errs {
		out[k] = v
	}
	return out
}

// Cancel stops the batch cooperatively: jobs already past their
// completion callback keep their results, no further callbacks fire,
// and tracked child processes receive a termination signal without any
// wait for acknowledgement.
func (q *Queue) Cancel() {
	q.mu.Lock()
	if !q.running || q.canceled {
		q.mu.Unlock()
		return
	}
	q.canceled = true
	if q.cancelRun != nil {
		q.cancelRun()
	}
	children := make([]*process.Proc, len(q.children))
	copy(children, q.children)
	q.mu.Unlock()

	for _, p := range children {
		p.Terminate()
	}
	if q.registry != nil {
		q.registry.QueueCancellations.WithLabelValues(q.name).Inc()
	}
	q.logger.Info("queue canceled", zap.Int("children", len(children)))
}

// Run executes every queued job under one strategy and folds results
// into the accumulator. cb, when non-nil, fires per completed job before
// its merge. timeout bounds the whole batch; zero means no limit. On
// expiry the remaining jobs are abandoned, the queue is marked
// completed, and a timeout failure is returned.
func (q *Queue) Run(cb ResponseFunc, timeout time.Duration) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return cferrors.NewStateError("Run", "running")
	}
	batch := q.jobs
	q.jobs = nil
	q.acc = NewAccumulator()
	q.errs = make(map[string]error)
	q.running = true
	q.completed = false
	q.canceled = false
	q.children = nil
	q.cancelRun = nil
	strategy := q.resolveStrategy()
	q.mu.Unlock()

	if q.registry != nil {
		q.registry.QueueBatches.WithLabelValues(q.name, strategy.String()).Inc()
	}
	q.logger.Debug("queue run",
		zap.Int("jobs", len(batch)),
		zap.Stringer("strategy", strategy))

	var err error
	switch strategy {
	case StrategyCoroutine:
		err = q.runCoroutines(batch, cb, timeout)
	case StrategyFork:
		err = q.runFork(batch, cb, deadlineFrom(timeout))
	default:
		err = q.runSync(batch, cb, deadlineFrom(timeout))
	}

	q.mu.Lock()
	q.running = false
	q.completed = true
	q.cancelRun = nil
	q.children = nil
	q.mu.Unlock()
	return err
}

// resolveStrategy applies the override or probes the host, strongest
// first.
func (q *Queue) resolveStrategy() Strategy {
	if q.strategy != StrategyAuto {
		return q.strategy
	}
	if capability.Has(capability.Coroutines) {
		return StrategyCoroutine
	}
	if capability.Has(capability.Fork) {
		return StrategyFork
	}
	return StrategySync
}

func deadlineFrom(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

func expired(deadline time.Time) bool {
	return !deadline.IsZero() && !time.Now().Before(deadline)
}

func remaining(deadline time.Time) time.Duration {
	if deadline.IsZero() {
		return 0
	}
	return time.Until(deadline)
}

// errKey names a job in the error map: its id, or its batch position.
func (j job) errKey(idx int) string {
	if j.id != "" {
		return j.id
	}
	return strconv.Itoa(idx)
}

// invoke runs one job to completion in the calling goroutine.
func (q *Queue) invoke(j job, deadline time.Time) (interface{}, error) {
	switch item := j.item.(type) {
	case func() (interface{}, error):
		return item()
	case func() interface{}:
		return item(), nil
	case *process.Proc:
		return q.runProc(item, deadline)
	default:
		return item, nil
	}
}

func (q *Queue) runProc(p *process.Proc, deadline time.Time) (interface{}, error) {
	if p.State() == process.StateIdle {
		if err := p.Run(); err != nil {
			return nil, err
		}
	}
	q.track(p)
	return p.Wait(remaining(deadline))
}

func (q *Queue) track(p *process.Proc) {
	q.mu.Lock()
	q.children = append(q.children, p)
	q.mu.Unlock()
}

func (q *Queue) isCanceled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.canceled
}

// complete records one finished job: callback first, then merge. It is
// skipped entirely once the batch is canceled.
func (q *Queue) complete(j job, result interface{}, cb ResponseFunc) {
	if q.isCanceled() {
		return
	}
	if cb != nil {
		// A callback that cancels us still gets its own result merged.
		cb(result, q.Result(), q)
	}
	q.mu.Lock()
	q.acc.Merge(j.id, result)
	q.mu.Unlock()
	if q.registry != nil {
		q.registry.QueueJobs.WithLabelValues(q.name, "completed").Inc()
	}
}

func (q *Queue) fail(j job, idx int, err error) {
	q.mu.Lock()
	q.errs[j.errKey(idx)] = err
	q.mu.Unlock()
	if q.registry != nil {
		q.registry.QueueJobs.WithLabelValues(q.name, "failed").Inc()
	}
	q.logger.Warn("job failed", zap.String("job", j.errKey(idx)), zap.Error(err))
}

func (q *Queue) timedOut() error {
	if q.registry != nil {
		q.registry.QueueTimeouts.WithLabelValues(q.name).Inc()
	}
	q.logger.Warn("queue run timed out")
	return fmt.Errorf("queue %s: %w", q.name, cferrors.ErrTimeout)
}

// runSync executes jobs strictly in order in the calling goroutine.
func (q *Queue) runSync(batch []job, cb ResponseFunc, deadline time.Time) error {
	for idx, j := range batch {
		if q.isCanceled() {
			return nil
		}
		if expired(deadline) {
			return q.timedOut()
		}
		result, err := q.invoke(j, deadline)
		if err != nil {
			q.fail(j, idx, err)
			continue
		}
		q.complete(j, result, cb)
	}
	return nil
}

// runCoroutines interleaves jobs on a private cooperative scheduler. The
// scheduler's drain loop observes cancellation and the run timeout
// through its context between sweeps.
func (q *Queue) runCoroutines(batch []job, cb ResponseFunc, timeout time.Duration) error {
	sched := async.NewWithConfig(async.Config{
		Logger:  q.logger,
		Metrics: q.registry,
		Name:    q.name,
	})

	type outcome struct {
		job job
		idx int
		err error
	}
	byID := make(map[string]*outcome, len(batch))
	jobDeadline := deadlineFrom(timeout)

	for idx, j := range batch {
		idx, j := idx, j
		id, err := sched.Enqueue(func(y async.Yield) interface{} {
			y(nil) // park so every job enters the interleaved set first
			result, err := q.invoke(j, jobDeadline)
			if err != nil {
				return &outcome{job: j, idx: idx, err: err}
			}
			return result
		}, j.id)
		if err != nil {
			q.fail(j, idx, err)
			continue
		}
		byID[id] = &outcome{job: j, idx: idx}
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()
	q.mu.Lock()
	q.cancelRun = cancel
	q.mu.Unlock()

	err := sched.RunContext(ctx, func(result interface{}, id string) {
		o := byID[id]
		if o == nil {
			return
		}
		if failed, ok := result.(*outcome); ok && failed.err != nil {
			if q.registry != nil {
				q.registry.TasksFailed.WithLabelValues(q.name).Inc()
			}
			q.fail(failed.job, failed.idx, failed.err)
			return
		}
		q.complete(o.job, result, cb)
	}, capability.PollInterval())

	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return q.timedOut()
	case errors.Is(err, context.Canceled):
		// Cancel abandons the remaining jobs without an error.
		return nil
	default:
		return err
	}
}

// runFork spawns every command job as a real child first, then collects
// exits while the remaining jobs run synchronously in the parent.
func (q *Queue) runFork(batch []job, cb ResponseFunc, deadline time.Time) error {
	type spawned struct {
		job  job
		idx  int
		proc *process.Proc
	}
	var inFlight []spawned

	for idx, j := range batch {
		if q.isCanceled() {
			return nil
		}
		if expired(deadline) {
			return q.timedOut()
		}

		p, ok := j.item.(*process.Proc)
		if !ok {
			result, err := q.invoke(j, deadline)
			if err != nil {
				q.fail(j, idx, err)
				continue
			}
			q.complete(j, result, cb)
			continue
		}

		if p.State() == process.StateIdle {
			if err := p.Run(); err != nil {
				q.fail(j, idx, err)
				continue
			}
		}
		q.track(p)
		inFlight = append(inFlight, spawned{job: j, idx: idx, proc: p})
	}

	for _, s := range inFlight {
		if q.isCanceled() {
			return nil
		}
		if expired(deadline) {
			return q.timedOut()
		}
		result, err := s.proc.Wait(remaining(deadline))
		if err != nil {
			q.fail(s.job, s.idx, err)
			continue
		}
		q.complete(s.job, result, cb)
	}
	return nil
}
