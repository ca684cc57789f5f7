package async

import (
	"context"
	"fmt"
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

// TaskFunc is the body of a cooperative task. It may suspend any number of
// times through the provided Yield; its return value is the task's result.
type TaskFunc func(y Yield) interface{}

// CompletionFunc receives each completed task's result and id, exactly
// once, before the task is evicted from the active set.
type CompletionFunc func(result interface{}, id string)

// Config holds scheduler configuration.
type Config struct {
	// Logger receives lifecycle events. Nil means no logging.
	Logger *zap.Logger

	// Metrics, when non-nil, receives scheduler gauges and counters under
	// the given Name.
	Metrics *metrics.Registry

	// Name labels this scheduler's metrics.
	Name string
}

type task struct {
	id       string
	co       *Coroutine
	enqueued time.Time
}

// Scheduler runs a set of suspendable units to completion without OS-level
// preemption: each sweep resumes every active unit once, in round-robin
// order, and completed units are reported and evicted before the next
// sweep. It owns every task's lifecycle state; tasks are created on
// Enqueue and destroyed on termination, cancellation, or Dequeue.
type Scheduler struct {
	mu      sync.Mutex
	order   []*task          // resumption order; evicted slots are nil until reindex
	index   map[string]*task // id -> task
	running bool

	logger   *zap.Logger
	registry *metrics.Registry
	name     string
}

// New creates an empty scheduler.
func New() *Scheduler {
	return NewWithConfig(Config{})
}

// NewWithConfig creates an empty scheduler with the given configuration.
func NewWithConfig(cfg Config) *Scheduler {
	name := cfg.Name
	if name == "" {
		name = "default"
	}
	return &Scheduler{
		index:    make(map[string]*task),
		logger:   logging.OrNop(cfg.Logger),
		registry: cfg.Metrics,
		name:     name,
	}
}

// Enqueue adds a task and returns its id. An empty id gets a generated
// one; a duplicate id is rejected. The task does not start until it is
// first resumed by Await, Run, or Until.
func (s *Scheduler) Enqueue(fn TaskFunc, id string) (string, error) {
	if fn == nil {
		return "", cferrors.NewOptionError("task", "task body cannot be nil")
	}
	if err := capability.Require(capability.Coroutines); err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.index[id]; exists {
		return "", cferrors.NewOptionError("id", fmt.Sprintf("task %q already enqueued", id))
	}

	t := &task{id: id, co: NewCoroutine(fn), enqueued: time.Now()}
	s.order = append(s.order, t)
	s.index[id] = t

	if s.registry != nil {
		s.registry.TasksEnqueued.WithLabelValues(s.name).Inc()
		s.registry.ActiveTasks.WithLabelValues(s.name).Set(float64(len(s.index)))
	}
	s.logger.Debug("task enqueued", zap.String("id", id))
	return id, nil
}

// Dequeue removes a task from the active set. It returns false when the id
// is unknown.
func (s *Scheduler) Dequeue(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.index[id]
	if !ok {
		return false
	}
	s.evictLocked(t)
	s.logger.Debug("task dequeued", zap.String("id", id))
	return true
}

// Prioritize moves a task to the front of the resumption order. It returns
// false when the id is unknown.
func (s *Scheduler) Prioritize(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.index[id]
	if !ok {
		return false
	}
	for i, candidate := range s.order {
		if candidate == t {
			copy(s.order[1:i+1], s.order[:i])
			s.order[0] = t
			return true
		}
	}
	return false
}

// Size returns the number of active tasks.
func (s *Scheduler) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// IsRunning reports whether a draining loop is in progress.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Await starts (if needed) and repeatedly resumes a single task until it
// terminates, then returns its final value. The task stays in the active
// set; awaiting an already-terminated task returns the same value again.
// delay inserts a cooperative pause between resumptions so a slow task
// does not peg the CPU; maxWait bounds the whole wait and reports a
// timeout failure on expiry (zero means no limit).
func (s *Scheduler) Await(id string, delay, maxWait time.Duration) (interface{}, error) {
	if err := capability.Require(capability.Coroutines); err != nil {
		return nil, err
	}

	s.mu.Lock()
	t, ok := s.index[id]
	s.mu.Unlock()
	if !ok {
		return nil, cferrors.NewOptionError("id", fmt.Sprintf("unknown task %q", id))
	}

	var deadline time.Time
	if maxWait > 0 {
		deadline = time.Now().Add(maxWait)
	}

	for {
		if t.co.Terminated() {
			return t.co.Value(), nil
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return nil, fmt.Errorf("await %s: %w", id, cferrors.ErrTimeout)
		}

		value, done := t.co.Resume(nil)
		if done {
			return value, nil
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}
}

// Run drains the entire task set, sleeping delay between sweeps. It suits
// tasks that complete at their own pace, such as I/O scheduled elsewhere.
// cb is invoked exactly once per completed task, before eviction. Run
// rejects re-entrant invocation.
func (s *Scheduler) Run(cb CompletionFunc, delay time.Duration) error {
	return s.RunContext(context.Background(), cb, delay)
}

// Until drains the task set with no pause between sweeps, for CPU-bound,
// self-paced coroutines.
func (s *Scheduler) Until(cb CompletionFunc) error {
	return s.RunContext(context.Background(), cb, 0)
}

// RunContext is Run with cooperative cancellation: the context is checked
// between sweeps, never mid-resume.
func (s *Scheduler) RunContext(ctx context.Context, cb CompletionFunc, delay time.Duration) error {
	if err := capability.Require(capability.Coroutines); err != nil {
		return err
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return cferrors.NewStateError("Run", "running")
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.mu.Lock()
		// Reindex: drop evicted slots so no sweep revisits a stale id.
		s.order = compact(s.order)
		if len(s.order) == 0 {
			s.mu.Unlock()
			return nil
		}
		sweep := make([]*task, len(s.order))
		copy(sweep, s.order)
		s.mu.Unlock()

		for _, t := range sweep {
			s.mu.Lock()
			_, active := s.index[t.id]
			s.mu.Unlock()
			if !active {
				// Dequeued mid-sweep; never resume a removed key.
				continue
			}

			value, done := t.co.Resume(nil)
			if !done {
				continue
			}
			if cb != nil {
				cb(value, t.id)
			}
			s.mu.Lock()
			s.evictLocked(t)
			s.mu.Unlock()
			s.recordCompletion(t)
		}

		if delay > 0 {
			time.Sleep(delay)
		}
	}
}

// evictLocked removes t from the index and nils its order slot; the slot
// itself is compacted at the next reindex.
func (s *Scheduler) evictLocked(t *task) {
	delete(s.index, t.id)
	for i, candidate := range s.order {
		if candidate == t {
			s.order[i] = nil
			break
		}
	}
	if s.registry != nil {
		s.registry.ActiveTasks.WithLabelValues(s.name).Set(float64(len(s.index)))
	}
}

func (s *Scheduler) recordCompletion(t *task) {
	if s.registry != nil {
		s.registry.TasksCompleted.WithLabelValues(s.name).Inc()
		s.registry.TaskDuration.WithLabelValues(s.name).Observe(time.Since(t.enqueued).Seconds())
	}
	s.logger.Debug("task terminated", zap.String("id", t.id))
}

func compact(tasks []*task) []*task {
	out := tasks[:0]
	for _, t := range tasks {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// Sleep parks the calling code for d without involving the scheduler; it
// exists so task bodies can pace themselves using the engine's default
// poll interval when d is zero.
func Sleep(d time.Duration) {
	if d <= 0 {
		d = capability.PollInterval()
	}
	_ = cfcontext.Sleep(context.Background(), d)
}
