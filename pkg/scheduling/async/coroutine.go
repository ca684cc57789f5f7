package async

import "sync"

// Yield is the single suspension point handed to a coroutine body. Calling
// it parks the body, publishes out to whoever resumes the coroutine, and
// returns the value passed to the next Resume.
type Yield func(out interface{}) (in interface{})

// Suspendable is the suspend/resume contract shared by the cooperative
// scheduler, the interval driver, and the job queue's preferred strategy.
type Suspendable interface {
	// Start runs the unit up to its first suspension point (or straight
	// to termination for units that never suspend).
	Start()

	// Resume delivers in to the parked unit and runs it to the next
	// suspension point or to termination. It returns the yielded (or
	// final) value and whether the unit terminated. Resuming a
	// terminated unit is a no-op that returns the cached final value.
	Resume(in interface{}) (out interface{}, done bool)

	// Terminated reports whether the unit has returned.
	Terminated() bool

	// Value returns the final value of a terminated unit.
	Value() interface{}
}

type parkMsg struct {
	value interface{}
	done  bool
}

// Coroutine is a suspendable unit of work built on a channel handshake:
// the body runs on its own goroutine but only ever executes between a
// Resume call and the next suspension point, so exactly one logical thread
// of control exists at any suspension boundary. This is the engine's
// cooperative primitive; nothing here preempts the body.
type Coroutine struct {
	mu sync.Mutex

	body func(Yield) interface{}
	in   chan interface{}
	out  chan parkMsg

	started    bool
	terminated bool
	value      interface{}
}

// NewCoroutine creates an unstarted coroutine around body.
func NewCoroutine(body func(Yield) interface{}) *Coroutine {
	return &Coroutine{
		body: body,
		in:   make(chan interface{}),
		out:  make(chan parkMsg),
	}
}

// Start launches the body and blocks until it reaches its first suspension
// point or terminates. Starting twice is a no-op.
func (c *Coroutine) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go func() {
		yield := func(out interface{}) interface{} {
			c.out <- parkMsg{value: out}
			return <-c.in
		}
		ret := c.body(yield)
		c.out <- parkMsg{value: ret, done: true}
	}()

	// Consume the first park so the unit is cleanly suspended (or already
	// terminated) by the time Start returns.
	msg := <-c.out
	if msg.done {
		c.mu.Lock()
		c.terminated = true
		c.value = msg.value
		c.mu.Unlock()
	}
}

// Resume implements Suspendable. The first Resume starts the coroutine if
// needed.
func (c *Coroutine) Resume(in interface{}) (interface{}, bool) {
	c.mu.Lock()
	started, terminated := c.started, c.terminated
	c.mu.Unlock()

	if !started {
		c.Start()
		c.mu.Lock()
		terminated = c.terminated
		c.mu.Unlock()
	}
	if terminated {
		return c.Value(), true
	}

	c.in <- in
	msg := <-c.out
	if msg.done {
		c.mu.Lock()
		c.terminated = true
		c.value = msg.value
		c.mu.Unlock()
		return msg.value, true
	}
	return msg.value, false
}

// Terminated implements Suspendable.
func (c *Coroutine) Terminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated
}

// Value implements Suspendable.
func (c *Coroutine) Value() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
