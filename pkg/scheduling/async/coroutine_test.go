package async

import "testing"

func TestCoroutineRunsToFirstSuspension(t *testing.T) {
	reached := false
	c := NewCoroutine(func(y Yield) interface{} {
		reached = true
		y(nil)
		return "done"
	})

	c.Start()
	if !reached {
		t.Error("Start should run the body to its first suspension point")
	}
	if c.Terminated() {
		t.Error("coroutine should be parked, not terminated")
	}
}

func TestCoroutineResumePassesValues(t *testing.T) {
	c := NewCoroutine(func(y Yield) interface{} {
		in := y(nil)
		in2 := y(in.(int) * 2)
		return in2.(int) + 1
	})
	c.Start()

	out, done := c.Resume(21)
	if done || out != 42 {
		t.Fatalf("Resume(21) = (%v, %v), want (42, false)", out, done)
	}

	out, done = c.Resume(9)
	if !done || out != 10 {
		t.Fatalf("Resume(9) = (%v, %v), want (10, true)", out, done)
	}
}

func TestCoroutineWithoutYieldTerminatesOnStart(t *testing.T) {
	c := NewCoroutine(func(y Yield) interface{} {
		return "immediate"
	})
	c.Start()

	if !c.Terminated() {
		t.Fatal("body without suspension should terminate during Start")
	}
	if c.Value() != "immediate" {
		t.Errorf("Value() = %v, want %q", c.Value(), "immediate")
	}
}

func TestCoroutineResumeAfterTerminationIsIdempotent(t *testing.T) {
	c := NewCoroutine(func(y Yield) interface{} {
		return 7
	})

	first, done := c.Resume(nil)
	if !done || first != 7 {
		t.Fatalf("Resume = (%v, %v), want (7, true)", first, done)
	}
	second, done := c.Resume(nil)
	if !done || second != 7 {
		t.Fatalf("second Resume = (%v, %v), want (7, true)", second, done)
	}
}

func TestCoroutineStartTwiceIsNoop(t *testing.T) {
	calls := 0
	c := NewCoroutine(func(y Yield) interface{} {
		calls++
		y(nil)
		return nil
	})
	c.Start()
	c.Start()
	if calls != 1 {
		t.Errorf("body ran %d times, want 1", calls)
	}
}
