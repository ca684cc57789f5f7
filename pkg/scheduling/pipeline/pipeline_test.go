package pipeline

import (
	"errors"
	"testing"
)

func TestChainFoldsThroughSteps(t *testing.T) {
	result, err := Chain(10).
		Pipe(func(v interface{}) interface{} { return v.(int) + 5 }).
		Pipe(func(v interface{}) interface{} { return v.(int) * 2 }).
		Result()
	if err != nil {
		t.Fatal(err)
	}
	if result != 30 {
		t.Errorf("Result() = %v, want 30", result)
	}
}

func TestIdentityStepIsNoOp(t *testing.T) {
	identity := func(v interface{}) interface{} { return v }

	result, err := Chain("unchanged").Pipe(identity).Pipe(identity).Result()
	if err != nil {
		t.Fatal(err)
	}
	if result != "unchanged" {
		t.Errorf("Result() = %v, want %q", result, "unchanged")
	}
}

func TestNonCallableStepOverridesValue(t *testing.T) {
	result, err := Chain(1).Pipe("override").Result()
	if err != nil {
		t.Fatal(err)
	}
	if result != "override" {
		t.Errorf("Result() = %v, want %q", result, "override")
	}
}

func TestErrorReturningStepForm(t *testing.T) {
	result, err := Chain(2).
		Pipe(func(v interface{}) (interface{}, error) { return v.(int) * 3, nil }).
		Result()
	if err != nil {
		t.Fatal(err)
	}
	if result != 6 {
		t.Errorf("Result() = %v, want 6", result)
	}
}

func TestUnhandledFailureIsReturned(t *testing.T) {
	boom := errors.New("boom")
	invoked := false

	result, err := Chain(1).
		Pipe(func(v interface{}) (interface{}, error) { return nil, boom }).
		Pipe(func(v interface{}) interface{} {
			invoked = true
			return v
		}).
		Result()

	if !errors.Is(err, boom) {
		t.Fatalf("Result() error = %v, want %v", err, boom)
	}
	if result != 1 {
		t.Errorf("Result() value = %v, want the last good value 1", result)
	}
	if invoked {
		t.Error("step after an unhandled failure must not run")
	}
}

func TestStopDiscardsCurrentValue(t *testing.T) {
	p := Chain(1).
		Catch(func(err error, current interface{}) interface{} { return Stop }).
		Pipe(func(v interface{}) (interface{}, error) { return nil, errors.New("bad") }).
		Pipe(func(v interface{}) interface{} { return "never" })

	result, err := p.Result()
	if err != nil {
		t.Fatal(err)
	}
	if result != nil {
		t.Errorf("Result() = %v, want nil after Stop", result)
	}
	if !p.Stopped() {
		t.Error("pipeline should report stopped")
	}
}

func TestStopWithLastStateKeepsLastGoodValue(t *testing.T) {
	result, err := Chain(10).
		Catch(func(err error, current interface{}) interface{} { return StopWithLastState }).
		Pipe(func(v interface{}) interface{} { return v.(int) + 1 }).
		Pipe(func(v interface{}) (interface{}, error) { return nil, errors.New("bad") }).
		Pipe(func(v interface{}) interface{} { return "never" }).
		Result()
	if err != nil {
		t.Fatal(err)
	}
	if result != 11 {
		t.Errorf("Result() = %v, want 11", result)
	}
}

func TestHandlerReplacementValueContinues(t *testing.T) {
	result, err := Chain(1).
		Catch(func(err error, current interface{}) interface{} { return 100 }).
		Pipe(func(v interface{}) (interface{}, error) { return nil, errors.New("bad") }).
		Pipe(func(v interface{}) interface{} { return v.(int) + 1 }).
		Result()
	if err != nil {
		t.Fatal(err)
	}
	if result != 101 {
		t.Errorf("Result() = %v, want 101", result)
	}
}

func TestCatchAfterFailingPipeResolvesPendingError(t *testing.T) {
	var seen error
	result, err := Chain("start").
		Pipe(func(v interface{}) (interface{}, error) { return nil, errors.New("late") }).
		Catch(func(e error, current interface{}) interface{} {
			seen = e
			return StopWithLastState
		}).
		Result()
	if err != nil {
		t.Fatal(err)
	}
	if seen == nil {
		t.Fatal("handler registered after the failure should still see it")
	}
	if result != "start" {
		t.Errorf("Result() = %v, want %q", result, "start")
	}
}

func TestHandlerSeesValueAtFailure(t *testing.T) {
	var observed interface{}
	_, _ = Chain(5).
		Catch(func(err error, current interface{}) interface{} {
			observed = current
			return Stop
		}).
		Pipe(func(v interface{}) interface{} { return v.(int) * 2 }).
		Pipe(func(v interface{}) (interface{}, error) { return nil, errors.New("bad") }).
		Result()

	if observed != 10 {
		t.Errorf("handler saw %v, want the value when the step ran (10)", observed)
	}
}

func TestAsyncModeMatchesDirectResults(t *testing.T) {
	result, err := ChainWithConfig(10, Config{Async: true}).
		Pipe(func(v interface{}) interface{} { return v.(int) + 5 }).
		Pipe(func(v interface{}) interface{} { return v.(int) * 2 }).
		Result()
	if err != nil {
		t.Fatal(err)
	}
	if result != 30 {
		t.Errorf("async Result() = %v, want 30", result)
	}
}

func TestStopSentinelsAreDistinct(t *testing.T) {
	if Stop == StopWithLastState {
		t.Fatal("sentinels must be distinguishable")
	}
}

func TestPipeOtherFuncSignaturesAreStaticValues(t *testing.T) {
	// Only the two documented signatures are callable; anything else is
	// a static override, never invoked.
	typed := func(x int) int { return x * 100 }

	result, err := Chain(1).Pipe(typed).Result()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := result.(func(int) int); !ok {
		t.Errorf("Result() = %v, want the function itself as a static value", result)
	}
}
