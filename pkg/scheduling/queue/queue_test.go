package queue

import (
	"errors"
	"reflect"
	"runtime"
	"testing"
	"time"

	"github.com/coflow-dev/coflow/internal/testutil"
	"github.com/coflow-dev/coflow/pkg/capability"
	cferrors "github.com/coflow-dev/coflow/pkg/common/errors"
	"github.com/coflow-dev/coflow/pkg/exec/process"
)

func requireFork(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("command jobs need a POSIX shell")
	}
	if !capability.Has(capability.Fork) {
		t.Skip("fork capability unavailable on this host")
	}
}

func TestWaitRunCollectsResults(t *testing.T) {
	q := Wait(
		func() (interface{}, error) { return 1, nil },
		func() (interface{}, error) { return 2, nil },
	)

	if err := q.Run(nil, 0); err != nil {
		t.Fatal(err)
	}
	if !q.IsCompleted() {
		t.Error("queue should be completed after Run")
	}
	if q.IsRunning() {
		t.Error("queue should not be running after Run")
	}

	want := []interface{}{1, 2}
	if !reflect.DeepEqual(q.Result(), want) {
		t.Errorf("Result() = %v, want %v", q.Result(), want)
	}
}

func TestSingleJobYieldsScalar(t *testing.T) {
	q := Wait(func() (interface{}, error) { return "done", nil })
	if err := q.Run(nil, 0); err != nil {
		t.Fatal(err)
	}
	if q.Result() != "done" {
		t.Errorf("Result() = %v, want %q", q.Result(), "done")
	}
}

func TestLiteralAndBareFuncJobs(t *testing.T) {
	q := Wait(
		"literal",
		func() interface{} { return 2 },
	)
	if err := q.Run(nil, 0); err != nil {
		t.Fatal(err)
	}
	want := []interface{}{"literal", 2}
	if !reflect.DeepEqual(q.Result(), want) {
		t.Errorf("Result() = %v, want %v", q.Result(), want)
	}
}

func TestKeyedPushBuildsMap(t *testing.T) {
	q := New()
	if err := q.Push(func() (interface{}, error) { return 200, nil }, "status"); err != nil {
		t.Fatal(err)
	}
	if err := q.Push("payload", "body"); err != nil {
		t.Fatal(err)
	}

	if err := q.Run(nil, 0); err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{"status": 200, "body": "payload"}
	if !reflect.DeepEqual(q.Result(), want) {
		t.Errorf("Result() = %v, want %v", q.Result(), want)
	}
}

func TestJobFailureDoesNotAbortBatch(t *testing.T) {
	boom := errors.New("boom")
	q := Wait(
		func() (interface{}, error) { return nil, boom },
		func() (interface{}, error) { return "survivor", nil },
	)

	if err := q.Run(nil, 0); err != nil {
		t.Fatal(err)
	}
	if q.Result() != "survivor" {
		t.Errorf("Result() = %v, want only the surviving job's value", q.Result())
	}

	errs := q.Errors()
	if len(errs) != 1 {
		t.Fatalf("Errors() has %d entries, want 1: %v", len(errs), errs)
	}
	if !errors.Is(errs["0"], boom) {
		t.Errorf("Errors()[\"0\"] = %v, want %v", errs["0"], boom)
	}
}

func TestCallbackSeesPreviousAccumulated(t *testing.T) {
	var previous []interface{}
	q := Wait(
		func() (interface{}, error) { return "a", nil },
		func() (interface{}, error) { return "b", nil },
	)

	err := q.Run(func(result, prev interface{}, _ *Queue) {
		previous = append(previous, prev)
	}, 0)
	if err != nil {
		t.Fatal(err)
	}

	if len(previous) != 2 {
		t.Fatalf("callback fired %d times, want 2", len(previous))
	}
	if previous[0] != nil {
		t.Errorf("first callback saw previous %v, want nil", previous[0])
	}
	if previous[1] != "a" {
		t.Errorf("second callback saw previous %v, want %q", previous[1], "a")
	}
}

func TestCallbackCountMatchesCompletedJobs(t *testing.T) {
	fired := 0
	q := Wait(
		func() (interface{}, error) { return 1, nil },
		func() (interface{}, error) { return nil, errors.New("nope") },
		func() (interface{}, error) { return 3, nil },
	)

	err := q.Run(func(result, prev interface{}, _ *Queue) { fired++ }, 0)
	if err != nil {
		t.Fatal(err)
	}
	if fired != 2 {
		t.Errorf("callback fired %d times, want 2 (one per completed job)", fired)
	}
}

func TestCancelStopsFurtherCallbacks(t *testing.T) {
	fired := 0
	q := NewWithConfig(Config{Strategy: StrategySync})
	for i := 0; i < 3; i++ {
		i := i
		if err := q.Push(func() (interface{}, error) { return i, nil }, ""); err != nil {
			t.Fatal(err)
		}
	}

	err := q.Run(func(result, prev interface{}, batch *Queue) {
		fired++
		batch.Cancel()
	}, 0)
	if err != nil {
		t.Fatal(err)
	}

	if fired != 1 {
		t.Errorf("callback fired %d times after Cancel, want 1", fired)
	}
	if !q.IsCompleted() {
		t.Error("canceled queue should still report completed")
	}
	if q.Result() != 0 {
		t.Errorf("Result() = %v, want the first job's value", q.Result())
	}
}

func TestRunAndPushRejectedWhileRunning(t *testing.T) {
	var runErr, pushErr error
	q := Wait(func() (interface{}, error) { return nil, nil })

	err := q.Run(func(result, prev interface{}, batch *Queue) {
		runErr = batch.Run(nil, 0)
		pushErr = batch.Push("late", "")
	}, 0)
	if err != nil {
		t.Fatal(err)
	}

	if !cferrors.IsInvalidState(runErr) {
		t.Errorf("re-entrant Run returned %v, want invalid state", runErr)
	}
	if !cferrors.IsInvalidState(pushErr) {
		t.Errorf("Push during a run returned %v, want invalid state", pushErr)
	}
}

func TestRunTimeoutAbandonsRemainingJobs(t *testing.T) {
	secondRan := false
	q := NewWithConfig(Config{Strategy: StrategySync})
	_ = q.Push(func() (interface{}, error) {
		time.Sleep(30 * time.Millisecond)
		return "slow", nil
	}, "")
	_ = q.Push(func() (interface{}, error) {
		secondRan = true
		return "fast", nil
	}, "")

	err := q.Run(nil, 10*time.Millisecond)
	testutil.AssertErrorIs(t, err, cferrors.ErrTimeout)
	if secondRan {
		t.Error("job after the deadline should have been abandoned")
	}
	if !q.IsCompleted() {
		t.Error("timed-out queue should be forced completed")
	}
	if q.Result() != "slow" {
		t.Errorf("Result() = %v, want the job that finished before the check", q.Result())
	}
}

func TestStrategyAutoFallsBackToSync(t *testing.T) {
	t.Setenv("COFLOW_NO_COROUTINES", "true")
	t.Setenv("COFLOW_NO_FORK", "true")
	capability.Reset()
	defer capability.Reset()

	q := Wait(
		func() (interface{}, error) { return 1, nil },
		func() (interface{}, error) { return 2, nil },
	)
	if err := q.Run(nil, 0); err != nil {
		t.Fatal(err)
	}

	want := []interface{}{1, 2}
	if !reflect.DeepEqual(q.Result(), want) {
		t.Errorf("sync fallback Result() = %v, want %v", q.Result(), want)
	}
}

func TestStrategiesAgreeOnResults(t *testing.T) {
	build := func(strategy Strategy) *Queue {
		q := NewWithConfig(Config{Strategy: strategy})
		_ = q.Push(func() (interface{}, error) { return "x", nil }, "")
		_ = q.Push(func() (interface{}, error) { return "y", nil }, "")
		return q
	}

	sync := build(StrategySync)
	if err := sync.Run(nil, 0); err != nil {
		t.Fatal(err)
	}
	coro := build(StrategyCoroutine)
	if err := coro.Run(nil, 0); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(sync.Result(), coro.Result()) {
		t.Errorf("strategies disagree: sync %v, coroutine %v", sync.Result(), coro.Result())
	}
}

func TestForkStrategyRunsCommandJobs(t *testing.T) {
	requireFork(t)

	first, err := process.New("echo a", process.BackendPipe)
	if err != nil {
		t.Fatal(err)
	}
	second, err := process.New("echo b", process.BackendPipe)
	if err != nil {
		t.Fatal(err)
	}

	q := NewWithConfig(Config{Strategy: StrategyFork})
	_ = q.Push(first, "")
	_ = q.Push(second, "")
	_ = q.Push(func() (interface{}, error) { return "parent", nil }, "")

	if err := q.Run(nil, 5*time.Second); err != nil {
		t.Fatal(err)
	}

	want := []interface{}{"parent", "a", "b"}
	if !reflect.DeepEqual(q.Result(), want) {
		t.Errorf("Result() = %v, want %v", q.Result(), want)
	}
}

func TestCancelTerminatesForkedChildren(t *testing.T) {
	requireFork(t)

	child, err := process.New("sleep 30", process.BackendPipe)
	if err != nil {
		t.Fatal(err)
	}

	q := NewWithConfig(Config{Strategy: StrategyFork})
	_ = q.Push(child, "")

	done := make(chan error, 1)
	go func() { done <- q.Run(nil, 0) }()

	testutil.Eventually(t, q.IsRunning, "run never started")
	// Give the child a moment to spawn before signaling it.
	time.Sleep(20 * time.Millisecond)
	q.Cancel()

	select {
	case err := <-done:
		testutil.AssertNoError(t, err)
	case <-time.After(testutil.TestTimeout):
		t.Fatal("canceled run did not finish; child was not terminated")
	}
	if !q.IsCompleted() {
		t.Error("canceled queue should report completed")
	}
}
