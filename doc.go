/*
Package coflow provides cooperative task execution and process
orchestration for Go applications.

Capability Probing (pkg/capability):
  - Detect what the host supports once, lazily, with env overrides
  - Components degrade gracefully when a capability is missing

Process Execution (pkg/exec/process):
  - Six interchangeable back-ends for launching and reading commands
  - Bounded, polling waits with explicit timeout failures
  - Non-cloneable, non-serializable process handles

Scheduling (pkg/scheduling):
  - async: coroutine primitive plus a round-robin cooperative scheduler
  - interval: repeated and delayed callbacks driven by external ticks
  - queue: heterogeneous job batches with coroutine/fork/sync strategies
  - pipeline: short-circuit folds with pluggable error handling

Example usage:

	import (
		"github.com/coflow-dev/coflow/pkg/scheduling/pipeline"
		"github.com/coflow-dev/coflow/pkg/scheduling/queue"
	)

	q := queue.Wait(
		func() (interface{}, error) { return fetchUsers() },
		func() (interface{}, error) { return fetchOrders() },
	)
	_ = q.Run(nil, 5*time.Second)

	result, _ := pipeline.Chain(10).
		Pipe(func(v interface{}) interface{} { return v.(int) + 5 }).
		Pipe(func(v interface{}) interface{} { return v.(int) * 2 }).
		Result() // 30
*/
package coflow
