/*
Package pipeline folds a value through an ordered chain of steps with
short-circuit semantics.

	result, err := pipeline.Chain(10).
		Pipe(func(v interface{}) interface{} { return v.(int) + 5 }).
		Pipe(func(v interface{}) interface{} { return v.(int) * 2 }).
		Result() // 30

Steps may fail. Without a handler the first failure poisons the chain
and comes back from Result. A handler registered with Catch decides per
failure: return Stop to halt and discard the current value, return
StopWithLastState to halt and keep the last good value, or return
anything else to substitute it and continue. Once stopped, later Pipe
calls are no-ops.

With Config.Async, callable steps are dispatched through the cooperative
scheduler when the host supports coroutines; the fold's results are
identical either way.
*/
package pipeline
