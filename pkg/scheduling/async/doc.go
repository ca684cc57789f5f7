/*
Package async provides the engine's cooperative scheduler: a coroutine-based
job queue that runs suspendable units of work to completion without OS-level
preemption.

A unit of work is a function that receives a Yield. Calling the yield is the
only suspension point; between suspension points the unit runs exclusively:

	s := async.New()

	id, _ := s.Enqueue(func(y async.Yield) interface{} {
		partial := computeFirstHalf()
		y(partial) // suspend; control returns to the driving loop
		return computeSecondHalf(partial)
	}, "")

	result, err := s.Await(id, time.Millisecond, 5*time.Second)

# Draining the set

Run resumes every active task once per sweep, in round-robin order, with a
bounded pause between sweeps; Until does the same with no pause, for
CPU-bound coroutines that make progress on every resume. Both invoke the
completion callback exactly once per finished task, before that task leaves
the active set, and both reject re-entrant invocation. Completion order
reflects which task's suspension condition resolves first, not submission
order.

# Relation to goroutines

A Coroutine runs its body on a goroutine, but the channel handshake in
Resume guarantees the body only executes between a Resume call and the next
suspension point. The result is cooperative multitasking with a single
logical thread of control at every suspension boundary, not thread-based
parallelism.
*/
package async
