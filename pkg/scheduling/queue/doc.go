/*
Package queue runs batches of heterogeneous jobs and folds their results
into a single accumulated value.

A job is any of:

  - func() (interface{}, error)
  - func() interface{}
  - *process.Proc, a prepared command handle
  - any other literal value, which completes immediately with itself

Jobs enter through Wait or Push and run together on Run. The queue picks
the strongest execution strategy the host supports, in order: cooperative
coroutines, real child processes for command jobs, then plain synchronous
execution. The chosen strategy never changes observable results, only how
the batch overlaps:

	q := queue.Wait(
		func() (interface{}, error) { return fetch(a) },
		func() (interface{}, error) { return fetch(b) },
	)
	err := q.Run(nil, 5*time.Second)
	results := q.Result()

Each completed job may fire a response callback before its result merges
into the accumulator; the callback sees the result, the value accumulated
so far, and the queue itself, so it can Cancel the remainder of the batch:

	q.Run(func(result, prev interface{}, q *queue.Queue) {
		if isFatal(result) {
			q.Cancel()
		}
	}, 0)

Job failures are recorded per job and never abort the batch; failed jobs
contribute nothing to the accumulator. A run timeout abandons the
remaining jobs and marks the queue completed.
*/
package queue
