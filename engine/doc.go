// Package engine runs the agent's dispatch loop.
//
// # Overview
//
// A Scheduler interleaves three timers on a single goroutine:
//
//	tick ──► drain completions ──► sample due? ──► send due? ──► status due?
//	             │                     │               │
//	             ▼                     ▼               ▼
//	        Evict chunk           Append to ring   PeekChunk + Send
//
// Sampling reads the sensor and appends one measurement to the ring buffer. The sample
// timer advances by exactly one interval per sample, so a late tick does not drift the
// schedule. A loop that falls more than MaxCatchUp intervals behind resynchronizes.
//
// Sending peeks the oldest chunk, encodes it and hands it to the sender. Only one chunk is
// in flight at a time. The chunk stays in the ring until the sender reports success, at
// which point exactly the entries that were sent are evicted. A failed chunk is resent on
// the next send-due tick.
//
// # Completions
//
// Sender callbacks run on the sender's goroutine. OnSuccess and OnFailure only post the
// result onto a channel; the loop applies it on its next iteration. Completions whose
// request id does not match the outstanding chunk are ignored.
//
// # Usage
//
//	sched, err := engine.New(cfg, sensor, ring, sender,
//	    engine.WithLogger(logger),
//	    engine.WithMetrics(metrics),
//	    engine.WithStatusReporter(reporter))
//	sender.SetCallbacks(sched.OnSuccess, sched.OnFailure)
//	err = sched.Run(ctx)
package engine
