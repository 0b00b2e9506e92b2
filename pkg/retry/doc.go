// Package retry provides exponential backoff for the few places the agent is allowed to
// block: connecting sinks at startup and waiting for the wall clock.
//
// The dispatch loop itself never retries inline. A failed chunk stays in the ring buffer
// and goes out again on the next send-due tick.
//
// Presets:
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay
//   - Startup(): 10 attempts, 250ms-5s delay (pub/sub connect)
//   - Fixed(n, d): n attempts, constant d between them (clock readiness)
//
// Example:
//
//	err := retry.Do(ctx, retry.Startup(), func() error {
//	    return client.connectOnce(ctx)
//	})
//
// Errors wrapped with NonRetryable stop the loop on the spot. All waits honour ctx.
package retry
