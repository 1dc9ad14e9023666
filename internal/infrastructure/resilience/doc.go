/*
Package resilience provides circuit breakers for host function calls.

# Overview

A host function that keeps failing (a webhook that is down, a store that
times out) should fail fast instead of holding a script invocation open
until its call timeout. Each function name gets its own breaker through a
Set, so one broken function never blocks the others.

# Usage

	breakers := resilience.NewSet(resilience.Settings{
		Timeout:     30 * time.Second,
		ReadyToTrip: resilience.TripAfter(5),
	})

	result, err := breakers.Execute(ctx, "kv.get", func(ctx context.Context) (any, error) {
		return fn(ctx, call)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open

Context cancellation is not counted as a failure by default.
*/
package resilience
