// Package reliability guards calls to the timing broker.
//
// This package implements two patterns:
//   - Circuit Breaker: Stops calling a failing dependency until it recovers
//   - Retry Policies: Exponential backoff and fixed delay retries
//
// Both are safe for concurrent use. Errors opt out of retries by
// implementing IsRetryable() bool, or by being wrapped with Permanent.
//
// Example usage:
//
//	cb := NewCircuitBreaker(
//	    WithFailureThreshold(5),
//	    WithTimeout(30 * time.Second),
//	)
//
//	err := cb.Execute(ctx, func() error {
//	    return Retry(ctx, NewFixedDelay(time.Second, 3), publish)
//	})
package reliability
