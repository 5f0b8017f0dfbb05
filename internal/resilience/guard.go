package resilience

import "context"

// Guard pairs a breaker with a retry policy for one collaborator. Each retry
// attempt passes through the breaker, so an open circuit ends the retries.
type Guard struct {
	Name    string
	Breaker *CircuitBreaker
	Retry   RetryConfig
}

// NewGuard builds a guard whose breaker comes from breakers and whose
// retries are logged under name.
func NewGuard(name string, breakers *ServiceBreakers, retry RetryConfig) *Guard {
	if retry.OnRetry == nil {
		retry.OnRetry = RetryLogger(name, "call")
	}
	return &Guard{Name: name, Breaker: breakers.Get(name), Retry: retry}
}

// Call runs fn under g. A nil guard calls fn once.
func Call[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	if g == nil {
		return fn(ctx)
	}
	return DoVal(ctx, g.Retry, func(ctx context.Context) (T, error) {
		if g.Breaker == nil {
			return fn(ctx)
		}
		return ExecuteVal(ctx, g.Breaker, fn)
	})
}
