package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fail(_ context.Context) error { return errBoom }
func succeed(_ context.Context) error { return nil }

func newTestBreaker(threshold int) (*CircuitBreaker, *time.Time) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: threshold, ResetTimeout: time.Minute})
	cb.now = func() time.Time { return clock }
	return cb, &clock
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	}
	assert.Equal(t, CircuitOpen, cb.State())

	err := cb.Execute(ctx, func(_ context.Context) error {
		t.Fatal("must not be called while open")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb, _ := newTestBreaker(3)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, succeed))
	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, clock := newTestBreaker(1)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	assert.Equal(t, CircuitOpen, cb.State())

	*clock = clock.Add(time.Minute)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(1)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	*clock = clock.Add(time.Minute)
	_ = cb.Execute(ctx, fail)

	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen)
}

func TestCircuitBreaker_ShouldTrip(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = cb.Execute(ctx, fail)
	}
	assert.Equal(t, CircuitClosed, cb.State(), "non-transient errors do not trip the default breaker")
}

func TestCircuitBreaker_OnStateChangeAndReset(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = cb.Execute(context.Background(), fail)
	cb.Reset()
	assert.Equal(t, []string{"closed->open", "open->closed"}, transitions)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1000})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = cb.Execute(context.Background(), fail)
			} else {
				_ = cb.Execute(context.Background(), succeed)
			}
			_ = cb.State()
		}(i)
	}
	wg.Wait()
}

func TestExecuteVal(t *testing.T) {
	cb, _ := newTestBreaker(1)
	v, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_ = cb.Execute(context.Background(), fail)
	v, err = ExecuteVal(context.Background(), cb, func(_ context.Context) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, v)
}

func TestServiceBreakers(t *testing.T) {
	sb := NewServiceBreakers(CircuitBreakerConfig{FailureThreshold: 1})
	assert.Same(t, sb.Get("search"), sb.Get("search"))
	assert.NotSame(t, sb.Get("search"), sb.Get("crawl"))

	_ = sb.Get("crawl").Execute(context.Background(), fail)
	assert.Equal(t, map[string]string{"search": "closed", "crawl": "open"}, sb.States())
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}
