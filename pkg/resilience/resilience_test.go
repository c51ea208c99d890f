package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/errors"
)

var errBoom = errors.New("boom")

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("kontent", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
		OnStateChange:    func(_ string, to State) { transitions = append(transitions, to) },
	})

	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, []State{StateOpen}, transitions)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerHalfOpenRecovers(t *testing.T) {
	cb := NewCircuitBreaker("algolia", CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Millisecond,
	})
	_ = cb.Execute(func() error { return errBoom })
	assert.Equal(t, StateOpen, cb.GetState())

	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerIgnoresNonFailures(t *testing.T) {
	cb := NewCircuitBreaker("kontent", CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, apperrors.ErrItemNotFound) },
	})
	_ = cb.Execute(func() error { return apperrors.ErrItemNotFound })
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = WithTimeout(context.Background(), time.Second, "fast", func(ctx context.Context) error {
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	assert.NoError(t, WithTimeout(context.Background(), 0, "none", func(ctx context.Context) error { return nil }))
}

func TestWithTimeoutValue(t *testing.T) {
	v, err := WithTimeoutValue(context.Background(), time.Second, "fast", func(ctx context.Context) (string, error) {
		return "next-page", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "next-page", v)

	release := make(chan struct{})
	defer close(release)
	v, err = WithTimeoutValue(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) (string, error) {
		<-release
		return "late", nil
	})
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Empty(t, v, "a late result is dropped")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = WithTimeoutValue(ctx, time.Second, "cancelled", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}
