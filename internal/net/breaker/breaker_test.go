package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRemote = errors.New("remote down")

func TestBreakerTripsOnConsecutiveFailures(t *testing.T) {
	var transitions []gobreaker.State
	b := New("postgres", DefaultConfig(), func(_ string, _, to gobreaker.State) {
		transitions = append(transitions, to)
	})

	for i := 0; i < 3; i++ {
		_, err := b.Execute(func() (any, error) { return nil, errRemote })
		require.ErrorIs(t, err, errRemote)
	}
	assert.Equal(t, "open", b.State())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)

	called := false
	_, err := b.Execute(func() (any, error) { called = true; return nil, nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreakerRecovers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConsecutiveFailures = 1
	cfg.Timeout = 10 * time.Millisecond
	b := New("redis", cfg, nil)

	_, _ = b.Execute(func() (any, error) { return nil, errRemote })
	require.Equal(t, "open", b.State())

	time.Sleep(20 * time.Millisecond)
	v, err := b.Execute(func() (any, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, "closed", b.State())
}

func TestBreakerFailureRatio(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinRequests = 4
	cfg.FailureRatio = 0.4
	b := New("ratio", cfg, nil)

	outcomes := []error{nil, errRemote, nil, errRemote}
	for _, e := range outcomes {
		e := e
		_, _ = b.Execute(func() (any, error) { return nil, e })
	}
	assert.Equal(t, "open", b.State())
}

func TestDoIgnoresCancellation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConsecutiveFailures = 1
	b := New("ctx", cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	err := b.Do(ctx, func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "closed", b.State())

	assert.ErrorIs(t, b.Do(ctx, func(context.Context) error { return nil }), context.Canceled)

	err = b.Do(context.Background(), func(context.Context) error { return errRemote })
	assert.ErrorIs(t, err, errRemote)
	assert.Equal(t, "open", b.State())
	assert.Equal(t, "ctx", b.Name())
}
