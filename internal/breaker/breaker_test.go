package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New("test", Options{FailureThreshold: 3, BaseBackoff: 10 * time.Millisecond, MaxBackoff: time.Second})
	failing := func(ctx context.Context) error { return errors.New("boom") }

	for i := 0; i < 3; i++ {
		err := b.Call(context.Background(), failing)
		require.Error(t, err)
	}

	snap := b.State()
	assert.Equal(t, Open, snap.State)

	err := b.Call(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreakerRejectsEveryCallUntilProbe(t *testing.T) {
	b := New("test", Options{FailureThreshold: 1, BaseBackoff: 30 * time.Millisecond, MaxBackoff: time.Second})
	_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("x") })

	require.Equal(t, Open, b.State().State)
	for i := 0; i < 5; i++ {
		err := b.Call(context.Background(), func(ctx context.Context) error { return nil })
		assert.ErrorIs(t, err, ErrOpen)
	}

	time.Sleep(40 * time.Millisecond)
	err := b.Call(context.Background(), func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, Closed, b.State().State)
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	b := New("test", Options{
		FailureThreshold: 1,
		BaseBackoff:      10 * time.Millisecond,
		MaxBackoff:       time.Second,
		HealthProbe: func(ctx context.Context) error {
			return errors.New("still sick")
		},
	})
	_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("x") })
	time.Sleep(20 * time.Millisecond)

	err := b.Call(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.Equal(t, Open, b.State().State)
}

func TestBreakerResetAndTrip(t *testing.T) {
	b := New("test", Options{FailureThreshold: 1})
	b.Trip()
	assert.Equal(t, Open, b.State().State)

	err := b.Call(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrOpen)

	b.Reset()
	assert.Equal(t, Closed, b.State().State)
	err = b.Call(context.Background(), func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestBreakerBackoffGrowsGeometrically(t *testing.T) {
	b := New("test", Options{FailureThreshold: 1, BaseBackoff: 100 * time.Millisecond, MaxBackoff: 60 * time.Second})
	failing := func(ctx context.Context) error { return errors.New("boom") }

	_ = b.Call(context.Background(), failing)
	first := b.State().CurrentBackoffMs

	// force reopen from half-open by waiting out backoff then failing the probe
	b.opts.HealthProbe = func(ctx context.Context) error { return errors.New("still down") }
	time.Sleep(time.Duration(first+10) * time.Millisecond)
	_ = b.Call(context.Background(), func(ctx context.Context) error { return nil })
	second := b.State().CurrentBackoffMs

	assert.Greater(t, second, first)
}
