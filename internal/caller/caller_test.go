package caller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDoSuccess(t *testing.T) {
	c := New("test", Options{}, discardLogger())

	calls := 0
	err := c.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateClosed, c.State())
}

func TestDoRetriesTransientFailures(t *testing.T) {
	c := New("test", Options{MaxRetries: 2}, discardLogger())

	calls := 0
	err := c.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustedRetriesReturnsError(t *testing.T) {
	c := New("test", Options{MaxRetries: 1}, discardLogger())

	boom := errors.New("boom")
	calls := 0
	err := c.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return boom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestDoPermanentErrorNotRetried(t *testing.T) {
	c := New("test", Options{MaxRetries: 3}, discardLogger())

	boom := errors.New("bad request")
	calls := 0
	err := c.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(boom)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDoRejectsWhenCircuitOpen(t *testing.T) {
	c := New("test", Options{MaxRetries: 0, FailureThreshold: 1, ResetTimeout: time.Hour}, discardLogger())

	require.Error(t, c.Do(context.Background(), func(ctx context.Context) error {
		return errors.New("down")
	}))
	require.Equal(t, StateOpen, c.State())

	calls := 0
	err := c.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls)
}

func TestDoAppliesPerAttemptTimeout(t *testing.T) {
	c := New("test", Options{Timeout: 10 * time.Millisecond, MaxRetries: 0}, discardLogger())

	err := c.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDoHonorsCallerContext(t *testing.T) {
	c := New("test", Options{MaxRetries: 5}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := c.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
