package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	var slept []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	calls := 0
	v, err := retry(context.Background(), 5, 2*time.Second, func(int) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection refused")
		}
		return "conn", nil
	}, sleep)

	require.NoError(t, err)
	assert.Equal(t, "conn", v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, slept)
}

func TestRetry_GivesUpAfterBoundedAttempts(t *testing.T) {
	dialErr := errors.New("connection refused")
	sleeps := 0
	calls := 0

	_, err := retry(context.Background(), 4, time.Millisecond, func(int) (int, error) {
		calls++
		return 0, dialErr
	}, func(context.Context, time.Duration) error {
		sleeps++
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, dialErr)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 3, sleeps)
}

func TestRetry_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := retry(ctx, 10, time.Hour, func(int) (int, error) {
		calls++
		return 0, errors.New("down")
	}, sleepWithContext)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	ch := newFakeChannel()
	c := NewClient(ch, Config{})

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, ch.closed)
}

func TestPermanent(t *testing.T) {
	base := errors.New("saga not found")
	err := Permanent(base)

	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.True(t, IsPermanent(errors.Join(errors.New("ctx"), err)))
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
}
