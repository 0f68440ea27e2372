package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDedupe(t *testing.T, ttl time.Duration) (Dedupe, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewDedupe(client, "shipping-service", ttl), srv
}

func TestDedupe_MarkThenSeen(t *testing.T) {
	ctx := context.Background()
	d, srv := newTestDedupe(t, time.Hour)

	seen, err := d.Seen(ctx, "m-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, d.MarkProcessed(ctx, "m-1"))
	require.NoError(t, d.MarkProcessed(ctx, "m-1"))

	seen, err = d.Seen(ctx, "m-1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.True(t, srv.Exists("shipping-service:processed:m-1"))
	assert.Equal(t, time.Hour, srv.TTL("shipping-service:processed:m-1"))
}

func TestDedupe_MarkerExpires(t *testing.T) {
	ctx := context.Background()
	d, srv := newTestDedupe(t, time.Minute)

	require.NoError(t, d.MarkProcessed(ctx, "m-1"))
	srv.FastForward(2 * time.Minute)

	seen, err := d.Seen(ctx, "m-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestDedupe_ServerDown(t *testing.T) {
	srv, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	d := NewDedupe(client, "payment-service", time.Minute)
	srv.Close()

	_, err = d.Seen(context.Background(), "m-1")
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	var d Dedupe = Noop{}
	require.NoError(t, d.MarkProcessed(context.Background(), "m-1"))
	seen, err := d.Seen(context.Background(), "m-1")
	require.NoError(t, err)
	assert.False(t, seen)
}
