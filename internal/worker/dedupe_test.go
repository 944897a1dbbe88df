package worker

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDedupe(t *testing.T, ttl time.Duration) (*Dedupe, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewDedupe(client, ttl), mr
}

func TestDedupe_Claim(t *testing.T) {
	d, mr := newTestDedupe(t, time.Hour)
	ctx := context.Background()
	id := uuid.New()

	ok, err := d.Claim(ctx, id, "worker-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Claim(ctx, id, "worker-b")
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	owner, err := mr.Get("notify:event:" + id.String())
	require.NoError(t, err)
	assert.Equal(t, "worker-a", owner)
	assert.Equal(t, time.Hour, mr.TTL("notify:event:"+id.String()))
}

func TestDedupe_Expires(t *testing.T) {
	d, mr := newTestDedupe(t, time.Minute)
	ctx := context.Background()
	id := uuid.New()

	ok, err := d.Claim(ctx, id, "worker-a")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, err = d.Claim(ctx, id, "worker-b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDedupe_Release(t *testing.T) {
	d, _ := newTestDedupe(t, time.Hour)
	ctx := context.Background()
	id := uuid.New()

	_, err := d.Claim(ctx, id, "worker-a")
	require.NoError(t, err)
	require.NoError(t, d.Release(ctx, id))

	ok, err := d.Claim(ctx, id, "worker-b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDedupe_Unavailable(t *testing.T) {
	d, mr := newTestDedupe(t, time.Hour)
	mr.Close()

	_, err := d.Claim(context.Background(), uuid.New(), "worker-a")
	assert.Error(t, err)
}
