package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestWithLockHoldsKeyForCriticalSection(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lock := NewLock(client, time.Second)
	key := "schedule:machine:1:2026-08-30:lock"

	var heldDuring bool
	err := lock.WithLock(context.Background(), key, func(context.Context) error {
		heldDuring = mr.Exists(key)
		return nil
	})
	require.NoError(t, err)
	require.True(t, heldDuring)
	require.False(t, mr.Exists(key))

	// Released, so a second take goes straight through.
	err = lock.WithLock(context.Background(), key, func(context.Context) error { return nil })
	require.NoError(t, err)
}

func TestWithLockGivesUpWhenHeldElsewhere(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	key := "schedule:machine:2:2026-08-30:lock"
	require.NoError(t, mr.Set(key, "someone-else"))

	lock := NewLock(client, 120*time.Millisecond)
	err := lock.WithLock(context.Background(), key, func(context.Context) error {
		t.Fatal("critical section ran while lock was held elsewhere")
		return nil
	})
	require.ErrorIs(t, err, ErrLockHeld)

	// The foreign holder's value survives our failed attempt.
	got, err := mr.Get(key)
	require.NoError(t, err)
	require.Equal(t, "someone-else", got)
}

func TestWithLockPassesThroughWithoutClient(t *testing.T) {
	lock := NewLock(nil, time.Second)
	ran := false
	err := lock.WithLock(context.Background(), "any", func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
}
