package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryLockerMutualExclusion(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	token, ok, err := l.Acquire(ctx, "unit-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	_, ok, err = l.Acquire(ctx, "unit-1", time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "held lock must not be re-acquired")

	// a different key is independent
	_, ok, err = l.Acquire(ctx, "unit-2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Release(ctx, "unit-1", token))
	_, ok, err = l.Acquire(ctx, "unit-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "released lock must be acquirable again")
}

func TestMemoryLockerReleaseRequiresOwnership(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	token, ok, err := l.Acquire(ctx, "unit-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// a stale holder's token must not free the current lock
	require.NoError(t, l.Release(ctx, "unit-1", "not-the-token"))
	_, ok, err = l.Acquire(ctx, "unit-1", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, l.Release(ctx, "unit-1", token))
}

func TestMemoryLockerTTLExpiry(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Now()
	l.clock = func() time.Time { return now }
	ctx := context.Background()

	first, ok, err := l.Acquire(ctx, "unit-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// within the TTL the lock holds
	now = now.Add(30 * time.Second)
	_, ok, _ = l.Acquire(ctx, "unit-1", time.Minute)
	require.False(t, ok)

	// past the TTL a crashed holder no longer blocks anyone
	now = now.Add(31 * time.Second)
	second, ok, err := l.Acquire(ctx, "unit-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, first, second)

	// the expired holder's token cannot release the new lock
	require.NoError(t, l.Release(ctx, "unit-1", first))
	_, ok, _ = l.Acquire(ctx, "unit-1", time.Minute)
	require.False(t, ok)
}

func TestMemoryTierRoundTrip(t *testing.T) {
	m := NewMemoryTier(8, time.Minute)
	ctx := context.Background()

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", []byte("payload")))
	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("payload"), v)

	require.NoError(t, m.Delete(ctx, "k"))
	_, ok, _ = m.Get(ctx, "k")
	require.False(t, ok)
}

func TestMemoryTierEvictsOldest(t *testing.T) {
	m := NewMemoryTier(2, time.Minute)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "a", []byte("1")))
	require.NoError(t, m.Set(ctx, "b", []byte("2")))
	require.NoError(t, m.Set(ctx, "c", []byte("3")))

	_, ok, _ := m.Get(ctx, "a")
	require.False(t, ok, "capacity two keeps only the two newest entries")
	_, ok, _ = m.Get(ctx, "c")
	require.True(t, ok)
}
