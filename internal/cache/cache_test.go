package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys_AreTenantScoped(t *testing.T) {
	a, b := KeysFor("tenant-a"), KeysFor("tenant-b")

	assert.NotEqual(t, a.Task("1"), b.Task("1"))
	assert.NotEqual(t, a.Statistics(), b.Statistics())
	assert.True(t, strings.Contains(a.Task("1"), "tenant-a"))

	q := map[string]any{"status": "pending"}
	assert.NotEqual(t, a.List(q), b.List(q))
	assert.Equal(t, a.List(q), a.List(map[string]any{"status": "pending"}), "list key must be deterministic")
	assert.NotEqual(t, a.List(q), a.List(map[string]any{"status": "completed"}))
}

func TestMemory_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	got, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, m.Delete(ctx, "k"))
	_, ok, _ = m.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	now = now.Add(2 * time.Minute)

	_, ok, _ := m.Get(ctx, "k")
	assert.False(t, ok, "entry should have expired")
	assert.Equal(t, 0, m.Len())
}

func TestMemory_DeleteByPattern_LeavesOtherTenants(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a, b := KeysFor("a"), KeysFor("b")

	for _, k := range []string{a.Statistics(), a.Categories(), a.List("q"), a.Task("1"), b.Statistics()} {
		require.NoError(t, m.Set(ctx, k, []byte("x"), time.Minute))
	}

	require.NoError(t, m.DeleteByPattern(ctx, a.ListPattern()))

	_, ok, _ := m.Get(ctx, a.Statistics())
	assert.False(t, ok)
	_, ok, _ = m.Get(ctx, a.List("q"))
	assert.False(t, ok)
	_, ok, _ = m.Get(ctx, a.Task("1"))
	assert.True(t, ok, "single-task entries are not list entries")
	_, ok, _ = m.Get(ctx, b.Statistics())
	assert.True(t, ok, "other tenant untouched")
}

func TestMemory_AssigneePattern(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	k := KeysFor("t")

	require.NoError(t, m.Set(ctx, k.Upcoming("nurse-1", 7), []byte("x"), time.Minute))
	require.NoError(t, m.Set(ctx, k.Upcoming("nurse-2", 7), []byte("x"), time.Minute))

	require.NoError(t, m.DeleteByPattern(ctx, k.AssigneePattern("nurse-1")))

	_, ok, _ := m.Get(ctx, k.Upcoming("nurse-1", 7))
	assert.False(t, ok)
	_, ok, _ = m.Get(ctx, k.Upcoming("nurse-2", 7))
	assert.True(t, ok)
}
