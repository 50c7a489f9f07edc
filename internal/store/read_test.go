package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parstore/parstore/internal/clock"
	"github.com/parstore/parstore/internal/proptree"
	"github.com/parstore/parstore/internal/store"
)

func TestAllKeysAndAllEntries(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, s.LoadNow(ctx))
	defer s.TearDownNow(ctx)

	require.NoError(t, s.SetEntriesFromDictionary(ctx, map[string]proptree.Value{
		"a": proptree.Int(1),
		"b": proptree.String("two"),
	}))

	keys, err := s.AllKeys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)

	entries, timestamps, err := s.AllEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, proptree.Int(1), entries["a"])
	assert.Equal(t, proptree.String("two"), entries["b"])
	assert.Equal(t, timestamps["a"], timestamps["b"])
}

func TestFetchPropertyListValueForKeyAsOfHistoricalTimestamp(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenInMemory(store.WithDeviceIdentifier("d"))
	require.NoError(t, err)
	require.NoError(t, s.LoadNow(ctx))
	defer s.TearDownNow(ctx)

	require.NoError(t, s.SetPropertyListValue(ctx, proptree.Int(1), "k"))
	mid, err := s.MostRecentTimestampForKey(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, s.SetPropertyListValue(ctx, proptree.Int(2), "k"))

	v, ok, err := s.FetchPropertyListValueForKey(ctx, "k", &mid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, proptree.Int(1), v)

	v, ok, err = s.FetchPropertyListValueForKey(ctx, "k", nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, proptree.Int(2), v)
}

func TestMostRecentTimestampForUnknownKeyIsDistantPast(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, s.LoadNow(ctx))
	defer s.TearDownNow(ctx)

	ts, err := s.MostRecentTimestampForKey(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, clock.DistantPast, ts)
}

func TestHistoryReturnsEveryChangeInOrder(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, s.LoadNow(ctx))
	defer s.TearDownNow(ctx)

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.SetPropertyListValue(ctx, proptree.Int(int64(i)), "k"))
	}

	history, err := s.History(ctx, "k")
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, e := range history {
		assert.Equal(t, proptree.Int(int64(i+1)), e.Change.Value)
		if i > 0 {
			assert.Greater(t, e.Change.Timestamp, history[i-1].Change.Timestamp)
		}
	}
}
