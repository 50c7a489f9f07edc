package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parstore/parstore/internal/proptree"
	"github.com/parstore/parstore/internal/store"
)

func TestMergeStoreAbsorbsForeignHistory(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()

	source, err := store.Open(filepath.Join(base, "source"), store.WithDeviceIdentifier("device-a"))
	require.NoError(t, err)
	require.NoError(t, source.LoadNow(ctx))
	defer source.TearDownNow(ctx)
	require.NoError(t, source.SetPropertyListValue(ctx, proptree.String("imported"), "k"))

	dest, err := store.Open(filepath.Join(base, "dest"), store.WithDeviceIdentifier("device-b"))
	require.NoError(t, err)
	require.NoError(t, dest.LoadNow(ctx))
	defer dest.TearDownNow(ctx)

	require.NoError(t, dest.MergeStore(ctx, source, nil))

	v, ok, err := dest.PropertyListValueForKey(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, proptree.String("imported"), v)
}

func TestMergeStoreRejectsAppendOrderViolationUnlessUnsafe(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()

	source, err := store.Open(filepath.Join(base, "source"), store.WithDeviceIdentifier("device-a"))
	require.NoError(t, err)
	require.NoError(t, source.LoadNow(ctx))
	defer source.TearDownNow(ctx)
	require.NoError(t, source.SetPropertyListValue(ctx, proptree.Int(1), "k"))

	dest, err := store.Open(filepath.Join(base, "dest"), store.WithDeviceIdentifier("device-b"))
	require.NoError(t, err)
	require.NoError(t, dest.LoadNow(ctx))
	defer dest.TearDownNow(ctx)

	require.NoError(t, dest.MergeStore(ctx, source, nil))
	require.NoError(t, source.SetPropertyListValue(ctx, proptree.Int(2), "k"))

	// Re-merging the whole source log re-sends device-a's first
	// (already-absorbed) timestamp, which is no longer strictly greater
	// than dest's recorded max for that device: append-only mode rejects
	// the whole batch.
	err = dest.MergeStore(ctx, source, nil)
	assert.Error(t, err)

	// Marking device-a unsafe lets the re-send through.
	require.NoError(t, dest.MergeStore(ctx, source, []string{"device-a"}))

	v, ok, err := dest.PropertyListValueForKey(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, proptree.Int(2), v)
}
