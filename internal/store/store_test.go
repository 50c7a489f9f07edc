package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parstore/parstore/internal/proptree"
	"github.com/parstore/parstore/internal/store"
)

func TestOpenInMemoryLoadsAndHoldsValues(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, s.LoadNow(ctx))
	defer s.TearDownNow(ctx)

	require.True(t, s.Loaded())
	require.NoError(t, s.SetPropertyListValue(ctx, proptree.String("bar"), "foo"))

	v, ok, err := s.PropertyListValueForKey(ctx, "foo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, proptree.String("bar"), v)
}

func TestOpenPersistsAcrossReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s1, err := store.Open(dir, store.WithDeviceIdentifier("device-a"))
	require.NoError(t, err)
	require.NoError(t, s1.LoadNow(ctx))
	require.NoError(t, s1.SetPropertyListValue(ctx, proptree.Int(42), "answer"))
	require.NoError(t, s1.SaveNow(ctx))
	s1.TearDownNow(ctx)

	s2, err := store.Open(dir, store.WithDeviceIdentifier("device-a"))
	require.NoError(t, err)
	require.NoError(t, s2.LoadNow(ctx))
	defer s2.TearDownNow(ctx)

	v, ok, err := s2.PropertyListValueForKey(ctx, "answer")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, proptree.Int(42), v)
}

func TestLoadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, s.LoadNow(ctx))
	require.NoError(t, s.LoadNow(ctx)) // second call is a no-op, not an error
	defer s.TearDownNow(ctx)
	assert.True(t, s.Loaded())
}

func TestOperationsFailBeforeLoad(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenInMemory()
	require.NoError(t, err)

	_, _, err = s.PropertyListValueForKey(ctx, "foo")
	assert.ErrorIs(t, err, store.ErrNotLoaded)
}

func TestOperationsFailAfterTearDown(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, s.LoadNow(ctx))
	s.TearDownNow(ctx)

	_, _, err = s.PropertyListValueForKey(ctx, "foo")
	assert.ErrorIs(t, err, store.ErrTornDown)
}

func TestSubscribePublishesLoadedAndChanged(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenInMemory()
	require.NoError(t, err)

	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	require.NoError(t, s.LoadNow(ctx))
	require.NoError(t, s.SetPropertyListValue(ctx, proptree.Bool(true), "flag"))
	s.WaitUntilFinished(ctx)

	var kinds []store.EventKind
	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			kinds = append(kinds, ev.Kind)
		default:
		}
	}
	assert.Contains(t, kinds, store.EventLoaded)
	assert.Contains(t, kinds, store.EventChanged)
}
