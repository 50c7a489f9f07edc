package history_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parstore/parstore/internal/change"
	"github.com/parstore/parstore/internal/devicelog"
	"github.com/parstore/parstore/internal/history"
	"github.com/parstore/parstore/internal/proptree"
)

func openLog(t *testing.T) *devicelog.Log {
	t.Helper()
	l, err := devicelog.Open(filepath.Join(t.TempDir(), "log"), false)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func twoDeviceEngine(t *testing.T) (*history.Engine, *devicelog.Log, *devicelog.Log) {
	t.Helper()
	ctx := context.Background()
	a := openLog(t)
	b := openLog(t)

	require.NoError(t, a.AppendBatch(ctx, []change.Change{
		change.New(10, nil, "x", proptree.Int(1)),
		change.New(30, nil, "x", proptree.Int(3)),
		change.New(40, nil, "shared.a", proptree.Int(9)),
	}, true))
	require.NoError(t, b.AppendBatch(ctx, []change.Change{
		change.New(20, nil, "x", proptree.Int(2)),
		change.New(50, nil, "shared.b", proptree.Int(8)),
	}, true))

	e := history.New(func() map[string]*devicelog.Log {
		return map[string]*devicelog.Log{"A": a, "B": b}
	})
	return e, a, b
}

func TestFetchAllKeys(t *testing.T) {
	e, _, _ := twoDeviceEngine(t)
	keys, err := e.FetchAllKeys(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "shared.a", "shared.b"}, keys)
}

func TestFetchChangesFromTimestampInclusive(t *testing.T) {
	e, _, _ := twoDeviceEngine(t)
	first, last := int64(10), int64(30)
	entries, err := e.FetchChangesFromTimestamp(context.Background(), &first, &last, "")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		assert.LessOrEqual(t, entries[i-1].Change.Timestamp, entries[i].Change.Timestamp)
	}
}

func TestFetchChangesFromTimestampRestrictedToDevice(t *testing.T) {
	e, _, _ := twoDeviceEngine(t)
	entries, err := e.FetchChangesFromTimestamp(context.Background(), nil, nil, "A")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, entry := range entries {
		assert.Equal(t, "A", entry.Device)
	}
}

func TestFetchChangesSinceTimestampIsExclusive(t *testing.T) {
	e, _, _ := twoDeviceEngine(t)
	ts := int64(20)
	entries, err := e.FetchChangesSinceTimestamp(context.Background(), &ts, "")
	require.NoError(t, err)
	for _, entry := range entries {
		assert.Greater(t, entry.Change.Timestamp, ts)
	}
}

func TestFetchMostRecentPredecessorsOfChanges(t *testing.T) {
	e, _, _ := twoDeviceEngine(t)
	preds, err := e.FetchMostRecentPredecessorsOfChanges(context.Background(),
		[]change.Change{change.New(30, nil, "x", proptree.Int(3))}, "")
	require.NoError(t, err)
	pred, ok := preds["x"]
	require.True(t, ok)
	assert.Equal(t, int64(20), pred.Timestamp) // B's change at 20 precedes A's at 30

	noPreds, err := e.FetchMostRecentPredecessorsOfChanges(context.Background(),
		[]change.Change{change.New(10, nil, "x", proptree.Int(1))}, "")
	require.NoError(t, err)
	_, ok = noPreds["x"]
	assert.False(t, ok)
}

func TestFetchMostRecentSuccessorsOfChanges(t *testing.T) {
	e, _, _ := twoDeviceEngine(t)
	succs, err := e.FetchMostRecentSuccessorsOfChanges(context.Background(),
		[]change.Change{change.New(10, nil, "x", proptree.Int(1))}, "")
	require.NoError(t, err)
	succ, ok := succs["x"]
	require.True(t, ok)
	assert.Equal(t, int64(20), succ.Timestamp)
}

func TestFetchMostRecentChangesMatchingKeyPrefix(t *testing.T) {
	e, _, _ := twoDeviceEngine(t)
	matches, err := e.FetchMostRecentChangesMatchingKeyPrefix(context.Background(), "shared.", "")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, proptree.Int(9), matches["shared.a"].Value)
	assert.Equal(t, proptree.Int(8), matches["shared.b"].Value)
}

func TestQueriesFailInsideTransaction(t *testing.T) {
	e, _, _ := twoDeviceEngine(t)
	e.SetInTransaction(true)
	defer e.SetInTransaction(false)

	_, err := e.FetchAllKeys(context.Background())
	assert.ErrorIs(t, err, history.ErrInTransaction)

	_, err = e.FetchChangesFromTimestamp(context.Background(), nil, nil, "")
	assert.ErrorIs(t, err, history.ErrInTransaction)
}

func TestInsertChangesAppendOnlyRejectsViolation(t *testing.T) {
	e, a, _ := twoDeviceEngine(t)
	err := e.InsertChanges(context.Background(), a, []change.Change{
		change.New(5, nil, "x", proptree.Int(99)),
	}, true)
	assert.ErrorIs(t, err, devicelog.ErrAppendOrderViolation)
}
