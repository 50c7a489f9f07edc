package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parstore/parstore/internal/store"
)

func TestWriteReadDeleteBlob(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := store.Open(dir, store.WithDeviceIdentifier("device-a"))
	require.NoError(t, err)
	require.NoError(t, s.LoadNow(ctx))
	defer s.TearDownNow(ctx)

	require.NoError(t, s.WriteBlobData(ctx, []byte("hello"), "notes/a.txt"))

	data, ok, err := s.BlobDataAtPath(ctx, "notes/a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), data)

	paths, err := s.EnumerateBlobs(ctx)
	require.NoError(t, err)
	assert.Contains(t, paths, filepath.Join("notes", "a.txt"))

	require.NoError(t, s.DeleteBlobAtPath(ctx, "notes/a.txt"))
	_, ok, err = s.BlobDataAtPath(ctx, "notes/a.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteBlobFromPathCopiesFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	source := filepath.Join(dir, "source.bin")
	require.NoError(t, os.WriteFile(source, []byte("payload"), 0o644))

	s, err := store.Open(filepath.Join(dir, "store"), store.WithDeviceIdentifier("device-a"))
	require.NoError(t, err)
	require.NoError(t, s.LoadNow(ctx))
	defer s.TearDownNow(ctx)

	require.NoError(t, s.WriteBlobFromPath(ctx, source, "copy.bin"))
	data, ok, err := s.BlobDataAtPath(ctx, "copy.bin")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), data)
}

func TestBlobPathEscapeIsRejected(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := store.Open(dir, store.WithDeviceIdentifier("device-a"))
	require.NoError(t, err)
	require.NoError(t, s.LoadNow(ctx))
	defer s.TearDownNow(ctx)

	err = s.WriteBlobData(ctx, []byte("x"), "../escape.txt")
	assert.ErrorIs(t, err, store.ErrBlobPathEscape)

	err = s.WriteBlobData(ctx, []byte("x"), "nested/../../escape.txt")
	assert.ErrorIs(t, err, store.ErrBlobPathEscape)
}

func TestAbsolutePathForBlobPathResolvesUnderDeviceSubdir(t *testing.T) {
	dir := t.TempDir()

	s, err := store.Open(dir, store.WithDeviceIdentifier("device-a"))
	require.NoError(t, err)
	require.NoError(t, s.LoadNow(context.Background()))
	defer s.TearDownNow(context.Background())

	abs, err := s.AbsolutePathForBlobPath("notes/a.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "device-a", "blobs", "notes", "a.txt"), abs)

	_, err = s.AbsolutePathForBlobPath("../escape.txt")
	assert.ErrorIs(t, err, store.ErrBlobPathEscape)
}

func TestBlobsNotSupportedInMemory(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, s.LoadNow(ctx))
	defer s.TearDownNow(ctx)

	err = s.WriteBlobData(ctx, []byte("x"), "a")
	assert.Error(t, err)
}
