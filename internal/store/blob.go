package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const blobSubdirName = "blobs"

// WriteBlobData writes data to relPath under the local device's blob
// subdirectory, creating parent directories as needed (spec §4.7
// writeBlobData:atPath:). relPath must resolve inside that
// subdirectory; ErrBlobPathEscape otherwise.
func (s *Store) WriteBlobData(ctx context.Context, data []byte, relPath string) error {
	abs, err := s.absoluteBlobPath(relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return &IOFailure{Op: "create blob directory", Path: filepath.Dir(abs), Err: err}
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return &IOFailure{Op: "write blob", Path: abs, Err: err}
	}
	return nil
}

// WriteBlobFromPath copies the file at sourcePath into the local
// device's blob subdirectory at relPath (spec §4.7
// writeBlobFromPath:atPath:).
func (s *Store) WriteBlobFromPath(ctx context.Context, sourcePath, relPath string) error {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return &IOFailure{Op: "read blob source", Path: sourcePath, Err: err}
	}
	return s.WriteBlobData(ctx, data, relPath)
}

// BlobDataAtPath reads the blob at relPath back out (spec §4.7
// blobDataAtPath:). Returns (nil, false, nil) if no such blob exists.
func (s *Store) BlobDataAtPath(ctx context.Context, relPath string) ([]byte, bool, error) {
	abs, err := s.absoluteBlobPath(relPath)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(abs)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &IOFailure{Op: "read blob", Path: abs, Err: err}
	}
	return data, true, nil
}

// DeleteBlobAtPath removes the blob at relPath, if present (spec §4.7
// deleteBlobAtPath:).
func (s *Store) DeleteBlobAtPath(ctx context.Context, relPath string) error {
	abs, err := s.absoluteBlobPath(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return &IOFailure{Op: "delete blob", Path: abs, Err: err}
	}
	return nil
}

// EnumerateBlobs walks the local device's blob subdirectory and returns
// every blob's relative path (spec §4.7 enumerateBlobsUsingBlock:).
func (s *Store) EnumerateBlobs(ctx context.Context) ([]string, error) {
	root := filepath.Join(s.root, s.device, blobSubdirName)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, &IOFailure{Op: "enumerate blobs", Path: root, Err: err}
	}
	return out, nil
}

// AbsolutePathForBlobPath resolves relPath to its absolute location
// under the local device's blob subdirectory without touching the
// filesystem (spec §4.7 absolutePathForBlobPath:).
func (s *Store) AbsolutePathForBlobPath(relPath string) (string, error) {
	return s.absoluteBlobPath(relPath)
}

// absoluteBlobPath resolves relPath against the local device's blob
// subdirectory and rejects any path whose ".." segments would escape it.
// An absolute relPath is not rejected: it is joined under the blob
// subdirectory like a relative one (spec §4.7 "blobs live under the
// device's own subdirectory").
func (s *Store) absoluteBlobPath(relPath string) (string, error) {
	if s.inMemory {
		return "", fmt.Errorf("blobs not supported on in-memory stores")
	}
	base := filepath.Join(s.root, s.device, blobSubdirName)
	cleanedBase := filepath.Clean(base)
	abs := filepath.Join(cleanedBase, relPath)
	if abs != cleanedBase && !strings.HasPrefix(abs, cleanedBase+string(filepath.Separator)) {
		return "", ErrBlobPathEscape
	}
	return abs, nil
}
