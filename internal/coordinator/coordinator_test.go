package coordinator_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parstore/parstore/internal/coordinator"
	"github.com/parstore/parstore/internal/dispatch"
)

type fakeHandler struct {
	mu       sync.Mutex
	ingested []string
	deleted  bool
	ingestCh chan string
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{ingestCh: make(chan string, 64)}
}

func (h *fakeHandler) IngestForeignLog(ctx context.Context, device string) error {
	h.mu.Lock()
	h.ingested = append(h.ingested, device)
	h.mu.Unlock()
	h.ingestCh <- device
	return nil
}

func (h *fakeHandler) HandleRootDeleted() {
	h.mu.Lock()
	h.deleted = true
	h.mu.Unlock()
}

func (h *fakeHandler) waitForIngest(t *testing.T, device string, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case d := <-h.ingestCh:
			if d == device {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for ingestion of device %q", device)
		}
	}
}

func TestCoordinatorDetectsNewPeerDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "local"), 0o755))

	dbQueue := dispatch.New("test.db", dispatch.Serial)
	defer dbQueue.Close()
	handler := newFakeHandler()

	c, err := coordinator.New(root, "local", dbQueue, handler)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	peerDir := filepath.Join(root, "peer-b")
	require.NoError(t, os.MkdirAll(peerDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(peerDir, "log"), []byte("x"), 0o644))

	handler.waitForIngest(t, "peer-b", 3*time.Second)
}

func TestCoordinatorIgnoresLocalDevice(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "local"), 0o755))

	dbQueue := dispatch.New("test.db", dispatch.Serial)
	defer dbQueue.Close()
	handler := newFakeHandler()

	c, err := coordinator.New(root, "local", dbQueue, handler)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	require.NoError(t, os.WriteFile(filepath.Join(root, "local", "log"), []byte("y"), 0o644))

	select {
	case d := <-handler.ingestCh:
		t.Fatalf("unexpected ingestion of local device log: %q", d)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestCoordinatorSyncIngestsAllKnownDevices(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "local"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "peer-a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "peer-b"), 0o755))

	dbQueue := dispatch.New("test.db", dispatch.Serial)
	defer dbQueue.Close()
	handler := newFakeHandler()

	c, err := coordinator.New(root, "local", dbQueue, handler)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	require.NoError(t, c.Sync(context.Background()))

	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.ElementsMatch(t, []string{"peer-a", "peer-b"}, handler.ingested)
}

func TestCoordinatorDetectsRootDeletion(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "local"), 0o755))

	dbQueue := dispatch.New("test.db", dispatch.Serial)
	defer dbQueue.Close()
	handler := newFakeHandler()

	c, err := coordinator.New(root, "local", dbQueue, handler)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	require.NoError(t, os.RemoveAll(root))

	require.Eventually(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return handler.deleted
	}, 3*time.Second, 10*time.Millisecond)
}
