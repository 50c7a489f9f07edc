// Package coordinator implements the file-package coordinator (spec
// §4.6): it watches the store's root directory for peer device
// subdirectories appearing or changing, and enqueues ingestion of their
// logs onto the store's database queue. It also owns the outbound
// save-coalescing timer that batches local writes before they hit disk.
//
// Grounded on sjoeboo-hangar's StorageWatcher (fsnotify event loop:
// watch the parent directory rather than the file itself so renames and
// atomic replace-on-save are visible, debounce rapid writes, ignore
// events caused by the watcher's own save) and weaveworks-libgitops's
// SyncStorage (fan out one update stream into per-resource ingestion
// callbacks). The "ignore own save" window in the teacher becomes, here,
// simply: the coordinator never watches the local device's own log file,
// only foreign ones, so there is nothing to self-ignore.
package coordinator
