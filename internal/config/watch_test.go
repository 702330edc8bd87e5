package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileWatcherFiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tags.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tags: []\n"), 0o644))

	changed := make(chan struct{}, 1)
	w, err := NewFileWatcher(path, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { w.Stop() })

	w.Start()

	require.NoError(t, os.WriteFile(path, []byte("tags:\n  - start_tag: \"<think>\"\n    kind: reasoning\n"), 0o644))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never fired")
	}
}

func TestFileWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tags.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tags: []\n"), 0o644))

	changed := make(chan struct{}, 1)
	w, err := NewFileWatcher(path, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { w.Stop() })

	w.Start()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644))

	select {
	case <-changed:
		t.Fatal("watcher fired for an unrelated file")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestFileWatcherStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tags.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tags: []\n"), 0o644))

	w, err := NewFileWatcher(path, func() {})
	require.NoError(t, err)

	w.Start()
	require.NoError(t, w.Stop())
	w.Stop()
}
