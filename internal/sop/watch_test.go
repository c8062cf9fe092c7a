package sop

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CoReason-AI/coreason-signal/internal/model"
)

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sops.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sops: []\n"), 0o644))

	var (
		mu     sync.Mutex
		loaded [][]model.SOPDocument
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(docs []model.SOPDocument, _ []string) error {
			mu.Lock()
			defer mu.Unlock()
			loaded = append(loaded, docs)
			return nil
		})
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(sampleLibrary), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(loaded) > 0 && len(loaded[len(loaded)-1]) == 2
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatchSkipsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sops.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sops: []\n"), 0o644))

	calls := make(chan int, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(docs []model.SOPDocument, _ []string) error {
			calls <- len(docs)
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("sops: [ {id: A} ]\n"), 0o644))
	time.Sleep(2 * defaultDebounce)
	require.NoError(t, os.WriteFile(path, []byte(sampleLibrary), 0o644))

	select {
	case n := <-calls:
		assert.Equal(t, 2, n, "the invalid revision must not be passed to reload")
	case <-time.After(5 * time.Second):
		t.Fatal("library was never reloaded")
	}
	cancel()
	require.NoError(t, <-done)
}

func TestWatchReportsRemovedDocuments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sops.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleLibrary), 0o644))

	removedCh := make(chan []string, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(_ []model.SOPDocument, removed []string) error {
			removedCh <- removed
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)
	trimmed := "sops:\n  - id: SOP-104\n    content: Vacuum pressure drop.\n"
	require.NoError(t, os.WriteFile(path, []byte(trimmed), 0o644))

	select {
	case removed := <-removedCh:
		assert.Equal(t, []string{"SOP-310"}, removed)
	case <-time.After(5 * time.Second):
		t.Fatal("library was never reloaded")
	}
	cancel()
	require.NoError(t, <-done)
}

func TestWatchMissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "sops.yaml"), func([]model.SOPDocument, []string) error { return nil })
	assert.Error(t, err)
}
