package sop

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/CoReason-AI/coreason-signal/internal/model"
)

const defaultDebounce = 250 * time.Millisecond

// ReloadFunc receives a new revision of the library: every document it
// holds, and the IDs that were in the previous revision but are gone now.
type ReloadFunc func(docs []model.SOPDocument, removed []string) error

// Watch reloads the library file at path whenever it changes and passes
// the parsed documents to reload. The file's content at call time is the
// baseline for the first removed set. It watches the parent directory so
// that editors replacing the file by rename are seen. Invalid files are
// logged and skipped; a failed reload keeps the previous baseline. Watch
// blocks until ctx is done.
func Watch(ctx context.Context, path string, reload ReloadFunc) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("sop: watch: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("sop: watch: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("sop: watch %s: %w", filepath.Dir(abs), err)
	}
	known := make(map[string]bool)
	if docs, err := LoadLibrary(abs); err == nil {
		known = libraryIDs(docs)
	}
	slog.Info("watching sop library", "path", abs, "documents", len(known))

	// Rapid saves collapse into one reload after the debounce delay.
	debounce := time.NewTimer(defaultDebounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			debounce.Reset(defaultDebounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("sop watcher error", "error", err)
		case <-debounce.C:
			docs, err := LoadLibrary(abs)
			if err != nil {
				slog.Error("sop library reload failed", "path", abs, "error", err)
				continue
			}
			ids := libraryIDs(docs)
			var removed []string
			for id := range known {
				if !ids[id] {
					removed = append(removed, id)
				}
			}
			sort.Strings(removed)
			if err := reload(docs, removed); err != nil {
				slog.Error("sop library ingest failed", "path", abs, "error", err)
				continue
			}
			known = ids
			slog.Info("sop library reloaded", "path", abs, "documents", len(docs), "removed", len(removed))
		}
	}
}

func libraryIDs(docs []model.SOPDocument) map[string]bool {
	ids := make(map[string]bool, len(docs))
	for _, d := range docs {
		ids[d.ID] = true
	}
	return ids
}
