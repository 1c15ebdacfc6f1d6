// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watcherDebounce coalesces the burst of fsnotify events an editor save
// produces into a single reload.
const watcherDebounce = 500 * time.Millisecond

// =============================================================================
// Corpus File Watcher
// =============================================================================

// Watcher reloads the corpus file when it changes on disk.
//
// Description:
//
//	Watches the directory containing the corpus file (watching the file
//	itself breaks on rename-based saves) and calls the reload callback
//	after a debounce window. A failed reload is logged and the previous
//	corpus stays in effect, so a bad edit never takes down the service.
//
// Thread Safety: Run is meant to be called once, in its own goroutine.
type Watcher struct {
	path   string
	reload func() error
	logger *slog.Logger
}

// NewWatcher creates a watcher for the given corpus file.
//
// Inputs:
//
//	path - The corpus file path.
//	reload - Callback that reloads the corpus and swaps the store.
//	logger - Logger instance. Must not be nil.
func NewWatcher(path string, reload func() error, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{path: path, reload: reload, logger: logger}
}

// Run watches until the context is cancelled.
//
// Outputs:
//
//	error - Non-nil only if the filesystem watch cannot be established.
//	        Reload failures are logged, not returned.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("corpus watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("corpus watcher: watch %s: %w", dir, err)
	}

	w.logger.Info("corpus watcher started",
		slog.String("path", w.path),
	)

	var debounce *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(watcherDebounce)
				debounceCh = debounce.C
			} else {
				debounce.Reset(watcherDebounce)
			}

		case <-debounceCh:
			debounce = nil
			debounceCh = nil
			start := time.Now()
			if err := w.reload(); err != nil {
				w.logger.Error("corpus reload failed, keeping previous corpus",
					slog.String("path", w.path),
					slog.String("error", err.Error()),
				)
				continue
			}
			w.logger.Info("corpus reloaded",
				slog.String("path", w.path),
				slog.Duration("duration", time.Since(start)),
			)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("corpus watcher error",
				slog.String("error", err.Error()),
			)
		}
	}
}
