package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce is how long the watch loop waits after the last filesystem
// event before running a sync pass, so a burst of writes to the same file
// collapses into one pass instead of one per event.
const watchDebounce = 500 * time.Millisecond

// runWatch runs sync once immediately, then again every time the decrypted
// or encrypted root changes, until ctx is canceled. Errors from individual
// passes are logged and do not stop the loop — only a fatal watcher setup
// failure does.
func runWatch(ctx context.Context, decrRoot, encrRoot string) error {
	ctx = shutdownContext(ctx, cliCtx.Logger)
	watchReloadSignal(ctx, cliCtx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, root := range []string{decrRoot, encrRoot} {
		if err := addRecursive(watcher, root); err != nil {
			return err
		}
	}

	if err := runSync(ctx); err != nil {
		cliCtx.Logger.Warn("sync pass failed", slog.String("error", err.Error()))
	}

	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Has(fsnotify.Create) {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}

			if debounce == nil {
				debounce = time.NewTimer(watchDebounce)
			} else {
				debounce.Reset(watchDebounce)
			}

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			cliCtx.Logger.Warn("filesystem watcher error", slog.String("error", watchErr.Error()))

		case <-debounceC(debounce):
			if err := runSync(ctx); err != nil {
				cliCtx.Logger.Warn("sync pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// debounceC returns t's channel, or nil (which blocks forever in a select)
// when t hasn't been armed yet.
func debounceC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}

	return t.C
}

// addRecursive registers every directory under root with watcher, matching
// fsnotify's non-recursive watch semantics on Linux.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return watcher.Add(path)
		}

		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return err
}
