package replica

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// DefaultWatchInterval is the minimum spacing between two syncs triggered
// by file changes.
const DefaultWatchInterval = 500 * time.Millisecond

// WatchOptions configures Watch.
type WatchOptions struct {
	// Interval is the minimum spacing between syncs. Zero means
	// DefaultWatchInterval.
	Interval time.Duration
	// OnSync is called after every sync, including the initial one.
	OnSync func(MergeResult)
}

// Watch syncs the peer log at path once, then again every time the file is
// written, until ctx is cancelled. Bursts of writes collapse into one sync
// per interval. Syncs run on the calling goroutine, one at a time.
func (r *Replica) Watch(ctx context.Context, path string, opts WatchOptions) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory so atomic replaces (rename over) are seen.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	syncOnce := func() error {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		res, err := r.Sync(ctx, abs)
		if err != nil {
			return err
		}
		if opts.OnSync != nil {
			opts.OnSync(res)
		}
		return nil
	}

	if err := syncOnce(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	r.logger.Info("watching peer log", "path", abs, "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			drain(w.Events)
			if err := syncOnce(); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				// A peer mid-rename may briefly have no file.
				r.logger.Warn("sync failed", "path", abs, "error", err)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				r.logger.Warn("watch overflow, resyncing", "path", abs)
				if err := syncOnce(); err != nil && ctx.Err() == nil {
					r.logger.Warn("sync failed", "path", abs, "error", err)
				}
				continue
			}
			return fmt.Errorf("watch %s: %w", abs, err)
		}
	}
}

// drain discards events already queued; the next sync reads the whole file
// anyway.
func drain(events <-chan fsnotify.Event) {
	for {
		select {
		case <-events:
		default:
			return
		}
	}
}
