// Package watch triggers archival runs when spec documents change.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Defaults for Options.
const (
	DefaultDebounce = 2 * time.Second
	DefaultInterval = time.Minute
)

// Options configures Run.
type Options struct {
	// Root is the specs root. It and its immediate spec directories are
	// watched.
	Root string

	// ArchiveRoot is excluded from the watch set.
	ArchiveRoot string

	// Debounce is the quiet period after the last .md change before
	// Trigger runs.
	Debounce time.Duration

	// Interval is the period of unconditional Trigger runs, so that
	// archival delays can elapse without further edits. Zero or negative
	// disables the ticker.
	Interval time.Duration

	// Trigger runs an archival pass. Calls never overlap.
	Trigger func(ctx context.Context)

	Logger *slog.Logger
}

// Run watches opts.Root until ctx is done. It returns nil on cancellation
// and an error only when the watcher cannot be set up.
func Run(ctx context.Context, opts Options) error {
	if opts.Trigger == nil {
		return errors.New("watch: no trigger")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	log := opts.Logger

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(opts.Root); err != nil {
		return err
	}
	entries, err := os.ReadDir(opts.Root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		path := filepath.Join(opts.Root, e.Name())
		if e.IsDir() && watchable(path, opts) {
			if err := watcher.Add(path); err != nil {
				log.Warn("cannot watch spec directory", "path", path, "error", err)
			}
		}
	}

	var tick <-chan time.Time
	if opts.Interval > 0 {
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	debounce := time.NewTimer(opts.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	log.Info("watching specs", "root", opts.Root, "debounce", opts.Debounce, "interval", opts.Interval)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() &&
					filepath.Dir(event.Name) == filepath.Clean(opts.Root) && watchable(event.Name, opts) {
					if err := watcher.Add(event.Name); err != nil {
						log.Warn("cannot watch spec directory", "path", event.Name, "error", err)
					}
				}
			}
			if !strings.HasSuffix(event.Name, ".md") {
				continue
			}
			log.Debug("spec changed", "path", event.Name, "op", event.Op.String())
			debounce.Reset(opts.Debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", "error", err)

		case <-debounce.C:
			opts.Trigger(ctx)

		case <-tick:
			opts.Trigger(ctx)
		}
	}
}

// watchable excludes hidden directories and the archive root.
func watchable(path string, opts Options) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	return opts.ArchiveRoot == "" || filepath.Clean(path) != filepath.Clean(opts.ArchiveRoot)
}
