package watcher

import (
	"context"
	"time"

	"github.com/shahcompbio/montage-sub000/pkg/logging"
)

// ReloadFunc reloads the file at path. On error the previous state is kept.
type ReloadFunc func(ctx context.Context, path string) error

// Run watches path and calls reload after every debounced burst of changes
// until ctx is done.
func Run(ctx context.Context, path string, quiet, maxWait time.Duration, reload ReloadFunc) error {
	fw, err := NewFileWatcher(path)
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}
	d := NewDebouncer(fw.Events(), quiet, maxWait)
	d.Start(ctx)

	go func() {
		for ev := range d.Output() {
			start := time.Now()
			if err := reload(ctx, ev.Path); err != nil {
				logging.Warn("catalog reload failed, keeping previous catalog", "path", ev.Path, "error", err)
				continue
			}
			logging.Info("catalog reloaded", "path", ev.Path, "events", ev.Count,
				"durationMs", time.Since(start).Milliseconds())
		}
	}()
	return nil
}
