package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay is how long to wait after the last filesystem event before
// reloading. Editors save in bursts (truncate+write, or write-temp+rename),
// and reloading mid-burst would read a half-written file.
const settleDelay = 200 * time.Millisecond

// Watch reloads the configuration whenever the file at path changes and hands
// each successfully validated result to apply. A reload that fails — half
// written YAML, a value that no longer validates — is logged and skipped, so
// the last good configuration stays in effect. Watch blocks until ctx is
// cancelled.
//
// The watch is installed on the containing directory, not the file: an atomic
// save replaces the inode, which would silently detach a file-level watch.
func Watch(ctx context.Context, path string, apply func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: start watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config: watch %q: %w", dir, err)
	}

	slog.Info("config: watching for changes", "path", path)

	settle := time.NewTimer(settleDelay)
	if !settle.Stop() {
		<-settle.C
	}

	base := filepath.Base(path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			settle.Reset(settleDelay)

		case <-settle.C:
			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload skipped, keeping last good config",
					"path", path, "err", err)
				continue
			}
			slog.Info("config: reloaded", "path", path)
			apply(cfg)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// Level maps a config level string to a slog.Level, defaulting to info.
func Level(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
