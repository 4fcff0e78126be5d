// Package watcher tails a plain-text task inbox. Each line of the file is
// one task; lines are handed to the processing callback in file order, and
// rapid appends are coalesced by a debounce window so a burst of writes
// yields one read.
package watcher

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"taskforge/internal/logging"
)

// Handler processes one task line.
type Handler func(ctx context.Context, task string)

// Watcher tails one inbox file. Lines already consumed are never re-handed:
// the watcher tracks a line offset and only feeds what was appended. A
// truncated or replaced file resets the offset.
type Watcher struct {
	path     string
	debounce time.Duration
	handler  Handler

	mu       sync.Mutex
	consumed int
}

// New builds a Watcher for the inbox at path.
func New(path string, debounce time.Duration, handler Handler) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{path: path, debounce: debounce, handler: handler}
}

// Run tails the inbox until ctx is done. The file and its directory are
// created when missing; lines already in the file at startup are processed
// first.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.ensureInbox(); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating inbox watcher: %w", err)
	}
	defer fw.Close()

	// Watch the directory, not the file: editors and appenders replace the
	// file often enough that a file-level watch goes stale.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching inbox directory: %w", err)
	}
	logging.Watcher("tailing %s (debounce %v)", w.path, w.debounce)

	w.drain(ctx)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Name != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logging.WatcherDebug("inbox event: %s", ev.Op)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.Get(logging.CategoryWatcher).Error("inbox watch error: %v", err)

		case <-timer.C:
			w.drain(ctx)
		}
	}
}

// drain reads the inbox and hands every unconsumed line to the handler, in
// order.
func (w *Watcher) drain(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Open(w.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Get(logging.CategoryWatcher).Error("opening inbox: %v", err)
		}
		return
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		logging.Get(logging.CategoryWatcher).Error("reading inbox: %v", err)
		return
	}

	if len(lines) < w.consumed {
		// File was truncated or replaced; start over from the top.
		logging.Watcher("inbox shrank from %d to %d lines, resetting", w.consumed, len(lines))
		w.consumed = 0
	}

	for _, line := range lines[w.consumed:] {
		w.consumed++
		task := strings.TrimSpace(line)
		if task == "" || strings.HasPrefix(task, "#") {
			continue
		}
		// Plain lines and ORDER:-prefixed lines are both accepted.
		task = strings.TrimSpace(strings.TrimPrefix(task, "ORDER:"))
		if task == "" {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		logging.Watcher("inbox task: %q", task)
		w.handler(ctx, task)
	}
}

func (w *Watcher) ensureInbox() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("creating inbox directory: %w", err)
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating inbox file: %w", err)
	}
	return f.Close()
}
