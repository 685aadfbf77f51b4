package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"switchboard/internal/domain"
)

// debounceDelay coalesces the event bursts editors emit on save.
const debounceDelay = 200 * time.Millisecond

// RuleWatcher watches a routing rule file and delivers freshly parsed rule
// sets to a callback on change. The directory is watched rather than the file
// itself so atomic rename-style saves keep working.
type RuleWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onReload func([]*domain.RoutingRule)
	logger   *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// WatchRules starts watching path and invokes onReload with each valid new
// rule set. A change that fails to parse is logged and skipped; the previous
// rules stay in force.
func WatchRules(path string, onReload func([]*domain.RoutingRule), logger *slog.Logger) (*RuleWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve rules path: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watch rules directory: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	w := &RuleWatcher{
		watcher:  fsWatcher,
		path:     absPath,
		onReload: onReload,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go w.handleEvents()
	return w, nil
}

func (w *RuleWatcher) handleEvents() {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("rule watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

func (w *RuleWatcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}

	rules, err := LoadRules(w.path)
	if err != nil {
		w.logger.Warn("rules reload skipped: file invalid", "path", w.path, "error", err)
		return
	}
	w.logger.Info("rules reloaded", "path", w.path, "rules", len(rules))
	w.onReload(rules)
}

// Close stops watching. Safe to call more than once.
func (w *RuleWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
