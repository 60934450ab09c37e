package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"resumecritic/internal/errors"

	"github.com/fsnotify/fsnotify"
)

// PromptWatcher reloads a prompt template file when it changes on disk.
// Invalid content is logged and ignored; the last good template stays active.
type PromptWatcher struct {
	mu sync.Mutex

	path        string
	lastModTime time.Time

	fsWatcher     *fsnotify.Watcher
	debounceDelay time.Duration
	debounceTimer *time.Timer

	stopChan   chan struct{}
	reloadChan chan struct{}

	onReload func(string)
	logger   *errors.Logger

	running bool
}

// NewPromptWatcher creates a watcher for the template at path
func NewPromptWatcher(path string, debounceDelay time.Duration, onReload func(string), logger *errors.Logger) (*PromptWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("prompt file path is empty")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve prompt file path: %w", err)
	}
	if debounceDelay == 0 {
		debounceDelay = 500 * time.Millisecond
	}

	return &PromptWatcher{
		path:          absPath,
		debounceDelay: debounceDelay,
		stopChan:      make(chan struct{}),
		reloadChan:    make(chan struct{}, 1),
		onReload:      onReload,
		logger:        logger,
	}, nil
}

// Start begins watching the prompt file
func (pw *PromptWatcher) Start() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.running {
		return fmt.Errorf("prompt watcher is already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory so editors that replace the file via rename are seen.
	if err := watcher.Add(filepath.Dir(pw.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch directory %s: %w", filepath.Dir(pw.path), err)
	}

	if stat, err := os.Stat(pw.path); err == nil {
		pw.lastModTime = stat.ModTime()
	}

	pw.fsWatcher = watcher
	pw.running = true
	go pw.watchLoop()

	if pw.logger != nil {
		pw.logger.Info("Prompt file watcher started", "file", pw.path, "debounce_delay", pw.debounceDelay)
	}
	return nil
}

// Stop stops the watcher. It is safe to call more than once.
func (pw *PromptWatcher) Stop() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if !pw.running {
		return nil
	}

	close(pw.stopChan)
	if pw.debounceTimer != nil {
		pw.debounceTimer.Stop()
	}
	pw.running = false

	if err := pw.fsWatcher.Close(); err != nil {
		if pw.logger != nil {
			pw.logger.LogError(err, "Failed to close prompt file watcher")
		}
		return err
	}

	if pw.logger != nil {
		pw.logger.Info("Prompt file watcher stopped")
	}
	return nil
}

// IsRunning returns whether the watcher is currently running
func (pw *PromptWatcher) IsRunning() bool {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	return pw.running
}

func (pw *PromptWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-pw.fsWatcher.Events:
			if !ok {
				return
			}
			if pw.shouldProcessEvent(event) {
				pw.scheduleReload()
			}

		case err, ok := <-pw.fsWatcher.Errors:
			if !ok {
				return
			}
			if pw.logger != nil {
				pw.logger.LogError(err, "Prompt file watcher error")
			}

		case <-pw.reloadChan:
			pw.reload()

		case <-pw.stopChan:
			return
		}
	}
}

func (pw *PromptWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != pw.path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (pw *PromptWatcher) scheduleReload() {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.debounceTimer != nil {
		pw.debounceTimer.Stop()
	}

	pw.debounceTimer = time.AfterFunc(pw.debounceDelay, func() {
		select {
		case pw.reloadChan <- struct{}{}:
		default:
		}
	})
}

func (pw *PromptWatcher) reload() {
	stat, err := os.Stat(pw.path)
	if err != nil {
		if pw.logger != nil {
			pw.logger.Warn("Prompt file unavailable, keeping current template", "file", pw.path, "error", err)
		}
		return
	}
	if !stat.ModTime().After(pw.lastModTime) {
		return
	}

	tmpl, err := LoadPromptFile(pw.path)
	if err != nil {
		if pw.logger != nil {
			pw.logger.LogError(err, "Rejected prompt file change, keeping current template", "file", pw.path)
		}
		return
	}

	pw.lastModTime = stat.ModTime()
	if pw.logger != nil {
		pw.logger.Info("Prompt template reloaded", "file", pw.path, "characters", len(tmpl))
	}
	pw.onReload(tmpl)
}
