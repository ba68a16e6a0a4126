// Package watch publishes a file's contents to a channel whenever the file
// changes on disk.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/relay/pkg/log"
)

// Error codes for file read failures.
const (
	ErrCodeFileNotFound     = "FILE_NOT_FOUND"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeReadError        = "READ_ERROR"
)

// DefaultMessageName is the message name snapshots are published under.
const DefaultMessageName = "file"

// Publisher is satisfied by *channel.Channel.
type Publisher interface {
	Publish(name string, data any, done func(error))
}

// Snapshot is the payload of one published change.
type Snapshot struct {
	Path       string    `json:"path"`
	Content    string    `json:"content,omitempty"`
	ErrorCode  string    `json:"error_code,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// Config holds watcher options.
type Config struct {
	// Debounce is the delay after the last change before publishing.
	// Default: 100 milliseconds
	Debounce time.Duration

	// MessageName is the name snapshots are published under.
	// Default: "file"
	MessageName string
}

// Watcher watches one file and publishes a Snapshot after each change.
type Watcher struct {
	path   string
	pub    Publisher
	name   string
	delay  time.Duration
	logger log.Logger

	mu       sync.Mutex
	debounce *time.Timer
}

// New creates a watcher for path.
func New(path string, pub Publisher, cfg Config, logger log.Logger) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 100 * time.Millisecond
	}
	if cfg.MessageName == "" {
		cfg.MessageName = DefaultMessageName
	}
	return &Watcher{
		path:   filepath.Clean(path),
		pub:    pub,
		name:   cfg.MessageName,
		delay:  cfg.Debounce,
		logger: log.With(log.OrNoop(logger), log.String("path", path)),
	}
}

// Run publishes the current contents, then a snapshot after every change,
// until ctx is done. The parent directory is watched so that editors that
// replace the file on save are followed.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	defer w.stopDebounce()

	w.publish()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.debouncePublish(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", log.Err(err))
		}
	}
}

func (w *Watcher) debouncePublish(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.delay, func() {
		if ctx.Err() == nil {
			w.publish()
		}
	})
}

func (w *Watcher) stopDebounce() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
}

func (w *Watcher) publish() {
	snap := w.snapshot()
	w.pub.Publish(w.name, snap, func(err error) {
		if err != nil {
			w.logger.Error("publish failed", log.Err(err))
			return
		}
		w.logger.Info("published file snapshot",
			log.Int("bytes", len(snap.Content)),
			log.String("error_code", snap.ErrorCode),
		)
	})
}

func (w *Watcher) snapshot() Snapshot {
	snap := Snapshot{Path: w.path, CapturedAt: time.Now().UTC()}
	data, err := os.ReadFile(w.path)
	if err != nil {
		snap.ErrorCode = errorToCode(err)
		return snap
	}
	snap.Content = string(data)
	return snap
}

func errorToCode(err error) string {
	if os.IsNotExist(err) {
		return ErrCodeFileNotFound
	}
	if os.IsPermission(err) || strings.Contains(err.Error(), "permission denied") {
		return ErrCodePermissionDenied
	}
	return ErrCodeReadError
}
