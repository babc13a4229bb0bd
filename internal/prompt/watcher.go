package prompt

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"cottbot/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates the resolver cache when prompt files change on disk,
// so edits take effect without a restart.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	resolver *Resolver
	dir      string
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// NewWatcher creates a watcher for the resolver's prompt directory.
func NewWatcher(dir string, resolver *Resolver) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  fw,
		resolver: resolver,
		dir:      dir,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		// Directory may appear later; the cache simply stays warm until then.
		logging.Get(logging.CategoryBoot).Warn("Prompt watcher: initial watch failed: %v", err)
	} else {
		logging.Boot("Prompt watcher: watching %s", w.dir)
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryBoot).Error("Prompt watcher: close error: %v", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryBoot).Error("Prompt watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".md") {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	variant := strings.TrimSuffix(filepath.Base(event.Name), ".md")
	logging.ContextDebug("Prompt watcher: invalidating variant %s (%s)", variant, event.Op)
	w.resolver.Invalidate(variant)
}
