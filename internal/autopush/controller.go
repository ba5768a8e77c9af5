// Package autopush pushes a bookmark's local directory whenever it changes.
package autopush

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/rclonetray/rclonetray/internal/jobs"
	"github.com/rclonetray/rclonetray/internal/logging"
)

// DefaultDebounce is the quiet period before a push.
const DefaultDebounce = 3 * time.Second

// SyncFunc makes dst match src; rc.Client.Sync satisfies it.
type SyncFunc func(ctx context.Context, src, dst string) error

// Options configure a Controller.
type Options struct {
	Registry *jobs.Registry
	Sync     SyncFunc
	Debounce time.Duration
	// OnError is told about failed pushes. Optional.
	OnError func(bookmark string, err error)
	Log     *logrus.Entry
}

// Controller owns one watcher per bookmark.
type Controller struct {
	opts Options
	log  *logrus.Entry

	mu       sync.Mutex
	watchers map[string]*watcher
}

// New creates a controller.
func New(opts Options) *Controller {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	log := opts.Log
	if log == nil {
		log = logging.NewLogger("autopush")
	}
	return &Controller{opts: opts, log: log, watchers: make(map[string]*watcher)}
}

// Enable starts watching localPath and pushes it to remote (e.g. "drive:docs")
// right away and after every burst of changes. Enabling an already watched
// bookmark returns the existing watcher's stop function.
func (c *Controller) Enable(bookmark, localPath, remote string) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if w, ok := c.watchers[bookmark]; ok {
		return w.stopFunc(), nil
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("autopush %s: %w", bookmark, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("autopush %s: %s is not a directory", bookmark, localPath)
	}

	handle, err := c.opts.Registry.Start(bookmark, jobs.KindAutopush, jobs.AutopushMetadata{
		LocalPath: localPath,
		Remote:    remote,
	})
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		handle.Stop()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &watcher{
		c:         c,
		bookmark:  bookmark,
		localPath: localPath,
		remote:    remote,
		fs:        fsw,
		handle:    handle,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		log:       c.log.WithField("bookmark", bookmark),
	}
	w.debounce = newDebouncer(c.opts.Debounce, w.push)

	if err := w.addRecursive(localPath); err != nil {
		_ = fsw.Close()
		cancel()
		handle.Stop()
		return nil, err
	}

	c.watchers[bookmark] = w
	go w.processEvents()
	go w.push()

	w.log.Infof("autopush enabled for %s -> %s", localPath, remote)
	return w.stopFunc(), nil
}

// Disable stops the bookmark's watcher. Disabling an unwatched bookmark is a no-op.
func (c *Controller) Disable(bookmark string) {
	c.mu.Lock()
	w, ok := c.watchers[bookmark]
	delete(c.watchers, bookmark)
	c.mu.Unlock()
	if ok {
		w.close()
	}
}

// DisableAll stops every watcher and returns the affected bookmarks.
func (c *Controller) DisableAll() []string {
	c.mu.Lock()
	ws := c.watchers
	c.watchers = make(map[string]*watcher)
	c.mu.Unlock()

	names := make([]string, 0, len(ws))
	for name, w := range ws {
		w.close()
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Controller) forget(w *watcher) {
	c.mu.Lock()
	if c.watchers[w.bookmark] == w {
		delete(c.watchers, w.bookmark)
	}
	c.mu.Unlock()
}

type watcher struct {
	c         *Controller
	bookmark  string
	localPath string
	remote    string
	fs        *fsnotify.Watcher
	handle    *jobs.Handle
	debounce  *debouncer
	log       *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	// pushMu serialises pushes of one bookmark.
	pushMu    sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func (w *watcher) stopFunc() func() {
	return func() {
		w.c.forget(w)
		w.close()
	}
}

func (w *watcher) close() {
	w.closeOnce.Do(func() {
		close(w.done)
		w.debounce.Stop()
		w.cancel()
		// Wait for an in-flight push to unwind so its job is gone on return.
		w.pushMu.Lock()
		w.pushMu.Unlock()
		_ = w.fs.Close()
		w.handle.Stop()
		w.log.Info("autopush disabled")
	})
}

func (w *watcher) stopped() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// addRecursive watches root and every directory below it.
func (w *watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			w.log.WithError(err).Debugf("skipping %s", path)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fs.Add(path); err != nil {
			if path == root {
				return err
			}
			w.log.WithError(err).Warnf("failed to watch %s", path)
		}
		return nil
	})
}

func (w *watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("watcher error")
		}
	}
}

func (w *watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	w.log.Debugf("fsnotify: %s %s", event.Op, event.Name)

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.log.WithError(err).Warnf("failed to watch new directory %s", event.Name)
			}
		}
	}
	w.debounce.Trigger()
}

// push runs one sync under a push job. A push blocked by a running pull
// is retried after another quiet period.
func (w *watcher) push() {
	w.pushMu.Lock()
	defer w.pushMu.Unlock()
	if w.stopped() {
		return
	}

	h, err := w.c.opts.Registry.Start(w.bookmark, jobs.KindPush, jobs.SyncMetadata{
		Src: w.localPath,
		Dst: w.remote,
	})
	if err != nil {
		var conflict *jobs.ConflictError
		if errors.As(err, &conflict) {
			w.log.Infof("push deferred: %v", err)
			w.debounce.Trigger()
			return
		}
		w.report(err)
		return
	}
	defer h.Stop()

	start := time.Now()
	if err := w.c.opts.Sync(w.ctx, w.localPath, w.remote); err != nil {
		if w.ctx.Err() != nil {
			return
		}
		w.report(err)
		return
	}
	w.log.WithField("took", time.Since(start).Round(time.Millisecond)).Info("pushed")
}

func (w *watcher) report(err error) {
	w.log.WithError(err).Error("push failed")
	if w.c.opts.OnError != nil {
		w.c.opts.OnError(w.bookmark, err)
	}
}
