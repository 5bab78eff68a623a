// Package daemon provides the watch daemon that reacts to cache-file
// edits and source-document changes.
//
// The daemon:
// 1. Performs a full reconciliation pass on startup
// 2. Watches the cache directory for hand edits to *.cache files
// 3. Watches document-derived sources' documents for changes
// 4. Debounces rapid edits and reconciles the affected source
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vitae-dev/vitae/internal/config"
	"github.com/vitae-dev/vitae/internal/syncer"
)

// Options holds daemon tuning knobs.
type Options struct {
	// DebounceInterval is how long to wait after the last write to a
	// file before reconciling its source. Editors save in bursts; this
	// batches them into one pass.
	DebounceInterval time.Duration

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		DebounceInterval: 2 * time.Second,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon watches the cache surface and triggers reconciliation.
type Daemon struct {
	sync *syncer.Syncer
	cfg  *config.Config
	opts *Options

	watcher *fsnotify.Watcher
	// docIndex maps a watched source document path to its source slug.
	docIndex map[string]string

	pending   map[string]time.Time // slug -> last event time
	pendingMu sync.Mutex

	wg sync.WaitGroup
}

// New creates a daemon. opts may be nil for defaults.
func New(s *syncer.Syncer, cfg *config.Config, opts *Options) (*Daemon, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	docIndex := make(map[string]string)
	for slug, src := range cfg.Sources {
		if src.Document == "" || !src.IsEnabled() {
			continue
		}
		abs, err := filepath.Abs(src.Document)
		if err != nil {
			continue
		}
		docIndex[abs] = slug
	}
	return &Daemon{
		sync:     s,
		cfg:      cfg,
		opts:     opts,
		watcher:  watcher,
		docIndex: docIndex,
		pending:  make(map[string]time.Time),
	}, nil
}

// Run performs an initial full pass, then watches until ctx is
// cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	d.opts.Logger.Println("starting watch daemon")

	for _, res := range d.sync.ReconcileAll(ctx, false) {
		d.opts.Logger.Println(res.Summary())
	}

	if err := d.watcher.Add(d.cfg.CacheDir); err != nil {
		return fmt.Errorf("failed to watch cache directory %s: %w", d.cfg.CacheDir, err)
	}
	// Watch each document's parent directory: editors replace files by
	// rename, which drops a watch placed on the file itself.
	watched := make(map[string]bool)
	for doc := range d.docIndex {
		dir := filepath.Dir(doc)
		if watched[dir] {
			continue
		}
		if err := d.watcher.Add(dir); err != nil {
			d.opts.Logger.Printf("cannot watch %s: %v", dir, err)
			continue
		}
		watched[dir] = true
	}
	d.opts.Logger.Printf("watching %s and %d source documents", d.cfg.CacheDir, len(d.docIndex))

	d.wg.Add(2)
	go d.watchEvents(ctx)
	go d.processPending(ctx)

	<-ctx.Done()
	err := d.watcher.Close()
	d.wg.Wait()
	d.opts.Logger.Println("daemon stopped")
	return err
}

// watchEvents maps filesystem events to source slugs and queues them.
func (d *Daemon) watchEvents(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			slug, ok := d.slugFor(event.Name)
			if !ok {
				continue
			}
			d.opts.Logger.Printf("file event: %s %s (source %s)", event.Op, event.Name, slug)
			d.queue(slug)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.opts.Logger.Printf("watcher error: %v", err)
		}
	}
}

// slugFor resolves an event path to the source it belongs to: either a
// <slug>.cache file in the cache directory or a watched source
// document.
func (d *Daemon) slugFor(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	if slug, ok := d.docIndex[abs]; ok {
		return slug, true
	}
	cacheDir, _ := filepath.Abs(d.cfg.CacheDir)
	if filepath.Dir(abs) != cacheDir {
		return "", false
	}
	base := filepath.Base(abs)
	if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, ".cache") {
		return "", false
	}
	slug := strings.TrimSuffix(base, ".cache")
	if _, ok := d.cfg.Sources[slug]; !ok {
		return "", false
	}
	return slug, true
}

func (d *Daemon) queue(slug string) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	d.pending[slug] = time.Now()
}

// processPending reconciles sources whose last event is older than the
// debounce interval.
func (d *Daemon) processPending(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.opts.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			for _, slug := range d.takeDue() {
				res := d.sync.Reconcile(ctx, slug, false)
				d.opts.Logger.Println(res.Summary())
			}
		}
	}
}

// takeDue removes and returns the slugs whose debounce window elapsed.
func (d *Daemon) takeDue() []string {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	now := time.Now()
	var due []string
	for slug, at := range d.pending {
		if now.Sub(at) < d.opts.DebounceInterval {
			continue
		}
		due = append(due, slug)
		delete(d.pending, slug)
	}
	return due
}
