package watcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/mahyarmirrashed/filesorter/internal/config"
	"github.com/mahyarmirrashed/filesorter/internal/sorter"
)

// ErrWatchSetup is wrapped by every error that prevents the watcher from running.
var ErrWatchSetup = errors.New("cannot set up watches")

// ConfigStore is the part of config.Store the watcher needs.
type ConfigStore interface {
	Snapshot() *config.Config
	Load() (*config.Config, error)
	Path() string
}

// FileSorter sorts a single file against a config snapshot.
type FileSorter interface {
	Sort(path string, cfg *config.Config) (sorter.Outcome, error)
}

// State is the watcher lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Watcher runs the event loop: ready files are sorted, config file writes
// trigger a reload. All sorting happens on the loop goroutine, one event at
// a time, in the order the source delivers them.
type Watcher struct {
	store     ConfigStore
	sorter    FileSorter
	newSource SourceFactory
	onOutcome func(sorter.Outcome)

	lifecycle sync.Mutex // serializes Start, Stop, Reload and Scan
	state     atomic.Int32
	src       Source
	done      chan struct{}

	reloadMu sync.Mutex
	root     string // root currently subscribed, guarded by reloadMu
}

type Option func(*Watcher)

// WithSourceFactory replaces the platform default notification backend.
func WithSourceFactory(factory SourceFactory) Option {
	return func(w *Watcher) {
		if factory != nil {
			w.newSource = factory
		}
	}
}

// WithOutcomeHandler registers fn to run after every successful sort.
// It runs on the loop goroutine.
func WithOutcomeHandler(fn func(sorter.Outcome)) Option {
	return func(w *Watcher) { w.onOutcome = fn }
}

func New(store ConfigStore, s FileSorter, opts ...Option) *Watcher {
	w := &Watcher{
		store:     store,
		sorter:    s,
		newSource: defaultSourceFactory(0),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// State returns the current lifecycle state.
func (w *Watcher) State() State {
	return State(w.state.Load())
}

// Root returns the directory currently subscribed, or "" when not running
// or after the root was lost.
func (w *Watcher) Root() string {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()
	return w.root
}

// Start subscribes to the watch root of the current snapshot and to the
// config file, then launches the event loop. Both subscriptions must
// succeed. Calling Start while not idle logs a warning and does nothing.
func (w *Watcher) Start() error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	if st := w.State(); st != StateIdle {
		log.Warnf("Watcher is already %s", st)
		return nil
	}
	w.state.Store(int32(StateStarting))

	src, root, err := w.subscribe()
	if err != nil {
		w.state.Store(int32(StateIdle))
		return err
	}

	w.reloadMu.Lock()
	w.root = root
	w.reloadMu.Unlock()

	w.src = src
	w.done = make(chan struct{})
	w.state.Store(int32(StateRunning))
	go w.run(src, w.done)

	log.WithFields(log.Fields{
		"root":   root,
		"config": w.store.Path(),
	}).Info("Watcher started")
	return nil
}

func (w *Watcher) subscribe() (Source, string, error) {
	cfg := w.store.Snapshot()
	if cfg == nil || !cfg.Valid {
		return nil, "", fmt.Errorf("%w: no valid configuration loaded", ErrWatchSetup)
	}

	src, err := w.newSource()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrWatchSetup, err)
	}
	if err := src.WatchRoot(cfg.WatchRoot); err != nil {
		_ = src.Close()
		return nil, "", fmt.Errorf("%w: watch folder %s: %w", ErrWatchSetup, cfg.WatchRoot, err)
	}
	if err := src.WatchConfig(w.store.Path()); err != nil {
		_ = src.Close()
		return nil, "", fmt.Errorf("%w: config file %s: %w", ErrWatchSetup, w.store.Path(), err)
	}
	return src, cfg.WatchRoot, nil
}

// Stop closes the notification source, which unblocks the loop, and waits
// for the loop goroutine to exit. It is a no-op unless the watcher is running.
func (w *Watcher) Stop() error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	if w.State() != StateRunning {
		return nil
	}
	w.state.Store(int32(StateStopping))

	err := w.src.Close()
	<-w.done

	w.src = nil
	w.done = nil
	w.reloadMu.Lock()
	w.root = ""
	w.reloadMu.Unlock()
	w.state.Store(int32(StateIdle))

	log.Info("Watcher stopped")
	if err != nil {
		return fmt.Errorf("close notification source: %w", err)
	}
	return nil
}

// Reload loads the config file again without stopping the loop. If the
// watch root changed and the watcher is running, the new root replaces the
// old subscription.
func (w *Watcher) Reload() error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	var src Source
	if w.State() == StateRunning {
		src = w.src
	}
	return w.reload(src)
}

// Scan sorts the regular files already present in the watch root. It only
// runs while the watcher is idle so that moves stay serialized.
func (w *Watcher) Scan() error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	if st := w.State(); st != StateIdle {
		return fmt.Errorf("cannot scan while watcher is %s", st)
	}
	cfg := w.store.Snapshot()
	if cfg == nil || !cfg.Valid {
		return errors.New("cannot scan without a valid configuration")
	}

	entries, err := os.ReadDir(cfg.WatchRoot)
	if err != nil {
		return fmt.Errorf("scan %s: %w", cfg.WatchRoot, err)
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		w.sortFile(filepath.Join(cfg.WatchRoot, entry.Name()))
	}
	return nil
}

func (w *Watcher) run(src Source, done chan<- struct{}) {
	defer close(done)
	log.Debug("Watch loop started")

	for {
		batch, err := src.Next()
		if err != nil {
			if w.State() == StateStopping {
				return
			}
			if errors.Is(err, ErrSourceClosed) {
				log.Error("Notification source closed unexpectedly, watch loop exiting")
				return
			}
			log.Errorf("Error reading filesystem events: %v", err)
			continue
		}

		for _, ev := range batch {
			w.handle(src, ev)
		}
	}
}

// handle processes one event. A panic is logged and swallowed so that one
// bad event cannot end the loop.
func (w *Watcher) handle(src Source, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("event", ev.Kind.String()).Errorf("Recovered while handling %s: %v", ev.Path, r)
		}
	}()

	switch ev.Kind {
	case KindReady:
		w.sortFile(ev.Path)
	case KindConfigWritten:
		log.Info("Config file changed, reloading...")
		_ = w.reload(src)
	case KindConfigReplaced:
		log.Info("Config file replaced, reloading...")
		if err := src.WatchConfig(ev.Path); err != nil && w.State() != StateStopping {
			log.Warnf("Config file %s is no longer watched: %v", ev.Path, err)
		}
		_ = w.reload(src)
	case KindOverflow:
		log.Warn("Filesystem event queue overflowed, some files were not sorted")
	case KindRootLost:
		w.rootLost(ev.Path)
	}
}

func (w *Watcher) sortFile(path string) {
	outcome, err := w.sorter.Sort(path, w.store.Snapshot())
	if err != nil {
		if errors.Is(err, sorter.ErrMove) {
			log.Errorf("Error moving %s: %v", filepath.Base(path), err)
		} else {
			log.Warnf("Error sorting %s: %v", filepath.Base(path), err)
		}
		return
	}

	logOutcome(outcome)
	if w.onOutcome != nil {
		w.onOutcome(outcome)
	}
}

// rootLost forgets the subscribed root so that the next reload subscribes
// again, even when the config names the same directory.
func (w *Watcher) rootLost(root string) {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	if w.root != root {
		return
	}
	w.root = ""
	log.Warnf("Watch folder %s is gone; files will not be sorted until it exists and the config is reloaded", root)
}

func (w *Watcher) reload(src Source) error {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	cfg, err := w.store.Load()
	if err != nil {
		log.Errorf("Failed to reload config, keeping old configuration: %v", err)
		return err
	}
	if src == nil || cfg.WatchRoot == w.root {
		return nil
	}

	if err := src.WatchRoot(cfg.WatchRoot); err != nil {
		switch {
		case w.State() == StateStopping:
		case w.root == "":
			log.Errorf("Cannot watch %s: %v", cfg.WatchRoot, err)
		default:
			log.Errorf("Cannot watch %s, still watching %s: %v", cfg.WatchRoot, w.root, err)
		}
		return fmt.Errorf("%w: watch folder %s: %w", ErrWatchSetup, cfg.WatchRoot, err)
	}
	if w.root == "" {
		log.Infof("Watching %s again", cfg.WatchRoot)
	} else {
		log.Infof("Watch folder changed: %s -> %s", w.root, cfg.WatchRoot)
	}
	w.root = cfg.WatchRoot
	return nil
}

func logOutcome(o sorter.Outcome) {
	prettyPath := func(path string) string { return filepath.ToSlash(path) }

	switch o.Action {
	case sorter.ActionMoved:
		log.Infof("Moved %s -> %s", prettyPath(o.Source), prettyPath(o.Destination))
	case sorter.ActionDryRun:
		log.Infof("[dry run] Would move %s -> %s", prettyPath(o.Source), prettyPath(o.Destination))
	case sorter.ActionIgnored:
		log.Debugf("No rule for extension %q, ignored %s", sorter.Ext(filepath.Base(o.Source)), prettyPath(o.Source))
	case sorter.ActionExcluded:
		log.Debugf("Excluded: %s", prettyPath(o.Source))
	case sorter.ActionInPlace:
		log.Debugf("Already sorted: %s", prettyPath(o.Source))
	}
}
