package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"

	"github.com/mahyarmirrashed/filesorter/internal/config"
	"github.com/mahyarmirrashed/filesorter/internal/notify"
	"github.com/mahyarmirrashed/filesorter/internal/sorter"
	"github.com/mahyarmirrashed/filesorter/internal/watcher"
)

// Options holds the process-level settings; the rules themselves live in
// the config file.
type Options struct {
	ConfigPath    string        // Rules file to load and watch
	Backend       string        // Notification backend: auto, inotify, fsnotify
	Delay         time.Duration // Settle window for the fsnotify backend
	DryRun        bool          // If true, don't move files
	Notifications bool          // If true, send desktop notifications
	InitialScan   bool          // If true, sort files already in the watch folder at startup
	LockFile      string        // Single-instance lock; defaults to <config>.lock
}

// Daemon wires one config store, sorter and watcher together and reacts to
// process signals on its own goroutine.
type Daemon struct {
	opts    Options
	store   *config.Store
	watcher *watcher.Watcher
	lock    *flock.Flock
}

func New(opts Options) (*Daemon, error) {
	if opts.ConfigPath == "" {
		return nil, errors.New("daemon requires a config file path")
	}

	factory, err := watcher.NewSourceFactory(opts.Backend, opts.Delay)
	if err != nil {
		return nil, err
	}

	lockPath := opts.LockFile
	if lockPath == "" {
		lockPath = opts.ConfigPath + ".lock"
	}

	store := config.NewStore(opts.ConfigPath)
	notifier := notify.NewNotifier(opts.Notifications)
	w := watcher.New(store, sorter.New(sorter.WithDryRun(opts.DryRun)),
		watcher.WithSourceFactory(factory),
		watcher.WithOutcomeHandler(notifier.Notify),
	)

	return &Daemon{
		opts:    opts,
		store:   store,
		watcher: w,
		lock:    flock.New(lockPath),
	}, nil
}

// Run runs the daemon; it blocks until SIGINT/SIGTERM or context
// cancellation. SIGHUP reloads the config file.
func (d *Daemon) Run(ctx context.Context) error {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

	return d.serve(ctx, signals)
}

func (d *Daemon) serve(ctx context.Context, signals <-chan os.Signal) error {
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", d.lock.Path(), err)
	}
	if !ok {
		return fmt.Errorf("another filesorter instance holds %s", d.lock.Path())
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			log.Warnf("Error releasing lock: %v", err)
		}
	}()

	if _, err := d.store.Load(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if d.opts.InitialScan {
		log.Info("Starting initial scan...")
		if err := d.watcher.Scan(); err != nil {
			return fmt.Errorf("initial scan: %w", err)
		}
		log.Info("Initial scan complete.")
	}

	if err := d.watcher.Start(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("Context cancelled, shutting down...")
			return d.shutdown()
		case sig := <-signals:
			if sig == syscall.SIGHUP {
				log.Info("Received SIGHUP, reloading configuration...")
				// Failures are logged by the watcher; the old config stays active.
				_ = d.watcher.Reload()
				continue
			}
			log.Infof("Received signal: %s, shutting down...", sig)
			return d.shutdown()
		}
	}
}

func (d *Daemon) shutdown() error {
	if err := d.watcher.Stop(); err != nil {
		log.Warnf("Error closing watcher: %v", err)
	}
	log.Info("Cleanup complete. Exiting.")
	return nil
}
