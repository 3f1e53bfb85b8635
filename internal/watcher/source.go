package watcher

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrSourceClosed is returned by Source.Next once the source was closed.
var ErrSourceClosed = errors.New("notification source closed")

// Kind classifies a notification after it has been matched to a subscription.
type Kind int

const (
	KindReady          Kind = iota // A file in the watch root finished writing or was moved in
	KindConfigWritten              // The config file finished writing
	KindConfigReplaced             // The config file's subscription was lost (deleted or renamed over)
	KindOverflow                   // The kernel dropped events
	KindRootLost                   // The watch root was deleted, moved away or unmounted
)

func (k Kind) String() string {
	switch k {
	case KindReady:
		return "ready"
	case KindConfigWritten:
		return "config-written"
	case KindConfigReplaced:
		return "config-replaced"
	case KindOverflow:
		return "overflow"
	case KindRootLost:
		return "root-lost"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one notification relevant to the watch loop. Path is absolute
// for KindReady, the config path for the config kinds and the old root for
// KindRootLost.
type Event struct {
	Kind Kind
	Path string
}

// Source is a subscription to filesystem notifications with two watches:
// the watch root and the config file.
//
// Close is the cancellation mechanism: it invalidates the underlying
// notification channel, which makes a Next blocked on another goroutine
// return ErrSourceClosed. Close removes both subscriptions and may be
// called more than once.
type Source interface {
	WatchRoot(dir string) error
	WatchConfig(path string) error
	Next() ([]Event, error)
	Close() error
}

// SourceFactory opens a new, empty Source.
type SourceFactory func() (Source, error)

// Backend names accepted by NewSourceFactory.
const (
	BackendAuto     = "auto"
	BackendInotify  = "inotify"
	BackendFsnotify = "fsnotify"
)

// NewSourceFactory returns a factory for the named backend. delay is the
// settle window of the fsnotify backend.
func NewSourceFactory(backend string, delay time.Duration) (SourceFactory, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendAuto:
		return defaultSourceFactory(delay), nil
	case BackendInotify:
		if !inotifySupported {
			return nil, fmt.Errorf("backend %q is not available on this platform", backend)
		}
		return func() (Source, error) { return newInotifySource() }, nil
	case BackendFsnotify:
		return func() (Source, error) { return newFsnotifySource(delay) }, nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want %s, %s or %s)", backend, BackendAuto, BackendInotify, BackendFsnotify)
	}
}
