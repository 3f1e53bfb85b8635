package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// MinSettle is the shortest settle window of the fsnotify backend.
const MinSettle = 200 * time.Millisecond

type pendingEvent struct {
	event    Event
	deadline time.Time
}

// fsnotifySource is the portable backend. fsnotify has no close-after-write
// event, so Create and Write are debounced per path: a file is reported
// ready once no further event for it arrived within the settle window.
type fsnotifySource struct {
	w      *fsnotify.Watcher
	settle time.Duration

	mu         sync.Mutex
	root       string
	configPath string

	pending map[string]pendingEvent // only touched by Next
}

func newFsnotifySource(settle time.Duration) (Source, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if settle < MinSettle {
		settle = MinSettle
	}
	return &fsnotifySource{
		w:       w,
		settle:  settle,
		pending: make(map[string]pendingEvent),
	}, nil
}

func (s *fsnotifySource) WatchRoot(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir = filepath.Clean(dir)
	if err := s.w.Add(dir); err != nil {
		return translateFsnotifyErr(err)
	}
	if s.root != "" && s.root != dir {
		_ = s.w.Remove(s.root)
	}
	s.root = dir
	return nil
}

func (s *fsnotifySource) WatchConfig(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path = filepath.Clean(path)
	if s.configPath != "" && s.configPath != path {
		_ = s.w.Remove(s.configPath)
	}
	// Add again for the same path re-arms a watch the backend dropped after
	// a rename or remove.
	if err := s.w.Add(path); err != nil {
		return translateFsnotifyErr(err)
	}
	s.configPath = path
	return nil
}

func (s *fsnotifySource) Next() ([]Event, error) {
	for {
		var (
			timer   *time.Timer
			timeout <-chan time.Time
		)
		if deadline, ok := s.nextDeadline(); ok {
			timer = time.NewTimer(time.Until(deadline))
			timeout = timer.C
		}

		var batch []Event
		select {
		case ev, ok := <-s.w.Events:
			if !ok {
				stopTimer(timer)
				return nil, ErrSourceClosed
			}
			s.observe(ev, time.Now())
		case err, ok := <-s.w.Errors:
			stopTimer(timer)
			if !ok {
				return nil, ErrSourceClosed
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				return []Event{{Kind: KindOverflow}}, nil
			}
			return nil, err
		case now := <-timeout:
			batch = s.due(now)
		}
		stopTimer(timer)

		if len(batch) > 0 {
			return batch, nil
		}
	}
}

func (s *fsnotifySource) observe(ev fsnotify.Event, now time.Time) {
	s.mu.Lock()
	root, configPath := s.root, s.configPath
	s.mu.Unlock()

	name := filepath.Clean(ev.Name)
	switch {
	case configPath != "" && name == configPath:
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			s.schedule(Event{Kind: KindConfigReplaced, Path: configPath}, now)
		} else if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
			s.schedule(Event{Kind: KindConfigWritten, Path: configPath}, now)
		}
	case root != "" && name == root:
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			s.schedule(Event{Kind: KindRootLost, Path: root}, now)
		}
	case root != "" && filepath.Dir(name) == root:
		if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
			if fi, err := os.Lstat(name); err == nil && fi.IsDir() {
				return
			}
			s.schedule(Event{Kind: KindReady, Path: name}, now)
		} else if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			// Gone before it settled.
			delete(s.pending, name)
		}
	}
}

// schedule pushes the deadline for path out by one settle window. A
// replacement of the config file wins over a plain write.
func (s *fsnotifySource) schedule(ev Event, now time.Time) {
	if prev, ok := s.pending[ev.Path]; ok && prev.event.Kind == KindConfigReplaced {
		ev.Kind = KindConfigReplaced
	}
	s.pending[ev.Path] = pendingEvent{event: ev, deadline: now.Add(s.settle)}
}

func (s *fsnotifySource) nextDeadline() (time.Time, bool) {
	var (
		earliest time.Time
		found    bool
	)
	for _, p := range s.pending {
		if !found || p.deadline.Before(earliest) {
			earliest, found = p.deadline, true
		}
	}
	return earliest, found
}

// due removes and returns the events whose deadline has passed, oldest first.
func (s *fsnotifySource) due(now time.Time) []Event {
	var ready []pendingEvent
	for path, p := range s.pending {
		if !p.deadline.After(now) {
			ready = append(ready, p)
			delete(s.pending, path)
		}
	}
	slices.SortFunc(ready, func(a, b pendingEvent) int {
		return a.deadline.Compare(b.deadline)
	})

	events := make([]Event, 0, len(ready))
	for _, p := range ready {
		events = append(events, p.event)
	}
	return events
}

func (s *fsnotifySource) Close() error {
	// fsnotify drops every watch and closes Events/Errors.
	return s.w.Close()
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func translateFsnotifyErr(err error) error {
	if errors.Is(err, fsnotify.ErrClosed) {
		return ErrSourceClosed
	}
	return err
}
