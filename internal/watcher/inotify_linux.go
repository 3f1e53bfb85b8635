//go:build linux

package watcher

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

const (
	rootMask   = unix.IN_CLOSE_WRITE | unix.IN_MOVED_TO | unix.IN_ONLYDIR
	configMask = unix.IN_CLOSE_WRITE

	nameMax        = 255
	readBufferSize = 1024 * (unix.SizeofInotifyEvent + nameMax + 1)
)

// inotifySource reads raw inotify events. The descriptor is non-blocking
// and wrapped in an *os.File, so a read parks on the runtime poller and
// Close wakes it with os.ErrClosed.
type inotifySource struct {
	fd   int
	file *os.File

	mu         sync.Mutex
	closed     bool
	root       string
	rootWd     int
	configPath string
	configWd   int

	buf []byte // only touched by Next
}

func newInotifySource() (Source, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("inotify_init1: %w", err)
	}
	return &inotifySource{
		fd:       fd,
		file:     os.NewFile(uintptr(fd), "inotify"),
		rootWd:   -1,
		configWd: -1,
		buf:      make([]byte, readBufferSize),
	}, nil
}

func (s *inotifySource) WatchRoot(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wd, err := s.replaceWatch(s.rootWd, dir, rootMask)
	if err != nil {
		return err
	}
	s.root, s.rootWd = dir, wd
	return nil
}

func (s *inotifySource) WatchConfig(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wd, err := s.replaceWatch(s.configWd, path, configMask)
	if err != nil {
		return err
	}
	s.configPath, s.configWd = path, wd
	return nil
}

// replaceWatch adds a watch on path and drops the previous one. The kernel
// hands out the same descriptor when path is the inode already watched.
func (s *inotifySource) replaceWatch(old int, path string, mask uint32) (int, error) {
	if s.closed {
		return -1, ErrSourceClosed
	}
	wd, err := unix.InotifyAddWatch(s.fd, path, mask)
	if err != nil {
		return -1, &os.PathError{Op: "inotify_add_watch", Path: path, Err: err}
	}
	if old != -1 && old != wd {
		s.removeWatch(old)
	}
	return wd, nil
}

func (s *inotifySource) removeWatch(wd int) {
	// EINVAL means the kernel already dropped it.
	_, _ = unix.InotifyRmWatch(s.fd, uint32(wd))
}

func (s *inotifySource) Next() ([]Event, error) {
	for {
		n, err := s.file.Read(s.buf)
		if err != nil {
			if errors.Is(err, os.ErrClosed) {
				return nil, ErrSourceClosed
			}
			return nil, fmt.Errorf("read inotify events: %w", err)
		}
		if n < unix.SizeofInotifyEvent {
			return nil, fmt.Errorf("short inotify read: %d bytes", n)
		}

		if events := s.decode(s.buf[:n]); len(events) > 0 {
			return events, nil
		}
	}
}

// decode walks a buffer of struct inotify_event records.
func (s *inotifySource) decode(buf []byte) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []Event
	for offset := 0; offset+unix.SizeofInotifyEvent <= len(buf); {
		wd := int(int32(binary.NativeEndian.Uint32(buf[offset:])))
		mask := binary.NativeEndian.Uint32(buf[offset+4:])
		nameLen := int(binary.NativeEndian.Uint32(buf[offset+12:]))

		start := offset + unix.SizeofInotifyEvent
		end := start + nameLen
		if end > len(buf) {
			break
		}
		name := strings.TrimRight(string(buf[start:end]), "\x00")
		offset = end

		if ev, ok := s.classify(wd, mask, name); ok {
			events = append(events, ev)
		}
	}
	return events
}

func (s *inotifySource) classify(wd int, mask uint32, name string) (Event, bool) {
	if mask&unix.IN_Q_OVERFLOW != 0 {
		return Event{Kind: KindOverflow}, true
	}
	if wd == -1 {
		return Event{}, false
	}

	switch wd {
	case s.rootWd:
		if mask&unix.IN_IGNORED != 0 {
			s.rootWd = -1
			return Event{Kind: KindRootLost, Path: s.root}, true
		}
		if mask&unix.IN_ISDIR != 0 || name == "" {
			return Event{}, false
		}
		if mask&(unix.IN_CLOSE_WRITE|unix.IN_MOVED_TO) != 0 {
			return Event{Kind: KindReady, Path: filepath.Join(s.root, name)}, true
		}
	case s.configWd:
		if mask&unix.IN_IGNORED != 0 {
			s.configWd = -1
			return Event{Kind: KindConfigReplaced, Path: s.configPath}, true
		}
		if mask&unix.IN_CLOSE_WRITE != 0 {
			return Event{Kind: KindConfigWritten, Path: s.configPath}, true
		}
	}
	return Event{}, false
}

func (s *inotifySource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.rootWd != -1 {
		s.removeWatch(s.rootWd)
		s.rootWd = -1
	}
	if s.configWd != -1 {
		s.removeWatch(s.configWd)
		s.configWd = -1
	}
	return s.file.Close()
}
