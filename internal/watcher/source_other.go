//go:build !linux

package watcher

import (
	"errors"
	"time"
)

const inotifySupported = false

func defaultSourceFactory(delay time.Duration) SourceFactory {
	return func() (Source, error) { return newFsnotifySource(delay) }
}

func newInotifySource() (Source, error) {
	return nil, errors.New("inotify is only available on linux")
}
