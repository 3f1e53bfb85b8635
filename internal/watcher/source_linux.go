//go:build linux

package watcher

import "time"

const inotifySupported = true

func defaultSourceFactory(time.Duration) SourceFactory {
	return func() (Source, error) { return newInotifySource() }
}
