package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Store owns the configuration loaded from one rules file. Load may run
// concurrently with any number of Snapshot calls; readers always see a
// complete Config, either the old one or the new one.
type Store struct {
	path string

	mu      sync.Mutex // serializes Load
	current atomic.Pointer[Config]
}

// NewStore creates a Store for the rules file at path. Nothing is read
// until Load; until then Snapshot returns an invalid Config.
func NewStore(path string) *Store {
	s := &Store{path: path}
	s.current.Store(&Config{})
	return s
}

// Path returns the rules file path.
func (s *Store) Path() string {
	return s.path
}

// Snapshot returns the most recently published Config. Callers must treat
// it as read-only.
func (s *Store) Snapshot() *Config {
	return s.current.Load()
}

// Load reads and validates the rules file and publishes the result. On
// failure the previously published Config stays in place.
func (s *Store) Load() (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	baseDir, err := filepath.Abs(filepath.Dir(s.path))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	p := &parser{path: s.path, baseDir: baseDir}
	cfg, err := p.parse(data)
	if err != nil {
		return nil, err
	}

	s.current.Store(cfg)
	log.WithFields(log.Fields{
		"path":  s.path,
		"root":  cfg.WatchRoot,
		"rules": len(cfg.Rules),
	}).Info("Configuration loaded")
	return cfg, nil
}
