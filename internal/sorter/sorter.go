package sorter

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mahyarmirrashed/filesorter/internal/config"
)

// DefaultMaxProbe bounds the stem_N.ext search for a free file name.
const DefaultMaxProbe = 100

// Action describes what Sort did with a file.
type Action int

const (
	ActionIgnored  Action = iota // No rule matched the extension
	ActionExcluded               // Name matched an exclude pattern
	ActionInPlace                // Already inside the rule's destination
	ActionMoved                  // Renamed into the destination
	ActionDryRun                 // Would have been moved
)

func (a Action) String() string {
	switch a {
	case ActionIgnored:
		return "ignored"
	case ActionExcluded:
		return "excluded"
	case ActionInPlace:
		return "in-place"
	case ActionMoved:
		return "moved"
	case ActionDryRun:
		return "dry-run"
	default:
		return "unknown"
	}
}

// Outcome is the result of sorting one file.
type Outcome struct {
	Action      Action
	Source      string
	Destination string      // Final path; empty unless moved or dry run
	Rule        config.Rule // Matched rule; zero if none
}

// Sorter moves files into the destination picked by a config's rules.
// It keeps no state between calls.
type Sorter struct {
	dryRun   bool
	maxProbe int
}

type Option func(*Sorter)

// WithDryRun makes Sort report the target without touching the filesystem.
func WithDryRun(dryRun bool) Option {
	return func(s *Sorter) { s.dryRun = dryRun }
}

// WithMaxProbe sets how many numbered names are tried after the natural one.
func WithMaxProbe(n int) Option {
	return func(s *Sorter) {
		if n >= 0 {
			s.maxProbe = n
		}
	}
}

func New(opts ...Option) *Sorter {
	s := &Sorter{maxProbe: DefaultMaxProbe}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sort moves the regular file at path into the destination of the first
// rule matching its extension. Files without a matching rule are left in
// place. On error the source file is untouched.
func (s *Sorter) Sort(path string, cfg *config.Config) (Outcome, error) {
	out := Outcome{Action: ActionIgnored, Source: path}

	if cfg == nil || !cfg.Valid {
		return out, fmt.Errorf("%w: %s: no valid configuration", ErrPrecondition, path)
	}
	info, err := os.Lstat(path)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrPrecondition, err)
	}
	if !info.Mode().IsRegular() {
		return out, fmt.Errorf("%w: %s: not a regular file", ErrPrecondition, path)
	}

	filename := filepath.Base(path)
	if cfg.Excluded(filename) {
		out.Action = ActionExcluded
		return out, nil
	}

	rule, ok := cfg.RuleFor(Ext(filename))
	if !ok {
		return out, nil
	}
	out.Rule = rule

	if filepath.Clean(filepath.Dir(path)) == filepath.Clean(rule.Destination) {
		out.Action = ActionInPlace
		return out, nil
	}

	if s.dryRun {
		target, err := s.freeName(rule.Destination, filename)
		if err != nil {
			return out, err
		}
		out.Action = ActionDryRun
		out.Destination = target
		return out, nil
	}

	if err := os.MkdirAll(rule.Destination, 0o755); err != nil {
		return out, fmt.Errorf("%w: %w", ErrDestination, err)
	}

	target, err := s.move(path, rule.Destination, filename)
	if err != nil {
		return out, err
	}
	out.Action = ActionMoved
	out.Destination = target
	return out, nil
}

// move renames src into dir under the first free candidate name.
func (s *Sorter) move(src, dir, filename string) (string, error) {
	for i := 0; i <= s.maxProbe; i++ {
		target := filepath.Join(dir, candidate(filename, i))
		err := renameNoReplace(src, target)
		if err == nil {
			return target, nil
		}
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if isCrossDevice(err) {
			return "", fmt.Errorf("%w: %w: %w", ErrMove, ErrCrossDevice, err)
		}
		return "", fmt.Errorf("%w: %w", ErrMove, err)
	}
	return "", fmt.Errorf("%w: %s (tried %d names)", ErrConflictExhausted, filepath.Join(dir, filename), s.maxProbe+1)
}

// freeName finds the name move would pick without reserving it.
func (s *Sorter) freeName(dir, filename string) (string, error) {
	for i := 0; i <= s.maxProbe; i++ {
		target := filepath.Join(dir, candidate(filename, i))
		if _, err := os.Lstat(target); errors.Is(err, fs.ErrNotExist) {
			return target, nil
		}
	}
	return "", fmt.Errorf("%w: %s (tried %d names)", ErrConflictExhausted, filepath.Join(dir, filename), s.maxProbe+1)
}

// Ext returns the extension rules are matched against: the suffix from the
// last dot, or "" when the only dot starts the name (".bashrc", ".pdf").
func Ext(filename string) string {
	ext := filepath.Ext(filename)
	if ext == filename {
		return ""
	}
	return ext
}

// candidate returns the i-th name tried for filename: the name itself, then
// stem_1.ext, stem_2.ext and so on.
func candidate(filename string, i int) string {
	if i == 0 {
		return filename
	}
	ext := Ext(filename)
	stem := filename[:len(filename)-len(ext)]
	return stem + "_" + strconv.Itoa(i) + ext
}
