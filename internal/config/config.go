package config

import (
	"github.com/mahyarmirrashed/filesorter/internal/excluder"
)

// Rule routes files with a given extension into a destination directory.
type Rule struct {
	Extension   string // Extension including the leading dot, e.g. ".pdf"
	Destination string // Absolute directory the file is moved into
}

// Config is one loaded rules file. A published Config is never modified;
// reloading produces a new value.
type Config struct {
	WatchRoot string   // Directory to watch (not recursive)
	Rules     []Rule   // Routing rules in file order; the first match wins
	Exclude   []string // Glob patterns for file names that are never moved
	Valid     bool     // False until a configuration has loaded successfully

	excluder *excluder.Excluder
}

// RuleFor returns the first rule whose extension equals ext exactly.
func (c *Config) RuleFor(ext string) (Rule, bool) {
	if c == nil {
		return Rule{}, false
	}
	for _, rule := range c.Rules {
		if rule.Extension == ext {
			return rule, true
		}
	}
	return Rule{}, false
}

// Excluded reports whether a file name matches one of the exclude patterns.
func (c *Config) Excluded(name string) bool {
	if c == nil {
		return false
	}
	return c.excluder.IsExcluded(name)
}
