package excluder

import (
	"fmt"

	"github.com/gobwas/glob"
)

// Excluder matches file names against a list of glob patterns.
type Excluder struct {
	patterns []string
	globs    []glob.Glob
}

// Compile builds an Excluder from the patterns that compile and reports the
// rejected ones separately, so one bad pattern does not disable the rest.
// Patterns use '/' as the path separator.
func Compile(patterns []string) (*Excluder, map[string]error) {
	ex := &Excluder{}
	var rejected map[string]error
	for _, pat := range patterns {
		if err := ex.add(pat); err != nil {
			if rejected == nil {
				rejected = make(map[string]error)
			}
			rejected[pat] = err
		}
	}
	return ex, rejected
}

func (e *Excluder) add(pattern string) error {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
	}
	e.patterns = append(e.patterns, pattern)
	e.globs = append(e.globs, g)
	return nil
}

// IsExcluded returns true if the given name matches any exclude pattern.
func (e *Excluder) IsExcluded(name string) bool {
	if e == nil {
		return false
	}
	for _, g := range e.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Patterns returns the patterns that compiled, in the order given.
func (e *Excluder) Patterns() []string {
	if e == nil {
		return nil
	}
	return append([]string(nil), e.patterns...)
}
