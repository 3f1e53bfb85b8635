package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	simplejson "github.com/bitly/go-simplejson"
	log "github.com/sirupsen/logrus"

	"github.com/mahyarmirrashed/filesorter/internal/excluder"
	"github.com/mahyarmirrashed/filesorter/internal/utils"
)

// Accepted keys for the watch root, in lookup order.
var watchRootKeys = []string{"watch_folder", "watch_root"}

// parser turns the raw bytes of a rules file into a Config. Relative paths
// are resolved against baseDir, the directory holding the rules file.
type parser struct {
	path    string
	baseDir string
}

func (p *parser) parse(data []byte) (*Config, error) {
	js, err := simplejson.NewJson(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParse, p.path, err)
	}
	// NewJson stops after the first value; anything after it is malformed.
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: %s: unexpected data after the top-level object", ErrParse, p.path)
	}
	if _, err := js.Map(); err != nil {
		return nil, p.schemaError("top-level value must be an object")
	}

	rawRoot, err := p.watchRoot(js)
	if err != nil {
		return nil, err
	}
	root, err := p.resolve(rawRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: watch folder: %w", ErrSchema, p.path, err)
	}

	rulesJS, ok := js.CheckGet("rules")
	if !ok {
		return nil, p.schemaError(`missing "rules"`)
	}
	entries, err := rulesJS.Array()
	if err != nil {
		return nil, p.schemaError(`"rules" must be an array`)
	}

	cfg := &Config{WatchRoot: root, Valid: true}
	for i := range entries {
		rule, err := p.rule(rulesJS.GetIndex(i))
		if err != nil {
			log.Warnf("Skipping invalid rule #%d in %s: %v", i+1, p.path, err)
			continue
		}
		cfg.Rules = append(cfg.Rules, rule)
	}

	cfg.Exclude, cfg.excluder = p.exclude(js)
	return cfg, nil
}

func (p *parser) watchRoot(js *simplejson.Json) (string, error) {
	for _, key := range watchRootKeys {
		field, ok := js.CheckGet(key)
		if !ok {
			continue
		}
		value, err := field.String()
		if err != nil {
			return "", p.schemaError(fmt.Sprintf("%q must be a string", key))
		}
		if strings.TrimSpace(value) == "" {
			return "", p.schemaError(fmt.Sprintf("%q must not be empty", key))
		}
		return value, nil
	}
	return "", p.schemaError(`missing "watch_folder"`)
}

func (p *parser) rule(js *simplejson.Json) (Rule, error) {
	if _, err := js.Map(); err != nil {
		return Rule{}, errors.New("rule must be an object")
	}

	ext, err := js.Get("extension").String()
	if err != nil {
		return Rule{}, errors.New(`"extension" missing or not a string`)
	}
	dest, err := js.Get("destination").String()
	if err != nil {
		return Rule{}, errors.New(`"destination" missing or not a string`)
	}

	if !strings.HasPrefix(ext, ".") {
		return Rule{}, fmt.Errorf("extension %q must start with a dot", ext)
	}
	if strings.ContainsRune(ext, '/') || strings.ContainsRune(ext, filepath.Separator) {
		return Rule{}, fmt.Errorf("extension %q must not contain a path separator", ext)
	}
	if strings.TrimSpace(dest) == "" {
		return Rule{}, errors.New(`"destination" must not be empty`)
	}

	resolved, err := p.resolve(dest)
	if err != nil {
		return Rule{}, fmt.Errorf("destination %q: %w", dest, err)
	}
	return Rule{Extension: ext, Destination: resolved}, nil
}

// exclude reads the optional "exclude" list. Bad entries are dropped with a warning.
func (p *parser) exclude(js *simplejson.Json) ([]string, *excluder.Excluder) {
	field, ok := js.CheckGet("exclude")
	if !ok {
		return nil, nil
	}
	entries, err := field.Array()
	if err != nil {
		log.Warnf("Ignoring \"exclude\" in %s: must be an array of glob patterns", p.path)
		return nil, nil
	}

	var patterns []string
	for i, entry := range entries {
		pattern, ok := entry.(string)
		if !ok || pattern == "" {
			log.Warnf("Skipping invalid exclude pattern #%d in %s", i+1, p.path)
			continue
		}
		patterns = append(patterns, pattern)
	}

	ex, rejected := excluder.Compile(patterns)
	for pattern, err := range rejected {
		log.Warnf("Skipping exclude pattern %q in %s: %v", pattern, p.path, err)
	}
	return ex.Patterns(), ex
}

func (p *parser) resolve(path string) (string, error) {
	expanded, err := utils.ExpandHome(path)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(p.baseDir, expanded)
	}
	return filepath.Clean(expanded), nil
}

func (p *parser) schemaError(reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrSchema, p.path, reason)
}
