package config

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{
		"watch_folder": "/tmp/in",
		"rules": [
			{"extension": ".pdf", "destination": "/tmp/out/docs"},
			{"extension": ".jpg", "destination": "/tmp/out/pictures"},
			{"extension": ".pdf", "destination": "/tmp/out/other"}
		],
		"unknown": true
	}`)

	store := NewStore(path)
	cfg, err := store.Load()
	require.NoError(t, err)

	assert.True(t, cfg.Valid)
	assert.Equal(t, "/tmp/in", cfg.WatchRoot)
	assert.Equal(t, []Rule{
		{Extension: ".pdf", Destination: "/tmp/out/docs"},
		{Extension: ".jpg", Destination: "/tmp/out/pictures"},
		{Extension: ".pdf", Destination: "/tmp/out/other"},
	}, cfg.Rules)
	assert.Same(t, cfg, store.Snapshot())
}

func TestLoadSkipsMalformedRules(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{
		"watch_folder": "/tmp/in",
		"rules": [
			{"extension": "pdf", "destination": "/tmp/out/docs"},
			{"extension": ".txt"},
			{"destination": "/tmp/out/x"},
			{"extension": 7, "destination": "/tmp/out/x"},
			{"extension": ".md", "destination": ["/tmp"]},
			{"extension": ".a/b", "destination": "/tmp/out/x"},
			{"extension": ".zip", "destination": ""},
			"not an object",
			{"extension": ".png", "destination": "/tmp/out/pictures"}
		]
	}`)

	cfg, err := NewStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, []Rule{{Extension: ".png", Destination: "/tmp/out/pictures"}}, cfg.Rules)
}

func TestLoadZeroSurvivingRulesIsValid(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"watch_folder": "/tmp/in", "rules": [{"extension": "nodot", "destination": "/x"}]}`)

	cfg, err := NewStore(path).Load()
	require.NoError(t, err)
	assert.True(t, cfg.Valid)
	assert.Empty(t, cfg.Rules)
}

func TestLoadAcceptsWatchRootAlias(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"watch_root": "/srv/incoming", "rules": []}`)

	cfg, err := NewStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/incoming", cfg.WatchRoot)
}

func TestLoadFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"not json", `{"watch_folder": `, ErrParse},
		{"empty file", ``, ErrParse},
		{"trailing garbage", `{"watch_folder": "/tmp/in", "rules": []} garbage`, ErrParse},
		{"trailing bracket", `{"watch_folder": "/tmp/in", "rules": []}]`, ErrParse},
		{"second object", `{"watch_folder": "/tmp/in", "rules": []}{"watch_folder": 1}`, ErrParse},
		{"top level array", `[1, 2]`, ErrSchema},
		{"missing watch folder", `{"rules": []}`, ErrSchema},
		{"watch folder not string", `{"watch_folder": 3, "rules": []}`, ErrSchema},
		{"empty watch folder", `{"watch_folder": "  ", "rules": []}`, ErrSchema},
		{"missing rules", `{"watch_folder": "/tmp/in"}`, ErrSchema},
		{"rules not array", `{"watch_folder": "/tmp/in", "rules": {"extension": ".pdf"}}`, ErrSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeConfig(t, dir, tt.content)

			store := NewStore(path)
			before := store.Snapshot()

			cfg, err := store.Load()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, cfg)
			assert.Same(t, before, store.Snapshot())
			assert.False(t, store.Snapshot().Valid)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing.json"))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, store.Snapshot().Valid)
}

func TestFailedReloadKeepsPreviousConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"watch_folder": "/tmp/in", "rules": [{"extension": ".pdf", "destination": "/tmp/docs"}]}`)

	store := NewStore(path)
	good, err := store.Load()
	require.NoError(t, err)

	writeConfig(t, dir, `{"watch_folder": "/tmp/in", "rules": [`)
	_, err = store.Load()
	require.ErrorIs(t, err, ErrParse)
	assert.Same(t, good, store.Snapshot())

	require.NoError(t, os.Remove(path))
	_, err = store.Load()
	require.ErrorIs(t, err, ErrIO)
	assert.Same(t, good, store.Snapshot())
}

func TestReloadPublishesNewConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"watch_folder": "/tmp/in", "rules": [{"extension": ".pdf", "destination": "/tmp/docs"}]}`)

	store := NewStore(path)
	first, err := store.Load()
	require.NoError(t, err)

	writeConfig(t, dir, `{"watch_folder": "/tmp/in", "rules": [{"extension": ".pdf", "destination": "/tmp/papers"}]}`)
	second, err := store.Load()
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, "/tmp/docs", first.Rules[0].Destination, "old snapshot must not change")
	assert.Equal(t, "/tmp/papers", store.Snapshot().Rules[0].Destination)
}

func TestLoadExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := t.TempDir()
	path := writeConfig(t, dir, `{
		"watch_folder": "$HOME/Downloads",
		"rules": [
			{"extension": ".pdf", "destination": "~/Documents/pdf"},
			{"extension": ".txt", "destination": "$HOME"}
		]
	}`)

	cfg, err := NewStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "Downloads"), cfg.WatchRoot)
	assert.Equal(t, filepath.Join(home, "Documents", "pdf"), cfg.Rules[0].Destination)
	assert.Equal(t, home, cfg.Rules[1].Destination)
}

func TestLoadResolvesRelativePathsAgainstConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"watch_folder": "inbox", "rules": [{"extension": ".pdf", "destination": "../sorted/pdf"}]}`)

	cfg, err := NewStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "inbox"), cfg.WatchRoot)
	assert.Equal(t, filepath.Join(filepath.Dir(dir), "sorted", "pdf"), cfg.Rules[0].Destination)
}

func TestLoadExcludePatterns(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{
		"watch_folder": "/tmp/in",
		"rules": [],
		"exclude": ["*.part", 5, "", "[", ".~lock*"]
	}`)

	cfg, err := NewStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"*.part", ".~lock*"}, cfg.Exclude)
	assert.True(t, cfg.Excluded("movie.mkv.part"))
	assert.True(t, cfg.Excluded(".~lock.report.odt#"))
	assert.False(t, cfg.Excluded("movie.mkv"))
}

func TestSnapshotConcurrentWithLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"watch_folder": "/tmp/in", "rules": [{"extension": ".a", "destination": "/a"}, {"extension": ".b", "destination": "/b"}]}`)

	store := NewStore(path)
	_, err := store.Load()
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				cfg := store.Snapshot()
				if !cfg.Valid || len(cfg.Rules) != 2 {
					t.Errorf("torn snapshot: %+v", cfg)
					return
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		_, err := store.Load()
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}

func TestRuleForFirstMatchWins(t *testing.T) {
	cfg := &Config{Valid: true, Rules: []Rule{
		{Extension: ".pdf", Destination: "/first"},
		{Extension: ".PDF", Destination: "/upper"},
		{Extension: ".pdf", Destination: "/second"},
	}}

	rule, ok := cfg.RuleFor(".pdf")
	require.True(t, ok)
	assert.Equal(t, "/first", rule.Destination)

	rule, ok = cfg.RuleFor(".PDF")
	require.True(t, ok)
	assert.Equal(t, "/upper", rule.Destination)

	_, ok = cfg.RuleFor(".Pdf")
	assert.False(t, ok)
}

func TestRenderRules(t *testing.T) {
	cfg := &Config{
		WatchRoot: "/tmp/in",
		Valid:     true,
		Rules:     []Rule{{Extension: ".pdf", Destination: "/tmp/out/docs"}},
		Exclude:   []string{"*.part"},
	}

	var buf bytes.Buffer
	RenderRules(&buf, cfg)

	out := buf.String()
	assert.Contains(t, out, "/tmp/in")
	assert.Contains(t, out, ".pdf")
	assert.Contains(t, out, "/tmp/out/docs")
	assert.Contains(t, out, "*.part")
	assert.NotContains(t, out, "*.PART", "patterns are case-sensitive and printed as written")
}
