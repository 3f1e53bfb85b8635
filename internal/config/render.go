package config

import (
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RenderRules writes the watch root and rule table of cfg to w.
func RenderRules(w io.Writer, cfg *Config) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	// Exclude patterns are case-sensitive globs; print them as written.
	t.Style().Format.Footer = text.FormatDefault
	t.SetTitle("Watching %s", cfg.WatchRoot)
	t.AppendHeader(table.Row{"#", "Extension", "Destination"})
	for i, rule := range cfg.Rules {
		t.AppendRow(table.Row{i + 1, rule.Extension, rule.Destination})
	}
	if len(cfg.Exclude) > 0 {
		t.AppendFooter(table.Row{"", "Exclude", strings.Join(cfg.Exclude, ", ")})
	}
	t.Render()
}
