package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mattn/go-isatty"
	log "github.com/sirupsen/logrus"
)

// Formats accepted by Setup.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// ParseLevel maps the --log-level values onto logrus levels.
// Unknown values fall back to info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// NewFormatter picks the formatter for out. Auto uses text on a terminal
// and JSON everywhere else (journald, log files).
func NewFormatter(format string, out io.Writer) (log.Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatAuto:
		if isTerminal(out) {
			return textFormatter(), nil
		}
		return &log.JSONFormatter{}, nil
	case FormatText:
		return textFormatter(), nil
	case FormatJSON:
		return &log.JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want %s, %s or %s)", format, FormatAuto, FormatText, FormatJSON)
	}
}

// Setup configures the standard logrus logger.
func Setup(level, format string, out io.Writer) error {
	formatter, err := NewFormatter(format, out)
	if err != nil {
		return err
	}
	log.SetOutput(out)
	log.SetFormatter(formatter)
	log.SetLevel(ParseLevel(level))
	log.SetReportCaller(log.GetLevel() == log.DebugLevel)
	return nil
}

func textFormatter() *log.TextFormatter {
	return &log.TextFormatter{
		FullTimestamp: true,
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
		},
	}
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
