// Package logging installs the tint slog handler used by every binary.
package logging

import (
	"fmt"
	"io"
	log "log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

// ParseLevel accepts debug, info, warn and error; empty means info.
func ParseLevel(s string) (log.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return log.LevelInfo, nil
	}
	if l, ok := logLevelMap[s]; ok {
		return l, nil
	}
	if s == "warning" {
		return log.LevelWarn, nil
	}
	return log.LevelInfo, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
}

func New(w io.Writer, level log.Level, color bool) *log.Logger {
	return log.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    !color,
	}))
}

// Setup installs a tint logger on w as the default logger.
func Setup(w io.Writer, level string) (*log.Logger, error) {
	l, err := ParseLevel(level)
	logger := New(w, l, isTerminal(w))
	log.SetDefault(logger)
	return logger, err
}

// OpenFile opens path for appending, creating its directory.
func OpenFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
