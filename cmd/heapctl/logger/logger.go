// Package logger owns the heapctl process logger.
//
// Allocator events are routed through L, which the allocator receives at
// construction. Until Init runs, L discards everything.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// L is the process logger.
var L = discard()

const (
	logPrefix     = "heapctl-"
	logSuffix     = ".log"
	retentionDays = 30
)

// Options selects where log records go and how chatty they are.
type Options struct {
	Disabled bool      // drop every record
	Verbose  bool      // include debug records (allocator grow/shrink/split)
	Quiet    bool      // errors only; wins over Verbose
	LogDir   string    // write JSON to a dated file here instead of Output
	Output   io.Writer // text destination when LogDir is empty, default os.Stderr
}

// Level is the minimum level Init installs for opts.
func (opts Options) Level() slog.Level {
	switch {
	case opts.Quiet:
		return slog.LevelError
	case opts.Verbose:
		return slog.LevelDebug
	default:
		return slog.LevelWarn
	}
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

// Init replaces L according to opts.
func Init(opts Options) error {
	if opts.Disabled {
		L = discard()
		return nil
	}
	ho := &slog.HandlerOptions{Level: opts.Level()}

	if opts.LogDir == "" {
		out := opts.Output
		if out == nil {
			out = os.Stderr
		}
		L = slog.New(slog.NewTextHandler(out, ho))
		return nil
	}

	f, err := openDated(opts.LogDir, time.Now())
	if err != nil {
		return err
	}
	L = slog.New(slog.NewJSONHandler(f, ho))
	return nil
}

// openDated prunes expired files in dir and opens today's file for append.
func openDated(dir string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	cleanOldLogs(dir, now)
	name := filepath.Join(dir, logPrefix+now.Format(time.DateOnly)+logSuffix)
	return os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

// logDate extracts the day from a heapctl-YYYY-MM-DD.log name.
func logDate(name string) (time.Time, bool) {
	day, ok := strings.CutPrefix(name, logPrefix)
	if !ok {
		return time.Time{}, false
	}
	day, ok = strings.CutSuffix(day, logSuffix)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, day)
	return t, err == nil
}

// cleanOldLogs best-effort removes dated logs older than retentionDays.
func cleanOldLogs(dir string, now time.Time) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	for _, e := range entries {
		if d, ok := logDate(e.Name()); ok && d.Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
}
