// Package rawlog implements the append-only raw-data capture each listener
// owns, rotated by date or by hour. Lines are written as the caller formats
// them; rawlog adds no timestamp of its own. Each listener gets its own file
// under data/<listener-name>/; no cross-listener file sharing.
package rawlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Granularity selects the rotation boundary.
type Granularity int

const (
	// GranularityDaily rotates the capture file at local-midnight boundaries.
	GranularityDaily Granularity = iota
	// GranularityHourly rotates the capture file at the top of each hour.
	GranularityHourly
)

// Logger appends lines to a rotated capture file. The zero value is not
// usable; construct with NewLogger. Safe for concurrent use, though in
// practice each listener owns exactly one Logger and calls it from its own
// goroutine.
type Logger struct {
	dir         string
	granularity Granularity

	mu      sync.Mutex
	file    *os.File
	current string
}

// NewLogger creates a logger that writes under baseDir/name/, rotating
// daily. Callers that want hourly rotation (the GNSS raw NMEA capture)
// should use NewLoggerWithGranularity.
func NewLogger(baseDir, name string) *Logger {
	return NewLoggerWithGranularity(baseDir, name, GranularityDaily)
}

// NewLoggerWithGranularity is NewLogger with an explicit rotation boundary.
func NewLoggerWithGranularity(baseDir, name string, g Granularity) *Logger {
	return &Logger{
		dir:         filepath.Join(baseDir, name),
		granularity: g,
	}
}

func (l *Logger) boundaryPath(now time.Time) string {
	var stamp string
	switch l.granularity {
	case GranularityHourly:
		stamp = now.Format("2006-01-02_15")
	default:
		stamp = now.Format("2006-01-02")
	}
	return filepath.Join(l.dir, stamp+".log")
}

// Append writes one line (caller-formatted; rawlog does not impose a
// schema) to the current capture file, rotating first if the rotation
// boundary has passed. The file handle stays open across calls rather
// than being reopened per line.
func (l *Logger) Append(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.boundaryPath(time.Now())
	if path != l.current {
		if err := l.rotateLocked(path); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintln(l.file, line); err != nil {
		return fmt.Errorf("rawlog: write %s: %w", l.current, err)
	}
	return nil
}

func (l *Logger) rotateLocked(path string) error {
	if l.file != nil {
		_ = l.file.Close()
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("rawlog: mkdir %s: %w", l.dir, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("rawlog: open %s: %w", path, err)
	}
	l.file = f
	l.current = path
	return nil
}

// Close closes the current capture file, if one is open. Idempotent.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.current = ""
	return err
}
