// Package eventlog implements the gateway's rolling event log: a plain
// text log.txt that rotates to log.bak once it passes a size threshold.
package eventlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// maxSize is the rotation threshold: once log.txt reaches this many
// bytes, it is renamed to log.bak (replacing any previous backup) and a
// fresh log.txt is started.
const maxSize = 1_000_000

// Log is a single rolling event-log file, safe for concurrent use. It
// implements io.Writer so it can be plugged in directly as a logrus
// output target.
type Log struct {
	mu      sync.Mutex
	path    string
	bakPath string
	f       *os.File
	size    int64
}

// Open opens (or creates) log.txt under dir, picking up the existing
// file's size so rotation still triggers at the right point across a
// restart.
func Open(dir string) (*Log, error) {
	path := filepath.Join(dir, "log.txt")
	bakPath := filepath.Join(dir, "log.bak")

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("eventlog: create dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("eventlog: stat %s: %w", path, err)
	}

	return &Log{path: path, bakPath: bakPath, f: f, size: info.Size()}, nil
}

// Printf appends one formatted, timestamped line to the log, rotating
// first if the previous write already crossed the size threshold.
func (l *Log) Printf(format string, args ...any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.size >= maxSize {
		if err := l.rotateLocked(); err != nil {
			return err
		}
	}

	line := fmt.Sprintf("%s %s\n", time.Now().Format(time.RFC3339), fmt.Sprintf(format, args...))
	n, err := l.f.WriteString(line)
	l.size += int64(n)
	if err != nil {
		return fmt.Errorf("eventlog: write: %w", err)
	}
	return nil
}

// Write implements io.Writer, rotating first if needed, so a logrus
// logger can target a Log directly via SetOutput.
func (l *Log) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.size >= maxSize {
		if err := l.rotateLocked(); err != nil {
			return 0, err
		}
	}
	n, err := l.f.Write(p)
	l.size += int64(n)
	return n, err
}

// rotateLocked renames the current log.txt to log.bak (replacing any
// existing backup) and opens a fresh, empty log.txt. Caller holds mu.
func (l *Log) rotateLocked() error {
	if err := l.f.Close(); err != nil {
		return fmt.Errorf("eventlog: close before rotate: %w", err)
	}
	if err := os.Rename(l.path, l.bakPath); err != nil {
		return fmt.Errorf("eventlog: rotate rename: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("eventlog: reopen after rotate: %w", err)
	}
	l.f = f
	l.size = 0
	return nil
}

// Size reports the current log.txt size in bytes.
func (l *Log) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Tail reads up to n bytes from the end of the current log.txt, for the
// diagnostics surface's log endpoint.
func (l *Log) Tail(n int64) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.f.Sync(); err != nil {
		return nil, fmt.Errorf("eventlog: sync before tail: %w", err)
	}

	info, err := os.Stat(l.path)
	if err != nil {
		return nil, fmt.Errorf("eventlog: stat for tail: %w", err)
	}

	start := info.Size() - n
	if start < 0 {
		start = 0
	}

	rf, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open for tail: %w", err)
	}
	defer rf.Close()

	if _, err := rf.Seek(start, os.SEEK_SET); err != nil {
		return nil, fmt.Errorf("eventlog: seek for tail: %w", err)
	}
	buf := make([]byte, info.Size()-start)
	if _, err := rf.Read(buf); err != nil {
		return nil, fmt.Errorf("eventlog: read tail: %w", err)
	}
	return buf, nil
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
