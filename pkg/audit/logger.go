package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"github.com/newtron-network/routevnf/pkg/util"
)

// maxLineSize bounds one encoded batch; a full-table clear can carry
// thousands of routes on a single line.
const maxLineSize = 16 << 20

// Logger stores and queries audit events.
type Logger interface {
	Log(event *Event) error
	Query(filter Filter) ([]*Event, error)
	Close() error
}

// RotationConfig controls when the log is rotated. MaxSize zero never
// rotates. MaxBackups is the number of rotated files kept as path.1
// (newest) through path.N; zero keeps none.
type RotationConfig struct {
	MaxSize    int64
	MaxBackups int
}

// FileLogger appends one JSON line per event.
type FileLogger struct {
	mu       sync.Mutex
	path     string
	rotation RotationConfig
	file     *os.File
	size     int64
}

// NewFileLogger opens (or creates) the audit log at path.
func NewFileLogger(path string, rotation RotationConfig) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("audit: creating log directory: %w", err)
	}
	l := &FileLogger{path: path, rotation: rotation}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) open() error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("audit: opening log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("audit: %w", err)
	}
	l.file, l.size = f, info.Size()
	return nil
}

// Log appends event. The log is rotated first when the line would push
// a non-empty file past MaxSize, so a batch never straddles two files.
func (l *FileLogger) Log(event *Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: encoding event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return errors.New("audit: log is closed")
	}
	if limit := l.rotation.MaxSize; limit > 0 && l.size > 0 && l.size+int64(len(line)) > limit {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("audit: rotating log: %w", err)
		}
	}
	n, err := l.file.Write(line)
	l.size += int64(n)
	return err
}

// Query returns the matching events oldest first. Rotated files are read
// before the live one, so a query spans the whole retained history.
func (l *FileLogger) Query(filter Filter) ([]*Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var events []*Event
	for _, path := range l.files() {
		err := scanEvents(path, func(e *Event) {
			if filter.Match(e) {
				events = append(events, e)
			}
		})
		if err != nil {
			return nil, err
		}
	}
	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[len(events)-filter.Limit:]
	}
	return events, nil
}

// Close closes the log file.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Match reports whether e passes every criterion set in f.
func (f Filter) Match(e *Event) bool {
	switch {
	case f.Operation != "" && e.Operation != f.Operation:
		return false
	case f.Route != "" && !e.HasRoute(f.Route):
		return false
	case !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime):
		return false
	case !f.EndTime.IsZero() && e.Timestamp.After(f.EndTime):
		return false
	case f.SuccessOnly && !e.Success:
		return false
	case f.FailureOnly && e.Success:
		return false
	}
	return true
}

// scanEvents calls fn for every decodable line of path. A missing file
// holds no events.
func scanEvents(path string, fn func(*Event)) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("audit: opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for lineno := 1; scanner.Scan(); lineno++ {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			util.Warnf("audit: skipping %s:%d: %v", path, lineno, err)
			continue
		}
		fn(&e)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("audit: reading %s: %w", path, err)
	}
	return nil
}

func (l *FileLogger) backup(n int) string {
	return l.path + "." + strconv.Itoa(n)
}

// files lists the existing backups oldest first, then the live log.
func (l *FileLogger) files() []string {
	var backups []string
	for n := 1; ; n++ {
		if _, err := os.Stat(l.backup(n)); err != nil {
			break
		}
		backups = append(backups, l.backup(n))
	}
	slices.Reverse(backups)
	return append(backups, l.path)
}

// rotate moves the live file to path.1, shifting older backups up and
// dropping those past MaxBackups. Caller holds l.mu.
func (l *FileLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	l.file = nil

	keep := l.rotation.MaxBackups
	for n := len(l.files()) - 1; n >= keep && n > 0; n-- {
		if err := os.Remove(l.backup(n)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	if keep == 0 {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return l.open()
	}
	for n := keep - 1; n >= 1; n-- {
		if err := os.Rename(l.backup(n), l.backup(n+1)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	if err := os.Rename(l.path, l.backup(1)); err != nil {
		return err
	}
	return l.open()
}

// Summary totals a set of audit events.
type Summary struct {
	Batches  int `json:"batches"`
	Created  int `json:"created"`
	Deleted  int `json:"deleted"`
	Clears   int `json:"clears"`
	Failures int `json:"failures"`
}

// Summarize counts the routes created and deleted by successful batches
// and the number of failed ones.
func Summarize(events []*Event) Summary {
	var s Summary
	for _, e := range events {
		s.Batches++
		if !e.Success {
			s.Failures++
			continue
		}
		switch e.Operation {
		case OpCreate:
			s.Created += e.Count
		case OpDelete:
			s.Deleted += e.Count
		case OpClear:
			s.Clears++
		}
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%d batches: %d routes created, %d deleted, %d clears, %d failed",
		s.Batches, s.Created, s.Deleted, s.Clears, s.Failures)
}
