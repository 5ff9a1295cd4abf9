package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileSinkConfig configures the file sink.
type FileSinkConfig struct {
	// Path is the live log file. Rotated files sit next to it with a
	// timestamp suffix.
	Path string

	// MaxSize is the rotation threshold in bytes (default 100MB).
	MaxSize int64

	// MaxBackups is how many rotated files to keep (default 10).
	MaxBackups int
}

// FileSink appends events as newline-delimited JSON to a file,
// rotating it by size. It also implements Store by scanning the live
// file, which serves deployments that run without a database audit
// table.
type FileSink struct {
	path       string
	maxSize    int64
	maxBackups int

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// NewFileSink opens (or creates) the log file at cfg.Path.
func NewFileSink(cfg FileSinkConfig) (*FileSink, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit file path is required")
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 100 * 1024 * 1024
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 10
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit log directory: %w", err)
		}
	}

	sink := &FileSink{
		path:       cfg.Path,
		maxSize:    cfg.MaxSize,
		maxBackups: cfg.MaxBackups,
	}
	if err := sink.open(); err != nil {
		return nil, err
	}
	return sink, nil
}

func (s *FileSink) open() error {
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	s.file = file
	s.encoder = json.NewEncoder(file)
	return nil
}

// Write appends the event, rotating first if the file is at the size
// threshold.
func (s *FileSink) Write(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return errors.New("audit file sink is closed")
	}

	if info, err := s.file.Stat(); err == nil && info.Size() >= s.maxSize {
		if err := s.rotate(); err != nil {
			return fmt.Errorf("failed to rotate audit log: %w", err)
		}
	}

	if err := s.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// rotate renames the live file with a timestamp suffix and opens a
// fresh one. Caller holds mu.
func (s *FileSink) rotate() error {
	if err := s.file.Close(); err != nil {
		return err
	}
	s.file = nil

	timestamp := time.Now().UTC().Format("2006-01-02-15-04-05")
	if err := os.Rename(s.path, s.backupName(timestamp)); err != nil {
		return err
	}

	s.cleanupBackups()
	return s.open()
}

func (s *FileSink) backupName(timestamp string) string {
	ext := filepath.Ext(s.path)
	return strings.TrimSuffix(s.path, ext) + "-" + timestamp + ext
}

// cleanupBackups deletes the oldest rotated files beyond MaxBackups.
// The timestamp suffix sorts lexicographically in time order.
func (s *FileSink) cleanupBackups() {
	ext := filepath.Ext(s.path)
	pattern := strings.TrimSuffix(s.path, ext) + "-*" + ext
	backups, err := filepath.Glob(pattern)
	if err != nil || len(backups) <= s.maxBackups {
		return
	}
	sort.Strings(backups)
	for _, old := range backups[:len(backups)-s.maxBackups] {
		if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "failed to remove old audit log %s: %v\n", old, err)
		}
	}
}

// Search scans the live file and filters in memory, newest first.
// Rotated backups are not consulted.
func (s *FileSink) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	all, err := s.readAll()
	if err != nil {
		return nil, err
	}

	// File order is oldest first; walk backwards for newest first.
	matched := make([]*Event, 0)
	skipped := 0
	for i := len(all) - 1; i >= 0; i-- {
		if !filter.matches(all[i]) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		matched = append(matched, all[i])
		if filter.Limit > 0 && len(matched) >= filter.Limit {
			break
		}
	}
	return matched, nil
}

// Prune is a no-op for the file sink; rotation bounds disk use.
func (s *FileSink) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

func (s *FileSink) readAll() ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var events []*Event
	decoder := json.NewDecoder(file)
	for {
		var event Event
		if err := decoder.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode audit log entry: %w", err)
		}
		events = append(events, &event)
	}
	return events, nil
}

// ReadEvents returns up to count events from the live file in write
// order. count <= 0 means all.
func (s *FileSink) ReadEvents(count int) ([]*Event, error) {
	events, err := s.readAll()
	if err != nil {
		return nil, err
	}
	if count > 0 && len(events) > count {
		events = events[:count]
	}
	return events, nil
}

// Close closes the live file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
