// Package history keeps a capped, newest-first record of scripts sent to the
// executor, persisted as a JSON array.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxItems caps the history when the store is created without a limit.
const DefaultMaxItems = 100

// Record is a single execution outcome. Timestamp is Unix milliseconds.
type Record struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Content   string `json:"content"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// NewRecord builds a record for content stamped with a fresh ID and the
// current time. A nil err means success.
func NewRecord(content string, err error) Record {
	r := Record{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Content:   content,
		Success:   err == nil,
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// Path is the JSON file backing the store. Empty keeps history in memory.
	Path string

	// MaxItems caps the number of records kept.
	MaxItems int

	// SaveInterval debounces writes after Add and Clear.
	SaveInterval time.Duration

	Logger *zap.Logger
}

// Store holds execution records.
type Store struct {
	path     string
	maxItems int
	logger   *zap.Logger

	mu      sync.RWMutex
	records []Record

	// Debounce saves to avoid excessive disk writes
	saveTimer    *time.Timer
	saveInterval time.Duration
	pendingSave  bool
	closed       bool
}

// NewStore creates a store and loads any existing history from disk.
// A missing file is normal; a corrupt one is logged and replaced on next save.
func NewStore(config StoreConfig) *Store {
	if config.MaxItems <= 0 {
		config.MaxItems = DefaultMaxItems
	}
	if config.SaveInterval <= 0 {
		config.SaveInterval = time.Second
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	s := &Store{
		path:         config.Path,
		maxItems:     config.MaxItems,
		logger:       config.Logger.Named("history"),
		saveInterval: config.SaveInterval,
	}
	if err := s.Load(); err != nil {
		s.logger.Warn("ignoring unreadable history", zap.String("path", s.path), zap.Error(err))
	}
	return s
}

// Load replaces the in-memory history with the file's contents.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read history file: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to parse history file: %w", err)
	}
	if len(records) > s.maxItems {
		records = records[:s.maxItems]
	}
	s.records = records
	return nil
}

// Add prepends r, drops the oldest records beyond the cap, and schedules a save.
func (s *Store) Add(r Record) {
	s.mu.Lock()
	s.records = append([]Record{r}, s.records...)
	if len(s.records) > s.maxItems {
		s.records = s.records[:s.maxItems]
	}
	s.scheduleSaveLocked()
	s.mu.Unlock()
}

// List returns a copy of the records, newest first. A limit of zero or less
// returns all of them.
func (s *Store) List(limit int) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Record, n)
	copy(out, s.records[:n])
	return out
}

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Clear drops every record and writes an empty history.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.stopTimerLocked()
	s.pendingSave = false
	return s.saveLocked()
}

// Save writes the history to disk now.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimerLocked()
	s.pendingSave = false
	return s.saveLocked()
}

// Close flushes a pending save. Adds after Close are kept in memory only.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimerLocked()
	s.closed = true
	if !s.pendingSave {
		return nil
	}
	s.pendingSave = false
	return s.saveLocked()
}

func (s *Store) scheduleSaveLocked() {
	if s.path == "" || s.closed {
		return
	}
	s.pendingSave = true
	s.stopTimerLocked()
	s.saveTimer = time.AfterFunc(s.saveInterval, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.pendingSave {
			return
		}
		s.pendingSave = false
		if err := s.saveLocked(); err != nil {
			s.logger.Warn("history save failed", zap.Error(err))
		}
	})
}

func (s *Store) stopTimerLocked() {
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
}

// saveLocked writes the history atomically via a temp file.
func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}

	records := s.records
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename history file: %w", err)
	}
	return nil
}
