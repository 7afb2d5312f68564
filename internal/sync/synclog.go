package sync

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	gosync "sync"
)

// SyncLogStore is the append-only record of the last-known synced state per
// decrypted path; entries are only ever appended, and no operation rewrites
// or replaces the file. It is loaded fully into
// memory on open; find_by_decr_file_name is served from an index so the
// matcher can join against it without rescanning the log.
type SyncLogStore struct {
	path   string
	logger *slog.Logger

	mu        gosync.Mutex
	entries   []SyncLogEntry
	byName    map[string]int // decr_file_name -> index of most recent entry
	nameOrder []string       // decr_file_name, in first-seen order
	file      *os.File       // append handle, kept open between Add calls
}

// OpenSyncLog loads the log at path into memory (creating an empty log if
// the file does not exist yet) and keeps an append handle open for Add.
func OpenSyncLog(path string, logger *slog.Logger) (*SyncLogStore, error) {
	s := &SyncLogStore{path: path, logger: logger}

	if err := s.reload(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating sync log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening sync log for append: %w", err)
	}

	s.file = f

	return s, nil
}

// reload re-reads the log from disk and rebuilds the decr_file_name index,
// taking the last occurrence per name. A truncated final line (left by a
// crash mid-append) is logged and skipped rather than failing the load.
func (s *SyncLogStore) reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.entries = nil
			s.byName = make(map[string]int)

			return nil
		}

		return fmt.Errorf("opening sync log: %w", err)
	}
	defer f.Close()

	var entries []SyncLogEntry

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry SyncLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			s.logger.Warn("skipping unparsable sync log line", "error", err)
			continue
		}

		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		s.logger.Warn("sync log read stopped early, truncated tail dropped", "error", err)
	}

	index := make(map[string]int, len(entries))
	order := make([]string, 0, len(entries))

	for i, e := range entries {
		if _, seen := index[e.DecrFileName]; !seen {
			order = append(order, e.DecrFileName)
		}

		index[e.DecrFileName] = i
	}

	s.entries = entries
	s.byName = index
	s.nameOrder = order

	return nil
}

// Reload is the exported form of reload, used by Engine.Reset.
func (s *SyncLogStore) Reload() error {
	return s.reload()
}

// Add appends entry to the log, both in memory and on disk (write then
// fsync), and updates the decr_file_name index to point at it.
func (s *SyncLogStore) Add(entry SyncLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding sync log entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data = append(data, '\n')

	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("appending sync log entry: %w", err)
	}

	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("fsyncing sync log: %w", err)
	}

	if _, seen := s.byName[entry.DecrFileName]; !seen {
		s.nameOrder = append(s.nameOrder, entry.DecrFileName)
	}

	s.entries = append(s.entries, entry)
	s.byName[entry.DecrFileName] = len(s.entries) - 1

	return nil
}

// FindByDecrFileName returns the most recent log entry recorded for name,
// if any.
func (s *SyncLogStore) FindByDecrFileName(name string) (SyncLogEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byName[name]
	if !ok {
		return SyncLogEntry{}, false
	}

	return s.entries[idx], true
}

// LatestEntries returns the most recent log entry per decr_file_name, in
// first-seen order. This is what the matcher seeds PreSync records from —
// the log's append history collapses to one logical record per name.
func (s *SyncLogStore) LatestEntries() []SyncLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SyncLogEntry, 0, len(s.nameOrder))

	for _, name := range s.nameOrder {
		out = append(out, s.entries[s.byName[name]])
	}

	return out
}

// Close flushes and releases the append handle.
func (s *SyncLogStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	err := s.file.Close()
	s.file = nil

	return err
}
