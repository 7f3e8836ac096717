package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/fairscan/internal/analysis"
	"github.com/ZanzyTHEbar/fairscan/internal/encoding"
)

// StorageTypeLocalFile tags records written by this store
const StorageTypeLocalFile = "local_file"

// StoredRecord is an analysis record plus the storage metadata added when
// the audit copy is written. The embedded record, including the verbatim
// input text, is never modified on the way to disk.
type StoredRecord struct {
	analysis.AnalysisRecord
	StoredAt    string `json:"stored_at"`
	StorageType string `json:"storage_type"`
}

// Store is the flat JSON-file audit record store: one file per record,
// keyed by analysis id. It is the record of truth; the SQLite index is a
// derived view.
type Store struct {
	baseDir string
}

// NewStore creates the store, ensuring the base directory exists
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// BaseDir returns the directory records are written to
func (s *Store) BaseDir() string { return s.baseDir }

// Put writes the record as {baseDir}/{analysis_id}.json and returns the
// absolute file path.
func (s *Store) Put(record *analysis.AnalysisRecord) (string, error) {
	stored := StoredRecord{
		AnalysisRecord: *record,
		StoredAt:       time.Now().UTC().Format(time.RFC3339),
		StorageType:    StorageTypeLocalFile,
	}

	data, err := encoding.MarshalJSONIndent(stored, "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode audit record: %w", err)
	}

	path := s.pathFor(record.AnalysisID)

	// Write-then-rename so a crashed write never leaves a torn record
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write audit record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize audit record: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}

// Get reads one stored record by analysis id. os.ErrNotExist surfaces
// unchanged so callers can map it to a 404.
func (s *Store) Get(analysisID string) (*StoredRecord, error) {
	data, err := os.ReadFile(s.pathFor(analysisID))
	if err != nil {
		return nil, err
	}

	var record StoredRecord
	if err := encoding.UnmarshalJSON(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode audit record %s: %w", analysisID, err)
	}

	return &record, nil
}

// Exists reports whether a record file is present for the id
func (s *Store) Exists(analysisID string) bool {
	_, err := os.Stat(s.pathFor(analysisID))
	return err == nil
}

// Delete removes a stored record. Returns os.ErrNotExist when absent.
func (s *Store) Delete(analysisID string) error {
	return os.Remove(s.pathFor(analysisID))
}

// List reads every stored record, newest first by timestamp, up to limit.
// Unreadable files are skipped, not fatal: a single corrupt record must not
// take down the listing.
func (s *Store) List(limit int) ([]*StoredRecord, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit directory: %w", err)
	}

	records := []*StoredRecord{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		record, err := s.Get(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	return records, nil
}

// DeleteOlderThan removes every record whose stored_at is before the
// cutoff, returning how many files were deleted. Used by retention cleanup.
func (s *Store) DeleteOlderThan(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read audit directory: %w", err)
	}

	cutoffStr := cutoff.UTC().Format(time.RFC3339)
	deleted := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".json")
		record, err := s.Get(id)
		if err != nil {
			continue
		}

		if record.StoredAt < cutoffStr {
			if err := s.Delete(id); err == nil {
				deleted++
			}
		}
	}

	return deleted, nil
}

func (s *Store) pathFor(analysisID string) string {
	// The id is a generated UUID, but never trust it as a path component
	return filepath.Join(s.baseDir, filepath.Base(analysisID)+".json")
}
