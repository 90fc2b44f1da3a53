package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
)

// JSONStorage keeps one ledger snapshot in a JSON file.
type JSONStorage struct {
	mu       sync.RWMutex
	filepath string
}

// NewJSONStorage creates a JSON storage at path, creating its directory.
func NewJSONStorage(path string) (*JSONStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &JSONStorage{filepath: path}, nil
}

// Path returns the snapshot file path.
func (s *JSONStorage) Path() string {
	return s.filepath
}

// Load reads the snapshot file.
func (s *JSONStorage) Load() (*models.LedgerSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.filepath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snap models.LedgerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snap, nil
}

// Save writes the snapshot atomically.
func (s *JSONStorage) Save(snap *models.LedgerSnapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	// Write to temp file first
	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpFile, s.filepath); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}
