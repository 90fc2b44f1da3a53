package storage

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
)

// MockStorage implements Interface in memory for testing
type MockStorage struct {
	mu            sync.Mutex
	saveError     error
	loadError     error
	data          []byte
	saveCallCount int
	loadCallCount int
}

// NewMockStorage creates a new mock storage for testing
func NewMockStorage() *MockStorage {
	return &MockStorage{}
}

// Save stores a deep copy of the snapshot.
func (m *MockStorage) Save(snap *models.LedgerSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCallCount++
	if m.saveError != nil {
		return m.saveError
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	m.data = data
	return nil
}

// Load returns a deep copy of the last saved snapshot.
func (m *MockStorage) Load() (*models.LedgerSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCallCount++
	if m.loadError != nil {
		return nil, m.loadError
	}
	if m.data == nil {
		return nil, ErrNoSnapshot
	}
	var snap models.LedgerSnapshot
	if err := json.Unmarshal(m.data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snap, nil
}

// SetSaveError makes subsequent Save calls fail
func (m *MockStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

// SetLoadError makes subsequent Load calls fail
func (m *MockStorage) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadError = err
}

// GetSaveCallCount returns the number of times Save was called
func (m *MockStorage) GetSaveCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCallCount
}

// GetLoadCallCount returns the number of times Load was called
func (m *MockStorage) GetLoadCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCallCount
}
