// Package storage persists ledger snapshots.
package storage

import (
	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
)

// Interface defines the contract for ledger snapshot persistence.
//
// Implementations must be safe for concurrent use - callers can assume all methods
// are goroutine-safe and can safely call these methods from multiple goroutines.
type Interface interface {
	// Save replaces the stored snapshot.
	Save(snap *models.LedgerSnapshot) error
	// Load returns the stored snapshot, or ErrNoSnapshot.
	Load() (*models.LedgerSnapshot, error)
}

// NewStorage creates a new storage implementation (currently JSON-based)
func NewStorage(filepath string) (Interface, error) {
	return NewJSONStorage(filepath)
}

// Ensure implementations satisfy Interface
var (
	_ Interface = (*JSONStorage)(nil)
	_ Interface = (*MockStorage)(nil)
)
