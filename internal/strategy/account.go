package strategy

import (
	"sync"

	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
)

// AccountProvider exposes the read-only portfolio state used for sizing.
type AccountProvider interface {
	Snapshot() models.AccountSnapshot
}

// StaticAccount is an AccountProvider holding a snapshot that can be replaced.
type StaticAccount struct {
	mu   sync.RWMutex
	snap models.AccountSnapshot
}

// NewStaticAccount creates a StaticAccount.
func NewStaticAccount(snap models.AccountSnapshot) *StaticAccount {
	return &StaticAccount{snap: snap}
}

// Snapshot implements AccountProvider.
func (a *StaticAccount) Snapshot() models.AccountSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap
}

// Update replaces the snapshot.
func (a *StaticAccount) Update(snap models.AccountSnapshot) {
	a.mu.Lock()
	a.snap = snap
	a.mu.Unlock()
}
