package storage

import "errors"

// ErrNoSnapshot is returned when no ledger snapshot has been saved yet
var ErrNoSnapshot = errors.New("no ledger snapshot found")
