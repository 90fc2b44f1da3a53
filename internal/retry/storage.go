// Package retry retries ledger persistence on transient filesystem errors.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
	"github.com/bryan01993/QuantConnectProjectGit/internal/storage"
)

type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
	Timeout:        10 * time.Second,
}

// Storage wraps a storage.Interface and retries failed calls whose error
// looks transient. It satisfies storage.Interface itself.
type Storage struct {
	store  storage.Interface
	logger *logrus.Entry
	config Config
}

var _ storage.Interface = (*Storage)(nil)

func NewStorage(store storage.Interface, logger logrus.FieldLogger, config ...Config) *Storage {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultConfig.InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Storage{
		store:  store,
		logger: logger.WithField("component", "storage_retry"),
		config: cfg,
	}
}

// Save saves snap, retrying transient failures.
func (s *Storage) Save(snap *models.LedgerSnapshot) error {
	return s.do("save", func() error {
		return s.store.Save(snap)
	})
}

// Load loads the stored snapshot, retrying transient failures. ErrNoSnapshot
// is returned as is.
func (s *Storage) Load() (*models.LedgerSnapshot, error) {
	var snap *models.LedgerSnapshot
	err := s.do("load", func() error {
		var err error
		snap, err = s.store.Load()
		return err
	})
	return snap, err
}

func (s *Storage) do(op string, fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := s.config.InitialBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				s.logger.WithFields(logrus.Fields{"op": op, "attempt": attempt + 1}).Info("Storage operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !IsTransient(err) || attempt == s.config.MaxRetries {
			break
		}
		s.logger.WithError(err).WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt + 1,
			"backoff": backoff,
		}).Warn("Transient storage error, retrying")

		select {
		case <-time.After(backoff):
			backoff = s.nextBackoff(backoff)
		case <-ctx.Done():
			return fmt.Errorf("storage %s timed out during backoff: %w", op, lastErr)
		}
	}

	if s.config.MaxRetries > 0 && IsTransient(lastErr) {
		return fmt.Errorf("storage %s failed after %d attempts: %w", op, s.config.MaxRetries+1, lastErr)
	}
	return lastErr
}

func (s *Storage) nextBackoff(current time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > s.config.MaxBackoff {
		backoff = s.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			s.logger.WithError(err).Debug("Failed to generate jitter")
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}
	return backoff
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, storage.ErrNoSnapshot) {
		return false
	}
	if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.EINTR) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"temporarily unavailable",
		"resource busy",
		"interrupted system call",
		"timeout",
		"text file busy",
		"too many open files",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
