// Package orders applies execution events to strategy ledgers.
package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bryan01993/QuantConnectProjectGit/internal/ledger"
	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
	"github.com/bryan01993/QuantConnectProjectGit/internal/monitoring"
)

var (
	// ErrUnknownStrategy is returned for events addressed to a strategy without a ledger.
	ErrUnknownStrategy = errors.New("unknown strategy")
	// ErrUnknownEvent is returned for unsupported event types.
	ErrUnknownEvent = errors.New("unknown execution event")
	// ErrNotPersisted is returned when an event was applied to the ledger in
	// memory but saving the ledger failed. The next successful save catches up.
	ErrNotPersisted = errors.New("event applied but ledger not persisted")
)

// Config contains configuration for the tracker.
type Config struct {
	PollInterval time.Duration
	Clock        func() time.Time
}

// DefaultConfig is the default configuration for the tracker.
var DefaultConfig = Config{
	PollInterval: 30 * time.Second,
}

// Tracker routes execution events to the ledger of the strategy that owns
// the order and cancels limit orders past their expiry.
type Tracker struct {
	ledgers map[string]*ledger.Ledger
	metrics *monitoring.Metrics
	logger  *logrus.Entry
	config  Config
}

// NewTracker creates a tracker over ledgers, keyed by strategy name.
func NewTracker(ledgers []*ledger.Ledger, metrics *monitoring.Metrics, logger logrus.FieldLogger, config ...Config) *Tracker {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig.PollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	byName := make(map[string]*ledger.Ledger, len(ledgers))
	for _, l := range ledgers {
		byName[l.Strategy()] = l
	}
	return &Tracker{
		ledgers: byName,
		metrics: metrics,
		logger:  logger.WithField("component", "tracker"),
		config:  cfg,
	}
}

// Strategies returns the tracked strategy names, sorted.
func (t *Tracker) Strategies() []string {
	names := make([]string, 0, len(t.ledgers))
	for name := range t.ledgers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ledger returns the ledger of strategy.
func (t *Tracker) Ledger(strategy string) (*ledger.Ledger, bool) {
	l, ok := t.ledgers[strategy]
	return l, ok
}

// Apply applies one execution event to the strategy ledger and persists it.
// A fill is routed to the opening or closing side by the order's current state.
// A failed save returns ErrNotPersisted; the event stays applied.
func (t *Tracker) Apply(strategy string, ev models.ExecutionEvent) error {
	l, ok := t.ledgers[strategy]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStrategy, strategy)
	}
	at := ev.Time
	if at.IsZero() {
		at = t.config.Clock()
	}
	log := t.logger.WithFields(logrus.Fields{
		"strategy": strategy,
		"tag":      ev.Tag,
		"event":    ev.Type,
	})

	var err error
	switch ev.Type {
	case models.EventAccepted:
		err = l.Accept(ev.Tag, ev.BrokerRef)
	case models.EventFilled:
		err = t.applyFill(l, ev, at, log)
	case models.EventCancelled:
		err = l.Cancel(ev.Tag, at)
	case models.EventCloseSubmitted:
		err = l.SubmitClose(ev.Tag, ev.BrokerRef, ev.MidPrice)
	case models.EventCloseCancelled:
		err = l.CancelClose(ev.Tag)
	case models.EventStalePrice:
		err = l.MarkStalePrice(ev.Tag)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
	if err != nil {
		log.WithError(err).Warn("Execution event rejected")
		return err
	}

	t.metrics.RecordExecutionEvent(strategy, string(ev.Type))
	stats := l.Stats()
	t.metrics.SetLedgerGauges(strategy, stats.ActivePositions, stats.WorkingOrders)
	if err := l.Persist(); err != nil {
		log.WithError(err).Error("Failed to persist ledger")
		return fmt.Errorf("%w: %w", ErrNotPersisted, err)
	}
	log.Debug("Execution event applied")
	return nil
}

func (t *Tracker) applyFill(l *ledger.Ledger, ev models.ExecutionEvent, at time.Time, log *logrus.Entry) error {
	o, ok := l.Order(ev.Tag)
	if !ok {
		return fmt.Errorf("%w: %s", ledger.ErrUnknownOrder, ev.Tag)
	}

	var (
		done bool
		err  error
	)
	if o.GetCurrentState() == models.StateCloseWorking {
		done, err = l.FillClose(ev.Tag, ev.Fills, ev.FillPrice, at)
	} else {
		done, err = l.FillOpen(ev.Tag, ev.Fills, ev.FillPrice, at)
	}
	if err != nil {
		return err
	}
	if !done {
		log.WithField("fills", ev.Fills).Info("Partial fill")
	}
	return nil
}

// ExpireLimitOrders cancels every opening limit order past its expiry and
// returns the number cancelled.
func (t *Tracker) ExpireLimitOrders(now time.Time) int {
	cancelled := 0
	for _, name := range t.Strategies() {
		for _, tag := range t.ledgers[name].ExpiredLimitOrders(now) {
			err := t.Apply(name, models.ExecutionEvent{Time: now, Type: models.EventCancelled, Tag: tag})
			if err != nil {
				continue
			}
			t.logger.WithFields(logrus.Fields{"strategy": name, "tag": tag}).Info("Limit order expired")
			cancelled++
		}
	}
	return cancelled
}

// Run expires limit orders every PollInterval until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Debug("Tracker stopped")
			return
		case <-ticker.C:
			t.ExpireLimitOrders(t.config.Clock())
		}
	}
}
