// Package ledger tracks the orders and positions of one strategy instance:
// working orders, open positions, limit orders, recently closed expirations
// and the entry counters. It is the duplicate detector's source of truth.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bryan01993/QuantConnectProjectGit/internal/config"
	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
	"github.com/bryan01993/QuantConnectProjectGit/internal/storage"
)

// defaultRecentlyClosedCapacity bounds the recently-closed DTE FIFO.
const defaultRecentlyClosedCapacity = 10

// Config configures a Ledger.
type Config struct {
	Strategy               string
	RecentlyClosedCapacity int
	IncludeCancelledOrders bool
}

// Stats is a point-in-time view of the ledger counters.
type Stats struct {
	LastOpened        time.Time `json:"last_opened"`
	Orders            int       `json:"orders"`
	ActivePositions   int       `json:"active_positions"`
	WorkingOpenOrders int       `json:"working_open_orders"`
	WorkingOrders     int       `json:"working_orders"`
	LimitOrders       int       `json:"limit_orders"`
}

// Ledger is owned by one strategy instance. All methods are safe for
// concurrent use; Submit re-checks duplicates under the write lock so
// detect-then-register cannot race.
type Ledger struct {
	mu     sync.RWMutex
	cfg    Config
	store  storage.Interface
	logger logrus.FieldLogger

	orders          map[string]*models.OrderSpec
	sequence        []string
	working         map[string]map[string]models.WorkingLeg
	limitOrders     map[string]bool
	recentlyClosed  []int
	lastOpened      time.Time
	activePositions int
	workingOpen     int
}

// New creates an empty ledger. store may be nil when persistence is not needed.
func New(cfg Config, store storage.Interface, logger logrus.FieldLogger) *Ledger {
	if cfg.RecentlyClosedCapacity <= 0 {
		cfg.RecentlyClosedCapacity = defaultRecentlyClosedCapacity
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Ledger{
		cfg:         cfg,
		store:       store,
		logger:      logger.WithFields(logrus.Fields{"component": "ledger", "strategy": cfg.Strategy}),
		orders:      make(map[string]*models.OrderSpec),
		working:     make(map[string]map[string]models.WorkingLeg),
		limitOrders: make(map[string]bool),
	}
}

// Strategy returns the owning strategy name.
func (l *Ledger) Strategy() string {
	return l.cfg.Strategy
}

type candidateLeg struct {
	symbol string
	expiry string
	side   int
}

func candidatesFromLegs(legs []models.Leg) []candidateLeg {
	out := make([]candidateLeg, 0, len(legs))
	for _, leg := range legs {
		if leg.Contract == nil {
			continue
		}
		out = mergeCandidate(out, candidateLeg{symbol: leg.Contract.Symbol, expiry: leg.Contract.ExpiryString(), side: leg.Side})
	}
	return out
}

func candidatesFromOrder(o *models.OrderSpec) []candidateLeg {
	out := make([]candidateLeg, 0, len(o.Legs))
	for _, leg := range o.Legs {
		out = mergeCandidate(out, candidateLeg{symbol: leg.Symbol, expiry: leg.Expiry.Format(models.DateLayout), side: leg.Side})
	}
	return out
}

// mergeCandidate appends c, summing sides when the symbol is already listed
// so a repeated contract compares the same way it is registered.
func mergeCandidate(out []candidateLeg, c candidateLeg) []candidateLeg {
	for i := range out {
		if out[i].symbol == c.symbol {
			out[i].side += c.side
			return out
		}
	}
	return append(out, c)
}

// IsDuplicate reports whether a working order has exactly these legs: the same
// leg count and, for every candidate leg, an entry with the same symbol, side
// and expiry string.
func (l *Ledger) IsDuplicate(legs []models.Leg) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isDuplicateLocked(candidatesFromLegs(legs))
}

func (l *Ledger) isDuplicateLocked(candidates []candidateLeg) bool {
	if len(candidates) == 0 {
		return false
	}
	for _, entries := range l.working {
		if len(entries) != len(candidates) {
			continue
		}
		match := true
		for _, c := range candidates {
			e, ok := entries[c.symbol]
			if !ok || e.Side != c.side || e.Expiry != c.expiry {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// Submit records a constructed order as submitted and registers its legs as
// working. The order passed in is moved to the submitted state; the ledger
// keeps its own copy.
func (l *Ledger) Submit(order *models.OrderSpec) error {
	if order == nil || order.Tag == "" {
		return fmt.Errorf("order must have a tag")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.orders[order.Tag]; exists {
		return fmt.Errorf("%w: %s", ErrOrderExists, order.Tag)
	}
	if l.isDuplicateLocked(candidatesFromOrder(order)) {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, order.Tag)
	}
	if err := order.TransitionState(models.StateSubmitted, "order_submitted"); err != nil {
		return err
	}
	if order.PositionID == "" {
		order.PositionID = uuid.NewString()
	}

	stored := order.Clone()
	l.orders[stored.Tag] = stored
	l.sequence = append(l.sequence, stored.Tag)
	l.registerWorkingLocked(stored, 1)
	l.workingOpen++
	if stored.Open.Limit != nil && stored.Open.Limit.Enabled {
		l.limitOrders[stored.Tag] = true
	}

	l.logger.WithFields(logrus.Fields{
		"tag":      stored.Tag,
		"position": stored.PositionID,
		"quantity": stored.Quantity,
	}).Debug("Order submitted")
	return nil
}

// registerWorkingLocked records the legs of o; sign flips sides for closing orders.
func (l *Ledger) registerWorkingLocked(o *models.OrderSpec, sign int) {
	entries := make(map[string]models.WorkingLeg, len(o.Legs))
	for _, c := range candidatesFromOrder(o) {
		entries[c.symbol] = models.WorkingLeg{Side: sign * c.side, Expiry: c.expiry}
	}
	l.working[o.Tag] = entries
}

func (l *Ledger) releaseWorkingLocked(tag string) {
	delete(l.working, tag)
	delete(l.limitOrders, tag)
}

func (l *Ledger) getLocked(tag string) (*models.OrderSpec, error) {
	o, ok := l.orders[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOrder, tag)
	}
	return o, nil
}

// Accept marks the opening order as live at the broker.
func (l *Ledger) Accept(tag, brokerRef string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, err := l.getLocked(tag)
	if err != nil {
		return err
	}
	if err := o.TransitionState(models.StateOpenWorking, "order_accepted"); err != nil {
		return err
	}
	if brokerRef != "" {
		o.Open.Orders = append(o.Open.Orders, brokerRef)
	}
	return nil
}

// applyFill accumulates fills on rec and returns whether the order is complete.
// Zero fills means the remainder of the order.
func applyFill(rec *models.ExecutionRecord, quantity, fills int, price float64) bool {
	remaining := quantity - rec.Fills
	if fills <= 0 || fills > remaining {
		fills = remaining
	}
	if total := rec.Fills + fills; total > 0 {
		rec.FillPrice = (rec.FillPrice*float64(rec.Fills) + price*float64(fills)) / float64(total)
	}
	rec.Fills += fills
	rec.Filled = rec.Fills >= quantity
	return rec.Filled
}

// FillOpen applies an opening fill. It returns true once the order is fully
// filled, at which point the position counts as active and its working entry
// is released.
func (l *Ledger) FillOpen(tag string, fills int, price float64, at time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, err := l.getLocked(tag)
	if err != nil {
		return false, err
	}
	state := o.GetCurrentState()
	if state != models.StateSubmitted && state != models.StateOpenWorking {
		return false, fmt.Errorf("order %s: cannot fill opening order in state %s", tag, state)
	}

	if !applyFill(&o.Open, o.Quantity, fills, price) {
		if state == models.StateSubmitted {
			if err := o.TransitionState(models.StateOpenWorking, "order_accepted"); err != nil {
				return false, err
			}
		}
		return false, nil
	}

	if err := o.TransitionState(models.StateOpenFilled, "order_filled"); err != nil {
		return false, err
	}
	l.releaseWorkingLocked(tag)
	l.workingOpen--
	l.activePositions++
	l.lastOpened = at
	l.logger.WithFields(logrus.Fields{"tag": tag, "fill_price": o.Open.FillPrice}).Info("Position opened")
	return true, nil
}

// SubmitClose registers a closing order for an open position. The closing
// legs are registered with flipped sides.
func (l *Ledger) SubmitClose(tag, brokerRef string, midPrice float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, err := l.getLocked(tag)
	if err != nil {
		return err
	}
	if err := o.TransitionState(models.StateCloseWorking, "close_submitted"); err != nil {
		return err
	}
	l.registerWorkingLocked(o, -1)
	if brokerRef != "" {
		o.Close.Orders = append(o.Close.Orders, brokerRef)
	}
	o.Close.OrderMidPrice = midPrice
	return nil
}

// CancelClose pulls a closing order; the position stays open.
func (l *Ledger) CancelClose(tag string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, err := l.getLocked(tag)
	if err != nil {
		return err
	}
	if err := o.TransitionState(models.StateOpenFilled, "close_cancelled"); err != nil {
		return err
	}
	l.releaseWorkingLocked(tag)
	return nil
}

// FillClose applies a closing fill. Once fully filled the position is booked
// as closed and its remaining DTE is appended to the recently-closed FIFO.
func (l *Ledger) FillClose(tag string, fills int, price float64, at time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, err := l.getLocked(tag)
	if err != nil {
		return false, err
	}
	if state := o.GetCurrentState(); state != models.StateCloseWorking {
		return false, fmt.Errorf("order %s: cannot fill closing order in state %s", tag, state)
	}
	if !applyFill(&o.Close, o.Quantity, fills, price) {
		return false, nil
	}

	if err := o.TransitionState(models.StateCloseFilled, "order_filled"); err != nil {
		return false, err
	}
	if err := o.TransitionState(models.StateClosed, "position_closed"); err != nil {
		return false, err
	}
	o.ClosedAt = at
	l.releaseWorkingLocked(tag)
	l.activePositions--
	l.pushClosedDTELocked(o.DTE(at))
	l.logger.WithFields(logrus.Fields{"tag": tag, "fill_price": o.Close.FillPrice}).Info("Position closed")
	return true, nil
}

func (l *Ledger) pushClosedDTELocked(dte int) {
	l.recentlyClosed = append(l.recentlyClosed, dte)
	if over := len(l.recentlyClosed) - l.cfg.RecentlyClosedCapacity; over > 0 {
		l.recentlyClosed = append([]int(nil), l.recentlyClosed[over:]...)
	}
}

// Cancel cancels a working order. Cancelling a closing order abandons the
// position. Cancelled orders are dropped from the history unless the ledger
// is configured to keep them.
func (l *Ledger) Cancel(tag string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, err := l.getLocked(tag)
	if err != nil {
		return err
	}
	prev := o.GetCurrentState()
	if err := o.TransitionState(models.StateCancelled, "order_cancelled"); err != nil {
		return err
	}
	o.ClosedAt = at
	l.releaseWorkingLocked(tag)
	switch prev {
	case models.StateSubmitted, models.StateOpenWorking:
		l.workingOpen--
		if o.Open.Fills > 0 {
			l.logger.WithFields(logrus.Fields{
				"tag":      tag,
				"fills":    o.Open.Fills,
				"quantity": o.Quantity,
			}).Warn("Partially filled opening order cancelled, filled contracts are not tracked as a position")
		}
	case models.StateCloseWorking:
		l.activePositions--
		l.logger.WithField("tag", tag).Warn("Closing order cancelled, position no longer tracked")
	}
	if !l.cfg.IncludeCancelledOrders {
		l.removeLocked(tag)
	}
	return nil
}

func (l *Ledger) removeLocked(tag string) {
	delete(l.orders, tag)
	for i, t := range l.sequence {
		if t == tag {
			l.sequence = append(l.sequence[:i], l.sequence[i+1:]...)
			break
		}
	}
}

// MarkStalePrice flags the live side of an order as priced off a stale quote.
func (l *Ledger) MarkStalePrice(tag string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, err := l.getLocked(tag)
	if err != nil {
		return err
	}
	switch o.GetCurrentState() {
	case models.StateSubmitted, models.StateOpenWorking:
		o.Open.StalePrice = true
	case models.StateCloseWorking:
		o.Close.StalePrice = true
	default:
		return fmt.Errorf("order %s is not working", tag)
	}
	return nil
}

// ExpiredLimitOrders returns the tags of opening limit orders whose
// expiration is at or before now.
func (l *Ledger) ExpiredLimitOrders(now time.Time) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []string
	for _, tag := range l.sequence {
		if !l.limitOrders[tag] {
			continue
		}
		o := l.orders[tag]
		if o.Open.Limit != nil && !o.Open.Limit.ExpiresAt.IsZero() && !now.Before(o.Open.Limit.ExpiresAt) {
			out = append(out, tag)
		}
	}
	return out
}

// CanOpen applies the entry gates that depend on ledger state: the active
// position limit (working opening orders count against it) and the minimum
// distance since the last opened position. It returns a reason when blocked.
func (l *Ledger) CanOpen(now time.Time, params config.StrategyParameters) (bool, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if params.MaxActivePositions != nil && l.activePositions+l.workingOpen >= *params.MaxActivePositions {
		return false, fmt.Sprintf("max active positions reached (%d)", *params.MaxActivePositions)
	}
	if d := params.MinimumTradeScheduleDistance.Std(); d > 0 && !l.lastOpened.IsZero() && now.Sub(l.lastOpened) < d {
		return false, fmt.Sprintf("last position opened %s ago, minimum distance %s", now.Sub(l.lastOpened).Round(time.Second), d)
	}
	return true, ""
}

// HasEntryForExpiry reports whether a live (working or open) order uses expiry.
func (l *Ledger) HasEntryForExpiry(expiry string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, o := range l.orders {
		if o.ExpiryStr != expiry {
			continue
		}
		switch o.GetCurrentState() {
		case models.StateSubmitted, models.StateOpenWorking, models.StateOpenFilled, models.StateCloseWorking, models.StateCloseFilled:
			return true
		}
	}
	return false
}

// RecentlyClosedDTE returns the FIFO of DTE values at close, oldest first.
func (l *Ledger) RecentlyClosedDTE() []int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]int(nil), l.recentlyClosed...)
}

// Order returns a copy of the order with tag.
func (l *Ledger) Order(tag string) (*models.OrderSpec, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	o, ok := l.orders[tag]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// Orders returns copies of every order in submission order.
func (l *Ledger) Orders() []*models.OrderSpec {
	return l.filter(func(*models.OrderSpec) bool { return true })
}

// WorkingOrders returns copies of the orders with a live opening or closing order.
func (l *Ledger) WorkingOrders() []*models.OrderSpec {
	return l.filter(func(o *models.OrderSpec) bool {
		s := o.GetCurrentState()
		return s == models.StateSubmitted || s == models.StateOpenWorking || s == models.StateCloseWorking
	})
}

// OpenPositions returns copies of the filled positions not yet closed.
func (l *Ledger) OpenPositions() []*models.OrderSpec {
	return l.filter(func(o *models.OrderSpec) bool {
		s := o.GetCurrentState()
		return s == models.StateOpenFilled || s == models.StateCloseWorking || s == models.StateCloseFilled
	})
}

func (l *Ledger) filter(keep func(*models.OrderSpec) bool) []*models.OrderSpec {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*models.OrderSpec, 0, len(l.sequence))
	for _, tag := range l.sequence {
		if o := l.orders[tag]; keep(o) {
			out = append(out, o.Clone())
		}
	}
	return out
}

// Stats returns the ledger counters.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Stats{
		LastOpened:        l.lastOpened,
		Orders:            len(l.orders),
		ActivePositions:   l.activePositions,
		WorkingOpenOrders: l.workingOpen,
		WorkingOrders:     len(l.working),
		LimitOrders:       len(l.limitOrders),
	}
}

// Snapshot returns a deep copy of the ledger state.
func (l *Ledger) Snapshot() *models.LedgerSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := &models.LedgerSnapshot{
		Strategy:          l.cfg.Strategy,
		LastOpened:        l.lastOpened,
		Orders:            make([]*models.OrderSpec, 0, len(l.sequence)),
		Working:           make(map[string]map[string]models.WorkingLeg, len(l.working)),
		RecentlyClosedDTE: append([]int(nil), l.recentlyClosed...),
		ActivePositions:   l.activePositions,
		WorkingOpenOrders: l.workingOpen,
	}
	for _, tag := range l.sequence {
		snap.Orders = append(snap.Orders, l.orders[tag].Clone())
		if l.limitOrders[tag] {
			snap.LimitOrders = append(snap.LimitOrders, tag)
		}
	}
	for tag, entries := range l.working {
		cp := make(map[string]models.WorkingLeg, len(entries))
		for sym, e := range entries {
			cp[sym] = e
		}
		snap.Working[tag] = cp
	}
	return snap
}

// Persist saves a snapshot to the configured store. Without a store it is a no-op.
func (l *Ledger) Persist() error {
	if l.store == nil {
		return nil
	}
	if err := l.store.Save(l.Snapshot()); err != nil {
		return fmt.Errorf("persisting ledger %s: %w", l.cfg.Strategy, err)
	}
	return nil
}

// Restore replaces the ledger state with the stored snapshot and returns the
// largest order id seen, so the shared id sequence can be advanced past it.
// A missing snapshot leaves the ledger empty.
func (l *Ledger) Restore() (int64, error) {
	if l.store == nil {
		return 0, nil
	}
	snap, err := l.store.Load()
	if errors.Is(err, storage.ErrNoSnapshot) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("restoring ledger %s: %w", l.cfg.Strategy, err)
	}
	if snap.Strategy != "" && snap.Strategy != l.cfg.Strategy {
		return 0, fmt.Errorf("restoring ledger %s: snapshot belongs to %s", l.cfg.Strategy, snap.Strategy)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.orders = make(map[string]*models.OrderSpec, len(snap.Orders))
	l.sequence = l.sequence[:0]
	for _, o := range snap.Orders {
		if o == nil || o.Tag == "" {
			continue
		}
		o.StateMachine = models.NewStateMachineFromState(o.GetCurrentState())
		l.orders[o.Tag] = o
		l.sequence = append(l.sequence, o.Tag)
	}
	l.working = make(map[string]map[string]models.WorkingLeg, len(snap.Working))
	for tag, entries := range snap.Working {
		l.working[tag] = entries
	}
	l.limitOrders = make(map[string]bool, len(snap.LimitOrders))
	for _, tag := range snap.LimitOrders {
		l.limitOrders[tag] = true
	}
	l.recentlyClosed = append([]int(nil), snap.RecentlyClosedDTE...)
	if over := len(l.recentlyClosed) - l.cfg.RecentlyClosedCapacity; over > 0 {
		l.recentlyClosed = l.recentlyClosed[over:]
	}
	l.activePositions = snap.ActivePositions
	l.workingOpen = snap.WorkingOpenOrders
	l.lastOpened = snap.LastOpened

	l.logger.WithField("orders", len(l.orders)).Info("Ledger restored")
	return snap.MaxOrderID(), nil
}
