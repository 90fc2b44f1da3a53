package strategy

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bryan01993/QuantConnectProjectGit/internal/contracts"
	"github.com/bryan01993/QuantConnectProjectGit/internal/ledger"
	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
	"github.com/bryan01993/QuantConnectProjectGit/internal/monitoring"
)

// Instance is one configured strategy: a template, a builder and the
// builder's ledger. It owns its ledger exclusively.
type Instance struct {
	name     string
	id       string
	template Template
	builder  *Builder
	logger   *logrus.Entry
}

// NewInstance creates an Instance. An empty id is derived from the name.
func NewInstance(name, id string, template Template, builder *Builder) *Instance {
	if id == "" {
		id = strings.ReplaceAll(name, " ", "")
	}
	return &Instance{
		name:     name,
		id:       id,
		template: template,
		builder:  builder,
		logger:   builder.logger.WithField("template", template.Name()),
	}
}

// Name returns the strategy name.
func (in *Instance) Name() string { return in.name }

// Ledger returns the instance ledger.
func (in *Instance) Ledger() *ledger.Ledger { return in.builder.ledger }

// Evaluate decides whether to enter on this chain and, if so, constructs the
// order and records it in the ledger as submitted. It returns (nil, nil)
// when entry is gated, no expiry or contract qualifies, or the order is a
// duplicate.
func (in *Instance) Evaluate(ctx context.Context, chain []*models.Contract) (*models.OrderSpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := in.builder
	params := b.params
	now := b.now()

	if ok, reason := b.ledger.CanOpen(now, params); !ok {
		in.logger.WithField("reason", reason).Debug("Entry gated")
		b.metrics.RecordRejection(in.name, monitoring.ReasonGated)
		return nil, nil
	}

	expiry, ok := SelectExpiry(contracts.Expiries(chain), now, params, b.ledger.RecentlyClosedDTE(), in.template.SupportsDynamicDTE())
	if !ok {
		in.logger.WithField("dte", params.DTE).Info("No expiry within the DTE window")
		b.metrics.RecordRejection(in.name, monitoring.ReasonNoContracts)
		return nil, nil
	}
	expiryStr := expiry.Format(models.DateLayout)
	if !params.AllowMultipleEntriesPerExpiry && b.ledger.HasEntryForExpiry(expiryStr) {
		in.logger.WithField("expiry", expiryStr).Debug("Already holding an entry for this expiry")
		b.metrics.RecordRejection(in.name, monitoring.ReasonGated)
		return nil, nil
	}

	candidates := contracts.FilterByExpiry(chain, expiry)
	if err := b.ensureGreeks(candidates); err != nil {
		b.metrics.RecordRejection(in.name, monitoring.ReasonPricingFailure)
		in.logger.WithError(err).Error("Cannot price chain")
		return nil, err
	}

	templates, err := in.template.DescribeLegs(params)
	if err != nil {
		b.metrics.RecordRejection(in.name, monitoring.ReasonInvalidInput)
		return nil, err
	}
	legs, err := AssembleLegs(candidates, templates)
	if errors.Is(err, ErrNoContract) {
		in.logger.WithError(err).Info("No order")
		b.metrics.RecordRejection(in.name, monitoring.ReasonNoContracts)
		return nil, nil
	}
	if err != nil {
		b.metrics.RecordRejection(in.name, monitoring.ReasonInvalidInput)
		return nil, err
	}

	order, err := b.BuildOrder(legs, in.name, params.CreditStrategy, WithStrategyID(in.id), WithExpiry(expiry))
	if err != nil || order == nil {
		return nil, err
	}

	if err := b.ledger.Submit(order); err != nil {
		if errors.Is(err, ledger.ErrDuplicateOrder) {
			in.logger.WithField("tag", order.Tag).Info("Duplicate order, an equivalent order is already working")
			b.metrics.RecordRejection(in.name, monitoring.ReasonDuplicate)
			return nil, nil
		}
		return nil, err
	}
	stats := b.ledger.Stats()
	b.metrics.SetLedgerGauges(in.name, stats.ActivePositions, stats.WorkingOrders)
	return order, nil
}
