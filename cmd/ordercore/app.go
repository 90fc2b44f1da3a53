package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/bryan01993/QuantConnectProjectGit/internal/calendar"
	"github.com/bryan01993/QuantConnectProjectGit/internal/config"
	"github.com/bryan01993/QuantConnectProjectGit/internal/dashboard"
	"github.com/bryan01993/QuantConnectProjectGit/internal/ledger"
	"github.com/bryan01993/QuantConnectProjectGit/internal/mock"
	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
	"github.com/bryan01993/QuantConnectProjectGit/internal/monitoring"
	"github.com/bryan01993/QuantConnectProjectGit/internal/orders"
	"github.com/bryan01993/QuantConnectProjectGit/internal/pricing"
	"github.com/bryan01993/QuantConnectProjectGit/internal/retry"
	"github.com/bryan01993/QuantConnectProjectGit/internal/storage"
	"github.com/bryan01993/QuantConnectProjectGit/internal/strategy"
)

// App wires the order core: one ledger, builder and instance per configured
// strategy, sharing a pricer, a calendar, an account and an order id sequence.
type App struct {
	config  *config.Config
	logger  *logrus.Logger
	now     func() time.Time
	metrics *monitoring.Metrics
	chain   *mock.ChainProvider
	account *strategy.StaticAccount
	ledgers []*ledger.Ledger
	runner  *strategy.Runner
	tracker *orders.Tracker
	server  *dashboard.Server
	out     io.Writer
}

func newApp(cfg *config.Config, logger *logrus.Logger, now func() time.Time, out io.Writer) (*App, error) {
	if now == nil {
		now = time.Now
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	holidays, err := cfg.HolidayDates()
	if err != nil {
		return nil, err
	}

	bsm := pricing.NewBSM(cfg.Pricing.RiskFreeRate, cfg.Pricing.DividendYield)
	var pricer pricing.Pricer = bsm
	if cb := cfg.Pricing.CircuitBreaker; cb.Enabled {
		pricer = pricing.NewBreakerPricer(bsm, pricing.CircuitBreakerSettings{
			MaxRequests:  cb.MaxRequests,
			Interval:     cb.Interval.Std(),
			Timeout:      cb.Timeout.Std(),
			MinRequests:  cb.MinRequests,
			FailureRatio: cb.FailureRatio,
		}, logger)
	}

	app := &App{
		config:  cfg,
		logger:  logger,
		now:     now,
		metrics: monitoring.NewMetrics(prometheus.NewRegistry()),
		chain:   mock.NewChainProvider(cfg.MarketData, bsm),
		account: strategy.NewStaticAccount(cfg.Account.Snapshot()),
		out:     out,
	}
	cal := calendar.New(loc, holidays)
	ids := models.NewOrderIDSequence()

	instances := make([]*strategy.Instance, 0, len(cfg.Strategies))
	for _, sc := range cfg.Strategies {
		params := sc.Parameters(&cfg.Overrides)
		template, err := strategy.TemplateFor(sc.Template, sc.Legs)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", sc.Name, err)
		}

		store, err := storage.NewStorage(filepath.Join(cfg.Storage.Path, sc.StrategyID()+".json"))
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", sc.Name, err)
		}
		l := ledger.New(ledger.Config{
			Strategy:               sc.Name,
			IncludeCancelledOrders: params.IncludeCancelledOrders,
		}, retry.NewStorage(store, logger), logger)
		maxID, err := l.Restore()
		if err != nil {
			return nil, err
		}
		ids.Advance(maxID)

		b, err := strategy.NewBuilder(sc.Name, params, strategy.Deps{
			Pricer:   pricer,
			Calendar: cal,
			Account:  app.account,
			IDs:      ids,
			Ledger:   l,
			Metrics:  app.metrics,
			Logger:   logger,
			Clock:    now,
		})
		if err != nil {
			return nil, err
		}
		app.ledgers = append(app.ledgers, l)
		instances = append(instances, strategy.NewInstance(sc.Name, sc.StrategyID(), template, b))
	}

	app.runner = strategy.NewRunner(instances, cfg.Runner.Concurrency, logger)
	app.tracker = orders.NewTracker(app.ledgers, app.metrics, logger, orders.Config{
		PollInterval: cfg.Runner.LimitCheckInterval.Std(),
		Clock:        now,
	})
	if cfg.Dashboard.Enabled {
		app.server = dashboard.NewServer(dashboard.Config{
			Port:      cfg.Dashboard.Port,
			AuthToken: cfg.Dashboard.AuthToken,
		}, app.tracker, app.metrics, logger)
	}
	return app, nil
}

// Cycle refreshes the chain, evaluates every strategy and persists ledgers.
func (a *App) Cycle(ctx context.Context) ([]strategy.Result, error) {
	spot := a.chain.Refresh()
	now := a.now()
	chain, err := a.chain.Chain(now)
	if err != nil {
		return nil, fmt.Errorf("building chain: %w", err)
	}
	a.logger.WithFields(logrus.Fields{
		"spot":      spot,
		"contracts": len(chain),
	}).Info("Evaluating strategies")

	results, err := a.runner.Evaluate(ctx, chain)
	if err != nil {
		return results, err
	}
	for _, l := range a.ledgers {
		if err := l.Persist(); err != nil {
			a.logger.WithError(err).WithField("strategy", l.Strategy()).Error("Failed to persist ledger")
		}
	}
	a.render(results)
	return results, nil
}

// Run evaluates once, then every runner interval while the tracker sweeps
// expired limit orders. With a zero interval it returns after one cycle.
func (a *App) Run(ctx context.Context) error {
	if _, err := a.Cycle(ctx); err != nil {
		return err
	}
	interval := a.config.Runner.Interval.Std()
	if interval <= 0 && a.server == nil {
		return nil
	}

	if a.server != nil {
		go func() {
			if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.WithError(err).Error("Dashboard server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				a.logger.WithError(err).Warn("Dashboard shutdown failed")
			}
		}()
	}
	go a.tracker.Run(ctx)

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			if _, err := a.Cycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.WithError(err).Error("Evaluation cycle failed")
			}
		}
	}
}

func (a *App) render(results []strategy.Result) {
	if a.out == nil {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(a.out)
	t.SetTitle("ORDERS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Strategy", "Tag", "Expiry", "Qty", "Mid", "Limit", "Max Loss $", "TReg", "Stop", "Target", "Status"})

	for _, r := range results {
		switch {
		case r.Err != nil:
			t.AppendRow(table.Row{r.Strategy, "", "", "", "", "", "", "", "", "", "error: " + r.Err.Error()})
		case r.Order == nil:
			t.AppendRow(table.Row{r.Strategy, "", "", "", "", "", "", "", "", "", "no order"})
		default:
			o := r.Order
			t.AppendRow(table.Row{
				r.Strategy, o.Tag, o.ExpiryStr, o.Quantity,
				fmt.Sprintf("%.2f", o.OrderMidPrice),
				fmt.Sprintf("%.2f", o.LimitPrice),
				fmt.Sprintf("%.0f", o.MaxLossDollars()),
				fmt.Sprintf("%.2f", o.TReg),
				optional(o.StopLoss),
				optional(o.TargetProfit),
				string(o.GetCurrentState()),
			})
		}
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 16, Align: text.AlignLeft},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	t.Render()
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
