// Package dashboard serves a read-mostly HTTP view of the strategy ledgers.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/bryan01993/QuantConnectProjectGit/internal/ledger"
	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
	"github.com/bryan01993/QuantConnectProjectGit/internal/monitoring"
	"github.com/bryan01993/QuantConnectProjectGit/internal/orders"
)

type Server struct {
	router    *chi.Mux
	server    *http.Server
	tracker   *orders.Tracker
	metrics   *monitoring.Metrics
	logger    *logrus.Entry
	now       func() time.Time
	port      int
	authToken string
}

type Config struct {
	Port      int
	AuthToken string
}

// StrategyView summarises one strategy ledger.
type StrategyView struct {
	Name              string    `json:"name"`
	Orders            int       `json:"orders"`
	ActivePositions   int       `json:"active_positions"`
	WorkingOpenOrders int       `json:"working_open_orders"`
	WorkingOrders     int       `json:"working_orders"`
	LimitOrders       int       `json:"limit_orders"`
	LastOpened        time.Time `json:"last_opened,omitempty"`
	RecentlyClosedDTE []int     `json:"recently_closed_dte"`
}

// OrderView is the JSON shape of one order.
type OrderView struct {
	Tag          string             `json:"tag"`
	ID           int64              `json:"id"`
	PositionID   string             `json:"position_id"`
	State        models.OrderState  `json:"state"`
	Expiry       string             `json:"expiry"`
	DTE          int                `json:"dte"`
	Credit       bool               `json:"credit"`
	Quantity     int                `json:"quantity"`
	MidPrice     float64            `json:"mid_price"`
	LimitPrice   float64            `json:"limit_price"`
	MaxLoss      float64            `json:"max_loss"`
	TReg         float64            `json:"treg"`
	Margin       float64            `json:"portfolio_margin"`
	StopLoss     *float64           `json:"stop_loss,omitempty"`
	TargetProfit *float64           `json:"target_profit,omitempty"`
	FillPrice    float64            `json:"fill_price"`
	Legs         []models.LegDetail `json:"legs"`
}

func NewServer(cfg Config, tracker *orders.Tracker, metrics *monitoring.Metrics, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		router:    chi.NewRouter(),
		tracker:   tracker,
		metrics:   metrics,
		logger:    logger.WithField("component", "dashboard"),
		now:       time.Now,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/api/strategies", func(r chi.Router) {
		r.Get("/", s.handleGetStrategies)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/orders", s.handleGetOrders)
			r.Get("/orders/{tag}", s.handleGetOrder)
			r.Get("/working", s.handleGetWorking)
			r.Get("/positions", s.handleGetPositions)
			r.Post("/events", s.handlePostEvent)
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) ledgerFor(w http.ResponseWriter, r *http.Request) (*ledger.Ledger, bool) {
	name := chi.URLParam(r, "name")
	l, ok := s.tracker.Ledger(name)
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
	}
	return l, ok
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"timestamp":  s.now().Unix(),
		"strategies": len(s.tracker.Strategies()),
	})
}

func (s *Server) handleGetStrategies(w http.ResponseWriter, r *http.Request) {
	names := s.tracker.Strategies()
	views := make([]StrategyView, 0, len(names))
	for _, name := range names {
		l, _ := s.tracker.Ledger(name)
		views = append(views, strategyView(l))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	l, ok := s.ledgerFor(w, r)
	if !ok {
		return
	}
	all := l.Orders()
	if state := r.URL.Query().Get("state"); state != "" {
		filtered := all[:0]
		for _, o := range all {
			if string(o.GetCurrentState()) == state {
				filtered = append(filtered, o)
			}
		}
		all = filtered
	}
	s.writeJSON(w, http.StatusOK, s.orderViews(all))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	l, ok := s.ledgerFor(w, r)
	if !ok {
		return
	}
	o, found := l.Order(chi.URLParam(r, "tag"))
	if !found {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, s.orderView(o))
}

func (s *Server) handleGetWorking(w http.ResponseWriter, r *http.Request) {
	l, ok := s.ledgerFor(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, s.orderViews(l.WorkingOrders()))
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	l, ok := s.ledgerFor(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, s.orderViews(l.OpenPositions()))
}

func (s *Server) handlePostEvent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var ev models.ExecutionEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&ev); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if ev.Tag == "" {
		http.Error(w, "tag is required", http.StatusBadRequest)
		return
	}

	err := s.tracker.Apply(name, ev)
	switch {
	case err == nil:
	case errors.Is(err, orders.ErrUnknownStrategy), errors.Is(err, ledger.ErrUnknownOrder):
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	case errors.Is(err, orders.ErrUnknownEvent):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, orders.ErrNotPersisted):
		s.logger.WithError(err).WithField("tag", ev.Tag).Error("Execution event applied but not persisted")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	default:
		s.logger.WithError(err).WithField("tag", ev.Tag).Warn("Execution event rejected")
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	l, _ := s.tracker.Ledger(name)
	o, found := l.Order(ev.Tag)
	if !found {
		// Cancelled orders are dropped when the ledger does not keep them
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, s.orderView(o))
}

func strategyView(l *ledger.Ledger) StrategyView {
	st := l.Stats()
	return StrategyView{
		Name:              l.Strategy(),
		Orders:            st.Orders,
		ActivePositions:   st.ActivePositions,
		WorkingOpenOrders: st.WorkingOpenOrders,
		WorkingOrders:     st.WorkingOrders,
		LimitOrders:       st.LimitOrders,
		LastOpened:        st.LastOpened,
		RecentlyClosedDTE: l.RecentlyClosedDTE(),
	}
}

func (s *Server) orderViews(list []*models.OrderSpec) []OrderView {
	views := make([]OrderView, 0, len(list))
	for _, o := range list {
		views = append(views, s.orderView(o))
	}
	return views
}

func (s *Server) orderView(o *models.OrderSpec) OrderView {
	return OrderView{
		Tag:          o.Tag,
		ID:           o.ID,
		PositionID:   o.PositionID,
		State:        o.GetCurrentState(),
		Expiry:       o.ExpiryStr,
		DTE:          o.DTE(s.now()),
		Credit:       o.Credit,
		Quantity:     o.Quantity,
		MidPrice:     o.OrderMidPrice,
		LimitPrice:   o.LimitPrice,
		MaxLoss:      o.MaxLossDollars(),
		TReg:         o.TReg,
		Margin:       o.PortfolioMargin,
		StopLoss:     o.StopLoss,
		TargetProfit: o.TargetProfit,
		FillPrice:    o.Open.FillPrice,
		Legs:         o.Legs,
	}
}
