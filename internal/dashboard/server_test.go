package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan01993/QuantConnectProjectGit/internal/ledger"
	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
	"github.com/bryan01993/QuantConnectProjectGit/internal/monitoring"
	"github.com/bryan01993/QuantConnectProjectGit/internal/orders"
	"github.com/bryan01993/QuantConnectProjectGit/internal/storage"
)

var (
	testNow    = time.Date(2024, 2, 1, 15, 0, 0, 0, time.UTC)
	testExpiry = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
)

func testOrder(id int64, strike float64) *models.OrderSpec {
	return &models.OrderSpec{
		ID:            id,
		Tag:           fmt.Sprintf("PutSpread-%d", id),
		Strategy:      "Put Spread",
		Expiry:        testExpiry,
		ExpiryStr:     testExpiry.Format(models.DateLayout),
		Credit:        true,
		Quantity:      2,
		OrderMidPrice: 2.2,
		LimitPrice:    2.18,
		MaxLoss:       -50,
		Legs: []models.LegDetail{
			{Symbol: fmt.Sprintf("P%.0f", strike), Side: -1, Strike: strike, Right: models.RightPut, Expiry: testExpiry},
			{Symbol: fmt.Sprintf("P%.0f", strike-50), Side: 1, Strike: strike - 50, Right: models.RightPut, Expiry: testExpiry},
		},
	}
}

func newTestServer(t *testing.T, token string) (*Server, *ledger.Ledger) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	l := ledger.New(ledger.Config{Strategy: "Put Spread", IncludeCancelledOrders: true}, nil, logger)
	require.NoError(t, l.Submit(testOrder(1, 3800)))
	require.NoError(t, l.Submit(testOrder(2, 3700)))

	m := monitoring.NewMetrics(nil)
	tr := orders.NewTracker([]*ledger.Ledger{l}, m, logger, orders.Config{Clock: func() time.Time { return testNow }})
	s := NewServer(Config{Port: 0, AuthToken: token}, tr, m, logger)
	s.now = func() time.Time { return testNow }
	return s, l
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, "secret")
	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(testNow.Unix()), body["timestamp"])
}

func TestAuthMiddleware(t *testing.T) {
	s, _ := newTestServer(t, "secret")

	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/api/strategies", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/strategies?token=secret", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/strategies", nil)
	req.Header.Set("X-Auth-Token", "secret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetStrategies(t *testing.T) {
	s, _ := newTestServer(t, "")
	rec := do(t, s, http.MethodGet, "/api/strategies", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var views []StrategyView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "Put Spread", views[0].Name)
	assert.Equal(t, 2, views[0].Orders)
	assert.Equal(t, 2, views[0].WorkingOpenOrders)
}

func TestGetOrders(t *testing.T) {
	s, _ := newTestServer(t, "")

	rec := do(t, s, http.MethodGet, "/api/strategies/Put%20Spread/orders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var views []OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "PutSpread-1", views[0].Tag)
	assert.Equal(t, models.StateSubmitted, views[0].State)
	assert.Equal(t, 43, views[0].DTE)
	assert.InDelta(t, -10000, views[0].MaxLoss, 1e-9, "dollars for two contracts")
	assert.NotEmpty(t, views[0].PositionID)

	rec = do(t, s, http.MethodGet, "/api/strategies/Put%20Spread/orders?state=open_filled", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/strategies/Nope/orders", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/strategies/Put%20Spread/orders/PutSpread-9", "").Code)

	rec = do(t, s, http.MethodGet, "/api/strategies/Put%20Spread/orders/PutSpread-2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var one OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, 3700.0, one.Legs[0].Strike)
}

func TestPostEvent(t *testing.T) {
	s, l := newTestServer(t, "")
	path := "/api/strategies/Put%20Spread/events"

	rec := do(t, s, http.MethodPost, path, `{"type":"filled","tag":"PutSpread-1","fill_price":2.15}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, models.StateOpenFilled, view.State)
	assert.InDelta(t, 2.15, view.FillPrice, 1e-9)
	assert.Equal(t, 1, l.Stats().ActivePositions)

	rec = do(t, s, http.MethodGet, "/api/strategies/Put%20Spread/positions", "")
	var positions []OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &positions))
	require.Len(t, positions, 1)
	assert.Equal(t, "PutSpread-1", positions[0].Tag)

	rec = do(t, s, http.MethodGet, "/api/strategies/Put%20Spread/working", "")
	var working []OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &working))
	require.Len(t, working, 1)
	assert.Equal(t, "PutSpread-2", working[0].Tag)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"malformed body", path, `{`, http.StatusBadRequest},
		{"missing tag", path, `{"type":"filled"}`, http.StatusBadRequest},
		{"unknown event", path, `{"type":"exploded","tag":"PutSpread-2"}`, http.StatusBadRequest},
		{"unknown order", path, `{"type":"accepted","tag":"PutSpread-9"}`, http.StatusNotFound},
		{"unknown strategy", "/api/strategies/Nope/events", `{"type":"accepted","tag":"PutSpread-2"}`, http.StatusNotFound},
		{"invalid transition", path, `{"type":"close_cancelled","tag":"PutSpread-2"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, do(t, s, http.MethodPost, tt.path, tt.body).Code)
		})
	}
}

func TestPostEvent_NotPersisted(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := storage.NewMockStorage()
	store.SetSaveError(errors.New("disk full"))
	l := ledger.New(ledger.Config{Strategy: "Put Spread"}, store, logger)
	require.NoError(t, l.Submit(testOrder(1, 3800)))
	s := NewServer(Config{}, orders.NewTracker([]*ledger.Ledger{l}, nil, logger), nil, logger)

	rec := do(t, s, http.MethodPost, "/api/strategies/Put%20Spread/events", `{"type":"accepted","tag":"PutSpread-1"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "not persisted")

	o, ok := l.Order("PutSpread-1")
	require.True(t, ok)
	assert.Equal(t, models.StateOpenWorking, o.GetCurrentState())
}

func TestMetricsRoute(t *testing.T) {
	s, _ := newTestServer(t, "")
	do(t, s, http.MethodPost, "/api/strategies/Put%20Spread/events", `{"type":"accepted","tag":"PutSpread-1"}`)

	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ordercore_execution_events_total{event="accepted",strategy="Put Spread"} 1`)
}

func TestNewServer_NilLogger(t *testing.T) {
	l := ledger.New(ledger.Config{Strategy: "Put Spread"}, nil, nil)
	s := NewServer(Config{}, orders.NewTracker([]*ledger.Ledger{l}, nil, nil), nil, nil)
	assert.Equal(t, logrus.StandardLogger(), s.logger.Logger)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/metrics", "").Code)
	assert.NoError(t, s.Shutdown(t.Context()))
}
