package api_gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycelium-customer-ledger/internal/config"
	"github.com/mycelium-customer-ledger/internal/domain/customer"
	"github.com/mycelium-customer-ledger/internal/domain/ledger"
	engine "github.com/mycelium-customer-ledger/internal/ledger_engine/service"
)

type stubLedgerService struct {
	engine.LedgerService
}

func (stubLedgerService) GetCustomersWithDebt(ctx context.Context) ([]customer.Debtor, error) {
	return []customer.Debtor{{CustomerID: "C-1", CustomerName: "김버섯", CurrentBalance: 10000}}, nil
}

func (stubLedgerService) GetLedger(ctx context.Context, customerID string, filter ledger.ListFilter) ([]*ledger.Entry, error) {
	return nil, ledger.ErrCustomerNotFound{CustomerID: customerID}
}

type stubReconciliation struct {
	engine.ReconciliationService
}

type stubHistory struct{}

func (stubHistory) GetHistory(ctx context.Context, customerID string, page, perPage int) ([]*ledger.ChangeEvent, int64, error) {
	return []*ledger.ChangeEvent{}, 0, nil
}

func newTestServer(origins ...string) *Server {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Application: config.ApplicationConfig{Env: "test"},
		Server: config.ServerConfig{
			Port:            0,
			ShutdownTimeout: time.Second,
			AllowedOrigins:  origins,
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(logger, cfg, stubLedgerService{}, stubReconciliation{}, stubHistory{})
}

func TestRouter_Routes(t *testing.T) {
	srv := newTestServer()

	testCases := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/v1/debtors", http.StatusOK},
		{http.MethodGet, "/api/v1/customers/C-9/ledger", http.StatusNotFound},
		{http.MethodGet, "/api/v1/customers/C-9/ledger/history", http.StatusOK},
		{http.MethodGet, "/api/v1/ledger/entries/x", http.StatusNotFound},
	}

	for _, tc := range testCases {
		req, _ := http.NewRequest(tc.method, tc.path, nil)
		rr := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rr, req)

		assert.Equal(t, tc.status, rr.Code, "%s %s", tc.method, tc.path)
		assert.NotEmpty(t, rr.Header().Get("X-Correlation-ID"), "%s %s", tc.method, tc.path)
	}
}

func TestRouter_CORS(t *testing.T) {
	srv := newTestServer("http://localhost:1420")

	req, _ := http.NewRequest(http.MethodOptions, "/api/v1/debtors", nil)
	req.Header.Set("Origin", "http://localhost:1420")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://localhost:1420", rr.Header().Get("Access-Control-Allow-Origin"))

	req, _ = http.NewRequest(http.MethodGet, "/api/v1/debtors", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestServer_StopBeforeStart(t *testing.T) {
	srv := newTestServer()
	assert.NoError(t, srv.Stop(context.Background()))
}
