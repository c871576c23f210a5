package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/dafo/internal/application/observers"
	"github.com/aescanero/dafo/internal/application/orchestrator"
	eventsmemory "github.com/aescanero/dafo/pkg/adapters/events/memory"
	ledgermem "github.com/aescanero/dafo/pkg/adapters/ledger/memory"
	metricsprom "github.com/aescanero/dafo/pkg/adapters/metrics/prometheus"
	"github.com/aescanero/dafo/pkg/adapters/protocols/sim"
	storagememory "github.com/aescanero/dafo/pkg/adapters/storage/memory"
	"github.com/aescanero/dafo/pkg/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var (
	secret       = []byte("test-secret")
	selfAddr     = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	adminAddr    = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	alice        = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	exchangeAddr = common.HexToAddress("0x00000000000000000000000000000000000e0001")
	lendingAddr  = common.HexToAddress("0x00000000000000000000000000000000000e0002")
	tokenA       = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokenB       = common.HexToAddress("0x000000000000000000000000000000000000000b")
)

type fakeObservers struct{ healthy bool }

func (f fakeObservers) GetStatus() *observers.HealthStatus {
	return &observers.HealthStatus{TotalObservers: 2, IdleObservers: 2, Healthy: f.healthy}
}

type testServer struct {
	srv   *Server
	store *storagememory.Storage
}

func newTestServer(t *testing.T, rateLimit float64) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }

	ledger := ledgermem.New(logger)
	ex := sim.NewExchange(exchangeAddr, ledger, ledger, clock, logger)
	require.NoError(t, ex.AddPool(sim.Pool{AssetIn: tokenA, AssetOut: tokenB, Fee: 3000, Rate: decimal.NewFromInt(1)}))
	lp := sim.NewLending(lendingAddr, ledger, ledger, logger)
	require.NoError(t, lp.ListReserve(tokenA))
	lp.TrustOperator(selfAddr)

	dir := sim.NewDirectory()
	dir.AddExchange(ex)
	dir.AddLending(lp)

	require.NoError(t, ledger.Mint(ctx, tokenB, exchangeAddr, big.NewInt(1_000_000)))
	require.NoError(t, ledger.Mint(ctx, tokenA, alice, big.NewInt(10_000)))
	require.NoError(t, ledger.Approve(ctx, tokenA, alice, selfAddr, domain.MaxAmount))

	bus := eventsmemory.NewInMemoryEventBus(0, logger)
	t.Cleanup(func() { _ = bus.Close() })
	store := storagememory.NewStorage(0)
	reg := prometheus.NewRegistry()
	m, err := orchestrator.NewManager(selfAddr,
		&domain.Settings{Admin: adminAddr, Exchange: exchangeAddr, Lending: lendingAddr},
		ledger, ledger, dir, bus, store, metricsprom.NewCollector(reg), nil, logger,
		orchestrator.Options{Clock: clock})
	require.NoError(t, err)

	srv := NewServer(&Config{
		Orchestrator:  m,
		Notifications: store,
		Observers:     fakeObservers{healthy: true},
		Gatherer:      reg,
		JWTSecret:     secret,
		RateLimit:     rateLimit,
		RateBurst:     1,
		Logger:        zap.NewNop(),
	})
	t.Cleanup(func() { srv.stop() })
	return &testServer{srv: srv, store: store}
}

func token(t *testing.T, subject common.Address) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject.Hex(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := tok.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func newRequest(t *testing.T, method, path string, as common.Address, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != (common.Address{}) {
		req.Header.Set("Authorization", "Bearer "+token(t, as))
	}
	return req
}

func (ts *testServer) do(t *testing.T, method, path string, as common.Address, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, newRequest(t, method, path, as, body))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func addressField(t *testing.T, body map[string]interface{}, key string) common.Address {
	t.Helper()
	v, ok := body[key].(string)
	require.True(t, ok, "missing %s", key)
	return common.HexToAddress(v)
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Error.Code
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, 0)

	rec := ts.do(t, http.MethodGet, "/health", common.Address{}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	ts.do(t, http.MethodPost, "/api/v1/lending/supply", alice, LendingRequest{Asset: tokenA.Hex(), Amount: "0"})
	rec = ts.do(t, http.MethodGet, "/metrics", common.Address{}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `dafo_operations_total{operation="supply",status="validation"} 1`)
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t, 0)

	rec := ts.do(t, http.MethodGet, "/api/v1/settings", common.Address{}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHENTICATED", errorCode(t, rec))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	bad := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(bad, req)
	assert.Equal(t, http.StatusUnauthorized, bad.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/settings", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, selfAddr.Hex(), body["orchestrator"])
}

func TestSwapEndpoint(t *testing.T) {
	ts := newTestServer(t, 0)

	rec := ts.do(t, http.MethodPost, "/api/v1/swaps/exact-input-single", alice, ExactInputSingleRequest{
		AssetIn: tokenA.Hex(), AssetOut: tokenB.Hex(), Fee: 3000, AmountIn: "1000", AmountOutMin: "990",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "997", decode(t, rec)["amount_out"])

	rec = ts.do(t, http.MethodPost, "/api/v1/swaps/exact-input-single", alice, ExactInputSingleRequest{
		AssetIn: tokenA.Hex(), AssetOut: tokenB.Hex(), Fee: 3000, AmountIn: "0",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ZERO_AMOUNT", errorCode(t, rec))

	rec = ts.do(t, http.MethodPost, "/api/v1/swaps/exact-input-single", alice, ExactInputSingleRequest{
		AssetIn: tokenA.Hex(), AssetOut: tokenB.Hex(), Fee: 3000, AmountIn: "10", AmountOutMin: "1000",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INTEGRATION_FAILED", errorCode(t, rec))

	rec = ts.do(t, http.MethodPost, "/api/v1/swaps/exact-input", alice, ExactInputRequest{
		Path: "0x1234", AmountIn: "10",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PATH", errorCode(t, rec))
}

func TestConcurrentOperationsTakeTurns(t *testing.T) {
	ts := newTestServer(t, 0)

	reqs := make([]*http.Request, 8)
	for i := range reqs {
		reqs[i] = newRequest(t, http.MethodPost, "/api/v1/lending/supply", alice, LendingRequest{Asset: tokenA.Hex(), Amount: "100"})
	}

	codes := make([]int, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req *http.Request) {
			defer wg.Done()
			rec := httptest.NewRecorder()
			ts.srv.Handler().ServeHTTP(rec, req)
			codes[i] = rec.Code
		}(i, req)
	}
	wg.Wait()

	for i, code := range codes {
		assert.Equal(t, http.StatusOK, code, "request %d", i)
	}
}

func TestMalformedRequests(t *testing.T) {
	ts := newTestServer(t, 0)

	rec := ts.do(t, http.MethodPost, "/api/v1/lending/supply", alice, map[string]string{"asset": tokenA.Hex()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, rec))

	rec = ts.do(t, http.MethodPost, "/api/v1/lending/supply", alice, LendingRequest{Asset: "nope", Amount: "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/lending/borrow", alice, LendingRequest{Asset: tokenA.Hex(), Amount: "1", RateMode: 7})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_RATE_MODE", errorCode(t, rec))
}

func TestLendingEndpoints(t *testing.T) {
	ts := newTestServer(t, 0)

	rec := ts.do(t, http.MethodPost, "/api/v1/lending/supply", alice, LendingRequest{Asset: tokenA.Hex(), Amount: "4000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/v1/lending/accounts/"+alice.Hex(), alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "4000", decode(t, rec)["total_collateral"])

	rec = ts.do(t, http.MethodPost, "/api/v1/lending/withdraw", alice, LendingRequest{Asset: tokenA.Hex(), Amount: "max"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "4000", decode(t, rec)["withdrawn"])
}

func TestAdminEndpoints(t *testing.T) {
	ts := newTestServer(t, 0)
	next := common.HexToAddress("0x00000000000000000000000000000000000e0009")

	rec := ts.do(t, http.MethodPut, "/api/v1/admin/bindings/exchange", alice, BindingRequest{Address: next.Hex()})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))

	rec = ts.do(t, http.MethodPut, "/api/v1/admin/bindings/lending", adminAddr, BindingRequest{Address: common.Address{}.Hex()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ZERO_ADDRESS", errorCode(t, rec))

	rec = ts.do(t, http.MethodPut, "/api/v1/admin/bindings/oracle", adminAddr, BindingRequest{Address: next.Hex()})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/v1/admin/bindings/exchange", adminAddr, BindingRequest{Address: next.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, next, addressField(t, decode(t, rec), "exchange"))

	rec = ts.do(t, http.MethodPost, "/api/v1/bridge", alice, BridgeRequest{
		Asset: tokenA.Hex(), Amount: "1", DestinationDomain: 1, Recipient: alice.Hex(),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INTEGRATION_NOT_CONFIGURED", errorCode(t, rec))

	rec = ts.do(t, http.MethodPost, "/api/v1/admin/transfer", adminAddr, TransferAdminRequest{NewAdmin: alice.Hex()})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, alice, addressField(t, decode(t, rec), "admin"))
}

func TestNotificationEndpoints(t *testing.T) {
	ts := newTestServer(t, 0)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	var last *domain.Notification
	for i := 0; i < 3; i++ {
		last = domain.NewNotification(domain.NotificationSupplied, domain.OpSupply, alice, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, ts.store.SaveNotification(ctx, last))
	}
	require.NoError(t, ts.store.SaveNotification(ctx,
		domain.NewNotification(domain.NotificationRescued, domain.OpRescue, adminAddr, base)))

	rec := ts.do(t, http.MethodGet, "/api/v1/notifications?limit=2", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 2, body["total"])

	rec = ts.do(t, http.MethodGet, "/api/v1/notifications?caller=all", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, decode(t, rec)["total"])

	rec = ts.do(t, http.MethodGet, "/api/v1/notifications?limit=-1", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/notifications/%s", last.ID), alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, last.ID, decode(t, rec)["id"])

	rec = ts.do(t, http.MethodGet, "/api/v1/notifications/missing", alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/observers", alice, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, 0.001)

	first := ts.do(t, http.MethodGet, "/api/v1/settings", alice, nil)
	assert.Equal(t, http.StatusOK, first.Code)

	second := ts.do(t, http.MethodGet, "/api/v1/settings", alice, nil)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, second))

	// Health is outside the limited group.
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", common.Address{}, nil).Code)
}
