package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plm/liquidity-mesh-router/api/middleware"
	"github.com/plm/liquidity-mesh-router/auth"
	"github.com/plm/liquidity-mesh-router/routing/cache"
	"github.com/plm/liquidity-mesh-router/routing/driver"
	"github.com/plm/liquidity-mesh-router/routing/model"
	"github.com/plm/liquidity-mesh-router/routing/pipeline"
	"github.com/plm/liquidity-mesh-router/routing/receipts"
	"github.com/plm/liquidity-mesh-router/routing/router"
	"github.com/plm/liquidity-mesh-router/routing/scorer"
	redisstore "github.com/plm/liquidity-mesh-router/storage/redis"
)

type noopExecutor struct{}

func (noopExecutor) Execute(ctx context.Context, step model.Step) (string, error) {
	return "0xstub", nil
}

func newTestHandlers(t *testing.T) (*Handlers, *cache.EdgeCache) {
	t.Helper()
	c := cache.NewEdgeCache(cache.NewMemoryStore())
	fb := 10
	q := &model.EdgeQuote{
		VenueID: "otc:venueA", VenueKind: model.VenueOTC,
		FromToken: "USD", ToToken: "BRL",
		AmountIn: 1, AmountOut: 5.4, FeeBps: &fb,
		ExpiryTs:      time.Now().UnixMilli() + 60_000,
		LastUpdatedTs: time.Now().UnixMilli(),
	}
	require.NoError(t, c.PutQuote(context.Background(), q))

	r := router.New(c)
	s := scorer.New(nil, nil)
	p := pipeline.New(cache.NewMemoryStore(), nil)
	d := driver.New(p, noopExecutor{}, 2, nil)

	return New(c, r, s, p, d, nil, nil, nil, nil, nil, nil, nil, nil), c
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleQuoteReturnsScoredQuote(t *testing.T) {
	h, _ := newTestHandlers(t)
	mux := http.NewServeMux()
	h.Register(mux)

	rec := doJSON(t, mux, http.MethodPost, "/routing/quote/v2", quoteRequest{
		AmountIn: 100, FromToken: "USD", ToToken: "BRL",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Quotes []quoteResponseItem `json:"quotes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Quotes, 1)
	assert.NotEmpty(t, resp.Quotes[0].QuoteID)
}

func TestHandleQuoteRejectsMissingFields(t *testing.T) {
	h, _ := newTestHandlers(t)
	mux := http.NewServeMux()
	h.Register(mux)

	rec := doJSON(t, mux, http.MethodPost, "/routing/quote/v2", quoteRequest{FromToken: "USD"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecuteFlowEndToEnd(t *testing.T) {
	h, _ := newTestHandlers(t)
	mux := http.NewServeMux()
	h.Register(mux)

	quoteRec := doJSON(t, mux, http.MethodPost, "/routing/quote/v2", quoteRequest{
		AmountIn: 100, FromToken: "USD", ToToken: "BRL",
	})
	require.Equal(t, http.StatusOK, quoteRec.Code)
	var quoteResp struct {
		Quotes []quoteResponseItem `json:"quotes"`
	}
	require.NoError(t, json.Unmarshal(quoteRec.Body.Bytes(), &quoteResp))
	require.Len(t, quoteResp.Quotes, 1)
	quoteID := quoteResp.Quotes[0].QuoteID

	execRec := doJSON(t, mux, http.MethodPost, "/routing/execute/v2", executeRequest{
		QuoteID: quoteID, ClientID: "client-1",
	})
	require.Equal(t, http.StatusOK, execRec.Code)

	var execResp map[string]interface{}
	require.NoError(t, json.Unmarshal(execRec.Body.Bytes(), &execResp))
	assert.NotEmpty(t, execResp["reservationId"])
	assert.NotNil(t, execResp["depositInstructions"])
}

func TestHandleReceiptRequiresExecutionID(t *testing.T) {
	c := cache.NewEdgeCache(cache.NewMemoryStore())
	r := router.New(c)
	s := scorer.New(nil, nil)
	p := pipeline.New(cache.NewMemoryStore(), nil)
	d := driver.New(p, noopExecutor{}, 2, nil)
	h := New(c, r, s, p, d, nil, nil, nil, nil, nil, receipts.NewGenerator("Test Co"), nil, nil)
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/routing/receipt", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleReceiptWithoutGeneratorReturnsNotFound(t *testing.T) {
	h, _ := newTestHandlers(t)
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/routing/receipt?executionId=exec-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleReceiptUnknownExecutionReturnsNotFound(t *testing.T) {
	c := cache.NewEdgeCache(cache.NewMemoryStore())
	r := router.New(c)
	s := scorer.New(nil, nil)
	p := pipeline.New(cache.NewMemoryStore(), nil)
	d := driver.New(p, noopExecutor{}, 2, nil)
	h := New(c, r, s, p, d, nil, nil, nil, nil, nil, receipts.NewGenerator("Test Co"), nil, nil)

	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/routing/receipt?executionId=nonexistent", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleStatusNotFound(t *testing.T) {
	h, _ := newTestHandlers(t)
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/routing/status?executionId=nonexistent", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleInspectQuotesRequiresTokens(t *testing.T) {
	h, _ := newTestHandlers(t)
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/routing/quotes", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleInspectQuotesIncludesLiquidityDistribution(t *testing.T) {
	h, _ := newTestHandlers(t)
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/routing/quotes?fromToken=USD&toToken=BRL", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	dist, ok := resp["liquidityDistribution"].(map[string]interface{})
	require.True(t, ok, "expected a liquidityDistribution object")
	assert.EqualValues(t, 1, dist["venueCount"])
}

func TestHandleAuditIntegrityWithNoLedgerReturnsEmptyResult(t *testing.T) {
	h, _ := newTestHandlers(t)
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/routing/audit/integrity", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 0, resp["entriesChecked"])
	assert.EqualValues(t, 0, resp["brokenLinks"])
}

func TestHandleAuditEntryRequiresID(t *testing.T) {
	h, _ := newTestHandlers(t)
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/routing/audit/entry", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAuditEntryWithNoLedgerReturnsNotFound(t *testing.T) {
	h, _ := newTestHandlers(t)
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/routing/audit/entry?id=entry-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleExecuteRejectsOverRateLimitClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	limiter := redisstore.NewRateLimiter(rdb)

	c := cache.NewEdgeCache(cache.NewMemoryStore())
	r := router.New(c)
	s := scorer.New(nil, nil)
	p := pipeline.New(cache.NewMemoryStore(), nil)
	d := driver.New(p, noopExecutor{}, 2, nil)
	h := New(c, r, s, p, d, nil, nil, nil, nil, limiter, nil, nil, nil)

	mux := http.NewServeMux()
	h.Register(mux)

	oldLimit := executeRateLimit.Limit
	executeRateLimit.Limit = 1
	t.Cleanup(func() { executeRateLimit.Limit = oldLimit })

	body := executeRequest{QuoteID: "nonexistent", ClientID: "rate-client"}
	first := doJSON(t, mux, http.MethodPost, "/routing/execute/v2", body)
	assert.Equal(t, http.StatusNotFound, first.Code)

	second := doJSON(t, mux, http.MethodPost, "/routing/execute/v2", body)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func doJSONWithAuth(t *testing.T, mux *http.ServeMux, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleExecuteRejectsAdminTokenButAllowsRegularUser(t *testing.T) {
	tm, err := auth.NewTokenManager(&auth.TokenConfig{
		SymmetricKey: "test-symmetric-key-32-bytes-ok!!",
		Issuer:       "test-issuer",
		TokenTTL:     time.Hour,
	})
	require.NoError(t, err)
	am := middleware.NewAuthMiddleware(tm)

	c := cache.NewEdgeCache(cache.NewMemoryStore())
	r := router.New(c)
	s := scorer.New(nil, nil)
	p := pipeline.New(cache.NewMemoryStore(), nil)
	d := driver.New(p, noopExecutor{}, 2, nil)
	h := New(c, r, s, p, d, nil, nil, nil, am, nil, nil, nil, nil)

	mux := http.NewServeMux()
	h.Register(mux)

	adminToken, _, err := tm.GenerateToken(&auth.User{ID: "admin1", Username: "root", Role: auth.RoleAdmin})
	require.NoError(t, err)
	adminRec := doJSONWithAuth(t, mux, http.MethodPost, "/routing/execute/v2", adminToken, executeRequest{QuoteID: "x", ClientID: "c1"})
	assert.Equal(t, http.StatusForbidden, adminRec.Code)

	userToken, _, err := tm.GenerateToken(&auth.User{ID: "u1", Username: "alice", Role: auth.RoleUser})
	require.NoError(t, err)
	userRec := doJSONWithAuth(t, mux, http.MethodPost, "/routing/execute/v2", userToken, executeRequest{QuoteID: "nonexistent", ClientID: "c1"})
	assert.Equal(t, http.StatusNotFound, userRec.Code)
}

func TestHandleAdminStatsWithoutOptionalCollaboratorsOmitsTheirFields(t *testing.T) {
	h, _ := newTestHandlers(t)
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/routing/admin/stats", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	_, hasPrefetch := resp["prefetchPool"]
	_, hasCircuits := resp["circuits"]
	assert.False(t, hasPrefetch)
	assert.False(t, hasCircuits)
	execPool, ok := resp["executionPool"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 0, execPool["submitted"])
}

func TestHandleListCircuitsWithoutBreakerReturnsEmpty(t *testing.T) {
	h, _ := newTestHandlers(t)
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/routing/admin/circuits", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	circuits, ok := resp["circuits"].(map[string]interface{})
	require.True(t, ok)
	assert.Empty(t, circuits)
}

func TestHandleCircuitActionForceOpenThenListThenReset(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	breaker := redisstore.NewCircuitBreaker(rdb)

	c := cache.NewEdgeCache(cache.NewMemoryStore())
	r := router.New(c)
	s := scorer.New(nil, nil)
	p := pipeline.New(cache.NewMemoryStore(), nil)
	d := driver.New(p, noopExecutor{}, 2, nil)
	h := New(c, r, s, p, d, nil, nil, nil, nil, nil, nil, breaker, nil)

	mux := http.NewServeMux()
	h.Register(mux)

	forceRec := doJSON(t, mux, http.MethodPost, "/routing/admin/circuits/action", circuitActionRequest{Name: "venueA", Action: "forceOpen"})
	require.Equal(t, http.StatusOK, forceRec.Code)

	listRec := httptest.NewRecorder()
	mux.ServeHTTP(listRec, httptest.NewRequest(http.MethodGet, "/routing/admin/circuits", nil))
	var listResp map[string]interface{}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &listResp))
	circuits := listResp["circuits"].(map[string]interface{})
	assert.Contains(t, circuits, "venueA")

	resetRec := doJSON(t, mux, http.MethodPost, "/routing/admin/circuits/action", circuitActionRequest{Name: "venueA", Action: "reset"})
	assert.Equal(t, http.StatusOK, resetRec.Code)
}

func TestHandleCircuitActionRejectsUnknownAction(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	breaker := redisstore.NewCircuitBreaker(rdb)

	c := cache.NewEdgeCache(cache.NewMemoryStore())
	r := router.New(c)
	s := scorer.New(nil, nil)
	p := pipeline.New(cache.NewMemoryStore(), nil)
	d := driver.New(p, noopExecutor{}, 2, nil)
	h := New(c, r, s, p, d, nil, nil, nil, nil, nil, nil, breaker, nil)

	mux := http.NewServeMux()
	h.Register(mux)

	rec := doJSON(t, mux, http.MethodPost, "/routing/admin/circuits/action", circuitActionRequest{Name: "venueA", Action: "nonsense"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRateLimitResetWithoutLimiterReturnsNotFound(t *testing.T) {
	h, _ := newTestHandlers(t)
	mux := http.NewServeMux()
	h.Register(mux)

	rec := doJSON(t, mux, http.MethodPost, "/routing/admin/ratelimit/reset", rateLimitResetRequest{ClientID: "rate-client"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleRateLimitResetClearsBucket(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	limiter := redisstore.NewRateLimiter(rdb)

	c := cache.NewEdgeCache(cache.NewMemoryStore())
	r := router.New(c)
	s := scorer.New(nil, nil)
	p := pipeline.New(cache.NewMemoryStore(), nil)
	d := driver.New(p, noopExecutor{}, 2, nil)
	h := New(c, r, s, p, d, nil, nil, nil, nil, limiter, nil, nil, nil)

	mux := http.NewServeMux()
	h.Register(mux)

	oldLimit := executeRateLimit.Limit
	executeRateLimit.Limit = 1
	t.Cleanup(func() { executeRateLimit.Limit = oldLimit })

	body := executeRequest{QuoteID: "nonexistent", ClientID: "rate-client"}
	first := doJSON(t, mux, http.MethodPost, "/routing/execute/v2", body)
	assert.Equal(t, http.StatusNotFound, first.Code)

	blocked := doJSON(t, mux, http.MethodPost, "/routing/execute/v2", body)
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)

	resetRec := doJSON(t, mux, http.MethodPost, "/routing/admin/ratelimit/reset", rateLimitResetRequest{ClientID: "rate-client"})
	require.Equal(t, http.StatusOK, resetRec.Code)

	again := doJSON(t, mux, http.MethodPost, "/routing/execute/v2", body)
	assert.Equal(t, http.StatusNotFound, again.Code)
}
