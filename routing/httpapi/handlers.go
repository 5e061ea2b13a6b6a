// Package httpapi implements the §6 HTTP surface under /routing, following
// api/handlers/route_handler.go's pattern of bounded request contexts and
// "return 200 with error-in-body" handling for routing failures, and
// api/handlers/payment_handler.go's JSON request/response shapes for the
// payment lifecycle endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/plm/liquidity-mesh-router/api/middleware"
	"github.com/plm/liquidity-mesh-router/pkg/entropy"
	"github.com/plm/liquidity-mesh-router/routing/cache"
	"github.com/plm/liquidity-mesh-router/routing/driver"
	"github.com/plm/liquidity-mesh-router/routing/eventing"
	"github.com/plm/liquidity-mesh-router/routing/ledger"
	"github.com/plm/liquidity-mesh-router/routing/model"
	"github.com/plm/liquidity-mesh-router/routing/orchestrator"
	"github.com/plm/liquidity-mesh-router/routing/pipeline"
	"github.com/plm/liquidity-mesh-router/routing/receipts"
	"github.com/plm/liquidity-mesh-router/routing/router"
	"github.com/plm/liquidity-mesh-router/routing/scorer"
	"github.com/plm/liquidity-mesh-router/routing/telemetry"
	redisstore "github.com/plm/liquidity-mesh-router/storage/redis"
)

// executeRateLimit bounds each clientId to a modest burst of execute calls
// per minute, independent of how many quote requests it makes.
var executeRateLimit = &redisstore.RateLimitConfig{Limit: 20, Window: time.Minute}

// routeRequestTimeout bounds every router call, matching
// route_handler.go's existing 5s context-timeout convention.
const routeRequestTimeout = 5 * time.Second

// Handlers wires the routing core onto an HTTP mux.
type Handlers struct {
	cache     *cache.EdgeCache
	router    *router.Router
	scorer    *scorer.Scorer
	pipeline  *pipeline.Pipeline
	driver    *driver.Driver
	ledger    *ledger.Ledger
	telemetry *telemetry.Sink
	events    *eventing.Publisher
	auth      *middleware.AuthMiddleware
	limiter   *redisstore.RateLimiter
	receipts  *receipts.Generator
	breaker   *redisstore.CircuitBreaker
	orch      *orchestrator.Orchestrator
}

// New builds the HTTP handler set. ledger, telemetry, events, auth, limiter,
// receiptGen, breaker and orch may all be nil — each collaborator is
// best-effort and nil-safe; with events nil the webhook advances the driver
// directly instead of publishing, with auth nil /routing/execute/v2 accepts
// unauthenticated requests (the deployment's default, development mode),
// with limiter nil execute requests are never rate limited, with receiptGen
// nil /routing/receipt returns 404 rather than 500, with breaker nil
// /routing/admin/circuits reports no circuits rather than erroring, and with
// orch nil /routing/admin/stats simply omits the prefetchPool field.
func New(c *cache.EdgeCache, r *router.Router, s *scorer.Scorer, p *pipeline.Pipeline, d *driver.Driver, l *ledger.Ledger, t *telemetry.Sink, ev *eventing.Publisher, am *middleware.AuthMiddleware, limiter *redisstore.RateLimiter, receiptGen *receipts.Generator, breaker *redisstore.CircuitBreaker, orch *orchestrator.Orchestrator) *Handlers {
	return &Handlers{cache: c, router: r, scorer: s, pipeline: p, driver: d, ledger: l, telemetry: t, events: ev, auth: am, limiter: limiter, receipts: receiptGen, breaker: breaker, orch: orch}
}

// Register mounts every /routing/* route on the given mux, mirroring
// cmd/server/main.go's plain http.NewServeMux() composition style. Every
// route is wrapped with security headers, CSRF origin checking on mutating
// methods, and request-size limiting; /routing/execute/v2 additionally
// requires a bearer token belonging to a non-admin user when an
// AuthMiddleware was configured (admins do not execute payments), and
// /routing/audit/integrity additionally requires an admin token.
func (h *Handlers) Register(mux *http.ServeMux) {
	wrap := middleware.Chain(middleware.SecurityHeaders, middleware.CSRFMiddleware, middleware.InputValidation)

	execute := http.Handler(http.HandlerFunc(h.handleExecute))
	if h.auth != nil {
		execute = h.auth.Authenticate(h.auth.RequireUser(execute))
	}

	mux.Handle("/routing/quote/v2", wrap(http.HandlerFunc(h.handleQuote)))
	mux.Handle("/routing/execute/v2", wrap(execute))
	mux.Handle("/routing/webhooks/deposit", wrap(http.HandlerFunc(h.handleDepositWebhook)))
	mux.Handle("/routing/status", wrap(http.HandlerFunc(h.handleStatus)))
	mux.Handle("/routing/quotes", wrap(http.HandlerFunc(h.handleInspectQuotes)))
	mux.Handle("/routing/receipt", wrap(http.HandlerFunc(h.handleReceipt)))

	integrity := http.Handler(http.HandlerFunc(h.handleAuditIntegrity))
	entry := http.Handler(http.HandlerFunc(h.handleAuditEntry))
	if h.auth != nil {
		integrity = h.auth.Authenticate(h.auth.RequireAdmin(integrity))
		entry = h.auth.Authenticate(h.auth.RequireAdmin(entry))
	}
	mux.Handle("/routing/audit/integrity", wrap(integrity))
	mux.Handle("/routing/audit/entry", wrap(entry))

	stats := http.Handler(http.HandlerFunc(h.handleAdminStats))
	if h.auth != nil {
		stats = h.auth.Authenticate(h.auth.RequireAdmin(stats))
	}
	mux.Handle("/routing/admin/stats", wrap(stats))

	circuits := http.Handler(http.HandlerFunc(h.handleListCircuits))
	circuitAction := http.Handler(http.HandlerFunc(h.handleCircuitAction))
	if h.auth != nil {
		circuits = h.auth.Authenticate(h.auth.RequireAdmin(circuits))
		circuitAction = h.auth.Authenticate(h.auth.RequireAdmin(circuitAction))
	}
	mux.Handle("/routing/admin/circuits", wrap(circuits))
	mux.Handle("/routing/admin/circuits/action", wrap(circuitAction))

	rateLimitReset := http.Handler(http.HandlerFunc(h.handleRateLimitReset))
	if h.auth != nil {
		rateLimitReset = h.auth.Authenticate(h.auth.RequireAdmin(rateLimitReset))
	}
	mux.Handle("/routing/admin/ratelimit/reset", wrap(rateLimitReset))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("❌ httpapi: failed to encode response: %v", err)
	}
}

// --- POST /routing/quote/v2 -------------------------------------------------

type quoteRequest struct {
	AmountIn      float64  `json:"amountIn"`
	FromToken     string   `json:"fromToken"`
	ToToken       string   `json:"toToken"`
	Intermediates []string `json:"intermediates,omitempty"`
	MinExpiryMs   int64    `json:"minExpiryMs,omitempty"`
	ClientID      string   `json:"clientId,omitempty"`
	Priority      string   `json:"priority,omitempty"`
}

type quoteResponseItem struct {
	QuoteID      string            `json:"quoteId"`
	Route        *model.Route      `json:"route"`
	AmountOut    float64           `json:"amountOut"`
	NetAmountOut float64           `json:"netAmountOut"`
	ExpiryTs     int64             `json:"expiryTs"`
	Type         model.QuoteType   `json:"type"`
	Confidence   float64           `json:"confidence"`
	ScoringMeta  model.ScoringMeta `json:"scoringMeta"`
}

func (h *Handlers) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.AmountIn <= 0 || req.FromToken == "" || req.ToToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amountIn, fromToken and toToken are required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), routeRequestTimeout)
	defer cancel()

	result := h.router.GetBestRoute(ctx, req.AmountIn, req.FromToken, req.ToToken, req.Intermediates, req.MinExpiryMs)
	h.telemetry.RecordRoute(ctx, result.Route)

	if result.Route == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"quotes": []quoteResponseItem{}})
		return
	}

	net, meta := h.scorer.Score(result.Route, result.ParticipatingOTC)
	qType := scorer.QuoteType(result.Route)

	pq, err := h.pipeline.StoreProvisional(ctx, result.Route, req.AmountIn, result.Route.TotalOut, net, result.Route.TotalFeesBps, meta, qType)
	if err != nil {
		log.Printf("❌ httpapi: failed to store provisional quote: %v", err)
		writeJSON(w, http.StatusOK, map[string]interface{}{"quotes": []quoteResponseItem{}})
		return
	}

	item := quoteResponseItem{
		QuoteID:      pq.QuoteID,
		Route:        pq.Route,
		AmountOut:    pq.AmountOut,
		NetAmountOut: pq.NetAmountOut,
		ExpiryTs:     pq.ExpiryTs,
		Type:         pq.Type,
		Confidence:   meta.Confidence,
		ScoringMeta:  meta,
	}
	items := []quoteResponseItem{item}
	sort.Slice(items, func(i, j int) bool { return items[i].NetAmountOut > items[j].NetAmountOut })

	writeJSON(w, http.StatusOK, map[string]interface{}{"quotes": items})
}

// --- POST /routing/execute/v2 ----------------------------------------------

type executeRequest struct {
	QuoteID  string `json:"quoteId"`
	ClientID string `json:"clientId"`
}

func (h *Handlers) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuoteID == "" || req.ClientID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quoteId and clientId are required"})
		return
	}
	req.ClientID = middleware.SanitizeInput(req.ClientID)

	ctx := r.Context()

	if claims := middleware.GetClaimsFromContext(ctx); claims != nil {
		log.Printf("📝 httpapi: execute request for quote %s by user %s", req.QuoteID, claims.Username)
	}

	if h.limiter != nil {
		cfg := &redisstore.RateLimitConfig{Key: "execute:" + req.ClientID, Limit: executeRateLimit.Limit, Window: executeRateLimit.Window}
		result, err := h.limiter.Allow(ctx, cfg)
		if err != nil {
			log.Printf("⚠️  httpapi: rate limit check failed, allowing request: %v", err)
		} else if !result.Allowed {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many execute requests, try again later"})
			return
		}
	}

	provisional, err := h.pipeline.GetProvisional(ctx, req.QuoteID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "quote not found or expired"})
		return
	}
	if provisional.Route == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quote has no route"})
		return
	}

	reserved, err := h.pipeline.Reserve(ctx, req.QuoteID, req.ClientID, nil)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "quote not found or expired"})
		return
	}

	instructions, _, err := h.pipeline.IssueDeposit(ctx, req.QuoteID, req.ClientID, reserved)
	if err != nil {
		log.Printf("❌ httpapi: failed to issue deposit for %s: %v", req.QuoteID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	if execRec, err := h.pipeline.CreateExecution(ctx, req.QuoteID, reserved.Route, nil); err != nil {
		log.Printf("❌ httpapi: failed to create execution for %s: %v", req.QuoteID, err)
	} else {
		h.ledger.RecordTransition(ctx, execRec)
	}

	resp := map[string]interface{}{
		"reservationId":       reserved.ReservationID,
		"quoteId":             req.QuoteID,
		"status":              model.StatusPendingApproval,
		"depositInstructions": instructions,
		"reservedUntil":       reserved.ReservedUntilTs,
	}
	if reserved.OTCReservationMeta != nil {
		resp["otcReservationId"] = reserved.OTCReservationMeta.OTCReservationID
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- POST /routing/webhooks/deposit ----------------------------------------

type depositWebhookRequest struct {
	PaymentReference string  `json:"paymentReference"`
	AmountReceived   float64 `json:"amountReceived"`
	BankTxID         string  `json:"bankTxId,omitempty"`
	Source           string  `json:"source,omitempty"`
}

func (h *Handlers) handleDepositWebhook(w http.ResponseWriter, r *http.Request) {
	var req depositWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PaymentReference == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": false})
		return
	}

	ctx := r.Context()

	record, alreadyConfirmed, err := h.pipeline.ConfirmDeposit(ctx, req.PaymentReference, req.AmountReceived, req.BankTxID)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": false})
		return
	}

	exec, err := h.pipeline.GetExecutionByQuote(ctx, record.QuoteID)
	if err != nil {
		log.Printf("❌ httpapi: deposit confirmed but no execution found for quote %s: %v", record.QuoteID, err)
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "depositId": record.DepositID})
		return
	}

	if !alreadyConfirmed {
		if exec.Status == model.StatusPendingApproval {
			approved, err := h.pipeline.ApproveExecution(ctx, exec.ExecutionID, exec.ApprovalToken)
			if err != nil {
				log.Printf("❌ httpapi: failed to approve execution %s on deposit: %v", exec.ExecutionID, err)
			} else {
				h.ledger.RecordTransition(ctx, approved)
			}
		}
		if h.events != nil {
			if err := h.events.Publish(ctx, eventing.DepositConfirmedEvent{
				ExecutionID: exec.ExecutionID,
				QuoteID:     exec.QuoteID,
				DepositID:   record.DepositID,
			}); err != nil {
				log.Printf("⚠️  httpapi: failed to publish deposit-confirmed event, advancing directly: %v", err)
				h.driver.Advance(context.Background(), exec.ExecutionID)
			}
		} else {
			h.driver.Advance(context.Background(), exec.ExecutionID)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"depositId":   record.DepositID,
		"executionId": exec.ExecutionID,
	})
}

// --- GET /routing/status -----------------------------------------------------

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	executionID := r.URL.Query().Get("executionId")
	if executionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "executionId is required"})
		return
	}

	exec, err := h.pipeline.GetExecution(r.Context(), executionID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "execution not found"})
		return
	}

	resp := map[string]interface{}{
		"executionId":       exec.ExecutionID,
		"status":            exec.Status,
		"route":             exec.Route,
		"transactionHashes": exec.TransactionHashes,
		"currentStep":       exec.CurrentStep,
	}
	if exec.CompletedAt != nil {
		resp["completedAt"] = *exec.CompletedAt
	}
	if exec.Error != "" {
		resp["error"] = exec.Error
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- GET /routing/receipt -----------------------------------------------------

// handleReceipt renders a completed execution as a signed PDF
// deposit-confirmation receipt. An execution that is not COMPLETED gets
// 409, and one with no deposit on record gets 404, rather than a receipt
// for money that never moved.
func (h *Handlers) handleReceipt(w http.ResponseWriter, r *http.Request) {
	if h.receipts == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "receipts are not configured"})
		return
	}

	executionID := r.URL.Query().Get("executionId")
	if executionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "executionId is required"})
		return
	}

	ctx := r.Context()

	exec, err := h.pipeline.GetExecution(ctx, executionID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "execution not found"})
		return
	}
	if exec.Status != model.StatusCompleted {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "execution has not completed"})
		return
	}

	deposit, err := h.pipeline.GetDepositByQuote(ctx, exec.QuoteID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no deposit on record for this execution"})
		return
	}

	pdf, err := h.receipts.GeneratePDF(exec, deposit)
	if err != nil {
		log.Printf("❌ httpapi: receipt generation failed for execution %s: %v", executionID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "receipt generation failed"})
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=receipt-"+executionID+".pdf")
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

// --- GET /routing/quotes ------------------------------------------------------

// --- GET /routing/audit/integrity -------------------------------------------

func (h *Handlers) handleAuditIntegrity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	results, err := h.ledger.VerifyIntegrity(ctx)
	if err != nil {
		log.Printf("❌ httpapi: ledger integrity check failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "integrity check failed"})
		return
	}

	broken := 0
	for _, res := range results {
		if !res.IsValid {
			broken++
		}
	}

	entries, err := h.ledger.RecentEntries(ctx, 50)
	if err != nil {
		log.Printf("⚠️  httpapi: failed to load recent ledger entries: %v", err)
	}
	sanitizedEntries := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		var meta map[string]interface{}
		if len(entry.Metadata) > 0 {
			if err := json.Unmarshal(entry.Metadata, &meta); err == nil {
				for k, v := range meta {
					if s, ok := v.(string); ok {
						// admin-only view: preserve any embedded markup rather
						// than HTML-escaping it, only strip control characters
						meta[k] = middleware.SanitizeInputPreserveHTML(s)
					}
				}
			}
		}
		sanitizedEntries = append(sanitizedEntries, map[string]interface{}{
			"id":           entry.ID,
			"sequenceNum":  entry.SequenceNum,
			"amount":       entry.Amount,
			"currentHash":  entry.CurrentHash,
			"previousHash": entry.PreviousHash,
			"createdAt":    entry.CreatedAt,
			"metadata":     meta,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entriesChecked": len(results),
		"brokenLinks":    broken,
		"results":        results,
		"recentEntries":  sanitizedEntries,
	})
}

// --- GET /routing/audit/entry -------------------------------------------

func (h *Handlers) handleAuditEntry(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id is required"})
		return
	}

	entry, err := h.ledger.Entry(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ledger entry not found"})
		return
	}
	if entry == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ledger entry not found"})
		return
	}

	var meta map[string]interface{}
	if len(entry.Metadata) > 0 {
		if err := json.Unmarshal(entry.Metadata, &meta); err == nil {
			for k, v := range meta {
				if s, ok := v.(string); ok {
					meta[k] = middleware.SanitizeInputPreserveHTML(s)
				}
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":           entry.ID,
		"sequenceNum":  entry.SequenceNum,
		"amount":       entry.Amount,
		"currentHash":  entry.CurrentHash,
		"previousHash": entry.PreviousHash,
		"createdAt":    entry.CreatedAt,
		"metadata":     meta,
	})
}

// --- GET /routing/admin/stats -----------------------------------------------

// handleAdminStats reports prefetch and execution worker pool counters
// alongside circuit breaker state, for operator visibility into the
// deployment's overall health beyond any single execution or pair.
func (h *Handlers) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{}
	if h.orch != nil {
		resp["prefetchPool"] = h.orch.PoolStats()
	}
	if h.driver != nil {
		resp["executionPool"] = h.driver.PoolStats()
	}
	if h.breaker != nil {
		circuits, err := h.breaker.GetAllCircuits(r.Context())
		if err != nil {
			log.Printf("❌ httpapi: admin stats circuit lookup failed: %v", err)
		} else {
			resp["circuits"] = circuits
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- GET /routing/admin/circuits, POST /routing/admin/circuits/action ------

// handleListCircuits reports the current state of every provider circuit
// breaker this deployment has tripped or observed, for operator visibility
// into which venues are currently excluded from the prefetch orchestrator.
func (h *Handlers) handleListCircuits(w http.ResponseWriter, r *http.Request) {
	if h.breaker == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"circuits": map[string]interface{}{}})
		return
	}
	circuits, err := h.breaker.GetAllCircuits(r.Context())
	if err != nil {
		log.Printf("❌ httpapi: list circuits failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list circuits"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"circuits": circuits})
}

type circuitActionRequest struct {
	Name   string `json:"name"`
	Action string `json:"action"` // "reset" or "forceOpen"
}

// handleCircuitAction lets an operator manually reset a tripped circuit
// breaker once the underlying venue is confirmed healthy again, or force one
// open ahead of planned venue maintenance, without waiting for the
// orchestrator's own failure/success counting to catch up.
func (h *Handlers) handleCircuitAction(w http.ResponseWriter, r *http.Request) {
	if h.breaker == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "circuit breaker is not configured"})
		return
	}
	var req circuitActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	cfg := redisstore.DefaultCircuitBreakerConfig(req.Name)
	var err error
	switch req.Action {
	case "reset":
		err = h.breaker.Reset(r.Context(), cfg)
	case "forceOpen":
		err = h.breaker.ForceOpen(r.Context(), cfg)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "action must be 'reset' or 'forceOpen'"})
		return
	}
	if err != nil {
		log.Printf("❌ httpapi: circuit action %s on %s failed: %v", req.Action, req.Name, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "circuit action failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": req.Name, "action": req.Action})
}

type rateLimitResetRequest struct {
	ClientID string `json:"clientId"`
}

// handleRateLimitReset clears a client's execute-endpoint rate limit bucket,
// for an operator unblocking a client after a confirmed false positive
// (misconfigured retry loop now fixed, shared NAT address, etc.) without
// waiting out the sliding window.
func (h *Handlers) handleRateLimitReset(w http.ResponseWriter, r *http.Request) {
	if h.limiter == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "rate limiting is not configured"})
		return
	}
	var req rateLimitResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ClientID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "clientId is required"})
		return
	}

	key := "execute:" + middleware.SanitizeInput(req.ClientID)
	if err := h.limiter.Reset(r.Context(), key); err != nil {
		log.Printf("❌ httpapi: rate limit reset for %s failed: %v", req.ClientID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "rate limit reset failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"clientId": req.ClientID})
}

func (h *Handlers) handleInspectQuotes(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("fromToken")
	to := r.URL.Query().Get("toToken")
	if from == "" || to == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "fromToken and toToken are required"})
		return
	}

	quotes, err := h.cache.GetCachedByPair(r.Context(), from, to)
	if err != nil {
		log.Printf("❌ httpapi: inspect quotes failed: %v", err)
		writeJSON(w, http.StatusOK, map[string]interface{}{"quotes": []model.EdgeQuote{}})
		return
	}

	resp := map[string]interface{}{"quotes": quotes}
	if len(quotes) > 0 {
		resp["liquidityDistribution"] = venueLiquidityEntropy(from, to, quotes)
	}
	writeJSON(w, http.StatusOK, resp)
}

// venueLiquidityEntropy reports how evenly a pair's available liquidity is
// spread across its quoting venues: high entropy means many venues quote
// comparable size, low entropy means one venue dominates and a provider
// outage on it would starve the pair.
func venueLiquidityEntropy(from, to string, quotes []*model.EdgeQuote) map[string]interface{} {
	distribution := make(map[string]float64, len(quotes))
	for _, q := range quotes {
		distribution[q.VenueID] += q.AmountOut
	}
	node := entropy.CalculateNodeEntropy(from+"/"+to, distribution)
	return map[string]interface{}{
		"entropy":           node.Entropy,
		"normalizedEntropy": node.NormalizedEntropy,
		"volatility":        node.Volatility(),
		"venueCount":        len(distribution),
	}
}
