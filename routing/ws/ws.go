// Package ws implements the live quote stream supplementing the HTTP
// quote/execute surface: a client subscribes to a token pair once and
// receives a fresh scored quote every time the router's view of that pair
// changes, instead of polling /routing/quote/v2.
//
// Grounded on api/handlers/route_handler.go's gorilla/websocket upgrade and
// read-loop pattern, retargeted from one-shot country-route requests to a
// standing subscription that re-quotes on a ticker.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/plm/liquidity-mesh-router/routing/pipeline"
	"github.com/plm/liquidity-mesh-router/routing/router"
	"github.com/plm/liquidity-mesh-router/routing/scorer"
)

// requote is how often a live subscription is re-scored and pushed, chosen
// to sit below the provisional quote's 15s TTL so a connected client never
// sees an expired quote it hasn't been told about.
const requote = 10 * time.Second

// subscribeRequest is sent by the client to (re)subscribe to a pair.
type subscribeRequest struct {
	Type          string   `json:"type"` // "subscribe"
	AmountIn      float64  `json:"amountIn"`
	FromToken     string   `json:"fromToken"`
	ToToken       string   `json:"toToken"`
	Intermediates []string `json:"intermediates,omitempty"`
}

type quoteUpdate struct {
	Type         string          `json:"type"` // "quote_update" or "error"
	QuoteID      string          `json:"quoteId,omitempty"`
	AmountOut    float64         `json:"amountOut,omitempty"`
	NetAmountOut float64         `json:"netAmountOut,omitempty"`
	ExpiryTs     int64           `json:"expiryTs,omitempty"`
	Error        string          `json:"error,omitempty"`
	Route        json.RawMessage `json:"route,omitempty"`
}

// Handler upgrades HTTP connections to a live quote stream.
type Handler struct {
	router   *router.Router
	scorer   *scorer.Scorer
	pipeline *pipeline.Pipeline
	upgrader websocket.Upgrader
}

// New builds a live quote stream handler.
func New(r *router.Router, s *scorer.Scorer, p *pipeline.Pipeline) *Handler {
	return &Handler{
		router:   r,
		scorer:   s,
		pipeline: p,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs the subscribe/requote loop
// until the client disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ ws: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var (
		mu      sync.Mutex
		current subscribeRequest
		active  bool
	)

	ticker := time.NewTicker(requote)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mu.Lock()
				req := current
				ok := active
				mu.Unlock()
				if !ok {
					continue
				}
				h.pushQuote(conn, req)
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("⚠️  ws: client error: %v", err)
			}
			return
		}

		var req subscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			h.sendError(conn, "invalid subscribe message")
			continue
		}
		if req.Type != "subscribe" {
			continue
		}
		if req.AmountIn <= 0 || req.FromToken == "" || req.ToToken == "" {
			h.sendError(conn, "amountIn, fromToken and toToken are required")
			continue
		}

		mu.Lock()
		current = req
		active = true
		mu.Unlock()

		h.pushQuote(conn, req)
	}
}

func (h *Handler) pushQuote(conn *websocket.Conn, req subscribeRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result := h.router.GetBestRoute(ctx, req.AmountIn, req.FromToken, req.ToToken, req.Intermediates, 0)
	if result.Route == nil {
		h.sendError(conn, "no route available")
		return
	}

	net, meta := h.scorer.Score(result.Route, result.ParticipatingOTC)
	qType := scorer.QuoteType(result.Route)

	pq, err := h.pipeline.StoreProvisional(ctx, result.Route, req.AmountIn, result.Route.TotalOut, net, result.Route.TotalFeesBps, meta, qType)
	if err != nil {
		h.sendError(conn, "failed to store quote")
		return
	}

	routeJSON, err := json.Marshal(pq.Route)
	if err != nil {
		h.sendError(conn, "failed to encode route")
		return
	}

	update := quoteUpdate{
		Type:         "quote_update",
		QuoteID:      pq.QuoteID,
		AmountOut:    pq.AmountOut,
		NetAmountOut: pq.NetAmountOut,
		ExpiryTs:     pq.ExpiryTs,
		Route:        routeJSON,
	}
	h.send(conn, update)
}

func (h *Handler) send(conn *websocket.Conn, v interface{}) {
	if err := conn.WriteJSON(v); err != nil {
		log.Printf("⚠️  ws: write failed: %v", err)
	}
}

func (h *Handler) sendError(conn *websocket.Conn, msg string) {
	h.send(conn, quoteUpdate{Type: "error", Error: msg})
}
