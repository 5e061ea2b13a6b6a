package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plm/liquidity-mesh-router/routing/cache"
	"github.com/plm/liquidity-mesh-router/routing/model"
	"github.com/plm/liquidity-mesh-router/routing/pipeline"
	"github.com/plm/liquidity-mesh-router/routing/router"
	"github.com/plm/liquidity-mesh-router/routing/scorer"
)

func newTestServer(t *testing.T) *httptest.Server {
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
	h := New(r, s, p)

	mux := http.NewServeMux()
	mux.Handle("/stream", h)
	return httptest.NewServer(mux)
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestSubscribePushesQuoteUpdate(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(subscribeRequest{
		Type: "subscribe", AmountIn: 100, FromToken: "USD", ToToken: "BRL",
	}))

	var update quoteUpdate
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, "quote_update", update.Type)
	assert.NotEmpty(t, update.QuoteID)
	assert.Greater(t, update.AmountOut, 0.0)
}

func TestSubscribeMissingFieldsReturnsError(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(subscribeRequest{Type: "subscribe", FromToken: "USD"}))

	var update quoteUpdate
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, "error", update.Type)
	assert.NotEmpty(t, update.Error)
}

func TestSubscribeNoRouteReturnsError(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(subscribeRequest{
		Type: "subscribe", AmountIn: 100, FromToken: "USD", ToToken: "ZZZ",
	}))

	var update quoteUpdate
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, "error", update.Type)
	assert.Equal(t, "no route available", update.Error)
}
