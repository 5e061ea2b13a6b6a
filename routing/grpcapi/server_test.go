package grpcapi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plm/liquidity-mesh-router/routing/cache"
	"github.com/plm/liquidity-mesh-router/routing/model"
	"github.com/plm/liquidity-mesh-router/routing/pipeline"
	"github.com/plm/liquidity-mesh-router/routing/router"
	"github.com/plm/liquidity-mesh-router/routing/scorer"
)

func newTestService(t *testing.T) RoutingServiceServer {
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
	require.NoError(t, q.Valid())
	require.NoError(t, c.PutQuote(context.Background(), q))

	return NewRoutingService(router.New(c), scorer.New(nil, nil), pipeline.New(cache.NewMemoryStore(), nil))
}

func TestServiceQuoteReturnsScoredQuote(t *testing.T) {
	s := newTestService(t)
	reply, err := s.Quote(context.Background(), &QuoteRequest{AmountIn: 100, FromToken: "USD", ToToken: "BRL"})
	require.NoError(t, err)
	assert.NotEmpty(t, reply.QuoteID)
	assert.Greater(t, reply.AmountOut, 0.0)
}

func TestServiceQuoteNoRouteReturnsError(t *testing.T) {
	s := newTestService(t)
	_, err := s.Quote(context.Background(), &QuoteRequest{AmountIn: 100, FromToken: "USD", ToToken: "ZZZ"})
	assert.Error(t, err)
}

func TestServiceExecuteFlow(t *testing.T) {
	s := newTestService(t)
	quote, err := s.Quote(context.Background(), &QuoteRequest{AmountIn: 100, FromToken: "USD", ToToken: "BRL"})
	require.NoError(t, err)

	exec, err := s.Execute(context.Background(), &ExecuteRequest{QuoteID: quote.QuoteID, ClientID: "client-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, exec.ReservationID)
	assert.Equal(t, string(model.StatusPendingApproval), exec.Status)
}

func TestDefaultServerConfigHasSaneDefaults(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, ":50061", cfg.Address)
	assert.Equal(t, uint32(1000), cfg.MaxConcurrentStreams)
	assert.Equal(t, 30*time.Second, cfg.KeepaliveTime)
}

func TestNewServerWithoutTLSSucceeds(t *testing.T) {
	srv, err := NewServer(nil, nil, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, srv.GRPCServer())
}
