package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plm/liquidity-mesh-router/routing/cache"
	"github.com/plm/liquidity-mesh-router/routing/model"
)

func seedQuote(t *testing.T, c *cache.EdgeCache, venueID, from, to string, amountIn, amountOut float64, feeBps int) {
	t.Helper()
	fb := feeBps
	q := &model.EdgeQuote{
		VenueID: venueID, VenueKind: model.VenueOTC,
		FromToken: from, ToToken: to,
		AmountIn: amountIn, AmountOut: amountOut,
		FeeBps:        &fb,
		ExpiryTs:      time.Now().UnixMilli() + 60_000,
		LastUpdatedTs: time.Now().UnixMilli(),
	}
	require.NoError(t, c.PutQuote(context.Background(), q))
}

func TestGetBestRouteDirectHop(t *testing.T) {
	c := cache.NewEdgeCache(cache.NewMemoryStore())
	seedQuote(t, c, "otc:venueA", "USD", "BRL", 1, 5.4, 10)

	r := New(c)
	result := r.GetBestRoute(context.Background(), 100, "USD", "BRL", nil, 0)

	require.NotNil(t, result.Route)
	assert.Len(t, result.Route.Steps, 1)
	assert.Equal(t, "USD", result.Route.FromToken)
	assert.Equal(t, "BRL", result.Route.ToToken)
	assert.InDelta(t, 100*5.4*0.999, result.Route.TotalOut, 0.01)
}

func TestGetBestRoutePrefersHigherOutput(t *testing.T) {
	c := cache.NewEdgeCache(cache.NewMemoryStore())
	seedQuote(t, c, "otc:cheap", "USD", "BRL", 1, 5.0, 0)
	seedQuote(t, c, "otc:rich", "USD", "BRL", 1, 5.5, 0)

	r := New(c)
	result := r.GetBestRoute(context.Background(), 100, "USD", "BRL", nil, 0)

	require.NotNil(t, result.Route)
	require.Len(t, result.Route.Steps, 1)
	assert.Equal(t, "otc:rich", result.Route.Steps[0].VenueID)
}

func TestGetBestRouteViaIntermediate(t *testing.T) {
	c := cache.NewEdgeCache(cache.NewMemoryStore())
	seedQuote(t, c, "otc:hub1", "USD", "USDC", 1, 1, 0)
	seedQuote(t, c, "otc:hub2", "USDC", "BRL", 1, 5.3, 0)

	r := New(c)
	result := r.GetBestRoute(context.Background(), 100, "USD", "BRL", []string{"USDC"}, 0)

	require.NotNil(t, result.Route)
	assert.Len(t, result.Route.Steps, 2)
	assert.Equal(t, "USDC", result.Route.Steps[0].ToToken)
}

func TestGetBestRouteNoEdgesReturnsEmptyResult(t *testing.T) {
	c := cache.NewEdgeCache(cache.NewMemoryStore())
	r := New(c)
	result := r.GetBestRoute(context.Background(), 100, "USD", "ZZZ", nil, 0)
	assert.Nil(t, result.Route)
}

func TestGetBestRouteHonorsMinExpiry(t *testing.T) {
	c := cache.NewEdgeCache(cache.NewMemoryStore())
	fb := 0
	q := &model.EdgeQuote{
		VenueID: "otc:soon", VenueKind: model.VenueOTC,
		FromToken: "USD", ToToken: "BRL",
		AmountIn: 1, AmountOut: 5.4, FeeBps: &fb,
		ExpiryTs:      time.Now().UnixMilli() + 2000,
		LastUpdatedTs: time.Now().UnixMilli(),
	}
	require.NoError(t, c.PutQuote(context.Background(), q))

	r := New(c)
	result := r.GetBestRoute(context.Background(), 100, "USD", "BRL", nil, 10_000)
	assert.Nil(t, result.Route)
}

func TestFilterMidsExcludesEndpoints(t *testing.T) {
	mids := filterMids([]string{"USDC", "USDT", "EURC"}, "USDC", "BRL")
	assert.NotContains(t, mids, "USDC")
	assert.Contains(t, mids, "USDT")
}
