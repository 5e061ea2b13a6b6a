package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plm/liquidity-mesh-router/routing/model"
)

func futureQuote(venueID, from, to string, amountIn, amountOut float64, kind model.VenueKind) *model.EdgeQuote {
	now := time.Now().UnixMilli()
	return &model.EdgeQuote{
		VenueID:       venueID,
		VenueKind:     kind,
		FromToken:     from,
		ToToken:       to,
		AmountIn:      amountIn,
		AmountOut:     amountOut,
		ExpiryTs:      now + 30_000,
		LastUpdatedTs: now,
	}
}

func TestPutQuoteAndGetCachedByPair(t *testing.T) {
	ctx := context.Background()
	c := NewEdgeCache(NewMemoryStore())

	q := futureQuote("otc:alpha", "USD", "BRL", 1, 5.4, model.VenueOTC)
	require.NoError(t, c.PutQuote(ctx, q))

	quotes, err := c.GetCachedByPair(ctx, "USD", "BRL")
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "otc:alpha", quotes[0].VenueID)
}

func TestPutQuoteRejectsInvalid(t *testing.T) {
	c := NewEdgeCache(NewMemoryStore())
	bad := &model.EdgeQuote{VenueID: "x", FromToken: "USD", ToToken: "BRL", AmountIn: 0, AmountOut: 0}
	err := c.PutQuote(context.Background(), bad)
	assert.Error(t, err)
}

func TestGetCachedByPairDropsExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := NewEdgeCache(store)

	expired := &model.EdgeQuote{
		VenueID: "otc:stale", VenueKind: model.VenueOTC,
		FromToken: "USD", ToToken: "BRL",
		AmountIn: 1, AmountOut: 5.4,
		ExpiryTs: time.Now().UnixMilli() - 1000, LastUpdatedTs: time.Now().UnixMilli() - 2000,
	}
	data, _ := json.Marshal(expired)
	require.NoError(t, store.Set(ctx, otcKey(expired.FromToken, expired.ToToken, expired.VenueID), string(data), time.Minute))

	quotes, err := c.GetCachedByPair(ctx, "USD", "BRL")
	require.NoError(t, err)
	assert.Empty(t, quotes)
}

func TestPutQuoteBatchGroupsByTTL(t *testing.T) {
	ctx := context.Background()
	c := NewEdgeCache(NewMemoryStore())

	quotes := []*model.EdgeQuote{
		futureQuote("otc:a", "USD", "MXN", 1, 17.0, model.VenueOTC),
		futureQuote("dex:uni", "USD", "MXN", 1, 16.9, model.VenueDEX),
	}
	require.NoError(t, c.PutQuoteBatch(ctx, quotes))

	got, err := c.GetCachedByPair(ctx, "USD", "MXN")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
