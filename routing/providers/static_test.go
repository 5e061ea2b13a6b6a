package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plm/liquidity-mesh-router/routing/model"
)

func TestStaticProviderStampsFreshExpiryPerKind(t *testing.T) {
	dex := &model.EdgeQuote{VenueKind: model.VenueDEX, FromToken: "USD", ToToken: "USDC"}
	otc := &model.EdgeQuote{VenueKind: model.VenueOTC, FromToken: "USD", ToToken: "BRL"}
	p := NewStaticProvider("static:test", []*model.EdgeQuote{dex, otc})

	quotes, err := p.FetchQuotes(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	assert.Equal(t, "static:test", p.VenueID())
	assert.True(t, p.Fast())

	var gotDEX, gotOTC *model.EdgeQuote
	for _, q := range quotes {
		if q.VenueKind == model.VenueDEX {
			gotDEX = q
		} else {
			gotOTC = q
		}
	}
	require.NotNil(t, gotDEX)
	require.NotNil(t, gotOTC)
	assert.Equal(t, gotDEX.LastUpdatedTs+5000, gotDEX.ExpiryTs)
	assert.Equal(t, gotOTC.LastUpdatedTs+30000, gotOTC.ExpiryTs)
}

func TestStaticProviderDoesNotMutateTemplates(t *testing.T) {
	template := &model.EdgeQuote{VenueKind: model.VenueOTC, FromToken: "USD", ToToken: "BRL"}
	p := NewStaticProvider("static:test", []*model.EdgeQuote{template})

	_, err := p.FetchQuotes(context.Background())
	require.NoError(t, err)
	assert.Zero(t, template.LastUpdatedTs)
}
