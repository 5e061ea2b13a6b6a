package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizeInverseDirectionAndRates(t *testing.T) {
	cases := []struct {
		name     string
		from, to string
		ask, bid float64
	}{
		{name: "USD/BRL", from: "USD", to: "BRL", ask: 5.41, bid: 5.39},
		{name: "USD/MXN", from: "USD", to: "MXN", ask: 17.05, bid: 16.95},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			inv := synthesizeInverse("venue:test", tc.from, tc.to, tc.ask, tc.bid)
			require.NotNil(t, inv)

			assert.Equal(t, tc.to, inv.FromToken)
			assert.Equal(t, tc.from, inv.ToToken)

			wantInvAsk := 1 / tc.bid
			wantInvBid := 1 / tc.ask
			assert.InDelta(t, wantInvAsk, inv.AmountOut, 1e-9)

			wantInvMid := (wantInvAsk + wantInvBid) / 2
			wantFee := feeBpsFromSpread(wantInvAsk, wantInvBid, wantInvMid)
			require.NotNil(t, inv.FeeBps)
			assert.Equal(t, wantFee, *inv.FeeBps)
		})
	}
}
