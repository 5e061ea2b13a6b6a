// Package providers implements the quote-provider contract from §4.2:
// stateless adapters that each return a fresh snapshot of the edge quotes
// they know about.
package providers

import (
	"context"
	"math"
	"time"

	"github.com/plm/liquidity-mesh-router/routing/model"
)

// QuoteProvider is the external collaborator interface from §6.
type QuoteProvider interface {
	VenueID() string
	// Fast reports whether this provider belongs to the prefetch
	// orchestrator's fast tier (~30s) or slow tier (>=60s).
	Fast() bool
	FetchQuotes(ctx context.Context) ([]*model.EdgeQuote, error)
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

func intp(v int) *int {
	return &v
}

func floatp(v float64) *float64 {
	return &v
}

// settlementMetaFor implements the default settlement-meta rule (§4.5):
// stablecoins settle fastest and cheapest, the named fiat corridor currencies
// slowest and riskiest, everything else gets the middle tier between them.
func settlementMetaFor(fromToken, toToken string) *model.SettlementMeta {
	isStable := func(t string) bool {
		return t == "USDC" || t == "USDT" || t == "EURC"
	}
	isCorridor := func(t string) bool {
		return t == "BRL" || t == "MXN" || t == "NGN"
	}
	switch {
	case isStable(fromToken) || isStable(toToken):
		return &model.SettlementMeta{
			SettlementDays:      0.5,
			CounterpartyRisk:    0.0001,
			SupportsReservation: false,
			PaymentMethods:      []string{"bank_transfer"},
		}
	case isCorridor(fromToken) || isCorridor(toToken):
		return &model.SettlementMeta{
			SettlementDays:      1,
			CounterpartyRisk:    0.001,
			SupportsReservation: false,
			PaymentMethods:      []string{"bank_transfer"},
		}
	default:
		return &model.SettlementMeta{
			SettlementDays:      0.5,
			CounterpartyRisk:    0.0005,
			SupportsReservation: false,
			PaymentMethods:      []string{"bank_transfer"},
		}
	}
}

// feeBpsFromSpread computes round(spreadBps/2) from ask/bid/mid, per §4.2.
func feeBpsFromSpread(ask, bid, mid float64) int {
	if mid == 0 {
		return 0
	}
	spreadBps := (ask - bid) / mid * 10000
	return int(math.Round(spreadBps / 2))
}

// synthesizeInverse builds the inverse edge quote for a pair the provider
// fetched but whose reverse direction was not separately quoted:
// inverseAsk = 1/bid, inverseBid = 1/ask. fromToken/toToken name the
// forward direction the provider actually quoted; the returned edge runs
// toToken->fromToken.
func synthesizeInverse(venueID, fromToken, toToken string, ask, bid float64) *model.EdgeQuote {
	invAsk := 1 / bid
	invBid := 1 / ask
	invMid := (invAsk + invBid) / 2
	fee := feeBpsFromSpread(invAsk, invBid, invMid)
	now := nowMs()
	return &model.EdgeQuote{
		VenueID:        venueID,
		VenueKind:      model.VenueFX,
		FromToken:      toToken,
		ToToken:        fromToken,
		AmountIn:       1,
		AmountOut:      invAsk,
		FeeBps:         intp(fee),
		ExpiryTs:       now + 60000,
		LastUpdatedTs:  now,
		SettlementMeta: settlementMetaFor(toToken, fromToken),
	}
}
