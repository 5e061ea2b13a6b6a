// Package scorer implements the settlement scorer (§4.5): it transforms a
// candidate route's gross output into a net output by applying a
// volatility-based time penalty and a counterparty-risk discount.
//
// The time-penalty shape (grossOutput x dailyVol x sqrt(settlementDays))
// is driven by an injectable volatilityParams table instead of Shannon
// entropy over an observed distribution, per §4.5 and §9's "scoring tables
// are configuration" note.
package scorer

import (
	"math"

	"github.com/plm/liquidity-mesh-router/routing/model"
)

// VolatilityParams maps "fromToken/toToken" to a daily volatility figure.
// Injectable configuration, not code, per §9.
type VolatilityParams map[string]float64

// DefaultVolatilityParams enumerates the currency pairs this deployment
// recognizes; unknown pairs fall back to 0.005 (§4.5).
func DefaultVolatilityParams() VolatilityParams {
	return VolatilityParams{
		"BRL/USD":  0.009,
		"USD/BRL":  0.009,
		"MXN/USD":  0.007,
		"USD/MXN":  0.007,
		"NGN/USD":  0.012,
		"USD/NGN":  0.012,
		"USDC/USD": 0.0005,
		"USD/USDC": 0.0005,
		"USDT/USD": 0.0006,
		"USD/USDT": 0.0006,
		"EURC/EUR": 0.0004,
		"EUR/EURC": 0.0004,
	}
}

const defaultDailyVol = 0.005
const riskFactor = 1.0
const defaultCounterpartyRisk = 0.001

// CounterpartyRiskDefaults maps a venue ID to a default counterparty risk
// when a quote's own settlementMeta omits it. Injectable configuration.
type CounterpartyRiskDefaults map[string]float64

// Scorer applies the settlement-scoring formula to candidate routes.
type Scorer struct {
	volatility VolatilityParams
	venueRisk  CounterpartyRiskDefaults
}

// New builds a scorer over the given configuration tables. Nil tables fall
// back to the documented defaults.
func New(volatility VolatilityParams, venueRisk CounterpartyRiskDefaults) *Scorer {
	if volatility == nil {
		volatility = DefaultVolatilityParams()
	}
	if venueRisk == nil {
		venueRisk = CounterpartyRiskDefaults{}
	}
	return &Scorer{volatility: volatility, venueRisk: venueRisk}
}

// Score computes the net output and scoring metadata for a route given the
// OTC quotes that participated in building it.
func (s *Scorer) Score(route *model.Route, otcQuotes []*model.EdgeQuote) (netOutput float64, meta model.ScoringMeta) {
	grossOutput := route.TotalOut

	maxSettlementDays := 0.0
	riskSum := 0.0
	riskCount := 0
	for _, q := range otcQuotes {
		days := 0.0
		risk := s.defaultRiskFor(q.VenueID)
		if q.SettlementMeta != nil {
			days = q.SettlementMeta.SettlementDays
			if q.SettlementMeta.CounterpartyRisk > 0 {
				risk = q.SettlementMeta.CounterpartyRisk
			}
		}
		if days > maxSettlementDays {
			maxSettlementDays = days
		}
		riskSum += risk
		riskCount++
	}

	avgCounterpartyRisk := 0.001
	if riskCount > 0 {
		avgCounterpartyRisk = riskSum / float64(riskCount)
	}

	dailyVol := defaultDailyVol
	if v, ok := s.volatility[route.FromToken+"/"+route.ToToken]; ok {
		dailyVol = v
	}

	timePenalty := grossOutput * dailyVol * math.Sqrt(maxSettlementDays) * riskFactor
	counterpartyDiscount := grossOutput * avgCounterpartyRisk

	netOutput = grossOutput - timePenalty - counterpartyDiscount
	if netOutput < 0 {
		netOutput = 0
	}

	confidence := 1 - maxSettlementDays*0.1 - avgCounterpartyRisk*10
	confidence = clamp(confidence, 0.5, 1.0)

	meta = model.ScoringMeta{
		SettlementDays:   maxSettlementDays,
		CounterpartyRisk: avgCounterpartyRisk,
		TimePenalty:      timePenalty,
		Confidence:       confidence,
	}
	return netOutput, meta
}

func (s *Scorer) defaultRiskFor(venueID string) float64 {
	if r, ok := s.venueRisk[venueID]; ok {
		return r
	}
	return defaultCounterpartyRisk
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// QuoteType classifies a route by the venue kinds its steps touch, used
// when constructing a provisional quote from a scored route.
func QuoteType(route *model.Route) model.QuoteType {
	hasOTC, hasDEX := false, false
	for _, step := range route.Steps {
		if step.ChainID != 0 {
			hasDEX = true
		} else {
			hasOTC = true
		}
	}
	switch {
	case hasOTC && hasDEX:
		return model.QuoteTypeHybrid
	case hasDEX:
		return model.QuoteTypeDEX
	default:
		return model.QuoteTypeOTC
	}
}
