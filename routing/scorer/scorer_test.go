package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/plm/liquidity-mesh-router/routing/model"
)

func routeWithAmounts(amounts ...float64) *model.Route {
	steps := make([]model.Step, len(amounts))
	for i, a := range amounts {
		steps[i] = model.Step{AmountIn: a}
	}
	return &model.Route{FromToken: "USD", ToToken: "BRL", Steps: steps, TotalOut: 540}
}

func TestScoreAppliesVolatilityPenalty(t *testing.T) {
	s := New(VolatilityParams{"USD/BRL": 0.01}, nil)
	route := routeWithAmounts(100)

	otc := []*model.EdgeQuote{{
		VenueID:        "otc:a",
		SettlementMeta: &model.SettlementMeta{SettlementDays: 4, CounterpartyRisk: 0.002},
	}}

	net, meta := s.Score(route, otc)
	assert.Less(t, net, route.TotalOut)
	assert.InDelta(t, 4.0, meta.SettlementDays, 0.0001)
}

func TestScoreConfidenceMatchesFormula(t *testing.T) {
	s := New(nil, nil)
	route := routeWithAmounts(50, 50)
	otc := []*model.EdgeQuote{{
		VenueID:        "otc:a",
		SettlementMeta: &model.SettlementMeta{SettlementDays: 2, CounterpartyRisk: 0.01},
	}}
	_, meta := s.Score(route, otc)
	want := 1 - 2*0.1 - 0.01*10
	assert.InDelta(t, want, meta.Confidence, 1e-9)
}

func TestScoreClampsConfidenceFloor(t *testing.T) {
	s := New(nil, nil)
	route := routeWithAmounts(100)
	otc := []*model.EdgeQuote{{
		VenueID:        "otc:risky",
		SettlementMeta: &model.SettlementMeta{SettlementDays: 30, CounterpartyRisk: 0.2},
	}}
	_, meta := s.Score(route, otc)
	assert.GreaterOrEqual(t, meta.Confidence, 0.5)
}

func TestScoreNeverReturnsNegativeNet(t *testing.T) {
	s := New(VolatilityParams{"USD/BRL": 50}, nil)
	route := routeWithAmounts(100)
	otc := []*model.EdgeQuote{{
		VenueID:        "otc:wild",
		SettlementMeta: &model.SettlementMeta{SettlementDays: 10},
	}}
	net, _ := s.Score(route, otc)
	assert.GreaterOrEqual(t, net, 0.0)
}

func TestQuoteTypeClassification(t *testing.T) {
	otcOnly := &model.Route{Steps: []model.Step{{ChainID: 0}}}
	assert.Equal(t, model.QuoteTypeOTC, QuoteType(otcOnly))

	dexOnly := &model.Route{Steps: []model.Step{{ChainID: 101}}}
	assert.Equal(t, model.QuoteTypeDEX, QuoteType(dexOnly))

	hybrid := &model.Route{Steps: []model.Step{{ChainID: 0}, {ChainID: 101}}}
	assert.Equal(t, model.QuoteTypeHybrid, QuoteType(hybrid))
}

