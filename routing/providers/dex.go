package providers

import (
	"context"
	"log"
	"strings"

	"github.com/plm/liquidity-mesh-router/routing/model"
)

// DEXQuoteSource is one upstream DEX/aggregator queried for a quote. Shape
// grounded on other_examples' thorchain/nearintents providers: a venue name
// and a Quote-style call that can fail per-venue without aborting the whole
// fetch.
type DEXQuoteSource interface {
	Name() string
	Quote(ctx context.Context, fromToken, toToken string) (*model.EdgeQuote, error)
}

// DEXProvider aggregates quotes across configured DEX/aggregator sources.
// Every returned quote carries venueId "dex:<quote's venueId>" (the prefix is
// added when the source's quote lacks it) so the router's
// venue-to-step mapping (§4.4) assigns chainId=101 and a 30s settlement
// estimate.
type DEXProvider struct {
	id      string
	sources []DEXQuoteSource
	pairs   []Pair
}

// NewDEXProvider builds a DEX provider over the given sources and pairs.
func NewDEXProvider(id string, sources []DEXQuoteSource, pairs []Pair) *DEXProvider {
	return &DEXProvider{id: id, sources: sources, pairs: pairs}
}

func (p *DEXProvider) VenueID() string { return p.id }
func (p *DEXProvider) Fast() bool      { return true }

func (p *DEXProvider) FetchQuotes(ctx context.Context) ([]*model.EdgeQuote, error) {
	var out []*model.EdgeQuote
	for _, src := range p.sources {
		for _, pair := range p.pairs {
			q, err := src.Quote(ctx, pair.From, pair.To)
			if err != nil {
				log.Printf("⚠️  dex provider %s: source %s quote %s/%s failed: %v", p.id, src.Name(), pair.From, pair.To, err)
				continue
			}
			if q == nil {
				continue
			}
			q.VenueKind = model.VenueDEX
			if !strings.HasPrefix(q.VenueID, "dex:") {
				q.VenueID = "dex:" + q.VenueID
			}
			out = append(out, q)
		}
	}
	return out, nil
}
