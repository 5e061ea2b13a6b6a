package providers

import (
	"context"

	"github.com/plm/liquidity-mesh-router/routing/model"
)

// StaticProvider returns a hand-curated set of quotes. Grounded on the
// teacher's country-graph bootstrap data (engine/router/country_graph_builder.go),
// generalized from country nodes to arbitrary token pairs so tests and local
// development have a populated cache without any network dependency.
type StaticProvider struct {
	id     string
	quotes []*model.EdgeQuote
}

// NewStaticProvider seeds the provider with a fixed list of quote
// templates; ExpiryTs/LastUpdatedTs are stamped fresh on every fetch so the
// quotes never go stale during a long-running dev session.
func NewStaticProvider(id string, templates []*model.EdgeQuote) *StaticProvider {
	return &StaticProvider{id: id, quotes: templates}
}

func (p *StaticProvider) VenueID() string { return p.id }
func (p *StaticProvider) Fast() bool      { return true }

func (p *StaticProvider) FetchQuotes(ctx context.Context) ([]*model.EdgeQuote, error) {
	now := nowMs()
	out := make([]*model.EdgeQuote, 0, len(p.quotes))
	for _, t := range p.quotes {
		q := *t
		q.LastUpdatedTs = now
		if q.VenueKind == model.VenueDEX {
			q.ExpiryTs = now + 5000
		} else {
			q.ExpiryTs = now + 30000
		}
		out = append(out, &q)
	}
	return out, nil
}
