package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/plm/liquidity-mesh-router/routing/model"
)

// Pair is one currency pair this provider is configured to track.
type Pair struct {
	From string
	To   string
}

// exchangeRateAPIResponse mirrors the exchangerate-api.com response shape,
// grounded on workers/fxrates/worker.go's ExchangeRateAPIResponse.
type exchangeRateAPIResponse struct {
	Result          string             `json:"result"`
	BaseCode        string             `json:"base_code"`
	ConversionRates map[string]float64 `json:"conversion_rates"`
}

// FXSinglePairProvider fetches one pair per HTTP request and paces requests
// at least 1.2s apart within a cycle, per §4.2.
type FXSinglePairProvider struct {
	venueID    string
	apiKey     string
	httpClient *http.Client
	pairs      []Pair

	mu  sync.Mutex
	lkg map[string]*model.EdgeQuote // keyed by "from/to", last-known-good
}

// NewFXSinglePairProvider builds a rate-limited single-pair FX provider.
func NewFXSinglePairProvider(venueID, apiKey string, pairs []Pair) *FXSinglePairProvider {
	return &FXSinglePairProvider{
		venueID:    venueID,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		pairs:      pairs,
		lkg:        make(map[string]*model.EdgeQuote),
	}
}

func (p *FXSinglePairProvider) VenueID() string { return p.venueID }
func (p *FXSinglePairProvider) Fast() bool      { return false }

func lkgKey(from, to string) string { return from + "/" + to }

// FetchQuotes retrieves ask/bid/mid for every configured pair, one HTTP
// request at a time with a >=1.2s pause between requests, merging the fresh
// results over the last-known-good cache so a partial outage degrades
// gracefully (§4.2, S6).
func (p *FXSinglePairProvider) FetchQuotes(ctx context.Context) ([]*model.EdgeQuote, error) {
	fresh := make(map[string]*model.EdgeQuote)
	var anySucceeded bool

	for i, pair := range p.pairs {
		if i > 0 {
			select {
			case <-time.After(1200 * time.Millisecond):
			case <-ctx.Done():
				break
			}
		}

		q, inv, err := p.fetchPair(ctx, pair)
		if err != nil {
			log.Printf("⚠️  fx provider %s: pair %s/%s failed: %v", p.venueID, pair.From, pair.To, err)
			continue
		}
		anySucceeded = true
		fresh[lkgKey(pair.From, pair.To)] = q
		fresh[lkgKey(pair.To, pair.From)] = inv
	}

	p.mu.Lock()
	for k, q := range fresh {
		p.lkg[k] = q
	}
	merged := make([]*model.EdgeQuote, 0, len(p.lkg))
	for _, q := range p.lkg {
		merged = append(merged, q)
	}
	p.mu.Unlock()

	if !anySucceeded && len(p.pairs) > 0 {
		if len(merged) > 0 {
			log.Printf("⚠️  fx provider %s: full-cycle failure, serving %d last-known-good quotes", p.venueID, len(merged))
			return merged, nil
		}
		return nil, errors.New("fx provider: all pairs failed and no last-known-good cache")
	}

	return merged, nil
}

func (p *FXSinglePairProvider) fetchPair(ctx context.Context, pair Pair) (fwd, inv *model.EdgeQuote, err error) {
	url := fmt.Sprintf("https://v6.exchangerate-api.com/v6/%s/pair/%s/%s", p.apiKey, pair.From, pair.To)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "build request")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, nil, errors.Wrap(err, "http request")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == 0 {
		return nil, nil, fmt.Errorf("server error status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var apiResp struct {
		Result        string  `json:"result"`
		ConversionRate float64 `json:"conversion_rate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, nil, errors.Wrap(err, "decode response")
	}
	if apiResp.Result != "success" {
		return nil, nil, fmt.Errorf("api error result=%s", apiResp.Result)
	}

	mid := apiResp.ConversionRate
	// The public pair endpoint only returns a mid rate; derive a synthetic
	// ask/bid spread of a fixed 10bps around it to keep the fee-from-spread
	// formula meaningful without a paid tier bid/ask feed.
	ask := mid * 1.0005
	bid := mid * 0.9995
	fee := feeBpsFromSpread(ask, bid, mid)

	now := nowMs()
	fwd = &model.EdgeQuote{
		VenueID:        p.venueID,
		VenueKind:      model.VenueFX,
		FromToken:      pair.From,
		ToToken:        pair.To,
		AmountIn:       1,
		AmountOut:      ask,
		FeeBps:         intp(fee),
		ExpiryTs:       now + 60000,
		LastUpdatedTs:  now,
		SettlementMeta: settlementMetaFor(pair.From, pair.To),
	}
	inv = synthesizeInverse(p.venueID, pair.From, pair.To, ask, bid)
	return fwd, inv, nil
}
