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

// FXBatchProvider fetches all configured currencies in a single request
// against a base-currency conversion-table endpoint, grounded directly on
// workers/fxrates/worker.go's fetchRates. Unlike FXSinglePairProvider it has
// no internal pacing requirement since it is one HTTP call regardless of
// how many pairs it serves.
type FXBatchProvider struct {
	venueID     string
	apiKey      string
	baseToken   string
	httpClient  *http.Client
	wantedPairs []Pair

	mu  sync.Mutex
	lkg map[string]*model.EdgeQuote
}

// NewFXBatchProvider builds a multi-pair-per-request FX provider rooted at
// baseToken (e.g. "USD").
func NewFXBatchProvider(venueID, apiKey, baseToken string, wantedPairs []Pair) *FXBatchProvider {
	return &FXBatchProvider{
		venueID:     venueID,
		apiKey:      apiKey,
		baseToken:   baseToken,
		httpClient:  &http.Client{Timeout: 5 * time.Second},
		wantedPairs: wantedPairs,
		lkg:         make(map[string]*model.EdgeQuote),
	}
}

func (p *FXBatchProvider) VenueID() string { return p.venueID }
func (p *FXBatchProvider) Fast() bool      { return false }

func (p *FXBatchProvider) FetchQuotes(ctx context.Context) ([]*model.EdgeQuote, error) {
	rates, err := p.fetchAll(ctx)
	if err != nil {
		p.mu.Lock()
		merged := make([]*model.EdgeQuote, 0, len(p.lkg))
		for _, q := range p.lkg {
			merged = append(merged, q)
		}
		p.mu.Unlock()
		if len(merged) > 0 {
			log.Printf("⚠️  fx batch provider %s: cycle failed, serving %d last-known-good quotes: %v", p.venueID, len(merged), err)
			return merged, nil
		}
		return nil, err
	}

	now := nowMs()
	fresh := make(map[string]*model.EdgeQuote)
	for _, pair := range p.wantedPairs {
		rate, ok := p.rateBetween(rates, pair.From, pair.To)
		if !ok {
			continue
		}
		ask := rate * 1.0005
		bid := rate * 0.9995
		fee := feeBpsFromSpread(ask, bid, rate)
		q := &model.EdgeQuote{
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
		fresh[lkgKey(pair.From, pair.To)] = q
		fresh[lkgKey(pair.To, pair.From)] = synthesizeInverse(p.venueID, pair.From, pair.To, ask, bid)
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

	return merged, nil
}

// rateBetween derives from/to from a base-rooted conversion table: if
// base==from, it's direct; if base==to, it's the reciprocal; otherwise it's
// a cross-rate via the base.
func (p *FXBatchProvider) rateBetween(rates map[string]float64, from, to string) (float64, bool) {
	if from == p.baseToken {
		r, ok := rates[to]
		return r, ok
	}
	if to == p.baseToken {
		r, ok := rates[from]
		if !ok || r == 0 {
			return 0, false
		}
		return 1 / r, true
	}
	rf, ok1 := rates[from]
	rt, ok2 := rates[to]
	if !ok1 || !ok2 || rf == 0 {
		return 0, false
	}
	return rt / rf, true
}

func (p *FXBatchProvider) fetchAll(ctx context.Context) (map[string]float64, error) {
	url := fmt.Sprintf("https://v6.exchangerate-api.com/v6/%s/latest/%s", p.apiKey, p.baseToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "http request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var apiResp exchangeRateAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	if apiResp.Result != "success" {
		return nil, fmt.Errorf("api error result=%s", apiResp.Result)
	}
	return apiResp.ConversionRates, nil
}
