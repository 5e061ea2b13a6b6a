package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDEXSource bypasses NewHTTPDEXSource's SSRF guard since httptest
// servers bind to loopback, which the guard correctly rejects in production.
func newTestDEXSource(baseURL string) *HTTPDEXSource {
	return &HTTPDEXSource{name: "agg", baseURL: baseURL, httpClient: &http.Client{Timeout: 5 * time.Second}}
}

func TestNewHTTPDEXSourceRejectsInternalURL(t *testing.T) {
	_, err := NewHTTPDEXSource("agg", "http://169.254.169.254/quote")
	assert.Error(t, err)

	_, err = NewHTTPDEXSource("agg", "http://localhost:9999")
	assert.Error(t, err)
}

func TestHTTPDEXSourceQuoteParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "USD", r.URL.Query().Get("from"))
		assert.Equal(t, "USDC", r.URL.Query().Get("to"))
		json.NewEncoder(w).Encode(aggregatorQuoteResponse{AmountOut: 0.998, Venue: "curve-pool-3", FeeBps: 4})
	}))
	defer srv.Close()

	src := newTestDEXSource(srv.URL)

	q, err := src.Quote(context.Background(), "USD", "USDC")
	require.NoError(t, err)
	assert.Equal(t, "curve-pool-3", q.VenueID)
	assert.Equal(t, 0.998, q.AmountOut)
}

func TestHTTPDEXSourceQuoteRejectsNonPositiveAmount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(aggregatorQuoteResponse{AmountOut: 0})
	}))
	defer srv.Close()

	src := newTestDEXSource(srv.URL)

	_, err := src.Quote(context.Background(), "USD", "USDC")
	assert.Error(t, err)
}
