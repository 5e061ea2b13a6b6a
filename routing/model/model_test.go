package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEdgeQuoteValidRejectsNonPositiveAmounts(t *testing.T) {
	q := &EdgeQuote{AmountIn: 0, AmountOut: 5, ExpiryTs: 2, LastUpdatedTs: 1}
	assert.Error(t, q.Valid())
}

func TestEdgeQuoteValidRejectsBackwardsExpiry(t *testing.T) {
	q := &EdgeQuote{AmountIn: 1, AmountOut: 5, ExpiryTs: 1, LastUpdatedTs: 1}
	assert.Error(t, q.Valid())
}

func TestEdgeQuoteValidRejectsOutOfRangeFee(t *testing.T) {
	fee := 10001
	q := &EdgeQuote{AmountIn: 1, AmountOut: 5, ExpiryTs: 2, LastUpdatedTs: 1, FeeBps: &fee}
	assert.Error(t, q.Valid())
}

func TestEdgeQuoteValidAcceptsWellFormedQuote(t *testing.T) {
	fee := 10
	q := &EdgeQuote{AmountIn: 1, AmountOut: 5.4, ExpiryTs: 2, LastUpdatedTs: 1, FeeBps: &fee}
	assert.NoError(t, q.Valid())
}

func TestComputeOutputAppliesFee(t *testing.T) {
	fee := 100 // 1%
	q := &EdgeQuote{AmountIn: 1, AmountOut: 2, FeeBps: &fee}
	out := ComputeOutput(10, q)
	assert.InDelta(t, 19.8, out, 0.0001)
}

func TestComputeOutputNoFee(t *testing.T) {
	q := &EdgeQuote{AmountIn: 1, AmountOut: 2}
	out := ComputeOutput(10, q)
	assert.InDelta(t, 20, out, 0.0001)
}

func TestDepositMethodForToken(t *testing.T) {
	assert.Equal(t, DepositPIX, DepositMethodForToken("BRL"))
	assert.Equal(t, DepositSPEI, DepositMethodForToken("MXN"))
	assert.Equal(t, DepositBankTransfer, DepositMethodForToken("USD"))
	assert.Equal(t, DepositBankTransfer, DepositMethodForToken("XYZ"))
}

func TestProvisionalTTLIsFifteenSeconds(t *testing.T) {
	assert.Equal(t, 15*time.Second, ProvisionalTTL)
}
