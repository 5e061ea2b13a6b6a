// Package model holds the data types shared across the routing core: edge
// quotes, routes, provisional/reserved quotes, deposit records and execution
// records.
package model

import (
	"time"

	"github.com/pkg/errors"
)

// VenueKind identifies the category of venue an edge quote came from.
type VenueKind string

const (
	VenueOTC VenueKind = "OTC"
	VenueDEX VenueKind = "DEX"
	VenueFX  VenueKind = "FX"
)

// SettlementMeta describes the off-chain settlement characteristics of a quote.
type SettlementMeta struct {
	SettlementDays      float64  `json:"settlementDays"`
	CounterpartyRisk     float64  `json:"counterpartyRisk"`
	SupportsReservation bool     `json:"supportsReservation"`
	PaymentMethods       []string `json:"paymentMethods"`
}

// EdgeQuote is a unit of pricing information from one venue for one directed
// token pair.
type EdgeQuote struct {
	VenueID        string          `json:"venueId"`
	VenueKind      VenueKind       `json:"venueKind"`
	FromToken      string          `json:"fromToken"`
	ToToken        string          `json:"toToken"`
	AmountIn       float64         `json:"amountIn"`
	AmountOut      float64         `json:"amountOut"`
	MaxAmountIn    *float64        `json:"maxAmountIn,omitempty"`
	FeeBps         *int            `json:"feeBps,omitempty"`
	ExpiryTs       int64           `json:"expiryTs"`
	LastUpdatedTs  int64           `json:"lastUpdatedTs"`
	DepositAddress string          `json:"depositAddress,omitempty"`
	SettlementMeta *SettlementMeta `json:"settlementMeta,omitempty"`
}

// Rate returns amountOut/amountIn. The caller must check Valid() first.
func (q *EdgeQuote) Rate() float64 {
	return q.AmountOut / q.AmountIn
}

// Valid checks the invariants from the data model: positive amounts,
// expiry strictly after last update, and a feeBps within [0,10000] when set.
func (q *EdgeQuote) Valid() error {
	if q.AmountIn <= 0 || q.AmountOut <= 0 {
		return errors.New("edge quote: amountIn and amountOut must be positive")
	}
	if q.ExpiryTs <= q.LastUpdatedTs {
		return errors.New("edge quote: expiryTs must be after lastUpdatedTs")
	}
	if q.FeeBps != nil && (*q.FeeBps < 0 || *q.FeeBps > 10000) {
		return errors.New("edge quote: feeBps out of range")
	}
	return nil
}

// ComputeOutput applies the quote's rate and fee to an amount entering this
// leg: net = x * (amountOut/amountIn) * (1 - feeBps/10000).
func ComputeOutput(x float64, q *EdgeQuote) float64 {
	gross := x * q.Rate()
	if q.FeeBps == nil {
		return gross
	}
	return gross - gross*float64(*q.FeeBps)/10000.0
}

// Step is one hop of a route.
type Step struct {
	FromToken           string  `json:"fromToken"`
	ToToken             string  `json:"toToken"`
	VenueID             string  `json:"venueId"`
	ChainID             int     `json:"chainId"`
	AmountIn            float64 `json:"amountIn"`
	AmountOut           float64 `json:"amountOut"`
	FeeBps              int     `json:"feeBps"`
	EstimatedDurationMs int     `json:"estimatedDurationMs"`
}

// Route is an ordered list of 1-3 hops from FromToken to ToToken.
type Route struct {
	FromToken      string  `json:"fromToken"`
	ToToken        string  `json:"toToken"`
	Steps          []Step  `json:"steps"`
	TotalIn        float64 `json:"totalIn"`
	TotalOut       float64 `json:"totalOut"`
	EffectiveRate  float64 `json:"effectiveRate"`
	TotalFeesBps   int     `json:"totalFeesBps"`
	Confidence     float64 `json:"confidence"`
	Timestamp      int64   `json:"timestamp"`
}

// QuoteType classifies a provisional quote by the venues its route touches.
type QuoteType string

const (
	QuoteTypeOTC    QuoteType = "OTC"
	QuoteTypeDEX    QuoteType = "DEX"
	QuoteTypeHybrid QuoteType = "OTC+DEX"
)

// ScoringMeta records how the settlement scorer discounted a route.
type ScoringMeta struct {
	SettlementDays   float64 `json:"settlementDays"`
	CounterpartyRisk float64 `json:"counterpartyRisk"`
	TimePenalty      float64 `json:"timePenalty"`
	Confidence       float64 `json:"confidence"`
}

// ProvisionalQuote is a scored route made addressable for a bounded window.
type ProvisionalQuote struct {
	QuoteID      string      `json:"quoteId"`
	Route        *Route      `json:"route"`
	AmountIn     float64     `json:"amountIn"`
	AmountOut    float64     `json:"amountOut"`
	NetAmountOut float64     `json:"netAmountOut"`
	FeeBps       int         `json:"feeBps"`
	ExpiryTs     int64       `json:"expiryTs"`
	CreatedTs    int64       `json:"createdTs"`
	Type         QuoteType   `json:"type"`
	ScoringMeta  ScoringMeta `json:"scoringMeta"`
}

// ProvisionalTTL is the default lifetime of a provisional quote.
const ProvisionalTTL = 15 * time.Second

// OTCReservationMeta is the interface-shaped payload obtained from the OTC
// side when a provisional with an OTC leg is reserved.
type OTCReservationMeta struct {
	OTCReservationID   string `json:"otcReservationId,omitempty"`
	DepositAddress     string `json:"depositAddress,omitempty"`
	DepositInstructions string `json:"depositInstructions,omitempty"`
}

// ReservedQuote is a provisional promoted by a client intent to execute.
type ReservedQuote struct {
	ProvisionalQuote
	ReservationID     string               `json:"reservationId"`
	ReservedByClient  string               `json:"reservedByClient"`
	ReservedUntilTs   int64                `json:"reservedUntilTs"`
	OTCReservationMeta *OTCReservationMeta `json:"otcReservationMeta,omitempty"`
}

// ReservedTTL is the default lifetime of a reserved quote.
const ReservedTTL = 300 * time.Second

// DepositMethod is the off-chain rail used to settle a deposit.
type DepositMethod string

const (
	DepositPIX          DepositMethod = "PIX"
	DepositSPEI         DepositMethod = "SPEI"
	DepositBankTransfer DepositMethod = "bank_transfer"
	DepositWireTransfer DepositMethod = "wire_transfer"
	DepositOnChain      DepositMethod = "on_chain"
)

// DepositMethodForToken derives the deposit method from the source token,
// per the §3 table: PIX for BRL, SPEI for MXN, bank_transfer for USD/EUR,
// bank_transfer otherwise.
func DepositMethodForToken(fromToken string) DepositMethod {
	switch fromToken {
	case "BRL":
		return DepositPIX
	case "MXN":
		return DepositSPEI
	case "USD", "EUR":
		return DepositBankTransfer
	default:
		return DepositBankTransfer
	}
}

// DepositInstructions is the payload returned to the client to pay off-chain.
type DepositInstructions struct {
	Method           DepositMethod     `json:"method"`
	AccountDetails   map[string]string `json:"accountDetails"`
	Amount           float64           `json:"amount"`
	PaymentReference string            `json:"paymentReference"`
	QRCodeData       string            `json:"qrCodeData,omitempty"`
	DepositExpiryTs  int64             `json:"depositExpiryTs"`
}

// DepositStatus is the lifecycle state of a deposit record.
type DepositStatus string

const (
	DepositPending   DepositStatus = "PENDING"
	DepositConfirmed DepositStatus = "CONFIRMED"
	DepositFailed    DepositStatus = "FAILED"
	DepositExpired   DepositStatus = "EXPIRED"
)

// DepositRecord is bound by PaymentReference, later by DepositID.
type DepositRecord struct {
	DepositID        string              `json:"depositId"`
	QuoteID          string              `json:"quoteId"`
	ClientID         string              `json:"clientId"`
	AmountExpected   float64             `json:"amountExpected"`
	AmountReceived   *float64            `json:"amountReceived,omitempty"`
	Instructions     DepositInstructions `json:"instructions"`
	Status           DepositStatus       `json:"status"`
	ReceivedAt       *int64              `json:"receivedAt,omitempty"`
	BankTxID         string              `json:"bankTxId,omitempty"`
	PaymentReference string              `json:"paymentReference"`
}

// ExecutionStatus is the state of one run of a route.
type ExecutionStatus string

const (
	StatusPendingApproval ExecutionStatus = "PENDING_APPROVAL"
	StatusExecuting       ExecutionStatus = "EXECUTING"
	StatusCompleted       ExecutionStatus = "COMPLETED"
	StatusFailed          ExecutionStatus = "FAILED"
)

// ExecutionRecord is the state of one run of a route.
type ExecutionRecord struct {
	ExecutionID       string          `json:"executionId"`
	QuoteID           string          `json:"quoteId"`
	Route             *Route          `json:"route"`
	FallbackRoute     *Route          `json:"fallbackRoute,omitempty"`
	FallbackUsed      bool            `json:"fallbackUsed"`
	Status            ExecutionStatus `json:"status"`
	ApprovalToken     string          `json:"approvalToken,omitempty"`
	TransactionHashes []string        `json:"transactionHashes"`
	CurrentStep       int             `json:"currentStep"`
	CreatedAt         int64           `json:"createdAt"`
	CompletedAt       *int64          `json:"completedAt,omitempty"`
	Error             string          `json:"error,omitempty"`
}

// ExecutionTTL is the lifetime of an execution record in the store.
const ExecutionTTL = 86400 * time.Second

// DepositTTL is the lifetime of a deposit record in the store.
const DepositTTL = 3600 * time.Second

// Sentinel errors surfaced by the core, per §7.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrAlreadyReserved = errors.New("quote already reserved")
)
