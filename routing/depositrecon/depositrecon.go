// Package depositrecon repurposes the teacher's Stripe card-payment wrapper
// as a bookkeeping adapter for off-chain bank rails: a PaymentIntent is
// created purely as an external reconciliation record for a confirmed
// bank_transfer/wire_transfer deposit, never to move card funds. Mock mode
// (no STRIPE_SECRET_KEY set) is the expected deployment for this use —
// real Stripe keys would only matter for an operator that also wants these
// bookkeeping records mirrored in their Stripe dashboard.
//
// Grounded on payments/stripe.go's StripeClient, trimmed to the
// PaymentIntent create call this use needs.
package depositrecon

import (
	"fmt"
	"log"
	"os"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"

	"github.com/plm/liquidity-mesh-router/routing/model"
)

// Reconciler records confirmed bank-rail deposits as Stripe PaymentIntents
// for external bookkeeping. A nil Reconciler is never required — callers
// should treat reconciliation failures as non-fatal.
type Reconciler struct {
	mock bool
}

// New builds a reconciler. Absent STRIPE_SECRET_KEY, it runs in mock mode
// and never calls out to Stripe.
func New() *Reconciler {
	key := os.Getenv("STRIPE_SECRET_KEY")
	if key == "" {
		log.Println("ℹ️  STRIPE_SECRET_KEY not set, deposit reconciliation running in mock mode")
		return &Reconciler{mock: true}
	}
	stripe.Key = key
	return &Reconciler{mock: false}
}

// RecordDeposit books a confirmed deposit as an external PaymentIntent,
// tagged with the routing pipeline's payment reference. Only bank_transfer
// and wire_transfer deposits are eligible for reconciliation — PIX, SPEI
// and on-chain deposits never touch Stripe.
func (r *Reconciler) RecordDeposit(rec *model.DepositRecord) (string, error) {
	if rec.Instructions.Method != model.DepositBankTransfer && rec.Instructions.Method != model.DepositWireTransfer {
		return "", nil
	}

	amountCents := int64(rec.AmountExpected * 100)

	if r.mock {
		return fmt.Sprintf("pi_mock_recon_%s", rec.PaymentReference), nil
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String("usd"),
		Metadata: map[string]string{
			"paymentReference": rec.PaymentReference,
			"depositId":        rec.DepositID,
			"quoteId":          rec.QuoteID,
			"purpose":          "deposit_reconciliation",
		},
	}
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe reconciliation error: %w", err)
	}
	return pi.ID, nil
}
