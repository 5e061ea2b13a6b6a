// Package ledger records one hash-chained entry per execution-record state
// transition, supplementing spec.md's execution record with tamper-evident
// audit history. It reuses storage/postgres's hash-chained ledger scheme
// unmodified — only the payload shape (execution transitions instead of
// settlement paths) is new.
package ledger

import (
	"context"
	"log"

	"github.com/plm/liquidity-mesh-router/routing/model"
	"github.com/plm/liquidity-mesh-router/storage/postgres"
)

// Ledger appends one entry per execution transition.
type Ledger struct {
	client *postgres.Client
}

// New wraps an already-connected Postgres client.
func New(client *postgres.Client) *Ledger {
	return &Ledger{client: client}
}

// RecordTransition appends a ledger entry for an execution state change.
// Failures are logged, not propagated — the ledger is an audit supplement,
// not on the critical path of the pipeline's own state (which lives in the
// key-value store).
func (l *Ledger) RecordTransition(ctx context.Context, rec *model.ExecutionRecord) {
	if l == nil || l.client == nil || rec == nil {
		return
	}
	path := []string{rec.Route.FromToken}
	for _, step := range rec.Route.Steps {
		path = append(path, step.ToToken)
	}
	amount := int64(rec.Route.TotalOut * 100)

	_, err := l.client.InsertLedgerEntry(ctx, amount, path, rec.ExecutionID, map[string]interface{}{
		"executionId": rec.ExecutionID,
		"quoteId":     rec.QuoteID,
		"status":      rec.Status,
		"currentStep": rec.CurrentStep,
	})
	if err != nil {
		log.Printf("⚠️  ledger: failed to record transition for execution %s: %v", rec.ExecutionID, err)
	}
}

// RecentEntries returns the N most recently recorded ledger entries, newest
// first. Returns an empty slice on a nil ledger rather than erroring, since
// the audit endpoint treats "no ledger configured" the same as "no entries".
func (l *Ledger) RecentEntries(ctx context.Context, limit int) ([]postgres.LedgerEntry, error) {
	if l == nil || l.client == nil {
		return nil, nil
	}
	return l.client.GetLatestLedgerEntries(ctx, limit)
}

// VerifyIntegrity re-derives every entry's hash from its recorded fields and
// reports any break in the chain. Returns an empty result on a nil ledger.
func (l *Ledger) VerifyIntegrity(ctx context.Context) ([]postgres.IntegrityResult, error) {
	if l == nil || l.client == nil {
		return nil, nil
	}
	return l.client.VerifyIntegrity(ctx)
}

// Entry looks up a single ledger entry by its row ID. Returns nil, nil on a
// nil ledger or when no entry matches.
func (l *Ledger) Entry(ctx context.Context, id string) (*postgres.LedgerEntry, error) {
	if l == nil || l.client == nil {
		return nil, nil
	}
	return l.client.GetLedgerEntry(ctx, id)
}

// Ping checks the underlying Postgres connection, for health reporting.
// A nil ledger is reported healthy — no ledger configured is not a failure.
func (l *Ledger) Ping(ctx context.Context) error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.DB().PingContext(ctx)
}

// Close releases the underlying Postgres connection pool. Safe to call on a
// nil ledger.
func (l *Ledger) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}
