// Package driver implements the §4.6.f asynchronous execution driver: for
// an EXECUTING record, it advances currentStep through the route's steps
// via an injected StepExecutor, fires the record's state transitions, and
// is fire-and-forget from the caller's perspective.
//
// Grounded on engine/worker/pool.go's gammazero/workerpool-backed bounded
// submission (submit-and-return, no blocking caller) and on
// api/handlers/payment_handler.go's fallback-route retry loop, restructured
// from that loop's literal up-to-3-attempts into the spec-mandated cap of
// exactly one fallback attempt (§9).
package driver

import (
	"context"
	"log"

	"github.com/pkg/errors"

	"github.com/plm/liquidity-mesh-router/routing/ledger"
	"github.com/plm/liquidity-mesh-router/routing/model"
	"github.com/plm/liquidity-mesh-router/routing/pipeline"
	"github.com/plm/liquidity-mesh-router/routing/workerpool"
)

// StepExecutor is the external collaborator interface from §6.
type StepExecutor interface {
	Execute(ctx context.Context, step model.Step) (txHash string, err error)
}

// Driver advances execution records asynchronously over a bounded worker
// pool.
type Driver struct {
	pipeline *pipeline.Pipeline
	executor StepExecutor
	pool     *workerpool.Pool
	ledger   *ledger.Ledger
}

// New builds a driver backed by a worker pool of the given size. ledger may
// be nil, in which case no audit entries are written.
func New(p *pipeline.Pipeline, executor StepExecutor, maxWorkers int, l *ledger.Ledger) *Driver {
	if maxWorkers <= 0 {
		maxWorkers = 50
	}
	return &Driver{pipeline: p, executor: executor, pool: workerpool.New(&workerpool.Config{MaxWorkers: maxWorkers}), ledger: l}
}

// Advance submits an execution for asynchronous step-wise advancement and
// returns immediately; the HTTP surface does not wait on it (§4.6.f).
func (d *Driver) Advance(ctx context.Context, executionID string) {
	d.pool.Submit(ctx, func(ctx context.Context) error {
		d.run(ctx, executionID)
		return nil
	})
}

// Stop waits for in-flight advancements to finish.
func (d *Driver) Stop() {
	d.pool.Stop()
}

// PoolStats reports the driver's worker pool counters, for admin inspection.
func (d *Driver) PoolStats() workerpool.Stats {
	return d.pool.Stats()
}

func (d *Driver) run(ctx context.Context, executionID string) {
	for {
		rec, err := d.pipeline.GetExecution(ctx, executionID)
		if err != nil {
			log.Printf("❌ execution driver: cannot load execution %s: %v", executionID, err)
			return
		}
		if rec.Status != model.StatusExecuting {
			return
		}

		for rec.CurrentStep < len(rec.Route.Steps) {
			step := rec.Route.Steps[rec.CurrentStep]
			txHash, err := d.executor.Execute(ctx, step)
			if err != nil {
				rec, err = d.pipeline.FailExecution(ctx, executionID, errors.Wrapf(err, "step %d", rec.CurrentStep), true)
				if err != nil {
					log.Printf("❌ execution driver: failExecution error for %s: %v", executionID, err)
					return
				}
				if rec.Status == model.StatusExecuting {
					d.ledger.RecordTransition(ctx, rec)
					// fallback engaged; restart the step loop from 0
					break
				}
				d.ledger.RecordTransition(ctx, rec)
				log.Printf("❌ execution %s failed: %s", executionID, rec.Error)
				return
			}

			rec.TransactionHashes = append(rec.TransactionHashes, txHash)
			rec.CurrentStep++
			rec = d.advanceStep(ctx, executionID, rec)
			if rec == nil {
				return
			}
		}

		if rec.Status == model.StatusExecuting && rec.CurrentStep >= len(rec.Route.Steps) {
			completed, err := d.pipeline.CompleteExecution(ctx, executionID, rec.TransactionHashes)
			if err != nil {
				log.Printf("❌ execution driver: completeExecution error for %s: %v", executionID, err)
				return
			}
			d.ledger.RecordTransition(ctx, completed)
			return
		}
		// fallback engaged mid-loop: re-enter the outer loop to reload the
		// fresh EXECUTING record and restart from currentStep=0.
	}
}

// advanceStep persists the in-progress currentStep/transactionHashes by
// re-reading and re-saving through the pipeline's execution accessors; it
// returns the freshly persisted record, or nil if persistence failed (the
// caller should stop).
func (d *Driver) advanceStep(ctx context.Context, executionID string, rec *model.ExecutionRecord) *model.ExecutionRecord {
	saved, err := d.pipeline.PersistStep(ctx, executionID, rec.CurrentStep, rec.TransactionHashes)
	if err != nil {
		log.Printf("❌ execution driver: failed to persist step for %s: %v", executionID, err)
		return nil
	}
	return saved
}
