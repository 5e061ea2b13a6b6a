// Package pipeline implements the quote-deposit-execution pipeline (§4.6):
// provisional-quote registry, reservation, deposit issuance/confirmation,
// and the execution record state machine. All of it shares the same
// key-value backing store as the edge cache (§6's keyspace layout).
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/plm/liquidity-mesh-router/routing/cache"
	"github.com/plm/liquidity-mesh-router/routing/depositrecon"
	"github.com/plm/liquidity-mesh-router/routing/model"
)

func nowMs() int64 { return time.Now().UnixMilli() }

// AccountDetailsConfig supplies per-method bank details to attach to
// deposit instructions. Real deployments inject per-method bank details;
// tests inject fixtures (§4.6.c).
type AccountDetailsConfig map[model.DepositMethod]map[string]string

// DefaultAccountDetails returns development fixtures.
func DefaultAccountDetails() AccountDetailsConfig {
	return AccountDetailsConfig{
		model.DepositPIX: {
			"pixKey": "plm-liquidity@example.com",
		},
		model.DepositSPEI: {
			"clabe": "002010077777777771",
		},
		model.DepositBankTransfer: {
			"iban": "GB00PLMB00000000000000",
		},
		model.DepositWireTransfer: {
			"swift":   "PLMBGB2L",
			"account": "00000000",
		},
		model.DepositOnChain: {
			"note": "on-chain settlement, no bank account",
		},
	}
}

// Pipeline coordinates provisional/reserved quotes, deposits and
// executions over a shared KeyValueStore.
type Pipeline struct {
	store          cache.KeyValueStore
	accountDetails AccountDetailsConfig
	recon          *depositrecon.Reconciler
}

// New builds a pipeline over the given key-value store.
func New(store cache.KeyValueStore, accountDetails AccountDetailsConfig) *Pipeline {
	if accountDetails == nil {
		accountDetails = DefaultAccountDetails()
	}
	return &Pipeline{store: store, accountDetails: accountDetails, recon: depositrecon.New()}
}

// --- a. Provisional-quote registry ---------------------------------------

func provisionalKey(quoteID string) string { return "quote:prov:" + quoteID }
func reservedKey(quoteID string) string    { return "quote:reserved:" + quoteID }

// StoreProvisional writes a new provisional quote with a 15s TTL.
func (p *Pipeline) StoreProvisional(ctx context.Context, route *model.Route, amountIn, gross, net float64, feeBps int, meta model.ScoringMeta, qType model.QuoteType) (*model.ProvisionalQuote, error) {
	now := nowMs()
	pq := &model.ProvisionalQuote{
		QuoteID:      uuid.NewString(),
		Route:        route,
		AmountIn:     amountIn,
		AmountOut:    gross,
		NetAmountOut: net,
		FeeBps:       feeBps,
		ExpiryTs:     now + model.ProvisionalTTL.Milliseconds(),
		CreatedTs:    now,
		Type:         qType,
		ScoringMeta:  meta,
	}
	if err := p.putJSON(ctx, provisionalKey(pq.QuoteID), pq, model.ProvisionalTTL); err != nil {
		return nil, errors.Wrap(err, "pipeline: store provisional")
	}
	return pq, nil
}

// GetProvisional reads a provisional quote, treating an expired record as
// absent (§4.6.a). Per §9's accepted window, if a reserved record exists
// for the same quoteId it is preferred over a stale provisional.
func (p *Pipeline) GetProvisional(ctx context.Context, quoteID string) (*model.ProvisionalQuote, error) {
	if reserved, err := p.GetReserved(ctx, quoteID); err == nil && reserved != nil {
		return nil, model.ErrNotFound
	}
	var pq model.ProvisionalQuote
	ok, err := p.getJSON(ctx, provisionalKey(quoteID), &pq)
	if err != nil {
		return nil, err
	}
	if !ok || nowMs() >= pq.ExpiryTs {
		return nil, model.ErrNotFound
	}
	return &pq, nil
}

// --- b. Reservation -------------------------------------------------------

// Reserve promotes a provisional to a reserved quote. It uses a
// conditional write (SETNX) on the reserved key so a racing second reserve
// for the same quoteId fails rather than overwriting (§5, §9): the first
// writer wins, and only then is the provisional key deleted.
func (p *Pipeline) Reserve(ctx context.Context, quoteID, clientID string, otcMeta *model.OTCReservationMeta) (*model.ReservedQuote, error) {
	pq, err := p.GetProvisional(ctx, quoteID)
	if err != nil {
		return nil, err
	}

	now := nowMs()
	reserved := &model.ReservedQuote{
		ProvisionalQuote:   *pq,
		ReservationID:      uuid.NewString(),
		ReservedByClient:   clientID,
		ReservedUntilTs:    now + model.ReservedTTL.Milliseconds(),
		OTCReservationMeta: otcMeta,
	}

	data, err := json.Marshal(reserved)
	if err != nil {
		return nil, errors.Wrap(err, "pipeline: marshal reserved quote")
	}
	ok, err := p.store.SetNX(ctx, reservedKey(quoteID), string(data), model.ReservedTTL)
	if err != nil {
		return nil, errors.Wrap(err, "pipeline: reserve write")
	}
	if !ok {
		return nil, model.ErrAlreadyReserved
	}

	if err := p.store.Del(ctx, provisionalKey(quoteID)); err != nil {
		log.Printf("⚠️  pipeline: reserved %s but failed to delete provisional key: %v", quoteID, err)
	}

	return reserved, nil
}

// GetReserved reads a reserved quote, treating an expired record as absent.
func (p *Pipeline) GetReserved(ctx context.Context, quoteID string) (*model.ReservedQuote, error) {
	var rq model.ReservedQuote
	ok, err := p.getJSON(ctx, reservedKey(quoteID), &rq)
	if err != nil {
		return nil, err
	}
	if !ok || nowMs() >= rq.ReservedUntilTs {
		return nil, model.ErrNotFound
	}
	return &rq, nil
}

// --- c. Deposit issuance ---------------------------------------------------

func depositKey(depositID string) string       { return "deposit:" + depositID }
func depositRefKey(ref string) string          { return "deposit:ref:" + ref }
func depositIndexKey(quoteID string) string    { return "deposit:quote:" + quoteID }

// IssueDeposit builds deposit instructions for a reserved quote.
func (p *Pipeline) IssueDeposit(ctx context.Context, quoteID, clientID string, reserved *model.ReservedQuote) (*model.DepositInstructions, *model.DepositRecord, error) {
	depositID := uuid.NewString()
	reservationPrefix := reserved.ReservationID
	if len(reservationPrefix) > 8 {
		reservationPrefix = reservationPrefix[:8]
	}
	clientPrefix := clientID
	if len(clientPrefix) > 8 {
		clientPrefix = clientPrefix[:8]
	}
	paymentReference := fmt.Sprintf("r%s-%s", reservationPrefix, clientPrefix)

	method := model.DepositMethodForToken(reserved.Route.FromToken)
	details := p.accountDetails[method]

	instructions := &model.DepositInstructions{
		Method:           method,
		AccountDetails:   details,
		Amount:           reserved.AmountIn,
		PaymentReference: paymentReference,
		DepositExpiryTs:  reserved.ReservedUntilTs,
	}
	if method == model.DepositPIX {
		instructions.QRCodeData = buildPixEMVCode(paymentReference, reserved.AmountIn, details["pixKey"])
	}

	record := &model.DepositRecord{
		DepositID:        depositID,
		QuoteID:          quoteID,
		ClientID:         clientID,
		AmountExpected:   reserved.AmountIn,
		Instructions:     *instructions,
		Status:           model.DepositPending,
		PaymentReference: paymentReference,
	}

	if err := p.putJSON(ctx, depositKey(depositID), record, model.DepositTTL); err != nil {
		return nil, nil, errors.Wrap(err, "pipeline: store deposit")
	}
	if err := p.store.Set(ctx, depositRefKey(paymentReference), depositID, model.DepositTTL); err != nil {
		return nil, nil, errors.Wrap(err, "pipeline: store deposit reference")
	}
	if err := p.store.Set(ctx, depositIndexKey(quoteID), depositID, model.DepositTTL); err != nil {
		log.Printf("⚠️  pipeline: failed to write deposit index for quote %s: %v", quoteID, err)
	}

	return instructions, record, nil
}

// GetDepositByQuote resolves the deposit record issued against a quote, for
// receipt generation once the execution it funded has completed.
func (p *Pipeline) GetDepositByQuote(ctx context.Context, quoteID string) (*model.DepositRecord, error) {
	depositID, found, err := p.store.Get(ctx, depositIndexKey(quoteID))
	if err != nil {
		return nil, errors.Wrap(err, "pipeline: resolve deposit index")
	}
	if !found {
		return nil, model.ErrNotFound
	}
	var rec model.DepositRecord
	ok, err := p.getJSON(ctx, depositKey(depositID), &rec)
	if err != nil {
		return nil, errors.Wrap(err, "pipeline: load deposit")
	}
	if !ok {
		return nil, model.ErrNotFound
	}
	return &rec, nil
}

// --- d. Deposit confirmation ------------------------------------------------

// ConfirmDeposit resolves a deposit by payment reference and marks it
// CONFIRMED. It is idempotent: a repeat call after CONFIRMED is safe to
// re-apply and returns the same effective record without signalling a new
// transition (§5, invariant 4).
func (p *Pipeline) ConfirmDeposit(ctx context.Context, paymentReference string, amountReceived float64, bankTxID string) (record *model.DepositRecord, alreadyConfirmed bool, err error) {
	depositID, found, err := p.store.Get(ctx, depositRefKey(paymentReference))
	if err != nil {
		return nil, false, errors.Wrap(err, "pipeline: resolve deposit reference")
	}
	if !found {
		return nil, false, model.ErrNotFound
	}

	var rec model.DepositRecord
	ok, err := p.getJSON(ctx, depositKey(depositID), &rec)
	if err != nil {
		return nil, false, errors.Wrap(err, "pipeline: load deposit")
	}
	if !ok {
		return nil, false, model.ErrNotFound
	}

	if rec.Status == model.DepositConfirmed {
		return &rec, true, nil
	}

	tolerance := 0.001 * rec.AmountExpected
	if math.Abs(amountReceived-rec.AmountExpected) > tolerance {
		log.Printf("⚠️  pipeline: deposit %s amount mismatch, expected=%.4f received=%.4f (admitted, not rejected)", rec.DepositID, rec.AmountExpected, amountReceived)
	}

	received := amountReceived
	now := nowMs()
	rec.AmountReceived = &received
	rec.Status = model.DepositConfirmed
	rec.ReceivedAt = &now
	rec.BankTxID = bankTxID

	if err := p.putJSON(ctx, depositKey(rec.DepositID), &rec, model.DepositTTL); err != nil {
		return nil, false, errors.Wrap(err, "pipeline: write confirmed deposit")
	}

	if p.recon != nil {
		if _, err := p.recon.RecordDeposit(&rec); err != nil {
			log.Printf("⚠️  pipeline: deposit reconciliation failed for %s: %v", rec.DepositID, err)
		}
	}

	return &rec, false, nil
}

// --- e. Execution record lifecycle -----------------------------------------

func executionKey(executionID string) string  { return "exec:" + executionID }
func executionIndexKey(quoteID string) string { return "execution:quote:" + quoteID }

// CreateExecution creates a new execution record for a reserved quote. If
// the primary route contains an OTC step, the record starts
// PENDING_APPROVAL with a fresh approval token; otherwise it starts
// EXECUTING directly.
func (p *Pipeline) CreateExecution(ctx context.Context, quoteID string, route, fallbackRoute *model.Route) (*model.ExecutionRecord, error) {
	hasOTC := false
	for _, step := range route.Steps {
		if step.ChainID == 0 {
			hasOTC = true
			break
		}
	}

	rec := &model.ExecutionRecord{
		ExecutionID:       uuid.NewString(),
		QuoteID:           quoteID,
		Route:             route,
		FallbackRoute:     fallbackRoute,
		TransactionHashes: []string{},
		CreatedAt:         nowMs(),
	}
	if hasOTC {
		rec.Status = model.StatusPendingApproval
		rec.ApprovalToken = uuid.NewString()
	} else {
		rec.Status = model.StatusExecuting
	}

	if err := p.saveExecution(ctx, rec); err != nil {
		return nil, err
	}
	if err := p.store.Set(ctx, executionIndexKey(quoteID), rec.ExecutionID, model.ExecutionTTL); err != nil {
		log.Printf("⚠️  pipeline: failed to write execution index for quote %s: %v", quoteID, err)
	}
	return rec, nil
}

// ApproveExecution transitions PENDING_APPROVAL -> EXECUTING when the
// supplied token matches.
func (p *Pipeline) ApproveExecution(ctx context.Context, executionID, token string) (*model.ExecutionRecord, error) {
	rec, err := p.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if rec.Status != model.StatusPendingApproval || rec.ApprovalToken != token {
		return nil, model.ErrInvalidInput
	}
	rec.Status = model.StatusExecuting
	if err := p.saveExecution(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CompleteExecution marks an execution COMPLETED.
func (p *Pipeline) CompleteExecution(ctx context.Context, executionID string, txHashes []string) (*model.ExecutionRecord, error) {
	rec, err := p.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	now := nowMs()
	rec.Status = model.StatusCompleted
	rec.TransactionHashes = txHashes
	rec.CompletedAt = &now
	if err := p.saveExecution(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// FailExecution marks an execution FAILED, unless useFallback is set and a
// fallback route is present and not yet used, in which case it resets the
// record to EXECUTING on the fallback route (currentStep=0, hashes
// cleared). The fallback count is capped at exactly 1 (§9's resolution of
// the source's unbounded-recursion open question): once FallbackUsed is
// true, a further failure always terminates FAILED.
func (p *Pipeline) FailExecution(ctx context.Context, executionID string, execErr error, useFallback bool) (*model.ExecutionRecord, error) {
	rec, err := p.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if useFallback && rec.FallbackRoute != nil && !rec.FallbackUsed {
		rec.Route = rec.FallbackRoute
		rec.FallbackUsed = true
		rec.CurrentStep = 0
		rec.TransactionHashes = []string{}
		rec.Status = model.StatusExecuting
		rec.Error = ""
	} else {
		now := nowMs()
		rec.Status = model.StatusFailed
		rec.Error = execErr.Error()
		rec.CompletedAt = &now
	}

	if err := p.saveExecution(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// PersistStep writes an in-progress currentStep/transactionHashes update
// for an EXECUTING record, used by the execution driver between steps.
func (p *Pipeline) PersistStep(ctx context.Context, executionID string, currentStep int, txHashes []string) (*model.ExecutionRecord, error) {
	rec, err := p.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	rec.CurrentStep = currentStep
	rec.TransactionHashes = txHashes
	if err := p.saveExecution(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetExecution reads an execution record by ID.
func (p *Pipeline) GetExecution(ctx context.Context, executionID string) (*model.ExecutionRecord, error) {
	var rec model.ExecutionRecord
	ok, err := p.getJSON(ctx, executionKey(executionID), &rec)
	if err != nil {
		return nil, errors.Wrap(err, "pipeline: load execution")
	}
	if !ok {
		return nil, model.ErrNotFound
	}
	return &rec, nil
}

// GetExecutionByQuote resolves the executionId recorded for a quoteId.
func (p *Pipeline) GetExecutionByQuote(ctx context.Context, quoteID string) (*model.ExecutionRecord, error) {
	executionID, found, err := p.store.Get(ctx, executionIndexKey(quoteID))
	if err != nil {
		return nil, errors.Wrap(err, "pipeline: resolve execution index")
	}
	if !found {
		return nil, model.ErrNotFound
	}
	return p.GetExecution(ctx, executionID)
}

func (p *Pipeline) saveExecution(ctx context.Context, rec *model.ExecutionRecord) error {
	return p.putJSON(ctx, executionKey(rec.ExecutionID), rec, model.ExecutionTTL)
}

// --- JSON helpers over the KeyValueStore -----------------------------------

func (p *Pipeline) putJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.store.Set(ctx, key, string(data), ttl)
}

func (p *Pipeline) getJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	raw, found, err := p.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, err
	}
	return true, nil
}
