// Package engine drives a deposit through validation, pricing, payout and
// ledger recording. Each deposit ends in exactly one terminal outcome, and the
// originating session receives exactly one notification for it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bcxlabs/buybackd/internal/amount"
	"github.com/bcxlabs/buybackd/internal/config"
	"github.com/bcxlabs/buybackd/internal/models"
)

// Ledger is the append-only settlement history.
type Ledger interface {
	HasSettlement(txHash string, logIndex uint) (bool, error)
	CountByAddress(address string) (int, error)
	InsertSettlement(rec models.SettlementRecord) (int64, error)
}

// Journal is the durable record of payouts in flight.
type Journal interface {
	InsertPendingPayout(p models.PendingPayout) error
	MarkPayoutConfirmed(id, txRef string) error
	MarkPayoutFailed(id, reason string) error
}

// Registrations matches deposits to sessions.
type Registrations interface {
	LookupBySourceAddress(address string) (models.Registration, error)
	Remove(sessionID int64)
}

// PaymentExecutor submits payouts on the payout token ledger.
type PaymentExecutor interface {
	Transfer(ctx context.Context, destination string, amount *big.Int) (string, error)
	BalanceOf(ctx context.Context, address string) (*big.Int, error)
}

// Notifier delivers status text to a chat session.
type Notifier interface {
	NotifySession(sessionID int64, text string)
}

// Config holds the settlement policy, fixed after startup.
type Config struct {
	Pricing              Pricing
	MinSwap              *big.Int // base units
	MaxSwap              *big.Int // base units
	MaxPerAddress        int
	CustodialAddress     string
	PayoutConfirmTimeout time.Duration

	// MaxAttempts bounds how often a transiently failed deposit is retried.
	// Zero means one attempt, no retries.
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Result is the terminal state of one processed deposit. SessionID is set
// whenever a registration matched, including on error returns, so callers can
// notify the session about terminal failures.
type Result struct {
	Outcome   models.Outcome
	TxRef     string
	Record    *models.SettlementRecord
	SessionID int64
}

// Engine is the settlement state machine.
type Engine struct {
	cfg      Config
	ledger   Ledger
	journal  Journal
	registry Registrations
	executor PaymentExecutor
	notifier Notifier

	// locks serializes settlements per source address: an address with a
	// settlement in flight must not start a second one.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	wg sync.WaitGroup
}

// New creates a settlement engine.
func New(cfg Config, ledger Ledger, journal Journal, registry Registrations, executor PaymentExecutor, notifier Notifier) *Engine {
	slog.Info("settlement engine initialized",
		"minSwap", cfg.MinSwap.String(),
		"maxSwap", cfg.MaxSwap.String(),
		"maxPerAddress", cfg.MaxPerAddress,
		"payoutConfirmTimeout", cfg.PayoutConfirmTimeout.String(),
	)
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = config.SettlementRetryBackoff
	}
	return &Engine{
		cfg:      cfg,
		ledger:   ledger,
		journal:  journal,
		registry: registry,
		executor: executor,
		notifier: notifier,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Run consumes deposits from events until the channel closes, processing each
// in its own goroutine. Deposits for distinct addresses settle concurrently;
// the per-address lock inside Process serializes same-address deposits.
func (e *Engine) Run(ctx context.Context, events <-chan models.DepositEvent) {
	for dep := range events {
		e.wg.Add(1)
		go func(dep models.DepositEvent) {
			defer e.wg.Done()
			e.processWithRetry(ctx, dep)
		}(dep)
	}

	e.wg.Wait()
	slog.Info("settlement engine drained")
}

// processWithRetry runs Process, retrying transient failures with bounded
// backoff. Retries are silent toward the session; only the terminal failure
// produces a notification. Non-transient errors, which include everything
// after a payout broadcast, are never retried.
func (e *Engine) processWithRetry(ctx context.Context, dep models.DepositEvent) {
	backoff := e.cfg.RetryBackoff

	for attempt := 1; ; attempt++ {
		res, err := e.process(ctx, dep, attempt == 1)
		if err == nil {
			return
		}

		if !config.IsTransient(err) || attempt >= e.cfg.MaxAttempts {
			slog.Error("settlement failed",
				"txHash", dep.TxHash,
				"logIndex", dep.LogIndex,
				"from", dep.SourceAddress,
				"attempts", attempt,
				"transient", config.IsTransient(err),
				"error", err,
			)
			if config.IsTransient(err) && res.SessionID != 0 {
				e.notifier.NotifySession(res.SessionID,
					"⚠️ Error processing your payment. Please contact support.")
			}
			return
		}

		delay := backoff
		if retryAfter := config.GetRetryAfter(err); retryAfter > 0 {
			delay = retryAfter
		}

		slog.Warn("settlement attempt failed, retrying",
			"txHash", dep.TxHash,
			"logIndex", dep.LogIndex,
			"attempt", attempt,
			"backoff", delay.String(),
			"error", err,
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		backoff *= 2
	}
}

// Process runs one deposit through the state machine. A non-nil error means
// the deposit did not reach the ledger; transient errors occurred before any
// payout broadcast and may be retried, non-transient ones must not be. All
// policy rejections return a Result, not an error.
func (e *Engine) Process(ctx context.Context, dep models.DepositEvent) (Result, error) {
	return e.process(ctx, dep, true)
}

// announce controls the "payment detected" message: sent on the first attempt
// only, so retries stay invisible to the session.
func (e *Engine) process(ctx context.Context, dep models.DepositEvent, announce bool) (Result, error) {
	lock := e.addressLock(dep.SourceAddress)
	lock.Lock()
	defer lock.Unlock()

	// Replay check: a deposit already settled (redelivered log, restart) is
	// dropped without a payout or a second notification.
	settled, err := e.ledger.HasSettlement(dep.TxHash, dep.LogIndex)
	if err != nil {
		return Result{}, fmt.Errorf("replay check for %s: %w", dep.Key(), err)
	}
	if settled {
		slog.Info("deposit already settled, skipping",
			"txHash", dep.TxHash,
			"logIndex", dep.LogIndex,
		)
		return Result{Outcome: models.OutcomeDuplicate}, nil
	}

	reg, err := e.registry.LookupBySourceAddress(dep.SourceAddress)
	if err != nil {
		if errors.Is(err, config.ErrRegistrationNotFound) {
			// No session to notify; the deposit sits in the custodial wallet
			// until the sender registers and deposits again, or an operator
			// intervenes.
			slog.Warn("deposit without registration",
				"from", dep.SourceAddress,
				"amount", dep.RawAmount.String(),
				"txHash", dep.TxHash,
			)
			return Result{Outcome: models.OutcomeRejectedNoRegistration}, nil
		}
		return Result{}, fmt.Errorf("registration lookup for %s: %w", dep.SourceAddress, err)
	}

	log := slog.With(
		"sessionID", reg.SessionID,
		"from", dep.SourceAddress,
		"txHash", dep.TxHash,
		"logIndex", dep.LogIndex,
	)

	if announce {
		e.notifier.NotifySession(reg.SessionID,
			fmt.Sprintf("🔄 Payment detected! Processing %s tokens...", amount.Format(dep.RawAmount)))
	}

	if dep.RawAmount.Cmp(e.cfg.MinSwap) < 0 {
		log.Info("deposit below minimum swap size",
			"amount", dep.RawAmount.String(),
			"min", e.cfg.MinSwap.String(),
		)
		e.notifier.NotifySession(reg.SessionID,
			fmt.Sprintf("❌ Deposit of %s is below the minimum swap size of %s.",
				amount.Format(dep.RawAmount), amount.Format(e.cfg.MinSwap)))
		return Result{Outcome: models.OutcomeRejectedTooSmall, SessionID: reg.SessionID}, nil
	}

	if dep.RawAmount.Cmp(e.cfg.MaxSwap) > 0 {
		// Policy: over-sized deposits are retained, not auto-refunded. The
		// deposit stays in the custody wallet for manual operator review.
		log.Warn("deposit above maximum swap size, retained for review",
			"amount", dep.RawAmount.String(),
			"max", e.cfg.MaxSwap.String(),
		)
		e.notifier.NotifySession(reg.SessionID,
			fmt.Sprintf("❌ Deposit of %s exceeds the maximum swap size of %s. The deposit is held for manual review; contact support.",
				amount.Format(dep.RawAmount), amount.Format(e.cfg.MaxSwap)))
		return Result{Outcome: models.OutcomeRejectedTooLarge, SessionID: reg.SessionID}, nil
	}

	count, err := e.ledger.CountByAddress(dep.SourceAddress)
	if err != nil {
		return Result{SessionID: reg.SessionID}, fmt.Errorf("settlement count for %s: %w", dep.SourceAddress, err)
	}
	if count >= e.cfg.MaxPerAddress {
		log.Info("settlement limit reached",
			"count", count,
			"limit", e.cfg.MaxPerAddress,
		)
		e.notifier.NotifySession(reg.SessionID,
			fmt.Sprintf("❌ You have reached the swap limit of %d settlements per address.", e.cfg.MaxPerAddress))
		return Result{Outcome: models.OutcomeRejectedLimitReached, SessionID: reg.SessionID}, nil
	}

	amountOut := e.cfg.Pricing.PayoutAmount(dep.RawAmount)

	reserve, err := e.executor.BalanceOf(ctx, e.cfg.CustodialAddress)
	if err != nil {
		return Result{SessionID: reg.SessionID}, config.NewTransientError(fmt.Errorf("reserve check: %w", err))
	}
	if reserve.Cmp(amountOut) < 0 {
		log.Error("payout reserve insufficient",
			"reserve", reserve.String(),
			"required", amountOut.String(),
		)
		e.notifier.NotifySession(reg.SessionID,
			"⚠️ The payout reserve is temporarily insufficient. Your deposit is held and will be processed once the reserve is topped up; contact support.")
		return Result{Outcome: models.OutcomeRejectedInsufficientReserve, SessionID: reg.SessionID}, nil
	}

	// Journal the payout before submission so a crash between submission and
	// confirmation leaves a durable trace to reconcile on restart.
	payoutID := uuid.New().String()
	if err := e.journal.InsertPendingPayout(models.PendingPayout{
		ID:          payoutID,
		DepositKey:  dep.Key(),
		Destination: reg.PayoutAddress,
		AmountOut:   amountOut.String(),
	}); err != nil {
		return Result{SessionID: reg.SessionID}, fmt.Errorf("journal payout for %s: %w", dep.Key(), err)
	}

	payCtx, cancel := context.WithTimeout(ctx, e.cfg.PayoutConfirmTimeout)
	txRef, err := e.executor.Transfer(payCtx, reg.PayoutAddress, amountOut)
	cancel()
	if err != nil {
		if errors.Is(err, config.ErrReceiptTimeout) {
			// Broadcast but unconfirmed: the payout may still mine. The journal
			// row stays in submitted so startup reconciliation surfaces it, and
			// the transfer is never re-sent, which could pay twice.
			log.Warn("payout unconfirmed, left for reconciliation",
				"payoutID", payoutID,
				"error", err,
			)
			e.notifier.NotifySession(reg.SessionID,
				"⏳ Your payout was submitted but is taking longer than expected to confirm. It will be reconciled automatically; contact support if it does not arrive.")
			return Result{SessionID: reg.SessionID}, fmt.Errorf("payout unconfirmed for %s: %w", dep.Key(), err)
		}

		if jerr := e.journal.MarkPayoutFailed(payoutID, err.Error()); jerr != nil {
			log.Error("failed to update payout journal", "payoutID", payoutID, "error", jerr)
		}
		if !config.IsTransient(err) {
			e.notifier.NotifySession(reg.SessionID,
				"⚠️ Error processing your payment. Please contact support.")
		}
		return Result{SessionID: reg.SessionID}, fmt.Errorf("payout execution for %s: %w", dep.Key(), err)
	}

	if err := e.journal.MarkPayoutConfirmed(payoutID, txRef); err != nil {
		log.Error("failed to confirm payout journal", "payoutID", payoutID, "error", err)
	}

	rec := models.SettlementRecord{
		SourceAddress: dep.SourceAddress,
		AmountIn:      dep.RawAmount.String(),
		AmountOut:     amountOut.String(),
		TxRef:         txRef,
		TxHash:        dep.TxHash,
		LogIndex:      dep.LogIndex,
	}

	id, err := e.ledger.InsertSettlement(rec)
	if err != nil {
		if errors.Is(err, config.ErrDuplicateSettlement) {
			// Lost the commit race to an identical replay; the payout above is
			// the one that must not happen twice, and the per-address lock plus
			// the earlier replay check make this path unreachable in practice.
			log.Warn("settlement already committed", "error", err)
			return Result{Outcome: models.OutcomeDuplicate, TxRef: txRef, SessionID: reg.SessionID}, nil
		}
		// Payout executed but the ledger write failed. Surface loudly: this
		// needs operator attention, not a retry that would pay twice.
		log.Error("ledger write failed after payout",
			"payoutID", payoutID,
			"txRef", txRef,
			"error", err,
		)
		return Result{TxRef: txRef, SessionID: reg.SessionID}, fmt.Errorf("record settlement for %s after payout %s: %w", dep.Key(), txRef, err)
	}
	rec.ID = id

	e.registry.Remove(reg.SessionID)

	e.notifier.NotifySession(reg.SessionID,
		fmt.Sprintf("✅ Swap complete! tx: %s, converted %s tokens to %s payout tokens.",
			txRef, amount.Format(dep.RawAmount), amount.Format(amountOut)))

	log.Info("settlement complete",
		"amountIn", rec.AmountIn,
		"amountOut", rec.AmountOut,
		"txRef", txRef,
		"ledgerID", id,
	)

	return Result{Outcome: models.OutcomeSettled, TxRef: txRef, Record: &rec, SessionID: reg.SessionID}, nil
}

// addressLock returns the mutex serializing settlements for one source
// address. Locks are never discarded; the address space of active depositors
// is small and bounded by the attempt cap.
func (e *Engine) addressLock(address string) *sync.Mutex {
	key := strings.ToLower(address)

	e.locksMu.Lock()
	defer e.locksMu.Unlock()

	lock, ok := e.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[key] = lock
	}
	return lock
}
