// Package engine wires the ledger, the verification scorer, and the
// pledge/pool/vault services into one explicitly constructed context.
// There is no ambient global state: every collaborator is injected at
// construction and passed by reference to all operations.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stakeloop/incentive-engine/pkg/ledger"
	"github.com/stakeloop/incentive-engine/pkg/models"
	"github.com/stakeloop/incentive-engine/pkg/pledge"
	"github.com/stakeloop/incentive-engine/pkg/pool"
	"github.com/stakeloop/incentive-engine/pkg/scheduler"
	"github.com/stakeloop/incentive-engine/pkg/storage"
	"github.com/stakeloop/incentive-engine/pkg/vault"
	"github.com/stakeloop/incentive-engine/pkg/verification"
	"github.com/stakeloop/incentive-engine/pkg/wallet"
)

// DefaultStateKey is the persistence key engine state is saved under.
const DefaultStateKey = "incentive-engine-state"

// Config holds the engine's numeric policy and account wiring.
type Config struct {
	// PenaltyRate is the primary-currency penalty per unit of secondary
	// token spent. Zero selects ledger.DefaultPenaltyRate.
	PenaltyRate decimal.Decimal
	// RatingThreshold for pool creation. Zero selects
	// pool.DefaultRatingThreshold.
	RatingThreshold float64
	// PlatformAccount holds fees, the redistribution reserve, and the
	// early-investor bonus margin.
	PlatformAccount string
	// CharityAccount receives the charity slice of platform fees.
	CharityAccount string
	// StateKey under which state persists. Empty selects DefaultStateKey.
	StateKey string
}

// Dependencies are the engine's injected collaborators. Every field may be
// nil; nil selects the no-op or default implementation.
type Dependencies struct {
	// Ledger to operate on. Nil creates a fresh one. Passing an existing
	// ledger lets callers pre-wire an executor around it.
	Ledger *ledger.Ledger
	// Executor runs settlement batches. Nil selects LedgerExecutor.
	Executor SettlementExecutor
	// Observer receives audit callbacks. Nil selects NoOpObserver.
	Observer Observer
	// Store persists engine state. Nil disables SaveState/LoadState.
	Store storage.PersistenceStore
	// Scheduler enqueues resolution triggers. Nil disables them.
	Scheduler scheduler.Scheduler
	// Wallets reports authoritative external balances. Nil disables
	// reconciliation.
	Wallets wallet.BalanceProvider
}

// Engine is the explicitly constructed context for all token-economy
// operations.
type Engine struct {
	cfg      Config
	ledger   *ledger.Ledger
	pledges  *pledge.Service
	pools    *pool.Service
	vaults   *vault.Service
	executor SettlementExecutor
	observer Observer
	store    storage.PersistenceStore
	wallets  wallet.BalanceProvider
}

// New constructs an Engine from configuration and collaborators.
func New(cfg Config, deps Dependencies) *Engine {
	if cfg.StateKey == "" {
		cfg.StateKey = DefaultStateKey
	}
	l := deps.Ledger
	if l == nil {
		l = ledger.New(cfg.PenaltyRate)
	}
	executor := deps.Executor
	if executor == nil {
		executor = NewLedgerExecutor(l)
	}
	observer := deps.Observer
	if observer == nil {
		observer = NoOpObserver{}
	}

	return &Engine{
		cfg:    cfg,
		ledger: l,
		pledges: pledge.New(l, executor, deps.Scheduler),
		pools: pool.New(l, executor, pool.Config{
			RatingThreshold: cfg.RatingThreshold,
			PlatformAccount: cfg.PlatformAccount,
			CharityAccount:  cfg.CharityAccount,
		}),
		vaults:   vault.New(l, executor),
		executor: executor,
		observer: observer,
		store:    deps.Store,
		wallets:  deps.Wallets,
	}
}

// Ledger exposes the underlying ledger for balance reads and account
// initialization.
func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

// Balance returns the current balance of one purse.
func (e *Engine) Balance(accountID string, kind models.PurseKind) models.Amount {
	return e.ledger.Balance(accountID, kind)
}

// OpenCommitment locks funds against a goal.
func (e *Engine) OpenCommitment(ctx context.Context, ownerID string, amount models.Amount, deadline time.Time) (*models.Commitment, error) {
	c, err := e.pledges.Open(ctx, ownerID, amount, deadline)
	if c != nil {
		e.observer.CommitmentOpened(*c)
	}
	return c, err
}

// SubmitCommitmentEvidence appends evidence to a commitment's log.
func (e *Engine) SubmitCommitmentEvidence(commitmentID string, ev models.Evidence) error {
	return e.pledges.SubmitEvidence(commitmentID, ev)
}

// CommitmentVerification scores a commitment's full evidence log.
func (e *Engine) CommitmentVerification(commitmentID string) (models.VerificationResult, error) {
	evidence, err := e.pledges.Evidence(commitmentID)
	if err != nil {
		return models.VerificationResult{}, err
	}
	return verification.Score(evidence), nil
}

// ResolveCommitment scores the commitment's evidence and resolves it.
// Resolution is idempotent: duplicates replay the stored outcome.
func (e *Engine) ResolveCommitment(ctx context.Context, commitmentID string, now time.Time) (models.Outcome, error) {
	vr, err := e.CommitmentVerification(commitmentID)
	if err != nil {
		return models.Outcome{}, err
	}
	return e.ResolveCommitmentWith(ctx, commitmentID, vr, now)
}

// ResolveCommitmentWith resolves a commitment against a caller-supplied
// verification result.
func (e *Engine) ResolveCommitmentWith(ctx context.Context, commitmentID string, vr models.VerificationResult, now time.Time) (models.Outcome, error) {
	outcome, err := e.pledges.Resolve(ctx, commitmentID, vr, now)
	if err != nil {
		return models.Outcome{}, err
	}
	e.observer.CommitmentResolved(outcome, vr)
	return outcome, nil
}

// ResolveDue resolves every commitment whose deadline has passed. Used by
// the reconciliation sweep; individual failures do not stop the batch.
func (e *Engine) ResolveDue(ctx context.Context, now time.Time) ([]models.Outcome, error) {
	var outcomes []models.Outcome
	var firstErr error
	for _, c := range e.pledges.DueUnresolved(now) {
		outcome, err := e.ResolveCommitment(ctx, c.Id, now)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to resolve commitment %s: %w", c.Id, err)
			}
			continue
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, firstErr
}

// CreatePool opens a liquidity pool for a qualified creator.
func (e *Engine) CreatePool(creatorID string, creatorRating float64, qualifiedAsset bool, initialStake models.Amount) (*models.Pool, error) {
	return e.pools.Create(creatorID, creatorRating, qualifiedAsset, initialStake)
}

// InvestInPool locks investor principal and mints pool shares.
func (e *Engine) InvestInPool(poolID, investorID string, amount models.Amount) (*models.Investment, error) {
	return e.pools.Invest(poolID, investorID, amount)
}

// SettlePoolSuccess completes a pool and distributes yield.
func (e *Engine) SettlePoolSuccess(ctx context.Context, poolID string, vr models.VerificationResult, consistencyDays int, communityRating float64, supportActionCount int) (*models.YieldBreakdown, error) {
	breakdown, err := e.pools.SettleSuccess(ctx, poolID, vr, consistencyDays, communityRating, supportActionCount)
	if err != nil {
		return nil, err
	}
	e.observer.PoolSettled(*breakdown)
	return breakdown, nil
}

// SettlePoolPenalty fails a pool and routes losses.
func (e *Engine) SettlePoolPenalty(ctx context.Context, poolID, reason string, ratingPenalty float64) (*models.PenaltyBreakdown, error) {
	breakdown, err := e.pools.SettlePenalty(ctx, poolID, reason, ratingPenalty)
	if err != nil {
		return nil, err
	}
	e.observer.PoolPenalized(*breakdown)
	return breakdown, nil
}

// WithdrawInvestment redeems principal from a completed pool.
func (e *Engine) WithdrawInvestment(ctx context.Context, investmentID string) (models.Amount, error) {
	return e.pools.Withdraw(ctx, investmentID)
}

// CreateVault opens a time-locked vault.
func (e *Engine) CreateVault(ownerID, beneficiaryID string, amount models.Amount, years int, requiredConfidence float64, milestones []models.Milestone, now time.Time) (*models.Vault, error) {
	return e.vaults.Create(ownerID, beneficiaryID, amount, years, requiredConfidence, milestones, now)
}

// SubmitVaultEvidence appends evidence to a vault and evaluates milestone
// unlocks (and lazy expiry).
func (e *Engine) SubmitVaultEvidence(ctx context.Context, vaultID string, ev models.Evidence, now time.Time) (*models.UnlockEvent, error) {
	event, err := e.vaults.SubmitEvidenceAndCheck(ctx, vaultID, ev, now)
	if err != nil {
		return nil, err
	}
	if event != nil {
		e.observer.VaultUnlocked(*event)
	}
	return event, nil
}

// Pools exposes the pool service for reads.
func (e *Engine) Pools() *pool.Service { return e.pools }

// Pledges exposes the pledge service for reads.
func (e *Engine) Pledges() *pledge.Service { return e.pledges }

// Vaults exposes the vault service for reads.
func (e *Engine) Vaults() *vault.Service { return e.vaults }

// ReconcileBalance refreshes an account's Base purse against the external
// wallet balance. The external balance is authoritative, but local
// deductions not yet visible remotely are preserved: per denomination the
// lower value wins when remote is below local, remote wins when local is
// zero, local wins otherwise.
func (e *Engine) ReconcileBalance(ctx context.Context, accountID string) (models.Amount, error) {
	if e.wallets == nil {
		return models.Amount{}, fmt.Errorf("no wallet balance provider configured")
	}
	remote, err := e.wallets.GetBalance(ctx, accountID)
	if err != nil {
		return models.Amount{}, fmt.Errorf("failed to fetch wallet balance for %s: %w", accountID, err)
	}
	local := e.ledger.Balance(accountID, models.BASE)
	merged := wallet.Reconcile(local, remote)
	if err := e.ledger.SetBalance(accountID, models.BASE, merged); err != nil {
		return models.Amount{}, err
	}
	return merged, nil
}
