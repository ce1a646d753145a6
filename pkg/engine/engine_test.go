package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stakeloop/incentive-engine/pkg/ledger"
	"github.com/stakeloop/incentive-engine/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amt(primary int64) models.Amount {
	return models.PrimaryFromInt(primary)
}

func testConfig() Config {
	return Config{PlatformAccount: "platform", CharityAccount: "charity-fund"}
}

// recordingObserver collects every callback for assertions.
type recordingObserver struct {
	opened    []models.Commitment
	resolved  []models.Outcome
	settled   []models.YieldBreakdown
	penalized []models.PenaltyBreakdown
	unlocked  []models.UnlockEvent
}

func (r *recordingObserver) CommitmentOpened(c models.Commitment) { r.opened = append(r.opened, c) }
func (r *recordingObserver) CommitmentResolved(o models.Outcome, _ models.VerificationResult) {
	r.resolved = append(r.resolved, o)
}
func (r *recordingObserver) PoolSettled(y models.YieldBreakdown)     { r.settled = append(r.settled, y) }
func (r *recordingObserver) PoolPenalized(p models.PenaltyBreakdown) { r.penalized = append(r.penalized, p) }
func (r *recordingObserver) VaultUnlocked(e models.UnlockEvent)      { r.unlocked = append(r.unlocked, e) }

type staticWallet struct {
	balances map[string]models.Amount
}

func (w staticWallet) GetBalance(_ context.Context, accountID string) (models.Amount, error) {
	return w.balances[accountID], nil
}

func TestCommitmentLifecycle(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	eng := New(testConfig(), Dependencies{Observer: obs})
	require.NoError(t, eng.Ledger().Credit("alice", models.BASE, amt(100)))

	deadline := time.Now().Add(time.Hour)
	c, err := eng.OpenCommitment(ctx, "alice", amt(40), deadline)
	require.NoError(t, err)
	assert.Len(t, obs.opened, 1)
	assert.True(t, eng.Balance("alice", models.BASE).Equal(amt(60)))

	now := time.Now()
	require.NoError(t, eng.SubmitCommitmentEvidence(c.Id, models.SelfEvidence(models.SelfDone, 100, now)))
	require.NoError(t, eng.SubmitCommitmentEvidence(c.Id, models.MediaEvidence(2, now)))
	require.NoError(t, eng.SubmitCommitmentEvidence(c.Id, models.ThirdPartyEvidence(1.0, now)))

	vr, err := eng.CommitmentVerification(c.Id)
	require.NoError(t, err)
	assert.Equal(t, models.VERIFIED, vr.Status)

	// Verified commitments resolve early.
	outcome, err := eng.ResolveCommitment(ctx, c.Id, now)
	require.NoError(t, err)
	assert.Equal(t, models.RELEASED, outcome.Kind)
	assert.True(t, eng.Balance("alice", models.BASE).Equal(amt(100)))
	assert.Len(t, obs.resolved, 1)
}

func TestResolveDue(t *testing.T) {
	ctx := context.Background()
	eng := New(testConfig(), Dependencies{})
	require.NoError(t, eng.Ledger().Credit("alice", models.BASE, amt(100)))

	past := time.Now().Add(-time.Hour)
	c1, err := eng.OpenCommitment(ctx, "alice", amt(10), past)
	require.NoError(t, err)
	c2, err := eng.OpenCommitment(ctx, "alice", amt(10), past)
	require.NoError(t, err)
	_, err = eng.OpenCommitment(ctx, "alice", amt(10), time.Now().Add(time.Hour))
	require.NoError(t, err)

	outcomes, err := eng.ResolveDue(ctx, time.Now())

	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	ids := []string{outcomes[0].CommitmentId, outcomes[1].CommitmentId}
	assert.ElementsMatch(t, []string{c1.Id, c2.Id}, ids)
	// No evidence was submitted, so both forfeit to Charity.
	assert.True(t, eng.Balance("alice", models.CHARITY).Equal(amt(20)))
}

func TestPoolLifecycle(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	eng := New(testConfig(), Dependencies{Observer: obs})
	require.NoError(t, eng.Ledger().Credit("creator", models.BASE, amt(100)))
	require.NoError(t, eng.Ledger().Credit("ivan", models.BASE, amt(100)))

	p, err := eng.CreatePool("creator", 9.0, true, amt(100))
	require.NoError(t, err)
	inv, err := eng.InvestInPool(p.Id, "ivan", amt(100))
	require.NoError(t, err)

	verified := models.VerificationResult{Status: models.VERIFIED, Score: 0.9}
	breakdown, err := eng.SettlePoolSuccess(ctx, p.Id, verified, 30, 10, 10)
	require.NoError(t, err)
	assert.True(t, breakdown.YieldRate.Equal(decimal.NewFromInt(234)))
	assert.Len(t, obs.settled, 1)

	principal, err := eng.WithdrawInvestment(ctx, inv.Id)
	require.NoError(t, err)
	assert.True(t, principal.Equal(amt(100)))
}

func TestPoolPenaltyObserved(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	eng := New(testConfig(), Dependencies{Observer: obs})
	require.NoError(t, eng.Ledger().Credit("creator", models.BASE, amt(150)))

	p, err := eng.CreatePool("creator", 9.0, true, amt(100))
	require.NoError(t, err)

	_, err = eng.SettlePoolPenalty(ctx, p.Id, "abandoned", 0.5)

	require.NoError(t, err)
	require.Len(t, obs.penalized, 1)
	assert.Equal(t, "abandoned", obs.penalized[0].Reason)
}

func TestVaultLifecycle(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	eng := New(testConfig(), Dependencies{Observer: obs})
	require.NoError(t, eng.Ledger().Credit("owner", models.BASE, amt(1000)))

	now := time.Now()
	milestones := []models.Milestone{{UnlockPercentage: decimal.NewFromInt(100)}}
	v, err := eng.CreateVault("owner", "kid", amt(1000), 5, 0.7, milestones, now)
	require.NoError(t, err)

	for _, ev := range []models.Evidence{
		models.SelfEvidence(models.SelfDone, 100, now),
		models.MediaEvidence(2, now),
		models.ThirdPartyEvidence(1.0, now),
	} {
		_, err = eng.SubmitVaultEvidence(ctx, v.Id, ev, now)
		require.NoError(t, err)
	}

	require.Len(t, obs.unlocked, 1)
	assert.Equal(t, models.UNLOCKED, obs.unlocked[0].Status)
	assert.True(t, eng.Balance("kid", models.BASE).Equal(amt(1000)))
}

func TestRecordingExecutor(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(decimal.Zero)
	recorder := NewRecordingExecutor(NewLedgerExecutor(l))
	eng := New(testConfig(), Dependencies{Ledger: l, Executor: recorder})
	require.NoError(t, l.Credit("alice", models.BASE, amt(100)))

	c, err := eng.OpenCommitment(ctx, "alice", amt(40), time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = eng.ResolveCommitment(ctx, c.Id, time.Now())
	require.NoError(t, err)

	batches := recorder.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Entries, 1)
	assert.Equal(t, ledger.CREDIT, batches[0].Entries[0].Type)
	assert.Equal(t, "alice", batches[0].Entries[0].Account)
}

func TestReconcileBalance(t *testing.T) {
	ctx := context.Background()

	t.Run("Remote Lower Wins", func(t *testing.T) {
		wallets := staticWallet{balances: map[string]models.Amount{"alice": amt(80)}}
		eng := New(testConfig(), Dependencies{Wallets: wallets})
		require.NoError(t, eng.Ledger().Credit("alice", models.BASE, amt(100)))

		merged, err := eng.ReconcileBalance(ctx, "alice")

		require.NoError(t, err)
		assert.True(t, merged.Equal(amt(80)))
		assert.True(t, eng.Balance("alice", models.BASE).Equal(amt(80)))
	})

	t.Run("Local Nonzero Preserved", func(t *testing.T) {
		wallets := staticWallet{balances: map[string]models.Amount{"alice": amt(120)}}
		eng := New(testConfig(), Dependencies{Wallets: wallets})
		require.NoError(t, eng.Ledger().Credit("alice", models.BASE, amt(100)))

		merged, err := eng.ReconcileBalance(ctx, "alice")

		require.NoError(t, err)
		assert.True(t, merged.Equal(amt(100)))
	})

	t.Run("No Provider Configured", func(t *testing.T) {
		eng := New(testConfig(), Dependencies{})
		_, err := eng.ReconcileBalance(ctx, "alice")
		assert.Error(t, err)
	})
}
