package pledge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stakeloop/incentive-engine/pkg/ledger"
	"github.com/stakeloop/incentive-engine/pkg/models"
	"github.com/stakeloop/incentive-engine/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amt(primary int64) models.Amount {
	return models.PrimaryAmount(decimal.NewFromInt(primary))
}

func newService(t *testing.T, funding int64) (*Service, *ledger.Ledger) {
	t.Helper()
	l := ledger.New(decimal.Zero)
	require.NoError(t, l.Credit("alice", models.BASE, amt(funding)))
	return New(l, nil, scheduler.NoOpScheduler{}), l
}

type failingScheduler struct{}

func (failingScheduler) ScheduleResolution(context.Context, scheduler.ResolutionTrigger, time.Duration) error {
	return errors.New("queue unavailable")
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	deadline := time.Now().Add(24 * time.Hour)

	t.Run("Locks Funds", func(t *testing.T) {
		svc, l := newService(t, 100)

		c, err := svc.Open(ctx, "alice", amt(40), deadline)

		require.NoError(t, err)
		assert.Equal(t, models.LOCKED, c.Status)
		assert.True(t, c.LockedAmount.Equal(amt(40)))
		assert.True(t, l.Balance("alice", models.BASE).Equal(amt(60)))
	})

	t.Run("Insufficient Funds", func(t *testing.T) {
		svc, l := newService(t, 10)

		c, err := svc.Open(ctx, "alice", amt(40), deadline)

		assert.Nil(t, c)
		assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		assert.True(t, l.Balance("alice", models.BASE).Equal(amt(10)))
	})

	t.Run("Trigger Failure Keeps Commitment", func(t *testing.T) {
		l := ledger.New(decimal.Zero)
		require.NoError(t, l.Credit("alice", models.BASE, amt(100)))
		svc := New(l, nil, failingScheduler{})

		c, err := svc.Open(ctx, "alice", amt(40), deadline)

		assert.Error(t, err)
		require.NotNil(t, c)
		stored, getErr := svc.Get(c.Id)
		require.NoError(t, getErr)
		assert.Equal(t, models.LOCKED, stored.Status)
		assert.True(t, l.Balance("alice", models.BASE).Equal(amt(60)))
	})
}

func TestSubmitEvidence(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, 100)
	c, err := svc.Open(ctx, "alice", amt(40), time.Now().Add(time.Hour))
	require.NoError(t, err)

	t.Run("Appends In Order", func(t *testing.T) {
		now := time.Now()
		require.NoError(t, svc.SubmitEvidence(c.Id, models.SelfEvidence(models.SelfDone, 100, now)))
		require.NoError(t, svc.SubmitEvidence(c.Id, models.MediaEvidence(2, now)))

		log, err := svc.Evidence(c.Id)
		require.NoError(t, err)
		require.Len(t, log, 2)
		assert.Equal(t, models.SELF, log[0].Kind)
		assert.Equal(t, models.MEDIA, log[1].Kind)
	})

	t.Run("Unknown Commitment", func(t *testing.T) {
		err := svc.SubmitEvidence("missing", models.MediaEvidence(1, time.Now()))
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	deadline := time.Now().Add(time.Hour)
	afterDeadline := deadline.Add(time.Minute)

	verified := models.VerificationResult{Status: models.VERIFIED, Score: 0.8}
	selfVerified := models.VerificationResult{Status: models.SELF_VERIFIED, Score: 0.4}
	unverified := models.VerificationResult{Status: models.UNVERIFIED, Score: 0.1}

	t.Run("Verified Releases To Base", func(t *testing.T) {
		svc, l := newService(t, 100)
		c, err := svc.Open(ctx, "alice", amt(40), deadline)
		require.NoError(t, err)

		outcome, err := svc.Resolve(ctx, c.Id, verified, afterDeadline)

		require.NoError(t, err)
		assert.Equal(t, models.RELEASED, outcome.Kind)
		assert.True(t, l.Balance("alice", models.BASE).Equal(amt(100)))
		assert.True(t, l.Balance("alice", models.CHARITY).IsZero())
	})

	t.Run("Self Verified Releases To Base", func(t *testing.T) {
		svc, l := newService(t, 100)
		c, err := svc.Open(ctx, "alice", amt(40), deadline)
		require.NoError(t, err)

		outcome, err := svc.Resolve(ctx, c.Id, selfVerified, afterDeadline)

		require.NoError(t, err)
		assert.Equal(t, models.RELEASED, outcome.Kind)
		assert.True(t, l.Balance("alice", models.BASE).Equal(amt(100)))
	})

	t.Run("Unverified Forfeits To Charity", func(t *testing.T) {
		svc, l := newService(t, 100)
		c, err := svc.Open(ctx, "alice", amt(40), deadline)
		require.NoError(t, err)

		outcome, err := svc.Resolve(ctx, c.Id, unverified, afterDeadline)

		require.NoError(t, err)
		assert.Equal(t, models.FORFEITED, outcome.Kind)
		assert.True(t, l.Balance("alice", models.BASE).Equal(amt(60)))
		assert.True(t, l.Balance("alice", models.CHARITY).Equal(amt(40)))
	})

	t.Run("Too Early Without Verified", func(t *testing.T) {
		svc, _ := newService(t, 100)
		c, err := svc.Open(ctx, "alice", amt(40), deadline)
		require.NoError(t, err)

		_, err = svc.Resolve(ctx, c.Id, selfVerified, deadline.Add(-time.Minute))

		assert.ErrorIs(t, err, ErrTooEarly)
		stored, getErr := svc.Get(c.Id)
		require.NoError(t, getErr)
		assert.Equal(t, models.LOCKED, stored.Status)
	})

	t.Run("Early Resolution Allowed When Verified", func(t *testing.T) {
		svc, l := newService(t, 100)
		c, err := svc.Open(ctx, "alice", amt(40), deadline)
		require.NoError(t, err)

		outcome, err := svc.Resolve(ctx, c.Id, verified, deadline.Add(-time.Minute))

		require.NoError(t, err)
		assert.Equal(t, models.RELEASED, outcome.Kind)
		assert.True(t, l.Balance("alice", models.BASE).Equal(amt(100)))
	})

	t.Run("Idempotent Replay", func(t *testing.T) {
		svc, l := newService(t, 100)
		c, err := svc.Open(ctx, "alice", amt(40), deadline)
		require.NoError(t, err)

		first, err := svc.Resolve(ctx, c.Id, verified, afterDeadline)
		require.NoError(t, err)
		second, err := svc.Resolve(ctx, c.Id, unverified, afterDeadline.Add(time.Hour))
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.True(t, l.Balance("alice", models.BASE).Equal(amt(100)), "replay must not pay twice")
	})

	t.Run("Unknown Commitment", func(t *testing.T) {
		svc, _ := newService(t, 100)
		_, err := svc.Resolve(ctx, "missing", verified, afterDeadline)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDueUnresolved(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, 1000)
	now := time.Now()

	late, err := svc.Open(ctx, "alice", amt(10), now.Add(-2*time.Hour))
	require.NoError(t, err)
	later, err := svc.Open(ctx, "alice", amt(10), now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = svc.Open(ctx, "alice", amt(10), now.Add(time.Hour))
	require.NoError(t, err)

	due := svc.DueUnresolved(now)

	require.Len(t, due, 2)
	assert.Equal(t, late.Id, due[0].Id)
	assert.Equal(t, later.Id, due[1].Id)
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, 100)
	c, err := svc.Open(ctx, "alice", amt(40), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, svc.SubmitEvidence(c.Id, models.MediaEvidence(1, time.Now())))

	st := svc.Snapshot()

	restored := New(ledger.New(decimal.Zero), nil, nil)
	restored.Restore(st)

	got, err := restored.Get(c.Id)
	require.NoError(t, err)
	assert.Equal(t, c.Id, got.Id)
	log, err := restored.Evidence(c.Id)
	require.NoError(t, err)
	assert.Len(t, log, 1)
}
