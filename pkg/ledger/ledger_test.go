package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stakeloop/incentive-engine/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amt(primary, secondary int64) models.Amount {
	return models.NewAmount(decimal.NewFromInt(primary), decimal.NewFromInt(secondary))
}

func TestDeduct(t *testing.T) {
	t.Run("Primary Only", func(t *testing.T) {
		l := New(decimal.Zero)
		require.NoError(t, l.Credit("alice", models.BASE, amt(100, 0)))

		err := l.Deduct("alice", models.BASE, amt(40, 0))

		assert.NoError(t, err)
		assert.True(t, l.Balance("alice", models.BASE).Equal(amt(60, 0)))
	})

	t.Run("Secondary Spend Penalty", func(t *testing.T) {
		// Spending 5 secondary at the default 2x rate costs an extra 10
		// primary: {1000,500} - {10,5} leaves {980,495}.
		l := New(decimal.Zero)
		require.NoError(t, l.Credit("alice", models.BASE, amt(1000, 500)))

		err := l.Deduct("alice", models.BASE, amt(10, 5))

		assert.NoError(t, err)
		assert.True(t, l.Balance("alice", models.BASE).Equal(amt(980, 495)),
			"got %s", l.Balance("alice", models.BASE))
	})

	t.Run("Configurable Penalty Rate", func(t *testing.T) {
		l := New(decimal.NewFromInt(3))
		require.NoError(t, l.Credit("alice", models.BASE, amt(100, 10)))

		err := l.Deduct("alice", models.BASE, amt(10, 10))

		assert.NoError(t, err)
		assert.True(t, l.Balance("alice", models.BASE).Equal(amt(60, 0)))
	})

	t.Run("Insufficient Primary For Penalty Leaves Balance Unchanged", func(t *testing.T) {
		l := New(decimal.Zero)
		require.NoError(t, l.Credit("alice", models.BASE, amt(25, 100)))

		// 10 primary + 2x10 penalty = 30 required, only 25 available.
		err := l.Deduct("alice", models.BASE, amt(10, 10))

		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.True(t, l.Balance("alice", models.BASE).Equal(amt(25, 100)))
	})

	t.Run("Insufficient Secondary", func(t *testing.T) {
		l := New(decimal.Zero)
		require.NoError(t, l.Credit("alice", models.BASE, amt(1000, 1)))

		err := l.Deduct("alice", models.BASE, amt(10, 5))

		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.True(t, l.Balance("alice", models.BASE).Equal(amt(1000, 1)))
	})

	t.Run("Negative Amount", func(t *testing.T) {
		l := New(decimal.Zero)

		err := l.Deduct("alice", models.BASE, amt(-5, 0))

		assert.ErrorIs(t, err, ErrInvariantViolation)
	})

	t.Run("Unknown Account Reads Zero", func(t *testing.T) {
		l := New(decimal.Zero)

		err := l.Deduct("ghost", models.BASE, amt(1, 0))

		assert.ErrorIs(t, err, ErrInsufficientFunds)
	})
}

func TestCredit(t *testing.T) {
	t.Run("Accumulation Purses", func(t *testing.T) {
		l := New(decimal.Zero)

		require.NoError(t, l.Credit("alice", models.CHARITY, amt(30, 0)))
		require.NoError(t, l.Credit("alice", models.CHARITY, amt(12, 3)))

		assert.True(t, l.Balance("alice", models.CHARITY).Equal(amt(42, 3)))
	})

	t.Run("Negative Amount", func(t *testing.T) {
		l := New(decimal.Zero)

		err := l.Credit("alice", models.REWARD, amt(-1, 0))

		assert.ErrorIs(t, err, ErrInvariantViolation)
	})

	t.Run("Bumps LastUpdated", func(t *testing.T) {
		l := New(decimal.Zero)
		l.InitAccount("alice")
		before := l.Snapshot()["alice"]

		require.NoError(t, l.Credit("alice", models.BASE, amt(1, 0)))

		after := l.Snapshot()["alice"]
		assert.False(t, after[0].LastUpdated.Before(before[0].LastUpdated))
	})
}

func TestTransfer(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		l := New(decimal.Zero)
		require.NoError(t, l.Credit("alice", models.BASE, amt(100, 0)))

		err := l.Transfer("alice", models.BASE, "bob", models.BASE, amt(40, 0))

		assert.NoError(t, err)
		assert.True(t, l.Balance("alice", models.BASE).Equal(amt(60, 0)))
		assert.True(t, l.Balance("bob", models.BASE).Equal(amt(40, 0)))
	})

	t.Run("No Partial Transfer On Failed Deduct", func(t *testing.T) {
		l := New(decimal.Zero)
		require.NoError(t, l.Credit("alice", models.BASE, amt(10, 0)))

		err := l.Transfer("alice", models.BASE, "bob", models.BASE, amt(40, 0))

		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.True(t, l.Balance("alice", models.BASE).Equal(amt(10, 0)))
		assert.True(t, l.Balance("bob", models.BASE).IsZero())
	})
}

func TestApply(t *testing.T) {
	ctx := context.Background()

	t.Run("All Entries Applied", func(t *testing.T) {
		l := New(decimal.Zero)
		require.NoError(t, l.Credit("alice", models.BASE, amt(100, 0)))

		batch := &Batch{}
		batch.Debit("alice", models.BASE, amt(30, 0), "test")
		batch.Credit("bob", models.BASE, amt(20, 0), "test")
		batch.Credit("carol", models.CHARITY, amt(10, 0), "test")

		assert.NoError(t, l.Apply(ctx, batch))
		assert.True(t, l.Balance("alice", models.BASE).Equal(amt(70, 0)))
		assert.True(t, l.Balance("bob", models.BASE).Equal(amt(20, 0)))
		assert.True(t, l.Balance("carol", models.CHARITY).Equal(amt(10, 0)))
	})

	t.Run("All Or Nothing", func(t *testing.T) {
		l := New(decimal.Zero)
		require.NoError(t, l.Credit("alice", models.BASE, amt(100, 0)))

		batch := &Batch{}
		batch.Credit("bob", models.BASE, amt(20, 0), "test")
		batch.Debit("alice", models.BASE, amt(500, 0), "overdraw")

		err := l.Apply(ctx, batch)

		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.True(t, l.Balance("alice", models.BASE).Equal(amt(100, 0)))
		assert.True(t, l.Balance("bob", models.BASE).IsZero())
	})

	t.Run("Credit Then Debit Same Purse", func(t *testing.T) {
		// A debit may be covered by an earlier credit in the same batch.
		l := New(decimal.Zero)

		batch := &Batch{}
		batch.Credit("alice", models.BASE, amt(50, 0), "fund")
		batch.Debit("alice", models.BASE, amt(50, 0), "spend")

		assert.NoError(t, l.Apply(ctx, batch))
		assert.True(t, l.Balance("alice", models.BASE).IsZero())
	})

	t.Run("Batch Debits Skip Spend Penalty", func(t *testing.T) {
		l := New(decimal.Zero)
		require.NoError(t, l.Credit("alice", models.BASE, amt(10, 5)))

		batch := &Batch{}
		batch.Debit("alice", models.BASE, amt(10, 5), "settlement")

		assert.NoError(t, l.Apply(ctx, batch))
		assert.True(t, l.Balance("alice", models.BASE).IsZero())
	})

	t.Run("Empty Batch", func(t *testing.T) {
		l := New(decimal.Zero)
		assert.NoError(t, l.Apply(ctx, nil))
		assert.NoError(t, l.Apply(ctx, &Batch{}))
	})

	t.Run("Negative Entry", func(t *testing.T) {
		l := New(decimal.Zero)

		batch := &Batch{}
		batch.Credit("alice", models.BASE, amt(-1, 0), "bad")

		assert.ErrorIs(t, l.Apply(ctx, batch), ErrInvariantViolation)
	})
}

func TestSnapshotRestore(t *testing.T) {
	l := New(decimal.Zero)
	require.NoError(t, l.Credit("alice", models.BASE, amt(100, 5)))
	require.NoError(t, l.Credit("bob", models.CHARITY, amt(7, 0)))

	snapshot := l.Snapshot()

	restored := New(decimal.Zero)
	require.NoError(t, restored.Restore(snapshot))

	assert.True(t, restored.Balance("alice", models.BASE).Equal(amt(100, 5)))
	assert.True(t, restored.Balance("bob", models.CHARITY).Equal(amt(7, 0)))
	assert.ElementsMatch(t, l.Accounts(), restored.Accounts())

	t.Run("Negative Balance Rejected", func(t *testing.T) {
		bad := map[string][]models.Purse{
			"alice": {{Kind: models.BASE, Balance: amt(-1, 0)}},
		}
		err := New(decimal.Zero).Restore(bad)
		assert.True(t, errors.Is(err, ErrInvariantViolation))
	})
}
