package ledger

import (
	"context"
	"fmt"

	"github.com/stakeloop/incentive-engine/pkg/models"
)

// EntryType distinguishes the two directions of a batch entry.
type EntryType string

const (
	DEBIT  EntryType = "DEBIT"
	CREDIT EntryType = "CREDIT"
)

// Entry is one purse mutation inside a settlement batch. Batch debits move
// exact, already-computed amounts between purses and therefore bypass the
// secondary-spend penalty; the penalty applies to user-facing Deduct calls.
type Entry struct {
	Type    EntryType        `json:"type"`
	Account string           `json:"account"`
	Kind    models.PurseKind `json:"kind"`
	Amount  models.Amount    `json:"amount"`
	Memo    string           `json:"memo,omitempty"`
}

// Batch is an all-or-nothing set of purse mutations. Settlement functions
// build a batch and apply it in one step so that no partial application is
// ever observable.
type Batch struct {
	Entries []Entry `json:"entries"`
}

// Debit appends a debit entry.
func (b *Batch) Debit(account string, kind models.PurseKind, amount models.Amount, memo string) {
	b.Entries = append(b.Entries, Entry{Type: DEBIT, Account: account, Kind: kind, Amount: amount, Memo: memo})
}

// Credit appends a credit entry.
func (b *Batch) Credit(account string, kind models.PurseKind, amount models.Amount, memo string) {
	b.Entries = append(b.Entries, Entry{Type: CREDIT, Account: account, Kind: kind, Amount: amount, Memo: memo})
}

// Applier applies settlement batches. The Ledger is the canonical
// implementation; the engine wraps it in a SettlementExecutor chosen at
// construction time.
type Applier interface {
	Apply(ctx context.Context, batch *Batch) error
}

// Make sure we conform to the interface
var _ Applier = (*Ledger)(nil)

// Apply validates every entry of the batch against current balances and
// then applies all of them under one lock. On any failure the ledger is
// left untouched.
func (l *Ledger) Apply(ctx context.Context, batch *Batch) error {
	if batch == nil || len(batch.Entries) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	// 1. Validate: simulate running balances per touched purse.
	type purseKey struct {
		account string
		kind    models.PurseKind
	}
	running := make(map[purseKey]models.Amount)
	balanceOf := func(k purseKey) models.Amount {
		if bal, ok := running[k]; ok {
			return bal
		}
		return l.purses(k.account)[k.kind].Balance
	}
	for _, e := range batch.Entries {
		if e.Amount.IsNegative() {
			return fmt.Errorf("batch entry %s %s/%s: negative amount: %w", e.Type, e.Account, e.Kind, ErrInvariantViolation)
		}
		k := purseKey{e.Account, e.Kind}
		bal := balanceOf(k)
		switch e.Type {
		case DEBIT:
			next := bal.Sub(e.Amount)
			if next.IsNegative() {
				return fmt.Errorf("batch debit %s from %s/%s: %w", e.Amount, e.Account, e.Kind, ErrInsufficientFunds)
			}
			running[k] = next
		case CREDIT:
			running[k] = bal.Add(e.Amount)
		default:
			return fmt.Errorf("batch entry type %q: %w", e.Type, ErrInvariantViolation)
		}
	}

	// 2. Apply: every entry validated, so mutation cannot fail midway.
	now := l.now()
	for _, e := range batch.Entries {
		p := l.purses(e.Account)[e.Kind]
		switch e.Type {
		case DEBIT:
			p.Balance = p.Balance.Sub(e.Amount)
		case CREDIT:
			p.Balance = p.Balance.Add(e.Amount)
		}
		p.LastUpdated = now
	}
	return nil
}
