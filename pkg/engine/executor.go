package engine

import (
	"context"
	"sync"

	"github.com/stakeloop/incentive-engine/pkg/ledger"
)

// SettlementExecutor is where settlement batches execute. The
// implementation is selected explicitly at construction time, never probed
// at runtime inside business logic.
type SettlementExecutor interface {
	ledger.Applier
}

// LedgerExecutor executes settlement batches directly against the
// in-memory ledger. This is the default executor.
type LedgerExecutor struct {
	Ledger *ledger.Ledger
}

// NewLedgerExecutor creates a LedgerExecutor.
func NewLedgerExecutor(l *ledger.Ledger) *LedgerExecutor {
	return &LedgerExecutor{Ledger: l}
}

// Make sure we conform to the interface
var _ SettlementExecutor = (*LedgerExecutor)(nil)

// Apply delegates to the ledger.
func (e *LedgerExecutor) Apply(ctx context.Context, batch *ledger.Batch) error {
	return e.Ledger.Apply(ctx, batch)
}

// RecordingExecutor applies settlement batches through an inner applier and
// keeps a copy of every applied batch, giving tests and audit tooling the
// full settlement history.
type RecordingExecutor struct {
	inner ledger.Applier

	mu      sync.Mutex
	batches []ledger.Batch
}

// NewRecordingExecutor creates a RecordingExecutor around an inner applier.
func NewRecordingExecutor(inner ledger.Applier) *RecordingExecutor {
	return &RecordingExecutor{inner: inner}
}

// Make sure we conform to the interface
var _ SettlementExecutor = (*RecordingExecutor)(nil)

// Apply executes the batch and records it on success.
func (e *RecordingExecutor) Apply(ctx context.Context, batch *ledger.Batch) error {
	if err := e.inner.Apply(ctx, batch); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	copied := ledger.Batch{Entries: append([]ledger.Entry(nil), batch.Entries...)}
	e.batches = append(e.batches, copied)
	return nil
}

// Batches returns a copy of every batch applied so far.
func (e *RecordingExecutor) Batches() []ledger.Batch {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ledger.Batch, len(e.batches))
	copy(out, e.batches)
	return out
}
