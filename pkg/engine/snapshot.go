package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stakeloop/incentive-engine/pkg/models"
	"github.com/stakeloop/incentive-engine/pkg/pledge"
	"github.com/stakeloop/incentive-engine/pkg/pool"
	"github.com/stakeloop/incentive-engine/pkg/vault"
)

// snapshotVersion is bumped on incompatible schema changes.
const snapshotVersion = 1

// Snapshot is the engine's complete persisted state. Decimal values
// marshal as quoted strings, so save/load round trips are exact.
type Snapshot struct {
	Version  int                      `json:"version"`
	SavedAt  time.Time                `json:"saved_at"`
	Accounts map[string][]models.Purse `json:"accounts"`
	Pledges  pledge.State             `json:"pledges"`
	Pools    pool.State               `json:"pools"`
	Vaults   vault.State              `json:"vaults"`
}

// Snapshot exports the engine's full state.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Version:  snapshotVersion,
		SavedAt:  time.Now(),
		Accounts: e.ledger.Snapshot(),
		Pledges:  e.pledges.Snapshot(),
		Pools:    e.pools.Snapshot(),
		Vaults:   e.vaults.Snapshot(),
	}
}

// Restore replaces the engine's state with a snapshot.
func (e *Engine) Restore(s Snapshot) error {
	if s.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	if err := e.ledger.Restore(s.Accounts); err != nil {
		return fmt.Errorf("failed to restore ledger: %w", err)
	}
	e.pledges.Restore(s.Pledges)
	e.pools.Restore(s.Pools)
	e.vaults.Restore(s.Vaults)
	return nil
}

// SaveState serializes the engine state and writes it to the persistence
// store. Settlement completes before the updated balances are considered
// durable, so callers save after mutating operations return.
func (e *Engine) SaveState(ctx context.Context) error {
	if e.store == nil {
		return fmt.Errorf("no persistence store configured")
	}
	payload, err := json.Marshal(e.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to marshal engine state: %w", err)
	}
	if err := e.store.Save(ctx, e.cfg.StateKey, payload); err != nil {
		return fmt.Errorf("failed to save engine state: %w", err)
	}
	return nil
}

// LoadState reads the persisted state and restores it.
func (e *Engine) LoadState(ctx context.Context) error {
	if e.store == nil {
		return fmt.Errorf("no persistence store configured")
	}
	payload, err := e.store.Load(ctx, e.cfg.StateKey)
	if err != nil {
		return fmt.Errorf("failed to load engine state: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		return fmt.Errorf("failed to unmarshal engine state: %w", err)
	}
	return e.Restore(s)
}
