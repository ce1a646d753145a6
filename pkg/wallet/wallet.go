// Package wallet defines the external wallet-balance collaborator and the
// reconciliation policy between local ledger balances and the on-chain
// balance.
package wallet

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stakeloop/incentive-engine/pkg/models"
)

// BalanceProvider reports the authoritative external balance for an
// account. The engine never constructs transactions itself; it only reads.
type BalanceProvider interface {
	// GetBalance returns the current external balance of an account.
	GetBalance(ctx context.Context, accountID string) (models.Amount, error)
}

// Reconcile merges a locally tracked balance with a freshly fetched remote
// balance. The remote balance is authoritative, but in-flight local
// deductions not yet reflected on-chain must not be silently overwritten:
//   - remote below local: the lower (remote) value wins,
//   - local zero: remote wins,
//   - otherwise: local wins.
//
// The rule is applied per denomination.
func Reconcile(local, remote models.Amount) models.Amount {
	return models.Amount{
		Primary:   reconcileComponent(local.Primary, remote.Primary),
		Secondary: reconcileComponent(local.Secondary, remote.Secondary),
	}
}

func reconcileComponent(local, remote decimal.Decimal) decimal.Decimal {
	if remote.LessThan(local) {
		return remote
	}
	if local.IsZero() {
		return remote
	}
	return local
}
