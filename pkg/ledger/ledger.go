package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stakeloop/incentive-engine/pkg/models"
)

// DefaultPenaltyRate is the primary-currency penalty charged per unit of
// secondary token spent from Base.
var DefaultPenaltyRate = decimal.NewFromInt(2)

// Ledger holds per-account purses and is the only component allowed to
// mutate balances. All mutations to a given account are serialized; the
// settlement services read-then-write multiple purses, so the whole ledger
// runs under a single writer lock.
type Ledger struct {
	mu          sync.Mutex
	accounts    map[string]map[models.PurseKind]*models.Purse
	penaltyRate decimal.Decimal
	now         func() time.Time
}

// New creates a Ledger with the given secondary-spend penalty rate. A zero
// rate selects DefaultPenaltyRate.
func New(penaltyRate decimal.Decimal) *Ledger {
	if penaltyRate.IsZero() {
		penaltyRate = DefaultPenaltyRate
	}
	return &Ledger{
		accounts:    make(map[string]map[models.PurseKind]*models.Purse),
		penaltyRate: penaltyRate,
		now:         time.Now,
	}
}

// PenaltyRate returns the configured secondary-spend penalty rate.
func (l *Ledger) PenaltyRate() decimal.Decimal {
	return l.penaltyRate
}

// purses returns the account's purse set, creating the four zero-balance
// purses on first touch. Caller must hold l.mu.
func (l *Ledger) purses(accountID string) map[models.PurseKind]*models.Purse {
	set, ok := l.accounts[accountID]
	if !ok {
		set = make(map[models.PurseKind]*models.Purse, len(models.PurseKinds))
		for _, kind := range models.PurseKinds {
			set[kind] = &models.Purse{Kind: kind, LastUpdated: l.now()}
		}
		l.accounts[accountID] = set
	}
	return set
}

// InitAccount ensures the account's purses exist.
func (l *Ledger) InitAccount(accountID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.purses(accountID)
}

// Balance returns the current balance of one purse. Unknown accounts read
// as zero without being created.
func (l *Ledger) Balance(accountID string, kind models.PurseKind) models.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.accounts[accountID]
	if !ok {
		return models.Amount{}
	}
	p, ok := set[kind]
	if !ok {
		return models.Amount{}
	}
	return p.Balance
}

// Deduct removes an amount from a purse, applying the secondary-spend
// penalty: spending any secondary token additionally requires
// secondary × penaltyRate of primary currency. The deduction either fully
// succeeds or fails with no partial mutation.
func (l *Ledger) Deduct(accountID string, kind models.PurseKind, amount models.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deductLocked(accountID, kind, amount, true)
}

func (l *Ledger) deductLocked(accountID string, kind models.PurseKind, amount models.Amount, withPenalty bool) error {
	if amount.IsNegative() {
		return fmt.Errorf("deduct %s from %s/%s: negative amount: %w", amount, accountID, kind, ErrInvariantViolation)
	}
	p := l.purses(accountID)[kind]

	requiredPrimary := amount.Primary
	if withPenalty && amount.HasSecondary() {
		requiredPrimary = requiredPrimary.Add(amount.Secondary.Mul(l.penaltyRate))
	}
	if p.Balance.Primary.LessThan(requiredPrimary) || p.Balance.Secondary.LessThan(amount.Secondary) {
		return fmt.Errorf("deduct %s from %s/%s: %w", amount, accountID, kind, ErrInsufficientFunds)
	}

	p.Balance.Primary = p.Balance.Primary.Sub(requiredPrimary)
	p.Balance.Secondary = p.Balance.Secondary.Sub(amount.Secondary)
	p.LastUpdated = l.now()
	return nil
}

// Credit adds an amount to a purse. It always succeeds and is reserved for
// settlement logic; direct user actions spend through Deduct only.
func (l *Ledger) Credit(accountID string, kind models.PurseKind, amount models.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.creditLocked(accountID, kind, amount)
}

func (l *Ledger) creditLocked(accountID string, kind models.PurseKind, amount models.Amount) error {
	if amount.IsNegative() {
		return fmt.Errorf("credit %s to %s/%s: negative amount: %w", amount, accountID, kind, ErrInvariantViolation)
	}
	p := l.purses(accountID)[kind]
	p.Balance = p.Balance.Add(amount)
	p.LastUpdated = l.now()
	return nil
}

// Transfer moves an amount between purses: deduct then credit. If the
// deduction fails no credit occurs.
func (l *Ledger) Transfer(fromAccount string, fromKind models.PurseKind, toAccount string, toKind models.PurseKind, amount models.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.deductLocked(fromAccount, fromKind, amount, true); err != nil {
		return err
	}
	return l.creditLocked(toAccount, toKind, amount)
}

// SetBalance overwrites a purse balance. Reserved for the reconciliation
// path, which treats the external wallet balance as authoritative.
func (l *Ledger) SetBalance(accountID string, kind models.PurseKind, balance models.Amount) error {
	if balance.IsNegative() {
		return fmt.Errorf("set balance %s on %s/%s: %w", balance, accountID, kind, ErrInvariantViolation)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.purses(accountID)[kind]
	p.Balance = balance
	p.LastUpdated = l.now()
	return nil
}

// Snapshot returns a copy of every account's purses for persistence.
func (l *Ledger) Snapshot() map[string][]models.Purse {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string][]models.Purse, len(l.accounts))
	for id, set := range l.accounts {
		purses := make([]models.Purse, 0, len(set))
		for _, kind := range models.PurseKinds {
			if p, ok := set[kind]; ok {
				purses = append(purses, *p)
			}
		}
		out[id] = purses
	}
	return out
}

// Restore replaces the ledger's state with a snapshot.
func (l *Ledger) Restore(snapshot map[string][]models.Purse) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	accounts := make(map[string]map[models.PurseKind]*models.Purse, len(snapshot))
	for id, purses := range snapshot {
		set := make(map[models.PurseKind]*models.Purse, len(purses))
		for i := range purses {
			p := purses[i]
			if p.Balance.IsNegative() {
				return fmt.Errorf("restore %s/%s: negative balance: %w", id, p.Kind, ErrInvariantViolation)
			}
			set[p.Kind] = &p
		}
		accounts[id] = set
	}
	l.accounts = accounts
	return nil
}

// Accounts returns the IDs of every account the ledger knows about.
func (l *Ledger) Accounts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.accounts))
	for id := range l.accounts {
		ids = append(ids, id)
	}
	return ids
}
