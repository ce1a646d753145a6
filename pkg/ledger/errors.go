package ledger

import "errors"

// ErrInsufficientFunds is returned when a purse cannot cover a deduction,
// including the secondary-spend penalty.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrInvariantViolation indicates a programming or data-corruption bug
// (negative amounts, unknown purses, zero denominators). The current
// operation is aborted without partial mutation.
var ErrInvariantViolation = errors.New("ledger invariant violation")
