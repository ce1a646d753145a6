package models

import (
	"github.com/shopspring/decimal"
)

// Amount is a two-denomination value: a primary currency plus an optional
// secondary reward token. A zero Secondary means the amount has no secondary
// component. All arithmetic is fixed-point; float64 never touches an Amount.
type Amount struct {
	Primary   decimal.Decimal `json:"primary" dynamodbav:"primary"`
	Secondary decimal.Decimal `json:"secondary" dynamodbav:"secondary"`
}

// NewAmount builds an Amount from both denominations.
func NewAmount(primary, secondary decimal.Decimal) Amount {
	return Amount{Primary: primary, Secondary: secondary}
}

// PrimaryAmount builds an Amount with only a primary component.
func PrimaryAmount(primary decimal.Decimal) Amount {
	return Amount{Primary: primary}
}

// PrimaryFromInt is a convenience constructor for whole primary units.
func PrimaryFromInt(primary int64) Amount {
	return Amount{Primary: decimal.NewFromInt(primary)}
}

// Add returns a + b componentwise.
func (a Amount) Add(b Amount) Amount {
	return Amount{
		Primary:   a.Primary.Add(b.Primary),
		Secondary: a.Secondary.Add(b.Secondary),
	}
}

// Sub returns a - b componentwise. The result may be negative; callers that
// persist balances must reject negative results.
func (a Amount) Sub(b Amount) Amount {
	return Amount{
		Primary:   a.Primary.Sub(b.Primary),
		Secondary: a.Secondary.Sub(b.Secondary),
	}
}

// Scale multiplies both components by the given factor.
func (a Amount) Scale(factor decimal.Decimal) Amount {
	return Amount{
		Primary:   a.Primary.Mul(factor),
		Secondary: a.Secondary.Mul(factor),
	}
}

// IsNegative reports whether either component is below zero.
func (a Amount) IsNegative() bool {
	return a.Primary.IsNegative() || a.Secondary.IsNegative()
}

// IsZero reports whether both components are zero.
func (a Amount) IsZero() bool {
	return a.Primary.IsZero() && a.Secondary.IsZero()
}

// HasSecondary reports whether the secondary component is non-zero.
func (a Amount) HasSecondary() bool {
	return !a.Secondary.IsZero()
}

// Equal reports componentwise numeric equality.
func (a Amount) Equal(b Amount) bool {
	return a.Primary.Equal(b.Primary) && a.Secondary.Equal(b.Secondary)
}

// String renders the amount for logs and error messages.
func (a Amount) String() string {
	if a.Secondary.IsZero() {
		return a.Primary.String()
	}
	return a.Primary.String() + "/" + a.Secondary.String()
}
