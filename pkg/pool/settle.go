package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stakeloop/incentive-engine/pkg/ledger"
	"github.com/stakeloop/incentive-engine/pkg/models"
)

// Yield formula constants.
var (
	platformFeeRate  = decimal.NewFromFloat(0.02)
	creatorBonusRate = decimal.NewFromFloat(0.10)
	charityFeeSlice  = decimal.NewFromFloat(0.01)

	redistributionRate = decimal.NewFromFloat(0.10)
	userPenaltyFactor  = decimal.NewFromFloat(1.5)

	hundred = decimal.NewFromInt(100)
)

// yieldSliceScale truncates each investor's yield slice; distribution dust
// stays in the undistributed remainder.
const yieldSliceScale = 8

// multiplierScale quantizes the float inputs before they meet money.
const multiplierScale = 4

// SettleSuccess completes a pool and distributes yield. It is allowed only
// once: settling an already-completed pool replays the stored breakdown.
//
// The stacked multipliers are deliberately unbounded above; a fully
// verified, maximally consistent pool pays out more than 200%.
func (s *Service) SettleSuccess(ctx context.Context, poolID string, vr models.VerificationResult, consistencyDays int, communityRating float64, supportActionCount int) (*models.YieldBreakdown, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", poolID, ErrNotFound)
	}
	if p.Status == models.COMPLETED {
		copied := *s.yields[poolID]
		return &copied, nil
	}
	if p.Status != models.ACTIVE {
		return nil, fmt.Errorf("pool %s is %s: %w", poolID, p.Status, ErrPoolNotActive)
	}

	// 1. Yield rate from the multiplier stack, quantized to decimal before
	// touching amounts.
	yieldRate := yieldRateFor(vr.Status, consistencyDays, communityRating, supportActionCount)
	totalYield := p.Valuation.Primary.Mul(yieldRate).Div(hundred)
	platformFee := totalYield.Mul(platformFeeRate)
	creatorBonus := totalYield.Mul(creatorBonusRate)
	investorYield := totalYield.Sub(platformFee).Sub(creatorBonus)
	charityFromFee := platformFee.Mul(charityFeeSlice)

	// 2. Per-investment slices by share ownership, truncated; dust stays
	// undistributed so value is never created beyond the formula outputs.
	active := s.activeInvestments(poolID)
	totalShares := decimal.NewFromInt(p.TotalShares)
	payouts := make(map[string]decimal.Decimal, len(active))
	bonuses := make(map[string]decimal.Decimal, len(active))
	totalBonus := decimal.Zero
	for _, inv := range active {
		slice := investorYield.Mul(decimal.NewFromInt(inv.Shares)).Div(totalShares).Truncate(yieldSliceScale)
		payouts[inv.Id] = slice
		var bonus decimal.Decimal
		switch inv.Tier {
		case models.TierFounder:
			bonus = slice.Mul(founderBonusRate).Truncate(yieldSliceScale)
		case models.TierEarly:
			bonus = slice.Mul(earlyBonusRate).Truncate(yieldSliceScale)
		}
		bonuses[inv.Id] = bonus
		totalBonus = totalBonus.Add(bonus)
	}

	// Tier bonuses are financed from the platform reserve, never from
	// other investors. An exhausted reserve skips them rather than failing
	// the settlement.
	payBonuses := totalBonus.IsPositive() &&
		!s.ledger.Balance(s.cfg.PlatformAccount, models.BASE).Primary.LessThan(totalBonus)
	if !payBonuses {
		totalBonus = decimal.Zero
	}

	// 3. One atomic batch: yield credits, fee split, stake release, bonus
	// transfer.
	batch := &ledger.Batch{}
	for _, inv := range active {
		payout := payouts[inv.Id]
		if payBonuses {
			payout = payout.Add(bonuses[inv.Id])
		}
		if payout.IsPositive() {
			batch.Credit(inv.InvestorId, models.BASE, models.Amount{Primary: payout}, "pool yield "+poolID)
		}
	}
	if payBonuses {
		batch.Debit(s.cfg.PlatformAccount, models.BASE, models.Amount{Primary: totalBonus}, "tier bonus "+poolID)
	}
	if creatorBonus.IsPositive() {
		batch.Credit(p.CreatorId, models.BASE, models.Amount{Primary: creatorBonus}, "creator bonus "+poolID)
	}
	if platformFee.IsPositive() {
		batch.Credit(s.cfg.PlatformAccount, models.BASE, models.Amount{Primary: platformFee.Sub(charityFromFee)}, "platform fee "+poolID)
		batch.Credit(s.cfg.CharityAccount, models.CHARITY, models.Amount{Primary: charityFromFee}, "charity fee slice "+poolID)
	}
	// The creator's stake leaves escrow on success.
	if !p.Stake.IsZero() {
		batch.Credit(p.CreatorId, models.BASE, p.Stake, "stake release "+poolID)
	}

	if err := s.applier.Apply(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to settle pool %s: %w", poolID, err)
	}

	// 4. Record results. No further investment is accepted.
	now := time.Now()
	for _, inv := range active {
		earned := payouts[inv.Id]
		if payBonuses {
			earned = earned.Add(bonuses[inv.Id])
		}
		inv.YieldEarned = inv.YieldEarned.Add(models.Amount{Primary: earned})
	}
	p.Status = models.COMPLETED
	p.UpdatedAt = now

	breakdown := &models.YieldBreakdown{
		PoolId:         poolID,
		YieldRate:      yieldRate,
		TotalYield:     totalYield,
		PlatformFee:    platformFee,
		CreatorBonus:   creatorBonus,
		CharityFromFee: charityFromFee,
		InvestorYield:  investorYield,
		TierBonusPaid:  totalBonus,
		Payouts:        payouts,
		SettledAt:      now,
	}
	s.yields[poolID] = breakdown
	copied := *breakdown
	return &copied, nil
}

// yieldRateFor computes the percentage yield rate from the verification
// status and the three capped multipliers.
func yieldRateFor(status models.VerificationStatus, consistencyDays int, communityRating float64, supportActionCount int) decimal.Decimal {
	var base decimal.Decimal
	switch status {
	case models.VERIFIED:
		base = decimal.NewFromInt(1)
	case models.SELF_VERIFIED:
		base = decimal.NewFromFloat(0.5)
	default:
		return decimal.Zero
	}

	consistency := capped(
		decimal.NewFromInt(1).Add(decimal.NewFromInt(int64(consistencyDays)).Div(decimal.NewFromInt(30)).Mul(decimal.NewFromFloat(0.5))),
		decimal.NewFromFloat(1.5),
	)
	rating := capped(
		decimal.NewFromInt(1).Add(decimal.NewFromFloat(communityRating).Round(multiplierScale).Div(decimal.NewFromInt(10)).Mul(decimal.NewFromFloat(0.3))),
		decimal.NewFromFloat(1.3),
	)
	support := capped(
		decimal.NewFromInt(1).Add(decimal.NewFromInt(int64(supportActionCount)).Div(decimal.NewFromInt(10)).Mul(decimal.NewFromFloat(0.2))),
		decimal.NewFromFloat(1.2),
	)

	return base.Mul(hundred).Mul(consistency).Mul(rating).Mul(support).Round(multiplierScale)
}

func capped(v, cap decimal.Decimal) decimal.Decimal {
	if v.GreaterThan(cap) {
		return cap
	}
	return v
}

// SettlePenalty fails a pool and routes losses. It is allowed only once:
// settling an already-failed pool replays the stored breakdown.
//
// Every active investment is liquidated and loses its principal; the
// creator is penalized 1.5x the stake (the stake already in escrow plus
// 0.5x from the Base purse, capped at the available balance). 10% of the
// routed loss goes to the platform redistribution reserve and the rest to
// the creator's Charity purse.
func (s *Service) SettlePenalty(ctx context.Context, poolID, reason string, ratingPenalty float64) (*models.PenaltyBreakdown, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", poolID, ErrNotFound)
	}
	if p.Status == models.FAILED {
		copied := *s.penalties[poolID]
		return &copied, nil
	}
	if p.Status != models.ACTIVE {
		return nil, fmt.Errorf("pool %s is %s: %w", poolID, p.Status, ErrPoolNotActive)
	}

	investorLoss := p.TotalInvested
	userPenalty := p.Stake.Scale(userPenaltyFactor)
	totalLoss := investorLoss.Add(userPenalty)

	// The stake and invested principal are already in escrow; the extra
	// 0.5x stake comes out of the creator's Base purse, capped at what the
	// purse holds.
	extra := userPenalty.Sub(p.Stake)
	available := s.ledger.Balance(p.CreatorId, models.BASE)
	extraDebit := models.Amount{
		Primary:   decimal.Min(extra.Primary, available.Primary),
		Secondary: decimal.Min(extra.Secondary, available.Secondary),
	}

	routed := p.Stake.Add(p.TotalInvested).Add(extraDebit)
	redistribution := routed.Scale(redistributionRate)
	charity := routed.Sub(redistribution)

	batch := &ledger.Batch{}
	if !extraDebit.IsZero() {
		batch.Debit(p.CreatorId, models.BASE, extraDebit, "creator penalty "+poolID)
	}
	if !charity.IsZero() {
		batch.Credit(p.CreatorId, models.CHARITY, charity, "pool penalty charity "+poolID)
	}
	if !redistribution.IsZero() {
		batch.Credit(s.cfg.PlatformAccount, models.BASE, redistribution, "pool redistribution "+poolID)
	}

	if err := s.applier.Apply(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to penalize pool %s: %w", poolID, err)
	}

	now := time.Now()
	for _, inv := range s.activeInvestments(poolID) {
		inv.Status = models.LIQUIDATED
	}
	p.Status = models.FAILED
	p.UpdatedAt = now

	breakdown := &models.PenaltyBreakdown{
		PoolId:             poolID,
		Reason:             reason,
		InvestorLoss:       investorLoss,
		UserPenalty:        userPenalty,
		TotalLoss:          totalLoss,
		CharityAmount:      charity,
		PoolRedistribution: redistribution,
		RatingPenalty:      ratingPenalty,
		SettledAt:          now,
	}
	s.penalties[poolID] = breakdown
	copied := *breakdown
	return &copied, nil
}
