// Package pool implements liquidity-pool economics: qualified creators
// pair a locked stake with investor capital, shares are minted
// proportionally, and settlement distributes yield or routes penalties.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stakeloop/incentive-engine/pkg/ledger"
	"github.com/stakeloop/incentive-engine/pkg/models"
)

// ErrPoolNotActive is returned when investing in or settling a pool that
// has already completed or failed.
var ErrPoolNotActive = errors.New("pool not active")

// ErrRatingTooLow is returned when the creator's rating is below the
// qualification threshold.
var ErrRatingTooLow = errors.New("creator rating below threshold")

// ErrAssetNotQualified is returned when the paired collectible lacks
// qualification.
var ErrAssetNotQualified = errors.New("asset not qualified")

// ErrNotFound is returned for unknown pool or investment IDs.
var ErrNotFound = errors.New("pool not found")

// ErrInvestmentTooSmall is returned when an investment would mint zero
// shares.
var ErrInvestmentTooSmall = errors.New("investment too small to mint shares")

// ErrInvestmentNotWithdrawable is returned when a principal withdrawal is
// requested on a pool or investment in the wrong state.
var ErrInvestmentNotWithdrawable = errors.New("investment not withdrawable")

// DefaultRatingThreshold is the minimum creator rating (0-10 scale).
const DefaultRatingThreshold = 7.5

// InitialShares is the fixed share denominator every pool opens with.
const InitialShares int64 = 1_000_000

// Early-investor tier cutoffs: cumulative invested over 2x stake.
var (
	founderCutoff = decimal.NewFromFloat(0.10)
	earlyCutoff   = decimal.NewFromFloat(0.25)

	founderBonusRate = decimal.NewFromFloat(0.15)
	earlyBonusRate   = decimal.NewFromFloat(0.10)
)

// Config carries the pool service's account wiring and thresholds.
type Config struct {
	// RatingThreshold below which pool creation is rejected. Zero selects
	// DefaultRatingThreshold.
	RatingThreshold float64
	// PlatformAccount receives fees and the penalty redistribution
	// reserve, and finances early-investor bonuses.
	PlatformAccount string
	// CharityAccount receives the charity slice of the platform fee.
	CharityAccount string
}

// Service owns pools and investments. All mutations are serialized;
// settlements apply a single atomic ledger batch.
type Service struct {
	ledger  *ledger.Ledger
	applier ledger.Applier
	cfg     Config

	mu          sync.Mutex
	pools       map[string]*models.Pool
	investments map[string]*models.Investment
	byPool      map[string][]string
	yields      map[string]*models.YieldBreakdown
	penalties   map[string]*models.PenaltyBreakdown
}

// New creates the pool service.
func New(l *ledger.Ledger, applier ledger.Applier, cfg Config) *Service {
	if applier == nil {
		applier = l
	}
	if cfg.RatingThreshold == 0 {
		cfg.RatingThreshold = DefaultRatingThreshold
	}
	return &Service{
		ledger:      l,
		applier:     applier,
		cfg:         cfg,
		pools:       make(map[string]*models.Pool),
		investments: make(map[string]*models.Investment),
		byPool:      make(map[string][]string),
		yields:      make(map[string]*models.YieldBreakdown),
		penalties:   make(map[string]*models.PenaltyBreakdown),
	}
}

// Create opens a pool for a qualified creator, locking the initial stake
// from the creator's Base purse.
func (s *Service) Create(creatorID string, creatorRating float64, qualifiedAsset bool, initialStake models.Amount) (*models.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if creatorRating < s.cfg.RatingThreshold {
		return nil, fmt.Errorf("rating %.2f below %.2f: %w", creatorRating, s.cfg.RatingThreshold, ErrRatingTooLow)
	}
	if !qualifiedAsset {
		return nil, ErrAssetNotQualified
	}
	if err := s.ledger.Deduct(creatorID, models.BASE, initialStake); err != nil {
		return nil, fmt.Errorf("failed to lock pool stake: %w", err)
	}

	now := time.Now()
	p := &models.Pool{
		Id:            uuid.New().String(),
		CreatorId:     creatorID,
		CreatorRating: creatorRating,
		Stake:         initialStake,
		TotalShares:   InitialShares,
		Valuation:     initialStake,
		Status:        models.ACTIVE,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.pools[p.Id] = p
	return p, nil
}

// Get returns a copy of the pool.
func (s *Service) Get(poolID string) (*models.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", poolID, ErrNotFound)
	}
	copied := *p
	return &copied, nil
}

// GetInvestment returns a copy of the investment.
func (s *Service) GetInvestment(investmentID string) (*models.Investment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.investments[investmentID]
	if !ok {
		return nil, fmt.Errorf("investment %s: %w", investmentID, ErrNotFound)
	}
	copied := *inv
	return &copied, nil
}

// Invest locks the investor's principal and mints
// totalShares x amount / (valuation + amount) new shares, both factors
// read before any mutation. Pool aggregates and the investment record are
// updated together under the service lock.
func (s *Service) Invest(poolID, investorID string, amount models.Amount) (*models.Investment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", poolID, ErrNotFound)
	}
	if p.Status != models.ACTIVE {
		return nil, fmt.Errorf("pool %s is %s: %w", poolID, p.Status, ErrPoolNotActive)
	}

	// 1. Compute share issuance against pre-investment state.
	denominator := p.Valuation.Primary.Add(amount.Primary)
	if denominator.IsZero() {
		return nil, fmt.Errorf("pool %s share denominator is zero: %w", poolID, ledger.ErrInvariantViolation)
	}
	newShares := decimal.NewFromInt(p.TotalShares).Mul(amount.Primary).Div(denominator).IntPart()
	if newShares <= 0 {
		return nil, fmt.Errorf("amount %s mints no shares: %w", amount, ErrInvestmentTooSmall)
	}

	// 2. Lock the principal.
	if err := s.ledger.Deduct(investorID, models.BASE, amount); err != nil {
		return nil, fmt.Errorf("failed to lock investment principal: %w", err)
	}

	// 3. Update pool aggregates and create the investment atomically with
	// respect to other pool operations (single writer).
	now := time.Now()
	p.TotalShares += newShares
	p.Valuation = p.Valuation.Add(amount)
	p.TotalInvested = p.TotalInvested.Add(amount)
	p.InvestorCount++
	p.UpdatedAt = now

	inv := &models.Investment{
		Id:              uuid.New().String(),
		PoolId:          poolID,
		InvestorId:      investorID,
		Principal:       amount,
		Shares:          newShares,
		SharePercentage: float64(newShares) / float64(p.TotalShares) * 100,
		Tier:            s.tierFor(p),
		Status:          models.INVESTMENT_ACTIVE,
		CreatedAt:       now,
	}
	s.investments[inv.Id] = inv
	s.byPool[poolID] = append(s.byPool[poolID], inv.Id)

	copied := *inv
	return &copied, nil
}

// tierFor assigns the early-investor bonus tier from the cumulative
// invested capital relative to twice the creator's stake. Caller must hold
// s.mu; the pool's TotalInvested already includes the new principal.
func (s *Service) tierFor(p *models.Pool) models.InvestmentTier {
	doubleStake := p.Stake.Primary.Mul(decimal.NewFromInt(2))
	if doubleStake.IsZero() {
		return models.TierStandard
	}
	ratio := p.TotalInvested.Primary.Div(doubleStake)
	switch {
	case ratio.LessThanOrEqual(founderCutoff):
		return models.TierFounder
	case ratio.LessThanOrEqual(earlyCutoff):
		return models.TierEarly
	default:
		return models.TierStandard
	}
}

// Withdraw redeems the principal of an active investment in a completed
// pool, crediting it back to the investor's Base purse. Yield was already
// paid at settlement.
func (s *Service) Withdraw(ctx context.Context, investmentID string) (models.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.investments[investmentID]
	if !ok {
		return models.Amount{}, fmt.Errorf("investment %s: %w", investmentID, ErrNotFound)
	}
	p := s.pools[inv.PoolId]
	if p == nil || p.Status != models.COMPLETED || inv.Status != models.INVESTMENT_ACTIVE {
		return models.Amount{}, fmt.Errorf("investment %s: %w", investmentID, ErrInvestmentNotWithdrawable)
	}

	batch := &ledger.Batch{}
	batch.Credit(inv.InvestorId, models.BASE, inv.Principal, "principal withdrawal "+investmentID)
	if err := s.applier.Apply(ctx, batch); err != nil {
		return models.Amount{}, fmt.Errorf("failed to withdraw principal: %w", err)
	}

	inv.Status = models.WITHDRAWN
	return inv.Principal, nil
}

// activeInvestments returns the pool's active investments in creation
// order. Caller must hold s.mu.
func (s *Service) activeInvestments(poolID string) []*models.Investment {
	ids := s.byPool[poolID]
	out := make([]*models.Investment, 0, len(ids))
	for _, id := range ids {
		if inv := s.investments[id]; inv != nil && inv.Status == models.INVESTMENT_ACTIVE {
			out = append(out, inv)
		}
	}
	return out
}

// State is the pool service's persisted form.
type State struct {
	Pools       []models.Pool                       `json:"pools"`
	Investments []models.Investment                 `json:"investments"`
	ByPool      map[string][]string                 `json:"by_pool"`
	Yields      map[string]*models.YieldBreakdown   `json:"yields"`
	Penalties   map[string]*models.PenaltyBreakdown `json:"penalties"`
}

// Snapshot exports the service state for persistence.
func (s *Service) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		ByPool:    make(map[string][]string, len(s.byPool)),
		Yields:    make(map[string]*models.YieldBreakdown, len(s.yields)),
		Penalties: make(map[string]*models.PenaltyBreakdown, len(s.penalties)),
	}
	for _, p := range s.pools {
		st.Pools = append(st.Pools, *p)
	}
	sort.Slice(st.Pools, func(i, j int) bool { return st.Pools[i].Id < st.Pools[j].Id })
	for _, inv := range s.investments {
		st.Investments = append(st.Investments, *inv)
	}
	sort.Slice(st.Investments, func(i, j int) bool { return st.Investments[i].Id < st.Investments[j].Id })
	for id, ids := range s.byPool {
		copied := make([]string, len(ids))
		copy(copied, ids)
		st.ByPool[id] = copied
	}
	for id, y := range s.yields {
		copied := *y
		st.Yields[id] = &copied
	}
	for id, pb := range s.penalties {
		copied := *pb
		st.Penalties[id] = &copied
	}
	return st
}

// Restore replaces the service state with a snapshot.
func (s *Service) Restore(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools = make(map[string]*models.Pool, len(st.Pools))
	for i := range st.Pools {
		p := st.Pools[i]
		s.pools[p.Id] = &p
	}
	s.investments = make(map[string]*models.Investment, len(st.Investments))
	for i := range st.Investments {
		inv := st.Investments[i]
		s.investments[inv.Id] = &inv
	}
	s.byPool = make(map[string][]string, len(st.ByPool))
	for id, ids := range st.ByPool {
		copied := make([]string, len(ids))
		copy(copied, ids)
		s.byPool[id] = copied
	}
	s.yields = make(map[string]*models.YieldBreakdown, len(st.Yields))
	for id, y := range st.Yields {
		copied := *y
		s.yields[id] = &copied
	}
	s.penalties = make(map[string]*models.PenaltyBreakdown, len(st.Penalties))
	for id, pb := range st.Penalties {
		copied := *pb
		s.penalties[id] = &copied
	}
}
