// Package vault implements long-duration time locks released only by
// accumulated verification evidence reaching milestone thresholds.
package vault

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
	"github.com/stakeloop/incentive-engine/pkg/verification"
)

// ErrNotFound is returned for unknown vault IDs.
var ErrNotFound = errors.New("vault not found")

// ErrDurationOutOfRange is returned when the lock duration is outside 1-10
// years.
var ErrDurationOutOfRange = errors.New("lock duration out of range")

// ErrBelowMinimum is returned when the locked amount is below the minimum.
var ErrBelowMinimum = errors.New("locked amount below minimum")

// ErrInvalidMilestones is returned when milestone percentages are
// non-positive or sum above 100.
var ErrInvalidMilestones = errors.New("invalid milestones")

// ErrVaultClosed is returned when evidence is submitted to a fully
// unlocked or expired vault.
var ErrVaultClosed = errors.New("vault closed")

const (
	minDurationYears = 1
	maxDurationYears = 10
)

// MinimumLock is the smallest primary amount a vault accepts.
var MinimumLock = decimal.NewFromInt(100)

var hundred = decimal.NewFromInt(100)

// Service owns vaults and their evidence logs.
type Service struct {
	ledger  *ledger.Ledger
	applier ledger.Applier

	mu       sync.Mutex
	vaults   map[string]*models.Vault
	evidence map[string][]models.Evidence
}

// New creates the vault service.
func New(l *ledger.Ledger, applier ledger.Applier) *Service {
	if applier == nil {
		applier = l
	}
	return &Service{
		ledger:   l,
		applier:  applier,
		vaults:   make(map[string]*models.Vault),
		evidence: make(map[string][]models.Evidence),
	}
}

// Create locks funds from the owner's Base purse for the given number of
// years. Milestone percentages must be positive and sum to at most 100; a
// milestone without its own confidence threshold uses requiredConfidence.
func (s *Service) Create(ownerID, beneficiaryID string, amount models.Amount, years int, requiredConfidence float64, milestones []models.Milestone, now time.Time) (*models.Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if years < minDurationYears || years > maxDurationYears {
		return nil, fmt.Errorf("%d years: %w", years, ErrDurationOutOfRange)
	}
	if amount.Primary.LessThan(MinimumLock) {
		return nil, fmt.Errorf("%s below %s: %w", amount.Primary, MinimumLock, ErrBelowMinimum)
	}
	if err := validateMilestones(milestones); err != nil {
		return nil, err
	}

	if err := s.ledger.Deduct(ownerID, models.BASE, amount); err != nil {
		return nil, fmt.Errorf("failed to lock vault funds: %w", err)
	}

	ms := make([]models.Milestone, len(milestones))
	copy(ms, milestones)
	v := &models.Vault{
		Id:                 uuid.New().String(),
		OwnerId:            ownerID,
		BeneficiaryId:      beneficiaryID,
		LockedAmount:       amount,
		LockDurationYears:  years,
		LockEnd:            now.AddDate(years, 0, 0),
		RequiredConfidence: requiredConfidence,
		Milestones:         ms,
		Status:             models.VAULT_LOCKED,
		CreatedAt:          now,
	}
	s.vaults[v.Id] = v
	copied := *v
	return &copied, nil
}

func validateMilestones(milestones []models.Milestone) error {
	if len(milestones) == 0 {
		return fmt.Errorf("no milestones: %w", ErrInvalidMilestones)
	}
	total := decimal.Zero
	for i, m := range milestones {
		if !m.UnlockPercentage.IsPositive() {
			return fmt.Errorf("milestone %d percentage %s: %w", i, m.UnlockPercentage, ErrInvalidMilestones)
		}
		if m.Verified {
			return fmt.Errorf("milestone %d pre-verified: %w", i, ErrInvalidMilestones)
		}
		total = total.Add(m.UnlockPercentage)
	}
	if total.GreaterThan(hundred) {
		return fmt.Errorf("milestone percentages sum to %s: %w", total, ErrInvalidMilestones)
	}
	return nil
}

// Get returns a copy of the vault, applying lazy expiry first: there is no
// background timer, so expiry is checked on access.
func (s *Service) Get(ctx context.Context, vaultID string, now time.Time) (*models.Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vaults[vaultID]
	if !ok {
		return nil, fmt.Errorf("vault %s: %w", vaultID, ErrNotFound)
	}
	if err := s.expireLocked(ctx, v, now); err != nil {
		return nil, err
	}
	copied := *v
	copied.Milestones = append([]models.Milestone(nil), v.Milestones...)
	return &copied, nil
}

// SubmitEvidenceAndCheck appends evidence, rescores the full log, and
// verifies the first unverified milestone whose confidence threshold the
// score meets. The milestone's percentage of the locked amount is credited
// to the beneficiary's Base purse immediately. Returns nil when no
// milestone unlocked.
func (s *Service) SubmitEvidenceAndCheck(ctx context.Context, vaultID string, ev models.Evidence, now time.Time) (*models.UnlockEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vaults[vaultID]
	if !ok {
		return nil, fmt.Errorf("vault %s: %w", vaultID, ErrNotFound)
	}
	if err := s.expireLocked(ctx, v, now); err != nil {
		return nil, err
	}
	if v.Status == models.UNLOCKED || v.Status == models.EXPIRED_FAILED {
		return nil, fmt.Errorf("vault %s is %s: %w", vaultID, v.Status, ErrVaultClosed)
	}

	s.evidence[vaultID] = append(s.evidence[vaultID], ev)
	vr := verification.Score(s.evidence[vaultID])

	idx := -1
	for i := range v.Milestones {
		if !v.Milestones[i].Verified {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil
	}

	threshold := v.Milestones[idx].RequiredConfidence
	if threshold == 0 {
		threshold = v.RequiredConfidence
	}
	if vr.Score < threshold {
		if v.Status == models.VAULT_LOCKED {
			v.Status = models.VERIFICATION_PENDING
		}
		return nil, nil
	}

	// Milestone met: release its percentage of the locked amount now;
	// partial unlock is not deferred.
	release := v.LockedAmount.Scale(v.Milestones[idx].UnlockPercentage.Div(hundred))
	batch := &ledger.Batch{}
	batch.Credit(v.BeneficiaryId, models.BASE, release, "vault milestone unlock "+vaultID)
	if err := s.applier.Apply(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to release vault funds: %w", err)
	}

	v.Milestones[idx].Verified = true
	if allVerified(v.Milestones) {
		v.Status = models.UNLOCKED
	} else {
		v.Status = models.PARTIALLY_UNLOCKED
	}

	return &models.UnlockEvent{
		VaultId:          vaultID,
		MilestoneIndex:   idx,
		UnlockPercentage: v.Milestones[idx].UnlockPercentage,
		AmountReleased:   release,
		Score:            vr.Score,
		Status:           v.Status,
		OccurredAt:       now,
	}, nil
}

// expireLocked forfeits the remaining locked funds to the owner's Charity
// purse when the lock window has passed with unverified milestones.
// Caller must hold s.mu.
func (s *Service) expireLocked(ctx context.Context, v *models.Vault, now time.Time) error {
	if v.Status == models.UNLOCKED || v.Status == models.EXPIRED_FAILED {
		return nil
	}
	if !now.After(v.LockEnd) || allVerified(v.Milestones) {
		return nil
	}

	unlocked := decimal.Zero
	for _, m := range v.Milestones {
		if m.Verified {
			unlocked = unlocked.Add(m.UnlockPercentage)
		}
	}
	remaining := v.LockedAmount.Scale(hundred.Sub(unlocked).Div(hundred))
	if !remaining.IsZero() {
		batch := &ledger.Batch{}
		batch.Credit(v.OwnerId, models.CHARITY, remaining, "vault expiry forfeit "+v.Id)
		if err := s.applier.Apply(ctx, batch); err != nil {
			return fmt.Errorf("failed to forfeit expired vault %s: %w", v.Id, err)
		}
	}
	v.Status = models.EXPIRED_FAILED
	return nil
}

func allVerified(milestones []models.Milestone) bool {
	for _, m := range milestones {
		if !m.Verified {
			return false
		}
	}
	return true
}

// State is the vault service's persisted form.
type State struct {
	Vaults   []models.Vault               `json:"vaults"`
	Evidence map[string][]models.Evidence `json:"evidence"`
}

// Snapshot exports the service state for persistence.
func (s *Service) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{Evidence: make(map[string][]models.Evidence, len(s.evidence))}
	for _, v := range s.vaults {
		copied := *v
		copied.Milestones = append([]models.Milestone(nil), v.Milestones...)
		st.Vaults = append(st.Vaults, copied)
	}
	sort.Slice(st.Vaults, func(i, j int) bool { return st.Vaults[i].Id < st.Vaults[j].Id })
	for id, log := range s.evidence {
		copied := make([]models.Evidence, len(log))
		copy(copied, log)
		st.Evidence[id] = copied
	}
	return st
}

// Restore replaces the service state with a snapshot.
func (s *Service) Restore(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vaults = make(map[string]*models.Vault, len(st.Vaults))
	for i := range st.Vaults {
		v := st.Vaults[i]
		s.vaults[v.Id] = &v
	}
	s.evidence = make(map[string][]models.Evidence, len(st.Evidence))
	for id, log := range st.Evidence {
		copied := make([]models.Evidence, len(log))
		copy(copied, log)
		s.evidence[id] = copied
	}
}
