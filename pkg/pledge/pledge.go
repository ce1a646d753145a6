// Package pledge manages commitments: funds locked against a goal,
// released or forfeited when the goal resolves.
package pledge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stakeloop/incentive-engine/pkg/ledger"
	"github.com/stakeloop/incentive-engine/pkg/models"
	"github.com/stakeloop/incentive-engine/pkg/scheduler"
)

// ErrNotFound is returned when a commitment ID is unknown.
var ErrNotFound = errors.New("commitment not found")

// ErrTooEarly is returned when resolution is requested before the deadline
// and verification has not reached Verified.
var ErrTooEarly = errors.New("commitment deadline not reached")

// Service owns commitments and their evidence logs. All mutations are
// serialized; ledger settlements go through atomic batches.
type Service struct {
	ledger  *ledger.Ledger
	applier ledger.Applier
	sched   scheduler.Scheduler

	mu          sync.Mutex
	commitments map[string]*models.Commitment
	evidence    map[string][]models.Evidence
	outcomes    map[string]models.Outcome
}

// New creates the pledge service. sched may be nil when no delayed
// resolution triggers are wanted.
func New(l *ledger.Ledger, applier ledger.Applier, sched scheduler.Scheduler) *Service {
	if applier == nil {
		applier = l
	}
	return &Service{
		ledger:      l,
		applier:     applier,
		sched:       sched,
		commitments: make(map[string]*models.Commitment),
		evidence:    make(map[string][]models.Evidence),
		outcomes:    make(map[string]models.Outcome),
	}
}

// Open locks funds from the owner's Base purse and creates a commitment.
// Fails with ledger.ErrInsufficientFunds if the owner cannot cover the
// amount plus any secondary-spend penalty.
func (s *Service) Open(ctx context.Context, ownerID string, amount models.Amount, deadline time.Time) (*models.Commitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 1. Reserve the funds. The lock is a real deduction; resolution
	// credits it back or forfeits it.
	if err := s.ledger.Deduct(ownerID, models.BASE, amount); err != nil {
		return nil, fmt.Errorf("failed to lock pledge funds: %w", err)
	}

	// 2. Create the commitment record.
	now := time.Now()
	c := &models.Commitment{
		Id:                 uuid.New().String(),
		OwnerId:            ownerID,
		LockedAmount:       amount,
		CreatedAt:          now,
		ResolutionDeadline: deadline,
		Status:             models.LOCKED,
	}
	s.commitments[c.Id] = c

	// 3. Enqueue a resolution trigger for the deadline.
	if s.sched != nil {
		trigger := scheduler.ResolutionTrigger{CommitmentId: c.Id, Deadline: deadline}
		if err := s.sched.ScheduleResolution(ctx, trigger, time.Until(deadline)); err != nil {
			// The commitment stands; the reconciliation sweep re-enqueues
			// overdue commitments, so a lost trigger delays resolution but
			// never loses funds.
			return c, fmt.Errorf("commitment %s created but trigger not enqueued: %w", c.Id, err)
		}
	}

	return c, nil
}

// Get returns a copy of the commitment.
func (s *Service) Get(commitmentID string) (*models.Commitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commitments[commitmentID]
	if !ok {
		return nil, fmt.Errorf("commitment %s: %w", commitmentID, ErrNotFound)
	}
	copied := *c
	return &copied, nil
}

// SubmitEvidence appends one piece of evidence to the commitment's
// append-only log.
func (s *Service) SubmitEvidence(commitmentID string, ev models.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.commitments[commitmentID]; !ok {
		return fmt.Errorf("commitment %s: %w", commitmentID, ErrNotFound)
	}
	s.evidence[commitmentID] = append(s.evidence[commitmentID], ev)
	return nil
}

// Evidence returns a copy of the commitment's evidence log.
func (s *Service) Evidence(commitmentID string) ([]models.Evidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.commitments[commitmentID]; !ok {
		return nil, fmt.Errorf("commitment %s: %w", commitmentID, ErrNotFound)
	}
	log := s.evidence[commitmentID]
	out := make([]models.Evidence, len(log))
	copy(out, log)
	return out, nil
}

// Resolve settles a commitment exactly once. Resolving an already-resolved
// commitment is a no-op returning the stored outcome, so duplicate
// delivery of resolution triggers is safe.
//
// Verified or SelfVerified at/after the deadline releases the full locked
// amount back to the owner's Base purse. Unverified at/after the deadline
// forfeits it to the owner's Charity purse. Before the deadline resolution
// is rejected with ErrTooEarly unless verification already reached
// Verified.
func (s *Service) Resolve(ctx context.Context, commitmentID string, vr models.VerificationResult, now time.Time) (models.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commitments[commitmentID]
	if !ok {
		return models.Outcome{}, fmt.Errorf("commitment %s: %w", commitmentID, ErrNotFound)
	}
	if c.Status == models.RESOLVED {
		return s.outcomes[commitmentID], nil
	}
	if now.Before(c.ResolutionDeadline) && vr.Status != models.VERIFIED {
		return models.Outcome{}, fmt.Errorf("commitment %s resolves at %s: %w", commitmentID, c.ResolutionDeadline.Format(time.RFC3339), ErrTooEarly)
	}

	outcome := models.Outcome{
		CommitmentId: commitmentID,
		Amount:       c.LockedAmount,
		ResolvedAt:   now,
	}
	batch := &ledger.Batch{}
	switch vr.Status {
	case models.VERIFIED, models.SELF_VERIFIED:
		outcome.Kind = models.RELEASED
		batch.Credit(c.OwnerId, models.BASE, c.LockedAmount, "pledge release "+commitmentID)
	default:
		outcome.Kind = models.FORFEITED
		batch.Credit(c.OwnerId, models.CHARITY, c.LockedAmount, "pledge forfeit "+commitmentID)
	}

	if err := s.applier.Apply(ctx, batch); err != nil {
		return models.Outcome{}, fmt.Errorf("failed to settle commitment %s: %w", commitmentID, err)
	}

	c.Status = models.RESOLVED
	s.outcomes[commitmentID] = outcome
	return outcome, nil
}

// DueUnresolved returns commitments whose deadline has passed and that are
// still locked, oldest deadline first. The reconciliation sweep re-enqueues
// these.
func (s *Service) DueUnresolved(now time.Time) []models.Commitment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []models.Commitment
	for _, c := range s.commitments {
		if c.Status == models.LOCKED && !now.Before(c.ResolutionDeadline) {
			due = append(due, *c)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ResolutionDeadline.Before(due[j].ResolutionDeadline) })
	return due
}

// State is the pledge service's persisted form.
type State struct {
	Commitments []models.Commitment          `json:"commitments"`
	Evidence    map[string][]models.Evidence `json:"evidence"`
	Outcomes    map[string]models.Outcome    `json:"outcomes"`
}

// Snapshot exports the service state for persistence.
func (s *Service) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Evidence: make(map[string][]models.Evidence, len(s.evidence)),
		Outcomes: make(map[string]models.Outcome, len(s.outcomes)),
	}
	for _, c := range s.commitments {
		st.Commitments = append(st.Commitments, *c)
	}
	sort.Slice(st.Commitments, func(i, j int) bool { return st.Commitments[i].Id < st.Commitments[j].Id })
	for id, log := range s.evidence {
		copied := make([]models.Evidence, len(log))
		copy(copied, log)
		st.Evidence[id] = copied
	}
	for id, o := range s.outcomes {
		st.Outcomes[id] = o
	}
	return st
}

// Restore replaces the service state with a snapshot.
func (s *Service) Restore(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitments = make(map[string]*models.Commitment, len(st.Commitments))
	for i := range st.Commitments {
		c := st.Commitments[i]
		s.commitments[c.Id] = &c
	}
	s.evidence = make(map[string][]models.Evidence, len(st.Evidence))
	for id, log := range st.Evidence {
		copied := make([]models.Evidence, len(log))
		copy(copied, log)
		s.evidence[id] = copied
	}
	s.outcomes = make(map[string]models.Outcome, len(st.Outcomes))
	for id, o := range st.Outcomes {
		s.outcomes[id] = o
	}
}
