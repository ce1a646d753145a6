package engine

import (
	"log/slog"

	"github.com/stakeloop/incentive-engine/pkg/models"
)

// Observer receives audit callbacks after engine mutations commit. Causality
// stays explicit: every mutating call also returns its result, the observer
// is for logging and audit trails only.
type Observer interface {
	CommitmentOpened(c models.Commitment)
	CommitmentResolved(o models.Outcome, vr models.VerificationResult)
	PoolSettled(y models.YieldBreakdown)
	PoolPenalized(p models.PenaltyBreakdown)
	VaultUnlocked(e models.UnlockEvent)
}

// NoOpObserver is an Observer that does nothing.
type NoOpObserver struct{}

func (NoOpObserver) CommitmentOpened(models.Commitment)                           {}
func (NoOpObserver) CommitmentResolved(models.Outcome, models.VerificationResult) {}
func (NoOpObserver) PoolSettled(models.YieldBreakdown)                            {}
func (NoOpObserver) PoolPenalized(models.PenaltyBreakdown)                        {}
func (NoOpObserver) VaultUnlocked(models.UnlockEvent)                             {}

// LogObserver writes structured audit logs for every engine event.
type LogObserver struct {
	Logger *slog.Logger
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{Logger: logger}
}

func (o *LogObserver) CommitmentOpened(c models.Commitment) {
	o.Logger.Info("commitment opened",
		slog.String("commitment_id", c.Id),
		slog.String("owner_id", c.OwnerId),
		slog.String("locked", c.LockedAmount.String()),
		slog.Time("deadline", c.ResolutionDeadline),
	)
}

func (o *LogObserver) CommitmentResolved(out models.Outcome, vr models.VerificationResult) {
	o.Logger.Info("commitment resolved",
		slog.String("commitment_id", out.CommitmentId),
		slog.String("outcome", string(out.Kind)),
		slog.String("amount", out.Amount.String()),
		slog.String("verification", string(vr.Status)),
		slog.Float64("score", vr.Score),
	)
}

func (o *LogObserver) PoolSettled(y models.YieldBreakdown) {
	o.Logger.Info("pool settled",
		slog.String("pool_id", y.PoolId),
		slog.String("yield_rate", y.YieldRate.String()),
		slog.String("total_yield", y.TotalYield.String()),
		slog.Int("payouts", len(y.Payouts)),
	)
}

func (o *LogObserver) PoolPenalized(p models.PenaltyBreakdown) {
	o.Logger.Info("pool penalized",
		slog.String("pool_id", p.PoolId),
		slog.String("reason", p.Reason),
		slog.String("total_loss", p.TotalLoss.String()),
	)
}

func (o *LogObserver) VaultUnlocked(e models.UnlockEvent) {
	o.Logger.Info("vault milestone unlocked",
		slog.String("vault_id", e.VaultId),
		slog.Int("milestone", e.MilestoneIndex),
		slog.String("released", e.AmountReleased.String()),
		slog.String("status", string(e.Status)),
	)
}
