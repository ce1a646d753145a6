package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurseKind identifies one of the four sub-balances every account holds.
type PurseKind string

const (
	BASE    PurseKind = "BASE"
	REWARD  PurseKind = "REWARD"
	REMORSE PurseKind = "REMORSE"
	CHARITY PurseKind = "CHARITY"
)

// PurseKinds lists every purse kind in creation order.
var PurseKinds = []PurseKind{BASE, REWARD, REMORSE, CHARITY}

// Purse is a named sub-balance within one account. Base is the only purse
// end users spend from; the other three are accumulation-only targets
// credited by settlement logic.
type Purse struct {
	Kind        PurseKind `json:"kind" dynamodbav:"kind"`
	Balance     Amount    `json:"balance" dynamodbav:"balance"`
	LastUpdated time.Time `json:"last_updated" dynamodbav:"last_updated"`
}

// CommitmentStatus defines the possible states of a pledge commitment.
type CommitmentStatus string

const (
	LOCKED   CommitmentStatus = "LOCKED"
	RESOLVED CommitmentStatus = "RESOLVED"
)

// Commitment represents funds locked against a goal. The ledger deduction
// has already been applied by the time a Commitment exists; resolution
// releases or forfeits the locked amount exactly once.
type Commitment struct {
	Id                 string           `json:"id" dynamodbav:"id"`
	OwnerId            string           `json:"owner_id" dynamodbav:"owner_id"`
	LockedAmount       Amount           `json:"locked_amount" dynamodbav:"locked_amount"`
	CreatedAt          time.Time        `json:"created_at" dynamodbav:"created_at"`
	ResolutionDeadline time.Time        `json:"resolution_deadline" dynamodbav:"resolution_deadline"`
	Status             CommitmentStatus `json:"status" dynamodbav:"status"`
}

// OutcomeKind classifies how a commitment resolved.
type OutcomeKind string

const (
	RELEASED  OutcomeKind = "RELEASED"
	FORFEITED OutcomeKind = "FORFEITED"
)

// Outcome is the result of resolving a commitment. It is cached so that
// duplicate resolution triggers replay the same outcome instead of paying
// or penalizing twice.
type Outcome struct {
	CommitmentId string      `json:"commitment_id"`
	Kind         OutcomeKind `json:"kind"`
	Amount       Amount      `json:"amount"`
	ResolvedAt   time.Time   `json:"resolved_at"`
}

// EvidenceKind identifies the source that produced a piece of evidence.
type EvidenceKind string

const (
	SELF        EvidenceKind = "SELF"
	MEDIA       EvidenceKind = "MEDIA"
	THIRD_PARTY EvidenceKind = "THIRD_PARTY"
	IOT         EvidenceKind = "IOT"
	PEER        EvidenceKind = "PEER"
)

// SelfScore is the user's own report of goal completion.
type SelfScore string

const (
	SelfDone          SelfScore = "done"
	SelfPartiallyDone SelfScore = "partially_done"
	SelfNotDone       SelfScore = "not_done"
)

// Evidence is one immutable piece of verification input. Only the fields
// relevant to the Kind are set; the rest stay at their zero value.
// Evidence lists are append-only.
type Evidence struct {
	Kind        EvidenceKind `json:"kind"`
	SelfScore   SelfScore    `json:"self_score,omitempty"`
	Percentage  int          `json:"percentage,omitempty"`
	MediaCount  int          `json:"media_count,omitempty"`
	Confidence  float64      `json:"confidence,omitempty"`
	DeviceId    string       `json:"device_id,omitempty"`
	PeerRating  int          `json:"peer_rating,omitempty"`
	SubmittedAt time.Time    `json:"submitted_at"`
}

// SelfEvidence builds a self-report evidence entry.
func SelfEvidence(score SelfScore, percentage int, at time.Time) Evidence {
	return Evidence{Kind: SELF, SelfScore: score, Percentage: percentage, SubmittedAt: at}
}

// MediaEvidence builds a media-upload evidence entry.
func MediaEvidence(count int, at time.Time) Evidence {
	return Evidence{Kind: MEDIA, MediaCount: count, SubmittedAt: at}
}

// ThirdPartyEvidence builds a third-party API evidence entry.
func ThirdPartyEvidence(confidence float64, at time.Time) Evidence {
	return Evidence{Kind: THIRD_PARTY, Confidence: confidence, SubmittedAt: at}
}

// IoTEvidence builds a device-reported evidence entry.
func IoTEvidence(deviceId string, confidence float64, at time.Time) Evidence {
	return Evidence{Kind: IOT, DeviceId: deviceId, Confidence: confidence, SubmittedAt: at}
}

// PeerEvidence builds a peer-rating evidence entry (rating 1..5).
func PeerEvidence(rating int, at time.Time) Evidence {
	return Evidence{Kind: PEER, PeerRating: rating, SubmittedAt: at}
}

// VerificationStatus is the status band derived from the confidence score.
type VerificationStatus string

const (
	UNVERIFIED    VerificationStatus = "UNVERIFIED"
	SELF_VERIFIED VerificationStatus = "SELF_VERIFIED"
	VERIFIED      VerificationStatus = "VERIFIED"
)

// VerificationResult is derived deterministically from the full evidence
// list of a commitment. It is never mutated in place; scoring the same
// evidence twice yields bit-identical results.
type VerificationResult struct {
	Status  VerificationStatus `json:"status"`
	Score   float64            `json:"score"`
	Sources []EvidenceKind     `json:"sources"`
	Flags   []string           `json:"flags"`
}

// PoolStatus defines the lifecycle of a liquidity pool.
type PoolStatus string

const (
	ACTIVE    PoolStatus = "ACTIVE"
	COMPLETED PoolStatus = "COMPLETED"
	FAILED    PoolStatus = "FAILED"
)

// Pool pairs a creator's locked stake with investor capital. Shares grow
// monotonically while the pool is active; the pool completes or fails
// exactly once.
type Pool struct {
	Id            string     `json:"id" dynamodbav:"id"`
	CreatorId     string     `json:"creator_id" dynamodbav:"creator_id"`
	CreatorRating float64    `json:"creator_rating" dynamodbav:"creator_rating"`
	Stake         Amount     `json:"stake" dynamodbav:"stake"`
	TotalShares   int64      `json:"total_shares" dynamodbav:"total_shares"`
	Valuation     Amount     `json:"valuation" dynamodbav:"valuation"`
	Status        PoolStatus `json:"status" dynamodbav:"status"`
	InvestorCount int        `json:"investor_count" dynamodbav:"investor_count"`
	TotalInvested Amount     `json:"total_invested" dynamodbav:"total_invested"`
	CreatedAt     time.Time  `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" dynamodbav:"updated_at"`
}

// InvestmentStatus defines the lifecycle of a single pool investment.
type InvestmentStatus string

const (
	INVESTMENT_ACTIVE InvestmentStatus = "ACTIVE"
	WITHDRAWN         InvestmentStatus = "WITHDRAWN"
	LIQUIDATED        InvestmentStatus = "LIQUIDATED"
)

// InvestmentTier is the early-investor bonus band assigned at entry.
type InvestmentTier string

const (
	TierFounder  InvestmentTier = "founder"
	TierEarly    InvestmentTier = "early"
	TierStandard InvestmentTier = "standard"
)

// Investment is one investor's position in a pool.
type Investment struct {
	Id              string           `json:"id" dynamodbav:"id"`
	PoolId          string           `json:"pool_id" dynamodbav:"pool_id"`
	InvestorId      string           `json:"investor_id" dynamodbav:"investor_id"`
	Principal       Amount           `json:"principal" dynamodbav:"principal"`
	Shares          int64            `json:"shares" dynamodbav:"shares"`
	SharePercentage float64          `json:"share_percentage" dynamodbav:"share_percentage"`
	Tier            InvestmentTier   `json:"tier" dynamodbav:"tier"`
	Status          InvestmentStatus `json:"status" dynamodbav:"status"`
	YieldEarned     Amount           `json:"yield_earned" dynamodbav:"yield_earned"`
	CreatedAt       time.Time        `json:"created_at" dynamodbav:"created_at"`
}

// YieldBreakdown records how a successful pool settlement distributed
// value. Monetary fields are in the primary denomination.
type YieldBreakdown struct {
	PoolId         string                     `json:"pool_id"`
	YieldRate      decimal.Decimal            `json:"yield_rate"`
	TotalYield     decimal.Decimal            `json:"total_yield"`
	PlatformFee    decimal.Decimal            `json:"platform_fee"`
	CreatorBonus   decimal.Decimal            `json:"creator_bonus"`
	CharityFromFee decimal.Decimal            `json:"charity_from_fee"`
	InvestorYield  decimal.Decimal            `json:"investor_yield"`
	TierBonusPaid  decimal.Decimal            `json:"tier_bonus_paid"`
	Payouts        map[string]decimal.Decimal `json:"payouts"`
	SettledAt      time.Time                  `json:"settled_at"`
}

// PenaltyBreakdown records how a failed pool settlement routed losses.
// RatingPenalty is returned for the caller's reputation system; this
// engine does not own reputation state.
type PenaltyBreakdown struct {
	PoolId             string    `json:"pool_id"`
	Reason             string    `json:"reason"`
	InvestorLoss       Amount    `json:"investor_loss"`
	UserPenalty        Amount    `json:"user_penalty"`
	TotalLoss          Amount    `json:"total_loss"`
	CharityAmount      Amount    `json:"charity_amount"`
	PoolRedistribution Amount    `json:"pool_redistribution"`
	RatingPenalty      float64   `json:"rating_penalty"`
	SettledAt          time.Time `json:"settled_at"`
}

// VaultStatus defines the lifecycle of a time-locked vault.
type VaultStatus string

const (
	VAULT_LOCKED         VaultStatus = "LOCKED"
	VERIFICATION_PENDING VaultStatus = "VERIFICATION_PENDING"
	PARTIALLY_UNLOCKED   VaultStatus = "PARTIALLY_UNLOCKED"
	UNLOCKED             VaultStatus = "UNLOCKED"
	EXPIRED_FAILED       VaultStatus = "EXPIRED_FAILED"
)

// Milestone is a partial-unlock checkpoint within a vault. A zero
// RequiredConfidence falls back to the vault-level threshold.
type Milestone struct {
	UnlockPercentage   decimal.Decimal `json:"unlock_percentage"`
	RequiredConfidence float64         `json:"required_confidence,omitempty"`
	Verified           bool            `json:"verified"`
}

// Vault is a long-duration lock released only by accumulated verification
// evidence reaching milestone thresholds.
type Vault struct {
	Id                 string      `json:"id" dynamodbav:"id"`
	OwnerId            string      `json:"owner_id" dynamodbav:"owner_id"`
	BeneficiaryId      string      `json:"beneficiary_id" dynamodbav:"beneficiary_id"`
	LockedAmount       Amount      `json:"locked_amount" dynamodbav:"locked_amount"`
	LockDurationYears  int         `json:"lock_duration_years" dynamodbav:"lock_duration_years"`
	LockEnd            time.Time   `json:"lock_end" dynamodbav:"lock_end"`
	RequiredConfidence float64     `json:"required_confidence" dynamodbav:"required_confidence"`
	Milestones         []Milestone `json:"milestones" dynamodbav:"milestones"`
	Status             VaultStatus `json:"status" dynamodbav:"status"`
	CreatedAt          time.Time   `json:"created_at" dynamodbav:"created_at"`
}

// UnlockEvent describes a milestone unlock produced by evidence submission.
type UnlockEvent struct {
	VaultId          string          `json:"vault_id"`
	MilestoneIndex   int             `json:"milestone_index"`
	UnlockPercentage decimal.Decimal `json:"unlock_percentage"`
	AmountReleased   Amount          `json:"amount_released"`
	Score            float64         `json:"score"`
	Status           VaultStatus     `json:"status"`
	OccurredAt       time.Time       `json:"occurred_at"`
}
