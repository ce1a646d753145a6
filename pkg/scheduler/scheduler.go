package scheduler

import (
	"context"
	"time"
)

// ResolutionTrigger is the message delivered when a commitment's deadline
// is due. Triggers may be delivered more than once; resolution is
// idempotent, so duplicates replay the cached outcome.
type ResolutionTrigger struct {
	CommitmentId string    `json:"commitment_id"`
	Deadline     time.Time `json:"deadline"`
}

// Scheduler defines the interface for a component that schedules a
// commitment-resolution trigger for later delivery.
type Scheduler interface {
	// ScheduleResolution enqueues a trigger, delayed by up to delay.
	ScheduleResolution(ctx context.Context, trigger ResolutionTrigger, delay time.Duration) error
}
