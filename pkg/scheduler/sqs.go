package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// maxSQSDelay is the longest delay SQS accepts on a single message.
// Deadlines further out are re-enqueued by the reconciliation sweep.
const maxSQSDelay = 15 * time.Minute

// SQSAPI is the subset of the SQS client the scheduler uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSScheduler implements the Scheduler interface using AWS SQS.
type SQSScheduler struct {
	Client   SQSAPI
	QueueURL string
}

// NewSQSScheduler creates a new SQSScheduler.
func NewSQSScheduler(client SQSAPI, queueURL string) *SQSScheduler {
	return &SQSScheduler{
		Client:   client,
		QueueURL: queueURL,
	}
}

// Make sure we conform to the interface
var _ Scheduler = (*SQSScheduler)(nil)

// ScheduleResolution sends the trigger to an SQS queue, delayed by up to
// the SQS maximum of 15 minutes.
func (s *SQSScheduler) ScheduleResolution(ctx context.Context, trigger ResolutionTrigger, delay time.Duration) error {
	// Marshal the trigger to JSON.
	body, err := json.Marshal(trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal resolution trigger for SQS: %w", err)
	}

	if delay < 0 {
		delay = 0
	}
	if delay > maxSQSDelay {
		delay = maxSQSDelay
	}

	// Send the message to SQS.
	_, err = s.Client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(s.QueueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: int32(delay / time.Second),
	})

	if err != nil {
		return fmt.Errorf("failed to send resolution trigger to SQS: %w", err)
	}

	return nil
}

// NoOpScheduler is a Scheduler that drops triggers. Useful in tests and in
// deployments that rely solely on the reconciliation sweep.
type NoOpScheduler struct{}

// ScheduleResolution does nothing.
func (NoOpScheduler) ScheduleResolution(ctx context.Context, trigger ResolutionTrigger, delay time.Duration) error {
	return nil
}
