package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
	"github.com/stakeloop/incentive-engine/pkg/engine"
	"github.com/stakeloop/incentive-engine/pkg/scheduler"
	dydbstore "github.com/stakeloop/incentive-engine/pkg/storage/dynamodb"
)

var eng *engine.Engine

func init() {
	// Load environment variables from .env file (useful for local testing).
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize dependencies once.
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	stateTable := os.Getenv("DYNAMODB_STATE_TABLE_NAME")
	if stateTable == "" {
		log.Fatal("DYNAMODB_STATE_TABLE_NAME environment variable not set")
	}

	dbClient := awsdynamodb.NewFromConfig(cfg)
	store := dydbstore.New(dbClient, stateTable)

	// The resolver doesn't schedule new triggers, so no scheduler is wired.
	eng = engine.New(engine.Config{
		PlatformAccount: os.Getenv("PLATFORM_ACCOUNT_ID"),
		CharityAccount:  os.Getenv("CHARITY_ACCOUNT_ID"),
	}, engine.Dependencies{Store: store})
}

// HandleRequest processes SQS resolution triggers. Resolution is
// idempotent, so redelivered triggers replay the stored outcome instead of
// double-paying.
func HandleRequest(ctx context.Context, sqsEvent events.SQSEvent) error {
	if err := eng.LoadState(ctx); err != nil {
		log.Printf("ERROR: failed to load engine state: %v", err)
		return err
	}

	now := time.Now()
	for _, message := range sqsEvent.Records {
		log.Printf("Processing message %s", message.MessageId)

		var trigger scheduler.ResolutionTrigger
		if err := json.Unmarshal([]byte(message.Body), &trigger); err != nil {
			log.Printf("ERROR: failed to unmarshal trigger from SQS message %s: %v", message.MessageId, err)
			// Returning an error will cause SQS to retry the message.
			return err
		}

		// SQS delays cap at 15 minutes; a trigger may arrive before the
		// actual deadline. Leave early triggers for the sweep to re-enqueue.
		if now.Before(trigger.Deadline) {
			log.Printf("Trigger for commitment %s is early (deadline %s), skipping", trigger.CommitmentId, trigger.Deadline)
			continue
		}

		outcome, err := eng.ResolveCommitment(ctx, trigger.CommitmentId, now)
		if err != nil {
			log.Printf("ERROR: failed to resolve commitment %s: %v", trigger.CommitmentId, err)
			return err
		}

		log.Printf("Resolved commitment %s: %s %s", trigger.CommitmentId, outcome.Kind, outcome.Amount)
	}

	if err := eng.SaveState(ctx); err != nil {
		log.Printf("ERROR: failed to save engine state: %v", err)
		return err
	}

	return nil
}

func main() {
	lambda.Start(HandleRequest)
}
