package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/stakeloop/incentive-engine/pkg/engine"
	"github.com/stakeloop/incentive-engine/pkg/scheduler"
	dydbstore "github.com/stakeloop/incentive-engine/pkg/storage/dynamodb"
	"github.com/stakeloop/incentive-engine/pkg/wallet"
)

var eng *engine.Engine
var sqsScheduler scheduler.Scheduler
var walletsWired bool

func init() {
	// Load environment variables for local testing.
	godotenv.Load()

	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	sqsQueueURL := os.Getenv("SQS_QUEUE_URL")
	if sqsQueueURL == "" {
		log.Fatal("SQS_QUEUE_URL environment variable not set")
	}
	sqsScheduler = scheduler.NewSQSScheduler(sqs.NewFromConfig(cfg), sqsQueueURL)

	stateTable := os.Getenv("DYNAMODB_STATE_TABLE_NAME")
	if stateTable == "" {
		log.Fatal("DYNAMODB_STATE_TABLE_NAME environment variable not set")
	}
	dbClient := awsdynamodb.NewFromConfig(cfg)
	store := dydbstore.New(dbClient, stateTable)

	deps := engine.Dependencies{Store: store}

	// Wallet reconciliation is optional; the sweep runs without it when no
	// wallet table is configured.
	if walletTable := os.Getenv("DYNAMODB_WALLET_TABLE_NAME"); walletTable != "" {
		deps.Wallets = wallet.NewDynamoDBProvider(dbClient, walletTable)
		walletsWired = true
	}

	eng = engine.New(engine.Config{
		PlatformAccount: os.Getenv("PLATFORM_ACCOUNT_ID"),
		CharityAccount:  os.Getenv("CHARITY_ACCOUNT_ID"),
	}, deps)
}

// HandleRequest is triggered by an EventBridge Schedule. It re-enqueues
// overdue unresolved commitments whose resolution triggers were lost or
// capped by the SQS delay limit, then refreshes ledger balances against the
// external wallet table. Duplicate triggers are harmless because resolution
// is idempotent.
func HandleRequest(ctx context.Context) error {
	log.Println("Starting sweep for overdue commitments...")

	if err := eng.LoadState(ctx); err != nil {
		log.Printf("ERROR: failed to load engine state: %v", err)
		return err
	}

	now := time.Now()
	due := eng.Pledges().DueUnresolved(now)
	if len(due) == 0 {
		log.Println("No overdue commitments found.")
	} else {
		log.Printf("Found %d overdue commitments. Re-enqueuing them...", len(due))
		for _, c := range due {
			trigger := scheduler.ResolutionTrigger{CommitmentId: c.Id, Deadline: c.ResolutionDeadline}
			if err := sqsScheduler.ScheduleResolution(ctx, trigger, 0); err != nil {
				log.Printf("ERROR: failed to re-enqueue commitment %s: %v", c.Id, err)
				// Continue to the next commitment, don't let one failure stop the whole batch.
				continue
			}
			log.Printf("Successfully re-enqueued commitment %s", c.Id)
		}
	}

	if !walletsWired {
		log.Println("Sweep finished.")
		return nil
	}

	reconciled := 0
	for _, accountID := range eng.Ledger().Accounts() {
		if _, err := eng.ReconcileBalance(ctx, accountID); err != nil {
			log.Printf("ERROR: failed to reconcile balance for %s: %v", accountID, err)
			continue
		}
		reconciled++
	}
	log.Printf("Reconciled %d account balances.", reconciled)

	if reconciled > 0 {
		if err := eng.SaveState(ctx); err != nil {
			log.Printf("ERROR: failed to save engine state: %v", err)
			return err
		}
	}

	log.Println("Sweep finished.")
	return nil
}

func main() {
	lambda.Start(HandleRequest)
}
