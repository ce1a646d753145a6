package wallet

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/shopspring/decimal"
	"github.com/stakeloop/incentive-engine/pkg/models"
)

// DynamoDBAPI is the subset of the DynamoDB client the provider uses.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// record is the wallet table row. Balances are stored as decimal strings so
// no precision is lost in transit.
type record struct {
	AccountId string `dynamodbav:"account_id"`
	Primary   string `dynamodbav:"primary"`
	Secondary string `dynamodbav:"secondary"`
}

// DynamoDBProvider reads authoritative external balances from a DynamoDB
// table keyed by account_id.
type DynamoDBProvider struct {
	Client    DynamoDBAPI
	TableName string
}

// NewDynamoDBProvider creates a new DynamoDBProvider.
func NewDynamoDBProvider(client DynamoDBAPI, tableName string) *DynamoDBProvider {
	return &DynamoDBProvider{
		Client:    client,
		TableName: tableName,
	}
}

// Make sure we conform to the interface
var _ BalanceProvider = (*DynamoDBProvider)(nil)

// GetBalance returns the external balance of an account. An account with no
// wallet record reads as zero.
func (p *DynamoDBProvider) GetBalance(ctx context.Context, accountID string) (models.Amount, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"account_id": accountID})
	if err != nil {
		return models.Amount{}, fmt.Errorf("failed to marshal account key: %w", err)
	}

	result, err := p.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(p.TableName),
		Key:       key,
	})
	if err != nil {
		return models.Amount{}, fmt.Errorf("failed to get wallet balance from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return models.Amount{}, nil
	}

	var rec record
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return models.Amount{}, fmt.Errorf("failed to unmarshal wallet record: %w", err)
	}

	primary, err := decimal.NewFromString(rec.Primary)
	if err != nil {
		return models.Amount{}, fmt.Errorf("wallet record %s has bad primary balance %q: %w", accountID, rec.Primary, err)
	}
	secondary := decimal.Zero
	if rec.Secondary != "" {
		secondary, err = decimal.NewFromString(rec.Secondary)
		if err != nil {
			return models.Amount{}, fmt.Errorf("wallet record %s has bad secondary balance %q: %w", accountID, rec.Secondary, err)
		}
	}

	return models.NewAmount(primary, secondary), nil
}
