// Package dynamodb implements the PersistenceStore contract on a single
// DynamoDB table keyed by state_key.
package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stakeloop/incentive-engine/pkg/storage"
)

// DynamoDBAPI is the subset of the DynamoDB client the store uses.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// record is the table row holding one serialized state payload.
type record struct {
	StateKey  string    `dynamodbav:"state_key"`
	Payload   []byte    `dynamodbav:"payload"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

// Store implements storage.PersistenceStore using AWS DynamoDB.
type Store struct {
	Client    DynamoDBAPI
	TableName string
}

// New creates a new Store.
func New(client DynamoDBAPI, tableName string) *Store {
	return &Store{
		Client:    client,
		TableName: tableName,
	}
}

// Make sure we conform to the interface
var _ storage.PersistenceStore = (*Store)(nil)

// Load retrieves the payload stored under key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	av, err := attributevalue.MarshalMap(map[string]string{"state_key": key})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state key: %w", err)
	}

	input := &dynamodb.GetItemInput{
		TableName: aws.String(s.TableName),
		Key:       av,
	}

	result, err := s.Client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get state from DynamoDB: %w", err)
	}

	if result.Item == nil {
		return nil, fmt.Errorf("state key %s: %w", key, storage.ErrNotFound)
	}

	var rec record
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state record: %w", err)
	}

	return rec.Payload, nil
}

// Save stores the payload under key, replacing any previous value.
func (s *Store) Save(ctx context.Context, key string, payload []byte) error {
	rec := record{
		StateKey:  key,
		Payload:   payload,
		UpdatedAt: time.Now(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal state record: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.TableName),
		Item:      item,
	}

	if _, err := s.Client.PutItem(ctx, input); err != nil {
		return fmt.Errorf("failed to put state to DynamoDB: %w", err)
	}

	return nil
}
