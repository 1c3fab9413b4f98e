// Package transactions records captured gateway payments, one per gateway payment id.
package transactions

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-idempotent-checkout/internal/aws"
	"github.com/imrishuroy/go-idempotent-checkout/internal/orders"
)

// Transaction statuses
const (
	StatusPending = "Pending"
	StatusSuccess = "Success"
	StatusFailed  = "Failed"
)

// Transaction is an immutable record of one successful capture.
type Transaction struct {
	PaymentID      string        `dynamodbav:"payment_id" json:"paymentId"` // PK, gateway payment id
	OrderID        string        `dynamodbav:"order_id" json:"orderId"`
	UserID         string        `dynamodbav:"user_id" json:"userId"`
	Items          []orders.Item `dynamodbav:"items" json:"items"`
	Amount         float64       `dynamodbav:"amount" json:"amount"`
	Currency       string        `dynamodbav:"currency,omitempty" json:"currency,omitempty"`
	PaymentMethod  string        `dynamodbav:"payment_method" json:"paymentMethod"`
	Status         string        `dynamodbav:"status" json:"status"`
	GatewayOrderID string        `dynamodbav:"gateway_order_id" json:"gatewayOrderId"`
	CreatedAt      time.Time     `dynamodbav:"created_at" json:"createdAt"`
}

// Store encapsulates operations on the transactions table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore returns a Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// PutItem returns a transaction item that records tx at most once per payment id.
func (s *Store) PutItem(tx Transaction) (types.TransactWriteItem, error) {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = s.nowFunc().UTC()
	}
	item, err := attributevalue.MarshalMap(tx)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal transaction: %w", err)
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: awsString("attribute_not_exists(payment_id)"),
		},
	}, nil
}

// Get fetches a transaction by gateway payment id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, paymentID string) (*Transaction, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"payment_id": &types.AttributeValueMemberS{Value: paymentID},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var tx Transaction
	if err := attributevalue.UnmarshalMap(out.Item, &tx); err != nil {
		return nil, fmt.Errorf("unmarshal transaction: %w", err)
	}
	return &tx, nil
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
