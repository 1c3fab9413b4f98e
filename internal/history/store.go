// Package history archives delivered and cancelled orders for a fixed retention
// window. It is a recency view, not an audit log.
package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-idempotent-checkout/internal/aws"
	"github.com/imrishuroy/go-idempotent-checkout/internal/orders"
)

// DefaultRetention is how long a history record is kept.
const DefaultRetention = 14 * 24 * time.Hour

// Record is an immutable snapshot of a terminal order.
type Record struct {
	OriginalOrderID string         `dynamodbav:"original_order_id" json:"originalOrderId"` // PK
	UserID          string         `dynamodbav:"user_id" json:"userId"`                    // GSI user_id-index
	Items           []orders.Item  `dynamodbav:"items" json:"items"`
	TotalAmount     float64        `dynamodbav:"total_amount" json:"totalAmount"`
	Currency        string         `dynamodbav:"currency,omitempty" json:"currency,omitempty"`
	ShippingAddress orders.Address `dynamodbav:"shipping_address" json:"shippingAddress"`
	OrderStatus     string         `dynamodbav:"order_status" json:"orderStatus"`
	PaymentStatus   string         `dynamodbav:"payment_status" json:"paymentStatus"`
	PaymentMethod   string         `dynamodbav:"payment_method" json:"paymentMethod"`
	CouponCode      string         `dynamodbav:"coupon_code,omitempty" json:"couponCode,omitempty"`
	TransactionID   string         `dynamodbav:"transaction_id,omitempty" json:"transactionId,omitempty"`
	OrderedAt       time.Time      `dynamodbav:"ordered_at" json:"orderedAt"`
	CompletedAt     time.Time      `dynamodbav:"completed_at" json:"completedAt"`
	ExpiresAt       int64          `dynamodbav:"expires_at" json:"-"` // TTL epoch seconds
}

// Store encapsulates operations on the order history table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	retention time.Duration
	nowFunc   func() time.Time
}

// NewStore returns a Store. A zero retention uses DefaultRetention.
func NewStore(client aws.DynamoDBAPI, tableName string, retention time.Duration) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{
		client:    client,
		tableName: tableName,
		retention: retention,
		nowFunc:   time.Now,
	}
}

// NewRecord snapshots o with its final statuses, completed now.
func (s *Store) NewRecord(o orders.Order, orderStatus, paymentStatus string) Record {
	now := s.nowFunc().UTC()
	return Record{
		OriginalOrderID: o.OrderID,
		UserID:          o.UserID,
		Items:           o.Items,
		TotalAmount:     o.TotalAmount,
		Currency:        o.Currency,
		ShippingAddress: o.ShippingAddress,
		OrderStatus:     orderStatus,
		PaymentStatus:   paymentStatus,
		PaymentMethod:   o.PaymentMethod,
		CouponCode:      o.CouponCode,
		TransactionID:   o.TransactionID,
		OrderedAt:       o.CreatedAt,
		CompletedAt:     now,
		ExpiresAt:       now.Add(s.retention).Unix(),
	}
}

// PutItem returns a transaction item that inserts rec once per original order id.
func (s *Store) PutItem(rec Record) (types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal history record: %w", err)
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: awsString("attribute_not_exists(original_order_id)"),
		},
	}, nil
}

// Get fetches the history record of an order. Returns (nil, nil) if none exists
// or it is past retention.
func (s *Store) Get(ctx context.Context, originalOrderID string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"original_order_id": &types.AttributeValueMemberS{Value: originalOrderID},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get history record: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal history record: %w", err)
	}
	if rec.ExpiresAt <= s.nowFunc().Unix() {
		return nil, nil
	}
	return &rec, nil
}

// ListByUser returns the user's history, most recently completed first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	var (
		items []map[string]types.AttributeValue
		start map[string]types.AttributeValue
	)
	for {
		page, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:              &s.tableName,
			IndexName:              awsString("user_id-index"),
			KeyConditionExpression: awsString("user_id = :uid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uid": &types.AttributeValueMemberS{Value: userID},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("query history: %w", err)
		}
		items = append(items, page.Items...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		start = page.LastEvaluatedKey
	}
	return s.decode(items)
}

// List returns all history records, most recently completed first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	var (
		items []map[string]types.AttributeValue
		start map[string]types.AttributeValue
	)
	for {
		page, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		items = append(items, page.Items...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		start = page.LastEvaluatedKey
	}
	return s.decode(items)
}

func (s *Store) decode(items []map[string]types.AttributeValue) ([]Record, error) {
	var all []Record
	if err := attributevalue.UnmarshalListOfMaps(items, &all); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	now := s.nowFunc().Unix()
	live := all[:0]
	for _, r := range all {
		if r.ExpiresAt > now {
			live = append(live, r)
		}
	}
	sort.SliceStable(live, func(i, j int) bool {
		return live[i].CompletedAt.After(live[j].CompletedAt)
	})
	return live, nil
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
