package staging

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-idempotent-checkout/internal/aws"
	"github.com/imrishuroy/go-idempotent-checkout/internal/orders"
)

// Store encapsulates the staging table and the payment intents table.
type Store struct {
	client       aws.DynamoDBAPI
	tableName    string
	intentsTable string
	ttl          time.Duration
	nowFunc      func() time.Time
}

// NewStore returns a Store. ttl is the lifetime of a staging record (e.g. 24h).
func NewStore(client aws.DynamoDBAPI, tableName, intentsTable string, ttl time.Duration) *Store {
	return &Store{
		client:       client,
		tableName:    tableName,
		intentsTable: intentsTable,
		ttl:          ttl,
		nowFunc:      time.Now,
	}
}

// TableName returns the staging table name.
func (s *Store) TableName() string { return s.tableName }

func (s *Store) key(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

func (s *Store) nowValue() types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(s.nowFunc().Unix(), 10)}
}

// NewRecord wraps o in a staging record expiring ttl from now.
func (s *Store) NewRecord(o orders.Order) Record {
	now := s.nowFunc().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	return Record{Order: o, ExpiresAt: now.Add(s.ttl).Unix()}
}

// PutItem returns a transaction item creating rec.
func (s *Store) PutItem(rec Record) (types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal staging record: %w", err)
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: awsString("attribute_not_exists(order_id)"),
		},
	}, nil
}

// Get fetches a live staging record. Missing and expired records both return (nil, nil).
func (s *Store) Get(ctx context.Context, orderID string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.key(orderID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get staging record: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal staging record: %w", err)
	}
	if rec.Expired(s.nowFunc()) {
		return nil, nil
	}
	return &rec, nil
}

// AttachIntentItems links a gateway order id to a staging record: it stamps the
// id on the record and registers it in the intents table. The transaction fails
// if the record is gone, already linked, or the gateway id is already taken.
func (s *Store) AttachIntentItems(rec Record, gatewayOrderID string) ([]types.TransactWriteItem, error) {
	ref := IntentRef{
		GatewayOrderID: gatewayOrderID,
		OrderID:        rec.OrderID,
		UserID:         rec.UserID,
		Amount:         rec.TotalAmount,
		CreatedAt:      s.nowFunc().UTC(),
		// outlive the staging record so late callbacks can still be matched
		ExpiresAt: rec.ExpiresAt + int64(s.ttl.Seconds()),
	}
	item, err := attributevalue.MarshalMap(ref)
	if err != nil {
		return nil, fmt.Errorf("marshal intent ref: %w", err)
	}
	return []types.TransactWriteItem{
		{
			Update: &types.Update{
				TableName:           &s.tableName,
				Key:                 s.key(rec.OrderID),
				UpdateExpression:    awsString("SET gateway_order_id = :g, updated_at = :ua"),
				ConditionExpression: awsString("attribute_exists(order_id) AND attribute_not_exists(gateway_order_id)"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":g":  &types.AttributeValueMemberS{Value: gatewayOrderID},
					":ua": &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
				},
			},
		},
		{
			Put: &types.Put{
				TableName:           &s.intentsTable,
				Item:                item,
				ConditionExpression: awsString("attribute_not_exists(gateway_order_id)"),
			},
		},
	}, nil
}

// LookupIntent resolves a gateway order id. Returns (nil, nil) if unknown.
func (s *Store) LookupIntent(ctx context.Context, gatewayOrderID string) (*IntentRef, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.intentsTable,
		Key: map[string]types.AttributeValue{
			"gateway_order_id": &types.AttributeValueMemberS{Value: gatewayOrderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get intent ref: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var ref IntentRef
	if err := attributevalue.UnmarshalMap(out.Item, &ref); err != nil {
		return nil, fmt.Errorf("unmarshal intent ref: %w", err)
	}
	return &ref, nil
}

// ConsumeItem deletes a record that is still unexpired. Used when promoting.
func (s *Store) ConsumeItem(orderID string) types.TransactWriteItem {
	return types.TransactWriteItem{
		Delete: &types.Delete{
			TableName:           &s.tableName,
			Key:                 s.key(orderID),
			ConditionExpression: awsString("attribute_exists(order_id) AND expires_at > :now"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":now": s.nowValue(),
			},
		},
	}
}

// DeleteItem deletes an existing record regardless of expiry. Used for failed payments.
func (s *Store) DeleteItem(orderID string) types.TransactWriteItem {
	return types.TransactWriteItem{
		Delete: &types.Delete{
			TableName:           &s.tableName,
			Key:                 s.key(orderID),
			ConditionExpression: awsString("attribute_exists(order_id)"),
		},
	}
}

// DeleteUnlinkedItem deletes a record that never received a gateway order id.
// Used to roll back when the gateway call fails.
func (s *Store) DeleteUnlinkedItem(orderID string) types.TransactWriteItem {
	return types.TransactWriteItem{
		Delete: &types.Delete{
			TableName:           &s.tableName,
			Key:                 s.key(orderID),
			ConditionExpression: awsString("attribute_exists(order_id) AND attribute_not_exists(gateway_order_id)"),
		},
	}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
