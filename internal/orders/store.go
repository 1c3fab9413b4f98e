package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-idempotent-checkout/internal/aws"
)

// UserIndex is the GSI on user_id.
const UserIndex = "user_id-index"

// ErrStatusMismatch is returned when a conditional status update finds a different current status.
var ErrStatusMismatch = errors.New("status mismatch/conditional failed")

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// TableName returns the orders table name.
func (s *Store) TableName() string { return s.tableName }

func (s *Store) key(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

// PutItem returns a transaction item that creates order. It fails the enclosing
// transaction if an order with the same id exists, which makes promotion of a
// staged order idempotent. CreatedAt/UpdatedAt are filled in when empty.
func (s *Store) PutItem(order Order) (types.TransactWriteItem, error) {
	now := s.nowFunc().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal order item: %w", err)
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: awsString("attribute_not_exists(order_id)"),
		},
	}, nil
}

// DeleteItem returns a transaction item that deletes the order only while its
// status is still expectedStatus.
func (s *Store) DeleteItem(orderID, expectedStatus string) types.TransactWriteItem {
	return types.TransactWriteItem{
		Delete: &types.Delete{
			TableName:           &s.tableName,
			Key:                 s.key(orderID),
			ConditionExpression: awsString("order_status = :prev"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":prev": &types.AttributeValueMemberS{Value: expectedStatus},
			},
		},
	}
}

// Delete removes the order if it exists. Returns false when there was nothing to delete.
func (s *Store) Delete(ctx context.Context, orderID string) (bool, error) {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 s.key(orderID),
		ConditionExpression: awsString("attribute_exists(order_id)"),
	})
	if err != nil {
		if aws.IsConditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("delete item: %w", err)
	}
	return true, nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       s.key(orderID),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// ListByUser returns the user's live orders, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	var (
		out   []Order
		start map[string]types.AttributeValue
	)
	for {
		page, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:              &s.tableName,
			IndexName:              awsString(UserIndex),
			KeyConditionExpression: awsString("user_id = :uid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uid": &types.AttributeValueMemberS{Value: userID},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("query orders: %w", err)
		}
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		start = page.LastEvaluatedKey
	}
	newestFirst(out)
	return out, nil
}

// List returns all live orders, newest first.
func (s *Store) List(ctx context.Context) ([]Order, error) {
	var (
		out   []Order
		start map[string]types.AttributeValue
	)
	for {
		page, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("scan orders: %w", err)
		}
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		start = page.LastEvaluatedKey
	}
	newestFirst(out)
	return out, nil
}

// UpdateStatus conditionally updates the order status from expected -> newStatus.
// A non-empty paymentStatus is written in the same update.
// Returns nil on success, ErrStatusMismatch if condition failed.
func (s *Store) UpdateStatus(ctx context.Context, orderID, expectedStatus, newStatus, paymentStatus string) error {
	now := s.nowFunc().UTC()
	updateExpr := "SET order_status = :new, updated_at = :ua"
	values := map[string]types.AttributeValue{
		":new":      &types.AttributeValueMemberS{Value: newStatus},
		":expected": &types.AttributeValueMemberS{Value: expectedStatus},
		":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
	}
	if paymentStatus != "" {
		updateExpr += ", payment_status = :ps"
		values[":ps"] = &types.AttributeValueMemberS{Value: paymentStatus}
	}

	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       s.key(orderID),
		UpdateExpression:          &updateExpr,
		ConditionExpression:       awsString("order_status = :expected"),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		// detect conditional check failing
		var sc *types.ConditionalCheckFailedException
		if errors.As(err, &sc) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

func newestFirst(list []Order) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func awsString(s string) *string { return &s }
