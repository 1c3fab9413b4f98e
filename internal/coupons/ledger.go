package coupons

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-idempotent-checkout/internal/aws"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// reserve matches an eligible coupon and takes one use in the same write
	reserveUpdate    = "SET remaining_uses = remaining_uses - :one, updated_at = :ua"
	reserveCondition = "attribute_exists(#code) AND #st = :active AND remaining_uses > :zero AND min_purchase <= :total AND max_purchase >= :total"

	releaseUpdate    = "SET remaining_uses = remaining_uses + :one, updated_at = :ua"
	releaseCondition = "attribute_exists(#code)"
)

// Ledger owns the coupons table.
type Ledger struct {
	client    aws.DynamoDBAPI
	tableName string
	logger    *zap.Logger
	nowFunc   func() time.Time
}

// NewLedger returns a Ledger backed by tableName.
func NewLedger(client aws.DynamoDBAPI, tableName string, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		client:    client,
		tableName: tableName,
		logger:    logger,
		nowFunc:   time.Now,
	}
}

// TableName returns the coupons table name.
func (l *Ledger) TableName() string { return l.tableName }

func (l *Ledger) key(code string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"code": &types.AttributeValueMemberS{Value: code},
	}
}

// Create stores a new coupon. The code is normalized, MaxPurchase defaults to
// DefaultMaxPurchase, RemainingUses to 1 and Status to active.
// Returns ErrCouponExists if the code is taken.
func (l *Ledger) Create(ctx context.Context, c Coupon) (*Coupon, error) {
	c.Code = NormalizeCode(c.Code)
	if c.MaxPurchase == 0 {
		c.MaxPurchase = DefaultMaxPurchase
	}
	if c.RemainingUses == 0 {
		c.RemainingUses = 1
	}
	if c.Status == "" {
		c.Status = StatusActive
	}
	if err := c.validate(); err != nil {
		return nil, err
	}

	now := l.nowFunc().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return nil, fmt.Errorf("marshal coupon: %w", err)
	}
	_, err = l.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                &l.tableName,
		Item:                     item,
		ConditionExpression:      awsString("attribute_not_exists(#code)"),
		ExpressionAttributeNames: codeName(),
	})
	if err != nil {
		if aws.IsConditionFailed(err) {
			return nil, ErrCouponExists
		}
		return nil, fmt.Errorf("put coupon: %w", err)
	}
	return &c, nil
}

// Get fetches a coupon by code. Returns (nil, nil) if not found.
func (l *Ledger) Get(ctx context.Context, code string) (*Coupon, error) {
	out, err := l.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &l.tableName,
		Key:       l.key(NormalizeCode(code)),
	})
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var c Coupon
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal coupon: %w", err)
	}
	return &c, nil
}

// List returns every coupon.
func (l *Ledger) List(ctx context.Context) ([]Coupon, error) {
	var (
		out   []Coupon
		start map[string]types.AttributeValue
	)
	for {
		page, err := l.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &l.tableName,
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("scan coupons: %w", err)
		}
		var batch []Coupon
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal coupons: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = page.LastEvaluatedKey
	}
}

// SetStatus activates or deactivates a coupon. Returns ErrNotFound if the coupon does not exist.
func (l *Ledger) SetStatus(ctx context.Context, code, status string) error {
	if status != StatusActive && status != StatusInactive {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidCoupon, status)
	}
	_, err := l.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &l.tableName,
		Key:                      l.key(NormalizeCode(code)),
		UpdateExpression:         awsString("SET #st = :s, updated_at = :ua"),
		ConditionExpression:      awsString("attribute_exists(#code)"),
		ExpressionAttributeNames: map[string]string{"#st": "status", "#code": "code"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s":  &types.AttributeValueMemberS{Value: status},
			":ua": l.timestamp(),
		},
	})
	if err != nil {
		if aws.IsConditionFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("update coupon status: %w", err)
	}
	return nil
}

// Delete removes a coupon. Orders that already applied it keep their frozen totals.
func (l *Ledger) Delete(ctx context.Context, code string) error {
	_, err := l.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:                &l.tableName,
		Key:                      l.key(NormalizeCode(code)),
		ConditionExpression:      awsString("attribute_exists(#code)"),
		ExpressionAttributeNames: codeName(),
	})
	if err != nil {
		if aws.IsConditionFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete coupon: %w", err)
	}
	return nil
}

// Check reports whether the coupon could be applied to total without reserving it.
func (l *Ledger) Check(ctx context.Context, code string, total decimal.Decimal) (*Coupon, error) {
	c, err := l.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if reason := classify(c, total.InexactFloat64()); reason != "" {
		return nil, &RejectedError{Code: NormalizeCode(code), Reason: reason}
	}
	return c, nil
}

// Reserve takes one use of an eligible coupon in a single conditional update and
// returns the coupon after the decrement. Ineligible coupons yield a *RejectedError.
func (l *Ledger) Reserve(ctx context.Context, code string, total decimal.Decimal) (*Coupon, error) {
	code = NormalizeCode(code)
	u := l.reserveUpdate(code, total)
	out, err := l.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                           u.TableName,
		Key:                                 u.Key,
		UpdateExpression:                    u.UpdateExpression,
		ConditionExpression:                 u.ConditionExpression,
		ExpressionAttributeNames:            u.ExpressionAttributeNames,
		ExpressionAttributeValues:           u.ExpressionAttributeValues,
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, l.rejection(code, ccf.Item, total)
		}
		return nil, fmt.Errorf("reserve coupon: %w", err)
	}
	var c Coupon
	if err := attributevalue.UnmarshalMap(out.Attributes, &c); err != nil {
		return nil, fmt.Errorf("unmarshal coupon: %w", err)
	}
	return &c, nil
}

// Release gives back one use. A coupon deleted in the meantime is logged and skipped.
func (l *Ledger) Release(ctx context.Context, code string) error {
	code = NormalizeCode(code)
	u := l.releaseUpdate(code)
	_, err := l.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 u.TableName,
		Key:                       u.Key,
		UpdateExpression:          u.UpdateExpression,
		ConditionExpression:       u.ConditionExpression,
		ExpressionAttributeNames:  u.ExpressionAttributeNames,
		ExpressionAttributeValues: u.ExpressionAttributeValues,
	})
	if err != nil {
		if aws.IsConditionFailed(err) {
			l.logger.Warn("release skipped, coupon no longer exists", zap.String("coupon", code))
			return nil
		}
		return fmt.Errorf("release coupon: %w", err)
	}
	return nil
}

// ReserveItem returns the reservation as a transaction item so it can commit
// together with the order or staging write.
func (l *Ledger) ReserveItem(code string, total decimal.Decimal) types.TransactWriteItem {
	return types.TransactWriteItem{Update: l.reserveUpdate(NormalizeCode(code), total)}
}

// ReleaseItem returns a release as a transaction item. Unlike Release, the
// enclosing transaction is canceled if the coupon no longer exists.
func (l *Ledger) ReleaseItem(code string) types.TransactWriteItem {
	return types.TransactWriteItem{Update: l.releaseUpdate(NormalizeCode(code))}
}

// Explain re-reads a coupon after a canceled reservation and returns the rejection.
func (l *Ledger) Explain(ctx context.Context, code string, total decimal.Decimal) error {
	c, err := l.Get(ctx, code)
	if err != nil {
		return err
	}
	reason := classify(c, total.InexactFloat64())
	if reason == "" {
		// the last use was taken by a concurrent order and given back since
		reason = ReasonExhausted
	}
	return &RejectedError{Code: NormalizeCode(code), Reason: reason}
}

func (l *Ledger) rejection(code string, old map[string]types.AttributeValue, total decimal.Decimal) error {
	var c *Coupon
	if len(old) > 0 {
		c = &Coupon{}
		if err := attributevalue.UnmarshalMap(old, c); err != nil {
			return fmt.Errorf("unmarshal coupon: %w", err)
		}
	}
	reason := classify(c, total.InexactFloat64())
	if reason == "" {
		reason = ReasonExhausted
	}
	return &RejectedError{Code: code, Reason: reason}
}

func (l *Ledger) reserveUpdate(code string, total decimal.Decimal) *types.Update {
	return &types.Update{
		TableName:                &l.tableName,
		Key:                      l.key(code),
		UpdateExpression:         awsString(reserveUpdate),
		ConditionExpression:      awsString(reserveCondition),
		ExpressionAttributeNames: map[string]string{"#st": "status", "#code": "code"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":    &types.AttributeValueMemberN{Value: "1"},
			":zero":   &types.AttributeValueMemberN{Value: "0"},
			":active": &types.AttributeValueMemberS{Value: StatusActive},
			":total":  &types.AttributeValueMemberN{Value: total.String()},
			":ua":     l.timestamp(),
		},
	}
}

func (l *Ledger) releaseUpdate(code string) *types.Update {
	return &types.Update{
		TableName:                &l.tableName,
		Key:                      l.key(code),
		UpdateExpression:         awsString(releaseUpdate),
		ConditionExpression:      awsString(releaseCondition),
		ExpressionAttributeNames: codeName(),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":ua":  l.timestamp(),
		},
	}
}

func (l *Ledger) timestamp() types.AttributeValue {
	return &types.AttributeValueMemberS{Value: l.nowFunc().UTC().Format(time.RFC3339Nano)}
}

// code is a DynamoDB reserved word
func codeName() map[string]string { return map[string]string{"#code": "code"} }

func awsString(s string) *string { return &s }
