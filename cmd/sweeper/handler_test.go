package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-idempotent-checkout/internal/coupons"
	"github.com/imrishuroy/go-idempotent-checkout/internal/dynamotest"
	"github.com/imrishuroy/go-idempotent-checkout/internal/idempotency"
	"github.com/imrishuroy/go-idempotent-checkout/internal/orderflow"
	"github.com/imrishuroy/go-idempotent-checkout/internal/staging"
	"github.com/shopspring/decimal"
)

func stagedImage(orderID, coupon string) map[string]events.DynamoDBAttributeValue {
	img := map[string]events.DynamoDBAttributeValue{
		"order_id":       events.NewStringAttribute(orderID),
		"user_id":        events.NewStringAttribute("u1"),
		"total_amount":   events.NewNumberAttribute("450"),
		"order_status":   events.NewStringAttribute("Pending"),
		"payment_status": events.NewStringAttribute("Pending"),
		"payment_method": events.NewStringAttribute("ONLINE"),
		"expires_at":     events.NewNumberAttribute("1700000000"),
		"created_at":     events.NewStringAttribute("2026-10-17T10:00:00Z"),
		"items": events.NewListAttribute([]events.DynamoDBAttributeValue{
			events.NewMapAttribute(map[string]events.DynamoDBAttributeValue{
				"product_id": events.NewStringAttribute("p1"),
				"quantity":   events.NewNumberAttribute("2"),
			}),
		}),
	}
	if coupon != "" {
		img["coupon_code"] = events.NewStringAttribute(coupon)
	}
	return img
}

func removeRecord(seq string, image map[string]events.DynamoDBAttributeValue, identity *events.DynamoDBUserIdentity) events.DynamoDBEventRecord {
	return events.DynamoDBEventRecord{
		EventID:      "ev-" + seq,
		EventName:    string(events.DynamoDBOperationTypeRemove),
		UserIdentity: identity,
		Change: events.DynamoDBStreamRecord{
			SequenceNumber: seq,
			OldImage:       image,
		},
	}
}

func ttlIdentity() *events.DynamoDBUserIdentity {
	return &events.DynamoDBUserIdentity{Type: "Service", PrincipalID: ttlPrincipal}
}

func newService(t *testing.T) (*orderflow.Service, *coupons.Ledger) {
	t.Helper()
	db := dynamotest.New().
		CreateTable("coupons", "code").
		CreateTable("idempotency", "idempotency_key")
	ledger := coupons.NewLedger(db, "coupons", nil)
	svc := orderflow.New(orderflow.Deps{
		DB:          db,
		Coupons:     ledger,
		Idempotency: idempotency.NewStore(db, "idempotency", 48*time.Hour),
	})
	return svc, ledger
}

func TestHandle_ReleasesOncePerExpiredRecord(t *testing.T) {
	svc, ledger := newService(t)
	ctx := context.Background()
	if _, err := ledger.Create(ctx, coupons.Coupon{Code: "SAVE10", DiscountPercent: 10, RemainingUses: 1}); err != nil {
		t.Fatalf("create coupon: %v", err)
	}
	// the expired order held one use
	if _, err := ledger.Reserve(ctx, "SAVE10", decimal.NewFromInt(500)); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	h := NewHandler(svc, nil)
	ev := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		removeRecord("1", stagedImage("ord-1", "SAVE10"), ttlIdentity()),
		// redelivery of the same deletion
		removeRecord("2", stagedImage("ord-1", "SAVE10"), ttlIdentity()),
		// deleted by the order flow after capture or failure
		removeRecord("3", stagedImage("ord-2", "SAVE10"), nil),
		{EventName: string(events.DynamoDBOperationTypeInsert), Change: events.DynamoDBStreamRecord{SequenceNumber: "4"}},
		removeRecord("5", stagedImage("ord-3", ""), ttlIdentity()),
	}}

	resp, err := h.Handle(ctx, ev)
	if err != nil || len(resp.BatchItemFailures) != 0 {
		t.Fatalf("Handle: %v %+v", err, resp.BatchItemFailures)
	}
	c, err := ledger.Get(ctx, "SAVE10")
	if err != nil || c == nil {
		t.Fatalf("get coupon: %v", err)
	}
	if c.RemainingUses != 1 {
		t.Fatalf("expected exactly one use back, remaining %d", c.RemainingUses)
	}
}

type failingReleaser struct {
	seen []string
}

func (f *failingReleaser) ReleaseExpired(ctx context.Context, rec staging.Record) (bool, error) {
	f.seen = append(f.seen, rec.OrderID)
	if rec.OrderID == "ord-2" {
		return false, errors.New("throttled")
	}
	return true, nil
}

func TestHandle_ReportsFirstFailure(t *testing.T) {
	r := &failingReleaser{}
	h := NewHandler(r, nil)
	ev := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		removeRecord("10", stagedImage("ord-1", "A"), ttlIdentity()),
		removeRecord("11", stagedImage("ord-2", "A"), ttlIdentity()),
		removeRecord("12", stagedImage("ord-3", "A"), ttlIdentity()),
	}}
	resp, err := h.Handle(context.Background(), ev)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "11" {
		t.Fatalf("expected failure at 11, got %+v", resp.BatchItemFailures)
	}
	if len(r.seen) != 2 {
		t.Fatalf("records after the failure must wait, saw %v", r.seen)
	}
}

func TestToAttributeMap(t *testing.T) {
	got, err := toAttributeMap(map[string]events.DynamoDBAttributeValue{
		"s":    events.NewStringAttribute("x"),
		"n":    events.NewNumberAttribute("1.5"),
		"b":    events.NewBooleanAttribute(true),
		"null": events.NewNullAttribute(),
		"ss":   events.NewStringSetAttribute([]string{"a", "b"}),
		"m": events.NewMapAttribute(map[string]events.DynamoDBAttributeValue{
			"inner": events.NewListAttribute([]events.DynamoDBAttributeValue{events.NewNumberAttribute("2")}),
		}),
	})
	if err != nil {
		t.Fatalf("toAttributeMap: %v", err)
	}
	if s, ok := got["s"].(*types.AttributeValueMemberS); !ok || s.Value != "x" {
		t.Fatalf("s = %#v", got["s"])
	}
	if n, ok := got["n"].(*types.AttributeValueMemberN); !ok || n.Value != "1.5" {
		t.Fatalf("n = %#v", got["n"])
	}
	if b, ok := got["b"].(*types.AttributeValueMemberBOOL); !ok || !b.Value {
		t.Fatalf("b = %#v", got["b"])
	}
	if _, ok := got["null"].(*types.AttributeValueMemberNULL); !ok {
		t.Fatalf("null = %#v", got["null"])
	}
	if ss, ok := got["ss"].(*types.AttributeValueMemberSS); !ok || len(ss.Value) != 2 {
		t.Fatalf("ss = %#v", got["ss"])
	}
	m, ok := got["m"].(*types.AttributeValueMemberM)
	if !ok {
		t.Fatalf("m = %#v", got["m"])
	}
	l, ok := m.Value["inner"].(*types.AttributeValueMemberL)
	if !ok || len(l.Value) != 1 {
		t.Fatalf("inner = %#v", m.Value["inner"])
	}
}
