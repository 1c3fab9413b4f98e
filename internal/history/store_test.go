package history

import (
	"context"
	"testing"
	"time"

	"github.com/imrishuroy/go-idempotent-checkout/internal/aws"
	"github.com/imrishuroy/go-idempotent-checkout/internal/dynamotest"
	"github.com/imrishuroy/go-idempotent-checkout/internal/orders"
)

const historyTable = "order-history"

func TestPutItem_OncePerOrder(t *testing.T) {
	db := dynamotest.New().CreateTable(historyTable, "original_order_id")
	s := NewStore(db, historyTable, 0)
	ctx := context.Background()

	o := orders.Order{OrderID: "o-1", UserID: "u1", TotalAmount: 99, PaymentMethod: orders.MethodCOD, CreatedAt: time.Now()}
	rec := s.NewRecord(o, orders.StatusDelivered, orders.PaymentPaid)
	if rec.ExpiresAt-rec.CompletedAt.Unix() != int64(DefaultRetention.Seconds()) {
		t.Fatalf("expected 14 day retention")
	}

	item, err := s.PutItem(rec)
	if err != nil {
		t.Fatalf("PutItem: %v", err)
	}
	if err := aws.TransactWrite(ctx, db, item); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := aws.TransactWrite(ctx, db, item); !aws.ConditionFailedAt(err, 0) {
		t.Fatalf("second insert must fail, got %v", err)
	}

	got, err := s.Get(ctx, "o-1")
	if err != nil || got == nil {
		t.Fatalf("Get: %v", err)
	}
	if got.OrderStatus != orders.StatusDelivered || got.PaymentStatus != orders.PaymentPaid {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}

func TestRetention_HidesExpired(t *testing.T) {
	db := dynamotest.New().CreateTable(historyTable, "original_order_id")
	s := NewStore(db, historyTable, time.Hour)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	for i, id := range []string{"a", "b"} {
		s.nowFunc = func() time.Time { return now.Add(time.Duration(i) * time.Minute) }
		item, _ := s.PutItem(s.NewRecord(orders.Order{OrderID: id, UserID: "u1"}, orders.StatusCancelled, orders.PaymentPending))
		if err := aws.TransactWrite(ctx, db, item); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	list, err := s.ListByUser(ctx, "u1")
	if err != nil || len(list) != 2 || list[0].OriginalOrderID != "b" {
		t.Fatalf("expected newest first, got %+v (%v)", list, err)
	}

	s.nowFunc = func() time.Time { return now.Add(2 * time.Hour) }
	if got, _ := s.Get(ctx, "a"); got != nil {
		t.Fatalf("expired record should be hidden")
	}
	if all, _ := s.List(ctx); len(all) != 0 {
		t.Fatalf("expected no live history, got %d", len(all))
	}
}

func TestList_ReadsEveryPage(t *testing.T) {
	db := dynamotest.New().CreateTable(historyTable, "original_order_id")
	db.PageSize = 2
	s := NewStore(db, historyTable, 0)
	ctx := context.Background()

	for _, id := range []string{"h1", "h2", "h3", "h4", "h5"} {
		user := "u1"
		if id == "h3" {
			user = "u2"
		}
		item, err := s.PutItem(s.NewRecord(orders.Order{OrderID: id, UserID: user}, orders.StatusDelivered, orders.PaymentPaid))
		if err != nil {
			t.Fatalf("PutItem: %v", err)
		}
		if err := aws.TransactWrite(ctx, db, item); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	all, err := s.List(ctx)
	if err != nil || len(all) != 5 {
		t.Fatalf("expected all 5 records across pages, got %d (%v)", len(all), err)
	}
	mine, err := s.ListByUser(ctx, "u1")
	if err != nil || len(mine) != 4 {
		t.Fatalf("expected 4 records for u1 across pages, got %d (%v)", len(mine), err)
	}
}
