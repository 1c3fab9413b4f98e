// Package app wires configuration into the stores and the order flow service.
// The API and the sweeper build the same graph.
package app

import (
	"context"
	"fmt"

	"github.com/imrishuroy/go-idempotent-checkout/internal/aws"
	"github.com/imrishuroy/go-idempotent-checkout/internal/cart"
	"github.com/imrishuroy/go-idempotent-checkout/internal/catalog"
	"github.com/imrishuroy/go-idempotent-checkout/internal/config"
	"github.com/imrishuroy/go-idempotent-checkout/internal/coupons"
	"github.com/imrishuroy/go-idempotent-checkout/internal/events"
	"github.com/imrishuroy/go-idempotent-checkout/internal/history"
	"github.com/imrishuroy/go-idempotent-checkout/internal/idempotency"
	"github.com/imrishuroy/go-idempotent-checkout/internal/metrics"
	"github.com/imrishuroy/go-idempotent-checkout/internal/orderflow"
	"github.com/imrishuroy/go-idempotent-checkout/internal/orders"
	"github.com/imrishuroy/go-idempotent-checkout/internal/payment"
	"github.com/imrishuroy/go-idempotent-checkout/internal/staging"
	"github.com/imrishuroy/go-idempotent-checkout/internal/transactions"
	"go.uber.org/zap"
)

// App holds the wired dependencies.
type App struct {
	Clients     *aws.AWSClients
	Coupons     *coupons.Ledger
	Idempotency *idempotency.Store
	Orders      *orderflow.Service
}

// New connects to AWS and the optional Postgres catalog and Redis cart store.
// Without DATABASE_URL the catalog is empty; without REDIS_URL carts are not
// cleared; without a notifications queue notifications are dropped.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	clients, err := aws.NewAWSClients(ctx, cfg.AWS.Region, cfg.AWS.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("init aws clients: %w", err)
	}
	db := clients.DynamoDB
	t := cfg.Tables

	var cat catalog.Catalog = catalog.Static{}
	if cfg.Postgres.DSN != "" {
		gdb, err := catalog.Open(cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		cat = catalog.NewPostgres(gdb)
	} else {
		logger.Warn("DATABASE_URL not set, catalog is empty")
	}

	var clearer cart.Clearer = cart.Nop{}
	if cfg.Redis.URL != "" {
		rdb, err := cart.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		clearer = cart.NewRedis(rdb)
	}

	var notifier events.Notifier = events.Discard{}
	if cfg.Queue.NotificationsURL != "" {
		notifier = events.NewSQSNotifier(aws.NewPublisher(clients.SQS, cfg.Queue.NotificationsURL))
	}

	ledger := coupons.NewLedger(db, t.Coupons, logger)
	idem := idempotency.NewStore(db, t.Idempotency, cfg.Checkout.IdempotencyTTL)
	gw := payment.NewClient(payment.Config{
		BaseURL:       cfg.Gateway.BaseURL,
		KeyID:         cfg.Gateway.KeyID,
		KeySecret:     cfg.Gateway.KeySecret,
		WebhookSecret: cfg.Gateway.WebhookSecret,
		Timeout:       cfg.Gateway.Timeout,
	}, nil, logger)

	svc := orderflow.New(orderflow.Deps{
		DB:           db,
		Coupons:      ledger,
		Orders:       orders.NewStore(db, t.Orders),
		Staging:      staging.NewStore(db, t.Staging, t.PaymentIntents, cfg.Checkout.StagingTTL),
		History:      history.NewStore(db, t.History, cfg.Checkout.HistoryRetention),
		Transactions: transactions.NewStore(db, t.Transactions),
		Idempotency:  idem,
		Gateway:      gw,
		Catalog:      cat,
		Cart:         clearer,
		Notifier:     notifier,
		Metrics:      metrics.NewCloudWatch(clients.CloudWatch, cfg.AWS.Namespace, logger),
		Logger:       logger,
		Currency:     cfg.Gateway.Currency,
		CODSurcharge: cfg.Checkout.CODSurcharge,
	})

	return &App{
		Clients:     clients,
		Coupons:     ledger,
		Idempotency: idem,
		Orders:      svc,
	}, nil
}
