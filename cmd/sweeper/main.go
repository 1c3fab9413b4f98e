package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/imrishuroy/go-idempotent-checkout/internal/app"
	"github.com/imrishuroy/go-idempotent-checkout/internal/config"
	"github.com/imrishuroy/go-idempotent-checkout/internal/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	l, err := logger.New(cfg.App.LogLevel, cfg.App.LogFormat)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = l.Sync() }()

	a, err := app.New(context.Background(), cfg, l)
	if err != nil {
		l.Fatal("failed to init dependencies", zap.Error(err))
	}

	lambda.Start(NewHandler(a.Orders, l).Handle)
}
