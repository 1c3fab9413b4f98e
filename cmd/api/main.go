package main

import (
	"context"
	"log"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-idempotent-checkout/internal/app"
	"github.com/imrishuroy/go-idempotent-checkout/internal/auth"
	"github.com/imrishuroy/go-idempotent-checkout/internal/config"
	"github.com/imrishuroy/go-idempotent-checkout/internal/handlers"
	"github.com/imrishuroy/go-idempotent-checkout/internal/logger"
	"go.uber.org/zap"
)

func setupRouter(cfg handlers.HandlerConfig, l *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(handlers.RequestLogger(l), gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterRoutes(r, cfg)

	return r
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.ValidateAPI(); err != nil {
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

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := setupRouter(handlers.HandlerConfig{
		Orders:       a.Orders,
		Coupons:      a.Coupons,
		Idempotency:  a.Idempotency,
		Auth:         auth.NewVerifier(cfg.Auth.JWTSecret),
		GatewayKeyID: cfg.Gateway.KeyID,
	}, l)

	// RUN_LOCAL=true serves plain HTTP for development.
	if cfg.App.RunLocal {
		addr := ":" + cfg.App.Port
		l.Info("running local server", zap.String("addr", addr))
		if err := r.Run(addr); err != nil {
			l.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
