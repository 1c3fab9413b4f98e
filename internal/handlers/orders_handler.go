package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/imrishuroy/go-idempotent-checkout/internal/auth"
	"github.com/imrishuroy/go-idempotent-checkout/internal/coupons"
	"github.com/imrishuroy/go-idempotent-checkout/internal/idempotency"
	"github.com/imrishuroy/go-idempotent-checkout/internal/logger"
	"github.com/imrishuroy/go-idempotent-checkout/internal/orderflow"
	"github.com/imrishuroy/go-idempotent-checkout/internal/orders"
	"github.com/imrishuroy/go-idempotent-checkout/internal/validation"
	"go.uber.org/zap"
)

// HandlerConfig groups dependencies for the API handlers.
type HandlerConfig struct {
	Orders      *orderflow.Service
	Coupons     *coupons.Ledger
	Idempotency *idempotency.Store
	Auth        *auth.Verifier
	// GatewayKeyID is the public key id the client needs to open the checkout widget.
	GatewayKeyID string
}

type handler struct {
	svc      *orderflow.Service
	coupons  *coupons.Ledger
	idemp    *idempotency.Store
	validate *validatorv10.Validate
	keyID    string
}

// RegisterRoutes registers the order, payment and admin routes.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	h := &handler{
		svc:      cfg.Orders,
		coupons:  cfg.Coupons,
		idemp:    cfg.Idempotency,
		validate: validation.New(),
		keyID:    cfg.GatewayKeyID,
	}

	// signed by the gateway, not by a user
	r.POST("/webhooks/payment", h.paymentWebhook)

	user := r.Group("/", cfg.Auth.Middleware())
	user.POST("/orders", h.createOrder)
	user.GET("/orders", h.listOrders)
	user.POST("/orders/confirm-payment", h.confirmPayment)
	user.GET("/orders/:id", h.getOrder)
	user.POST("/coupons/verify", h.verifyCoupon)

	admin := r.Group("/admin", cfg.Auth.Middleware(), auth.RequireAdmin())
	admin.GET("/orders", h.adminListOrders)
	admin.GET("/history", h.adminListHistory)
	admin.GET("/orders/:id", h.adminGetOrder)
	admin.PATCH("/orders/:id/status", h.adminUpdateStatus)
	admin.GET("/coupons", h.adminListCoupons)
	admin.POST("/coupons", h.adminCreateCoupon)
	admin.PATCH("/coupons/:code/status", h.adminSetCouponStatus)
	admin.DELETE("/coupons/:code", h.adminDeleteCoupon)
}

type paymentInfo struct {
	GatewayOrderID string `json:"gatewayOrderId"`
	Amount         int64  `json:"amount"` // minor units
	Currency       string `json:"currency"`
	KeyID          string `json:"keyId"`
}

type createOrderResponse struct {
	Order   orders.Order `json:"order"`
	Staged  bool         `json:"staged"`
	Payment *paymentInfo `json:"payment,omitempty"`
}

// createOrder requires an Idempotency-Key header. A completed key replays the
// stored response, an in-flight key answers 202, a failed key is retried and a
// key reused with a different body is rejected.
func (h *handler) createOrder(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx, nil)

	// Require idempotency key header
	clientKey := c.GetHeader("Idempotency-Key")
	if clientKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_idempotency_key"})
		return
	}

	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	userID := auth.UserID(c)
	key := idempotency.Key(userID, clientKey)
	fp := fingerprint(req)

	created, err := h.idemp.CreateIfNotExists(ctx, key, fp)
	if err != nil {
		respondError(c, fmt.Errorf("idempotency check: %w", err))
		return
	}
	if !created && !h.resume(ctx, c, key, fp) {
		return
	}

	res, err := h.svc.CreateOrder(ctx, toCreateInput(userID, req))
	if err != nil {
		// let the client retry with the same key
		if merr := h.idemp.MarkFailed(ctx, key, err.Error()); merr != nil {
			log.Warn("mark idempotency failed", zap.String("key", key), zap.Error(merr))
		}
		respondError(c, err)
		return
	}

	resp := createOrderResponse{Order: res.Order, Staged: res.Staged}
	if res.Intent != nil {
		resp.Payment = &paymentInfo{
			GatewayOrderID: res.Intent.ID,
			Amount:         res.Intent.Amount,
			Currency:       res.Intent.Currency,
			KeyID:          h.keyID,
		}
	}
	body, err := json.Marshal(resp)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.idemp.MarkDone(ctx, key, string(body), http.StatusCreated); err != nil {
		log.Warn("mark idempotency done failed", zap.String("key", key), zap.Error(err))
	}

	c.Header("Location", fmt.Sprintf("/orders/%s", res.Order.OrderID))
	c.Data(http.StatusCreated, "application/json", body)
}

// resume handles a key that already has a record. It reports whether the
// request should go ahead; otherwise the response has been written.
func (h *handler) resume(ctx context.Context, c *gin.Context, key, fp string) bool {
	rec, err := h.idemp.Get(ctx, key)
	if err != nil {
		respondError(c, fmt.Errorf("idempotency lookup: %w", err))
		return false
	}
	if rec == nil {
		// expired between the write and the read
		c.JSON(http.StatusConflict, gin.H{"error": "idempotency_key_expired", "msg": "retry the request"})
		return false
	}
	if rec.Fingerprint != "" && rec.Fingerprint != fp {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "idempotency_key_reused"})
		return false
	}

	switch rec.Status {
	case idempotency.StatusDone:
		c.Header("Idempotent-Replayed", "true")
		c.Data(rec.ResponseStatus, "application/json", []byte(rec.ResponseBody))
		return false
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress"})
		return false
	case idempotency.StatusFailed:
		ok, err := h.idemp.Reclaim(ctx, key)
		if err != nil {
			respondError(c, fmt.Errorf("idempotency reclaim: %w", err))
			return false
		}
		if !ok {
			c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress"})
			return false
		}
		return true
	}
	respondError(c, errors.New("unknown idempotency status "+rec.Status))
	return false
}

func toCreateInput(userID string, req validation.CreateOrderRequest) orderflow.CreateOrderInput {
	items := make([]orderflow.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, orderflow.LineItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	a := req.ShippingAddress
	return orderflow.CreateOrderInput{
		UserID: userID,
		Items:  items,
		ShippingAddress: orders.Address{
			Name:       a.Name,
			Phone:      a.Phone,
			Street:     a.Street,
			City:       a.City,
			State:      a.State,
			PostalCode: a.PostalCode,
			Country:    a.Country,
		},
		PaymentMethod: req.PaymentMethod,
		CouponCode:    req.CouponCode,
	}
}

// fingerprint hashes the decoded request so a reused key with a different body is detected.
func fingerprint(req validation.CreateOrderRequest) string {
	b, _ := json.Marshal(req)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (h *handler) listOrders(c *gin.Context) {
	list, err := h.svc.ListUserOrders(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

func (h *handler) getOrder(c *gin.Context) {
	o, err := h.svc.GetOrder(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *handler) verifyCoupon(c *gin.Context) {
	var req validation.VerifyCouponRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	q, err := h.svc.VerifyCoupon(c.Request.Context(), req.Code, req.Total)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}
