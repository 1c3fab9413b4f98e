package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-idempotent-checkout/internal/coupons"
	"github.com/imrishuroy/go-idempotent-checkout/internal/logger"
	"github.com/imrishuroy/go-idempotent-checkout/internal/orderflow"
	"github.com/imrishuroy/go-idempotent-checkout/internal/payment"
	"go.uber.org/zap"
)

// statusFor maps an error to an HTTP status and a short error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, orderflow.ErrValidation), errors.Is(err, coupons.ErrInvalidCoupon):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, payment.ErrSignatureInvalid):
		return http.StatusBadRequest, "invalid_signature"
	case errors.Is(err, coupons.ErrCouponRejected):
		return http.StatusUnprocessableEntity, "coupon_rejected"
	case errors.Is(err, payment.ErrGatewayRejected):
		return http.StatusUnprocessableEntity, "payment_rejected"
	case errors.Is(err, orderflow.ErrNotFound), errors.Is(err, coupons.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, orderflow.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, orderflow.ErrConflict), errors.Is(err, coupons.ErrCouponExists):
		return http.StatusConflict, "conflict"
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return http.StatusBadGateway, "payment_gateway_unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}

// respondError writes err as JSON. Internal errors are logged and not echoed.
func respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	body := gin.H{"error": code}

	var (
		ve  *orderflow.ValidationError
		rej *coupons.RejectedError
	)
	switch {
	case errors.As(err, &ve):
		body["field"] = ve.Field
		body["msg"] = ve.Message
	case errors.As(err, &rej):
		body["code"] = rej.Code
		body["reason"] = rej.Reason
	case status == http.StatusInternalServerError:
		logger.FromContext(c.Request.Context(), nil).Error("request failed", zap.Error(err))
	default:
		body["msg"] = err.Error()
	}
	c.JSON(status, body)
}
