package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-idempotent-checkout/internal/auth"
	"github.com/imrishuroy/go-idempotent-checkout/internal/logger"
	"github.com/imrishuroy/go-idempotent-checkout/internal/orderflow"
	"github.com/imrishuroy/go-idempotent-checkout/internal/validation"
	"go.uber.org/zap"
)

// SignatureHeader carries the HMAC of the raw webhook body.
const SignatureHeader = "X-Razorpay-Signature"

// paymentWebhook reads the unparsed body; the signature covers the exact bytes.
// Every verified event is acknowledged with 200, including duplicates and
// expired orders, so the gateway stops retrying. Storage errors answer 500 and
// the gateway delivers again.
func (h *handler) paymentWebhook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable_body"})
		return
	}
	res, err := h.svc.HandleWebhook(c.Request.Context(), raw, c.GetHeader(SignatureHeader))
	if err != nil {
		respondError(c, err)
		return
	}
	logger.FromContext(c.Request.Context(), nil).Info("payment webhook",
		zap.String("outcome", string(res.Outcome)), zap.String("order_id", res.OrderID))
	c.JSON(http.StatusOK, res)
}

func (h *handler) confirmPayment(c *gin.Context) {
	var req validation.ConfirmPaymentRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	res, err := h.svc.ConfirmPayment(c.Request.Context(), auth.UserID(c), req.GatewayOrderID, req.PaymentID, req.Signature)
	if err != nil {
		respondError(c, err)
		return
	}
	if res.Outcome == orderflow.OutcomeExpired {
		c.JSON(http.StatusGone, gin.H{"error": "payment_window_expired", "orderId": res.OrderID})
		return
	}
	c.JSON(http.StatusOK, res)
}
