package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-idempotent-checkout/internal/coupons"
	"github.com/imrishuroy/go-idempotent-checkout/internal/validation"
)

func (h *handler) adminListOrders(c *gin.Context) {
	list, err := h.svc.ListOrders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

func (h *handler) adminListHistory(c *gin.Context) {
	list, err := h.svc.ListHistory(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": list})
}

func (h *handler) adminGetOrder(c *gin.Context) {
	o, err := h.svc.GetOrder(c.Request.Context(), "", c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *handler) adminUpdateStatus(c *gin.Context) {
	var req validation.StatusUpdateRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	ch, err := h.svc.UpdateOrderStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (h *handler) adminListCoupons(c *gin.Context) {
	list, err := h.coupons.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coupons": list})
}

func (h *handler) adminCreateCoupon(c *gin.Context) {
	var req validation.CouponRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	coupon := coupons.Coupon{
		Code:            req.Code,
		DiscountPercent: req.DiscountPercent,
		MinPurchase:     req.MinPurchase,
		Status:          req.Status,
	}
	// left unset, the ledger applies its defaults
	if req.MaxPurchase != nil {
		coupon.MaxPurchase = *req.MaxPurchase
	}
	if req.UsageLimit != nil {
		coupon.RemainingUses = *req.UsageLimit
	}
	cp, err := h.coupons.Create(c.Request.Context(), coupon)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cp)
}

func (h *handler) adminSetCouponStatus(c *gin.Context) {
	var req validation.CouponStatusRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	if err := h.coupons.SetStatus(c.Request.Context(), c.Param("code"), req.Status); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": coupons.NormalizeCode(c.Param("code")), "status": req.Status})
}

func (h *handler) adminDeleteCoupon(c *gin.Context) {
	if err := h.coupons.Delete(c.Request.Context(), c.Param("code")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
