package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

// usageRequest is the order-finalization wire contract. Checkout calls it
// once per completed order; replays for the same order are safe.
type usageRequest struct {
	CouponID        string  `json:"couponId"`
	CouponCode      string  `json:"couponCode"`
	OrderID         string  `json:"orderId"`
	CustomerID      string  `json:"customerId,omitempty"`
	CustomerEmail   string  `json:"customerEmail,omitempty"`
	CustomerPhone   string  `json:"customerPhone,omitempty"`
	DiscountApplied float64 `json:"discountApplied"`
	OrderTotal      float64 `json:"orderTotal"`
}

type usageRecordBody struct {
	ID              string    `json:"id"`
	CouponID        string    `json:"couponId"`
	CouponCode      string    `json:"couponCode"`
	OrderID         string    `json:"orderId"`
	DiscountApplied float64   `json:"discountApplied"`
	OrderTotal      float64   `json:"orderTotal"`
	CreatedAt       time.Time `json:"createdAt"`
}

type usageResponse struct {
	Success     bool             `json:"success"`
	ErrorCode   string           `json:"errorCode,omitempty"`
	Message     string           `json:"message,omitempty"`
	UsageRecord *usageRecordBody `json:"usageRecord,omitempty"`
}

// RecordUsage handles POST /coupons/usage. The recorder is idempotent per
// (couponId, orderId): a replay returns the original record with a 200.
func (h *Handler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	var body usageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.CouponID == "" || body.OrderID == "" {
		writeError(w, r, http.StatusBadRequest, "couponId and orderId are required")
		return
	}

	rec, err := h.recorder.Record(r.Context(), tenant, coupon.UsageInput{
		CouponID:        body.CouponID,
		CouponCode:      body.CouponCode,
		OrderID:         body.OrderID,
		CustomerID:      body.CustomerID,
		CustomerEmail:   body.CustomerEmail,
		CustomerPhone:   body.CustomerPhone,
		DiscountApplied: decimal.NewFromFloat(body.DiscountApplied),
		OrderTotal:      decimal.NewFromFloat(body.OrderTotal),
	})
	if err != nil {
		switch {
		case errors.Is(err, coupon.ErrUsageLimitExhausted):
			writeJSON(w, r, http.StatusConflict, usageResponse{
				ErrorCode: string(coupon.ReasonUsageLimitReached),
				Message:   coupon.ReasonUsageLimitReached.Message(),
			})
		case errors.Is(err, coupon.ErrNotFirstOrder):
			writeJSON(w, r, http.StatusConflict, usageResponse{
				ErrorCode: string(coupon.ReasonFirstOrderOnly),
				Message:   coupon.ReasonFirstOrderOnly.Message(),
			})
		case errors.Is(err, coupon.ErrNotFound):
			writeJSON(w, r, http.StatusNotFound, usageResponse{
				ErrorCode: string(coupon.ReasonInvalidCode),
				Message:   coupon.ReasonInvalidCode.Message(),
			})
		default:
			zctx.From(r.Context()).Error("record usage", zap.Error(err))
			writeJSON(w, r, http.StatusInternalServerError, usageResponse{
				ErrorCode: string(coupon.ReasonServerError),
				Message:   coupon.ReasonServerError.Message(),
			})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, usageResponse{
		Success: true,
		UsageRecord: &usageRecordBody{
			ID:              rec.ID,
			CouponID:        rec.CouponID,
			CouponCode:      rec.CouponCode,
			OrderID:         rec.OrderID,
			DiscountApplied: rec.DiscountApplied.InexactFloat64(),
			OrderTotal:      rec.OrderTotal.InexactFloat64(),
			CreatedAt:       rec.CreatedAt,
		},
	})
}
