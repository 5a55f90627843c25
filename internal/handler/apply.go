package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

// applyRequest is the apply-coupon wire contract consumed by checkout UIs.
type applyRequest struct {
	Code          string         `json:"code"`
	CartSubtotal  float64        `json:"cartSubtotal"`
	CartItems     []cartItemBody `json:"cartItems"`
	CustomerEmail string         `json:"customerEmail,omitempty"`
	CustomerPhone string         `json:"customerPhone,omitempty"`
}

type cartItemBody struct {
	ProductID  string  `json:"productId"`
	CategoryID string  `json:"categoryId,omitempty"`
	Price      float64 `json:"price"`
	Quantity   int     `json:"quantity"`
}

type freeItemBody struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// couponView is the public projection of a coupon returned on success.
// Usage counters and customer restrictions never leave the engine.
type couponView struct {
	ID            string     `json:"id"`
	Code          string     `json:"code"`
	DiscountType  string     `json:"discountType"`
	DiscountValue float64    `json:"discountValue"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

type applyResponse struct {
	Success      bool           `json:"success"`
	Discount     float64        `json:"discount"`
	DiscountType string         `json:"discountType,omitempty"`
	Message      string         `json:"message"`
	ErrorCode    string         `json:"errorCode,omitempty"`
	FreeShipping bool           `json:"freeShipping"`
	FreeItems    []freeItemBody `json:"freeItems,omitempty"`
	Coupon       *couponView    `json:"coupon,omitempty"`
}

// ApplyCoupon handles POST /coupons/apply. Business rejections are 200s with
// success=false and a typed errorCode; only malformed transport input is a 4xx.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	var body applyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make([]coupon.Item, len(body.CartItems))
	for i, it := range body.CartItems {
		items[i] = coupon.Item{
			ProductID:  it.ProductID,
			CategoryID: it.CategoryID,
			Price:      decimal.NewFromFloat(it.Price),
			Quantity:   it.Quantity,
		}
	}

	result := h.service.Apply(r.Context(), tenant, coupon.Request{
		Code:          body.Code,
		CartSubtotal:  decimal.NewFromFloat(body.CartSubtotal),
		Items:         items,
		CustomerEmail: body.CustomerEmail,
		CustomerPhone: body.CustomerPhone,
	})

	writeJSON(w, r, http.StatusOK, toApplyResponse(result))
}

func toApplyResponse(res coupon.Result) applyResponse {
	resp := applyResponse{
		Success:      res.Success,
		Discount:     res.Discount.InexactFloat64(),
		DiscountType: string(res.DiscountType),
		Message:      res.Message,
		ErrorCode:    string(res.ErrorCode),
		FreeShipping: res.FreeShipping,
	}
	for _, fi := range res.FreeItems {
		resp.FreeItems = append(resp.FreeItems, freeItemBody{
			ProductID: fi.ProductID,
			Quantity:  fi.Quantity,
		})
	}
	if c := res.Coupon; c != nil {
		resp.Coupon = &couponView{
			ID:            c.ID,
			Code:          c.Code,
			DiscountType:  string(c.DiscountType),
			DiscountValue: c.DiscountValue.InexactFloat64(),
			ExpiresAt:     c.ExpiresAt,
		}
	}
	return resp
}
