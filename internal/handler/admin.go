package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

// adminCouponRequest is the administrative create/update contract. Times are
// RFC3339; zero limits mean unlimited.
type adminCouponRequest struct {
	Code                   string        `json:"code"`
	DiscountType           string        `json:"discountType"`
	DiscountValue          float64       `json:"discountValue"`
	MaxDiscountAmount      *float64      `json:"maxDiscountAmount,omitempty"`
	MinOrderValue          *float64      `json:"minOrderValue,omitempty"`
	MaxOrderValue          *float64      `json:"maxOrderValue,omitempty"`
	MinItems               int           `json:"minItems,omitempty"`
	StartAt                *time.Time    `json:"startAt,omitempty"`
	ExpiresAt              *time.Time    `json:"expiresAt,omitempty"`
	TotalUsesLimit         int           `json:"totalUsesLimit,omitempty"`
	UsesPerCustomerLimit   int           `json:"usesPerCustomerLimit,omitempty"`
	ApplicableTo           string        `json:"applicableTo,omitempty"`
	ProductIDs             []string      `json:"productIds,omitempty"`
	CategoryIDs            []string      `json:"categoryIds,omitempty"`
	ExcludedProductIDs     []string      `json:"excludedProductIds,omitempty"`
	RequiresAuthentication bool          `json:"requiresAuthentication,omitempty"`
	IsFirstOrderOnly       bool          `json:"isFirstOrderOnly,omitempty"`
	AllowedCustomerEmails  []string      `json:"allowedCustomerEmails,omitempty"`
	BuyXGetY               *buyXGetYBody `json:"buyXGetY,omitempty"`
	IsActive               *bool         `json:"isActive,omitempty"`
}

type buyXGetYBody struct {
	BuyQuantity        int      `json:"buyQuantity"`
	GetQuantity        int      `json:"getQuantity"`
	EligibleProductIDs []string `json:"eligibleProductIds"`
	MaxSets            int      `json:"maxSets,omitempty"`
}

type adminCouponResponse struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

var validDiscountTypes = map[coupon.DiscountType]bool{
	coupon.DiscountPercentage:   true,
	coupon.DiscountFixed:        true,
	coupon.DiscountFreeShipping: true,
	coupon.DiscountBuyXGetY:     true,
	coupon.DiscountFirstOrder:   true,
}

// CreateCoupon handles POST /admin/coupons.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	var body adminCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validateAdminRequest(&body); msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}

	now := time.Now().UTC()
	c := toCoupon(&body, now)
	c.ID = uuid.New().String()
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := h.admin.Create(r.Context(), tenant, c); err != nil {
		if errors.Is(err, coupon.ErrDuplicateCode) {
			writeError(w, r, http.StatusConflict, "coupon code already exists")
			return
		}
		zctx.From(r.Context()).Error("create coupon", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "could not create coupon")
		return
	}

	if h.codes != nil {
		h.codes.Add(tenant, c.Code)
	}

	writeJSON(w, r, http.StatusCreated, adminCouponResponse{
		ID:        c.ID,
		Code:      c.Code,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	})
}

// UpdateCoupon handles PUT /admin/coupons/{couponID}. Code uniqueness is
// re-checked; the usage counter is untouched by updates.
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "couponID")

	var body adminCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validateAdminRequest(&body); msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}

	existing, err := h.admin.FindByID(r.Context(), tenant, id)
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "coupon not found")
			return
		}
		zctx.From(r.Context()).Error("find coupon", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "could not update coupon")
		return
	}

	now := time.Now().UTC()
	c := toCoupon(&body, now)
	c.ID = existing.ID
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = now
	// An omitted startAt keeps the stored schedule; only an explicit value
	// moves it.
	if body.StartAt == nil {
		c.StartAt = existing.StartAt
	}

	if err := h.admin.Update(r.Context(), tenant, c); err != nil {
		if errors.Is(err, coupon.ErrDuplicateCode) {
			writeError(w, r, http.StatusConflict, "coupon code already exists")
			return
		}
		zctx.From(r.Context()).Error("update coupon", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "could not update coupon")
		return
	}

	if h.codes != nil {
		h.codes.Add(tenant, c.Code)
	}

	writeJSON(w, r, http.StatusOK, adminCouponResponse{
		ID:        c.ID,
		Code:      c.Code,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	})
}

func validateAdminRequest(body *adminCouponRequest) string {
	if coupon.NormalizeCode(body.Code) == "" {
		return "code is required"
	}
	dt := coupon.DiscountType(body.DiscountType)
	if !validDiscountTypes[dt] {
		return "unknown discountType"
	}
	if (dt == coupon.DiscountPercentage || dt == coupon.DiscountFixed || dt == coupon.DiscountFirstOrder) &&
		body.DiscountValue <= 0 {
		return "discountValue must be positive"
	}
	if dt == coupon.DiscountBuyXGetY {
		if body.BuyXGetY == nil {
			return "buyXGetY is required for BUY_X_GET_Y coupons"
		}
		if body.BuyXGetY.BuyQuantity <= 0 || body.BuyXGetY.GetQuantity <= 0 {
			return "buyXGetY quantities must be positive"
		}
	}
	return ""
}

func toCoupon(body *adminCouponRequest, now time.Time) *coupon.Coupon {
	c := &coupon.Coupon{
		Code:                   coupon.NormalizeCode(body.Code),
		DiscountType:           coupon.DiscountType(body.DiscountType),
		DiscountValue:          decimal.NewFromFloat(body.DiscountValue),
		MinItems:               body.MinItems,
		StartAt:                now,
		ExpiresAt:              body.ExpiresAt,
		TotalUsesLimit:         body.TotalUsesLimit,
		UsesPerCustomerLimit:   body.UsesPerCustomerLimit,
		ApplicableTo:           coupon.ScopeAll,
		ProductIDs:             body.ProductIDs,
		CategoryIDs:            body.CategoryIDs,
		ExcludedProductIDs:     body.ExcludedProductIDs,
		RequiresAuthentication: body.RequiresAuthentication,
		IsFirstOrderOnly:       body.IsFirstOrderOnly,
		AllowedCustomerEmails:  body.AllowedCustomerEmails,
		IsActive:               true,
	}
	if body.StartAt != nil {
		c.StartAt = *body.StartAt
	}
	if body.ApplicableTo != "" {
		c.ApplicableTo = coupon.ApplicableTo(body.ApplicableTo)
	}
	if body.IsActive != nil {
		c.IsActive = *body.IsActive
	}
	if v := body.MaxDiscountAmount; v != nil {
		d := decimal.NewFromFloat(*v)
		c.MaxDiscountAmount = &d
	}
	if v := body.MinOrderValue; v != nil {
		d := decimal.NewFromFloat(*v)
		c.MinOrderValue = &d
	}
	if v := body.MaxOrderValue; v != nil {
		d := decimal.NewFromFloat(*v)
		c.MaxOrderValue = &d
	}
	if b := body.BuyXGetY; b != nil {
		c.BuyXGetY = &coupon.BuyXGetY{
			BuyQuantity:        b.BuyQuantity,
			GetQuantity:        b.GetQuantity,
			EligibleProductIDs: b.EligibleProductIDs,
			MaxSets:            b.MaxSets,
		}
	}
	return c
}
