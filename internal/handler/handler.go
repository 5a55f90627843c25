// Package handler exposes the validation engine over HTTP. The surface is
// hand-written on chi; tenant resolution happens upstream and arrives as the
// X-Tenant-ID header.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

// tenantHeader carries the tenant identifier resolved by the upstream
// gateway. Requests without it are rejected before any business logic runs.
const tenantHeader = "X-Tenant-ID"

// AdminStore is the administrative slice of the coupon store used by the
// create/update endpoints.
type AdminStore interface {
	Create(ctx context.Context, tenantID string, c *coupon.Coupon) error
	Update(ctx context.Context, tenantID string, c *coupon.Coupon) error
	FindByID(ctx context.Context, tenantID, id string) (*coupon.Coupon, error)
}

// CodeIndex receives newly created codes so the apply-path prefilter stays
// free of false negatives.
type CodeIndex interface {
	Add(tenantID, code string)
}

// Handler wires the HTTP surface to the domain service, recorder, and store.
type Handler struct {
	service  *coupon.Service
	recorder *coupon.Recorder
	admin    AdminStore
	codes    CodeIndex
}

// NewHandler constructs a Handler with the required domain dependencies.
// codes may be nil when no prefilter is configured.
func NewHandler(service *coupon.Service, recorder *coupon.Recorder, admin AdminStore, codes CodeIndex) *Handler {
	return &Handler{
		service:  service,
		recorder: recorder,
		admin:    admin,
		codes:    codes,
	}
}

// Routes returns the engine's route tree, mounted under /api by the app.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/coupons", func(r chi.Router) {
		r.Post("/apply", h.ApplyCoupon)
		r.Post("/usage", h.RecordUsage)
	})
	r.Route("/admin/coupons", func(r chi.Router) {
		r.Post("/", h.CreateCoupon)
		r.Put("/{couponID}", h.UpdateCoupon)
	})
	return r
}

// errorResponse is the body for transport-level failures (malformed requests,
// missing tenant). Business rejections never use it: they ride the apply
// response with success=false.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(r.Context()).Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg})
}

// tenantID extracts the resolved tenant from the request, writing a 400 and
// returning false when it is absent.
func tenantID(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenant := r.Header.Get(tenantHeader)
	if tenant == "" {
		writeError(w, r, http.StatusBadRequest, "missing "+tenantHeader+" header")
		return "", false
	}
	return tenant, true
}
