package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// defaultLookupTimeout bounds each individual store round-trip on the apply
// path so a slow store degrades to server_error instead of hanging the caller.
const defaultLookupTimeout = 500 * time.Millisecond

// Request is the apply-coupon input. The tenant is passed separately because
// tenant resolution happens outside the engine.
type Request struct {
	Code          string
	CartSubtotal  decimal.Decimal
	Items         []Item
	CustomerEmail string
	CustomerPhone string
}

// Result is the apply-coupon outcome. Business-rule rejections are values,
// never errors: Success is false and ErrorCode/Message describe the rejection.
// Coupon is populated only on success.
type Result struct {
	Success      bool
	Discount     decimal.Decimal
	DiscountType DiscountType
	Message      string
	ErrorCode    Reason
	FreeShipping bool
	FreeItems    []FreeItem
	Coupon       *Coupon
}

// CodePrefilter is an optional negative-lookup cache consulted before the
// store round-trip. Implementations may report false positives but never
// false negatives.
type CodePrefilter interface {
	MayExist(tenantID, code string) bool
}

// Service is the request-facing validation orchestrator. The apply path is
// read-only and safe to call concurrently and repeatedly; all writes happen
// through the Recorder at order finalization.
type Service struct {
	store         Store
	orders        OrderLookup
	prefilter     CodePrefilter
	now           func() time.Time
	lookupTimeout time.Duration
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithPrefilter installs a code prefilter on the apply path.
func WithPrefilter(f CodePrefilter) ServiceOption {
	return func(s *Service) { s.prefilter = f }
}

// WithLookupTimeout overrides the per-lookup store timeout.
func WithLookupTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.lookupTimeout = d }
}

// NewService creates the validation orchestrator.
func NewService(store Store, orders OrderLookup, opts ...ServiceOption) *Service {
	s := &Service{
		store:         store,
		orders:        orders,
		now:           time.Now,
		lookupTimeout: defaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func reject(r Reason) Result {
	return Result{ErrorCode: r, Message: r.Message(), Discount: decimal.Zero}
}

// Apply runs the full validation sequence: normalize the code, load the
// coupon, check eligibility, check cart conditions, gate on first-order
// status, compute the applicable subtotal, and calculate the discount.
// Unknown codes and administratively disabled coupons both come back as
// invalid_code so callers cannot probe which codes exist. Store failures map
// to server_error with no partial state: this path performs no writes.
func (s *Service) Apply(ctx context.Context, tenantID string, req Request) Result {
	code := NormalizeCode(req.Code)
	if code == "" {
		return reject(ReasonMissingCode)
	}

	if s.prefilter != nil && !s.prefilter.MayExist(tenantID, code) {
		return reject(ReasonInvalidCode)
	}

	c, err := s.findCoupon(ctx, tenantID, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return reject(ReasonInvalidCode)
		}
		return s.serverError(ctx, "find coupon", err)
	}

	hasCustomer := req.CustomerEmail != "" || req.CustomerPhone != ""

	customerUses := 0
	if c.UsesPerCustomerLimit > 0 && hasCustomer {
		customerUses, err = s.countCustomerUses(ctx, tenantID, c.ID, req.CustomerEmail, req.CustomerPhone)
		if err != nil {
			return s.serverError(ctx, "count customer uses", err)
		}
	}

	if v := Evaluate(c, s.now(), customerUses, hasCustomer); !v.OK {
		if v.Reason == ReasonInactive {
			// Indistinguishable from an unknown code on purpose.
			return reject(ReasonInvalidCode)
		}
		return reject(v.Reason)
	}

	cart := &Cart{
		Subtotal:      req.CartSubtotal,
		Items:         req.Items,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
	}

	if v := CheckConditions(c, cart); !v.OK {
		return reject(v.Reason)
	}

	if c.IsFirstOrderOnly || c.DiscountType == DiscountFirstOrder {
		status, err := s.resolveFirstOrder(ctx, tenantID, req.CustomerEmail, req.CustomerPhone)
		if err != nil {
			return s.serverError(ctx, "resolve first order", err)
		}
		// Unknown means no identifier was supplied: allow now, the recorder
		// path re-verifies with the identity attached to the order.
		if status == FirstOrderNo {
			return reject(ReasonFirstOrderOnly)
		}
	}

	applicable := ApplicableSubtotal(c, cart)
	if !applicable.IsPositive() {
		return reject(ReasonNoEligibleProducts)
	}

	d, err := Calculate(c, applicable, TotalQuantity(cart.Items))
	if err != nil {
		return s.serverError(ctx, "calculate discount", err)
	}

	return Result{
		Success:      true,
		Discount:     d.Amount,
		DiscountType: c.DiscountType,
		Message:      "Coupon applied",
		FreeShipping: d.FreeShipping,
		FreeItems:    d.FreeItems,
		Coupon:       c,
	}
}

func (s *Service) findCoupon(ctx context.Context, tenantID, code string) (*Coupon, error) {
	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()
	return s.store.FindByCode(ctx, tenantID, code)
}

func (s *Service) countCustomerUses(ctx context.Context, tenantID, couponID, email, phone string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()
	return s.store.CountUsageByCustomer(ctx, tenantID, couponID, email, phone)
}

func (s *Service) resolveFirstOrder(ctx context.Context, tenantID, email, phone string) (FirstOrderStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()
	return ResolveFirstOrder(ctx, s.orders, tenantID, email, phone)
}

func (s *Service) serverError(ctx context.Context, op string, err error) Result {
	zctx.From(ctx).Error("coupon validation store failure",
		zap.String("op", op),
		zap.Error(err),
	)
	return reject(ReasonServerError)
}
