package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

const (
	couponColumns = `id, code, discount_type, discount_value, max_discount_amount,
		min_order_value, max_order_value, min_items, start_at, expires_at,
		total_uses_limit, used_count, uses_per_customer_limit,
		applicable_to, product_ids, category_ids, excluded_product_ids,
		requires_authentication, is_first_order_only, allowed_customer_emails,
		buy_quantity, get_quantity, eligible_product_ids, max_sets,
		is_active, created_at, updated_at`

	findCouponByCodeSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE tenant_id = $1 AND UPPER(code) = $2`

	findCouponByIDSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE tenant_id = $1 AND id = $2`

	insertCouponSQL = `INSERT INTO coupons (tenant_id, ` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)`

	updateCouponSQL = `UPDATE coupons SET
		code = $3, discount_type = $4, discount_value = $5, max_discount_amount = $6,
		min_order_value = $7, max_order_value = $8, min_items = $9,
		start_at = $10, expires_at = $11, total_uses_limit = $12,
		uses_per_customer_limit = $13, applicable_to = $14, product_ids = $15,
		category_ids = $16, excluded_product_ids = $17,
		requires_authentication = $18, is_first_order_only = $19,
		allowed_customer_emails = $20, buy_quantity = $21, get_quantity = $22,
		eligible_product_ids = $23, max_sets = $24, is_active = $25,
		updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`

	// Guarded increment: the WHERE clause is the data-layer enforcement of the
	// total uses limit, so concurrent redemptions can never push used_count
	// past it. total_uses_limit = 0 means unlimited.
	incrementUsedCountSQL = `UPDATE coupons
		SET used_count = used_count + 1, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
			AND (total_uses_limit = 0 OR used_count < total_uses_limit)
		RETURNING used_count`

	couponExistsSQL = `SELECT EXISTS (
		SELECT 1 FROM coupons WHERE tenant_id = $1 AND id = $2)`

	listCouponCodesSQL = `SELECT code FROM coupons WHERE tenant_id = $1`
)

// uniqueViolation is the PostgreSQL error code for unique constraint failures.
const uniqueViolation = "23505"

var _ coupon.Store = (*Store)(nil)

// Store implements coupon.Store backed by PostgreSQL. Coupon definition
// methods live in this file; the usage ledger methods are in usage.go.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store that uses the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// FindByCode looks up a coupon by its normalized code within a tenant.
// Returns coupon.ErrNotFound when no coupon matches.
func (s *Store) FindByCode(ctx context.Context, tenantID, code string) (*coupon.Coupon, error) {
	return s.findOne(ctx, findCouponByCodeSQL, tenantID, coupon.NormalizeCode(code))
}

// FindByID looks up a coupon by its identifier within a tenant.
// Returns coupon.ErrNotFound when no coupon matches.
func (s *Store) FindByID(ctx context.Context, tenantID, id string) (*coupon.Coupon, error) {
	return s.findOne(ctx, findCouponByIDSQL, tenantID, id)
}

func (s *Store) findOne(ctx context.Context, sql string, args ...any) (*coupon.Coupon, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("finding coupon: %w", err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon: %w", err)
	}
	return &c, nil
}

// Create inserts a new coupon definition. The code is normalized before
// storage. Returns coupon.ErrDuplicateCode when the code is already taken
// within the tenant.
func (s *Store) Create(ctx context.Context, tenantID string, c *coupon.Coupon) error {
	c.Code = coupon.NormalizeCode(c.Code)
	_, err := s.pool.Exec(ctx, insertCouponSQL, couponArgs(tenantID, c)...)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrDuplicateCode
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Update rewrites a coupon definition. used_count is deliberately not
// touched: only the guarded increment mutates it. Code uniqueness is
// re-checked by the same index that guards Create.
func (s *Store) Update(ctx context.Context, tenantID string, c *coupon.Coupon) error {
	c.Code = coupon.NormalizeCode(c.Code)
	tag, err := s.pool.Exec(ctx, updateCouponSQL, updateArgs(tenantID, c)...)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrDuplicateCode
		}
		return fmt.Errorf("updating coupon %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// IncrementUsedCount atomically increments the coupon's used count unless that
// would exceed its total uses limit. It returns the post-increment count and
// whether the increment was accepted.
func (s *Store) IncrementUsedCount(ctx context.Context, tenantID, id string) (int, bool, error) {
	return incrementUsedCount(ctx, s.pool, tenantID, id)
}

// ListCodes returns every coupon code for the tenant, used to warm the code
// prefilter at startup.
func (s *Store) ListCodes(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, listCouponCodesSQL, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing coupon codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("listing coupon codes: %w", err)
	}
	return codes, nil
}

// querier abstracts pool vs transaction so the guarded increment can run
// inside the usage-recording transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func incrementUsedCount(ctx context.Context, q querier, tenantID, id string) (int, bool, error) {
	var newCount int
	err := q.QueryRow(ctx, incrementUsedCountSQL, tenantID, id).Scan(&newCount)
	if err == nil {
		return newCount, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("incrementing used count for coupon %q: %w", id, err)
	}

	// No row updated: either the coupon is gone or the limit is exhausted.
	var exists bool
	if err := q.QueryRow(ctx, couponExistsSQL, tenantID, id).Scan(&exists); err != nil {
		return 0, false, fmt.Errorf("checking coupon %q: %w", id, err)
	}
	if !exists {
		return 0, false, coupon.ErrNotFound
	}
	return 0, false, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func couponArgs(tenantID string, c *coupon.Coupon) []any {
	var buyQty, getQty, maxSets *int
	var eligible []string
	if b := c.BuyXGetY; b != nil {
		buyQty, getQty, maxSets = &b.BuyQuantity, &b.GetQuantity, &b.MaxSets
		eligible = b.EligibleProductIDs
	}
	return []any{
		tenantID, c.ID, c.Code, string(c.DiscountType), c.DiscountValue,
		c.MaxDiscountAmount, c.MinOrderValue, c.MaxOrderValue, c.MinItems,
		c.StartAt, c.ExpiresAt, c.TotalUsesLimit, c.UsedCount,
		c.UsesPerCustomerLimit, string(c.ApplicableTo), c.ProductIDs,
		c.CategoryIDs, c.ExcludedProductIDs, c.RequiresAuthentication,
		c.IsFirstOrderOnly, c.AllowedCustomerEmails,
		buyQty, getQty, eligible, maxSets,
		c.IsActive, c.CreatedAt, c.UpdatedAt,
	}
}

func updateArgs(tenantID string, c *coupon.Coupon) []any {
	var buyQty, getQty, maxSets *int
	var eligible []string
	if b := c.BuyXGetY; b != nil {
		buyQty, getQty, maxSets = &b.BuyQuantity, &b.GetQuantity, &b.MaxSets
		eligible = b.EligibleProductIDs
	}
	return []any{
		tenantID, c.ID, c.Code, string(c.DiscountType), c.DiscountValue,
		c.MaxDiscountAmount, c.MinOrderValue, c.MaxOrderValue, c.MinItems,
		c.StartAt, c.ExpiresAt, c.TotalUsesLimit, c.UsesPerCustomerLimit,
		string(c.ApplicableTo), c.ProductIDs, c.CategoryIDs,
		c.ExcludedProductIDs, c.RequiresAuthentication, c.IsFirstOrderOnly,
		c.AllowedCustomerEmails, buyQty, getQty, eligible, maxSets, c.IsActive,
	}
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		applicableTo string
		maxDiscount  *decimal.Decimal
		minOrder     *decimal.Decimal
		maxOrder     *decimal.Decimal
		expiresAt    *time.Time
		buyQty       *int
		getQty       *int
		eligible     []string
		maxSets      *int
	)
	err := row.Scan(
		&c.ID, &c.Code, &discountType, &c.DiscountValue, &maxDiscount,
		&minOrder, &maxOrder, &c.MinItems, &c.StartAt, &expiresAt,
		&c.TotalUsesLimit, &c.UsedCount, &c.UsesPerCustomerLimit,
		&applicableTo, &c.ProductIDs, &c.CategoryIDs, &c.ExcludedProductIDs,
		&c.RequiresAuthentication, &c.IsFirstOrderOnly, &c.AllowedCustomerEmails,
		&buyQty, &getQty, &eligible, &maxSets,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	c.ApplicableTo = coupon.ApplicableTo(applicableTo)
	c.MaxDiscountAmount = maxDiscount
	c.MinOrderValue = minOrder
	c.MaxOrderValue = maxOrder
	c.ExpiresAt = expiresAt
	if buyQty != nil && getQty != nil {
		b := &coupon.BuyXGetY{
			BuyQuantity:        *buyQty,
			GetQuantity:        *getQty,
			EligibleProductIDs: eligible,
		}
		if maxSets != nil {
			b.MaxSets = *maxSets
		}
		c.BuyXGetY = b
	}
	return c, err
}
