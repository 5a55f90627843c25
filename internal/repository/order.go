package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

// Any prior order counts, matched by exact lowered email, exact phone,
// normalized last-10-digit suffix, or a suffix regex over the stored phone.
// The regex tolerates stored numbers with formatting the digit-strip misses.
const anyOrderExistsSQL = `SELECT EXISTS (
	SELECT 1 FROM orders
	WHERE tenant_id = $1 AND (
		($2 <> '' AND LOWER(customer_email) = $2) OR
		($3 <> '' AND (
			customer_phone = $3 OR
			RIGHT(regexp_replace(customer_phone, '\D', '', 'g'), 10) = $3 OR
			customer_phone ~ ($3 || '$')
		))
	)
)`

var _ coupon.OrderLookup = (*OrderLookup)(nil)

// OrderLookup implements coupon.OrderLookup against the checkout-owned orders
// table. The engine only reads existence; it never writes orders.
type OrderLookup struct {
	pool *pgxpool.Pool
}

// NewOrderLookup returns an OrderLookup that uses the given pool.
func NewOrderLookup(pool *pgxpool.Pool) *OrderLookup {
	return &OrderLookup{pool: pool}
}

// AnyOrderExists reports whether any order in the tenant matches the customer
// identity. email must already be lower-cased and phoneSuffix normalized to
// its last 10 digits (coupon.NormalizePhoneSuffix).
func (l *OrderLookup) AnyOrderExists(ctx context.Context, tenantID, email, phoneSuffix string) (bool, error) {
	var exists bool
	err := l.pool.QueryRow(ctx, anyOrderExistsSQL, tenantID, email, phoneSuffix).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking prior orders: %w", err)
	}
	return exists, nil
}
