package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

const (
	usageColumns = `id, tenant_id, coupon_id, coupon_code, order_id,
		customer_id, customer_email, customer_phone,
		discount_applied, order_total, created_at`

	findUsageRecordSQL = `SELECT ` + usageColumns + `
		FROM coupon_usage
		WHERE tenant_id = $1 AND coupon_id = $2 AND order_id = $3`

	insertUsageRecordSQL = `INSERT INTO coupon_usage (` + usageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	countUsageByCustomerSQL = `SELECT COUNT(*) FROM coupon_usage
		WHERE tenant_id = $1 AND coupon_id = $2 AND (
			($3 <> '' AND LOWER(customer_email) = LOWER($3)) OR
			($4 <> '' AND customer_phone = $4)
		)`
)

// FindUsageRecord returns the ledger entry for the given order, or
// coupon.ErrNotFound when none exists.
func (s *Store) FindUsageRecord(ctx context.Context, tenantID, couponID, orderID string) (*coupon.UsageRecord, error) {
	rows, err := s.pool.Query(ctx, findUsageRecordSQL, tenantID, couponID, orderID)
	if err != nil {
		return nil, fmt.Errorf("finding usage record: %w", err)
	}

	rec, err := pgx.CollectExactlyOneRow(rows, scanUsageRecord)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding usage record: %w", err)
	}
	return &rec, nil
}

// CountUsageByCustomer counts ledger entries for the coupon matching the
// customer's email (case-insensitive) or exact phone.
func (s *Store) CountUsageByCustomer(ctx context.Context, tenantID, couponID, email, phone string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, countUsageByCustomerSQL, tenantID, couponID, email, phone).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting usage for coupon %q: %w", couponID, err)
	}
	return count, nil
}

// RecordAtomically inserts the usage record and runs the guarded used-count
// increment in one transaction. Either both writes commit or neither does.
// Returns coupon.ErrDuplicateUsage when the order already has a ledger entry
// and coupon.ErrUsageLimitExhausted when the increment is rejected.
func (s *Store) RecordAtomically(ctx context.Context, rec *coupon.UsageRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin usage transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, insertUsageRecordSQL,
		rec.ID, rec.TenantID, rec.CouponID, rec.CouponCode, rec.OrderID,
		rec.CustomerID, rec.CustomerEmail, rec.CustomerPhone,
		rec.DiscountApplied, rec.OrderTotal, rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrDuplicateUsage
		}
		return fmt.Errorf("inserting usage record for order %q: %w", rec.OrderID, err)
	}

	_, ok, err := incrementUsedCount(ctx, tx, rec.TenantID, rec.CouponID)
	if err != nil {
		return err
	}
	if !ok {
		// Rolling back also discards the inserted record.
		return coupon.ErrUsageLimitExhausted
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit usage transaction: %w", err)
	}
	return nil
}

func scanUsageRecord(row pgx.CollectableRow) (coupon.UsageRecord, error) {
	var rec coupon.UsageRecord
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.CouponID, &rec.CouponCode, &rec.OrderID,
		&rec.CustomerID, &rec.CustomerEmail, &rec.CustomerPhone,
		&rec.DiscountApplied, &rec.OrderTotal, &rec.CreatedAt,
	)
	return rec, err
}
