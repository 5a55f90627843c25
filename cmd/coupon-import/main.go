// Command coupon-import bulk-loads coupon definitions for one tenant from
// gzip-compressed CSV files. Rows are code,discount_type,value[,expires_at];
// expires_at is RFC3339. Codes already seen in this run or already present in
// the store are skipped.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
)

// row is one parsed coupon definition from a CSV line.
type row struct {
	code         string
	discountType string
	value        string
	expiresAt    string
}

func main() {
	var (
		dataDir     string
		tenantID    string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.csv.gz coupon files")
	flag.StringVar(&tenantID, "tenant", "", "tenant to import coupons into")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" || tenantID == "" {
		slog.Error("tenant and database URL are required: set -tenant and -database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, tenantID, databaseURL); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, dataDir, tenantID, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.csv.gz"))
	if err != nil {
		return errors.Wrap(err, "list data files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.csv.gz files in %s", dataDir)
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	store := repository.NewStore(pool)

	// Cross-file dedupe: the filter may rarely flag a fresh code as seen, in
	// which case the store's unique index is the backstop anyway.
	var (
		seenMu sync.Mutex
		seen   = bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	)

	rows := make(chan row)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return writeCoupons(ctx, store, tenantID, rows, seen, &seenMu)
	})
	g.Go(func() error {
		defer close(rows)
		parsers, parseCtx := errgroup.WithContext(ctx)
		for _, f := range files {
			parsers.Go(streamFile(parseCtx, f, rows))
		}
		return parsers.Wait()
	})

	return g.Wait()
}

// streamFile parses one gzip CSV file and sends its rows downstream.
func streamFile(ctx context.Context, path string, out chan<- row) func() error {
	return func() error {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer func() { _ = f.Close() }()

		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()

		reader := csv.NewReader(gz)
		reader.FieldsPerRecord = -1
		var count uint64

		for {
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				slog.Info("file complete", slog.String("file", path), slog.Uint64("rows", count))
				return nil
			}
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
			if len(record) < 3 {
				continue
			}

			r := row{
				code:         record[0],
				discountType: strings.ToUpper(strings.TrimSpace(record[1])),
				value:        strings.TrimSpace(record[2]),
			}
			if len(record) > 3 {
				r.expiresAt = strings.TrimSpace(record[3])
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("progress", slog.String("file", path), slog.Uint64("rows", count))
			}

			select {
			case out <- r:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// writeCoupons drains parsed rows and inserts unseen codes for the tenant.
func writeCoupons(
	ctx context.Context,
	store *repository.Store,
	tenantID string,
	rows <-chan row,
	seen *bloom.BloomFilter,
	seenMu *sync.Mutex,
) error {
	var written, skipped int

	for r := range rows {
		code := coupon.NormalizeCode(r.code)
		if code == "" {
			continue
		}

		seenMu.Lock()
		dup := seen.TestAndAddString(code)
		seenMu.Unlock()
		if dup {
			skipped++
			continue
		}

		value, err := decimal.NewFromString(r.value)
		if err != nil {
			return errors.Wrapf(err, "parse value for code %s", code)
		}

		now := time.Now().UTC()
		c := &coupon.Coupon{
			ID:            uuid.New().String(),
			Code:          code,
			DiscountType:  coupon.DiscountType(r.discountType),
			DiscountValue: value,
			StartAt:       now,
			ApplicableTo:  coupon.ScopeAll,
			IsActive:      true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if r.expiresAt != "" {
			t, err := time.Parse(time.RFC3339, r.expiresAt)
			if err != nil {
				return errors.Wrapf(err, "parse expires_at for code %s", code)
			}
			c.ExpiresAt = &t
		}

		if err := store.Create(ctx, tenantID, c); err != nil {
			if errors.Is(err, coupon.ErrDuplicateCode) {
				skipped++
				continue
			}
			return errors.Wrapf(err, "insert coupon %s", code)
		}
		written++

		if written%progressEvery == 0 {
			slog.Info("write progress", slog.Int("written", written), slog.Int("skipped", skipped))
		}
	}

	slog.Info("write complete", slog.Int("written", written), slog.Int("skipped", skipped))
	return nil
}
