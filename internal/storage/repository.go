package storage

import (
	"context"

	"couponbot/internal/domain"
)

// Repository defines the interface for the persistent coupon store.
// This allows us to swap storage implementations (e.g., BadgerDB, PostgreSQL)
// without changing the ingestion logic that uses it.
//
// The barcode is the identity key: the store must never hold two records
// with the same barcode. SaveBatch is atomic relative to one ingestion
// batch; callers are expected to check HasBarcode first and to serialize
// their read-modify-write cycle.
type Repository interface {
	// HasBarcode reports whether a record with the given barcode exists.
	HasBarcode(ctx context.Context, barcode string) (bool, error)

	// SaveBatch persists all records in a single transaction: either
	// every record is written or none are.
	SaveBatch(ctx context.Context, records []domain.CouponRecord) error

	// ListAll returns every record, newest first.
	ListAll(ctx context.Context) ([]domain.CouponRecord, error)

	// ListRecent returns the n newest records.
	ListRecent(ctx context.Context, n int) ([]domain.CouponRecord, error)

	// ListByStore returns all records tagged with the given store, newest first.
	ListByStore(ctx context.Context, store domain.Store) ([]domain.CouponRecord, error)

	// CountByStore aggregates record counts per store tag.
	CountByStore(ctx context.Context) (map[domain.Store]int, error)

	// MarkProcessed records that a chat message has been handled and
	// reports whether this was the first time it was seen.
	MarkProcessed(ctx context.Context, ref domain.MessageRef) (bool, error)

	// Close gracefully shuts down the repository.
	Close() error
}
