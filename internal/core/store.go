package core

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/listing-import/internal/media"
)

// Store runs units of work against the relational store.
//
// InTx calls fn inside one transaction and commits if fn returns nil. When
// fn fails the transaction is rolled back and fn's error is returned as is,
// unless the rollback itself failed, in which case a *TransactionError with
// RolledBack=false wraps both. Begin and commit failures are reported as
// *TransactionError.
//
// The Queries handed to fn must only be used from the goroutine running fn.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, q Queries) error) error
}

// Queries are the writes and lookups an import performs inside a
// transaction.
type Queries interface {
	InsertImages(ctx context.Context, sellerID uuid.UUID, assets []media.Asset) error

	FindBrandsByKey(ctx context.Context, keys []string) ([]Brand, error)
	// InsertBrandsSkipExisting inserts brands whose key is not yet taken
	// and returns how many rows were inserted.
	InsertBrandsSkipExisting(ctx context.Context, brands []Brand) (int, error)
	InsertAddress(ctx context.Context, sellerID uuid.UUID, addr Address) (uuid.UUID, error)

	// FindDuplicateListing returns the most recent listing of the seller
	// with digest in one of statuses, or nil.
	FindDuplicateListing(ctx context.Context, sellerID uuid.UUID, digest string, statuses []string) (*ExistingListing, error)

	InsertListing(ctx context.Context, l *ListingRecord) error
	InsertManifestItems(ctx context.Context, items []ManifestItem) error
	InsertProduct(ctx context.Context, p *ProductRecord) error
	LinkListingImages(ctx context.Context, listingID uuid.UUID, links []ImageLink) error
	LinkProductImages(ctx context.Context, productID uuid.UUID, links []ImageLink) error
	InsertVisibilityRules(ctx context.Context, rules []VisibilityRule) error
}

// MediaProcessor turns image URLs into uploaded assets.
type MediaProcessor interface {
	Process(ctx context.Context, req media.Request) ([]media.Asset, error)
	BatchSize() int
}

// ObjectDeleter removes uploaded objects during compensating cleanup.
type ObjectDeleter interface {
	Delete(ctx context.Context, keys []string) (int, error)
}

// AuctionScheduler arms the trigger that closes an auction. Failures are
// logged by the caller and never fail an import.
type AuctionScheduler interface {
	ScheduleAuctionEnd(ctx context.Context, listingID uuid.UUID, endsAt time.Time) error
}

// ProgressSink receives progress snapshots. Implementations must not block
// for long and handle their own errors.
type ProgressSink interface {
	Update(ctx context.Context, p ImportProgress)
}
