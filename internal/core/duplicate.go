package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ListingFingerprint holds the fields that identify a listing's content.
// Category, Condition and Packaging are resolved codes, not seller labels.
type ListingFingerprint struct {
	Title       string
	Description string
	Category    string
	Subcategory string
	Condition   string
	Packaging   string
}

// Digest returns the SHA-256 hex digest of the lower-cased, trimmed fields
// joined with "|".
func Digest(f ListingFingerprint) string {
	parts := []string{f.Title, f.Description, f.Category, f.Subcategory, f.Condition, f.Packaging}
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns the digest input of l.
func (l *ListingRecord) Fingerprint() ListingFingerprint {
	return ListingFingerprint{
		Title:       l.Title,
		Description: l.Description,
		Category:    l.Category(),
		Subcategory: l.Subcategory(),
		Condition:   l.Condition,
		Packaging:   l.Packaging,
	}
}

// duplicateStatuses are the listing statuses a new listing may collide with.
var duplicateStatuses = []string{StatusActive, StatusDraft}

// DuplicateDetector looks up earlier listings with the same digest.
type DuplicateDetector struct {
	q Queries
}

// NewDuplicateDetector creates a detector reading through q.
func NewDuplicateDetector(q Queries) *DuplicateDetector {
	return &DuplicateDetector{q: q}
}

// Check returns the most recent active or draft listing of sellerID with
// digest, or nil when there is none.
func (d *DuplicateDetector) Check(ctx context.Context, sellerID uuid.UUID, digest string) (*ExistingListing, error) {
	existing, err := d.q.FindDuplicateListing(ctx, sellerID, digest, duplicateStatuses)
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}
	return existing, nil
}

// CheckListing fails with a *DuplicateDetectedError when l collides with an
// earlier listing.
func (d *DuplicateDetector) CheckListing(ctx context.Context, l *ListingRecord) error {
	existing, err := d.Check(ctx, l.SellerID, l.DuplicateCheckHash)
	if err != nil {
		return err
	}
	if existing != nil {
		return &DuplicateDetectedError{Row: l.SourceRow, Digest: l.DuplicateCheckHash, Existing: *existing}
	}
	return nil
}
