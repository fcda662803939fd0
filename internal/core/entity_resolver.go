package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/listing-import/internal/labels"
)

// EntityResolver resolves brands and creates addresses inside one
// transaction. Its brand cache is only valid for that transaction, so a new
// resolver is created per unit of work.
type EntityResolver struct {
	q        Queries
	sellerID uuid.UUID
	tc       *TransactionContext
	brands   map[string]uuid.UUID
}

// NewEntityResolver creates a resolver bound to q.
func NewEntityResolver(q Queries, sellerID uuid.UUID, tc *TransactionContext) *EntityResolver {
	return &EntityResolver{
		q:        q,
		sellerID: sellerID,
		tc:       tc,
		brands:   make(map[string]uuid.UUID),
	}
}

// BrandKey is the natural key of a brand: lower-cased with whitespace runs
// collapsed.
func BrandKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// PrimeBrands resolves every distinct brand in names with one lookup, one
// bulk insert of the missing ones and one re-query. Another import racing on
// the same names is tolerated: its rows are skipped by the insert and picked
// up by the re-query.
func (r *EntityResolver) PrimeBrands(ctx context.Context, names []string) error {
	wanted := make(map[string]string)
	var keys []string
	for _, name := range names {
		key := BrandKey(name)
		if key == "" {
			continue
		}
		if _, cached := r.brands[key]; cached {
			continue
		}
		if _, seen := wanted[key]; seen {
			continue
		}
		wanted[key] = strings.Join(strings.Fields(name), " ")
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil
	}

	found, err := r.q.FindBrandsByKey(ctx, keys)
	if err != nil {
		return fmt.Errorf("find brands: %w", err)
	}
	for _, b := range found {
		r.brands[b.Key] = b.ID
	}

	var missing []Brand
	var missingKeys []string
	for _, key := range keys {
		if _, ok := r.brands[key]; ok {
			continue
		}
		missing = append(missing, Brand{ID: uuid.New(), Name: wanted[key], Key: key})
		missingKeys = append(missingKeys, key)
	}
	if len(missing) == 0 {
		return nil
	}

	if _, err := r.q.InsertBrandsSkipExisting(ctx, missing); err != nil {
		return fmt.Errorf("insert brands: %w", err)
	}

	created, err := r.q.FindBrandsByKey(ctx, missingKeys)
	if err != nil {
		return fmt.Errorf("re-query brands: %w", err)
	}
	ours := make(map[uuid.UUID]bool, len(missing))
	for _, b := range missing {
		ours[b.ID] = true
	}
	for _, b := range created {
		r.brands[b.Key] = b.ID
		if ours[b.ID] && r.tc != nil {
			r.tc.RecordBrandID(b.ID)
		}
	}

	for _, key := range missingKeys {
		if _, ok := r.brands[key]; !ok {
			return &EntityResolutionError{Entity: "brand", Reason: fmt.Sprintf("brand %q was not found after insert", wanted[key])}
		}
	}
	return nil
}

// ResolveBrand returns the id of the brand called name, creating it when
// needed. A blank name resolves to nil.
func (r *EntityResolver) ResolveBrand(ctx context.Context, name string) (*uuid.UUID, error) {
	key := BrandKey(name)
	if key == "" {
		return nil, nil
	}
	if id, ok := r.brands[key]; ok {
		return &id, nil
	}
	if err := r.PrimeBrands(ctx, []string{name}); err != nil {
		return nil, err
	}
	id := r.brands[key]
	return &id, nil
}

// ResolveAddress creates an address row. Addresses are not shared between
// listings. ok is false when line 1 or the city is missing; the caller
// decides whether that is fatal.
func (r *EntityResolver) ResolveAddress(ctx context.Context, addr Address) (id *uuid.UUID, ok bool, err error) {
	addr = normalizeAddress(addr)
	if addr.Line1 == "" || addr.City == "" {
		return nil, false, nil
	}

	created, err := r.q.InsertAddress(ctx, r.sellerID, addr)
	if err != nil {
		return nil, false, fmt.Errorf("insert address: %w", err)
	}
	if r.tc != nil {
		r.tc.RecordAddressID(created)
	}
	return &created, true, nil
}

func normalizeAddress(a Address) Address {
	return Address{
		Line1:   strings.TrimSpace(a.Line1),
		Line2:   strings.TrimSpace(a.Line2),
		City:    strings.TrimSpace(a.City),
		State:   labels.NormalizeState(a.State),
		Zip:     strings.TrimSpace(a.Zip),
		Country: strings.TrimSpace(a.Country),
	}
}

// cachedBrand returns the id of a brand resolved earlier, or nil. It only
// reads the cache, so it may be called from several goroutines once
// PrimeBrands has returned.
func (r *EntityResolver) cachedBrand(name string) *uuid.UUID {
	id, ok := r.brands[BrandKey(name)]
	if !ok {
		return nil
	}
	return &id
}
