package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/listing-import/internal/core"
	"github.com/JonMunkholm/listing-import/internal/media"
)

// Queries implements core.Queries on any DBTX.
type Queries struct {
	db DBTX
}

// New returns Queries bound to db, usually a pgx.Tx.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

var _ core.Queries = (*Queries)(nil)

const insertImage = `
INSERT INTO images (
    id, seller_id, source_url, storage_key, url, format, mime_type, size_bytes,
    width, height, original_key, original_url, original_format, original_size, compressed
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (storage_key) DO NOTHING`

// InsertImages writes image rows in one round trip.
func (q *Queries) InsertImages(ctx context.Context, sellerID uuid.UUID, assets []media.Asset) error {
	if len(assets) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, a := range assets {
		b.Queue(insertImage,
			toPgUUID(a.ID), toPgUUID(sellerID), a.SourceURL, a.Key, a.URL,
			string(a.Format), a.MIMEType, int32(a.Size),
			toPgInt4Value(a.Width), toPgInt4Value(a.Height),
			toPgText(a.OriginalKey), toPgText(a.OriginalURL), toPgText(string(a.OriginalFormat)),
			toPgInt4Value(a.OriginalSize), a.Compressed,
		)
	}
	return execBatch(ctx, q.db, b, "insert images")
}

const findBrandsByKey = `SELECT id, name, key FROM brands WHERE key = ANY($1)`

func (q *Queries) FindBrandsByKey(ctx context.Context, keys []string) ([]core.Brand, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	rows, err := q.db.Query(ctx, findBrandsByKey, keys)
	if err != nil {
		return nil, fmt.Errorf("find brands: %w", err)
	}
	defer rows.Close()

	var out []core.Brand
	for rows.Next() {
		var (
			id pgtype.UUID
			b  core.Brand
		)
		if err := rows.Scan(&id, &b.Name, &b.Key); err != nil {
			return nil, fmt.Errorf("scan brand: %w", err)
		}
		b.ID = uuid.UUID(id.Bytes)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find brands: %w", err)
	}
	return out, nil
}

const insertBrand = `INSERT INTO brands (id, name, key) VALUES ($1, $2, $3) ON CONFLICT (key) DO NOTHING`

// InsertBrandsSkipExisting inserts brands whose key is free. A concurrent
// import that wins the race for a key makes its row skipped, not an error.
func (q *Queries) InsertBrandsSkipExisting(ctx context.Context, brands []core.Brand) (int, error) {
	if len(brands) == 0 {
		return 0, nil
	}
	b := &pgx.Batch{}
	for _, br := range brands {
		b.Queue(insertBrand, toPgUUID(br.ID), br.Name, br.Key)
	}

	res := q.db.SendBatch(ctx, b)
	inserted := 0
	for range brands {
		tag, err := res.Exec()
		if err != nil {
			res.Close()
			return inserted, fmt.Errorf("insert brands: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := res.Close(); err != nil {
		return inserted, fmt.Errorf("insert brands: %w", err)
	}
	return inserted, nil
}

const insertAddress = `
INSERT INTO addresses (id, seller_id, line1, line2, city, state, zip, country)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

func (q *Queries) InsertAddress(ctx context.Context, sellerID uuid.UUID, addr core.Address) (uuid.UUID, error) {
	id := uuid.New()
	_, err := q.db.Exec(ctx, insertAddress,
		toPgUUID(id), toPgUUID(sellerID), addr.Line1, toPgText(addr.Line2), addr.City,
		toPgText(addr.State), toPgText(addr.Zip), toPgText(addr.Country),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert address: %w", err)
	}
	return id, nil
}

const findDuplicateListing = `
SELECT id, public_id, title, status, created_at
FROM listings
WHERE seller_id = $1 AND duplicate_check_hash = $2 AND status = ANY($3)
ORDER BY created_at DESC
LIMIT 1`

func (q *Queries) FindDuplicateListing(ctx context.Context, sellerID uuid.UUID, digest string, statuses []string) (*core.ExistingListing, error) {
	var (
		id        pgtype.UUID
		createdAt pgtype.Timestamptz
		e         core.ExistingListing
	)
	err := q.db.QueryRow(ctx, findDuplicateListing, toPgUUID(sellerID), digest, statuses).
		Scan(&id, &e.PublicID, &e.Title, &e.Status, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find duplicate listing: %w", err)
	}
	e.ID = pgUUIDToString(id)
	e.CreatedAt = createdAt.Time
	return &e, nil
}

const insertListing = `
INSERT INTO listings (
    id, public_id, seller_id, kind, status, title, description,
    category, subcategory, categories, condition, packaging, pallet_count,
    length, width, height, weight,
    price, reserve_price, buy_now_price, retail_value, unit_count, min_order_quantity,
    currency, shipping_type, starts_at, ends_at,
    brand_id, address_id, default_image_id, duplicate_check_hash, source_row
) VALUES (
    $1, $2, $3, $4, $5, $6, $7,
    $8, $9, $10, $11, $12, $13,
    $14, $15, $16, $17,
    $18, $19, $20, $21, $22, $23,
    $24, $25, $26, $27,
    $28, $29, $30, $31, $32
)`

func (q *Queries) InsertListing(ctx context.Context, l *core.ListingRecord) error {
	categories := l.Categories
	if categories == nil {
		categories = []string{}
	}
	_, err := q.db.Exec(ctx, insertListing,
		toPgUUID(l.ID), l.PublicID, toPgUUID(l.SellerID), string(l.Kind), l.Status, l.Title, toPgText(l.Description),
		toPgText(l.Category()), toPgText(l.Subcategory()), categories, toPgText(l.Condition), toPgText(l.Packaging), toPgInt4(l.PalletCount),
		toPgNumeric(l.Length), toPgNumeric(l.Width), toPgNumeric(l.Height), toPgNumeric(l.Weight),
		toPgNumeric(l.Price), toPgNumeric(l.ReservePrice), toPgNumeric(l.BuyNowPrice), toPgNumeric(l.RetailValue),
		toPgInt4(l.UnitCount), toPgInt4(l.MinOrderQuantity),
		l.Currency, toPgText(l.ShippingType), toPgTimestamptz(l.StartsAt), toPgTimestamptz(l.EndsAt),
		toPgUUIDPtr(l.BrandID), toPgUUIDPtr(l.AddressID), toPgUUIDPtr(l.DefaultImageID),
		l.DuplicateCheckHash, int32(l.SourceRow),
	)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

var manifestColumns = []string{
	"id", "listing_id", "sku", "description", "quantity", "retail_price", "currency",
	"condition", "model", "upc", "brand_id", "image_id", "source_row",
}

// InsertManifestItems bulk loads manifest lines with COPY.
func (q *Queries) InsertManifestItems(ctx context.Context, items []core.ManifestItem) error {
	if len(items) == 0 {
		return nil
	}
	_, err := q.db.CopyFrom(ctx, pgx.Identifier{"manifest_items"}, manifestColumns,
		pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
			it := items[i]
			return []any{
				toPgUUID(it.ID), toPgUUID(it.ListingID), toPgText(it.SKU), it.Description,
				toPgInt4(it.Quantity), toPgNumeric(it.RetailPrice), it.Currency,
				toPgText(it.Condition), toPgText(it.Model), toPgText(it.UPC),
				toPgUUIDPtr(it.BrandID), toPgUUIDPtr(it.ImageID), int32(it.SourceRow),
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy manifest items: %w", err)
	}
	return nil
}

const insertProduct = `
INSERT INTO products (
    id, listing_id, parent_id, sku, title, description, is_parent, is_default_variant,
    price, retail_price, currency, quantity, condition, color, size, upc, brand_id, source_row
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

func (q *Queries) InsertProduct(ctx context.Context, p *core.ProductRecord) error {
	_, err := q.db.Exec(ctx, insertProduct,
		toPgUUID(p.ID), toPgUUID(p.ListingID), toPgUUIDPtr(p.ParentID), toPgText(p.SKU), p.Title,
		toPgText(p.Description), p.IsParent, p.IsDefaultVariant,
		toPgNumeric(p.Price), toPgNumeric(p.RetailPrice), p.Currency, toPgInt4(p.Quantity),
		toPgText(p.Condition), toPgText(p.Color), toPgText(p.Size), toPgText(p.UPC),
		toPgUUIDPtr(p.BrandID), int32(p.SourceRow),
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

const (
	linkListingImage = `INSERT INTO listing_images (listing_id, image_id, sort_order, is_default) VALUES ($1, $2, $3, $4)`
	linkProductImage = `INSERT INTO product_images (product_id, image_id, sort_order, is_default) VALUES ($1, $2, $3, $4)`
)

func (q *Queries) LinkListingImages(ctx context.Context, listingID uuid.UUID, links []core.ImageLink) error {
	return q.link(ctx, linkListingImage, listingID, links, "link listing images")
}

func (q *Queries) LinkProductImages(ctx context.Context, productID uuid.UUID, links []core.ImageLink) error {
	return q.link(ctx, linkProductImage, productID, links, "link product images")
}

func (q *Queries) link(ctx context.Context, sql string, ownerID uuid.UUID, links []core.ImageLink, op string) error {
	if len(links) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, l := range links {
		b.Queue(sql, toPgUUID(ownerID), toPgUUID(l.ImageID), int32(l.SortOrder), l.IsDefault)
	}
	return execBatch(ctx, q.db, b, op)
}

var visibilityColumns = []string{"id", "listing_id", "rule_type", "value"}

func (q *Queries) InsertVisibilityRules(ctx context.Context, rules []core.VisibilityRule) error {
	if len(rules) == 0 {
		return nil
	}
	_, err := q.db.CopyFrom(ctx, pgx.Identifier{"listing_visibility"}, visibilityColumns,
		pgx.CopyFromSlice(len(rules), func(i int) ([]any, error) {
			r := rules[i]
			return []any{toPgUUID(r.ID), toPgUUID(r.ListingID), r.Type, r.Value}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy visibility rules: %w", err)
	}
	return nil
}

// execBatch sends b and reports the first failing statement.
func execBatch(ctx context.Context, db DBTX, b *pgx.Batch, op string) error {
	res := db.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := res.Exec(); err != nil {
			res.Close()
			return fmt.Errorf("%s: statement %d: %w", op, i+1, err)
		}
	}
	if err := res.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
