package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/listing-import/internal/labels"
	"github.com/JonMunkholm/listing-import/internal/media"
	"github.com/JonMunkholm/listing-import/internal/spreadsheet"
)

// listingDraft is one listing row with its children, converted and ready
// for the media and transaction phases.
type listingDraft struct {
	row       spreadsheet.Row
	ref       string
	file      string
	childFile string

	listing    ListingRecord
	brand      string
	address    Address
	imageURLs  []string
	visibility []VisibilityRule

	manifest []manifestDraft
	products []productDraft

	tc       *TransactionContext
	assets   []media.Asset
	warnings []Warning
	cleaned  bool
}

type manifestDraft struct {
	item      ManifestItem
	brand     string
	imageURLs []string
}

type productDraft struct {
	rec       ProductRecord
	parentSKU string
	brand     string
	imageURLs []string
}

// allURLs lists the listing images first, then each child's, without
// repeats.
func (d *listingDraft) allURLs() []string {
	urls := append([]string(nil), d.imageURLs...)
	for _, m := range d.manifest {
		urls = append(urls, m.imageURLs...)
	}
	for _, p := range d.products {
		urls = append(urls, p.imageURLs...)
	}
	return media.DistinctURLs(urls)
}

func (d *listingDraft) brandNames() []string {
	names := []string{d.brand}
	for _, m := range d.manifest {
		names = append(names, m.brand)
	}
	for _, p := range d.products {
		names = append(names, p.brand)
	}
	return names
}

// draftBuilder converts validated rows to drafts. Conversion problems that
// validation cannot see, such as a child row pointing at an unknown
// listing, are collected as violations.
type draftBuilder struct {
	req        ImportRequest
	currency   string
	violations []Violation
}

func (b *draftBuilder) fail(file string, row int, field, reason string) {
	b.violations = append(b.violations, Violation{File: file, Row: row, Field: field, Reason: reason})
}

func (b *draftBuilder) build(listings, children *spreadsheet.Result) []*listingDraft {
	drafts := make([]*listingDraft, 0, len(listings.Rows))
	byRef := make(map[string]*listingDraft)

	for _, row := range listings.Rows {
		d := b.listing(listings, row)
		drafts = append(drafts, d)
		if d.ref != "" {
			byRef[strings.ToUpper(d.ref)] = d
		}
	}

	if children == nil {
		return drafts
	}

	childFile := ""
	if b.req.Children != nil {
		childFile = b.req.Children.Name
	}

	for _, row := range children.Rows {
		ref := cellValue(row, ColListingRef)
		var owner *listingDraft
		switch {
		case ref != "":
			owner = byRef[strings.ToUpper(ref)]
			if owner == nil {
				b.fail(childFile, row.Index, ColListingRef, fmt.Sprintf("no listing with %s %q", ColListingRef, ref))
				continue
			}
		case len(drafts) == 1:
			owner = drafts[0]
		default:
			b.fail(childFile, row.Index, ColListingRef, "required when the listing sheet has more than one row")
			continue
		}

		owner.childFile = childFile
		if b.req.Kind == KindCatalog {
			owner.products = append(owner.products, b.product(children, row, childFile))
		} else {
			owner.manifest = append(owner.manifest, b.manifestItem(children, row, childFile))
		}
	}
	return drafts
}

func (b *draftBuilder) listing(res *spreadsheet.Result, row spreadsheet.Row) *listingDraft {
	file := b.req.Listings.Name
	status := StatusDraft
	if b.req.Publish {
		status = StatusActive
	}

	l := ListingRecord{
		ID:           uuid.New(),
		PublicID:     newPublicID(),
		SellerID:     b.req.SellerID,
		Kind:         b.req.Kind,
		Status:       status,
		Title:        cellValue(row, ColName),
		Description:  cellValue(row, ColDescription),
		Categories:   categories(row),
		Condition:    code(labels.Condition, row, ColCondition),
		Packaging:    code(labels.Packaging, row, ColPackaging),
		ShippingType: code(labels.ShippingType, row, ColShippingType),
		Currency:     b.currency,
		SourceRow:    row.Index,
	}

	l.PalletCount = b.optionalInt(file, row, ColPalletCount)
	l.Length = b.optionalNumber(file, row, ColLength)
	l.Width = b.optionalNumber(file, row, ColWidth)
	l.Height = b.optionalNumber(file, row, ColHeight)
	l.Weight = b.optionalNumber(file, row, ColWeight)

	switch b.req.Kind {
	case KindAuction:
		l.Price = b.money(res, row, file, ColStartingBid, &l.Currency)
		l.ReservePrice = b.money(res, row, file, ColReservePrice, nil)
		l.BuyNowPrice = b.money(res, row, file, ColBuyNowPrice, nil)
		l.StartsAt = optionalDate(row, ColStartDate)
		l.EndsAt = optionalDate(row, ColEndDate)
	case KindLot:
		l.Price = b.money(res, row, file, ColPrice, &l.Currency)
		l.RetailValue = b.money(res, row, file, ColRetailValue, nil)
		l.UnitCount = b.optionalInt(file, row, ColUnitCount)
	case KindCatalog:
		l.MinOrderQuantity = b.optionalInt(file, row, ColMinOrderQuantity)
	}

	l.DuplicateCheckHash = Digest(l.Fingerprint())

	return &listingDraft{
		row:     row,
		ref:     cellValue(row, ColListingRef),
		file:    file,
		listing: l,
		brand:   cellValue(row, ColBrand),
		address: Address{
			Line1:   cellValue(row, ColAddressLine1),
			Line2:   cellValue(row, ColAddressLine2),
			City:    cellValue(row, ColCity),
			State:   cellValue(row, ColState),
			Zip:     cellValue(row, ColZip),
			Country: cellValue(row, ColCountry),
		},
		imageURLs:  imageURLs(row),
		visibility: visibilityRules(row, b.req.Visibility),
		tc:         NewTransactionContext(),
	}
}

func (b *draftBuilder) manifestItem(res *spreadsheet.Result, row spreadsheet.Row, file string) manifestDraft {
	item := ManifestItem{
		ID:          uuid.New(),
		SKU:         cellValue(row, ColSKU),
		Description: cellValue(row, ColDescription),
		Quantity:    b.optionalInt(file, row, ColQuantity),
		Currency:    b.currency,
		Condition:   code(labels.Condition, row, ColCondition),
		Model:       cellValue(row, ColModel),
		UPC:         cellValue(row, ColUPC),
		SourceRow:   row.Index,
	}
	item.RetailPrice = b.money(res, row, file, ColRetailPrice, &item.Currency)

	return manifestDraft{
		item:      item,
		brand:     cellValue(row, ColBrand),
		imageURLs: imageURLs(row),
	}
}

func (b *draftBuilder) product(res *spreadsheet.Result, row spreadsheet.Row, file string) productDraft {
	isParent, _ := ParseBool(cellValue(row, ColIsParent))
	rec := ProductRecord{
		ID:          uuid.New(),
		SKU:         cellValue(row, ColSKU),
		Title:       cellValue(row, ColName),
		Description: cellValue(row, ColDescription),
		IsParent:    isParent,
		Currency:    b.currency,
		Quantity:    b.optionalInt(file, row, ColQuantity),
		Condition:   code(labels.Condition, row, ColCondition),
		Color:       cellValue(row, ColColor),
		Size:        cellValue(row, ColSize),
		UPC:         cellValue(row, ColUPC),
		SourceRow:   row.Index,
	}
	rec.Price = b.money(res, row, file, ColPrice, &rec.Currency)
	rec.RetailPrice = b.money(res, row, file, ColRetailPrice, nil)

	return productDraft{
		rec:       rec,
		parentSKU: cellValue(row, ColParentSKU),
		brand:     cellValue(row, ColBrand),
		imageURLs: imageURLs(row),
	}
}

// money parses a price cell. When currency is non-nil it receives the
// currency resolved for the cell.
func (b *draftBuilder) money(res *spreadsheet.Result, row spreadsheet.Row, file, column string, currency *string) *float64 {
	m, ok, err := ExtractMoney(res, row, column, b.currency)
	if err != nil {
		b.fail(file, row.Index, column, err.Error())
		return nil
	}
	if !ok {
		return nil
	}
	if currency != nil {
		*currency = m.Currency
	}
	return &m.Amount
}

func (b *draftBuilder) optionalNumber(file string, row spreadsheet.Row, column string) *float64 {
	n, err := ParseOptionalNumberWithCurrency(cellValue(row, column))
	if err != nil {
		b.fail(file, row.Index, column, err.Error())
		return nil
	}
	return n
}

func (b *draftBuilder) optionalInt(file string, row spreadsheet.Row, column string) *int {
	n, ok := ParseOptionalInt(cellValue(row, column))
	if !ok {
		b.fail(file, row.Index, column, "invalid number: must be a whole number")
		return nil
	}
	return n
}

func cellValue(row spreadsheet.Row, column string) string {
	return spreadsheet.CleanCell(row.Get(column))
}

func code(t *labels.Table, row spreadsheet.Row, column string) string {
	v := cellValue(row, column)
	if v == "" {
		return ""
	}
	if c, ok := t.Code(v); ok {
		return c
	}
	return labels.Normalize(v)
}

func categories(row spreadsheet.Row) []string {
	var out []string
	if c := code(labels.Category, row, CategoryColumn(1)); c != "" {
		out = append(out, c)
	}
	for i := 2; i <= MaxCategoryLevels; i++ {
		v := cellValue(row, CategoryColumn(i))
		if v == "" {
			break
		}
		out = append(out, v)
	}
	return out
}

func optionalDate(row spreadsheet.Row, column string) *time.Time {
	t, ok := ParseDate(cellValue(row, column))
	if !ok {
		return nil
	}
	return &t
}

func imageURLs(row spreadsheet.Row) []string {
	var urls []string
	for _, col := range ImageColumns() {
		if v := cellValue(row, col); v != "" {
			urls = append(urls, v)
		}
	}
	return urls
}

// visibilityRules reads the VISIBILITY_* columns and appends the request
// level rules, dropping repeats. ListingID and ID are set at insert time.
func visibilityRules(row spreadsheet.Row, extra []VisibilityRule) []VisibilityRule {
	var rules []VisibilityRule
	seen := make(map[string]bool)
	add := func(typ, value string) {
		if value == "" {
			return
		}
		key := typ + "\x00" + value
		if seen[key] {
			return
		}
		seen[key] = true
		rules = append(rules, VisibilityRule{Type: typ, Value: value})
	}

	for _, v := range SplitList(cellValue(row, ColVisibilityBuyerSegment)) {
		if c, ok := labels.BuyerSegment.Code(v); ok {
			add(VisibilityBuyerSegment, c)
		}
	}
	for _, v := range SplitList(cellValue(row, ColVisibilityStates)) {
		add(VisibilityState, labels.NormalizeState(v))
	}
	for _, v := range SplitList(cellValue(row, ColVisibilityCountries)) {
		add(VisibilityCountry, strings.ToUpper(v))
	}
	for _, v := range SplitList(cellValue(row, ColVisibilityZips)) {
		add(VisibilityZip, v)
	}
	for _, v := range SplitList(cellValue(row, ColVisibilityCities)) {
		add(VisibilityCity, v)
	}
	for _, r := range extra {
		add(r.Type, strings.TrimSpace(r.Value))
	}
	return rules
}

// newPublicID returns a short upper-case identifier shown to sellers.
func newPublicID() string {
	return "L-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}
