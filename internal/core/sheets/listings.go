package sheets

import (
	"github.com/JonMunkholm/listing-import/internal/core"
	"github.com/JonMunkholm/listing-import/internal/labels"
)

func init() {
	registerAuctionListing()
	registerLotListing()
	registerCatalogListing()
}

func registerAuctionListing() {
	fields := listingFields()
	fields = append(fields,
		core.FieldSpec{Name: core.ColStartingBid, Type: core.FieldNumeric, Required: true},
		core.FieldSpec{Name: core.ColReservePrice, Type: core.FieldNumeric},
		core.FieldSpec{Name: core.ColBuyNowPrice, Type: core.FieldNumeric},
		core.FieldSpec{Name: core.ColStartDate, Type: core.FieldDate},
		core.FieldSpec{Name: core.ColEndDate, Type: core.FieldDate, Required: true},
	)

	core.Register(core.SheetSchema{
		Kind:   core.SheetAuctionListing,
		Label:  "Auction Listings",
		Fields: fields,
		Rules: []core.RowRule{
			palletsRequireCount,
			endAfterStart,
			notBelow(core.ColReservePrice, core.ColStartingBid),
			notBelow(core.ColBuyNowPrice, core.ColStartingBid),
		},
		BatchRules: []core.BatchRule{uniqueWithin(core.ColListingRef, "")},
	})
}

func registerLotListing() {
	fields := listingFields()
	fields = append(fields,
		core.FieldSpec{Name: core.ColPrice, Type: core.FieldNumeric, Required: true},
		core.FieldSpec{Name: core.ColRetailValue, Type: core.FieldNumeric},
		core.FieldSpec{Name: core.ColUnitCount, Type: core.FieldInteger},
	)

	core.Register(core.SheetSchema{
		Kind:   core.SheetLotListing,
		Label:  "Lot Listings",
		Fields: fields,
		Rules: []core.RowRule{
			palletsRequireCount,
			paired(core.ColRetailValue, core.ColUnitCount),
		},
		BatchRules: []core.BatchRule{uniqueWithin(core.ColListingRef, "")},
	})
}

func registerCatalogListing() {
	fields := listingFields()
	fields = append(fields,
		core.FieldSpec{Name: core.ColMinOrderQuantity, Type: core.FieldInteger},
	)

	core.Register(core.SheetSchema{
		Kind:       core.SheetCatalogListing,
		Label:      "Catalog Listings",
		Fields:     fields,
		Rules:      []core.RowRule{palletsRequireCount},
		BatchRules: []core.BatchRule{uniqueWithin(core.ColListingRef, "")},
	})
}

// listingFields are the columns shared by every listing sheet.
func listingFields() []core.FieldSpec {
	fields := []core.FieldSpec{
		{Name: core.ColListingRef, Type: core.FieldText, MaxLen: 64},
		{Name: core.ColName, Type: core.FieldText, Required: true, MaxLen: 200},
		{Name: core.ColDescription, Type: core.FieldText, MaxLen: 10000},
		{Name: core.CategoryColumn(1), Type: core.FieldEnum, Required: true, Enum: labels.Category},
	}
	for i := 2; i <= core.MaxCategoryLevels; i++ {
		fields = append(fields, core.FieldSpec{Name: core.CategoryColumn(i), Type: core.FieldText, MaxLen: 100})
	}

	fields = append(fields,
		core.FieldSpec{Name: core.ColCondition, Type: core.FieldEnum, Required: true, Enum: labels.Condition},
		core.FieldSpec{Name: core.ColPackaging, Type: core.FieldEnum, Required: true, Enum: labels.Packaging},
		core.FieldSpec{Name: core.ColPalletCount, Type: core.FieldInteger},
		core.FieldSpec{Name: core.ColLength, Type: core.FieldNumeric, NonNegative: true},
		core.FieldSpec{Name: core.ColWidth, Type: core.FieldNumeric, NonNegative: true},
		core.FieldSpec{Name: core.ColHeight, Type: core.FieldNumeric, NonNegative: true},
		core.FieldSpec{Name: core.ColWeight, Type: core.FieldNumeric, NonNegative: true},
		core.FieldSpec{Name: core.ColBrand, Type: core.FieldText, MaxLen: 100},
		core.FieldSpec{Name: core.ColAddressLine1, Type: core.FieldText, MaxLen: 200},
		core.FieldSpec{Name: core.ColAddressLine2, Type: core.FieldText, MaxLen: 200},
		core.FieldSpec{Name: core.ColCity, Type: core.FieldText, MaxLen: 100},
		core.FieldSpec{Name: core.ColState, Type: core.FieldText, MaxLen: 100},
		core.FieldSpec{Name: core.ColZip, Type: core.FieldText, MaxLen: 20},
		core.FieldSpec{Name: core.ColCountry, Type: core.FieldText, MaxLen: 100},
		core.FieldSpec{Name: core.ColShippingType, Type: core.FieldEnum, Enum: labels.ShippingType},
		core.FieldSpec{Name: core.ColVisibilityBuyerSegment, Type: core.FieldList, Enum: labels.BuyerSegment},
		core.FieldSpec{Name: core.ColVisibilityStates, Type: core.FieldList},
		core.FieldSpec{Name: core.ColVisibilityCountries, Type: core.FieldList},
		core.FieldSpec{Name: core.ColVisibilityZips, Type: core.FieldList},
		core.FieldSpec{Name: core.ColVisibilityCities, Type: core.FieldList},
	)
	return append(fields, imageFields()...)
}

func imageFields() []core.FieldSpec {
	cols := core.ImageColumns()
	fields := make([]core.FieldSpec, len(cols))
	for i, col := range cols {
		fields[i] = core.FieldSpec{Name: col, Type: core.FieldURL}
	}
	return fields
}
