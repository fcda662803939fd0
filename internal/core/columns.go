package core

import "strconv"

// Spreadsheet column names. Headers are matched case-insensitively.
const (
	ColListingRef = "LISTING_REF"

	ColName        = "NAME"
	ColDescription = "DESCRIPTION"
	ColCondition   = "CONDITION"
	ColPackaging   = "PACKAGING"
	ColPalletCount = "PALLET_COUNT"
	ColBrand       = "BRAND"

	ColLength = "LENGTH"
	ColWidth  = "WIDTH"
	ColHeight = "HEIGHT"
	ColWeight = "WEIGHT"

	ColAddressLine1 = "ADDRESS_LINE1"
	ColAddressLine2 = "ADDRESS_LINE2"
	ColCity         = "CITY"
	ColState        = "STATE"
	ColZip          = "ZIP"
	ColCountry      = "COUNTRY"
	ColShippingType = "SHIPPING_TYPE"

	ColStartingBid  = "STARTING_BID"
	ColReservePrice = "RESERVE_PRICE"
	ColBuyNowPrice  = "BUY_NOW_PRICE"
	ColStartDate    = "START_DATE"
	ColEndDate      = "END_DATE"

	ColPrice            = "PRICE"
	ColRetailValue      = "ESTIMATED_RETAIL_VALUE"
	ColUnitCount        = "UNIT_COUNT"
	ColMinOrderQuantity = "MIN_ORDER_QUANTITY"

	ColVisibilityBuyerSegment = "VISIBILITY_BUYER_SEGMENT"
	ColVisibilityStates       = "VISIBILITY_STATES"
	ColVisibilityCountries    = "VISIBILITY_COUNTRIES"
	ColVisibilityZips         = "VISIBILITY_ZIPS"
	ColVisibilityCities       = "VISIBILITY_CITIES"

	ColSKU         = "SKU"
	ColParentSKU   = "PARENT_SKU"
	ColIsParent    = "IS_PARENT"
	ColQuantity    = "QUANTITY"
	ColRetailPrice = "RETAIL_PRICE"
	ColColor       = "COLOR"
	ColSize        = "SIZE"
	ColUPC         = "UPC"
	ColModel       = "MODEL"

	ColImage = "IMAGE"

	// MaxImageColumns is the highest numbered IMAGEn column read.
	MaxImageColumns = 6

	// MaxCategoryLevels is the depth of the CATEGORYn chain.
	MaxCategoryLevels = 5
)

// ImageColumns returns IMAGE followed by IMAGE1..IMAGE6.
func ImageColumns() []string {
	cols := []string{ColImage}
	for i := 1; i <= MaxImageColumns; i++ {
		cols = append(cols, ColImage+strconv.Itoa(i))
	}
	return cols
}

// CategoryColumn returns CATEGORYn for level n (1-based).
func CategoryColumn(n int) string {
	return "CATEGORY" + strconv.Itoa(n)
}
