package sheets

import (
	"github.com/JonMunkholm/listing-import/internal/core"
	"github.com/JonMunkholm/listing-import/internal/labels"
)

func init() {
	registerManifest()
	registerCatalogProduct()
}

func registerManifest() {
	fields := []core.FieldSpec{
		{Name: core.ColListingRef, Type: core.FieldText, MaxLen: 64},
		{Name: core.ColSKU, Type: core.FieldText, MaxLen: 100},
		{Name: core.ColDescription, Type: core.FieldText, Required: true, MaxLen: 2000},
		{Name: core.ColQuantity, Type: core.FieldInteger},
		{Name: core.ColRetailPrice, Type: core.FieldNumeric},
		{Name: core.ColCondition, Type: core.FieldEnum, Enum: labels.Condition},
		{Name: core.ColBrand, Type: core.FieldText, MaxLen: 100},
		{Name: core.ColModel, Type: core.FieldText, MaxLen: 100},
		{Name: core.ColUPC, Type: core.FieldText, MaxLen: 32},
	}

	core.Register(core.SheetSchema{
		Kind:   core.SheetManifest,
		Label:  "Manifest",
		Fields: append(fields, imageFields()...),
		Rules: []core.RowRule{
			paired(core.ColRetailPrice, core.ColQuantity),
		},
	})
}

func registerCatalogProduct() {
	fields := []core.FieldSpec{
		{Name: core.ColListingRef, Type: core.FieldText, MaxLen: 64},
		{Name: core.ColSKU, Type: core.FieldText, Required: true, MaxLen: 100},
		{Name: core.ColParentSKU, Type: core.FieldText, MaxLen: 100},
		{Name: core.ColIsParent, Type: core.FieldBool},
		{Name: core.ColName, Type: core.FieldText, Required: true, MaxLen: 200},
		{Name: core.ColDescription, Type: core.FieldText, MaxLen: 10000},
		// Parents carry no price of their own.
		{Name: core.ColPrice, Type: core.FieldNumeric, Required: true, AllowEmpty: true},
		{Name: core.ColRetailPrice, Type: core.FieldNumeric},
		{Name: core.ColQuantity, Type: core.FieldInteger, NonNegative: true},
		{Name: core.ColCondition, Type: core.FieldEnum, Enum: labels.Condition},
		{Name: core.ColBrand, Type: core.FieldText, MaxLen: 100},
		{Name: core.ColColor, Type: core.FieldText, MaxLen: 50},
		{Name: core.ColSize, Type: core.FieldText, MaxLen: 50},
		{Name: core.ColUPC, Type: core.FieldText, MaxLen: 32},
	}

	core.Register(core.SheetSchema{
		Kind:   core.SheetCatalogProduct,
		Label:  "Catalog Products",
		Fields: append(fields, imageFields()...),
		Rules: []core.RowRule{
			parentConflict,
			priceUnlessParent,
		},
		BatchRules: []core.BatchRule{uniqueWithin(core.ColSKU, core.ColListingRef)},
	})
}
