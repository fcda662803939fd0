// Package labels translates the human-readable enum labels sellers type into
// spreadsheets to the internal codes stored with listings, and back.
//
// Every table is built once at package initialization and is read-only
// afterwards, so lookups are safe from any goroutine.
package labels

import (
	"sort"
	"strings"
	"unicode"
)

// Table is a bidirectional label <-> code lookup.
type Table struct {
	name    string
	toCode  map[string]string
	toLabel map[string]string
}

// NewTable builds a table from code -> label pairs. Codes are stored as
// given; label lookups are normalized with [Normalize], so "Like New",
// "like-new" and "LIKE_NEW" all resolve to the same code.
func NewTable(name string, codeToLabel map[string]string) *Table {
	t := &Table{
		name:    name,
		toCode:  make(map[string]string, len(codeToLabel)*2),
		toLabel: make(map[string]string, len(codeToLabel)),
	}
	for code, label := range codeToLabel {
		t.toLabel[code] = label
		t.toCode[Normalize(label)] = code
		t.toCode[Normalize(code)] = code
	}
	return t
}

// Name returns the table name, used in validation messages.
func (t *Table) Name() string { return t.name }

// Code resolves a seller-supplied label (or code) to its internal code.
func (t *Table) Code(label string) (string, bool) {
	code, ok := t.toCode[Normalize(label)]
	return code, ok
}

// Label returns the display label for an internal code.
func (t *Table) Label(code string) (string, bool) {
	label, ok := t.toLabel[code]
	return label, ok
}

// Codes returns all internal codes in sorted order.
func (t *Table) Codes() []string {
	codes := make([]string, 0, len(t.toLabel))
	for c := range t.toLabel {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Normalize converts free text to UPPER_SNAKE_CASE: letters and digits are
// upper-cased, every run of other characters collapses to one underscore,
// and leading/trailing underscores are dropped. "Like New " -> "LIKE_NEW".
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(unicode.ToUpper(r))
			continue
		}
		pendingSep = true
	}
	return b.String()
}

var (
	// Condition is the item condition of a listing or manifest line.
	Condition = NewTable("condition", map[string]string{
		"NEW":               "New",
		"NEW_OPEN_BOX":      "New - Open Box",
		"LIKE_NEW":          "Like New",
		"REFURBISHED":       "Refurbished",
		"USED_GOOD":         "Used - Good",
		"USED_FAIR":         "Used - Fair",
		"CUSTOMER_RETURNS":  "Customer Returns",
		"SHELF_PULLS":       "Shelf Pulls",
		"DAMAGED":           "Damaged",
		"SALVAGE":           "Salvage",
		"MIXED":             "Mixed Condition",
		"UNTESTED":          "Untested",
		"FOR_PARTS":         "For Parts",
		"OVERSTOCK":         "Overstock",
		"CLOSEOUT":          "Closeout",
		"DISCONTINUED":      "Discontinued",
		"DAMAGED_PACKAGING": "Damaged Packaging",
	})

	// Packaging is how a lot ships.
	Packaging = NewTable("packaging", map[string]string{
		"PALLETS":    "Pallets",
		"BOXES":      "Boxes",
		"CASES":      "Cases",
		"GAYLORDS":   "Gaylords",
		"TRUCKLOAD":  "Truckload",
		"CONTAINER":  "Container",
		"LOOSE":      "Loose",
		"INDIVIDUAL": "Individual Units",
		"MIXED":      "Mixed",
	})

	// Category is the top level of the category chain. Deeper levels are
	// free text and stored as entered.
	Category = NewTable("category", map[string]string{
		"APPAREL":             "Apparel",
		"ELECTRONICS":         "Electronics",
		"HOME_GARDEN":         "Home & Garden",
		"TOYS":                "Toys",
		"HEALTH_BEAUTY":       "Health & Beauty",
		"SPORTS_OUTDOORS":     "Sports & Outdoors",
		"AUTOMOTIVE":          "Automotive",
		"FURNITURE":           "Furniture",
		"APPLIANCES":          "Appliances",
		"TOOLS":               "Tools",
		"GROCERY":             "Grocery",
		"OFFICE":              "Office",
		"JEWELRY":             "Jewelry",
		"SHOES":               "Shoes",
		"BABY":                "Baby",
		"PET_SUPPLIES":        "Pet Supplies",
		"GENERAL_MERCHANDISE": "General Merchandise",
	})

	// ShippingType is who arranges freight.
	ShippingType = NewTable("shipping type", map[string]string{
		"SELLER_SHIPS":  "Seller Ships",
		"BUYER_PICKUP":  "Buyer Pickup",
		"FREIGHT_QUOTE": "Freight Quote",
		"FREE_SHIPPING": "Free Shipping",
	})

	// BuyerSegment restricts who can see a listing.
	BuyerSegment = NewTable("buyer segment", map[string]string{
		"RESELLER":       "Reseller",
		"RETAILER":       "Retailer",
		"WHOLESALER":     "Wholesaler",
		"EXPORTER":       "Exporter",
		"DISCOUNT_STORE": "Discount Store",
		"ONLINE_SELLER":  "Online Seller",
	})
)
