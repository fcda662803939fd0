package core

import (
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/listing-import/internal/media"
)

// ListingKind is the kind of listing a batch creates.
type ListingKind string

const (
	KindAuction ListingKind = "auction"
	KindCatalog ListingKind = "catalog"
	KindLot     ListingKind = "lot"
)

// ParseListingKind accepts the lower-case kind names used on the wire.
func ParseListingKind(s string) (ListingKind, bool) {
	switch ListingKind(s) {
	case KindAuction, KindCatalog, KindLot:
		return ListingKind(s), true
	}
	return "", false
}

// Folder is the object-store folder images of this kind are written under.
func (k ListingKind) Folder() media.Folder {
	switch k {
	case KindAuction:
		return media.FolderAuction
	case KindCatalog:
		return media.FolderCatalog
	default:
		return media.FolderLot
	}
}

// ListingSheet is the sheet kind that describes listings of this kind.
func (k ListingKind) ListingSheet() SheetKind {
	switch k {
	case KindAuction:
		return SheetAuctionListing
	case KindCatalog:
		return SheetCatalogListing
	default:
		return SheetLotListing
	}
}

// ChildSheet is the sheet kind of the optional second file.
func (k ListingKind) ChildSheet() SheetKind {
	if k == KindCatalog {
		return SheetCatalogProduct
	}
	return SheetManifest
}

// Listing statuses.
const (
	StatusDraft  = "draft"
	StatusActive = "active"
)

// Isolation selects how many listings share one relational transaction.
type Isolation string

const (
	IsolationPerListing Isolation = "per_listing"
	IsolationPerBatch   Isolation = "per_batch"
)

// Brand is a shared brand keyed by its normalized name.
type Brand struct {
	ID   uuid.UUID
	Name string
	Key  string
}

// Address is a warehouse or pickup address. Addresses are not shared.
type Address struct {
	Line1   string
	Line2   string
	City    string
	State   string
	Zip     string
	Country string
}

// IsZero reports whether no address field was supplied at all.
func (a Address) IsZero() bool {
	return a == Address{}
}

// ListingRecord is one listing row ready to insert.
type ListingRecord struct {
	ID                 uuid.UUID
	PublicID           string
	SellerID           uuid.UUID
	Kind               ListingKind
	Status             string
	Title              string
	Description        string
	Categories         []string
	Condition          string
	Packaging          string
	PalletCount        *int
	Length             *float64
	Width              *float64
	Height             *float64
	Weight             *float64
	Price              *float64
	ReservePrice       *float64
	BuyNowPrice        *float64
	RetailValue        *float64
	UnitCount          *int
	MinOrderQuantity   *int
	Currency           string
	ShippingType       string
	StartsAt           *time.Time
	EndsAt             *time.Time
	BrandID            *uuid.UUID
	AddressID          *uuid.UUID
	DefaultImageID     *uuid.UUID
	DuplicateCheckHash string
	SourceRow          int
}

// Category returns the first category level, or "".
func (l *ListingRecord) Category() string { return level(l.Categories, 0) }

// Subcategory returns the second category level, or "".
func (l *ListingRecord) Subcategory() string { return level(l.Categories, 1) }

func level(levels []string, i int) string {
	if i < len(levels) {
		return levels[i]
	}
	return ""
}

// ManifestItem is one line of an auction or lot manifest.
type ManifestItem struct {
	ID          uuid.UUID
	ListingID   uuid.UUID
	SKU         string
	Description string
	Quantity    *int
	RetailPrice *float64
	Currency    string
	Condition   string
	Model       string
	UPC         string
	BrandID     *uuid.UUID
	ImageID     *uuid.UUID
	SourceRow   int
}

// ProductRecord is a catalog product. A parent groups variants; a variant
// points at its parent through ParentID.
type ProductRecord struct {
	ID               uuid.UUID
	ListingID        uuid.UUID
	ParentID         *uuid.UUID
	SKU              string
	Title            string
	Description      string
	IsParent         bool
	IsDefaultVariant bool
	Price            *float64
	RetailPrice      *float64
	Currency         string
	Quantity         *int
	Condition        string
	Color            string
	Size             string
	UPC              string
	BrandID          *uuid.UUID
	SourceRow        int
}

// ImageLink attaches a persisted image to a listing or product.
type ImageLink struct {
	ImageID   uuid.UUID
	SortOrder int
	IsDefault bool
}

// Visibility rule types.
const (
	VisibilityBuyerSegment = "BUYER_SEGMENT"
	VisibilityState        = "STATE"
	VisibilityCountry      = "COUNTRY"
	VisibilityZip          = "ZIP"
	VisibilityCity         = "CITY"
)

// VisibilityRule limits who can see a listing. Rules are inclusive.
type VisibilityRule struct {
	ID        uuid.UUID
	ListingID uuid.UUID
	Type      string
	Value     string
}

// File is one uploaded spreadsheet.
type File struct {
	Name string
	Data []byte
}

// ImportRequest is one spreadsheet-pair submission.
type ImportRequest struct {
	ImportID       string
	Kind           ListingKind
	SellerID       uuid.UUID
	SellerPublicID string
	Currency       string
	Listings       File
	Children       *File
	Publish        bool

	// ToleratePartial overrides the coordinator default when set.
	ToleratePartial *bool

	// Visibility rules applied to every listing in addition to the
	// VISIBILITY_* columns.
	Visibility []VisibilityRule
}

// ImportPhase is the coarse stage of an import.
type ImportPhase string

const (
	PhaseStarting        ImportPhase = "starting"
	PhaseReading         ImportPhase = "reading"
	PhaseValidating      ImportPhase = "validating"
	PhaseProcessingMedia ImportPhase = "processing_media"
	PhasePersisting      ImportPhase = "persisting"
	PhaseComplete        ImportPhase = "complete"
	PhaseFailed          ImportPhase = "failed"
)

// ImportProgress is a point-in-time view of an import.
type ImportProgress struct {
	ImportID      string      `json:"importId"`
	Kind          ListingKind `json:"kind"`
	Phase         ImportPhase `json:"phase"`
	TotalListings int         `json:"totalListings"`
	Committed     int         `json:"committed"`
	Failed        int         `json:"failed"`
	Images        int         `json:"images"`
	Message       string      `json:"message,omitempty"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// Percent returns listing progress as 0-100.
func (p ImportProgress) Percent() int {
	if p.TotalListings == 0 {
		return 0
	}
	return ((p.Committed + p.Failed) * 100) / p.TotalListings
}

// Warning is a non-fatal note about a row, such as a variant demoted to a
// standalone product.
type Warning struct {
	File    string `json:"file,omitempty"`
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ListingOutcome describes a committed listing.
type ListingOutcome struct {
	Row           int       `json:"row"`
	ListingID     uuid.UUID `json:"listingId"`
	PublicID      string    `json:"publicId"`
	Title         string    `json:"title"`
	Products      int       `json:"products"`
	ManifestItems int       `json:"manifestItems"`
	Images        int       `json:"images"`
}

// ListingFailure describes a listing that did not commit.
type ListingFailure struct {
	Row   int       `json:"row"`
	Title string    `json:"title"`
	Error ErrorInfo `json:"error"`
	Err   error     `json:"-"`
}

// ImportResult is the outcome of a whole batch.
type ImportResult struct {
	ImportID string           `json:"importId"`
	Kind     ListingKind      `json:"kind"`
	Created  []ListingOutcome `json:"created"`
	Failures []ListingFailure `json:"failures,omitempty"`
	Warnings []Warning        `json:"warnings,omitempty"`
	Duration time.Duration    `json:"duration"`
}

// ValidationReport is the outcome of a dry run.
type ValidationReport struct {
	Kind     ListingKind `json:"kind"`
	Listings int         `json:"listings"`
	Children int         `json:"children"`
	Images   int         `json:"images"`
	Valid    bool        `json:"valid"`
	Error    *ErrorInfo  `json:"error,omitempty"`
}
