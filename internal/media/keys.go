package media

import (
	"path"

	"github.com/google/uuid"
)

// Folder is the top-level object-store folder per listing kind.
type Folder string

const (
	FolderAuction Folder = "Auction"
	FolderCatalog Folder = "Catalog"
	FolderLot     Folder = "Lot"
)

// CompressedKey is the canonical key of a processed image:
// Images/<Folder>/<sellerPublicID>/<imageID><ext>.
func CompressedKey(folder Folder, sellerPublicID string, imageID uuid.UUID, f Format) string {
	return path.Join("Images", string(folder), sellerPublicID, imageID.String()+f.Ext())
}

// OriginalKey is the key of the untouched source bytes:
// Images/<Folder>/<sellerPublicID>/originals/<imageID>_original<ext>.
func OriginalKey(folder Folder, sellerPublicID string, imageID uuid.UUID, f Format) string {
	return path.Join("Images", string(folder), sellerPublicID, "originals", imageID.String()+"_original"+f.Ext())
}
