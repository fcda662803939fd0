package core

import (
	"fmt"
	"sort"
	"sync"
)

// SheetKind identifies a spreadsheet contract.
type SheetKind string

const (
	SheetAuctionListing SheetKind = "auction_listing"
	SheetLotListing     SheetKind = "lot_listing"
	SheetCatalogListing SheetKind = "catalog_listing"
	SheetManifest       SheetKind = "manifest"
	SheetCatalogProduct SheetKind = "catalog_product"
)

// SheetSchema is the column contract of one sheet kind.
type SheetSchema struct {
	Kind       SheetKind
	Label      string
	Fields     []FieldSpec
	Rules      []RowRule
	BatchRules []BatchRule
}

// RequiredColumns lists the columns that must appear in the header.
func (s SheetSchema) RequiredColumns() []string {
	var cols []string
	for _, f := range s.Fields {
		if f.Required {
			cols = append(cols, f.Name)
		}
	}
	return cols
}

// RequiredFields lists the columns whose cells must be non-empty.
func (s SheetSchema) RequiredFields() []string {
	var cols []string
	for _, f := range s.Fields {
		if f.Required && !f.AllowEmpty {
			cols = append(cols, f.Name)
		}
	}
	return cols
}

// Columns lists every column the schema knows, in declaration order.
func (s SheetSchema) Columns() []string {
	cols := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = f.Name
	}
	return cols
}

var (
	registry   = make(map[SheetKind]SheetSchema)
	registryMu sync.RWMutex
)

// Register adds a sheet schema to the registry.
// Panics if a schema with the same kind is already registered.
func Register(schema SheetSchema) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[schema.Kind]; exists {
		panic(fmt.Sprintf("sheet schema already registered: %s", schema.Kind))
	}
	registry[schema.Kind] = schema
}

// Get returns the schema of a sheet kind.
func Get(kind SheetKind) (SheetSchema, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	s, ok := registry[kind]
	return s, ok
}

// All returns every registered schema sorted by kind.
func All() []SheetSchema {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]SheetSchema, 0, len(registry))
	for _, s := range registry {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Clear removes all registered schemas.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[SheetKind]SheetSchema)
}
