// Package core provides the business logic for spreadsheet listing imports.
//
// This package is the heart of the importer, containing all domain logic
// independent of any transport or storage driver. It can be used by web
// handlers, CLI tools, or tests without modification.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Sheet schemas: registered via the registry, each sheet kind has field
//     specs plus row and batch rules. The concrete schemas live in the
//     sheets subpackage.
//   - Coordinator: the main entry point. It validates a spreadsheet pair,
//     runs the media pipeline and writes each listing in a transaction.
//   - Transaction context: records every object key and row id a listing
//     creates so a failure can be compensated.
//   - Entity resolver: brands are shared and resolved in bulk; addresses are
//     created per listing.
//
// # Sheet Registry
//
// Schemas are registered at init time using [Register]:
//
//	core.Register(core.SheetSchema{
//	    Kind:  core.SheetManifest,
//	    Label: "Manifest",
//	    Fields: []core.FieldSpec{
//	        {Name: "DESCRIPTION", Required: true, Type: core.FieldText},
//	        {Name: "QUANTITY", Type: core.FieldInteger, NonNegative: true},
//	    },
//	})
//
// # Import Flow
//
//  1. Read both sheets (CSV or XLSX), check headers, validate every row.
//  2. Build listing drafts and attach child rows by LISTING_REF.
//  3. For catalog imports, reject duplicates before anything is uploaded.
//  4. Download, compress and upload images outside any transaction.
//  5. Write each listing in its own transaction (or all of them in one).
//     On failure the rows roll back and the listing's objects are deleted.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError]
// and to structured reports using [Describe]. Each error category has a
// unique code for support reference:
//
//   - CFG001: invalid configuration or request
//   - FILE001-FILE005: unreadable or empty files
//   - VAL001-VAL007: validation failures
//   - MED001-MED004: image failures
//   - DUP001, ENT001, TX001: listing failures
//   - DB001-DB007: database errors
//   - IMP002-IMP005: busy, not found, cancelled, timed out
package core
