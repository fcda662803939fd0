package core

import (
	"sync"

	"github.com/google/uuid"
)

// TransactionContext is the bookkeeping of one unit of work: every object
// key uploaded and every row id created for it. Upload workers append to it
// concurrently; the coordinator reads it to drive compensating cleanup.
type TransactionContext struct {
	mu sync.Mutex

	uploadedKeys []string
	imageIDs     []uuid.UUID
	brandIDs     []uuid.UUID
	addressIDs   []uuid.UUID
	listingIDs   []uuid.UUID
	rowsDone     int
	operation    string
	committed    bool
}

// NewTransactionContext returns an empty context.
func NewTransactionContext() *TransactionContext {
	return &TransactionContext{}
}

// RecordUploadedKey implements media.KeyTracker.
func (tc *TransactionContext) RecordUploadedKey(key string) {
	tc.mu.Lock()
	tc.uploadedKeys = append(tc.uploadedKeys, key)
	tc.mu.Unlock()
}

// RecordImageID implements media.KeyTracker.
func (tc *TransactionContext) RecordImageID(id uuid.UUID) {
	tc.mu.Lock()
	tc.imageIDs = append(tc.imageIDs, id)
	tc.mu.Unlock()
}

// RecordBrandID records a brand created (not reused) by this unit of work.
func (tc *TransactionContext) RecordBrandID(id uuid.UUID) {
	tc.mu.Lock()
	tc.brandIDs = append(tc.brandIDs, id)
	tc.mu.Unlock()
}

// RecordAddressID records a created address.
func (tc *TransactionContext) RecordAddressID(id uuid.UUID) {
	tc.mu.Lock()
	tc.addressIDs = append(tc.addressIDs, id)
	tc.mu.Unlock()
}

// RecordListingID records a created listing and counts its row as done.
func (tc *TransactionContext) RecordListingID(id uuid.UUID) {
	tc.mu.Lock()
	tc.listingIDs = append(tc.listingIDs, id)
	tc.rowsDone++
	tc.mu.Unlock()
}

// SetOperation labels what the unit of work is doing, for failure reports.
func (tc *TransactionContext) SetOperation(op string) {
	tc.mu.Lock()
	tc.operation = op
	tc.mu.Unlock()
}

// Operation returns the current operation label.
func (tc *TransactionContext) Operation() string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.operation
}

// UploadedKeys returns a copy of the uploaded keys in upload order.
func (tc *TransactionContext) UploadedKeys() []string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return append([]string(nil), tc.uploadedKeys...)
}

// MarkCommitted records that the relational writes committed. Keys of a
// committed context must never be cleaned up.
func (tc *TransactionContext) MarkCommitted() {
	tc.mu.Lock()
	tc.committed = true
	tc.mu.Unlock()
}

// Committed reports whether MarkCommitted was called.
func (tc *TransactionContext) Committed() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.committed
}

// TxSnapshot is a point-in-time copy of the counters.
type TxSnapshot struct {
	UploadedKeys int    `json:"uploadedKeys"`
	ImageIDs     int    `json:"imageIds"`
	BrandIDs     int    `json:"brandIds"`
	AddressIDs   int    `json:"addressIds"`
	ListingIDs   int    `json:"listingIds"`
	RowsDone     int    `json:"rowsDone"`
	Operation    string `json:"operation,omitempty"`
	Committed    bool   `json:"committed"`
}

// Snapshot returns the current counters.
func (tc *TransactionContext) Snapshot() TxSnapshot {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return TxSnapshot{
		UploadedKeys: len(tc.uploadedKeys),
		ImageIDs:     len(tc.imageIDs),
		BrandIDs:     len(tc.brandIDs),
		AddressIDs:   len(tc.addressIDs),
		ListingIDs:   len(tc.listingIDs),
		RowsDone:     tc.rowsDone,
		Operation:    tc.operation,
		Committed:    tc.committed,
	}
}

// resetRelational forgets ids created inside a transaction that rolled
// back. Uploaded keys are kept because the objects still exist.
func (tc *TransactionContext) resetRelational() {
	tc.mu.Lock()
	tc.imageIDs = nil
	tc.brandIDs = nil
	tc.addressIDs = nil
	tc.listingIDs = nil
	tc.rowsDone = 0
	tc.mu.Unlock()
}
