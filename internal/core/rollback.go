package core

import (
	"context"
	"errors"

	"github.com/JonMunkholm/listing-import/internal/logging"
)

// compensate deletes every object uploaded for drafts that did not commit
// and wraps cause in a *RollbackError describing the outcome. It runs on a
// context detached from cancellation so a cancelled import still cleans up.
// Drafts already cleaned are skipped. When the database outcome is unknown
// the objects are kept, since committed rows may reference them.
func (c *Coordinator) compensate(ctx context.Context, cause error, drafts ...*listingDraft) *RollbackError {
	rb := &RollbackError{
		Original:           cause,
		DatabaseRolledBack: databaseRolledBack(cause),
	}

	if !rb.DatabaseRolledBack {
		for _, d := range drafts {
			if !d.cleaned && !d.tc.Committed() {
				d.cleaned = true
				rb.ObjectsTracked += len(d.tc.UploadedKeys())
			}
		}
		logging.FromContext(ctx).Warn("database outcome unknown, uploaded objects kept",
			"keys", rb.ObjectsTracked, "error", cause)
		return rb
	}

	n, err := c.cleanup(ctx, drafts...)
	rb.ObjectsTracked = n.tracked
	rb.ObjectsDeleted = n.deleted
	if err != nil {
		rb.CleanupFailed = true
		rb.CleanupErr = err
	}
	return rb
}

type cleanupCount struct {
	tracked int
	deleted int
}

// cleanup deletes the uploaded keys of uncommitted drafts.
func (c *Coordinator) cleanup(ctx context.Context, drafts ...*listingDraft) (cleanupCount, error) {
	var keys []string
	for _, d := range drafts {
		if d.cleaned || d.tc.Committed() {
			continue
		}
		d.cleaned = true
		keys = append(keys, d.tc.UploadedKeys()...)
	}

	count := cleanupCount{tracked: len(keys)}
	if len(keys) == 0 {
		return count, nil
	}

	log := logging.FromContext(ctx)
	deleted, err := c.objects.Delete(context.WithoutCancel(ctx), keys)
	count.deleted = deleted
	if err != nil {
		log.Warn("object cleanup failed", "keys", len(keys), "deleted", deleted, "error", err)
		return count, err
	}
	log.Info("uploaded objects removed", "keys", len(keys), "deleted", deleted)
	return count, nil
}

// databaseRolledBack is false only when the store could not confirm the
// transaction was undone.
func databaseRolledBack(err error) bool {
	var txErr *TransactionError
	if errors.As(err, &txErr) {
		return txErr.RolledBack
	}
	return true
}
