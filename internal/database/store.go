package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/listing-import/internal/core"
)

// TxBeginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Store implements core.Store on a pgx pool.
type Store struct {
	db   TxBeginner
	opts pgx.TxOptions
}

// NewStore returns a Store whose transactions run at the given isolation
// level: read_committed, repeatable_read or serializable. Blank means the
// server default.
func NewStore(db TxBeginner, isolation string) (*Store, error) {
	level, err := ParseIsoLevel(isolation)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, opts: pgx.TxOptions{IsoLevel: level}}, nil
}

// ParseIsoLevel maps a configuration value to a pgx isolation level.
func ParseIsoLevel(s string) (pgx.TxIsoLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "read_committed":
		return pgx.ReadCommitted, nil
	case "repeatable_read":
		return pgx.RepeatableRead, nil
	case "serializable":
		return pgx.Serializable, nil
	default:
		return "", fmt.Errorf("unknown isolation level %q", s)
	}
}

// InTx runs fn in one transaction. See core.Store for the error contract.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, q core.Queries) error) (err error) {
	tx, err := s.db.BeginTx(ctx, s.opts)
	if err != nil {
		return &core.TransactionError{Op: "begin", Err: err, RolledBack: true}
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if fnErr := fn(ctx, New(tx)); fnErr != nil {
		// The caller's context may already be cancelled; the rollback
		// must still reach the server.
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return &core.TransactionError{Op: "rollback", Err: errors.Join(fnErr, rbErr), RolledBack: false}
		}
		return fnErr
	}

	// A cancelled context would make pgx abort an in-flight commit whose
	// outcome the server may already have decided.
	if err := tx.Commit(context.WithoutCancel(ctx)); err != nil {
		// The server may have committed before the error reached us.
		return &core.TransactionError{Op: "commit", Err: err, RolledBack: false}
	}
	return nil
}
