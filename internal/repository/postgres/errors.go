package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Driver error classifiers. Repositories translate pgconn SQLSTATEs into
// domain errors at this boundary; nothing above the repository layer
// inspects driver codes.

// IsPgDuplicateError reports a unique constraint violation (23505), raised
// when two writers race on the same message order within a chat.
func IsPgDuplicateError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// IsPgNoRowsError reports a single-row query that matched nothing.
func IsPgNoRowsError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsPgForeignKeyError reports a foreign key violation (23503). The only
// foreign key in the schema points embeddings at their history row, so this
// means the message vanished before its embedding landed.
func IsPgForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
