package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestPgErrorClassifiers(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505"}
	fk := &pgconn.PgError{Code: "23503"}

	if !IsPgDuplicateError(dup) {
		t.Error("IsPgDuplicateError(23505) = false")
	}
	if IsPgDuplicateError(fk) {
		t.Error("IsPgDuplicateError(23503) = true")
	}

	if !IsPgForeignKeyError(fk) {
		t.Error("IsPgForeignKeyError(23503) = false")
	}
	if IsPgForeignKeyError(errors.New("connection reset")) {
		t.Error("IsPgForeignKeyError(plain error) = true")
	}

	// Classifiers must see through repository wrapping.
	wrapped := fmt.Errorf("create message embedding: %w", fk)
	if !IsPgForeignKeyError(wrapped) {
		t.Error("IsPgForeignKeyError(wrapped 23503) = false")
	}

	if !IsPgNoRowsError(pgx.ErrNoRows) {
		t.Error("IsPgNoRowsError(pgx.ErrNoRows) = false")
	}
	if IsPgNoRowsError(dup) {
		t.Error("IsPgNoRowsError(23505) = true")
	}
}
