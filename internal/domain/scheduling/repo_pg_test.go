package scheduling

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapPgError_ExclusionViolation(t *testing.T) {
	window := iv(9, 0, 9, 30)
	pgErr := &pgconn.PgError{Code: "23P01", ConstraintName: "appointment_no_overlap"}

	err := mapPgError(fmt.Errorf("insert: %w", pgErr), window)

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %T: %v", err, err)
	}
	if !conflict.Start.Equal(window.Start) || !conflict.End.Equal(window.End) {
		t.Errorf("conflict window = %v-%v, want %v-%v", conflict.Start, conflict.End, window.Start, window.End)
	}
}

func TestMapPgError_OtherErrorsPassThrough(t *testing.T) {
	window := iv(9, 0, 9, 30)

	sentinel := errors.New("connection reset")
	if got := mapPgError(sentinel, window); got != sentinel {
		t.Errorf("non-pg error should pass through, got %v", got)
	}

	unique := &pgconn.PgError{Code: "23505"}
	if got := mapPgError(unique, window); got != error(unique) {
		t.Errorf("unrelated pg error should pass through, got %v", got)
	}
}
