package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("store unavailable")
)

// translate maps raw driver errors onto the repository taxonomy so the
// service layer never inspects pg error codes itself.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %v: %w", op, err, ErrUnavailable)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %v: %w", op, err, ErrConflict)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: %v: %w", op, err, ErrConflict)
		}
		if pgErr.Code[:2] == "08" { // connection exceptions
			return fmt.Errorf("%s: %v: %w", op, err, ErrUnavailable)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
