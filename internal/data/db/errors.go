package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	dperrors "github.com/yungbote/dbprocessing/internal/pkg/errors"
)

// MapError classifies driver failures into catalog sentinels. Errors that
// already carry a sentinel pass through.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, dperrors.ErrCatalogMissing),
		errors.Is(err, dperrors.ErrCatalogInconsistent),
		errors.Is(err, dperrors.ErrIntegrity),
		errors.Is(err, dperrors.ErrInvalidArgument):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w: %w", op, dperrors.ErrCatalogMissing, err)
	case errors.Is(err, gorm.ErrDuplicatedKey),
		errors.Is(err, gorm.ErrForeignKeyViolated),
		errors.Is(err, gorm.ErrCheckConstraintViolated):
		return fmt.Errorf("%s: %w: %w", op, dperrors.ErrIntegrity, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505", "23503", "23514", "23502": // unique, fk, check, not null
			return fmt.Errorf("%s: %w: %w", op, dperrors.ErrIntegrity, err)
		}
	}

	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) && sqErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%s: %w: %w", op, dperrors.ErrIntegrity, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "duplicate key"),
		strings.Contains(msg, "unique constraint"),
		strings.Contains(msg, "foreign key constraint"),
		strings.Contains(msg, "check constraint"):
		return fmt.Errorf("%s: %w: %w", op, dperrors.ErrIntegrity, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsIntegrity reports whether err is a constraint violation.
func IsIntegrity(err error) bool {
	return errors.Is(MapError("", err), dperrors.ErrIntegrity)
}
