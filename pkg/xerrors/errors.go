package xerrors

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Generic
var (
	ErrInvalidInput   = errors.New("invalid input provided")
	ErrNotFound       = errors.New("not found")
	ErrInternalServer = errors.New("internal server error")
)

// Dispatch
var (
	ErrUnknownType       = errors.New("unknown notification type")
	ErrRecipientRequired = errors.New("recipient ID required")
	ErrSenderRequired    = errors.New("sender ID required")
	ErrPersistFailed     = errors.New("failed to persist notification")
)

// ParsePGErrorCode extracts the SQLSTATE code from a pgx error,
// e.g. 23505 for unique_violation.
func ParsePGErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return "unknown"
}
