package scheduling

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every *ValidationError via errors.Is.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a referenced field or appointment does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the caller is neither the owner of the
	// appointment nor an admin.
	ErrForbidden = errors.New("forbidden")
	// ErrStoreConflict is returned when the write transaction lost a race
	// against a concurrent writer (deadlock or lock wait timeout).  Retrying
	// the whole operation is safe.
	ErrStoreConflict = errors.New("store conflict")
)

// ValidationError describes a request that can never succeed as given.
// Conflicts is set when the rejection was caused by overlapping bookings.
type ValidationError struct {
	Reason    string
	Conflicts int
}

func (e *ValidationError) Error() string { return e.Reason }

// Is lets callers test with errors.Is(err, ErrValidation).
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Outcome classifies err into a short label used for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrStoreConflict):
		return "store_conflict"
	default:
		return "error"
	}
}
