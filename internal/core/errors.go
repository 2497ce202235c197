package core

import "errors"

var (
	// ErrNotFound is returned when a template, month record, instance, or
	// payment source is absent from storage.
	ErrNotFound = errors.New("not found")

	// ErrNothingToUndo is the benign sentinel returned when the undo log is
	// empty. It is an expected outcome, not a failure.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrNotPayoff is returned when a payoff sync is requested for an
	// instance whose payment source is not flagged pay_off_monthly.
	ErrNotPayoff = errors.New("instance is not a credit card payoff")

	// ErrConflict is returned when a create collides with an existing
	// entity identity. Re-generating a month is never a conflict.
	ErrConflict = errors.New("already exists")
)

// validationErrs are the sentinels raised synchronously at operation
// boundaries before any state is touched.
var validationErrs = []error{
	ErrInvalidAmount,
	ErrInvalidPeriod,
	ErrInvalidKind,
	ErrInvalidType,
	ErrInvalidClass,
	ErrEmptyName,
	ErrAnchorRequired,
	ErrInvalidDate,
	ErrNotPayoff,
}

// IsNotFound reports whether err is the absence of an entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err belongs to the validation class of the
// error taxonomy (malformed amount, missing anchor, unknown enum value).
func IsValidation(err error) bool {
	for _, v := range validationErrs {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}
