package business

import "errors"

// ValidationError rejects a request before any mutation happens.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError reports a request that clashes with current state, such as a
// locked target or a duplicate reference.
type ConflictError struct {
	Code    string
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// IntegrityError is an invariant violation detected at commit time. It is
// always a bug, and it aborts the enclosing transaction.
type IntegrityError struct {
	Message string
}

func (e *IntegrityError) Error() string { return e.Message }

var (
	ErrTargetNotFound = &ValidationError{Code: "target_not_found", Message: "fee or bill does not exist"}
	ErrInvalidAmount  = &ValidationError{Code: "invalid_amount", Message: "payment amount must be greater than zero"}
	ErrFutureDate     = &ValidationError{Code: "future_date", Message: "payment date cannot be in the future"}
	ErrInvalidDate    = &ValidationError{Code: "invalid_date", Message: "payment date is required"}
	ErrNoBalance      = &ValidationError{Code: "nothing_outstanding", Message: "target has no outstanding balance"}

	ErrTargetLocked       = &ConflictError{Code: "target_locked", Message: "fee or bill does not accept new payments"}
	ErrDuplicateReference = &ConflictError{Code: "duplicate_reference", Message: "payment reference already recorded"}
	ErrInvalidTransition  = &ConflictError{Code: "invalid_transition", Message: "status transition is not allowed"}
	ErrPaymentConfirmed   = &ConflictError{Code: "payment_confirmed", Message: "payment is already confirmed"}

	ErrInvalidSignature = &ValidationError{Code: "invalid_signature", Message: "webhook signature verification failed"}
)

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func IsIntegrity(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

// ErrorCode extracts the machine-readable code carried by a typed error,
// falling back to a generic internal code.
func ErrorCode(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var ie *IntegrityError
	if errors.As(err, &ie) {
		return "integrity_violation"
	}
	return "internal"
}
