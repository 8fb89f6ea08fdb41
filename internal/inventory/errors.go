// internal/inventory/errors.go
package inventory

import "errors"

// Every failure in this package is scoped to the operation that raised it;
// callers match these with errors.Is and map them at the HTTP boundary.
var (
	ErrToolNotFound     = errors.New("tool not found")
	ErrRequestNotFound  = errors.New("tool request not found")
	ErrIssuanceNotFound = errors.New("issuance not found")
	ErrFactoryNotFound  = errors.New("factory not found")

	// ErrInvalidStateTransition covers the request workflow; only
	// PENDING requests can be approved or rejected.
	ErrInvalidStateTransition = errors.New("invalid request state transition")

	// ErrInvalidIssuanceState covers the issuance state machine; any
	// transition not in the table fails with this.
	ErrInvalidIssuanceState = errors.New("invalid issuance state transition")

	ErrInsufficientStock = errors.New("insufficient stock")
	ErrQuantityMismatch  = errors.New("fit and unfit quantities must sum to the issued quantity")
	ErrInvalidQuantity   = errors.New("quantity must be positive")

	ErrOwnershipViolation   = errors.New("actor does not own this record")
	ErrNoFactoryAssignment  = errors.New("actor is not assigned to a factory")
	ErrNotYetOverdue        = errors.New("issuance is not yet overdue")
	ErrExtensionWhenOverdue = errors.New("cannot request an extension for an overdue issuance")

	// ErrStockNotFound means a release or reserve hit a (factory, tool)
	// key with no ledger record. A reservation must have created the
	// record, so this indicates corrupted state and is logged as a
	// data-integrity alert, not a user error.
	ErrStockNotFound = errors.New("stock record not found")
)
