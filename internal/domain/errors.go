package domain

import "errors"

// ErrorKind classifies domain errors for the boundary layer.
type ErrorKind string

const (
	KindNotFound                  ErrorKind = "not_found"
	KindInvariantViolation        ErrorKind = "invariant_violation"
	KindReconciliationConflict    ErrorKind = "reconciliation_conflict"
	KindExternalDependencyFailure ErrorKind = "external_dependency_failure"
)

// Error is a domain error with a stable numeric code.
type Error struct {
	Code    int
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(code int, kind ErrorKind, message string) *Error {
	return &Error{Code: code, Kind: kind, Message: message}
}

// KindOf returns the kind of a domain error, or an empty kind for foreign errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// CodeOf returns the numeric code of a domain error, or 0.
func CodeOf(err error) int {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return 0
}

var (
	// Not found errors
	ErrEntityNotFound      = newError(1404, KindNotFound, "entity not found")
	ErrTagNotFound         = newError(1404, KindNotFound, "tag not found")
	ErrTreasuryNotFound    = newError(1404, KindNotFound, "treasury not found")
	ErrTransactionNotFound = newError(1404, KindNotFound, "transaction not found")
	ErrInvoiceNotFound     = newError(1404, KindNotFound, "invoice not found")
	ErrSplitNotFound       = newError(1404, KindNotFound, "split not found")

	// Tag errors
	ErrTagAlreadyAdded   = newError(2001, KindInvariantViolation, "tag already added")
	ErrTagAlreadyRemoved = newError(2002, KindInvariantViolation, "tag already removed")

	// Transaction errors
	ErrSameEntity                       = newError(5001, KindInvariantViolation, "cannot transfer to the same entity")
	ErrCompletedTransactionNotEditable  = newError(5002, KindInvariantViolation, "can not edit a completed transaction")
	ErrCompletedTransactionNotDeletable = newError(5003, KindInvariantViolation, "can not delete a completed transaction")
	ErrInvalidAmount                    = newError(5004, KindInvariantViolation, "amount must be positive with at most 2 decimal places")
	ErrInvalidCurrency                  = newError(5005, KindInvariantViolation, "currency must be a 3-letter code")
	ErrInvalidStatus                    = newError(5006, KindInvariantViolation, "invalid transaction status")
	ErrInvalidComment                   = newError(5007, KindInvariantViolation, "invalid comment")
	ErrTransactionWillOverdraftTreasury = newError(7002, KindInvariantViolation, "transaction will overdraft the treasury")
	ErrTreasuryInUse                    = newError(7001, KindInvariantViolation, "treasury is used by some transactions and cannot be deleted")

	// Split errors
	ErrEmptyParticipants                     = newError(6001, KindInvariantViolation, "split requires at least one participant")
	ErrPerformedSplitNotEditable             = newError(6002, KindInvariantViolation, "can not edit a performed split")
	ErrPerformedSplitNotDeletable            = newError(6003, KindInvariantViolation, "can not delete a performed split")
	ErrDuplicateParticipant                  = newError(6004, KindInvariantViolation, "entity is already a participant of this split")
	ErrSplitParticipantAlreadyRemoved        = newError(6005, KindInvariantViolation, "entity is not a participant of this split")
	ErrSplitFixedAmountsExceedTotal          = newError(6006, KindInvariantViolation, "fixed participant amounts exceed the split amount")
	ErrPerformedSplitParticipantsNotEditable = newError(6007, KindInvariantViolation, "can not add/remove participants of a performed split")
	ErrEitherEntityOrTagRequired             = newError(6009, KindInvariantViolation, "either entity_id or entity_tag_id is required")

	// Invoice errors
	ErrInvoiceNotEditable                       = newError(8001, KindInvariantViolation, "invoice is not editable anymore")
	ErrInvoiceAlreadyPaid                       = newError(8002, KindReconciliationConflict, "invoice is already paid")
	ErrInvoiceTransactionAlreadyAttached        = newError(8003, KindReconciliationConflict, "invoice already has a transaction attached")
	ErrInvoiceEntitiesMismatch                  = newError(8004, KindInvariantViolation, "transaction entities do not match invoice entities")
	ErrInvoiceCurrencyNotAllowed                = newError(8005, KindInvariantViolation, "transaction currency is not allowed for this invoice")
	ErrInvoiceAmountInsufficient                = newError(8006, KindInvariantViolation, "transaction amount is insufficient for this invoice")
	ErrInvoiceAmountsRequired                   = newError(8007, KindInvariantViolation, "at least one invoice amount must be provided")
	ErrInvoiceTransactionReassignmentNotAllowed = newError(8008, KindReconciliationConflict, "transaction invoice can not be changed once set")
	ErrInvoiceCancelledNotPayable               = newError(8009, KindReconciliationConflict, "cancelled invoice can not be paid")
	ErrInvoiceAmountInvalid                     = newError(8010, KindInvariantViolation, "invoice amount must be greater than 0")
	ErrInvoiceDuplicateCurrency                 = newError(8011, KindInvariantViolation, "invoice amounts must use unique currencies")

	// Exchange errors
	ErrExchangeAmountZero      = newError(9001, KindInvariantViolation, "calculated source or target amount is zero")
	ErrExchangeAmountRequired  = newError(9002, KindInvariantViolation, "exactly one of source_amount or target_amount is required")
	ErrRateNotAvailable        = newError(9003, KindExternalDependencyFailure, "exchange rate is not available for currency")
	ErrRateProviderUnavailable = newError(9004, KindExternalDependencyFailure, "exchange rate provider is unavailable")
	ErrExchangeSameCurrency    = newError(9005, KindInvariantViolation, "source and target currencies must differ")
	ErrLedgerInconsistent      = newError(9501, KindInvariantViolation, "ledger balances do not close to zero")
)
