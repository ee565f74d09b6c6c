/**
 * @description
 * Error taxonomy of the persistence layer. Sentinel errors are matched with
 * `errors.Is` by the service and API layers; ValidationError carries the
 * offending filter/sort field for client-facing messages.
 */

package store

import "errors"

var (
	// ErrBalanceNotFound is returned when a referenced balance id does not exist.
	ErrBalanceNotFound = errors.New("balance not found")

	// ErrRecipientNotFound is returned when the destination balance of a
	// transfer does not exist. Kept distinct from ErrBalanceNotFound so the
	// API can name the recipient id in its message.
	ErrRecipientNotFound = errors.New("recipient balance not found")

	// ErrInsufficientFunds is returned when a transfer amount exceeds the
	// source balance, checked on the row-locked balance inside the transfer
	// transaction.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrIntegrityViolation is returned when the post-write counterparty-sum
	// check fails. It aborts the surrounding transaction; the two legs of a
	// committed movement must always match.
	ErrIntegrityViolation = errors.New("ledger integrity check failed")
)

// ValidationError reports malformed filter or sort input on the operation
// listing endpoint. Field names the offending query input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
