package errors

import (
	"errors"
	"fmt"
)

// Expected webhook-traffic failures. These are routine rejections, not
// infrastructure faults, and are matched with errors.Is/As at the HTTP
// boundary.
var (
	// ErrInvalidSignature is returned when the HMAC signature does not match
	ErrInvalidSignature = errors.New("webhook signature verification failed")

	// ErrStaleTimestamp is returned when the webhook timestamp falls outside
	// the replay tolerance window
	ErrStaleTimestamp = errors.New("webhook timestamp outside tolerance window")

	// ErrTransactionNotFound is returned when the reported transaction id
	// does not exist
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrStoreUnavailable wraps transient persistence failures so the caller
	// can signal the upstream processor to redeliver
	ErrStoreUnavailable = errors.New("transaction store unavailable")
)

// AmountMismatchError is returned when the amount reported by a webhook does
// not match the stored transaction amount
type AmountMismatchError struct {
	TransactionID string
	Expected      int64
	Reported      int64
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("amount mismatch for transaction %s: expected %d, reported %d",
		e.TransactionID, e.Expected, e.Reported)
}

// NewAmountMismatchError creates a new AmountMismatchError
func NewAmountMismatchError(transactionID string, expected, reported int64) *AmountMismatchError {
	return &AmountMismatchError{
		TransactionID: transactionID,
		Expected:      expected,
		Reported:      reported,
	}
}
