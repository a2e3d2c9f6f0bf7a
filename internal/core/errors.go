package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoMatch             = errors.New("barcode does not match this order")
	ErrNoSuchUnit          = fmt.Errorf("%w: no inventory unit with this barcode", ErrNoMatch)
	ErrUnitNotEligible     = errors.New("inventory unit is not eligible for shipment")
	ErrQuantityExceeded    = errors.New("item quantity already satisfied")
	ErrLedgerWriteFailure  = errors.New("scan ledger write failed")
	ErrOrderIncomplete     = errors.New("order is not fully scanned")
	ErrOrderAlreadyShipped = errors.New("order already shipped")
	ErrOrderNotFound       = errors.New("order not found")
	ErrShipmentNotFound    = errors.New("shipment not found")
	ErrInvalidOrder        = errors.New("invalid order")
	ErrDuplicateBarcode    = errors.New("barcode already registered")
)

func invalidOrder(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOrder, fmt.Sprintf(format, args...))
}

// LedgerWriteError wraps a failed durable write of a scan record.
// The scan was not recorded and the same submission may be retried.
type LedgerWriteError struct {
	OrderID string
	Barcode string
	Err     error
}

func (e *LedgerWriteError) Error() string {
	return fmt.Sprintf("failed to record scan %s for order %s: %v", e.Barcode, e.OrderID, e.Err)
}

func (e *LedgerWriteError) Unwrap() error { return e.Err }

func (e *LedgerWriteError) Is(target error) bool { return target == ErrLedgerWriteFailure }

// Retryable is always true: ledger writes are idempotent per barcode.
func (e *LedgerWriteError) Retryable() bool { return true }

// OrderIncompleteError lists the items whose distinct scanned count differs from quantity.
type OrderIncompleteError struct {
	OrderID        string
	MissingItemIDs []string
}

func (e *OrderIncompleteError) Error() string {
	return fmt.Sprintf("order %s is not fully scanned: items %s", e.OrderID, strings.Join(e.MissingItemIDs, ", "))
}

func (e *OrderIncompleteError) Is(target error) bool { return target == ErrOrderIncomplete }

type retryable interface {
	Retryable() bool
}

// Retryable reports whether err is transient and the same request may be re-submitted.
// Only ledger write failures qualify; every other error in this package is final.
func Retryable(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
