package positions

import "errors"

var (
	ErrValidation             = errors.New("validation error")
	ErrDuplicateInsert        = errors.New("trade already inserted")
	ErrUnknownTrade           = errors.New("unknown trade")
	ErrTradeCancelled         = errors.New("trade is cancelled")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrStoreUnavailable       = errors.New("ledger store unavailable")
)

// IsRetryable reports whether a caller may resubmit the same candidate after
// refreshing its view of the trade.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrStoreUnavailable)
}
