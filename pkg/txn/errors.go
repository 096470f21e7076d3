package txn

import "errors"

// Transaction-usage errors. These are always returned synchronously
// from the method that was misused; the engine never sees them become
// a mutation status.
var (
	ErrClosedTransaction = errors.New("transaction: already committed")
	ErrNoDefaultStore    = errors.New("transaction: set() called with no default store bound")
	ErrEmptyTransaction  = errors.New("transaction: commit with no staged writes")
	ErrNoMutation        = errors.New("transaction: commit without a bound remote function")
)
