package mempool

import "errors"

// Sentinel errors returned by Accept/AcceptL1Handler, matching spec.md
// §4.6's typed MempoolError taxonomy. Grounded on the teacher's
// core/txpool/txpool.go sentinel-error style (ErrOverdraft et al.).
var (
	// ErrValidationFailed is returned when the pure Validate pass rejects a
	// transaction's signature/structure.
	ErrValidationFailed = errors.New("mempool: validation failed")
	// ErrInvalidNonce is returned when a tx's nonce is below the account's
	// current on-chain nonce.
	ErrInvalidNonce = errors.New("mempool: invalid nonce")
	// ErrDuplicatedTransaction is returned when a tx with the same hash is
	// already known to the pool.
	ErrDuplicatedTransaction = errors.New("mempool: duplicated transaction")
	// ErrLimitExceeded is returned when a per-account or global limit would
	// be exceeded by admitting a transaction.
	ErrLimitExceeded = errors.New("mempool: limit exceeded")
)
