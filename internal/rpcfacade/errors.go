// Package rpcfacade defines the boundary types C5/C6/C7 expose to an
// eventual JSON-RPC/feeder-gateway layer: the typed error taxonomy of
// spec.md §7, wire-shape request/response types, and the
// AddTransactionProvider seam spec.md §9 calls for so the node can swap a
// local mempool for a forward-to-sequencer provider without any caller
// change. No HTTP or JSON-RPC routing lives here (spec.md §1's explicit
// scope boundary) — this is only the contract future routing code binds to.
//
// Grounded on original_source/crates/client/rpc/src/lib.rs's
// StarknetRpcApiError taxonomy and its providers.AddTransactionProvider
// trait (crates/client/rpc/src/providers/forward_to_provider.rs).
package rpcfacade

import "fmt"

// Code enumerates the error taxonomy of spec.md §7, independent of any wire
// encoding a future RPC layer chooses.
type Code int

const (
	_ Code = iota
	CodeBlockNotFound
	CodeTxNotFound
	CodeClassNotFound
	CodeContractNotFound
	CodeInvalidNonce
	CodeDuplicatedTransaction
	CodeLimitExceeded
	CodeValidationFailure
	CodeInsufficientFee
	CodeUnsupportedTxnVersion
	CodeContractError
	CodeStorageDecode
	CodeInconsistentStorage
	CodeTrieMismatch
	CodeStaleL1Prices
	CodeIo
)

func (c Code) String() string {
	switch c {
	case CodeBlockNotFound:
		return "BlockNotFound"
	case CodeTxNotFound:
		return "TxNotFound"
	case CodeClassNotFound:
		return "ClassNotFound"
	case CodeContractNotFound:
		return "ContractNotFound"
	case CodeInvalidNonce:
		return "InvalidNonce"
	case CodeDuplicatedTransaction:
		return "DuplicatedTransaction"
	case CodeLimitExceeded:
		return "LimitExceeded"
	case CodeValidationFailure:
		return "ValidationFailure"
	case CodeInsufficientFee:
		return "InsufficientFee"
	case CodeUnsupportedTxnVersion:
		return "UnsupportedTxnVersion"
	case CodeContractError:
		return "ContractError"
	case CodeStorageDecode:
		return "StorageDecode"
	case CodeInconsistentStorage:
		return "InconsistentStorage"
	case CodeTrieMismatch:
		return "TrieMismatch"
	case CodeStaleL1Prices:
		return "StaleL1Prices"
	case CodeIo:
		return "Io"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Error is the typed error value every facade-boundary call returns instead
// of throwing (spec.md §7: "never thrown... typed values along the whole
// core API"). Msg carries detail for ContractError/StorageDecode/
// InconsistentStorage, where the taxonomy itself names a free-form message.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// New builds an Error with no extra detail.
func New(code Code) *Error { return &Error{Code: code} }

// Newf builds an Error carrying a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Recoverable reports whether a caller can retry or otherwise continue after
// this error, as opposed to codes spec.md §7 marks as bug-or-corruption
// (StorageDecode, InconsistentStorage) or process-fatal (StaleL1Prices).
func (e *Error) Recoverable() bool {
	switch e.Code {
	case CodeStorageDecode, CodeInconsistentStorage, CodeStaleL1Prices:
		return false
	default:
		return true
	}
}
