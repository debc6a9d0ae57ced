// Package l1sync implements C8: the two background workers that keep a node
// current with its L1 settlement layer — a gas-price poller feeding
// internal/blockproduction's bouncer and block headers, and a messaging
// worker that turns L1 LogMessageToL2 events into L1-handler transactions in
// internal/mempool.
//
// Both workers are grounded on original_source's
// crates/client/eth/src/l1_gas_price.rs (the polling/watchdog shape) and
// crates/client/eth/src/messaging (the dedup/cancellation-window shape), with
// the dedup/cache discipline adapted from the teacher's warp/backend.go
// (LRU-cached, DB-backed, idempotent message tracking).
package l1sync

import (
	"context"

	"github.com/lux/starknode/internal/felt"
)

// FeeHistory is the subset of eth_feeHistory this package consumes: per-block
// blob base fees (for the rolling data-gas-price average). The L1 gas price
// itself comes from SettlementClient.LatestL1GasPrice, not from FeeHistory.
type FeeHistory struct {
	// BaseFeePerBlobGas holds one entry per returned block, oldest first, as
	// eth_feeHistory does; this package only ever requests the last 300.
	BaseFeePerBlobGas []uint64
}

// L1ToL2Log is one decoded LogMessageToL2 event (spec.md §4.8).
type L1ToL2Log struct {
	BlockNumber  uint64
	EventIndex   uint64
	FromAddress  felt.Felt
	ToAddress    felt.Felt
	Selector     felt.Felt
	Payload      []felt.Felt
	Nonce        uint64
	PaidFeeOnL1  uint64
}

// MessageHash returns the identifier the settlement contract's
// cancellation_timestamp mapping is keyed by. Real Starknet messaging hashes
// this with keccak256 over the ABI-encoded fields; that primitive lives
// outside this package's scope (spec.md §1 excludes hash-function internals),
// so callers pass the settlement client's own hash back in rather than this
// package recomputing it.
type MessageHash = felt.Felt

// SettlementClient is the boundary to the L1 JSON-RPC node and settlement
// contract; spec.md §1 places the Ethereum client itself out of scope, so
// this is a pluggable collaborator the same way internal/exec.VM is — a
// concrete implementation would wrap the teacher's ethclient package
// (present in the pack) to satisfy eth_feeHistory/eth_getLogs/eth_call.
type SettlementClient interface {
	// FeeHistory returns fee history for the last blockCount blocks ending at
	// the chain head.
	FeeHistory(ctx context.Context, blockCount uint64) (FeeHistory, error)

	// LatestL1GasPrice returns the current L1 base fee (wei per gas).
	LatestL1GasPrice(ctx context.Context) (uint64, error)

	// LatestBlockNumber returns the L1 chain's current head block number.
	LatestBlockNumber(ctx context.Context) (uint64, error)

	// FilterLogMessagesToL2 returns LogMessageToL2 events at or after
	// fromBlock, in (block number, event index) order.
	FilterLogMessagesToL2(ctx context.Context, fromBlock uint64) ([]L1ToL2Log, error)

	// MessageHash computes the settlement contract's canonical hash for a
	// LogMessageToL2 event, used to query CancellationTimestamp.
	MessageHash(msg L1ToL2Log) MessageHash

	// CancellationTimestamp returns the settlement contract's recorded
	// cancellation timestamp for hash, or zero if the message was never
	// flagged for cancellation.
	CancellationTimestamp(ctx context.Context, hash MessageHash) (uint64, error)
}
