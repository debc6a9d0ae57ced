package rpcfacade

import "github.com/lux/starknode/internal/felt"

// BlockStatus mirrors the three statuses spec.md §6 distinguishes for
// getBlockWithTxHashes et al.
type BlockStatus int

const (
	BlockStatusAcceptedOnL2 BlockStatus = iota
	BlockStatusAcceptedOnL1
	BlockStatusPending
)

func (s BlockStatus) String() string {
	switch s {
	case BlockStatusAcceptedOnL1:
		return "ACCEPTED_ON_L1"
	case BlockStatusPending:
		return "PENDING"
	default:
		return "ACCEPTED_ON_L2"
	}
}

// ResolveStatus implements spec.md §6's rule for getBlockWithTxHashes:
// "Status = AcceptedOnL1 iff N ≤ l1_last_confirmed else AcceptedOnL2".
func ResolveStatus(blockNumber, l1LastConfirmed uint64) BlockStatus {
	if blockNumber <= l1LastConfirmed {
		return BlockStatusAcceptedOnL1
	}
	return BlockStatusAcceptedOnL2
}

// FeeEstimate is the per-transaction result of estimateFee/
// estimateMessageFee (spec.md §6).
type FeeEstimate struct {
	GasConsumed     uint64
	GasPrice        uint64
	DataGasConsumed uint64
	DataGasPrice    uint64
	OverallFee      uint64
	Unit            FeeUnit
}

// FeeUnit mirrors blockstore.FeeUnit at the RPC boundary, kept as its own
// type so this package's wire shapes don't leak blockstore internals to an
// eventual JSON encoder.
type FeeUnit int

const (
	FeeUnitWei FeeUnit = iota
	FeeUnitFri
)

// StorageQuery is the (contract, key, block) triple getStorageAt resolves.
// Neither it nor StorageResult encodes the §6 precedence (BlockNotFound
// before ContractNotFound before a present-or-zero value); that ordering is
// up to the code that builds a StorageResult.
type StorageQuery struct {
	ContractAddress felt.Felt
	Key             felt.Felt
	BlockNumber     uint64
}

// StorageResult is Value=ZERO with no error when the key was never written,
// matching spec.md §4.2's visibility rule.
type StorageResult struct {
	Value felt.Felt
}
