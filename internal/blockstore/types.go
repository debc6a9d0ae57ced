package blockstore

import "github.com/lux/starknode/internal/felt"

// L1DAMode selects how state diffs are published to L1 (spec.md §3).
type L1DAMode int

const (
	L1DACalldata L1DAMode = iota
	L1DABlob
)

// GasPrices mirrors the header's l1_gas_price={eth,strk}x{gas,data_gas}
// quartet (spec.md §3).
type GasPrices struct {
	EthL1GasPrice     uint64
	StrkL1GasPrice    uint64
	EthL1DataGasPrice uint64
	StrkL1DataGasPrice uint64
}

// Header is a confirmed block's header (spec.md §3).
type Header struct {
	ParentBlockHash       felt.Felt
	BlockNumber           uint64
	GlobalStateRoot       felt.Felt
	SequencerAddress      felt.Felt
	BlockTimestamp        uint64
	TransactionCount      uint64
	TransactionCommitment felt.Felt
	EventCount            uint64
	EventCommitment       felt.Felt
	StateDiffLength       uint64
	StateDiffCommitment   felt.Felt
	ReceiptCommitment     felt.Felt
	ProtocolVersion       string
	L1GasPrice            GasPrices
	L1DAMode              L1DAMode
}

// BlockHash is a block's hash, computed by internal/statediff.BlockHash once
// a block is finalized and stored in Block.Hash rather than in Header, so
// Header stays a plain value type.
type BlockHash = felt.Felt

// PendingHeader is the header of the tentative block under construction: it
// carries no block_number/block_hash (spec.md §3).
type PendingHeader struct {
	ParentBlockHash  felt.Felt
	SequencerAddress felt.Felt
	BlockTimestamp   uint64
	ProtocolVersion  string
	L1GasPrice       GasPrices
	L1DAMode         L1DAMode
}

// TransactionType tags the variant of an opaque transaction payload; the
// actual Starknet transaction encodings are an external collaborator per
// spec.md §1, so Transaction only carries what the core needs to route and
// hash it.
type TransactionType int

const (
	TxInvokeV0 TransactionType = iota
	TxInvokeV1
	TxInvokeV3
	TxDeclareV0
	TxDeclareV1
	TxDeclareV2
	TxDeclareV3
	TxDeployAccountV1
	TxDeployAccountV3
	TxDeploy
	TxL1Handler
)

// Transaction is the core's minimal view of a Starknet transaction.
type Transaction struct {
	Hash        felt.Felt
	Type        TransactionType
	SenderOrContract felt.Felt
	Nonce       uint64
	MaxFee      uint64
	Signature   []felt.Felt
	Calldata    []felt.Felt
	// EntryPointSelector is only meaningful for L1Handler transactions.
	EntryPointSelector felt.Felt
}

// ExecutionStatus is the outcome recorded in a transaction's receipt.
type ExecutionStatus int

const (
	ExecutionSucceeded ExecutionStatus = iota
	ExecutionReverted
)

// Receipt records the fee/event/status outcome of one transaction.
type Receipt struct {
	TransactionHash felt.Felt
	ActualFee       uint64
	FeeUnit         FeeUnit
	Status          ExecutionStatus
	RevertReason    string
	Events          []Event
	MessagesSent    []L2ToL1Message
}

// FeeUnit is the currency a fee was paid in (spec.md §4.5).
type FeeUnit int

const (
	FeeUnitWei FeeUnit = iota
	FeeUnitFri
)

// Event is a single emitted Starknet event (spec.md §4.4).
type Event struct {
	FromAddress felt.Felt
	Keys        []felt.Felt
	Data        []felt.Felt
}

// L2ToL1Message is a message emitted from L2 towards L1.
type L2ToL1Message struct {
	ToAddress felt.Felt
	Payload   []felt.Felt
}

// Inner holds a block's ordered transactions and parallel receipts
// (spec.md §3: "tx_hashes.len() == transactions.len() == receipts.len()").
type Inner struct {
	Transactions []Transaction
	Receipts     []Receipt
}

// Block is a confirmed block (spec.md §3).
type Block struct {
	Header Header
	Inner  Inner
	// TxHashes is carried redundantly alongside Inner.Transactions so
	// lookups by hash don't need to re-derive it; "MaybeTxHashes" in
	// spec.md's block tuple.
	TxHashes []felt.Felt
	// Hash is the block hash computed once by internal/statediff.BlockHash
	// at finalize time and persisted alongside the rest of the block so
	// reads never need to recompute it.
	Hash felt.Felt
}

// PendingBlock is the tentative block under construction; it overlays the
// latest confirmed state (spec.md §3).
type PendingBlock struct {
	Header   PendingHeader
	Inner    Inner
	TxHashes []felt.Felt
}

// ClassInfo is the metadata half of a declared class (spec.md §3).
type ClassInfo struct {
	ClassHash         felt.Felt
	CompiledClassHash *felt.Felt
	Abi               string
	EntryPoints       []byte
	BlockNumber       *uint64
}
