package statediff

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/lux/starknode/internal/blockstore"
	"github.com/lux/starknode/internal/felt"
	"github.com/lux/starknode/internal/starkhash"
)

// merkleRoot folds a list of leaves into a single root via a Pedersen fold
// finished with the leaf count. internal/trie builds its roots with a
// different fold (spec.md §4.4 does not mandate a specific internal node
// layout, only that leaves be consumed "in a documented, fixed order").
func merkleRoot(leaves []felt.Felt) felt.Felt {
	acc := felt.Zero
	for _, l := range leaves {
		acc = starkhash.Pedersen(acc, l)
	}
	return starkhash.Pedersen(acc, felt.FromUint64(uint64(len(leaves))))
}

// signatureHash folds a transaction's signature elements into one leaf
// input, matching spec.md §4.4's tx leaf `(tx_hash, signature_hash)`.
func signatureHash(sig []felt.Felt) felt.Felt {
	return starkhash.PedersenArray(sig...)
}

// TransactionCommitment computes the merkle root over per-tx leaves
// `(tx_hash, signature_hash)`, in block order (spec.md §4.4).
func TransactionCommitment(txs []blockstore.Transaction) felt.Felt {
	leaves := make([]felt.Felt, len(txs))
	for i, tx := range txs {
		leaves[i] = starkhash.Pedersen(tx.Hash, signatureHash(tx.Signature))
	}
	return merkleRoot(leaves)
}

// keysHash and dataHash fold an event's keys/data arrays into single leaf
// inputs, matching spec.md §4.4's event leaf `(from_address, keys_hash,
// data_hash)`.
func keysHash(keys []felt.Felt) felt.Felt { return starkhash.PedersenArray(keys...) }
func dataHash(data []felt.Felt) felt.Felt { return starkhash.PedersenArray(data...) }

// EventCommitment computes the merkle root over every event across every
// receipt, in (transaction order, event order within transaction) — the
// insertion order of the converted CommitmentStateDiff's tx/receipt list
// (spec.md §4.4).
func EventCommitment(receipts []blockstore.Receipt) felt.Felt {
	var leaves []felt.Felt
	for _, r := range receipts {
		for _, ev := range r.Events {
			leaves = append(leaves, starkhash.Pedersen(ev.FromAddress, starkhash.Pedersen(keysHash(ev.Keys), dataHash(ev.Data))))
		}
	}
	return merkleRoot(leaves)
}

// ReceiptCommitment computes a merkle root over receipt leaves (tx_hash,
// actual_fee, status). Not explicitly formularized in spec.md §4.4 beyond
// being one of the header's per-block commitments (spec.md §3); we use the
// same (tx_hash, outcome) leaf shape the transaction/event commitments use
// for consistency, and note the exact receipt-leaf encoding as an
// implementation freedom in DESIGN.md.
func ReceiptCommitment(receipts []blockstore.Receipt) felt.Felt {
	leaves := make([]felt.Felt, len(receipts))
	for i, r := range receipts {
		status := felt.FromUint64(0)
		if r.Status == blockstore.ExecutionReverted {
			status = felt.FromUint64(1)
		}
		leaves[i] = starkhash.Pedersen(r.TransactionHash, starkhash.Pedersen(felt.FromUint64(r.ActualFee), status))
	}
	return merkleRoot(leaves)
}

// StateDiffCommitment computes a merkle root over the state diff's entries
// in the CommitmentStateDiff's preserved insertion order (spec.md §3,
// §4.4): per-address (nonce?, class_hash?, storage entries) leaves followed
// by per-class (compiled_class_hash) leaves.
func StateDiffCommitment(d *StateDiff) felt.Felt {
	var leaves []felt.Felt
	for _, addr := range d.AddressOrder {
		nonce := felt.FromUint64(d.Nonces[addr])
		classHash := d.DeployedClasses[addr]
		leaves = append(leaves, starkhash.Pedersen(addr, starkhash.Pedersen(nonce, classHash)))
		for _, key := range d.StorageOrder[addr] {
			leaves = append(leaves, starkhash.Pedersen(addr, starkhash.Pedersen(key, d.StorageDiffs[addr][key])))
		}
	}
	for _, classHash := range d.DeclaredClasses {
		leaves = append(leaves, starkhash.Pedersen(classHash, d.CompiledClassHash[classHash]))
	}
	return merkleRoot(leaves)
}

// ComputeCommitments runs the transaction, event, receipt, and state-diff
// commitments concurrently (spec.md §4.4: "fully parallelizable and computed
// concurrently (fork-join)"), returning them in a fixed order.
func ComputeCommitments(txs []blockstore.Transaction, receipts []blockstore.Receipt, diff *StateDiff) (txRoot, eventRoot, receiptRoot, stateDiffRoot felt.Felt, err error) {
	var g errgroup.Group
	g.Go(func() error { txRoot = TransactionCommitment(txs); return nil })
	g.Go(func() error { eventRoot = EventCommitment(receipts); return nil })
	g.Go(func() error { receiptRoot = ReceiptCommitment(receipts); return nil })
	g.Go(func() error { stateDiffRoot = StateDiffCommitment(diff); return nil })
	if err = g.Wait(); err != nil {
		return felt.Zero, felt.Zero, felt.Zero, felt.Zero, err
	}
	return txRoot, eventRoot, receiptRoot, stateDiffRoot, nil
}

// StateRoot combines the contract and class trie roots per spec.md §3:
// H_poseidon("STARKNET_STATE_V0", contracts_root, classes_root) when
// classes_root != 0, else contracts_root alone.
func StateRoot(contractsRoot, classesRoot felt.Felt) felt.Felt {
	if classesRoot.IsZero() {
		return contractsRoot
	}
	return starkhash.Poseidon("STARKNET_STATE_V0", contractsRoot, classesRoot)
}

// BlockHashInput bundles everything BlockHash needs out of a finalized
// header plus its computed commitments (spec.md §4.4: "Version-dependent
// mixture of header fields and commitments").
type BlockHashInput struct {
	Header          blockstore.Header
	ChainID         string
	TxCommitment    felt.Felt
	EventCommitment felt.Felt
}

// BlockHash computes the block hash, applying the legacy cutover formula
// for block_number < LegacyBlockNumber on MainChainID (spec.md §4.4,
// glossary "Legacy block"). The legacy formula omits protocol version and
// fee-related fields; the modern formula folds them in.
func BlockHash(in BlockHashInput) (felt.Felt, error) {
	h := in.Header
	if in.ChainID == MainChainID && h.BlockNumber < LegacyBlockNumber {
		return legacyBlockHash(h, in.TxCommitment, in.EventCommitment), nil
	}
	return modernBlockHash(h, in.TxCommitment, in.EventCommitment)
}

// legacyBlockHash mixes only the pre-fee, pre-version header fields,
// matching the glossary's "hash formulas omit version and fees" rule.
func legacyBlockHash(h blockstore.Header, txRoot, eventRoot felt.Felt) felt.Felt {
	return starkhash.Poseidon("legacy",
		felt.FromUint64(h.BlockNumber),
		h.GlobalStateRoot,
		h.SequencerAddress,
		felt.FromUint64(h.BlockTimestamp),
		felt.FromUint64(h.TransactionCount),
		txRoot,
		felt.FromUint64(h.EventCount),
		eventRoot,
		h.ParentBlockHash,
	)
}

// modernBlockHash mixes the full header, including the protocol version and
// the state-diff/receipt commitments and gas prices that post-cutover
// blocks carry.
func modernBlockHash(h blockstore.Header, txRoot, eventRoot felt.Felt) (felt.Felt, error) {
	if h.ProtocolVersion == "" {
		return felt.Zero, fmt.Errorf("statediff: modern block hash requires a protocol_version")
	}
	return starkhash.Poseidon("STARKNET_BLOCK_HASH0",
		felt.FromUint64(h.BlockNumber),
		h.GlobalStateRoot,
		h.SequencerAddress,
		felt.FromUint64(h.BlockTimestamp),
		felt.FromUint64(h.TransactionCount),
		txRoot,
		felt.FromUint64(h.EventCount),
		eventRoot,
		felt.FromUint64(h.StateDiffLength),
		h.StateDiffCommitment,
		h.ReceiptCommitment,
		felt.FromUint64(h.L1GasPrice.EthL1GasPrice),
		felt.FromUint64(h.L1GasPrice.StrkL1GasPrice),
		felt.FromUint64(h.L1GasPrice.EthL1DataGasPrice),
		felt.FromUint64(h.L1GasPrice.StrkL1DataGasPrice),
		h.ParentBlockHash,
	), nil
}
