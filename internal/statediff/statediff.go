// Package statediff implements C4: the canonical CommitmentStateDiff form
// fed to the trie engine, plus the commitment and block-hash functions that
// turn a finalized block's contents into the header fields spec.md §3
// requires (transaction_commitment, event_commitment, state_diff_commitment,
// receipt_commitment, and the block hash itself).
//
// Grounded on consensus/misc/eip4844.go's style of small, pure,
// batch-friendly functions over already-assembled inputs, and on
// core/types/hashing.go's fork-join pattern for computing multiple
// independent merkle roots concurrently.
package statediff

import (
	"github.com/lux/starknode/internal/felt"
)

// LegacyBlockNumber is the main-chain cutover below which block-hash
// formulas omit version and fees (spec.md §3, §4.4, glossary).
const LegacyBlockNumber = 1470

// MainChainID is the chain id the legacy cutover applies to; any other
// chain always uses the current-version hash formula (spec.md §4.4's
// open question (1): "behavior on test networks... is not specified" — we
// resolve it, per DESIGN.md, by scoping the cutover strictly to
// MainChainID and using the modern formula everywhere else).
const MainChainID = "SN_MAIN"

// StateDiff is the pre-commitment form produced by fetch/ingestion: address
// keyed updates with insertion order preserved, matching the diff shape a
// sequencer or peer would hand the core (spec.md §3's CommitmentStateDiff,
// before it is folded into the trie-ready maps).
type StateDiff struct {
	// AddressOrder is the insertion order of addresses touched by this diff,
	// preserved so commitment/trie consumers iterate deterministically
	// (spec.md §4.4: "container iteration order is the insertion order").
	AddressOrder       []felt.Felt
	Nonces             map[felt.Felt]uint64
	DeployedClasses    map[felt.Felt]felt.Felt // address -> class_hash
	StorageDiffs       map[felt.Felt]map[felt.Felt]felt.Felt
	StorageOrder       map[felt.Felt][]felt.Felt // address -> key insertion order
	DeclaredClasses    []felt.Felt                // class_hash, in declaration order
	CompiledClassHash  map[felt.Felt]felt.Felt    // class_hash -> compiled_class_hash
}

// NewStateDiff returns an empty StateDiff with its maps initialized.
func NewStateDiff() *StateDiff {
	return &StateDiff{
		Nonces:            make(map[felt.Felt]uint64),
		DeployedClasses:   make(map[felt.Felt]felt.Felt),
		StorageDiffs:      make(map[felt.Felt]map[felt.Felt]felt.Felt),
		StorageOrder:      make(map[felt.Felt][]felt.Felt),
		CompiledClassHash: make(map[felt.Felt]felt.Felt),
	}
}

// touchAddress records addr in AddressOrder the first time it's seen,
// preserving spec.md §3's "insertion order preserved" guarantee.
func (d *StateDiff) touchAddress(addr felt.Felt) {
	if _, ok := d.StorageDiffs[addr]; ok {
		return
	}
	for _, a := range d.AddressOrder {
		if a.Equal(addr) {
			return
		}
	}
	d.AddressOrder = append(d.AddressOrder, addr)
}

// SetNonce records addr's new nonce.
func (d *StateDiff) SetNonce(addr felt.Felt, nonce uint64) {
	d.touchAddress(addr)
	d.Nonces[addr] = nonce
}

// SetDeployedClass records addr's class hash (deployment or replacement).
func (d *StateDiff) SetDeployedClass(addr, classHash felt.Felt) {
	d.touchAddress(addr)
	d.DeployedClasses[addr] = classHash
}

// SetStorage records a single storage write for addr, preserving per-address
// key insertion order.
func (d *StateDiff) SetStorage(addr, key, value felt.Felt) {
	d.touchAddress(addr)
	if d.StorageDiffs[addr] == nil {
		d.StorageDiffs[addr] = make(map[felt.Felt]felt.Felt)
	}
	if _, exists := d.StorageDiffs[addr][key]; !exists {
		d.StorageOrder[addr] = append(d.StorageOrder[addr], key)
	}
	d.StorageDiffs[addr][key] = value
}

// DeclareClass records a class declaration with its compiled class hash.
func (d *StateDiff) DeclareClass(classHash, compiledClassHash felt.Felt) {
	if _, ok := d.CompiledClassHash[classHash]; !ok {
		d.DeclaredClasses = append(d.DeclaredClasses, classHash)
	}
	d.CompiledClassHash[classHash] = compiledClassHash
}

// Length is the state_diff_length header field: the total count of
// individual entries across nonces, deployed classes, storage slots, and
// declared classes (spec.md §3's `state_diff_length`).
func (d *StateDiff) Length() uint64 {
	n := uint64(len(d.Nonces) + len(d.DeployedClasses) + len(d.DeclaredClasses))
	for _, kvs := range d.StorageDiffs {
		n += uint64(len(kvs))
	}
	return n
}
