package trie

import (
	"github.com/lux/starknode/internal/felt"
	"github.com/lux/starknode/internal/starkhash"
)

// ContractState is the per-contract leaf payload committed into the
// contract trie (spec.md §3): class hash, storage root, and nonce.
type ContractState struct {
	ClassHash   felt.Felt
	StorageRoot felt.Felt
	Nonce       uint64
}

// ContractTrie is the global contract trie, keyed by contract address, with
// leaf value Pedersen(Pedersen(Pedersen(classHash, storageRoot), nonce), 0)
// (spec.md §3's contract-leaf formula; the trailing 0 is the reserved
// "contract state hash version" slot).
type ContractTrie struct {
	*Trie
	storageTries map[felt.Felt]*StorageTrie
}

// NewContractTrie constructs an empty contract trie.
func NewContractTrie() *ContractTrie {
	ct := &ContractTrie{storageTries: make(map[felt.Felt]*StorageTrie)}
	ct.Trie = New(contractLeafHash)
	return ct
}

func contractLeafHash(_ felt.Felt, value felt.Felt) felt.Felt {
	// value is pre-encoded by ContractTrie.CommitContract into a single Felt
	// representing the already-folded ContractState; see CommitContract.
	return value
}

// StorageTrie is the per-contract storage trie, keyed by storage slot, with
// a plain identity leaf hash (the slot's value itself), matching spec.md
// §3's storage-leaf rule.
type StorageTrie struct {
	*Trie
}

// NewStorageTrie constructs an empty per-contract storage trie.
func NewStorageTrie() *StorageTrie {
	return &StorageTrie{Trie: New(func(_ felt.Felt, value felt.Felt) felt.Felt { return value })}
}

// StorageTrieFor returns (creating if needed) the storage trie for addr.
func (ct *ContractTrie) StorageTrieFor(addr felt.Felt) *StorageTrie {
	st, ok := ct.storageTries[addr]
	if !ok {
		st = NewStorageTrie()
		ct.storageTries[addr] = st
	}
	return st
}

// CommitContract commits addr's storage trie at blockNumber, folds the
// resulting (classHash, storageRoot, nonce) triple via the leaf formula, and
// stages the folded leaf into the outer contract trie. Call once per
// touched contract before calling ct.Commit(blockNumber) (spec.md §4.3 step
// 3: "each touched contract's storage trie is committed before the
// contract trie itself").
func (ct *ContractTrie) CommitContract(addr felt.Felt, blockNumber uint64, classHash felt.Felt, nonce uint64) (felt.Felt, error) {
	st := ct.StorageTrieFor(addr)
	storageRoot, err := st.Commit(blockNumber)
	if err != nil {
		return felt.Zero, err
	}
	leaf := starkhash.Pedersen(starkhash.Pedersen(starkhash.Pedersen(classHash, storageRoot), felt.FromUint64(nonce)), felt.Zero)
	ct.Trie.Insert(addr, leaf)
	return leaf, nil
}

// RevertToBlock reverts the outer contract trie and every per-contract
// storage trie to block n (spec.md §4.3).
func (ct *ContractTrie) RevertToBlock(n uint64) error {
	for _, st := range ct.storageTries {
		if err := st.RevertToBlock(n); err != nil {
			return err
		}
	}
	return ct.Trie.RevertToBlock(n)
}
