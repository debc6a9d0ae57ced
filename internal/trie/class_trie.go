package trie

import (
	"github.com/lux/starknode/internal/felt"
	"github.com/lux/starknode/internal/starkhash"
)

// ClassTrie is the global class trie, keyed by class hash, with leaf value
// Poseidon("CONTRACT_CLASS_LEAF_V0", compiledClassHash) (spec.md §3's
// class-leaf formula).
type ClassTrie struct {
	*Trie
}

// NewClassTrie constructs an empty class trie.
func NewClassTrie() *ClassTrie {
	return &ClassTrie{Trie: New(func(_ felt.Felt, value felt.Felt) felt.Felt { return value })}
}

// InsertClass stages a class declaration; key is the class hash, and the
// leaf hash folds in the compiled class hash per spec.md §3.
func (ct *ClassTrie) InsertClass(classHash, compiledClassHash felt.Felt) {
	leaf := starkhash.Poseidon("CONTRACT_CLASS_LEAF_V0", compiledClassHash)
	ct.Trie.Insert(classHash, leaf)
}
