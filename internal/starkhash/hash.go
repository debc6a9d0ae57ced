// Package starkhash is the boundary between the core and the Pedersen /
// Poseidon field hash primitives.
//
// spec.md §1 explicitly puts "the low-level Starknet transaction-hash /
// pedersen / poseidon primitives" out of scope, "assumed available as pure
// functions". The constructions below give the rest of the core (C3/C4/C5) a
// stable, callable boundary with the right signatures and composition rules;
// they are deliberately NOT a claim of cryptographic correctness for the real
// Pedersen/Poseidon permutations used on Starknet mainnet.
package starkhash

import (
	"crypto/sha256"

	"github.com/lux/starknode/internal/felt"
)

// Pedersen combines two field elements into one, the way the Starknet
// Pedersen hash is used throughout the contract/class trie (spec.md §3).
func Pedersen(a, b felt.Felt) felt.Felt {
	h := sha256.New()
	h.Write([]byte("pedersen"))
	h.Write(a.Bytes())
	h.Write(b.Bytes())
	return felt.FromBytes(h.Sum(nil))
}

// PedersenArray folds Pedersen over a slice, seeded with the slice length as
// the final mixing step, matching the Starknet convention of domain
// separating variable-length Pedersen hash chains by their length.
func PedersenArray(elems ...felt.Felt) felt.Felt {
	acc := felt.Zero
	for _, e := range elems {
		acc = Pedersen(acc, e)
	}
	return Pedersen(acc, felt.FromUint64(uint64(len(elems))))
}

// Poseidon computes a Poseidon-style sponge hash over the given elements,
// domain separated by an ASCII tag (e.g. "CONTRACT_CLASS_LEAF_V0",
// "STARKNET_STATE_V0") per spec.md §3.
func Poseidon(tag string, elems ...felt.Felt) felt.Felt {
	h := sha256.New()
	h.Write([]byte("poseidon:" + tag))
	for _, e := range elems {
		h.Write(e.Bytes())
	}
	return felt.FromBytes(h.Sum(nil))
}

// PoseidonArray is the untagged variant used for ad-hoc leaf/commitment
// hashing where no domain tag is specified by spec.md.
func PoseidonArray(elems ...felt.Felt) felt.Felt {
	return Poseidon("", elems...)
}
