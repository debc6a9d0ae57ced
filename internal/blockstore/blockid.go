package blockstore

import "github.com/lux/starknode/internal/felt"

// BlockIDKind discriminates the BlockID tagged union (spec.md §3).
type BlockIDKind int

const (
	BlockIDPending BlockIDKind = iota
	BlockIDLatest
	BlockIDNumber
	BlockIDHash
)

// BlockID is the user-facing block reference: one of Pending/Latest/Number/
// Hash (spec.md §3).
type BlockID struct {
	Kind   BlockIDKind
	Number uint64
	Hash   felt.Felt
}

func Pending() BlockID                { return BlockID{Kind: BlockIDPending} }
func Latest() BlockID                 { return BlockID{Kind: BlockIDLatest} }
func Number(n uint64) BlockID         { return BlockID{Kind: BlockIDNumber, Number: n} }
func ByHash(h felt.Felt) BlockID      { return BlockID{Kind: BlockIDHash, Hash: h} }

// ResolvedKind discriminates ResolvedID: every BlockID collapses to either a
// concrete confirmed block number or the pending overlay (spec.md §4.2).
type ResolvedKind int

const (
	ResolvedPending ResolvedKind = iota
	ResolvedNumber
)

// ResolvedID is the output of resolving a BlockID against the current store
// state.
type ResolvedID struct {
	Kind   ResolvedKind
	Number uint64
}

// NumericBlock returns the block number R represents for visibility
// comparisons, treating Pending as latest+1 (spec.md §4.2: "N is R's numeric
// block (pending treated as latest+1)").
func (r ResolvedID) NumericBlock(latest uint64) uint64 {
	if r.Kind == ResolvedPending {
		return latest + 1
	}
	return r.Number
}
