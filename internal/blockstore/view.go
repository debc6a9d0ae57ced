// Package blockstore implements C2: block-id resolution and the
// class/contract/storage read path over internal/kv, including the pending
// overlay. Grounded on the history-index walking pattern of
// core/state/history_reader_v3.go (AKJUS-bsc-erigon) in the retrieval pack.
package blockstore

import (
	"errors"
	"fmt"

	"github.com/lux/starknode/internal/felt"
	"github.com/lux/starknode/internal/kv"
)

// ErrInconsistentStorage is spec.md §7's InconsistentStorage: a class with an
// info record but no compiled record.
var ErrInconsistentStorage = errors.New("blockstore: inconsistent storage: class info without compiled class")

// View is a read-only handle over the store, implementing C2. Multiple Views
// may be held concurrently; all state lives in the underlying kv.Store.
type View struct {
	store *kv.Store
}

// NewView wraps a store for reads.
func NewView(store *kv.Store) *View {
	return &View{store: store}
}

// LatestBlockNumber returns the monotonic latest_block_n counter, or
// (0, false) if no block has ever been stored.
func (v *View) LatestBlockNumber() (uint64, bool, error) {
	raw, ok, err := v.store.Get(kv.Meta, kv.MetaLatestBlockNumberKey)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}
	var n uint64
	if err := gobDecode("latest-block-number", raw, &n); err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// blockNumberOfHash resolves a block hash to its number via BlockHashToNumber.
func (v *View) blockNumberOfHash(h felt.Felt) (uint64, bool, error) {
	hb := h.Bytes32()
	raw, ok, err := v.store.Get(kv.BlockHashToNumber, hb[:])
	if err != nil || !ok {
		return 0, false, err
	}
	var n uint64
	if err := gobDecode("block-number", raw, &n); err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// Resolve implements the BlockId resolution table of spec.md §4.2.
func (v *View) Resolve(id BlockID) (ResolvedID, bool, error) {
	switch id.Kind {
	case BlockIDPending:
		return ResolvedID{Kind: ResolvedPending}, true, nil
	case BlockIDLatest:
		n, ok, err := v.LatestBlockNumber()
		if err != nil || !ok {
			return ResolvedID{}, false, err
		}
		return ResolvedID{Kind: ResolvedNumber, Number: n}, true, nil
	case BlockIDHash:
		n, ok, err := v.blockNumberOfHash(id.Hash)
		if err != nil || !ok {
			return ResolvedID{}, false, err
		}
		return ResolvedID{Kind: ResolvedNumber, Number: n}, true, nil
	case BlockIDNumber:
		latest, ok, err := v.LatestBlockNumber()
		if err != nil {
			return ResolvedID{}, false, err
		}
		if !ok || id.Number > latest {
			return ResolvedID{}, false, nil
		}
		return ResolvedID{Kind: ResolvedNumber, Number: id.Number}, true, nil
	default:
		return ResolvedID{}, false, fmt.Errorf("blockstore: unknown BlockID kind %d", id.Kind)
	}
}

// ContainsBlock is a cheap existence check (spec.md §4.2).
func (v *View) ContainsBlock(id BlockID) (bool, error) {
	_, ok, err := v.Resolve(id)
	return ok, err
}

// GetBlock fetches the full confirmed block at a resolved numeric id.
func (v *View) GetBlock(n uint64) (*Block, bool, error) {
	raw, ok, err := v.store.Get(kv.BlockNumberToBlock, beU64(n))
	if err != nil || !ok {
		return nil, false, err
	}
	var blk Block
	if err := gobDecode("block", raw, &blk); err != nil {
		return nil, false, err
	}
	return &blk, true, nil
}

// GetPendingBlock returns the pending block, synthesizing an empty one
// extending the latest confirmed block if none has been stored yet (spec.md
// §4.2: "Pending -> Pending always (an empty pending block is synthesized
// for reads if none exists)").
func (v *View) GetPendingBlock() (*PendingBlock, error) {
	raw, ok, err := v.store.Get(kv.Meta, pendingBlockKey)
	if err != nil {
		return nil, err
	}
	if ok {
		var pb PendingBlock
		if err := gobDecode("pending-block", raw, &pb); err != nil {
			return nil, err
		}
		return &pb, nil
	}
	// Synthesize an empty pending block extending the latest confirmed tip.
	latest, hasLatest, err := v.LatestBlockNumber()
	var parentHash felt.Felt
	if err != nil {
		return nil, err
	}
	if hasLatest {
		blk, ok, err := v.GetBlock(latest)
		if err != nil {
			return nil, err
		}
		if ok {
			parentHash = blockHashOf(blk)
		}
	}
	return &PendingBlock{Header: PendingHeader{ParentBlockHash: parentHash}}, nil
}

func blockHashOf(b *Block) felt.Felt {
	return b.Hash
}

// GetClassInfo implements the class read path of spec.md §4.2: pending
// overlay first when resolved to Pending, else the visibility rule
// (declaration block <= query block).
func (v *View) GetClassInfo(r ResolvedID, classHash felt.Felt) (*ClassInfo, error) {
	hb := classHash.Bytes32()

	if r.Kind == ResolvedPending {
		raw, ok, err := v.store.Get(kv.PendingClassInfo, hb[:])
		if err != nil {
			return nil, err
		}
		if ok {
			var ci ClassInfo
			if err := gobDecode("pending-class-info", raw, &ci); err != nil {
				return nil, err
			}
			return &ci, nil
		}
	}

	raw, ok, err := v.store.Get(kv.ClassInfo, hb[:])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var ci ClassInfo
	if err := gobDecode("class-info", raw, &ci); err != nil {
		return nil, err
	}
	if ci.BlockNumber == nil {
		return nil, fmt.Errorf("blockstore: class %s stored without a declaration block number", classHash)
	}
	n := r.NumericBlock(mustLatest(v))
	if *ci.BlockNumber > n {
		return nil, nil
	}
	return &ci, nil
}

// GetCompiledClass fetches the executable form, failing fatally-for-the-
// request (spec.md §4.2) if present class info lacks a compiled twin.
func (v *View) GetCompiledClass(r ResolvedID, classHash felt.Felt) ([]byte, error) {
	ci, err := v.GetClassInfo(r, classHash)
	if err != nil || ci == nil {
		return nil, err
	}
	hb := classHash.Bytes32()
	col := kv.ClassCompiled
	if r.Kind == ResolvedPending {
		if raw, ok, err := v.store.Get(kv.PendingClassCompiled, hb[:]); err != nil {
			return nil, err
		} else if ok {
			return raw, nil
		}
	}
	raw, ok, err := v.store.Get(col, hb[:])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInconsistentStorage
	}
	return raw, nil
}

// GetContractClassHashAt implements spec.md §4.2's per-block history lookup.
func (v *View) GetContractClassHashAt(r ResolvedID, addr felt.Felt) (felt.Felt, bool, error) {
	if r.Kind == ResolvedPending {
		raw, ok, err := v.store.Get(kv.PendingContractClassHashAt, addrKey(addr))
		if err != nil {
			return felt.Zero, false, err
		}
		if ok {
			return decodeFelt(raw), true, nil
		}
	}
	n := r.NumericBlock(mustLatest(v))
	fk, value, ok, err := v.store.SeekLastLE(kv.ContractClassHashAt, addrBlockKey(addr, n))
	if err != nil || !ok {
		return felt.Zero, false, err
	}
	if !sameAddrPrefix(fk, addr) {
		return felt.Zero, false, nil
	}
	return decodeFelt(value), true, nil
}

// GetContractNonceAt mirrors GetContractClassHashAt for nonces.
func (v *View) GetContractNonceAt(r ResolvedID, addr felt.Felt) (uint64, bool, error) {
	if r.Kind == ResolvedPending {
		raw, ok, err := v.store.Get(kv.PendingContractNonceAt, addrKey(addr))
		if err != nil {
			return 0, false, err
		}
		if ok {
			return decodeU64(raw), true, nil
		}
	}
	n := r.NumericBlock(mustLatest(v))
	fk, value, ok, err := v.store.SeekLastLE(kv.ContractNonceAt, addrBlockKey(addr, n))
	if err != nil || !ok {
		return 0, false, err
	}
	if !sameAddrPrefix(fk, addr) {
		return 0, false, nil
	}
	return decodeU64(value), true, nil
}

// GetContractStorageAt implements the (addr,key,blockNum) history lookup;
// missing entries default to Felt::ZERO per spec.md §4.2.
func (v *View) GetContractStorageAt(r ResolvedID, addr, key felt.Felt) (felt.Felt, error) {
	// A storage read for an unknown contract must still distinguish
	// "contract never deployed" from "key unset"; callers that need
	// ContractNotFound should call GetContractClassHashAt first (spec.md §6
	// orders BlockNotFound, then ContractNotFound, then the value).
	if r.Kind == ResolvedPending {
		raw, ok, err := v.store.Get(kv.PendingContractStorage, addrStorageKey(addr, key))
		if err != nil {
			return felt.Zero, err
		}
		if ok {
			return decodeFelt(raw), nil
		}
	}
	n := r.NumericBlock(mustLatest(v))
	fk, value, ok, err := v.store.SeekLastLE(kv.ContractStorage, addrStorageBlockKey(addr, key, n))
	if err != nil {
		return felt.Zero, err
	}
	if !ok || !sameAddrStoragePrefix(fk, addr, key) {
		return felt.Zero, nil
	}
	return decodeFelt(value), nil
}

func mustLatest(v *View) uint64 {
	n, _, _ := v.LatestBlockNumber()
	return n
}

func decodeFelt(b []byte) felt.Felt {
	var arr [32]byte
	copy(arr[:], b)
	return felt.FromBytes32(arr)
}

func decodeU64(b []byte) uint64 {
	var n uint64
	_ = gobDecode("u64", b, &n)
	return n
}

func sameAddrPrefix(foundKey []byte, addr felt.Felt) bool {
	a := addr.Bytes32()
	return len(foundKey) >= 32 && string(foundKey[:32]) == string(a[:])
}

func sameAddrStoragePrefix(foundKey []byte, addr, key felt.Felt) bool {
	a, k := addr.Bytes32(), key.Bytes32()
	return len(foundKey) >= 64 && string(foundKey[:32]) == string(a[:]) && string(foundKey[32:64]) == string(k[:])
}
