package blockstore

import (
	"fmt"

	"github.com/lux/starknode/internal/felt"
	"github.com/lux/starknode/internal/kv"
)

// pendingBlockKey stores the single PendingBlock record in the Meta column;
// spec.md §3 guarantees "at most one pending block exists".
var pendingBlockKey = []byte("pending_block")

// Mutator is the write-side handle over the store, used by block production
// (C7) and sync ingestion. Unlike View it is not safe for unsynchronized
// concurrent callers, matching the "mutator handles acquire exclusive
// access" ownership rule of spec.md §3.
type Mutator struct {
	*View
	store *kv.Store
}

// NewMutator wraps a store for writes.
func NewMutator(store *kv.Store) *Mutator {
	return &Mutator{View: NewView(store), store: store}
}

// StorePendingUpdate overlays classes/storage/nonces/class-hashes for the
// in-progress pending block (spec.md §4.7 step 3). It replaces the whole
// pending block record and refreshes the per-address pending overlay
// columns.
func (m *Mutator) StorePendingUpdate(pb *PendingBlock, declaredClasses map[felt.Felt]ClassInfo, compiled map[felt.Felt][]byte, classHashAt map[felt.Felt]felt.Felt, nonceAt map[felt.Felt]uint64, storage map[felt.Felt]map[felt.Felt]felt.Felt) error {
	b := m.store.NewBatch()

	raw, err := gobEncode(pb)
	if err != nil {
		return err
	}
	if err := b.Put(kv.Meta, pendingBlockKey, raw); err != nil {
		return err
	}

	for hash, ci := range declaredClasses {
		hb := hash.Bytes32()
		raw, err := gobEncode(ci)
		if err != nil {
			return err
		}
		if err := b.Put(kv.PendingClassInfo, hb[:], raw); err != nil {
			return err
		}
	}
	for hash, blob := range compiled {
		hb := hash.Bytes32()
		if err := b.Put(kv.PendingClassCompiled, hb[:], blob); err != nil {
			return err
		}
	}
	for addr, ch := range classHashAt {
		chb := ch.Bytes32()
		if err := b.Put(kv.PendingContractClassHashAt, addrKey(addr), chb[:]); err != nil {
			return err
		}
	}
	for addr, n := range nonceAt {
		nb, err := gobEncode(n)
		if err != nil {
			return err
		}
		if err := b.Put(kv.PendingContractNonceAt, addrKey(addr), nb); err != nil {
			return err
		}
	}
	for addr, kvs := range storage {
		for key, value := range kvs {
			vb := value.Bytes32()
			if err := b.Put(kv.PendingContractStorage, addrStorageKey(addr, key), vb[:]); err != nil {
				return err
			}
		}
	}
	return b.Commit()
}

// ClearPending clears the pending overlays atomically, matching spec.md
// §4.2's "on confirming a new block, the pending overlays for classes,
// storage, class-hashes, and nonces are cleared with range_delete(col, [],
// LAST_KEY) in one batch" and the idempotence property of spec.md §8
// ("store_pending(...); clear_pending(); store_pending(...) yields the same
// observable pending state as the last store alone").
func (m *Mutator) ClearPending() error {
	b := m.store.NewBatch()
	if err := b.Delete(kv.Meta, pendingBlockKey); err != nil {
		return err
	}
	for _, col := range []kv.Column{
		kv.PendingClassInfo, kv.PendingClassCompiled,
		kv.PendingContractClassHashAt, kv.PendingContractNonceAt,
		kv.PendingContractStorage,
	} {
		if err := b.RangeDelete(col, nil, nil); err != nil {
			return err
		}
	}
	return b.Commit()
}

// StoreBlockInput bundles a finalized block with the confirmed-column
// updates it produces (spec.md §3: "storing a new confirmed block
// atomically migrates classes and state diff into the main columns").
type StoreBlockInput struct {
	Block           *Block
	DeclaredClasses map[felt.Felt]ClassInfo
	Compiled        map[felt.Felt][]byte
	ClassHashAt     map[felt.Felt]felt.Felt
	NonceAt         map[felt.Felt]uint64
	Storage         map[felt.Felt]map[felt.Felt]felt.Felt
}

// StoreBlock atomically confirms a block: migrates classes and the state
// diff into the main columns, updates the hash->number index, clears the
// pending overlay, and bumps latest_block_n. spec.md §5 requires
// "store_block(N) must be called with N = latest+1"; this is enforced here.
func (m *Mutator) StoreBlock(in *StoreBlockInput) error {
	latest, hasLatest, err := m.LatestBlockNumber()
	if err != nil {
		return err
	}
	expected := uint64(0)
	if hasLatest {
		expected = latest + 1
	}
	if in.Block.Header.BlockNumber != expected {
		return fmt.Errorf("blockstore: store_block called with N=%d, expected %d", in.Block.Header.BlockNumber, expected)
	}

	b := m.store.NewBatch()

	blockRaw, err := gobEncode(in.Block)
	if err != nil {
		return err
	}
	if err := b.Put(kv.BlockNumberToBlock, beU64(in.Block.Header.BlockNumber), blockRaw); err != nil {
		return err
	}
	hb := in.Block.Hash.Bytes32()
	nb, err := gobEncode(in.Block.Header.BlockNumber)
	if err != nil {
		return err
	}
	if err := b.Put(kv.BlockHashToNumber, hb[:], nb); err != nil {
		return err
	}
	for i, tx := range in.Block.Inner.Transactions {
		loc := locationRecord{BlockNumber: in.Block.Header.BlockNumber, Index: uint32(i)}
		lb, err := gobEncode(loc)
		if err != nil {
			return err
		}
		txb := tx.Hash.Bytes32()
		if err := b.Put(kv.TxHashToLocation, txb[:], lb); err != nil {
			return err
		}
	}

	for hash, ci := range in.DeclaredClasses {
		hb := hash.Bytes32()
		raw, err := gobEncode(ci)
		if err != nil {
			return err
		}
		if err := b.Put(kv.ClassInfo, hb[:], raw); err != nil {
			return err
		}
	}
	for hash, blob := range in.Compiled {
		hb := hash.Bytes32()
		if err := b.Put(kv.ClassCompiled, hb[:], blob); err != nil {
			return err
		}
	}
	for addr, ch := range in.ClassHashAt {
		chb := ch.Bytes32()
		if err := b.Put(kv.ContractClassHashAt, addrBlockKey(addr, in.Block.Header.BlockNumber), chb[:]); err != nil {
			return err
		}
	}
	for addr, n := range in.NonceAt {
		vb, err := gobEncode(n)
		if err != nil {
			return err
		}
		if err := b.Put(kv.ContractNonceAt, addrBlockKey(addr, in.Block.Header.BlockNumber), vb); err != nil {
			return err
		}
	}
	for addr, kvs := range in.Storage {
		for key, value := range kvs {
			vb := value.Bytes32()
			if err := b.Put(kv.ContractStorage, addrStorageBlockKey(addr, key, in.Block.Header.BlockNumber), vb[:]); err != nil {
				return err
			}
		}
	}

	// Clear the pending overlay as part of the SAME atomic batch so there is
	// never an observable window with both an overlay and a newly-confirmed
	// block (spec.md §3: "storing a new confirmed block atomically clears
	// the pending overlay").
	if err := b.Delete(kv.Meta, pendingBlockKey); err != nil {
		return err
	}
	for _, col := range []kv.Column{
		kv.PendingClassInfo, kv.PendingClassCompiled,
		kv.PendingContractClassHashAt, kv.PendingContractNonceAt,
		kv.PendingContractStorage,
	} {
		if err := b.RangeDelete(col, nil, nil); err != nil {
			return err
		}
	}

	latestRaw, err := gobEncode(in.Block.Header.BlockNumber)
	if err != nil {
		return err
	}
	if err := b.Put(kv.Meta, kv.MetaLatestBlockNumberKey, latestRaw); err != nil {
		return err
	}

	return b.Commit()
}

type locationRecord struct {
	BlockNumber uint64
	Index       uint32
}

// RevertToBlock discards every confirmed block with number > n, used during
// reorg handling alongside internal/trie.Trie.RevertToBlock (spec.md §4.3).
// Storage/class/nonce history entries for reverted blocks are left in place:
// they are simply never the largest-key-<=N match once N has been rolled
// back, so no explicit range delete is required on those columns.
func (m *Mutator) RevertToBlock(n uint64) error {
	latest, hasLatest, err := m.LatestBlockNumber()
	if err != nil {
		return err
	}
	if !hasLatest || n >= latest {
		return nil
	}
	b := m.store.NewBatch()
	if err := b.RangeDelete(kv.BlockNumberToBlock, beU64(n+1), nil); err != nil {
		return err
	}
	raw, err := gobEncode(n)
	if err != nil {
		return err
	}
	if err := b.Put(kv.Meta, kv.MetaLatestBlockNumberKey, raw); err != nil {
		return err
	}
	return b.Commit()
}
