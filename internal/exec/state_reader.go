package exec

import (
	"github.com/lux/starknode/internal/blockstore"
	"github.com/lux/starknode/internal/felt"
)

// StateReader resolves contract/class reads in layered order: an in-flight
// overlay (the state diff accumulated by transactions already re-executed
// in this call) first, then the pending overlay, then the committed store
// (spec.md §4.5: "builds a state reader that resolves reads in layered
// order (pending overlay → committed store)").
type StateReader struct {
	view    *blockstore.View
	base    blockstore.ResolvedID
	overlay *layer
}

type layer struct {
	nonces      map[felt.Felt]uint64
	classHashes map[felt.Felt]felt.Felt
	storage     map[felt.Felt]map[felt.Felt]felt.Felt
}

func newLayer() *layer {
	return &layer{
		nonces:      make(map[felt.Felt]uint64),
		classHashes: make(map[felt.Felt]felt.Felt),
		storage:     make(map[felt.Felt]map[felt.Felt]felt.Felt),
	}
}

// NewStateReader builds a reader rooted at base, with an empty in-flight
// overlay ready to accumulate writes from sequentially executed
// transactions.
func NewStateReader(view *blockstore.View, base blockstore.ResolvedID) *StateReader {
	return &StateReader{view: view, base: base, overlay: newLayer()}
}

// NonceAt resolves addr's nonce, consulting the in-flight overlay first.
func (s *StateReader) NonceAt(addr felt.Felt) (uint64, error) {
	if n, ok := s.overlay.nonces[addr]; ok {
		return n, nil
	}
	n, _, err := s.view.GetContractNonceAt(s.base, addr)
	return n, err
}

// ClassHashAt resolves addr's current class hash.
func (s *StateReader) ClassHashAt(addr felt.Felt) (felt.Felt, error) {
	if ch, ok := s.overlay.classHashes[addr]; ok {
		return ch, nil
	}
	ch, _, err := s.view.GetContractClassHashAt(s.base, addr)
	return ch, err
}

// StorageAt resolves a storage slot.
func (s *StateReader) StorageAt(addr, key felt.Felt) (felt.Felt, error) {
	if kvs, ok := s.overlay.storage[addr]; ok {
		if v, ok := kvs[key]; ok {
			return v, nil
		}
	}
	return s.view.GetContractStorageAt(s.base, addr, key)
}

// SetNonce records an in-flight nonce write, visible to subsequently
// executed transactions in the same ReExecute call but not persisted.
func (s *StateReader) SetNonce(addr felt.Felt, nonce uint64) {
	s.overlay.nonces[addr] = nonce
}

// SetClassHash records an in-flight class-hash write (deploy or replace).
func (s *StateReader) SetClassHash(addr, classHash felt.Felt) {
	s.overlay.classHashes[addr] = classHash
}

// SetStorage records an in-flight storage write.
func (s *StateReader) SetStorage(addr, key, value felt.Felt) {
	if s.overlay.storage[addr] == nil {
		s.overlay.storage[addr] = make(map[felt.Felt]felt.Felt)
	}
	s.overlay.storage[addr][key] = value
}
