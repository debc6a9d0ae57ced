package blockstore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"github.com/lux/starknode/internal/felt"
	"github.com/lux/starknode/internal/kv"
)

// beU64 is the big-endian u64 key encoding spec.md §6 mandates for columns
// whose keys must sort for range iteration ("block column keys are
// big-endian u64 for iteration").
func beU64(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

// addrKey and addrBlockKey implement the (addr) / (addr, blockNum) key
// shapes of the history columns in spec.md §4.2.
func addrKey(addr felt.Felt) []byte {
	b := addr.Bytes32()
	return b[:]
}

func addrBlockKey(addr felt.Felt, blockNum uint64) []byte {
	out := make([]byte, 0, 40)
	a := addr.Bytes32()
	out = append(out, a[:]...)
	out = append(out, beU64(blockNum)...)
	return out
}

func addrStorageKey(addr, key felt.Felt) []byte {
	out := make([]byte, 0, 64)
	a, k := addr.Bytes32(), key.Bytes32()
	out = append(out, a[:]...)
	out = append(out, k[:]...)
	return out
}

func addrStorageBlockKey(addr, key felt.Felt, blockNum uint64) []byte {
	out := addrStorageKey(addr, key)
	out = append(out, beU64(blockNum)...)
	return out
}

// gobEncode/gobDecode are the component-specific encode/decode used for
// blocks, classes, and state diffs. The pack's original_source/ uses Rust's
// `bincode`; Go has no direct ecosystem equivalent used anywhere in the
// retrieved pack, so this is a deliberate standard-library choice rather
// than a dependency gap.
func gobEncode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func gobDecode(kind string, data []byte, out interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(out); err != nil {
		return &kv.CodecError{Kind: kind, Err: err}
	}
	return nil
}
