// Package felt implements the canonical 252-bit Starknet field element.
//
// A Felt is backed by holiman/uint256.Int, the same 256-bit word type the
// rest of the pack uses for EVM storage values; Starknet's field is simply a
// uint256 value that is always kept reduced modulo the Starknet prime.
package felt

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Prime is the Starknet field modulus: 2^251 + 17*2^192 + 1.
var Prime = func() *uint256.Int {
	p, err := uint256.FromHex("0x800000000000011000000000000000000000000000000000000000000000001")
	if err != nil {
		panic(err)
	}
	return p
}()

// Felt is a 252-bit field element. The zero value is Zero.
type Felt struct {
	inner uint256.Int
}

// Zero is the additive identity.
var Zero = Felt{}

// One is the multiplicative identity.
var One = FromUint64(1)

// FromUint64 builds a Felt from a small unsigned integer.
func FromUint64(v uint64) Felt {
	var f Felt
	f.inner.SetUint64(v)
	return f
}

// FromBytes32 decodes a big-endian 32-byte encoding into a Felt, reducing
// modulo Prime as needed.
func FromBytes32(b [32]byte) Felt {
	var f Felt
	f.inner.SetBytes(b[:])
	f.reduce()
	return f
}

// FromBytes decodes an arbitrary-length big-endian byte slice.
func FromBytes(b []byte) Felt {
	var f Felt
	f.inner.SetBytes(b)
	f.reduce()
	return f
}

func (f *Felt) reduce() {
	if f.inner.Gt(Prime) || f.inner.Eq(Prime) {
		f.inner.Mod(&f.inner, Prime)
	}
}

// Bytes32 returns the canonical big-endian 32-byte encoding.
func (f Felt) Bytes32() [32]byte {
	return f.inner.Bytes32()
}

// Bytes returns the canonical big-endian encoding as a freshly allocated
// slice, always 32 bytes long.
func (f Felt) Bytes() []byte {
	b := f.inner.Bytes32()
	return b[:]
}

// IsZero reports whether f is the additive identity.
func (f Felt) IsZero() bool {
	return f.inner.IsZero()
}

// Cmp compares two field elements as big-endian integers: -1, 0 or 1.
func (f Felt) Cmp(other Felt) int {
	return f.inner.Cmp(&other.inner)
}

// Equal reports whether f and other encode the same value.
func (f Felt) Equal(other Felt) bool {
	return f.inner.Eq(&other.inner)
}

// Add returns f+other mod Prime.
func (f Felt) Add(other Felt) Felt {
	var out Felt
	out.inner.AddMod(&f.inner, &other.inner, Prime)
	return out
}

// Mul returns f*other mod Prime.
func (f Felt) Mul(other Felt) Felt {
	var out Felt
	out.inner.MulMod(&f.inner, &other.inner, Prime)
	return out
}

// String renders the felt as a 0x-prefixed hex string, matching the
// big-endian comparison/encoding rule in spec.md §3.
func (f Felt) String() string {
	return fmt.Sprintf("0x%x", f.inner.Bytes())
}

// Uint64 returns the low 64 bits, for use as block numbers/nonces that are
// known to fit.
func (f Felt) Uint64() uint64 {
	return f.inner.Uint64()
}

// GobEncode/GobDecode let Felt round-trip through encoding/gob despite its
// backing uint256.Int field being unexported; encoded as the canonical
// 32-byte big-endian form used everywhere else (spec.md §3).
func (f Felt) GobEncode() ([]byte, error) {
	b := f.Bytes32()
	return b[:], nil
}

func (f *Felt) GobDecode(data []byte) error {
	var b [32]byte
	copy(b[:], data)
	*f = FromBytes32(b)
	return nil
}
