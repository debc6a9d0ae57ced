package mempool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lux/starknode/internal/blockstore"
	"github.com/lux/starknode/internal/felt"
)

type fixedNonces struct{ n map[felt.Felt]uint64 }

func (f *fixedNonces) CurrentNonce(addr felt.Felt) (uint64, error) { return f.n[addr], nil }

func newPool(nonces map[felt.Felt]uint64) *Pool {
	return New(nil, &fixedNonces{n: nonces}, Limits{})
}

func tx(hash, addr felt.Felt, nonce uint64) blockstore.Transaction {
	return blockstore.Transaction{Hash: hash, SenderOrContract: addr, Nonce: nonce}
}

func TestAcceptPromotesReadyOnMatchingNonce(t *testing.T) {
	addr := felt.FromUint64(1)
	p := newPool(map[felt.Felt]uint64{addr: 0})

	_, err := p.Accept(tx(felt.FromUint64(100), addr, 0))
	require.NoError(t, err)

	mtx, ok := p.TakeReady()
	require.True(t, ok)
	require.True(t, mtx.Tx.Hash.Equal(felt.FromUint64(100)))
}

func TestAcceptRejectsBelowCurrentNonce(t *testing.T) {
	addr := felt.FromUint64(1)
	p := newPool(map[felt.Felt]uint64{addr: 5})
	_, err := p.Accept(tx(felt.FromUint64(1), addr, 4))
	require.ErrorIs(t, err, ErrInvalidNonce)
}

func TestAcceptRejectsDuplicateHash(t *testing.T) {
	addr := felt.FromUint64(1)
	p := newPool(map[felt.Felt]uint64{addr: 0})
	h := felt.FromUint64(1)
	_, err := p.Accept(tx(h, addr, 0))
	require.NoError(t, err)
	_, err = p.Accept(tx(h, addr, 1))
	require.ErrorIs(t, err, ErrDuplicatedTransaction)
}

func TestNonceOrderingWithinAccount(t *testing.T) {
	addr := felt.FromUint64(1)
	p := newPool(map[felt.Felt]uint64{addr: 0})

	_, err := p.Accept(tx(felt.FromUint64(2), addr, 1)) // pending, not ready yet
	require.NoError(t, err)
	_, ok := p.TakeReady()
	require.False(t, ok, "nonce 1 must not dispatch before nonce 0")

	_, err = p.Accept(tx(felt.FromUint64(1), addr, 0))
	require.NoError(t, err)

	first, ok := p.TakeReady()
	require.True(t, ok)
	require.Equal(t, uint64(0), first.Nonce)

	second, ok := p.TakeReady()
	require.True(t, ok)
	require.Equal(t, uint64(1), second.Nonce)
}

func TestCrossAccountFIFOByArrival(t *testing.T) {
	addrA, addrB := felt.FromUint64(1), felt.FromUint64(2)
	p := newPool(map[felt.Felt]uint64{addrA: 0, addrB: 0})

	_, err := p.Accept(tx(felt.FromUint64(10), addrB, 0))
	require.NoError(t, err)
	_, err = p.Accept(tx(felt.FromUint64(20), addrA, 0))
	require.NoError(t, err)

	first, ok := p.TakeReady()
	require.True(t, ok)
	require.True(t, first.Tx.Hash.Equal(felt.FromUint64(10)), "earlier arrival must dispatch first")

	second, ok := p.TakeReady()
	require.True(t, ok)
	require.True(t, second.Tx.Hash.Equal(felt.FromUint64(20)))
}

func TestEvictDropsConfirmedAndStaleNoncesAndPromotesNext(t *testing.T) {
	addr := felt.FromUint64(1)
	p := newPool(map[felt.Felt]uint64{addr: 0})

	_, err := p.Accept(tx(felt.FromUint64(1), addr, 0))
	require.NoError(t, err)
	_, err = p.Accept(tx(felt.FromUint64(2), addr, 1))
	require.NoError(t, err)
	_, err = p.Accept(tx(felt.FromUint64(3), addr, 2))
	require.NoError(t, err)

	// Block confirms nonce 0 and 1 (e.g. nonce 1 was included, nonce 0 had
	// already been dropped by an earlier block): account nonce is now 2.
	p.Evict(addr, 2)

	require.Equal(t, 1, p.Len())
	mtx, ok := p.TakeReady()
	require.True(t, ok)
	require.Equal(t, uint64(2), mtx.Nonce)
}

func TestAcceptL1HandlerIsIdempotentOnConsumedNonce(t *testing.T) {
	p := newPool(map[felt.Felt]uint64{messagingAccount: 5})
	res, err := p.AcceptL1Handler(tx(felt.FromUint64(1), felt.FromUint64(99), 3), 1)
	require.NoError(t, err)
	require.True(t, res.TransactionHash.Equal(felt.FromUint64(1)))
	require.Equal(t, 0, p.Len(), "an already-consumed L1 nonce must not be queued")
}

func TestAcceptL1HandlerQueuesUnconsumedNonce(t *testing.T) {
	p := newPool(map[felt.Felt]uint64{messagingAccount: 0})
	_, err := p.AcceptL1Handler(tx(felt.FromUint64(1), felt.FromUint64(99), 0), 1)
	require.NoError(t, err)
	require.Equal(t, 1, p.Len())

	mtx, ok := p.TakeReady()
	require.True(t, ok)
	require.True(t, mtx.Account.Equal(messagingAccount))
}
