package blockproduction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lux/starknode/internal/blockstore"
	"github.com/lux/starknode/internal/exec"
	"github.com/lux/starknode/internal/felt"
	"github.com/lux/starknode/internal/kv"
	"github.com/lux/starknode/internal/mempool"
	"github.com/lux/starknode/internal/trie"
)

type fixedGasPrices struct{ p blockstore.GasPrices }

func (f fixedGasPrices) GasPrices() blockstore.GasPrices { return f.p }

type zeroNonces struct{}

func (zeroNonces) CurrentNonce(felt.Felt) (uint64, error) { return 0, nil }

// stubVM bumps the sender's nonce by one and writes a fixed storage slot,
// standing in for the real VM the same way internal/exec's tests do.
type stubVM struct{ steps uint64 }

func (s *stubVM) Run(ctx exec.BlockContext, reader *exec.StateReader, tx blockstore.Transaction, chargeFee, validate bool) (exec.RawExecutionResult, error) {
	return exec.RawExecutionResult{
		TransactionHash: tx.Hash,
		GasConsumed:     1,
		Steps:           s.steps,
		StateWrites: exec.StateWrites{
			Nonces:  map[felt.Felt]uint64{tx.SenderOrContract: tx.Nonce + 1},
			Storage: map[felt.Felt]map[felt.Felt]felt.Felt{tx.SenderOrContract: {felt.FromUint64(1): tx.Hash}},
		},
	}, nil
}

func newTestProducer(t *testing.T, vm exec.VM, cfg Config) (*Producer, *blockstore.View, *mempool.Pool) {
	store, err := kv.OpenMem()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	view := blockstore.NewView(store)
	mutator := blockstore.NewMutator(store)
	pool := mempool.New(nil, zeroNonces{}, mempool.Limits{})
	ct := trie.NewContractTrie()
	clt := trie.NewClassTrie()

	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	if cfg.BlockTime == 0 {
		cfg.BlockTime = time.Hour
	}
	cfg.ProtocolVersion = exec.FallbackVersion

	p := NewProducer(view, mutator, pool, vm, ct, clt, cfg)
	return p, view, pool
}

func TestFinalizeProducesEmptyBlockWithZeroLatest(t *testing.T) {
	p, view, _ := newTestProducer(t, &stubVM{}, Config{})
	require.NoError(t, p.Finalize())

	latest, ok, err := view.LatestBlockNumber()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(0), latest)
}

func TestProducerIncludesReadyTxAndFinalizes(t *testing.T) {
	p, view, pool := newTestProducer(t, &stubVM{}, Config{})

	addr := felt.FromUint64(1)
	_, err := pool.Accept(blockstore.Transaction{Hash: felt.FromUint64(100), SenderOrContract: addr, Nonce: 0})
	require.NoError(t, err)

	filled, err := p.fillOne()
	require.NoError(t, err)
	require.True(t, filled)
	require.Len(t, p.includedTxs, 1)

	require.NoError(t, p.Finalize())

	blk, ok, err := view.GetBlock(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, blk.Inner.Transactions, 1)
	require.False(t, blk.Hash.IsZero())
}

func TestBouncerStopsInclusionOverStepLimit(t *testing.T) {
	p, _, pool := newTestProducer(t, &stubVM{steps: 100}, Config{Bouncer: exec.BouncerConfig{MaxSteps: 50}})

	addr := felt.FromUint64(1)
	_, err := pool.Accept(blockstore.Transaction{Hash: felt.FromUint64(1), SenderOrContract: addr, Nonce: 0})
	require.NoError(t, err)

	filled, err := p.fillOne()
	require.NoError(t, err)
	require.False(t, filled, "a single over-budget tx must not be included")
	require.Equal(t, 1, pool.Len(), "the tx must remain queued, not be dropped")
}

func TestFinalizeCarriesConfiguredGasPricesIntoHeader(t *testing.T) {
	prices := blockstore.GasPrices{EthL1GasPrice: 7, EthL1DataGasPrice: 3}
	p, view, _ := newTestProducer(t, &stubVM{}, Config{GasPrices: fixedGasPrices{p: prices}})

	require.NoError(t, p.Finalize())

	blk, ok, err := view.GetBlock(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, prices, blk.Header.L1GasPrice)
}

func TestFinalizePromotesNextNonceAfterEviction(t *testing.T) {
	p, _, pool := newTestProducer(t, &stubVM{}, Config{})
	addr := felt.FromUint64(1)
	_, err := pool.Accept(blockstore.Transaction{Hash: felt.FromUint64(1), SenderOrContract: addr, Nonce: 0})
	require.NoError(t, err)
	_, err = pool.Accept(blockstore.Transaction{Hash: felt.FromUint64(2), SenderOrContract: addr, Nonce: 1})
	require.NoError(t, err)

	_, err = p.fillOne() // includes nonce 0; TakeReady auto-promotes nonce 1
	require.NoError(t, err)
	require.NoError(t, p.Finalize())

	// nonce 1 must still be queued and ready for the next block, since the
	// confirmed block only advanced the account nonce to 1.
	require.Equal(t, 1, pool.Len())
	mtx, ok := pool.TakeReady()
	require.True(t, ok)
	require.Equal(t, uint64(1), mtx.Nonce)
}
