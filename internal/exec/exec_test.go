package exec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lux/starknode/internal/blockstore"
	"github.com/lux/starknode/internal/felt"
	"github.com/lux/starknode/internal/kv"
)

func TestCompareVersions(t *testing.T) {
	require.Equal(t, 0, compareVersions("0.13.1.1", "0.13.1.1"))
	require.Equal(t, -1, compareVersions("0.13.0", "0.13.1.1"))
	require.Equal(t, 1, compareVersions("0.13.2", "0.13.1.1"))
	require.Equal(t, -1, compareVersions("0.12.9.9", "0.13.1.1"))
}

func TestSupportsTracingGatesOnFallbackVersion(t *testing.T) {
	below := BlockContext{VersionedConstants: VersionedConstants{ProtocolVersion: "0.12.3"}}
	at := BlockContext{VersionedConstants: VersionedConstants{ProtocolVersion: FallbackVersion}}
	require.False(t, below.SupportsTracing())
	require.True(t, at.SupportsTracing())
}

// fakeVM charges a fixed gas cost per transaction and records nonce bumps,
// standing in for the real Cairo/blockifier interpreter this core drives.
type fakeVM struct{ fail bool }

func (f *fakeVM) Run(ctx BlockContext, reader *StateReader, tx blockstore.Transaction, chargeFee, validate bool) (RawExecutionResult, error) {
	if f.fail {
		return RawExecutionResult{}, errors.New("vm trap")
	}
	return RawExecutionResult{
		TransactionHash: tx.Hash,
		GasConsumed:     10,
		StateWrites: StateWrites{
			Nonces: map[felt.Felt]uint64{tx.SenderOrContract: tx.Nonce + 1},
		},
	}, nil
}

func newTestView(t *testing.T) (*blockstore.View, *blockstore.Mutator) {
	store, err := kv.OpenMem()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return blockstore.NewView(store), blockstore.NewMutator(store)
}

func TestReExecuteChainsStateAcrossTransactions(t *testing.T) {
	view, mut := newTestView(t)
	require.NoError(t, mut.StoreBlock(&blockstore.StoreBlockInput{
		Block: &blockstore.Block{Header: blockstore.Header{BlockNumber: 0, ProtocolVersion: FallbackVersion}},
	}))

	ex := NewExecutor(view, &fakeVM{}, ChainInfo{ChainID: "SN_MAIN"})
	addr := felt.FromUint64(1)
	tx1 := blockstore.Transaction{Hash: felt.FromUint64(100), SenderOrContract: addr, Nonce: 0}
	tx2 := blockstore.Transaction{Hash: felt.FromUint64(101), SenderOrContract: addr, Nonce: 1}

	results, err := ex.ReExecute(blockstore.ResolvedID{Kind: blockstore.ResolvedNumber, Number: 0}, nil, []blockstore.Transaction{tx1, tx2}, true, true, BouncerConfig{})
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestReExecuteSurfacesVMTrapAsContractError(t *testing.T) {
	view, mut := newTestView(t)
	require.NoError(t, mut.StoreBlock(&blockstore.StoreBlockInput{
		Block: &blockstore.Block{Header: blockstore.Header{BlockNumber: 0, ProtocolVersion: FallbackVersion}},
	}))

	ex := NewExecutor(view, &fakeVM{fail: true}, ChainInfo{})
	tx := blockstore.Transaction{Hash: felt.FromUint64(1)}
	_, err := ex.ReExecute(blockstore.ResolvedID{Kind: blockstore.ResolvedNumber, Number: 0}, nil, []blockstore.Transaction{tx}, true, true, BouncerConfig{})
	var ce *ContractError
	require.ErrorAs(t, err, &ce)
}

func TestExecutionResultToTxTraceRejectsOldProtocolVersion(t *testing.T) {
	view, mut := newTestView(t)
	require.NoError(t, mut.StoreBlock(&blockstore.StoreBlockInput{
		Block: &blockstore.Block{Header: blockstore.Header{BlockNumber: 0, ProtocolVersion: "0.11.0"}},
	}))
	ex := NewExecutor(view, &fakeVM{}, ChainInfo{})
	ctx, err := BuildBlockContext(view, blockstore.ResolvedID{Kind: blockstore.ResolvedNumber, Number: 0}, ChainInfo{}, BouncerConfig{})
	require.NoError(t, err)

	_, err = ex.ExecutionResultToTxTrace(ctx, ExecutionResult{})
	require.ErrorIs(t, err, ErrUnsupportedTxnVersion)
}

func TestEstimateMessageFeeWrapsL1Handler(t *testing.T) {
	view, mut := newTestView(t)
	require.NoError(t, mut.StoreBlock(&blockstore.StoreBlockInput{
		Block: &blockstore.Block{Header: blockstore.Header{BlockNumber: 0, ProtocolVersion: FallbackVersion, L1GasPrice: blockstore.GasPrices{EthL1GasPrice: 5}}},
	}))
	ex := NewExecutor(view, &fakeVM{}, ChainInfo{})

	fe, err := ex.EstimateMessageFee(L1HandlerMessage{
		FromAddress: felt.FromUint64(1),
		ToAddress:   felt.FromUint64(2),
		Nonce:       7,
	}, blockstore.ResolvedID{Kind: blockstore.ResolvedNumber, Number: 0}, BouncerConfig{})
	require.NoError(t, err)
	require.Equal(t, uint64(50), fe.OverallFee)
}
