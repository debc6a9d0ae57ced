package statediff

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lux/starknode/internal/blockstore"
	"github.com/lux/starknode/internal/felt"
)

func TestStateDiffPreservesInsertionOrder(t *testing.T) {
	d := NewStateDiff()
	addrA, addrB := felt.FromUint64(2), felt.FromUint64(1)
	d.SetNonce(addrA, 1)
	d.SetNonce(addrB, 1)
	d.SetNonce(addrA, 2) // re-touch must not duplicate the order entry

	require.Equal(t, []felt.Felt{addrA, addrB}, d.AddressOrder)
}

func TestStateDiffLengthCountsEveryEntry(t *testing.T) {
	d := NewStateDiff()
	addr := felt.FromUint64(1)
	d.SetNonce(addr, 5)
	d.SetDeployedClass(addr, felt.FromUint64(9))
	d.SetStorage(addr, felt.FromUint64(1), felt.FromUint64(100))
	d.SetStorage(addr, felt.FromUint64(2), felt.FromUint64(200))
	d.DeclareClass(felt.FromUint64(9), felt.FromUint64(10))

	require.Equal(t, uint64(5), d.Length())
}

func TestStateDiffCommitmentIsOrderSensitive(t *testing.T) {
	d1 := NewStateDiff()
	d1.SetStorage(felt.FromUint64(1), felt.FromUint64(1), felt.FromUint64(100))
	d1.SetStorage(felt.FromUint64(1), felt.FromUint64(2), felt.FromUint64(200))
	c1 := StateDiffCommitment(d1)

	d2 := NewStateDiff()
	d2.SetStorage(felt.FromUint64(1), felt.FromUint64(2), felt.FromUint64(200))
	d2.SetStorage(felt.FromUint64(1), felt.FromUint64(1), felt.FromUint64(100))
	c2 := StateDiffCommitment(d2)

	require.False(t, c1.Equal(c2), "insertion order must affect the commitment")
}

func TestTransactionCommitmentDependsOnSignature(t *testing.T) {
	base := blockstore.Transaction{Hash: felt.FromUint64(1), Signature: []felt.Felt{felt.FromUint64(1)}}
	altered := base
	altered.Signature = []felt.Felt{felt.FromUint64(2)}

	c1 := TransactionCommitment([]blockstore.Transaction{base})
	c2 := TransactionCommitment([]blockstore.Transaction{altered})
	require.False(t, c1.Equal(c2))
}

func TestBlockHashLegacyCutoverDiffersFromModern(t *testing.T) {
	h := blockstore.Header{
		BlockNumber:     100,
		GlobalStateRoot: felt.FromUint64(1),
		ProtocolVersion: "0.13.1.1",
	}
	legacy, err := BlockHash(BlockHashInput{Header: h, ChainID: MainChainID})
	require.NoError(t, err)

	h.BlockNumber = LegacyBlockNumber
	modern, err := BlockHash(BlockHashInput{Header: h, ChainID: MainChainID})
	require.NoError(t, err)

	require.False(t, legacy.Equal(modern))
}

func TestBlockHashModernRequiresProtocolVersion(t *testing.T) {
	h := blockstore.Header{BlockNumber: LegacyBlockNumber + 1}
	_, err := BlockHash(BlockHashInput{Header: h, ChainID: MainChainID})
	require.Error(t, err)
}

func TestBlockHashAppliesLegacyOnlyOnMainChain(t *testing.T) {
	h := blockstore.Header{BlockNumber: 100, ProtocolVersion: "0.13.1.1"}
	got, err := BlockHash(BlockHashInput{Header: h, ChainID: "SN_SEPOLIA"})
	require.NoError(t, err, "non-main chains must use the modern formula even below the legacy cutover")

	want, err := modernBlockHash(h, felt.Zero, felt.Zero)
	require.NoError(t, err)
	require.True(t, got.Equal(want), "non-main chains must use the modern formula even below the legacy cutover")
}

func TestStateRootFallsBackToContractsRootWhenClassesRootZero(t *testing.T) {
	contracts := felt.FromUint64(5)
	require.True(t, StateRoot(contracts, felt.Zero).Equal(contracts))

	mixed := StateRoot(contracts, felt.FromUint64(7))
	require.False(t, mixed.Equal(contracts))
}
