package rpcfacade

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lux/starknode/internal/blockstore"
	"github.com/lux/starknode/internal/felt"
	"github.com/lux/starknode/internal/mempool"
)

type fixedNonce struct{ n uint64 }

func (f fixedNonce) CurrentNonce(felt.Felt) (uint64, error) { return f.n, nil }

func TestLocalMempoolProviderAcceptsInvokeTransaction(t *testing.T) {
	pool := mempool.New(nil, fixedNonce{n: 0}, mempool.Limits{MaxPerAccount: 10, MaxGlobal: 10})
	provider := LocalMempoolProvider{Pool: pool}

	tx := blockstore.Transaction{Hash: felt.FromUint64(1), SenderOrContract: felt.FromUint64(2), Nonce: 0}
	res, err := provider.AddInvokeTransaction(context.Background(), tx)
	require.NoError(t, err)
	require.True(t, res.TransactionHash.Equal(tx.Hash))
}

func TestLocalMempoolProviderTranslatesDuplicateError(t *testing.T) {
	pool := mempool.New(nil, fixedNonce{n: 0}, mempool.Limits{MaxPerAccount: 10, MaxGlobal: 10})
	provider := LocalMempoolProvider{Pool: pool}

	tx := blockstore.Transaction{Hash: felt.FromUint64(1), SenderOrContract: felt.FromUint64(2), Nonce: 0}
	_, err := provider.AddInvokeTransaction(context.Background(), tx)
	require.NoError(t, err)

	_, err = provider.AddInvokeTransaction(context.Background(), tx)
	require.Error(t, err)
	var facadeErr *Error
	require.ErrorAs(t, err, &facadeErr)
	require.Equal(t, CodeDuplicatedTransaction, facadeErr.Code)
}

func TestResolveStatusMatchesL1ConfirmationRule(t *testing.T) {
	require.Equal(t, BlockStatusAcceptedOnL1, ResolveStatus(0, 1))
	require.Equal(t, BlockStatusAcceptedOnL1, ResolveStatus(1, 1))
	require.Equal(t, BlockStatusAcceptedOnL2, ResolveStatus(2, 1))
}
