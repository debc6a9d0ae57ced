package l1sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lux/starknode/internal/felt"
	"github.com/lux/starknode/internal/kv"
	"github.com/lux/starknode/internal/mempool"
)

type zeroNonces struct{}

func (zeroNonces) CurrentNonce(felt.Felt) (uint64, error) { return 0, nil }

func newTestMessagingWorker(t *testing.T, client *fakeSettlementClient) (*MessagingWorker, *mempool.Pool) {
	store, err := kv.OpenMem()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	pool := mempool.New(nil, zeroNonces{}, mempool.Limits{})
	w := NewMessagingWorker(client, store, pool, MessagingWorkerConfig{})
	return w, pool
}

func TestMessagingWorkerSubmitsNewMessageAndAdvancesCursor(t *testing.T) {
	client := &fakeSettlementClient{
		cancellationTimes: map[felt.Felt]uint64{},
		logs: []L1ToL2Log{
			{BlockNumber: 5, EventIndex: 0, FromAddress: felt.FromUint64(1), ToAddress: felt.FromUint64(2), Nonce: 7, PaidFeeOnL1: 100},
		},
	}
	w, pool := newTestMessagingWorker(t, client)

	require.NoError(t, w.syncOnce(context.Background()))

	require.Equal(t, 1, pool.Len())
	bn, idx, err := w.Cursor()
	require.NoError(t, err)
	require.Equal(t, uint64(5), bn)
	require.Equal(t, uint64(1), idx)
}

func TestMessagingWorkerIsIdempotentAcrossRestarts(t *testing.T) {
	client := &fakeSettlementClient{
		cancellationTimes: map[felt.Felt]uint64{},
		logs: []L1ToL2Log{
			{BlockNumber: 1, EventIndex: 0, ToAddress: felt.FromUint64(2), Nonce: 1},
			{BlockNumber: 2, EventIndex: 0, ToAddress: felt.FromUint64(2), Nonce: 2},
		},
	}
	w, pool := newTestMessagingWorker(t, client)
	require.NoError(t, w.syncOnce(context.Background()))
	require.Equal(t, 2, pool.Len())

	// simulate a restart: fresh worker (empty nonce cache) over the same
	// store and pool; the client replays nonce 1 again at a later block.
	client.logs = append(client.logs, L1ToL2Log{BlockNumber: 3, EventIndex: 0, ToAddress: felt.FromUint64(2), Nonce: 1})
	w2, pool2 := NewMessagingWorker(client, w.store, pool, w.cfg), pool
	require.NoError(t, w2.syncOnce(context.Background()))

	// the replayed nonce 1 must not be re-submitted, so the pool is unchanged.
	require.Equal(t, 2, pool2.Len())
}

func TestMessagingWorkerBurnsCancelledMessageWithoutSubmitting(t *testing.T) {
	hash := felt.FromUint64(1_000_007)
	client := &fakeSettlementClient{
		cancellationTimes: map[felt.Felt]uint64{hash: 12345},
		logs: []L1ToL2Log{
			{BlockNumber: 1, EventIndex: 0, ToAddress: felt.FromUint64(2), Nonce: 7},
		},
	}
	w, pool := newTestMessagingWorker(t, client)

	require.NoError(t, w.syncOnce(context.Background()))

	require.Equal(t, 0, pool.Len())
	consumed, err := w.consumed(7)
	require.NoError(t, err)
	require.True(t, consumed, "cancelled message's nonce must still be recorded consumed")
}

func TestMessagingWorkerResumesFromConfiguredStartBlock(t *testing.T) {
	client := &fakeSettlementClient{cancellationTimes: map[felt.Felt]uint64{}}
	store, err := kv.OpenMem()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	pool := mempool.New(nil, zeroNonces{}, mempool.Limits{})
	w := NewMessagingWorker(client, store, pool, MessagingWorkerConfig{StartBlock: 100})

	bn, idx, err := w.Cursor()
	require.NoError(t, err)
	require.Equal(t, uint64(100), bn)
	require.Equal(t, uint64(0), idx)
}
