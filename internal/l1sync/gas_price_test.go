package l1sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lux/starknode/internal/felt"
)

type fakeSettlementClient struct {
	feeHistory  FeeHistory
	feeHistErr  error
	gasPrice    uint64
	gasPriceErr error
	blockNumber uint64

	logs              []L1ToL2Log
	cancellationTimes map[felt.Felt]uint64

	calls atomic.Int64
}

func (f *fakeSettlementClient) FeeHistory(ctx context.Context, blockCount uint64) (FeeHistory, error) {
	f.calls.Add(1)
	return f.feeHistory, f.feeHistErr
}

func (f *fakeSettlementClient) LatestL1GasPrice(ctx context.Context) (uint64, error) {
	return f.gasPrice, f.gasPriceErr
}

func (f *fakeSettlementClient) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return f.blockNumber, nil
}

func (f *fakeSettlementClient) FilterLogMessagesToL2(ctx context.Context, fromBlock uint64) ([]L1ToL2Log, error) {
	var out []L1ToL2Log
	for _, l := range f.logs {
		if l.BlockNumber >= fromBlock {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeSettlementClient) MessageHash(msg L1ToL2Log) MessageHash {
	return felt.FromUint64(msg.Nonce + 1_000_000)
}

func (f *fakeSettlementClient) CancellationTimestamp(ctx context.Context, hash MessageHash) (uint64, error) {
	return f.cancellationTimes[hash], nil
}

func TestGasPriceWorkerUpdatesPricesFromFeeHistory(t *testing.T) {
	client := &fakeSettlementClient{
		feeHistory: FeeHistory{BaseFeePerBlobGas: []uint64{10, 20, 30}},
		gasPrice:   42,
	}
	w := NewGasPriceWorker(client, GasPriceWorkerConfig{PollInterval: 10 * time.Millisecond})

	require.NoError(t, w.update(context.Background()))

	prices := w.GasPrices()
	require.Equal(t, uint64(42), prices.EthL1GasPrice)
	require.Equal(t, uint64(20), prices.EthL1DataGasPrice) // (10+20+30)/3
}

func TestGasPriceWorkerClampsToTrailingWindow(t *testing.T) {
	window := make([]uint64, 305)
	for i := range window {
		window[i] = uint64(i)
	}
	client := &fakeSettlementClient{
		feeHistory: FeeHistory{BaseFeePerBlobGas: window},
		gasPrice:   1,
	}
	w := NewGasPriceWorker(client, GasPriceWorkerConfig{})
	require.NoError(t, w.update(context.Background()))

	// average of the last 300 entries: 5..304
	var sum uint64
	for i := 5; i < 305; i++ {
		sum += uint64(i)
	}
	require.Equal(t, sum/300, w.GasPrices().EthL1DataGasPrice)
}

func TestGasPriceWorkerRunReturnsStaleErrorWhenUpdatesFail(t *testing.T) {
	client := &fakeSettlementClient{feeHistErr: errors.New("rpc down")}
	w := NewGasPriceWorker(client, GasPriceWorkerConfig{PollInterval: 5 * time.Millisecond})

	err := w.Run(context.Background())
	require.ErrorIs(t, err, ErrStaleL1Prices)
}

func TestGasPriceWorkerRunStopsCleanlyOnContextCancel(t *testing.T) {
	client := &fakeSettlementClient{
		feeHistory: FeeHistory{BaseFeePerBlobGas: []uint64{1}},
		gasPrice:   1,
	}
	w := NewGasPriceWorker(client, GasPriceWorkerConfig{PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}
