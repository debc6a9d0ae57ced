package l1sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/metrics"

	"github.com/lux/starknode/internal/blockstore"
	"github.com/lux/starknode/log"
)

// DefaultGasPricePollInterval is the fallback poll period when
// GasPriceWorkerConfig.PollInterval is zero, matching
// original_source's DEFAULT_GAS_PRICE_POLL_MS.
const DefaultGasPricePollInterval = 10 * time.Second

// blobFeeHistoryWindow is the number of trailing L1 blocks averaged for the
// data-gas price, chosen in original_source to approximate one hour at a
// 12-second L1 block time.
const blobFeeHistoryWindow = 300

var (
	l1GasPriceGauge     = metrics.GetOrRegisterGauge("l1sync/gas_price_wei", nil)
	l1DataGasPriceGauge = metrics.GetOrRegisterGauge("l1sync/data_gas_price_wei", nil)
	l1BlockNumberGauge  = metrics.GetOrRegisterGauge("l1sync/block_number", nil)
)

// GasPriceWorkerConfig configures a GasPriceWorker.
type GasPriceWorkerConfig struct {
	PollInterval time.Duration
}

// GasPriceWorker polls a SettlementClient for L1 gas prices on an interval
// and publishes them behind a single mutex for internal/blockproduction to
// read when assembling each pending block's header, grounded on
// original_source's gas_price_worker loop.
type GasPriceWorker struct {
	client SettlementClient
	cfg    GasPriceWorkerConfig

	mu          sync.Mutex
	prices      blockstore.GasPrices
	lastUpdated time.Time
}

// NewGasPriceWorker builds a worker over client, defaulting PollInterval to
// DefaultGasPricePollInterval when unset.
func NewGasPriceWorker(client SettlementClient, cfg GasPriceWorkerConfig) *GasPriceWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultGasPricePollInterval
	}
	return &GasPriceWorker{client: client, cfg: cfg}
}

// GasPrices returns the most recently published prices; safe for concurrent
// use by internal/blockproduction.Producer while the worker keeps polling.
func (w *GasPriceWorker) GasPrices() blockstore.GasPrices {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.prices
}

// Run polls until ctx is cancelled, returning ErrStaleL1Prices if the
// watchdog window (10x PollInterval) elapses without a successful update —
// mirroring original_source's fatal panic, except surfaced as a returned
// error so internal/supervisor can treat it as a service failure instead of
// crashing the process directly.
func (w *GasPriceWorker) Run(ctx context.Context) error {
	w.touch()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.update(ctx); err != nil {
			log.Error("l1sync: failed to update gas prices", "err", err)
		} else {
			w.touch()
		}

		if time.Since(w.lastUpdateTime()) > 10*w.cfg.PollInterval {
			return fmt.Errorf("%w: last update at %s", ErrStaleL1Prices, w.lastUpdateTime())
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *GasPriceWorker) touch() {
	w.mu.Lock()
	w.lastUpdated = time.Now()
	w.mu.Unlock()
}

func (w *GasPriceWorker) lastUpdateTime() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastUpdated
}

func (w *GasPriceWorker) update(ctx context.Context) error {
	hist, err := w.client.FeeHistory(ctx, blobFeeHistoryWindow)
	if err != nil {
		return fmt.Errorf("fee history: %w", err)
	}
	if len(hist.BaseFeePerBlobGas) == 0 {
		return fmt.Errorf("fee history: empty blob base fee window")
	}

	window := hist.BaseFeePerBlobGas
	if len(window) > blobFeeHistoryWindow {
		window = window[len(window)-blobFeeHistoryWindow:]
	}
	var sum uint64
	for _, v := range window {
		sum += v
	}
	avgBlobFee := sum / uint64(len(window))

	gasPrice, err := w.client.LatestL1GasPrice(ctx)
	if err != nil {
		return fmt.Errorf("latest gas price: %w", err)
	}

	w.mu.Lock()
	// strk_l1_gas_price / strk_l1_data_gas_price are deliberately left
	// untouched here, matching original_source's update_gas_price (which
	// only ever sets the eth_* fields and notes the strk side is handled
	// elsewhere).
	w.prices.EthL1GasPrice = gasPrice
	w.prices.EthL1DataGasPrice = avgBlobFee
	w.mu.Unlock()

	l1GasPriceGauge.Update(int64(gasPrice))
	l1DataGasPriceGauge.Update(int64(avgBlobFee))

	if blockNum, err := w.client.LatestBlockNumber(ctx); err == nil {
		l1BlockNumberGauge.Update(int64(blockNum))
	}
	return nil
}
