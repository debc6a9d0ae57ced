package l1sync

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/lux/starknode/internal/blockstore"
	"github.com/lux/starknode/internal/felt"
	"github.com/lux/starknode/internal/kv"
	"github.com/lux/starknode/internal/mempool"
	"github.com/lux/starknode/log"
)

// consumedNonceCacheSize bounds the in-memory dedup cache sitting in front
// of the durable L1MessagingNonces column, sized the same way warp/backend.go
// sizes its message cache (a few hundred entries covers a resync's hot
// tail without needing to touch the value in spec.md's sizing budget).
const consumedNonceCacheSize = 500

// DefaultMessagingPollInterval is how often the worker re-polls the
// settlement client for new blocks once it has caught up; the teacher's
// reorg loop and original_source's messaging sync both use a short fixed
// poll rather than a push subscription, since neither assumes the L1 client
// supports log subscriptions.
const DefaultMessagingPollInterval = 6 * time.Second

// messagingCursorKey is the single Meta-shaped row in MessagingLastSynced
// holding the (block_number, event_index) resume cursor (spec.md §4.8).
var messagingCursorKey = []byte("cursor")

func beU64(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

func nonceKey(nonce uint64) []byte { return beU64(nonce) }

func encodeCursor(blockNumber, eventIndex uint64) []byte {
	out := make([]byte, 0, 16)
	out = append(out, beU64(blockNumber)...)
	out = append(out, beU64(eventIndex)...)
	return out
}

func decodeCursor(b []byte) (blockNumber, eventIndex uint64, ok bool) {
	if len(b) != 16 {
		return 0, 0, false
	}
	return binary.BigEndian.Uint64(b[:8]), binary.BigEndian.Uint64(b[8:]), true
}

// MessagingWorkerConfig configures a MessagingWorker.
type MessagingWorkerConfig struct {
	PollInterval time.Duration
	// StartBlock seeds LastSyncedEventBlock on a store that has never synced
	// before (spec.md §4.8's resume cursor starts here on first run).
	StartBlock uint64
}

// MessagingWorker streams LogMessageToL2 events from a SettlementClient,
// deduplicates them against kv.L1MessagingNonces, honors the settlement
// contract's cancellation window, and submits surviving messages to the
// mempool as L1-handler transactions — spec.md §4.8, grounded on
// original_source's messaging sync task and adapted from the teacher's
// warp/backend.go idempotent-dedup-then-persist discipline (check the
// durable store before doing any work, persist before calling out to the
// next stage, only advance the cursor after that call succeeds).
type MessagingWorker struct {
	client SettlementClient
	store  *kv.Store
	pool   *mempool.Pool
	cfg    MessagingWorkerConfig

	// consumedCache mirrors recently-seen consumed nonces so a hot resync
	// (the same trailing blocks re-scanned every poll) doesn't need a pebble
	// read per event; the durable column in L1MessagingNonces remains the
	// source of truth and is always consulted on a cache miss.
	consumedCache *lru.Cache
}

// NewMessagingWorker builds a MessagingWorker over store/pool, defaulting
// PollInterval to DefaultMessagingPollInterval when unset.
func NewMessagingWorker(client SettlementClient, store *kv.Store, pool *mempool.Pool, cfg MessagingWorkerConfig) *MessagingWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultMessagingPollInterval
	}
	cache, _ := lru.New(consumedNonceCacheSize)
	return &MessagingWorker{client: client, store: store, pool: pool, cfg: cfg, consumedCache: cache}
}

// Cursor returns the current resume position, seeding it from
// cfg.StartBlock on first use.
func (w *MessagingWorker) Cursor() (blockNumber, eventIndex uint64, err error) {
	raw, ok, err := w.store.Get(kv.MessagingLastSynced, messagingCursorKey)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return w.cfg.StartBlock, 0, nil
	}
	bn, ei, decOk := decodeCursor(raw)
	if !decOk {
		return 0, 0, &kv.CodecError{Kind: "messaging-cursor"}
	}
	return bn, ei, nil
}

func (w *MessagingWorker) advanceCursor(blockNumber, eventIndex uint64) error {
	return w.store.Put(kv.MessagingLastSynced, messagingCursorKey, encodeCursor(blockNumber, eventIndex))
}

// consumed reports whether nonce has already been recorded in
// L1MessagingNonces, serving the answer from consumedCache when possible.
func (w *MessagingWorker) consumed(nonce uint64) (bool, error) {
	if _, hit := w.consumedCache.Get(nonce); hit {
		return true, nil
	}
	_, ok, err := w.store.Get(kv.L1MessagingNonces, nonceKey(nonce))
	if err != nil {
		return false, err
	}
	if ok {
		w.consumedCache.Add(nonce, struct{}{})
	}
	return ok, nil
}

func (w *MessagingWorker) markConsumed(nonce uint64) error {
	if err := w.store.Put(kv.L1MessagingNonces, nonceKey(nonce), []byte{1}); err != nil {
		return err
	}
	w.consumedCache.Add(nonce, struct{}{})
	return nil
}

// Run polls until ctx is cancelled, processing every available
// LogMessageToL2 event in (block, index) order on each tick.
func (w *MessagingWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.syncOnce(ctx); err != nil {
			log.Error("l1sync: messaging sync failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// syncOnce processes every event available from the current cursor onward;
// Run calls it on every poll, and tests call it directly.
func (w *MessagingWorker) syncOnce(ctx context.Context) error {
	fromBlock, fromIndex, err := w.Cursor()
	if err != nil {
		return fmt.Errorf("cursor: %w", err)
	}

	logs, err := w.client.FilterLogMessagesToL2(ctx, fromBlock)
	if err != nil {
		return fmt.Errorf("filter logs: %w", err)
	}

	for _, msg := range logs {
		if msg.BlockNumber < fromBlock || (msg.BlockNumber == fromBlock && msg.EventIndex < fromIndex) {
			continue
		}
		if err := w.processOne(ctx, msg); err != nil {
			return err
		}
		if err := w.advanceCursor(msg.BlockNumber, msg.EventIndex+1); err != nil {
			return fmt.Errorf("advance cursor: %w", err)
		}
	}
	return nil
}

// processOne applies spec.md §4.8's four-step sequence to a single event.
func (w *MessagingWorker) processOne(ctx context.Context, msg L1ToL2Log) error {
	already, err := w.consumed(msg.Nonce)
	if err != nil {
		return fmt.Errorf("dedup check: %w", err)
	}
	if already {
		return nil
	}

	hash := w.client.MessageHash(msg)
	cancelledAt, err := w.client.CancellationTimestamp(ctx, hash)
	if err != nil {
		return fmt.Errorf("cancellation timestamp: %w", err)
	}
	if cancelledAt != 0 {
		return w.markConsumed(msg.Nonce)
	}

	if err := w.markConsumed(msg.Nonce); err != nil {
		return fmt.Errorf("mark consumed: %w", err)
	}

	calldata := append([]felt.Felt{msg.FromAddress}, msg.Payload...)
	tx := blockstore.Transaction{
		Hash:               hash,
		Type:               blockstore.TxL1Handler,
		SenderOrContract:   msg.ToAddress,
		Nonce:              msg.Nonce,
		Calldata:           calldata,
		EntryPointSelector: msg.Selector,
	}
	if _, err := w.pool.AcceptL1Handler(tx, msg.PaidFeeOnL1); err != nil {
		return fmt.Errorf("accept l1 handler: %w", err)
	}
	return nil
}
