package blockproduction

import (
	"context"
	"time"

	"github.com/lux/starknode/internal/blockstore"
	"github.com/lux/starknode/internal/exec"
	"github.com/lux/starknode/internal/felt"
	"github.com/lux/starknode/internal/mempool"
	"github.com/lux/starknode/internal/statediff"
	"github.com/lux/starknode/internal/trie"
)

// GasPriceSource supplies the latest L1 gas prices for new block headers;
// internal/l1sync.GasPriceWorker satisfies this, kept as a narrow interface
// here the same way exec.VM and mempool.NonceSource are so this package
// never needs to import internal/l1sync directly.
type GasPriceSource interface {
	GasPrices() blockstore.GasPrices
}

// Config bundles Producer's tunables (spec.md §4.7: batch-size, block-time,
// bouncer limits).
type Config struct {
	ChainID          string
	SequencerAddress felt.Felt
	ProtocolVersion  string
	L1DAMode         blockstore.L1DAMode
	BatchSize        int
	BlockTime        time.Duration
	Bouncer          exec.BouncerConfig
	// GasPrices is optional; when nil, headers carry zero-valued gas prices.
	GasPrices GasPriceSource
}

func (c Config) gasPrices() blockstore.GasPrices {
	if c.GasPrices == nil {
		return blockstore.GasPrices{}
	}
	return c.GasPrices.GasPrices()
}

// Producer drives one pending block at a time (spec.md §4.7).
type Producer struct {
	view    *blockstore.View
	mutator *blockstore.Mutator
	pool    *mempool.Pool
	vm      exec.VM
	cfg     Config

	contractTrie *trie.ContractTrie
	classTrie    *trie.ClassTrie

	reader       *exec.StateReader
	bouncer      *Bouncer
	includedTxs  []blockstore.Transaction
	includedRecs []blockstore.Receipt
	diff         *statediff.StateDiff
	touched      map[felt.Felt]bool // addresses touched this pending block
}

// NewProducer builds a Producer over the given store/mempool/trie handles.
func NewProducer(view *blockstore.View, mutator *blockstore.Mutator, pool *mempool.Pool, vm exec.VM, contractTrie *trie.ContractTrie, classTrie *trie.ClassTrie, cfg Config) *Producer {
	p := &Producer{
		view:         view,
		mutator:      mutator,
		pool:         pool,
		vm:           vm,
		cfg:          cfg,
		contractTrie: contractTrie,
		classTrie:    classTrie,
	}
	p.resetBatch()
	return p
}

func (p *Producer) resetBatch() {
	pending := blockstore.ResolvedID{Kind: blockstore.ResolvedPending}
	p.reader = exec.NewStateReader(p.view, pending)
	p.bouncer = NewBouncer(p.cfg.Bouncer)
	p.includedTxs = nil
	p.includedRecs = nil
	p.diff = statediff.NewStateDiff()
	p.touched = make(map[felt.Felt]bool)
}

// idlePoll bounds how long Run waits for new ready mempool work before
// re-checking the block-time ticker and context cancellation.
const idlePoll = 50 * time.Millisecond

// Run drives the pending-block loop until ctx is canceled, implementing
// spec.md §4.7's full lifecycle: fill batches up to BatchSize/bouncer
// limits, persist the pending overlay on batch close, finalize into a
// confirmed block on every BlockTime tick.
func (p *Producer) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.BlockTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Finalize(); err != nil {
				return err
			}
			continue
		default:
		}

		filledAny, err := p.fillOne()
		if err != nil {
			return err
		}
		if !filledAny {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := p.Finalize(); err != nil {
					return err
				}
			case <-time.After(idlePoll):
			}
			continue
		}
		if len(p.includedTxs) >= p.cfg.BatchSize {
			if err := p.closeBatch(); err != nil {
				return err
			}
		}
	}
}

// fillOne attempts to include the next ready mempool transaction, reporting
// whether it consumed one: true when the transaction was included, and also
// when it failed to execute and was dropped from the mempool.
func (p *Producer) fillOne() (bool, error) {
	next, ok := p.pool.PeekReady()
	if !ok {
		return false, nil
	}

	raw, err := p.vm.Run(p.blockContext(), p.reader, next.Tx, true, true)
	if err != nil {
		// A transaction that fails to execute is dropped from the mempool
		// rather than retried forever; callers that need retry semantics
		// (e.g. transient state errors) should re-submit.
		p.pool.TakeReady()
		return true, nil
	}

	usage := Usage{
		Steps:         raw.Steps,
		Events:        uint64(len(raw.Events)),
		StateDiffSize: uint64(len(raw.StateWrites.Storage) + len(raw.StateWrites.Nonces) + len(raw.StateWrites.ClassHashes)),
	}
	if !p.bouncer.Fits(usage) {
		// spec.md §4.7: the tx "stays in the mempool" — do not pop it.
		return false, nil
	}

	p.pool.TakeReady()
	p.bouncer.Add(usage)
	p.applyWrites(next.Tx.SenderOrContract, raw)

	status := blockstore.ExecutionSucceeded
	if raw.Reverted {
		status = blockstore.ExecutionReverted
	}
	p.includedTxs = append(p.includedTxs, next.Tx)
	p.includedRecs = append(p.includedRecs, blockstore.Receipt{
		TransactionHash: next.Tx.Hash,
		ActualFee:       raw.GasConsumed,
		Status:          status,
		RevertReason:    raw.RevertReason,
		Events:          raw.Events,
		MessagesSent:    raw.Messages,
	})
	return true, nil
}

// applyWrites folds a transaction's state writes into the in-flight reader
// and the accumulated StateDiff, preserving insertion order as required by
// spec.md §3/§4.4.
func (p *Producer) applyWrites(primaryAddr felt.Felt, raw exec.RawExecutionResult) {
	p.touched[primaryAddr] = true
	for addr, n := range raw.StateWrites.Nonces {
		p.reader.SetNonce(addr, n)
		p.diff.SetNonce(addr, n)
		p.touched[addr] = true
	}
	for addr, ch := range raw.StateWrites.ClassHashes {
		p.reader.SetClassHash(addr, ch)
		p.diff.SetDeployedClass(addr, ch)
		p.touched[addr] = true
	}
	for classHash, compiledHash := range raw.StateWrites.DeclaredClasses {
		p.diff.DeclareClass(classHash, compiledHash)
	}
	for addr, kvs := range raw.StateWrites.Storage {
		p.touched[addr] = true
		for k, v := range kvs {
			p.reader.SetStorage(addr, k, v)
			p.diff.SetStorage(addr, k, v)
		}
	}
}

func (p *Producer) blockContext() exec.BlockContext {
	latest, hasLatest, _ := p.view.LatestBlockNumber()
	next := uint64(0)
	if hasLatest {
		next = latest + 1
	}
	return exec.BlockContext{
		BlockInfo: exec.BlockInfo{
			BlockNumber:      next,
			SequencerAddress: p.cfg.SequencerAddress,
			GasPrices:        p.cfg.gasPrices(),
			UseKzgDA:         p.cfg.L1DAMode == blockstore.L1DABlob,
		},
		ChainInfo:          exec.ChainInfo{ChainID: p.cfg.ChainID},
		VersionedConstants: exec.SelectVersionedConstants(p.cfg.ProtocolVersion),
		BouncerConfig:      p.cfg.Bouncer,
	}
}

// closeBatch persists the current in-progress pending block as the pending
// overlay (spec.md §4.7 step 3: "On batch close or time tick, call C1
// store_pending_update").
func (p *Producer) closeBatch() error {
	pb := p.buildPendingBlock()
	declaredClasses, compiled := p.declaredClassesAt(nil)
	classHashAt := map[felt.Felt]felt.Felt{}
	nonceAt := map[felt.Felt]uint64{}
	storage := map[felt.Felt]map[felt.Felt]felt.Felt{}
	for _, addr := range p.diff.AddressOrder {
		if n, ok := p.diff.Nonces[addr]; ok {
			nonceAt[addr] = n
		}
		if ch, ok := p.diff.DeployedClasses[addr]; ok {
			classHashAt[addr] = ch
		}
		if kvs, ok := p.diff.StorageDiffs[addr]; ok {
			storage[addr] = kvs
		}
	}
	return p.mutator.StorePendingUpdate(pb, declaredClasses, compiled, classHashAt, nonceAt, storage)
}

func (p *Producer) buildPendingBlock() *blockstore.PendingBlock {
	latestBlk, hasLatest, _ := p.view.GetBlock(mustLatestSafe(p.view))
	parentHash := felt.Zero
	if hasLatest {
		parentHash = latestBlk.Hash
	}
	hashes := make([]felt.Felt, len(p.includedTxs))
	for i, tx := range p.includedTxs {
		hashes[i] = tx.Hash
	}
	return &blockstore.PendingBlock{
		Header: blockstore.PendingHeader{
			ParentBlockHash:  parentHash,
			SequencerAddress: p.cfg.SequencerAddress,
			ProtocolVersion:  p.cfg.ProtocolVersion,
			L1GasPrice:       p.cfg.gasPrices(),
			L1DAMode:         p.cfg.L1DAMode,
		},
		Inner:    blockstore.Inner{Transactions: p.includedTxs, Receipts: p.includedRecs},
		TxHashes: hashes,
	}
}

func mustLatestSafe(v *blockstore.View) uint64 {
	n, _, _ := v.LatestBlockNumber()
	return n
}

// declaredClassesAt projects p.diff's accumulated class declarations into
// the shapes StorePendingUpdate/StoreBlock expect, stamping each ClassInfo
// with blockNumber (nil while still pending) so spec.md §3's
// "get_class_info(Number(N), h)=Some iff N >= B" holds once confirmed.
func (p *Producer) declaredClassesAt(blockNumber *uint64) (map[felt.Felt]blockstore.ClassInfo, map[felt.Felt][]byte) {
	declared := make(map[felt.Felt]blockstore.ClassInfo, len(p.diff.DeclaredClasses))
	compiled := make(map[felt.Felt][]byte, len(p.diff.DeclaredClasses))
	for _, classHash := range p.diff.DeclaredClasses {
		compiledHash := p.diff.CompiledClassHash[classHash]
		declared[classHash] = blockstore.ClassInfo{
			ClassHash:         classHash,
			CompiledClassHash: &compiledHash,
			BlockNumber:       blockNumber,
		}
	}
	return declared, compiled
}

// Finalize closes any in-flight batch, commits both tries, computes
// commitments, atomically stores the confirmed block, evicts it from the
// mempool, and starts a fresh pending block (spec.md §4.7 step 4).
func (p *Producer) Finalize() error {
	if len(p.includedTxs) > 0 {
		if err := p.closeBatch(); err != nil {
			return err
		}
	}

	latest, hasLatest, err := p.view.LatestBlockNumber()
	if err != nil {
		return err
	}
	blockNumber := uint64(0)
	parentHash := felt.Zero
	if hasLatest {
		blockNumber = latest + 1
		parentBlk, ok, err := p.view.GetBlock(latest)
		if err != nil {
			return err
		}
		if ok {
			parentHash = parentBlk.Hash
		}
	}

	for addr := range p.touched {
		classHash := p.diff.DeployedClasses[addr]
		if classHash.IsZero() {
			if ch, ok, _ := p.view.GetContractClassHashAt(blockstore.ResolvedID{Kind: blockstore.ResolvedNumber, Number: blockNumber}, addr); ok {
				classHash = ch
			}
		}
		nonce := p.diff.Nonces[addr]
		st := p.contractTrie.StorageTrieFor(addr)
		for _, key := range p.diff.StorageOrder[addr] {
			st.Insert(key, p.diff.StorageDiffs[addr][key])
		}
		if _, err := p.contractTrie.CommitContract(addr, blockNumber, classHash, nonce); err != nil {
			return err
		}
	}
	contractsRoot, err := p.contractTrie.Commit(blockNumber)
	if err != nil {
		return err
	}

	for _, classHash := range p.diff.DeclaredClasses {
		p.classTrie.InsertClass(classHash, p.diff.CompiledClassHash[classHash])
	}
	classesRoot, err := p.classTrie.Commit(blockNumber)
	if err != nil {
		return err
	}
	globalStateRoot := statediff.StateRoot(contractsRoot, classesRoot)

	txRoot, eventRoot, receiptRoot, diffRoot, err := statediff.ComputeCommitments(p.includedTxs, p.includedRecs, p.diff)
	if err != nil {
		return err
	}

	header := blockstore.Header{
		ParentBlockHash:       parentHash,
		BlockNumber:           blockNumber,
		GlobalStateRoot:       globalStateRoot,
		SequencerAddress:      p.cfg.SequencerAddress,
		TransactionCount:      uint64(len(p.includedTxs)),
		TransactionCommitment: txRoot,
		EventCount:            countEvents(p.includedRecs),
		EventCommitment:       eventRoot,
		StateDiffLength:       p.diff.Length(),
		StateDiffCommitment:   diffRoot,
		ReceiptCommitment:     receiptRoot,
		ProtocolVersion:       p.cfg.ProtocolVersion,
		L1GasPrice:            p.cfg.gasPrices(),
		L1DAMode:              p.cfg.L1DAMode,
	}
	hash, err := statediff.BlockHash(statediff.BlockHashInput{Header: header, ChainID: p.cfg.ChainID, TxCommitment: txRoot, EventCommitment: eventRoot})
	if err != nil {
		return err
	}

	hashes := make([]felt.Felt, len(p.includedTxs))
	for i, tx := range p.includedTxs {
		hashes[i] = tx.Hash
	}
	block := &blockstore.Block{
		Header:   header,
		Inner:    blockstore.Inner{Transactions: p.includedTxs, Receipts: p.includedRecs},
		TxHashes: hashes,
		Hash:     hash,
	}

	declaredClasses, compiled := p.declaredClassesAt(&blockNumber)
	classHashAt := map[felt.Felt]felt.Felt{}
	nonceAt := map[felt.Felt]uint64{}
	storage := map[felt.Felt]map[felt.Felt]felt.Felt{}
	for _, addr := range p.diff.AddressOrder {
		if n, ok := p.diff.Nonces[addr]; ok {
			nonceAt[addr] = n
		}
		if ch, ok := p.diff.DeployedClasses[addr]; ok {
			classHashAt[addr] = ch
		}
		if kvs, ok := p.diff.StorageDiffs[addr]; ok {
			storage[addr] = kvs
		}
	}

	if err := p.mutator.StoreBlock(&blockstore.StoreBlockInput{
		Block:           block,
		DeclaredClasses: declaredClasses,
		Compiled:        compiled,
		ClassHashAt:     classHashAt,
		NonceAt:         nonceAt,
		Storage:         storage,
	}); err != nil {
		return err
	}

	for addr := range p.touched {
		newNonce, _, err := p.view.GetContractNonceAt(blockstore.ResolvedID{Kind: blockstore.ResolvedNumber, Number: blockNumber}, addr)
		if err != nil {
			return err
		}
		p.pool.Evict(addr, newNonce)
	}

	p.resetBatch()
	return nil
}

func countEvents(recs []blockstore.Receipt) uint64 {
	var n uint64
	for _, r := range recs {
		n += uint64(len(r.Events))
	}
	return n
}
