// Package mempool implements C6: the nonce-ordered mempool described in
// spec.md §4.6 — a two-level index (per-account nonce queues plus a
// cross-account FIFO-by-arrival "ready" set) with admission, consumption,
// and block-confirmation eviction.
//
// Grounded on the teacher's core/txpool/txpool.go: the sentinel-error
// style, the account-reservation locking discipline (one mutex guarding
// the whole index, matching txpool's reserveLock), and go-ethereum's
// common/prque priority queue for the ready set's FIFO-by-arrival ordering
// (the same library txpool itself imports for miner transaction ordering).
package mempool

import (
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common/prque"

	"github.com/lux/starknode/internal/blockstore"
	"github.com/lux/starknode/internal/felt"
)

// MempoolTransaction is spec.md §3's MempoolTransaction record.
type MempoolTransaction struct {
	Tx             blockstore.Transaction
	ArrivedAt      int64
	ConvertedClass []byte
	Nonce          uint64
	NonceNext      uint64
	// Account is the nonce-tracking key this transaction is queued under:
	// tx.SenderOrContract for ordinary transactions, or the singleton
	// messaging account for L1-handler transactions (spec.md §4.6).
	Account felt.Felt
}

// Validator runs the pure signature/structure validation pass (spec.md
// §4.6 admission step 1); kept pluggable the same way the VM is pluggable
// in internal/exec, since transaction-signature verification is outside
// this core's scope.
type Validator interface {
	Validate(tx blockstore.Transaction) error
}

// NonceSource answers "what is addr's current on-chain nonce", consulted
// during admission (spec.md §4.6); Evict does not consult it and takes the
// post-block nonce as an argument instead.
type NonceSource interface {
	CurrentNonce(addr felt.Felt) (uint64, error)
}

// messagingAccount is the singleton pseudo-account L1-handler nonces are
// tracked against (spec.md §4.6: "uses the message nonce as account nonce
// against a singleton 'L1 messaging' account").
var messagingAccount = felt.FromBytes([]byte("starknode/l1-messaging-account"))

// Limits bounds pool admission (spec.md §4.6 admission step 4).
type Limits struct {
	MaxPerAccount int
	MaxGlobal     int
}

// accountQueue is a NonceQueue: nonce -> pending MempoolTransaction.
type accountQueue map[uint64]*MempoolTransaction

// Pool is the mempool's two-level index (spec.md §4.6).
type Pool struct {
	mu sync.Mutex

	validator Validator
	nonces    NonceSource
	limits    Limits

	byAccount map[felt.Felt]accountQueue
	byHash    map[felt.Felt]*MempoolTransaction
	readyAddr map[felt.Felt]bool // addr currently has an entry pushed to ready
	ready     *prque.Prque[felt.Felt, int64]

	arrivalSeq atomic.Int64
	globalN    int
}

// New builds an empty Pool.
func New(validator Validator, nonces NonceSource, limits Limits) *Pool {
	return &Pool{
		validator: validator,
		nonces:    nonces,
		limits:    limits,
		byAccount: make(map[felt.Felt]accountQueue),
		byHash:    make(map[felt.Felt]*MempoolTransaction),
		readyAddr: make(map[felt.Felt]bool),
		ready:     prque.New[felt.Felt, int64](nil),
	}
}

// AddTxResult is spec.md §4.6's admission-success shape.
type AddTxResult struct {
	TransactionHash felt.Felt
}

// Accept runs the four-step admission pipeline of spec.md §4.6 and
// promotes the transaction into the ready set if it is now its account's
// lowest, currently-dispatchable nonce.
func (p *Pool) Accept(tx blockstore.Transaction) (AddTxResult, error) {
	if p.validator != nil {
		if err := p.validator.Validate(tx); err != nil {
			return AddTxResult{}, ErrValidationFailed
		}
	}

	current, err := p.nonces.CurrentNonce(tx.SenderOrContract)
	if err != nil {
		return AddTxResult{}, err
	}
	if tx.Nonce < current {
		return AddTxResult{}, ErrInvalidNonce
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byHash[tx.Hash]; exists {
		return AddTxResult{}, ErrDuplicatedTransaction
	}
	if p.limits.MaxGlobal > 0 && p.globalN >= p.limits.MaxGlobal {
		return AddTxResult{}, ErrLimitExceeded
	}
	q := p.byAccount[tx.SenderOrContract]
	if p.limits.MaxPerAccount > 0 && len(q) >= p.limits.MaxPerAccount {
		return AddTxResult{}, ErrLimitExceeded
	}

	p.insertLocked(tx.SenderOrContract, tx, current)
	return AddTxResult{TransactionHash: tx.Hash}, nil
}

// AcceptL1Handler admits an L1-handler transaction against the singleton
// messaging account, bypassing signature validation (spec.md §4.6).
// paidFee is recorded on the queued transaction's fee field.
func (p *Pool) AcceptL1Handler(tx blockstore.Transaction, paidFee uint64) (AddTxResult, error) {
	tx.Type = blockstore.TxL1Handler
	tx.MaxFee = paidFee

	current, err := p.nonces.CurrentNonce(messagingAccount)
	if err != nil {
		return AddTxResult{}, err
	}
	if tx.Nonce < current {
		// Already consumed: idempotent no-op, not an error, matching
		// spec.md §8's at-most-once delivery guarantee.
		return AddTxResult{TransactionHash: tx.Hash}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.byHash[tx.Hash]; exists {
		return AddTxResult{TransactionHash: tx.Hash}, nil
	}
	p.insertLocked(messagingAccount, tx, current)
	return AddTxResult{TransactionHash: tx.Hash}, nil
}

// insertLocked inserts tx into byAccount/byHash and promotes it to ready if
// it is now addr's lowest-nonce transaction and equals addr's current
// nonce. Callers must hold p.mu.
func (p *Pool) insertLocked(addr felt.Felt, tx blockstore.Transaction, currentNonce uint64) {
	q, ok := p.byAccount[addr]
	if !ok {
		q = make(accountQueue)
		p.byAccount[addr] = q
	}
	mtx := &MempoolTransaction{
		Tx:        tx,
		ArrivedAt: p.arrivalSeq.Add(1),
		Nonce:     tx.Nonce,
		NonceNext: tx.Nonce + 1,
		Account:   addr,
	}
	q[tx.Nonce] = mtx
	p.byHash[tx.Hash] = mtx
	p.globalN++

	if tx.Nonce == currentNonce && !p.readyAddr[addr] {
		p.promoteLocked(addr, mtx)
	}
}

// promoteLocked pushes mtx into the ready set and marks addr as having a
// ready entry. Callers must hold p.mu.
func (p *Pool) promoteLocked(addr felt.Felt, mtx *MempoolTransaction) {
	p.readyAddr[addr] = true
	p.ready.Push(mtx.Tx.Hash, -mtx.ArrivedAt)
}

// TakeReady pops the oldest-arrived ready transaction and promotes the next
// nonce of that account if present (spec.md §4.6 consumption).
func (p *Pool) TakeReady() (*MempoolTransaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for !p.ready.Empty() {
		hash, _ := p.ready.Pop()
		mtx, ok := p.byHash[hash]
		if !ok {
			// Was removed (e.g. evicted) after being pushed; skip stale entry.
			continue
		}
		addr := mtx.Account
		delete(p.byAccount[addr], mtx.Nonce)
		delete(p.byHash, hash)
		p.readyAddr[addr] = false
		p.globalN--

		if next, ok := p.byAccount[addr][mtx.NonceNext]; ok {
			p.promoteLocked(addr, next)
		}
		return mtx, true
	}
	return nil, false
}

// Evict removes every queued transaction for addr with nonce < newNonce
// (spec.md §4.6: "any remaining tx with nonce < new account nonce is
// dropped"), then promotes addr's now-lowest transaction to ready if its
// nonce equals newNonce and it isn't already ready. Call once per address
// touched by a newly confirmed block, passing the account's nonce as of
// that block.
func (p *Pool) Evict(addr felt.Felt, newNonce uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	q, ok := p.byAccount[addr]
	if !ok {
		return
	}
	evictedAny := false
	for nonce, mtx := range q {
		if nonce < newNonce {
			delete(q, nonce)
			delete(p.byHash, mtx.Tx.Hash)
			p.globalN--
			evictedAny = true
		}
	}
	if len(q) == 0 {
		delete(p.byAccount, addr)
		p.readyAddr[addr] = false
		return
	}
	if evictedAny {
		// promoteLocked only ever promotes an account's lowest pending
		// nonce, so a ready entry's nonce is always q's minimum; any
		// eviction here necessarily removed it from byHash, leaving
		// readyAddr stale and blocking the promotion below.
		p.readyAddr[addr] = false
	}
	if !p.readyAddr[addr] {
		if mtx, ok := q[newNonce]; ok {
			p.promoteLocked(addr, mtx)
		}
	}
}

// PeekReady returns the transaction TakeReady would return next, without
// removing it, so a caller (block production's bouncer check) can decide
// whether to include it before committing to the pop (spec.md §4.7: "that
// tx stays in the mempool" when a resource limit would be exceeded).
func (p *Pool) PeekReady() (*MempoolTransaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for !p.ready.Empty() {
		hash, prio := p.ready.Pop()
		mtx, ok := p.byHash[hash]
		if !ok {
			continue
		}
		p.ready.Push(hash, prio)
		return mtx, true
	}
	return nil, false
}

// Len reports the total number of queued transactions, for metrics/tests.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.globalN
}
