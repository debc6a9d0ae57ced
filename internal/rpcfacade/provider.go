package rpcfacade

import (
	"context"
	"errors"

	"github.com/lux/starknode/internal/blockstore"
	"github.com/lux/starknode/internal/felt"
	"github.com/lux/starknode/internal/mempool"
)

// AddTransactionResult is the wire shape returned for every write method
// (spec.md §6: addInvokeTransaction/addDeclareTransaction/
// addDeployAccountTransaction), regardless of which AddTransactionProvider
// handled the request.
type AddTransactionResult struct {
	TransactionHash felt.Felt
	// ClassHash/ContractAddress are only meaningful for Declare/DeployAccount
	// respectively; left zero otherwise.
	ClassHash       felt.Felt
	ContractAddress felt.Felt
}

// AddTransactionProvider is the admission seam spec.md §9 calls for: a node
// can satisfy it with a local mempool (LocalMempoolProvider, below) or with
// a client that forwards the broadcasted transaction to an upstream
// sequencer — the same choice original_source's AddTransactionProvider
// trait exists to express (providers/forward_to_provider.rs's
// ForwardToProvider<P: Provider>).
type AddTransactionProvider interface {
	AddInvokeTransaction(ctx context.Context, tx blockstore.Transaction) (AddTransactionResult, error)
	AddDeclareTransaction(ctx context.Context, tx blockstore.Transaction) (AddTransactionResult, error)
	AddDeployAccountTransaction(ctx context.Context, tx blockstore.Transaction) (AddTransactionResult, error)
}

// LocalMempoolProvider satisfies AddTransactionProvider by admitting
// directly into an internal/mempool.Pool, translating mempool's sentinel
// errors into this package's typed Code taxonomy.
type LocalMempoolProvider struct {
	Pool *mempool.Pool
}

func (p LocalMempoolProvider) AddInvokeTransaction(_ context.Context, tx blockstore.Transaction) (AddTransactionResult, error) {
	return p.accept(tx)
}

func (p LocalMempoolProvider) AddDeclareTransaction(_ context.Context, tx blockstore.Transaction) (AddTransactionResult, error) {
	return p.accept(tx)
}

func (p LocalMempoolProvider) AddDeployAccountTransaction(_ context.Context, tx blockstore.Transaction) (AddTransactionResult, error) {
	return p.accept(tx)
}

func (p LocalMempoolProvider) accept(tx blockstore.Transaction) (AddTransactionResult, error) {
	res, err := p.Pool.Accept(tx)
	if err != nil {
		return AddTransactionResult{}, translateMempoolError(err)
	}
	return AddTransactionResult{TransactionHash: res.TransactionHash}, nil
}

func translateMempoolError(err error) *Error {
	switch {
	case errors.Is(err, mempool.ErrValidationFailed):
		return New(CodeValidationFailure)
	case errors.Is(err, mempool.ErrInvalidNonce):
		return New(CodeInvalidNonce)
	case errors.Is(err, mempool.ErrDuplicatedTransaction):
		return New(CodeDuplicatedTransaction)
	case errors.Is(err, mempool.ErrLimitExceeded):
		return New(CodeLimitExceeded)
	default:
		return Newf(CodeValidationFailure, "%v", err)
	}
}
