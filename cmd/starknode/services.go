package main

import (
	"context"
	"fmt"

	"github.com/lux/starknode/internal/blockproduction"
	"github.com/lux/starknode/internal/blockstore"
	"github.com/lux/starknode/internal/exec"
	"github.com/lux/starknode/internal/felt"
	"github.com/lux/starknode/internal/l1sync"
	"github.com/lux/starknode/internal/supervisor"
)

// poolNonceSource answers internal/mempool.NonceSource from the pending
// view's account nonces, for mempool.Pool.Accept's nonce check.
type poolNonceSource struct{ view *blockstore.View }

func (s poolNonceSource) CurrentNonce(addr felt.Felt) (uint64, error) {
	nonce, ok, err := s.view.GetContractNonceAt(blockstore.ResolvedID{Kind: blockstore.ResolvedPending}, addr)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return nonce, nil
}

// unimplementedVM is wired in place of a real Starknet VM binding: spec.md
// §1 places VM/transaction-execution semantics out of this core's scope,
// and internal/exec.VM is left a pluggable interface with no in-tree
// implementation (see DESIGN.md). This stand-in lets the node start up and
// run every other service; it only errors the moment block production
// actually needs to execute a transaction, rather than silently producing
// empty blocks or panicking.
type unimplementedVM struct{}

func (unimplementedVM) Run(exec.BlockContext, *exec.StateReader, blockstore.Transaction, bool, bool) (exec.RawExecutionResult, error) {
	return exec.RawExecutionResult{}, fmt.Errorf("starknode: no Starknet VM wired; block production cannot execute transactions")
}

// blockProductionService adapts internal/blockproduction.Producer (whose
// Run takes a plain context.Context) to supervisor.Service.
type blockProductionService struct {
	producer *blockproduction.Producer
}

func (blockProductionService) ID() supervisor.ServiceID { return supervisor.BlockProduction }

func (s blockProductionService) Run(ctx supervisor.ServiceContext) error {
	return s.producer.Run(ctx.Context())
}

// runBothL1SyncWorkers runs the gas-price and messaging workers together
// under one service: spec.md §4.9's activation bitmask names L1Sync as a
// single bit, and Supervisor.Register rejects a second registrant under the
// same ServiceID, so both workers share one l1SyncService instead of each
// getting their own registration.
func runBothL1SyncWorkers(ctx context.Context, gasPrices *l1sync.GasPriceWorker, messaging *l1sync.MessagingWorker) error {
	errs := make(chan error, 2)
	go func() { errs <- gasPrices.Run(ctx) }()
	go func() { errs <- messaging.Run(ctx) }()

	first := <-errs
	select {
	case second := <-errs:
		if first == nil {
			return second
		}
		return first
	case <-ctx.Done():
		return first
	}
}

type l1SyncService struct {
	gasPrices *l1sync.GasPriceWorker
	messaging *l1sync.MessagingWorker
}

func (l1SyncService) ID() supervisor.ServiceID { return supervisor.L1Sync }

func (s l1SyncService) Run(ctx supervisor.ServiceContext) error {
	return runBothL1SyncWorkers(ctx.Context(), s.gasPrices, s.messaging)
}
