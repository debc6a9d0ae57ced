package exec

import (
	"fmt"

	"github.com/lux/starknode/internal/blockstore"
	"github.com/lux/starknode/internal/felt"
)

// VM is the boundary to the actual Starknet transaction interpreter
// (Cairo/blockifier-equivalent); spec.md §2 names "driving a Starknet VM"
// as this component's job without specifying the VM's own internals, so it
// is modeled as a pluggable collaborator the same way the teacher's
// consensus.Engine is a pluggable collaborator to StateProcessor.
type VM interface {
	// Run executes tx against reader as of ctx, returning the raw execution
	// result. validate gates signature/nonce checks; chargeFee gates fee
	// deduction (spec.md §4.5's re_execute parameters).
	Run(ctx BlockContext, reader *StateReader, tx blockstore.Transaction, chargeFee, validate bool) (RawExecutionResult, error)
}

// RawExecutionResult is what a VM run produces before it's shaped into a
// tx trace or fee estimate.
type RawExecutionResult struct {
	TransactionHash felt.Felt
	GasConsumed     uint64
	DataGasConsumed uint64
	// Steps is the Cairo VM step count consumed running this transaction,
	// exposed so the block-production bouncer can gate on it (spec.md §4.7).
	Steps           uint64
	Reverted        bool
	RevertReason    string
	Events          []blockstore.Event
	Messages        []blockstore.L2ToL1Message
	StateWrites     StateWrites
}

// StateWrites is the per-transaction state delta a VM run produces, folded
// into the StateReader's in-flight overlay by ReExecute so later
// transactions in the same call observe earlier ones' effects.
type StateWrites struct {
	Nonces      map[felt.Felt]uint64
	ClassHashes map[felt.Felt]felt.Felt
	Storage     map[felt.Felt]map[felt.Felt]felt.Felt
	// DeclaredClasses maps class_hash -> compiled_class_hash for classes a
	// Declare transaction's run introduces (spec.md §3's declared_classes[]).
	DeclaredClasses map[felt.Felt]felt.Felt
}

// ExecutionResult wraps a transaction's raw VM result (whose
// TransactionHash names the transaction) for export via
// ExecutionResultToTxTrace / ExecutionResultToFeeEstimate.
type ExecutionResult struct {
	Raw RawExecutionResult
}

// TxTrace is the standard tx-trace export shape (spec.md §4.5:
// "execution_result_to_tx_trace — converts an execution result to the
// standard tx-trace structure").
type TxTrace struct {
	TransactionHash felt.Felt
	Events          []blockstore.Event
	Messages        []blockstore.L2ToL1Message
	Reverted        bool
	RevertReason    string
}

// FeeEstimate is spec.md §4.5's fee-estimate export shape.
type FeeEstimate struct {
	GasConsumed     uint64
	GasPrice        uint64
	DataGasConsumed uint64
	DataGasPrice    uint64
	OverallFee      uint64
	Unit            blockstore.FeeUnit
}

// Executor drives re-execution over a layered state reader, grounded on
// core/state_processor.go's StateProcessor.Process loop: build the context
// once, then execute transactions sequentially so each one observes the
// previous one's effects.
type Executor struct {
	view  *blockstore.View
	vm    VM
	chain ChainInfo
}

// NewExecutor builds an Executor over view using vm as the transaction
// interpreter.
func NewExecutor(view *blockstore.View, vm VM, chain ChainInfo) *Executor {
	return &Executor{view: view, vm: vm, chain: chain}
}

// ReExecute builds a state reader rooted at the block resolved by r, runs
// prevTxs to reach the desired pre-state (discarding their results), then
// runs txsToTrace and returns their ExecutionResults (spec.md §4.5).
func (e *Executor) ReExecute(r blockstore.ResolvedID, prevTxs, txsToTrace []blockstore.Transaction, chargeFee, validate bool, bouncer BouncerConfig) ([]ExecutionResult, error) {
	ctx, err := BuildBlockContext(e.view, r, e.chain, bouncer)
	if err != nil {
		return nil, err
	}

	reader := NewStateReader(e.view, r)
	for _, tx := range prevTxs {
		if _, err := e.runOne(ctx, reader, tx, chargeFee, validate); err != nil {
			return nil, err
		}
	}

	results := make([]ExecutionResult, 0, len(txsToTrace))
	for _, tx := range txsToTrace {
		res, err := e.runOne(ctx, reader, tx, chargeFee, validate)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Executor) runOne(ctx BlockContext, reader *StateReader, tx blockstore.Transaction, chargeFee, validate bool) (ExecutionResult, error) {
	raw, err := e.vm.Run(ctx, reader, tx, chargeFee, validate)
	if err != nil {
		return ExecutionResult{}, &ContractError{Message: fmt.Sprintf("tx %s", tx.Hash), Err: err}
	}
	for addr, n := range raw.StateWrites.Nonces {
		reader.SetNonce(addr, n)
	}
	for addr, ch := range raw.StateWrites.ClassHashes {
		reader.SetClassHash(addr, ch)
	}
	for addr, kvs := range raw.StateWrites.Storage {
		for k, v := range kvs {
			reader.SetStorage(addr, k, v)
		}
	}
	return ExecutionResult{Raw: raw}, nil
}

// ExecutionResultToTxTrace converts a raw result to the standard trace
// shape, refusing to do so if the target context predates FallbackVersion
// (spec.md §4.5 version gating).
func (e *Executor) ExecutionResultToTxTrace(ctx BlockContext, res ExecutionResult) (TxTrace, error) {
	if !ctx.SupportsTracing() {
		return TxTrace{}, ErrUnsupportedTxnVersion
	}
	return TxTrace{
		TransactionHash: res.Raw.TransactionHash,
		Events:          res.Raw.Events,
		Messages:        res.Raw.Messages,
		Reverted:        res.Raw.Reverted,
		RevertReason:    res.Raw.RevertReason,
	}, nil
}

// ExecutionResultToFeeEstimate converts a raw result to a fee estimate in
// the unit the caller passes: FeeUnitFri prices gas at the STRK L1 prices,
// any other unit at the ETH prices.
func (e *Executor) ExecutionResultToFeeEstimate(ctx BlockContext, res ExecutionResult, unit blockstore.FeeUnit) FeeEstimate {
	gasPrice := ctx.BlockInfo.GasPrices.EthL1GasPrice
	dataGasPrice := ctx.BlockInfo.GasPrices.EthL1DataGasPrice
	if unit == blockstore.FeeUnitFri {
		gasPrice = ctx.BlockInfo.GasPrices.StrkL1GasPrice
		dataGasPrice = ctx.BlockInfo.GasPrices.StrkL1DataGasPrice
	}
	overall := res.Raw.GasConsumed*gasPrice + res.Raw.DataGasConsumed*dataGasPrice
	return FeeEstimate{
		GasConsumed:     res.Raw.GasConsumed,
		GasPrice:        gasPrice,
		DataGasConsumed: res.Raw.DataGasConsumed,
		DataGasPrice:    dataGasPrice,
		OverallFee:      overall,
		Unit:            unit,
	}
}

// L1HandlerMessage is the boundary shape of a message arriving from L1,
// wrapped into an L1-handler transaction for fee estimation (spec.md §4.5).
type L1HandlerMessage struct {
	FromAddress felt.Felt
	ToAddress   felt.Felt
	Selector    felt.Felt
	Payload     []felt.Felt
	Nonce       uint64
}

// EstimateMessageFee wraps msg as an L1-handler transaction (fee=1, nonce
// from the message) and re-executes it on top of the block resolved by r,
// returning its fee estimate (spec.md §4.5).
func (e *Executor) EstimateMessageFee(msg L1HandlerMessage, r blockstore.ResolvedID, bouncer BouncerConfig) (FeeEstimate, error) {
	ctx, err := BuildBlockContext(e.view, r, e.chain, bouncer)
	if err != nil {
		return FeeEstimate{}, err
	}
	if !ctx.SupportsTracing() {
		return FeeEstimate{}, ErrUnsupportedTxnVersion
	}

	calldata := append([]felt.Felt{msg.FromAddress}, msg.Payload...)
	tx := blockstore.Transaction{
		Type:               blockstore.TxL1Handler,
		SenderOrContract:   msg.ToAddress,
		Nonce:              msg.Nonce,
		MaxFee:             1,
		Calldata:           calldata,
		EntryPointSelector: msg.Selector,
	}

	reader := NewStateReader(e.view, r)
	res, err := e.runOne(ctx, reader, tx, true, false)
	if err != nil {
		return FeeEstimate{}, err
	}
	return e.ExecutionResultToFeeEstimate(ctx, res, blockstore.FeeUnitWei), nil
}
