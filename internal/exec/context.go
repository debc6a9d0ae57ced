// Package exec implements C5: the execution context that assembles a
// BlockContext from a resolved block plus chain config, and drives
// transaction re-execution through a layered state reader.
//
// Grounded on core/state_processor.go's StateProcessor.Process loop (build
// context once, execute transactions sequentially, accumulate receipts) and
// core/state/database.go's state-reader abstraction in the teacher.
package exec

import (
	"fmt"

	"github.com/lux/starknode/internal/blockstore"
	"github.com/lux/starknode/internal/felt"
)

// FallbackVersion is the minimum protocol_version that supports tracing and
// message-fee estimation (spec.md §4.5: "If header.protocol_version <
// FALLBACK_VERSION... return UnsupportedTxnVersion").
const FallbackVersion = "0.13.1.1"

// BlockInfo is the execution-relevant slice of a block's header (spec.md
// §4.5).
type BlockInfo struct {
	BlockNumber      uint64
	SequencerAddress felt.Felt
	GasPrices        blockstore.GasPrices
	UseKzgDA         bool
}

// FeeTokenAddresses names the two fee tokens a chain accepts payment in.
type FeeTokenAddresses struct {
	Eth  felt.Felt
	Strk felt.Felt
}

// ChainInfo is the chain-config-derived half of a BlockContext.
type ChainInfo struct {
	ChainID           string
	FeeTokenAddresses FeeTokenAddresses
}

// VersionedConstants is a protocol-version-gated bundle of execution
// constants. Only ProtocolVersion is tracked explicitly here; the rest of
// the constants an execution layer would need (gas costs, builtin costs,
// step limits per syscall) live outside this core per spec.md §1's VM
// boundary.
type VersionedConstants struct {
	ProtocolVersion string
}

// SelectVersionedConstants resolves the constants bundle for a given
// protocol_version string (spec.md §4.5: "VersionedConstants: selected from
// protocol_version").
func SelectVersionedConstants(protocolVersion string) VersionedConstants {
	return VersionedConstants{ProtocolVersion: protocolVersion}
}

// BouncerConfig bounds how much a single block may contain (spec.md §4.7:
// "steps, n_events, state-diff size").
type BouncerConfig struct {
	MaxSteps         uint64
	MaxEvents        uint64
	MaxStateDiffSize uint64
}

// BlockContext is the full execution context for a pending or confirmed
// block (spec.md §4.5).
type BlockContext struct {
	BlockInfo           BlockInfo
	ChainInfo           ChainInfo
	VersionedConstants  VersionedConstants
	BouncerConfig       BouncerConfig
}

// BuildBlockContext assembles a BlockContext for the block resolved by r,
// reading header fields for confirmed blocks and falling back to
// latest+1/pending-header fields otherwise (spec.md §4.5).
func BuildBlockContext(view *blockstore.View, r blockstore.ResolvedID, chain ChainInfo, bouncer BouncerConfig) (BlockContext, error) {
	var info BlockInfo
	var protocolVersion string

	if r.Kind == blockstore.ResolvedPending {
		pb, err := view.GetPendingBlock()
		if err != nil {
			return BlockContext{}, err
		}
		latest, hasLatest, err := view.LatestBlockNumber()
		if err != nil {
			return BlockContext{}, err
		}
		next := uint64(0)
		if hasLatest {
			next = latest + 1
		}
		info = BlockInfo{
			BlockNumber:      next,
			SequencerAddress: pb.Header.SequencerAddress,
			GasPrices:        pb.Header.L1GasPrice,
			UseKzgDA:         pb.Header.L1DAMode == blockstore.L1DABlob,
		}
		protocolVersion = pb.Header.ProtocolVersion
	} else {
		blk, ok, err := view.GetBlock(r.Number)
		if err != nil {
			return BlockContext{}, err
		}
		if !ok {
			return BlockContext{}, fmt.Errorf("exec: %w: block %d", ErrBlockNotFound, r.Number)
		}
		info = BlockInfo{
			BlockNumber:      blk.Header.BlockNumber,
			SequencerAddress: blk.Header.SequencerAddress,
			GasPrices:        blk.Header.L1GasPrice,
			UseKzgDA:         blk.Header.L1DAMode == blockstore.L1DABlob,
		}
		protocolVersion = blk.Header.ProtocolVersion
	}

	return BlockContext{
		BlockInfo:          info,
		ChainInfo:          chain,
		VersionedConstants: SelectVersionedConstants(protocolVersion),
		BouncerConfig:      bouncer,
	}, nil
}

// SupportsTracing reports whether this context's protocol version is new
// enough for trace_* and estimate_message_fee (spec.md §4.5 version
// gating).
func (bc BlockContext) SupportsTracing() bool {
	return compareVersions(bc.VersionedConstants.ProtocolVersion, FallbackVersion) >= 0
}

// compareVersions compares two dotted version strings numerically,
// component by component; shorter strings are treated as zero-padded.
func compareVersions(a, b string) int {
	pa, pb := splitVersion(a), splitVersion(b)
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var va, vb int
		if i < len(pa) {
			va = pa[i]
		}
		if i < len(pb) {
			vb = pb[i]
		}
		if va != vb {
			if va < vb {
				return -1
			}
			return 1
		}
	}
	return 0
}

func splitVersion(v string) []int {
	var out []int
	cur := 0
	has := false
	for _, r := range v {
		if r == '.' {
			out = append(out, cur)
			cur = 0
			has = false
			continue
		}
		if r >= '0' && r <= '9' {
			cur = cur*10 + int(r-'0')
			has = true
		}
	}
	if has || len(out) == 0 {
		out = append(out, cur)
	}
	return out
}
