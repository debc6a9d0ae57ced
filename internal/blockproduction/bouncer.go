// Package blockproduction implements C7: the pending-block construction
// loop that drains ready mempool transactions into a tentative block,
// periodically persists it as a pending overlay, and finalizes it into a
// confirmed block once a block-time tick fires.
//
// Grounded on the teacher's core/txpool/txpool.go scheduleReorgLoop select-
// loop shape (a ticker racing against work-availability, with a shutdown
// channel) and on original_source's
// crates/node/src/service/block_production.rs, which wires a similarly
// shaped task into the service supervisor.
package blockproduction

import "github.com/lux/starknode/internal/exec"

// Usage is a single transaction's resource consumption, as reported by the
// executor (spec.md §4.7: "steps, n_events, state-diff size").
type Usage struct {
	Steps          uint64
	Events         uint64
	StateDiffSize  uint64
}

// Bouncer tracks a pending block's accumulated resource usage against a
// BouncerConfig and stops inclusion when the next transaction would exceed
// any limit (spec.md §4.7).
type Bouncer struct {
	cfg   exec.BouncerConfig
	steps uint64
	events uint64
	diffSize uint64
}

// NewBouncer builds a Bouncer starting from zero usage.
func NewBouncer(cfg exec.BouncerConfig) *Bouncer {
	return &Bouncer{cfg: cfg}
}

// Fits reports whether adding u would stay within every configured limit. A
// zero-valued limit in cfg means "unbounded" for that resource.
func (b *Bouncer) Fits(u Usage) bool {
	if b.cfg.MaxSteps > 0 && b.steps+u.Steps > b.cfg.MaxSteps {
		return false
	}
	if b.cfg.MaxEvents > 0 && b.events+u.Events > b.cfg.MaxEvents {
		return false
	}
	if b.cfg.MaxStateDiffSize > 0 && b.diffSize+u.StateDiffSize > b.cfg.MaxStateDiffSize {
		return false
	}
	return true
}

// Add commits u to the running totals; callers must have already checked
// Fits.
func (b *Bouncer) Add(u Usage) {
	b.steps += u.Steps
	b.events += u.Events
	b.diffSize += u.StateDiffSize
}

// Reset zeroes the running totals for the next pending block.
func (b *Bouncer) Reset() {
	b.steps, b.events, b.diffSize = 0, 0, 0
}
