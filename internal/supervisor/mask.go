package supervisor

import "sync/atomic"

// ServiceMask is the atomic activation bitmask spec.md §4.9 requires: one
// bit per ServiceID, readable and mutable from any goroutine without a
// lock, grounded on original_source's MadaraServiceMask
// (std::sync::atomic::AtomicU8) and generalized to atomic.Uint32 since this
// node has more than 8 service bits' worth of room to grow into.
type ServiceMask struct {
	bits atomic.Uint32
}

// Status reports whether any bit in ids is currently active.
func (m *ServiceMask) Status(ids ServiceID) bool {
	return m.bits.Load()&uint32(ids) != 0
}

// IsActiveSome reports whether any service at all is active.
func (m *ServiceMask) IsActiveSome() bool {
	return m.bits.Load() != 0
}

// Activate sets id's bit, returning whether it was already set.
func (m *ServiceMask) Activate(id ServiceID) (wasActive bool) {
	for {
		old := m.bits.Load()
		next := old | uint32(id)
		if m.bits.CompareAndSwap(old, next) {
			return old&uint32(id) != 0
		}
	}
}

// Deactivate clears id's bit, returning whether it was set beforehand.
func (m *ServiceMask) Deactivate(id ServiceID) (wasActive bool) {
	for {
		old := m.bits.Load()
		next := old &^ uint32(id)
		if m.bits.CompareAndSwap(old, next) {
			return old&uint32(id) != 0
		}
	}
}

// ActiveSet returns every currently-active service id, in the canonical
// order of allServiceIDs.
func (m *ServiceMask) ActiveSet() []ServiceID {
	state := m.bits.Load()
	out := make([]ServiceID, 0, len(allServiceIDs))
	for _, id := range allServiceIDs {
		if state&uint32(id) != 0 {
			out = append(out, id)
		}
	}
	return out
}
