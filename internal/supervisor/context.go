package supervisor

import (
	"context"

	"github.com/ethereum/go-ethereum/event"
)

// ServiceTransport is one activation-bitmask change, delivered to every
// Subscribe call the way original_source's service_subscribe() delivers a
// stream of ServiceTransport values over a broadcast channel.
type ServiceTransport struct {
	ID     ServiceID
	Active bool
}

// ServiceContext is the clonable cancellation-tree handle passed to every
// Service.Run, grounded on original_source's ServiceContext: services in the
// same "local scope" can cancel each other (and their descendants) without
// affecting the rest of the node, while cancelling the global scope stops
// everything. Go's context.Context already models parent/child
// cancellation, so local is just a child of global (or of an ancestor's
// local context, via Child), and CancelLocal/CancelGlobal simply invoke the
// matching context.CancelFunc.
type ServiceContext struct {
	global       context.Context
	cancelGlobal context.CancelFunc

	// local is nil at the root context; Child() always produces one.
	local       context.Context
	cancelLocal context.CancelFunc

	mask *ServiceMask
	feed *event.Feed
	id   ServiceID
}

// NewRootContext builds the top-level ServiceContext all service contexts
// descend from, deriving its global scope from parent (typically
// signal.NotifyContext(context.Background(), os.Interrupt) in cmd/starknode).
func NewRootContext(parent context.Context) ServiceContext {
	global, cancel := context.WithCancel(parent)
	return ServiceContext{global: global, cancelGlobal: cancel, mask: &ServiceMask{}, feed: &event.Feed{}, id: Monitor}
}

// effective returns the context whose cancellation this handle observes:
// local if this handle descends from a Child() call, global otherwise.
func (c ServiceContext) effective() context.Context {
	if c.local != nil {
		return c.local
	}
	return c.global
}

// CancelGlobal stops every service under the same global scope — the whole
// node (spec.md §4.9: "Ctrl-C triggers cancel_global").
func (c ServiceContext) CancelGlobal() {
	c.cancelGlobal()
}

// CancelLocal stops every service under the same local scope. At the root
// context (no Child() yet called) this is equivalent to CancelGlobal, same
// as the Rust original's `token_local.unwrap_or(&token_global)`.
func (c ServiceContext) CancelLocal() {
	if c.cancelLocal != nil {
		c.cancelLocal()
		return
	}
	c.cancelGlobal()
}

// Context returns the plain context.Context this handle observes, for
// adapting a Service.Run(ctx ServiceContext) to a collaborator whose own
// loop already takes a context.Context (internal/blockproduction.Producer,
// internal/l1sync's workers).
func (c ServiceContext) Context() context.Context {
	return c.effective()
}

// Cancelled returns a channel closed once this context (or any ancestor
// scope) is cancelled; use it in a select alongside a service's other work,
// the same way original_source's cancelled() races the global and local
// tokens.
func (c ServiceContext) Cancelled() <-chan struct{} {
	return c.effective().Done()
}

// IsCancelled reports cancellation synchronously, for use inside
// non-blocking code paths — mirroring original_source's caveat that this
// should not be used to interrupt a blocking operation that isn't otherwise
// cancellation-safe.
func (c ServiceContext) IsCancelled() bool {
	if c.effective().Err() != nil {
		return true
	}
	return !c.mask.Status(c.id)
}

// ID returns the service id this handle was scoped to via WithID.
func (c ServiceContext) ID() ServiceID {
	return c.id
}

// WithID returns a copy of c scoped to a different service id, used by
// Supervisor when handing each registered Service its own context.
func (c ServiceContext) WithID(id ServiceID) ServiceContext {
	c.id = id
	return c
}

// ServiceAdd activates id, broadcasting the change to every Subscribe
// channel, and reports whether it was already active (spec.md §4.9's
// service_add, used by the gateway/RPC services to turn each other on and
// off at runtime rather than only at node startup).
func (c ServiceContext) ServiceAdd(id ServiceID) (wasActive bool) {
	wasActive = c.mask.Activate(id)
	if !wasActive {
		c.feed.Send(ServiceTransport{ID: id, Active: true})
	}
	return wasActive
}

// ServiceRemove deactivates id, broadcasting the change, and reports
// whether it was active beforehand (spec.md §4.9's service_remove).
func (c ServiceContext) ServiceRemove(id ServiceID) (wasActive bool) {
	wasActive = c.mask.Deactivate(id)
	if wasActive {
		c.feed.Send(ServiceTransport{ID: id, Active: false})
	}
	return wasActive
}

// ServiceStatus reports whether any service named in ids is currently
// active (spec.md §4.9's service_status).
func (c ServiceContext) ServiceStatus(ids ServiceID) bool {
	return c.mask.Status(ids)
}

// Subscribe returns a channel of activation/deactivation events plus its
// event.Subscription, mirroring original_source's service_subscribe()
// stream — Supervisor.Start uses this to notice services that get
// activated after it has already begun running, instead of only
// considering the set active at startup.
func (c ServiceContext) Subscribe() (<-chan ServiceTransport, event.Subscription) {
	ch := make(chan ServiceTransport, 16)
	return ch, c.feed.Subscribe(ch)
}

// Child derives a new local scope from c: cancelling the child's
// CancelLocal stops the child and everything descended from it, without
// affecting c or c's siblings.
func (c ServiceContext) Child() ServiceContext {
	parent := c.global
	if c.local != nil {
		parent = c.local
	}
	local, cancel := context.WithCancel(parent)
	c.local, c.cancelLocal = local, cancel
	return c
}
