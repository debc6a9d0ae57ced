// Package supervisor implements C9: the hierarchical-cancellation service
// supervisor that starts, tracks, and gracefully shuts down the node's
// independent background services (block production, L1/L2 sync, RPC,
// gateway, telemetry).
//
// Directly modeled on original_source's
// crates/primitives/utils/src/service.rs ("Madara Services Architecture"):
// a service hands its main loop to a runner which races it against a
// cancellation + grace-period watchdog, services are addressed by a single
// bitmask rather than individually-owned channels, and cancellation forms a
// tree (a parent can cancel every descendant; a child cannot cancel its
// parent). Go's context.Context already is that cancellation tree, so
// ServiceContext wraps one pair of contexts (global, local) instead of
// porting tokio_util's CancellationToken.
package supervisor

import (
	"fmt"
	"time"
)

// ServiceID identifies one of the node's services as a single bit, so sets
// of services can be combined into one bitmask the way spec.md's activation
// bitmask requires ("Monitor, Database, L1Sync, L2Sync, BlockProduction,
// RpcUser, RpcAdmin, Gateway, Telemetry").
type ServiceID uint32

const (
	Monitor ServiceID = 1 << iota
	Database
	L1Sync
	L2Sync
	BlockProduction
	RpcUser
	RpcAdmin
	Gateway
	Telemetry
)

// ServiceGracePeriod is the maximum duration a service is given to observe
// its own cancellation and return before the supervisor stops waiting for
// it and reports an error (spec.md §4.9: "SERVICE_GRACE_PERIOD (10s)"). The
// service's goroutine is not terminated; it keeps running until it returns.
const ServiceGracePeriod = 10 * time.Second

func (id ServiceID) String() string {
	switch id {
	case Monitor:
		return "monitor"
	case Database:
		return "database"
	case L1Sync:
		return "l1 sync"
	case L2Sync:
		return "l2 sync"
	case BlockProduction:
		return "block production"
	case RpcUser:
		return "rpc user"
	case RpcAdmin:
		return "rpc admin"
	case Gateway:
		return "gateway"
	case Telemetry:
		return "telemetry"
	default:
		return fmt.Sprintf("service(%d)", uint32(id))
	}
}

// allServiceIDs enumerates every known service bit, used by ServiceMask's
// ActiveSet and by Supervisor's startup loop to iterate registrations in a
// stable order.
var allServiceIDs = []ServiceID{
	Monitor, Database, L1Sync, L2Sync, BlockProduction, RpcUser, RpcAdmin, Gateway, Telemetry,
}

// Service is the common interface every background task implements: an
// identity and a long-running loop that must not return until the service
// has genuinely finished (spec.md §4.9's "hand its long loop to
// runner.service_loop" contract — Run IS that loop).
type Service interface {
	ID() ServiceID
	Run(ctx ServiceContext) error
}
