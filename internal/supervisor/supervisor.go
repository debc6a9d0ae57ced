package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lux/starknode/log"
)

// Supervisor owns the registered services and runs them to completion,
// grounded on original_source's ServiceMonitor: registration is separate
// from activation, a service only runs once its bit is set in the shared
// ServiceMask, and Start keeps the node alive until the root context is
// cancelled (or a service fails) and every started service has returned.
type Supervisor struct {
	mu       sync.Mutex
	services map[ServiceID]Service
}

// NewSupervisor returns an empty Supervisor ready for Register calls.
func NewSupervisor() *Supervisor {
	return &Supervisor{services: make(map[ServiceID]Service)}
}

// Register adds svc under its own ID, returning an error if that ID already
// has a registrant — a node only ever wires one block production service,
// one L1 sync service, and so on.
func (s *Supervisor) Register(svc Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.services[svc.ID()]; exists {
		return fmt.Errorf("supervisor: service %s already registered", svc.ID())
	}
	s.services[svc.ID()] = svc
	return nil
}

// Start activates every id in active and runs all registered, active
// services to completion. It also watches for services activated after
// Start has already begun (spec.md §4.9's service_add/service_subscribe
// contract) and starts those on the fly, the same way original_source's
// ServiceMonitor::start selects between join_set.join_next() and
// ctx.service_subscribe(). Start returns once the activation watcher and
// every started service have returned. The watcher stops only when the root
// context is cancelled or a service returns a non-cancellation error, so
// while ctx is live Start does not return merely because every service has
// returned nil. A service error does not cancel the other services; Start
// waits for them and then returns the first such error.
func (s *Supervisor) Start(ctx context.Context, active ServiceID) error {
	root := NewRootContext(ctx)
	transport, sub := root.Subscribe()
	defer sub.Unsubscribe()

	group, groupCtx := errgroup.WithContext(context.Background())
	var mu sync.Mutex
	started := make(map[ServiceID]bool)

	s.mu.Lock()
	registered := make(map[ServiceID]Service, len(s.services))
	for id, svc := range s.services {
		registered[id] = svc
	}
	s.mu.Unlock()

	launch := func(id ServiceID) {
		mu.Lock()
		svc, ok := registered[id]
		alreadyStarted := started[id]
		if ok && !alreadyStarted {
			started[id] = true
		}
		mu.Unlock()
		if !ok || alreadyStarted {
			return
		}
		svcCtx := root.Child().WithID(id)
		group.Go(func() error {
			return s.runOne(svcCtx, svc)
		})
	}

	for _, id := range allServiceIDs {
		if active&id != 0 {
			root.ServiceAdd(id)
			launch(id)
		}
	}

	// Watch for services activated after Start has already begun running
	// (spec.md §4.9's service_add/service_subscribe contract), starting
	// each newly-activated one on the fly.
	group.Go(func() error {
		for {
			select {
			case ev, ok := <-transport:
				if !ok {
					return nil
				}
				if ev.Active {
					launch(ev.ID)
				}
			case <-root.Cancelled():
				return nil
			case <-groupCtx.Done():
				return nil
			}
		}
	})

	return group.Wait()
}

// runOne races svc.Run against ctx's cancellation plus ServiceGracePeriod:
// a service that returns on its own reports its error (context.Canceled is
// treated as a clean stop, not a failure); a service that ignores
// cancellation past the grace period is abandoned and reported as an error,
// though — unlike the Rust original's task abort — the goroutine itself
// keeps running until it eventually returns on its own.
func (s *Supervisor) runOne(ctx ServiceContext, svc Service) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("service %s panicked: %v", svc.ID(), r)
				return
			}
		}()
		done <- svc.Run(ctx)
	}()

	select {
	case err := <-done:
		return cleanStop(err)
	case <-ctx.Cancelled():
	}

	timer := time.NewTimer(ServiceGracePeriod)
	defer timer.Stop()
	select {
	case err := <-done:
		return cleanStop(err)
	case <-timer.C:
		log.Error("supervisor: service exceeded grace period after cancellation", "service", svc.ID())
		return fmt.Errorf("service %s did not stop within %s", svc.ID(), ServiceGracePeriod)
	}
}

func cleanStop(err error) error {
	if err == context.Canceled {
		return nil
	}
	return err
}
