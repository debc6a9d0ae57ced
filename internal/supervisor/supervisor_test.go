package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeService runs run until ctx is cancelled (or run returns an error
// immediately), recording whether it ever started.
type fakeService struct {
	id      ServiceID
	run     func(ctx ServiceContext) error
	started chan struct{}
}

func newFakeService(id ServiceID, run func(ctx ServiceContext) error) *fakeService {
	return &fakeService{id: id, run: run, started: make(chan struct{}, 1)}
}

func (f *fakeService) ID() ServiceID { return f.id }

func (f *fakeService) Run(ctx ServiceContext) error {
	select {
	case f.started <- struct{}{}:
	default:
	}
	return f.run(ctx)
}

func waitUntilRunning(t *testing.T, block func(ctx context.Context) error) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- block(context.Background()) }()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor.Start did not return in time")
		return nil
	}
}

func TestRegisterRejectsDuplicateServiceID(t *testing.T) {
	sup := NewSupervisor()
	require.NoError(t, sup.Register(newFakeService(Database, func(ServiceContext) error { return nil })))
	err := sup.Register(newFakeService(Database, func(ServiceContext) error { return nil }))
	require.Error(t, err)
}

func TestStartReturnsWhenRootContextCancelled(t *testing.T) {
	sup := NewSupervisor()
	svc := newFakeService(Database, func(ctx ServiceContext) error {
		<-ctx.Cancelled()
		return nil
	})
	require.NoError(t, sup.Register(svc))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-svc.started
		cancel()
	}()

	err := waitUntilRunning(t, func(context.Context) error { return sup.Start(ctx, Database) })
	require.NoError(t, err)
}

func TestStartPropagatesServiceError(t *testing.T) {
	sup := NewSupervisor()
	boom := errors.New("boom")
	require.NoError(t, sup.Register(newFakeService(Database, func(ServiceContext) error { return boom })))

	err := waitUntilRunning(t, func(context.Context) error { return sup.Start(context.Background(), Database) })
	require.ErrorIs(t, err, boom)
}

func TestStartIgnoresServiceNotInActiveMask(t *testing.T) {
	sup := NewSupervisor()
	svc := newFakeService(Gateway, func(ctx ServiceContext) error {
		<-ctx.Cancelled()
		return nil
	})
	require.NoError(t, sup.Register(svc))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		select {
		case <-svc.started:
			t.Errorf("service %s must not start without being in the active mask", svc.ID())
		default:
		}
		cancel()
	}()

	err := waitUntilRunning(t, func(context.Context) error { return sup.Start(ctx, Database) })
	require.NoError(t, err)
}

func TestStartLaunchesServiceActivatedAfterStartBegins(t *testing.T) {
	sup := NewSupervisor()
	gateway := newFakeService(Gateway, func(ctx ServiceContext) error {
		<-ctx.Cancelled()
		return nil
	})
	require.NoError(t, sup.Register(gateway))

	monitor := newFakeService(Monitor, func(ctx ServiceContext) error {
		ctx.ServiceAdd(Gateway)
		<-ctx.Cancelled()
		return nil
	})
	require.NoError(t, sup.Register(monitor))

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		select {
		case <-gateway.started:
		case <-time.After(2 * time.Second):
		}
		cancel()
	}()

	err := waitUntilRunning(t, func(context.Context) error { return sup.Start(ctx, Monitor) })
	require.NoError(t, err)

	select {
	case <-gateway.started:
	default:
		t.Fatal("gateway service activated at runtime was never started")
	}
}
