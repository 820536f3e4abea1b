package usecase

import (
	"context"
	"sync"
	"sync/atomic"

	"gopkg.in/tomb.v2"

	"servicehub/internal/domain/entity"
	"servicehub/internal/domain/repository"
	"servicehub/pkg/logger"
)

type ContextState int32

const (
	StateUninitialized ContextState = iota
	StateLoading
	StateReady
	StateReconciling
)

func (s ContextState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateReconciling:
		return "reconciling"
	default:
		return "uninitialized"
	}
}

// cacheBinding is what a cache context plugs into the shared lifecycle.
type cacheBinding interface {
	// reset empties every cache of the context and scopes it to me.
	reset(epoch uint64, me *entity.Identity)
	// subscribe opens the push feeds of the context under t.
	subscribe(ctx context.Context, t *tomb.Tomb, me entity.Identity, epoch uint64) error
	// probe checks the store accepts the identity.
	probe(ctx context.Context) error
	// fetch loads the authoritative state.
	fetch(ctx context.Context) error
}

// lifecycle opens the push feeds of a context when an identity appears, runs the
// initial fetch once the identity passed a probe, and tears everything down when
// the identity goes away or the context is closed.
type lifecycle struct {
	name    string
	auth    *AuthUseCase
	binding cacheBinding

	state atomic.Int32

	mu         sync.Mutex
	epoch      uint64
	activation uint64
	tomb       *tomb.Tomb
	cancel     context.CancelFunc
	ready      chan struct{}
	closed     bool
	unobserve  func()
}

func newLifecycle(name string, auth *AuthUseCase, binding cacheBinding) *lifecycle {
	ready := make(chan struct{})
	return &lifecycle{
		name:    name,
		auth:    auth,
		binding: binding,
		ready:   ready,
	}
}

// Start registers with the auth manager and activates for the current identity.
func (l *lifecycle) Start() {
	l.unobserve = l.auth.Observe(l.onIdentity)
	identity, epoch := l.auth.IdentityAndEpoch()
	l.onIdentity(identity, epoch)
}

func (l *lifecycle) State() ContextState {
	return ContextState(l.state.Load())
}

// Ready is closed once the current identity's initial fetch has finished.
func (l *lifecycle) Ready() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready
}

func (l *lifecycle) onIdentity(identity *entity.Identity, epoch uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || (epoch < l.epoch) {
		return
	}
	l.stopLocked()
	l.epoch = epoch
	l.binding.reset(epoch, identity)

	ready := make(chan struct{})
	l.ready = ready
	if identity == nil {
		l.state.Store(int32(StateReady))
		close(ready)
		return
	}

	l.state.Store(int32(StateLoading))
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	activation := l.activation

	if err := l.subscribeLocked(ctx, *identity, epoch); err != nil {
		logger.Warn("%s: opening push feeds failed, retrying after probe: %v", l.name, err)
	}

	go l.activate(ctx, activation, *identity, epoch, ready)
}

// subscribeLocked opens every feed of the context or none of them.
func (l *lifecycle) subscribeLocked(ctx context.Context, me entity.Identity, epoch uint64) error {
	t := &tomb.Tomb{}
	// Keeps the tomb alive until killed, so a feed that ends does not stop the others.
	t.Go(func() error {
		<-t.Dying()
		return nil
	})

	if err := l.binding.subscribe(ctx, t, me, epoch); err != nil {
		t.Kill(err)
		_ = t.Wait()
		return err
	}
	l.tomb = t
	return nil
}

func (l *lifecycle) activate(ctx context.Context, activation uint64, me entity.Identity, epoch uint64, ready chan struct{}) {
	defer close(ready)

	if err := l.binding.probe(ctx); err != nil {
		logger.Warn("%s: auth probe failed for %s: %v", l.name, me.ID, err)
		l.settle(epoch)
		return
	}

	l.mu.Lock()
	if l.epoch != epoch || l.activation != activation {
		l.mu.Unlock()
		return
	}
	if l.tomb == nil {
		if err := l.subscribeLocked(ctx, me, epoch); err != nil {
			logger.Error("%s: opening push feeds failed: %v", l.name, err)
		}
	}
	l.mu.Unlock()

	if err := l.binding.fetch(ctx); err != nil {
		logger.Warn("%s: initial fetch failed for %s: %v", l.name, me.ID, err)
	}
	l.settle(epoch)
}

func (l *lifecycle) settle(epoch uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.epoch == epoch {
		l.state.Store(int32(StateReady))
	}
}

// refresh re-runs the authoritative fetch, marking the context reconciling meanwhile.
func (l *lifecycle) refresh(ctx context.Context) error {
	l.state.CompareAndSwap(int32(StateReady), int32(StateReconciling))
	err := l.binding.fetch(ctx)
	l.state.CompareAndSwap(int32(StateReconciling), int32(StateReady))
	return err
}

// stopLocked kills the feeds of the current activation and waits for them to exit.
// A pending activate of that activation becomes a no-op.
func (l *lifecycle) stopLocked() {
	l.activation++
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	if l.tomb != nil {
		l.tomb.Kill(nil)
		if err := l.tomb.Wait(); err != nil {
			logger.Warn("%s: push feed stopped with error: %v", l.name, err)
		}
		l.tomb = nil
	}
}

// Close detaches from the auth manager and closes every feed.
func (l *lifecycle) Close() {
	if l.unobserve != nil {
		l.unobserve()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.stopLocked()
	l.binding.reset(l.epoch, nil)
	l.state.Store(int32(StateUninitialized))
}

// runFeed pumps a subscription into apply until t dies or the feed ends.
func runFeed[T entity.Document](t *tomb.Tomb, name string, sub repository.Subscription[T], apply func(repository.ChangeEvent[T])) {
	t.Go(func() error {
		defer func() {
			if err := sub.Close(); err != nil {
				logger.Warn("closing %s feed: %v", name, err)
			}
		}()
		logger.Debug("%s feed open", name)
		for {
			select {
			case <-t.Dying():
				return nil
			case event, ok := <-sub.Events():
				if !ok {
					logger.Warn("%s feed ended", name)
					return nil
				}
				apply(event)
			}
		}
	})
}

// openFeed subscribes col with query and pumps it into apply under t.
func openFeed[T entity.Document](ctx context.Context, t *tomb.Tomb, col repository.Collection[T], query repository.Query, apply func(repository.ChangeEvent[T])) error {
	sub, err := col.Subscribe(ctx, query)
	if err != nil {
		return err
	}
	runFeed(t, col.Name(), sub, apply)
	return nil
}

// probeCollection lists one document to confirm the store accepts the identity.
func probeCollection[T entity.Document](ctx context.Context, auth *AuthUseCase, col repository.Collection[T]) error {
	if err := auth.EnsureFresh(ctx); err != nil {
		return err
	}
	_, err := withAuthRecovery(ctx, auth, "probe "+col.Name(), func(ctx context.Context) ([]T, error) {
		return col.List(ctx, repository.NewQuery().WithLimit(1))
	})
	return err
}
