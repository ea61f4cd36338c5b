package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/walletenv/walletenv/internal/sentinel"
)

// ErrPoolClosed is returned when Acquire is called on a closed pool, e.g.
// during shutdown.
const ErrPoolClosed = sentinel.Error("pool is closed")

// InstanceFactory creates an Instance for the given pool index. The factory
// encapsulates construction details (ID generation, directory layout,
// releaser wiring) so Pool stays decoupled from them.
type InstanceFactory func(index int) (*Instance, error)

// Pool manages Instance objects with on-demand creation and optional size
// bounding. When Acquire finds no free instance it creates one via the
// factory, up to maxSize when bounded (maxSize > 0). When every instance in
// a bounded pool is in use, Acquire blocks until one is released or the
// context is canceled.
//
// Safe for concurrent use.
type Pool struct {
	// mu protects free, all, nextIdx, and closed.
	mu sync.Mutex

	// free is a LIFO stack of instances available for acquisition. LIFO
	// keeps recently used daemons warm under ReleaseClean/ReleaseNone.
	free []*Instance

	// all holds every Instance ever created, including failed and stopped
	// ones. Shutdown iterates it so nothing escapes cleanup.
	all []*Instance

	// nextIdx feeds the factory for unique instance IDs. Incremented even
	// when the factory fails, leaving harmless gaps in the sequence.
	nextIdx int

	// closed stops further acquisitions; once set, Release stops instances
	// instead of pooling them.
	closed bool

	factory InstanceFactory

	// maxSize caps the pool when positive; 0 means unbounded.
	maxSize int

	// sem is a counting semaphore bounding concurrently acquired instances.
	// Pre-filled with maxSize tokens; nil when unbounded.
	sem chan struct{}

	// closeCh unblocks Acquire calls waiting on the semaphore when the pool
	// closes. nil when unbounded.
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewPool creates a Pool that builds instances on demand with factory.
// maxSize 0 means unlimited. Panics on nil factory or negative maxSize.
func NewPool(factory InstanceFactory, maxSize int) *Pool {
	if factory == nil {
		panic("walletenv: NewPool factory must not be nil")
	}
	if maxSize < 0 {
		panic(fmt.Sprintf("walletenv: NewPool maxSize must not be negative, got %d", maxSize))
	}

	p := &Pool{
		factory: factory,
		maxSize: maxSize,
	}

	if maxSize > 0 {
		p.free = make([]*Instance, 0, maxSize)
		p.all = make([]*Instance, 0, maxSize)
		p.sem = make(chan struct{}, maxSize)
		for i := 0; i < maxSize; i++ {
			p.sem <- struct{}{}
		}
		p.closeCh = make(chan struct{})
	}

	return p
}

// Instances returns a copy of all instances ever created by this Pool.
func (p *Pool) Instances() []*Instance {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]*Instance, len(p.all))
	copy(cp, p.all)
	return cp
}

// Acquire returns a free Instance or creates one on demand. Returns
// ErrPoolClosed once the pool is closed. In a bounded pool with all
// instances in use, Acquire blocks until a release, a close, or context
// cancellation.
func (p *Pool) Acquire(ctx context.Context) (*Instance, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, fmt.Errorf("context done while waiting for instance: %w", err)
	}

	if p.sem != nil {
		select {
		case <-p.sem:
		case <-p.closeCh:
			return nil, 0, ErrPoolClosed
		case <-ctx.Done():
			return nil, 0, fmt.Errorf("context done while waiting for instance: %w", ctx.Err())
		}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.returnSlot()
		return nil, 0, ErrPoolClosed
	}

	// LIFO: pop from the end of the free stack if available.
	if n := len(p.free); n > 0 {
		inst := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		token := inst.markAcquired()
		return inst, token, nil
	}

	// No free instance: capture an index and create outside the lock.
	idx := p.nextIdx
	p.nextIdx++
	p.mu.Unlock()

	inst, err := p.factory(idx)
	if err != nil {
		p.returnSlot()
		return nil, 0, fmt.Errorf("creating instance: %w", err)
	}

	// Re-lock to register the instance and recheck closed.
	p.mu.Lock()
	p.all = append(p.all, inst) // always track; Stop is idempotent
	if p.closed {
		p.mu.Unlock()
		p.returnSlot()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), inst.cfg.StopTimeout)
		defer stopCancel()
		if stopErr := inst.Stop(stopCtx); stopErr != nil {
			Logger().Warn("failed to stop instance created after pool close",
				"id", inst.ID(), "error", stopErr)
		}
		return nil, 0, ErrPoolClosed
	}
	p.mu.Unlock()

	token := inst.markAcquired()
	return inst, token, nil
}

// Release puts an Instance back onto the free stack. The token must be the
// generation value returned by Acquire; a stale token panics
// (double-release). If the pool has been closed, the instance is stopped
// instead of being pooled.
func (p *Pool) Release(i *Instance, token uint64) {
	if !i.tryRelease(token) {
		panic("walletenv: double-release of instance " + i.ID())
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), i.cfg.StopTimeout)
		defer stopCancel()
		if err := i.Stop(stopCtx); err != nil {
			Logger().Warn("failed to stop released instance after pool close",
				"id", i.ID(), "error", err)
		}
		p.returnSlot()
		return
	}
	p.free = append(p.free, i)
	p.mu.Unlock()

	p.returnSlot()
}

// ReleaseFailed marks an Instance as permanently failed. The instance is
// stopped but stays in the all slice for Shutdown accounting. A stale token
// panics.
func (p *Pool) ReleaseFailed(i *Instance, token uint64) {
	if !i.tryRelease(token) {
		panic("walletenv: double-release of instance " + i.ID())
	}

	// Stop without holding the lock; it performs I/O and is idempotent.
	ctx, cancel := context.WithTimeout(context.Background(), i.cfg.StopTimeout)
	defer cancel()
	if err := i.Stop(ctx); err != nil {
		Logger().Warn("failed to stop instance during cleanup", "id", i.ID(), "error", err)
	}

	p.returnSlot()
}

// Close marks the pool as closed. Subsequent Acquire calls return
// ErrPoolClosed and Release stops instances instead of pooling them.
// Idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.free = nil
	p.mu.Unlock()

	if p.closeCh != nil {
		p.closeOnce.Do(func() { close(p.closeCh) })
	}
}

// returnSlot returns a semaphore token, unblocking a waiting Acquire. No-op
// for unbounded pools. Non-blocking send: after Close the channel may stay
// full because no Acquire drains it.
func (p *Pool) returnSlot() {
	if p.sem == nil {
		return
	}
	select {
	case p.sem <- struct{}{}:
	default:
		select {
		case <-p.closeCh:
			Logger().Debug("returnSlot: semaphore full after pool close, token dropped")
		default:
			// During normal operation a full semaphore means more releases
			// than acquires.
			panic(fmt.Sprintf("walletenv: returnSlot: semaphore full during normal operation (maxSize=%d)", p.maxSize))
		}
	}
}
