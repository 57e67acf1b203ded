package managed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Manager creates and recycles the objects of a Pool.
type Manager[T any] interface {
	Create(ctx context.Context) (T, error)

	// Recycle prepares an idle object for reuse. Returning an error discards
	// the object. m is the object's metrics before this recycle is counted.
	Recycle(ctx context.Context, obj T, m Metrics) error
}

// Detacher is implemented by managers that release resources held by an
// object the pool discards: on failed recycles, Retain evictions, and Close.
type Detacher[T any] interface {
	Detach(obj T)
}

type slot[T any] struct {
	obj     T
	metrics Metrics
}

// Pool hands out at most Config.MaxSize objects at a time, reusing idle ones
// in the order they were released.
type Pool[T any] struct {
	manager Manager[T]
	cfg     Config
	clock   clock.Clock
	logger  *zap.Logger

	sem *semaphore.Weighted

	// closing is cancelled by Close to wake Get calls waiting for a permit.
	closing context.Context
	stop    context.CancelFunc

	mu     sync.Mutex
	idle   []*slot[T]
	closed bool
}

func New[T any](manager Manager[T], cfg Config) (*Pool[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	closing, stop := context.WithCancel(context.Background())

	return &Pool[T]{
		manager: manager,
		cfg:     cfg,
		clock:   cfg.Clock,
		logger:  zap.NewNop(),
		sem:     semaphore.NewWeighted(int64(cfg.MaxSize)),
		closing: closing,
		stop:    stop,
	}, nil
}

// WithLogger sets the logger for the pool.
func (p *Pool[T]) WithLogger(log *zap.Logger) {
	p.logger = log.With(zap.String("service", "managed-pool"))
}

// Get returns an idle object recycled for reuse, or a new one if none can be
// reused. It blocks while MaxSize objects are checked out, until ctx is done,
// the wait timeout expires, or the pool is closed.
func (p *Pool[T]) Get(ctx context.Context) (*Object[T], error) {
	requested := p.clock.Now()

	if p.isClosed() {
		return nil, ErrClosed
	}

	if err := p.acquirePermit(ctx); err != nil {
		return nil, err
	}

	if p.isClosed() {
		p.sem.Release(1)
		return nil, ErrClosed
	}

	for {
		s := p.popIdle()
		if s == nil {
			break
		}
		if err := p.recycle(ctx, s); err != nil {
			if ctx.Err() != nil {
				p.detach(s)
				p.sem.Release(1)
				return nil, ctx.Err()
			}
			p.logger.Debug("Discarding object that failed to recycle",
				zap.Error(err), zap.Object("metrics", s.metrics))
			p.detach(s)
			continue
		}
		return p.handOut(s, requested), nil
	}

	s, err := p.create(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	return p.handOut(s, requested), nil
}

func (p *Pool[T]) acquirePermit(ctx context.Context) error {
	wctx, cancel := withTimeout(ctx, p.cfg.Timeouts.Wait)
	defer cancel()

	unwatch := context.AfterFunc(p.closing, cancel)
	defer unwatch()

	if err := p.sem.Acquire(wctx, 1); err != nil {
		if ctx.Err() == nil && p.closing.Err() != nil {
			return ErrClosed
		}
		err, _ = phaseError(ctx, TimeoutWait, err)
		return err
	}
	return nil
}

func (p *Pool[T]) recycle(ctx context.Context, s *slot[T]) error {
	rctx, cancel := withTimeout(ctx, p.cfg.Timeouts.Recycle)
	defer cancel()

	err := p.manager.Recycle(rctx, s.obj, s.metrics)
	if err == nil {
		err = rctx.Err()
	}
	if err != nil {
		err, _ = phaseError(ctx, TimeoutRecycle, err)
		return err
	}
	s.metrics.Recycle(p.clock.Now())
	return nil
}

func (p *Pool[T]) create(ctx context.Context) (*slot[T], error) {
	cctx, cancel := withTimeout(ctx, p.cfg.Timeouts.Create)
	defer cancel()

	obj, err := p.manager.Create(cctx)
	if err != nil {
		if terr, ok := phaseError(ctx, TimeoutCreate, err); ok {
			return nil, terr
		}
		return nil, fmt.Errorf("managed: create object: %w", err)
	}

	s := &slot[T]{obj: obj, metrics: NewMetricsAt(p.clock.Now())}
	p.logger.Debug("Created object")
	return s, nil
}

func (p *Pool[T]) handOut(s *slot[T], requested time.Time) *Object[T] {
	s.metrics.Request(requested)
	s.metrics.Acquire(p.clock.Now())
	return &Object[T]{pool: p, slot: s}
}

// withTimeout derives a context bounded by d. A non-positive d leaves the
// deadline of parent untouched.
func withTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}

// phaseError maps a deadline hit by a phase context to a TimeoutError and
// reports whether it did. Errors caused by the caller's own context are
// returned unchanged.
func phaseError(parent context.Context, typ TimeoutType, err error) (error, bool) {
	if parent.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Type: typ}, true
	}
	return err, false
}

// Retain detaches every idle object for which keep returns false and
// reports how many were removed. keep runs without the pool lock held and
// may use the pool. Objects checked out in the meantime are not removed.
func (p *Pool[T]) Retain(keep func(obj T, m Metrics) bool) int {
	p.mu.Lock()
	idle := make([]slot[T], len(p.idle))
	ptrs := make([]*slot[T], len(p.idle))
	for i, s := range p.idle {
		idle[i] = *s
		ptrs[i] = s
	}
	p.mu.Unlock()

	// Slots reused since the snapshot have a higher recycle count and stay.
	evict := make(map[*slot[T]]uint64)
	for i := range idle {
		if !keep(idle[i].obj, idle[i].metrics) {
			evict[ptrs[i]] = idle[i].metrics.RecycleCount
		}
	}
	if len(evict) == 0 {
		return 0
	}

	p.mu.Lock()
	var removed []*slot[T]
	kept := p.idle[:0]
	for _, s := range p.idle {
		if n, ok := evict[s]; ok && n == s.metrics.RecycleCount {
			removed = append(removed, s)
		} else {
			kept = append(kept, s)
		}
	}
	for i := len(kept); i < len(p.idle); i++ {
		p.idle[i] = nil
	}
	p.idle = kept
	p.mu.Unlock()

	for _, s := range removed {
		p.detach(s)
	}
	return len(removed)
}

// Close detaches all idle objects and wakes Get calls waiting for a free
// slot. Objects still checked out are detached when released, and Get fails
// with ErrClosed from now on.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	p.stop()

	for _, s := range idle {
		p.detach(s)
	}
	p.logger.Debug("Closed pool", zap.Int("detached", len(idle)))
}

func (p *Pool[T]) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool[T]) popIdle() *slot[T] {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.idle) == 0 {
		return nil
	}
	s := p.idle[0]
	p.idle[0] = nil
	p.idle = p.idle[1:]
	return s
}

func (p *Pool[T]) release(s *slot[T]) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.detach(s)
	} else {
		p.idle = append(p.idle, s)
		p.mu.Unlock()
	}
	p.sem.Release(1)
}

func (p *Pool[T]) detach(s *slot[T]) {
	if d, ok := p.manager.(Detacher[T]); ok {
		d.Detach(s.obj)
	}
}
