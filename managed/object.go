package managed

import "sync"

// Object is a value checked out of a Pool. It must be released or detached
// exactly once; later calls are no-ops. The handle must not be used after
// Release or Detach, since the pool may already have handed the slot to
// another caller.
type Object[T any] struct {
	pool *Pool[T]
	slot *slot[T]
	once sync.Once
}

func (o *Object[T]) Value() T { return o.slot.obj }

// Metrics returns a snapshot of the object's metrics.
func (o *Object[T]) Metrics() Metrics { return o.slot.metrics }

// Release returns the object to its pool.
func (o *Object[T]) Release() {
	o.once.Do(func() { o.pool.release(o.slot) })
}

// Detach takes the object out of its pool permanently and frees its slot.
// The manager's Detacher is not called; the caller owns the value. Detach
// returns the zero T if the object was already released or detached.
func (o *Object[T]) Detach() T {
	var obj T
	o.once.Do(func() {
		obj = o.slot.obj
		o.pool.sem.Release(1)
	})
	return obj
}
