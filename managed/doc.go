// Package managed implements a pool of reusable objects that records the
// lifecycle timing of every object it hands out.
//
// Each pooled object carries a Metrics value stamped by the pool when the
// object is created, requested, handed out and recycled. Callers read a copy
// through Object.Metrics:
//
//	obj, err := pool.Get(ctx)
//	if err != nil {
//		return err
//	}
//	defer obj.Release()
//
//	m := obj.Metrics()
//	if d, ok := m.CreateLatency(); ok {
//		log.Printf("new object built in %s", d)
//	}
package managed
