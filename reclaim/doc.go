// Package reclaim implements deferred reference reclamation.
//
// Releasing a host object reference needs the interpreter lock. Code that
// does not hold it (a goroutine finishing with an Owned handle, a cleanup
// attached to a collected handle) records the decrement in a Queue instead:
//
//	q.Enqueue(interpID, handle) // lock-free, never blocks
//
// The next holder of that interpreter's lock applies the pending decrements:
//
//	q.Drain(interpID, func(h resource.Handle) { heap.DecRef(h) })
//
// Each sub-interpreter has its own shard, so a decrement is never applied
// against another interpreter's heap. Entries for an interpreter that is not
// registered (never created, or already finalized) are counted, logged and
// discarded. Drain order is unspecified.
package reclaim
