package reclaim

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/resource"
)

// Queue records reference decrements requested without the interpreter lock
// and hands them back to whoever next holds it. There is one Queue per
// process context, with one shard per live sub-interpreter.
//
// Enqueue never blocks and takes no lock: the shard lookup is a sync.Map read
// and the push is a compare-and-swap on the shard's stack head. Enqueue must
// not be called from a signal handler; it may allocate.
type Queue struct {
	shards sync.Map // uint64 -> *shard

	enqueued atomic.Uint64
	drained  atomic.Uint64
	dropped  atomic.Uint64
}

type node struct {
	next    *node
	ref     resource.Handle
	applied atomic.Bool
}

type shard struct {
	head    atomic.Pointer[node]
	pending atomic.Int64
	closed  atomic.Bool
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Shards  int
	Pending int64
	// Enqueued counts every request; each ends up drained, dropped or
	// still pending.
	Enqueued uint64
	Drained  uint64
	Dropped  uint64
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

// Register creates the shard for interpreter id. Registering an id twice is
// a no-op.
func (q *Queue) Register(id uint64) {
	q.shards.LoadOrStore(id, &shard{})
}

// Unregister removes the shard for interpreter id and discards its pending
// entries without applying them. It returns how many entries were discarded.
func (q *Queue) Unregister(id uint64) int {
	v, ok := q.shards.LoadAndDelete(id)
	if !ok {
		return 0
	}
	s := v.(*shard)
	s.closed.Store(true)
	return q.discard(id, s)
}

// discard takes every entry off a closed shard and counts it as dropped.
func (q *Queue) discard(id uint64, s *shard) int {
	n := 0
	for p := s.head.Swap(nil); p != nil; p = p.next {
		n++
	}
	if n == 0 {
		return 0
	}
	s.pending.Add(-int64(n))
	q.dropped.Add(uint64(n))
	Logger().Warn("discarding deferred decrements for finalized interpreter",
		zap.Uint64("interpreter", id),
		zap.Int("count", n))
	return n
}

// Enqueue records a pending decrement of ref for interpreter id. It returns
// false when the entry was dropped because id has no live shard or the shard
// closed while the entry was being pushed; a dropped entry is never applied.
func (q *Queue) Enqueue(id uint64, ref resource.Handle) bool {
	q.enqueued.Add(1)
	v, ok := q.shards.Load(id)
	if !ok {
		q.drop(id, ref)
		return false
	}
	s := v.(*shard)
	if s.closed.Load() {
		q.drop(id, ref)
		return false
	}

	n := &node{ref: ref}
	s.pending.Add(1)
	for {
		head := s.head.Load()
		n.next = head
		if s.head.CompareAndSwap(head, n) {
			break
		}
	}

	// Unregister may have emptied the shard between the check above and
	// the push. Entries it missed are discarded here.
	if s.closed.Load() {
		q.discard(id, s)
		return n.applied.Load()
	}
	return true
}

func (q *Queue) drop(id uint64, ref resource.Handle) {
	q.dropped.Add(1)
	Logger().Warn("dropping deferred decrement for unknown interpreter",
		zap.Uint64("interpreter", id),
		zap.Stringer("ref", ref))
}

// Drain applies fn to every pending entry of interpreter id. The caller must
// hold that interpreter's lock. fn may enqueue further entries (finalizers
// releasing other objects); Drain keeps going until the shard is empty and
// returns the number of entries applied.
func (q *Queue) Drain(id uint64, fn func(resource.Handle)) int {
	v, ok := q.shards.Load(id)
	if !ok {
		return 0
	}
	s := v.(*shard)

	total := 0
	for {
		batch := s.head.Swap(nil)
		if batch == nil {
			break
		}
		for p := batch; p != nil; p = p.next {
			p.applied.Store(true)
			s.pending.Add(-1)
			q.drained.Add(1)
			total++
			fn(p.ref)
		}
	}
	return total
}

// Pending returns the number of entries waiting for interpreter id.
func (q *Queue) Pending(id uint64) int64 {
	v, ok := q.shards.Load(id)
	if !ok {
		return 0
	}
	return v.(*shard).pending.Load()
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	s := Stats{
		Enqueued: q.enqueued.Load(),
		Drained:  q.drained.Load(),
		Dropped:  q.dropped.Load(),
	}
	q.shards.Range(func(_, v any) bool {
		s.Shards++
		s.Pending += v.(*shard).pending.Load()
		return true
	})
	return s
}
