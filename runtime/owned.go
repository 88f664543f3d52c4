package runtime

import (
	"context"
	goruntime "runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/reclaim"
	"github.com/wippyai/hostbridge/resource"
)

// Owned holds one strong reference to a host object independently of any
// token. It may be stored and sent to other goroutines. Cloning needs the
// interpreter lock; releasing never does: without a token the decrement is
// queued and applied at the next attachment.
//
// An Owned that becomes unreachable without being released is reclaimed
// through the queue as well.
type Owned struct {
	interp   *Interpreter
	released *atomic.Bool
	cleanup  goruntime.Cleanup
	h        resource.Handle
}

// ownedRef is what the cleanup sees. It must not reference the Owned.
type ownedRef struct {
	queue    *reclaim.Queue
	released *atomic.Bool
	id       uint64
	h        resource.Handle
}

func newOwned(i *Interpreter, h resource.Handle) *Owned {
	o := &Owned{interp: i, h: h, released: new(atomic.Bool)}
	o.cleanup = goruntime.AddCleanup(o, reclaimLost, ownedRef{
		queue:    i.rt.queue,
		released: o.released,
		id:       i.id,
		h:        h,
	})
	return o
}

func reclaimLost(r ownedRef) {
	if r.released.CompareAndSwap(false, true) {
		r.queue.Enqueue(r.id, r.h)
	}
}

// InterpreterID returns the identity of the interpreter owning the object.
func (o *Owned) InterpreterID() uint64 { return o.interp.id }

// Released reports whether the reference has been given up.
func (o *Owned) Released() bool { return o.released.Load() }

func (o *Owned) checkLive() {
	if o.released.Load() {
		panic(errors.TokenMisuse("owned handle used after release"))
	}
}

// Bind returns a Borrowed view of the object under tok. The view holds its
// own reference until tok is released, so releasing o meanwhile is safe.
func (o *Owned) Bind(tok *Token) Borrowed {
	o.incref(tok)
	tok.temps = append(tok.temps, o.h)
	return Borrowed{tok: tok, h: o.h, interp: o.interp.id}
}

// CloneWith returns a second Owned reference, incrementing under tok. Host
// functions receive their token directly and should clone with it: a
// context captured outside the callback does not carry the attachment, so
// Clone would block on the lock the caller already holds.
func (o *Owned) CloneWith(tok *Token) *Owned {
	o.incref(tok)
	return newOwned(o.interp, o.h)
}

func (o *Owned) incref(tok *Token) {
	tok.check()
	o.checkLive()
	if id := tok.att.interp.id; id != o.interp.id {
		panic(errors.CrossInterpreterViolation(o.interp.id, id))
	}
	if !o.interp.heap.IncRef(o.h) {
		panic(errors.TokenMisuse("handle " + o.h.String() + " is no longer live"))
	}
}

// Clone returns a second Owned reference to the object. Incrementing a
// reference count needs the lock: Clone uses the token ctx carries, or
// attaches for the duration of the call. Inside a host function use
// CloneWith.
func (o *Owned) Clone(ctx context.Context) *Owned {
	o.checkLive()
	i := o.interp
	tok := tokenFrom(ctx, i.id)
	if tok == nil {
		tok = i.Attach(ctx)
		defer tok.Release()
	}
	if !i.heap.IncRef(o.h) {
		panic(errors.TokenMisuse("handle " + o.h.String() + " is no longer live"))
	}
	return newOwned(i, o.h)
}

// Release gives up the reference. If ctx carries a live token for the
// owning interpreter the count drops immediately; otherwise the decrement
// is queued. Releasing twice is a no-op.
func (o *Owned) Release(ctx context.Context) {
	if !o.released.CompareAndSwap(false, true) {
		return
	}
	o.cleanup.Stop()
	i := o.interp
	if tokenFrom(ctx, i.id) != nil {
		i.decref(o.h)
		return
	}
	i.rt.queue.Enqueue(i.id, o.h)
}

// Close queues the decrement without blocking. It reports an error when the
// interpreter is already finalized and the entry was dropped.
func (o *Owned) Close() error {
	if !o.released.CompareAndSwap(false, true) {
		return nil
	}
	o.cleanup.Stop()
	i := o.interp
	if !i.rt.queue.Enqueue(i.id, o.h) {
		Logger().Debug("owned handle closed after finalization",
			zap.Uint64("interpreter", i.id),
			zap.Stringer("handle", o.h))
		return errors.New(errors.PhaseDrain, errors.KindFinalized).
			Detail("interpreter %d finalized", i.id).
			Build()
	}
	return nil
}
