package runtime

import (
	"context"
	"maps"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"go.starlark.net/starlark"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/engine"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/gil"
	"github.com/wippyai/hostbridge/resource"
)

// attachmentLocal is the thread-local key under which a Starlark thread
// carries the attachment it runs under. Callbacks find their token through
// it.
const attachmentLocal = "hostbridge.attachment"

func init() {
	engine.RegisterLocal(attachmentLocal)
}

// objectStripes is the number of per-object locks used when the interpreter
// lock is disabled.
const objectStripes = 64

// Interpreter is one sub-interpreter: its own globals, object heap, lock and
// reclamation shard. Handles created under one interpreter are rejected by
// every other.
type Interpreter struct {
	rt      *Runtime
	heap    *resource.Heap
	lock    gil.Lock
	pool    *engine.ThreadPool
	globals starlark.StringDict
	// index interns reference-typed host values so each object has exactly
	// one heap slot and one reference count.
	index     map[starlark.Value]resource.Handle
	name      string
	objects   [objectStripes]sync.Mutex
	id        uint64
	attaches  atomic.Uint64
	nested    atomic.Uint64
	drained   atomic.Uint64
	stale     atomic.Uint64
	globalsMu sync.RWMutex
	indexMu   sync.Mutex
	finalized atomic.Bool
}

func newInterpreter(rt *Runtime, id uint64, name string) *Interpreter {
	i := &Interpreter{
		rt:      rt,
		id:      id,
		name:    name,
		heap:    resource.NewHeap(),
		lock:    gil.New(rt.cfg.GILMode),
		pool:    engine.NewThreadPool(rt.cfg.Threads.PoolSize),
		globals: make(starlark.StringDict),
		index:   make(map[starlark.Value]resource.Handle),
	}
	if printFn := rt.opts.print; printFn != nil {
		i.pool.SetPrint(func(thread *starlark.Thread, msg string) {
			printFn(name, thread.Name, msg)
		})
	}
	i.heap.Subscribe(indexObserver{i})
	return i
}

// ID returns the interpreter's identity.
func (i *Interpreter) ID() uint64 { return i.id }

// Name returns the interpreter's name.
func (i *Interpreter) Name() string { return i.name }

// Runtime returns the runtime the interpreter belongs to.
func (i *Interpreter) Runtime() *Runtime { return i.rt }

// LockHeld reports whether any token currently holds the interpreter lock.
func (i *Interpreter) LockHeld() bool { return i.lock.Held() }

// Finalized reports whether Close has run.
func (i *Interpreter) Finalized() bool { return i.finalized.Load() }

// Attach returns a token proving the caller may touch this interpreter's
// objects. If ctx carries a live token for this interpreter (see
// Token.Context) the result is a non-owning nested token and nothing is
// acquired; otherwise Attach blocks until the lock is free. Pending
// deferred decrements are drained before Attach returns.
//
// Attach panics with an attachment failure if the interpreter has been
// finalized. Go has no thread identity, so re-entrancy is only recognised
// through ctx: a goroutine that already holds a token must pass
// tok.Context(), never a fresh context. Host functions receive their token
// as an argument and should use it, or its Context, for nested work.
func (i *Interpreter) Attach(ctx context.Context) *Token {
	if ctx == nil {
		ctx = context.Background()
	}
	if parent := tokenFrom(ctx, i.id); parent != nil {
		i.nested.Add(1)
		return parent.att.push(ctx, false)
	}

	if i.finalized.Load() {
		panic(errors.AttachmentFailure(i.id, "interpreter finalized"))
	}
	i.lock.Acquire()
	if i.finalized.Load() {
		i.lock.Release()
		panic(errors.AttachmentFailure(i.id, "interpreter finalized"))
	}

	att := &attachment{interp: i, thread: i.pool.Get(i.name)}
	att.thread.SetLocal(attachmentLocal, att)
	tok := att.push(ctx, true)
	i.attaches.Add(1)
	i.drain()
	return tok
}

// Do runs fn under a token and releases it afterwards. The outcome follows
// the pending-exception rules of Token.Restore: ErrPending returns the
// pending exception, any other error gets it chained as the cause, and a
// nil result with an exception pending panics.
func (i *Interpreter) Do(ctx context.Context, fn func(tok *Token) error) error {
	tok := i.Attach(ctx)
	defer tok.Release()
	return tok.settle("do", fn(tok))
}

// detach ends an owning attachment. The caller has already drained.
func (i *Interpreter) detach(att *attachment) {
	att.thread.SetLocal(attachmentLocal, nil)
	i.pool.Put(att.thread)
	att.thread = nil
	i.lock.Release()
}

// drain applies every deferred decrement queued for this interpreter. The
// caller holds the lock. Decrements can run finalizers that queue more
// work, which the queue's own loop picks up.
func (i *Interpreter) drain() int {
	i.lock.LockDrain()
	defer i.lock.UnlockDrain()

	n := i.rt.queue.Drain(i.id, i.decref)
	if n > 0 {
		i.drained.Add(uint64(n))
	}
	return n
}

// decref drops one strong reference. A stale handle means the reference was
// already released; it is counted and logged, never applied to a reused
// slot.
func (i *Interpreter) decref(h resource.Handle) {
	if _, _, err := i.heap.DecRef(h); err != nil {
		i.stale.Add(1)
		Logger().Warn("stale decrement ignored",
			zap.Uint64("interpreter", i.id),
			zap.Stringer("handle", h),
			zap.Error(err))
	}
}

// adopt returns a heap handle carrying one new strong reference to v.
// Reference-typed values are interned so repeated adoption of the same
// object shares a slot.
func (i *Interpreter) adopt(v starlark.Value) resource.Handle {
	if v == nil {
		v = starlark.None
	}
	if !internable(v) {
		return i.insert(v)
	}

	i.indexMu.Lock()
	defer i.indexMu.Unlock()
	if h, ok := i.index[v]; ok && i.heap.IncRef(h) {
		return h
	}
	h := i.insert(v)
	i.index[v] = h
	return h
}

func (i *Interpreter) insert(v starlark.Value) resource.Handle {
	h, err := i.heap.Insert(0, v)
	if err != nil {
		panic(errors.AttachmentFailure(i.id, err.Error()))
	}
	return h
}

// internable reports whether v has reference identity.
func internable(v starlark.Value) bool {
	return reflect.TypeOf(v).Kind() == reflect.Ptr
}

// indexObserver drops freed objects from the intern index.
type indexObserver struct {
	i *Interpreter
}

func (o indexObserver) OnResourceEvent(e resource.Event) {
	i := o.i
	if e.Type != resource.EventFreed {
		return
	}
	v, ok := e.Value.(starlark.Value)
	if !ok || !internable(v) {
		return
	}
	i.indexMu.Lock()
	if i.index[v] == e.Handle {
		delete(i.index, v)
	}
	i.indexMu.Unlock()
}

// value resolves a handle. The caller holds a token.
func (i *Interpreter) value(h resource.Handle) starlark.Value {
	v, ok := i.heap.Get(h)
	if !ok {
		panic(errors.TokenMisuse("handle " + h.String() + " is no longer live"))
	}
	return v.(starlark.Value)
}

// lockObject serializes structural access to one object when attachments
// run in parallel. Under the standard lock it is a no-op.
func (i *Interpreter) lockObject(h resource.Handle) func() {
	if i.lock.Mode() != gil.ModeDisabled {
		return func() {}
	}
	m := &i.objects[uint64(h)%objectStripes]
	m.Lock()
	return m.Unlock
}

func (i *Interpreter) globalsSnapshot() starlark.StringDict {
	i.globalsMu.RLock()
	defer i.globalsMu.RUnlock()
	return maps.Clone(i.globals)
}

// env returns the predeclared names plus the current globals.
func (i *Interpreter) env() starlark.StringDict {
	env := i.rt.predeclared()
	i.globalsMu.RLock()
	maps.Copy(env, i.globals)
	i.globalsMu.RUnlock()
	return env
}

// Close finalizes the interpreter: it waits for every token to be released,
// drains, frees every heap slot (running finalizers), and unregisters the
// reclamation shard. Decrements queued afterwards are dropped with a
// diagnostic. Closing while ctx carries a token for this interpreter fails.
func (i *Interpreter) Close(ctx context.Context) error {
	if ctx != nil && tokenFrom(ctx, i.id) != nil {
		return errors.New(errors.PhaseAttach, errors.KindInvalidInput).
			Detail("interpreter %d closed while attached", i.id).
			Build()
	}

	i.lock.AcquireExclusive()
	defer i.lock.ReleaseExclusive()
	if !i.finalized.CompareAndSwap(false, true) {
		return nil
	}

	i.drain()
	freed := i.heap.Len()
	if err := i.heap.Close(); err != nil {
		return errors.Wrap(errors.PhaseDrain, errors.KindFinalized, err, "close object heap")
	}
	dropped := i.rt.queue.Unregister(i.id)

	i.indexMu.Lock()
	clear(i.index)
	i.indexMu.Unlock()
	i.globalsMu.Lock()
	i.globals = nil
	i.globalsMu.Unlock()

	i.rt.forget(i.id)
	Logger().Debug("interpreter finalized",
		zap.Uint64("id", i.id),
		zap.Int("freed", freed),
		zap.Int("dropped", dropped))
	return nil
}

// Stats is a snapshot of an interpreter's counters.
type Stats struct {
	Name      string
	ID        uint64
	Live      int
	Refs      int64
	Created   uint64
	Freed     uint64
	Pending   int64
	Drained   uint64
	Stale     uint64
	Attaches  uint64
	Nested    uint64
	Holders   int
	LockHeld  bool
	Finalized bool
}

// Stats returns a snapshot of the interpreter's counters.
func (i *Interpreter) Stats() Stats {
	hs := i.heap.Stats()
	return Stats{
		Name:      i.name,
		ID:        i.id,
		Live:      hs.Live,
		Refs:      hs.Refs,
		Created:   hs.Created,
		Freed:     hs.Freed,
		Pending:   i.rt.queue.Pending(i.id),
		Drained:   i.drained.Load(),
		Stale:     i.stale.Load(),
		Attaches:  i.attaches.Load(),
		Nested:    i.nested.Load(),
		Holders:   i.lock.Holders(),
		LockHeld:  i.lock.Held(),
		Finalized: i.finalized.Load(),
	}
}

// Globals returns the names of the interpreter's globals in sorted order.
func (i *Interpreter) Globals() []string {
	names := slices.Collect(maps.Keys(i.globalsSnapshot()))
	slices.Sort(names)
	return names
}
