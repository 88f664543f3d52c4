package resource

import (
	"errors"
	"sync"

	bridgeerrors "github.com/wippyai/hostbridge/errors"
)

var ErrClosed = errors.New("object heap closed")

// Heap is a reference-counted object store. Every slot carries a strong
// count that starts at one on Insert; the slot is freed when the count
// returns to zero. Freed slots are recycled with a bumped generation.
//
// The heap has its own lock so it stays consistent when several attachment
// tokens run in parallel; callers still serialize host-side work through the
// interpreter lock.
type Heap struct {
	entries   []entry
	freeList  []uint32
	observers []Observer
	created   uint64
	freed     uint64
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

type entry struct {
	value  any
	refs   int64
	gen    uint32
	typeID uint32
	valid  bool
}

// NewHeap creates an empty heap.
func NewHeap() *Heap {
	return &Heap{
		entries:  make([]entry, 0, 64),
		freeList: make([]uint32, 0, 16),
	}
}

// Insert stores value with a count of one and returns its handle.
func (h *Heap) Insert(typeID uint32, value any) (Handle, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0, ErrClosed
	}

	var idx uint32
	if n := len(h.freeList); n > 0 {
		idx = h.freeList[n-1]
		h.freeList = h.freeList[:n-1]
	} else {
		h.entries = append(h.entries, entry{})
		idx = uint32(len(h.entries) - 1)
	}

	e := &h.entries[idx]
	e.value = value
	e.typeID = typeID
	e.refs = 1
	e.valid = true
	handle := makeHandle(idx, e.gen)
	h.created++
	h.mu.Unlock()

	h.notify(Event{Type: EventCreated, Handle: handle, TypeID: typeID, Value: value, Refs: 1})
	return handle, nil
}

// lookup returns the live entry for handle. Caller holds h.mu.
func (h *Heap) lookup(handle Handle) *entry {
	idx, ok := handle.index()
	if !ok || int(idx) >= len(h.entries) {
		return nil
	}
	e := &h.entries[idx]
	if !e.valid || e.gen != handle.generation() {
		return nil
	}
	return e
}

// Get retrieves a value by handle.
func (h *Heap) Get(handle Handle) (any, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	e := h.lookup(handle)
	if e == nil {
		return nil, false
	}
	return e.value, true
}

// TypeID returns the type ID for a handle.
func (h *Heap) TypeID(handle Handle) (uint32, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	e := h.lookup(handle)
	if e == nil {
		return 0, false
	}
	return e.typeID, true
}

// RefCount returns the current strong count for a handle.
func (h *Heap) RefCount(handle Handle) (int64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	e := h.lookup(handle)
	if e == nil {
		return 0, false
	}
	return e.refs, true
}

// IncRef adds one strong reference. It returns false for a stale handle.
func (h *Heap) IncRef(handle Handle) bool {
	h.mu.Lock()
	e := h.lookup(handle)
	if e == nil {
		h.mu.Unlock()
		return false
	}
	e.refs++
	ev := Event{Type: EventRetained, Handle: handle, TypeID: e.typeID, Value: e.value, Refs: e.refs}
	h.mu.Unlock()

	h.notify(ev)
	return true
}

// DecRef drops one strong reference. When the count reaches zero the slot is
// freed, the value's Drop method runs (outside the heap lock), and the value
// is returned with freed set.
func (h *Heap) DecRef(handle Handle) (value any, freed bool, err error) {
	h.mu.Lock()
	e := h.lookup(handle)
	if e == nil {
		h.mu.Unlock()
		return nil, false, bridgeerrors.InvalidHandle(bridgeerrors.PhaseDrain, uint64(handle))
	}

	e.refs--
	if e.refs > 0 {
		ev := Event{Type: EventReleased, Handle: handle, TypeID: e.typeID, Value: e.value, Refs: e.refs}
		h.mu.Unlock()
		h.notify(ev)
		return nil, false, nil
	}

	typeID := e.typeID
	value = h.free(handle)
	h.mu.Unlock()

	h.finalize(handle, typeID, value)
	return value, true, nil
}

// free releases the slot for handle and returns its value. Caller holds h.mu.
func (h *Heap) free(handle Handle) any {
	idx, _ := handle.index()
	e := &h.entries[idx]
	value := e.value
	e.value = nil
	e.refs = 0
	e.valid = false
	e.gen++
	h.freeList = append(h.freeList, idx)
	h.freed++
	return value
}

func (h *Heap) finalize(handle Handle, typeID uint32, value any) {
	if d, ok := value.(Dropper); ok {
		d.Drop()
	}
	h.notify(Event{Type: EventFreed, Handle: handle, TypeID: typeID, Value: value})
}

// Len returns the number of live slots.
func (h *Heap) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries) - len(h.freeList)
}

// Stats returns a snapshot of the heap counters.
func (h *Heap) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Stats{
		Live:    len(h.entries) - len(h.freeList),
		Created: h.created,
		Freed:   h.freed,
	}
	for i := range h.entries {
		if h.entries[i].valid {
			s.Refs += h.entries[i].refs
		}
	}
	return s
}

// Each iterates over all live slots until fn returns false.
func (h *Heap) Each(fn func(handle Handle, typeID uint32, refs int64, value any) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for i, e := range h.entries {
		if e.valid {
			if !fn(makeHandle(uint32(i), e.gen), e.typeID, e.refs, e.value) {
				break
			}
		}
	}
}

// Clear frees every live slot regardless of its count and returns how many
// slots were freed. Drop methods run outside the heap lock.
func (h *Heap) Clear() int {
	type victim struct {
		value  any
		handle Handle
		typeID uint32
	}

	h.mu.Lock()
	var victims []victim
	for i := range h.entries {
		e := &h.entries[i]
		if !e.valid {
			continue
		}
		handle := makeHandle(uint32(i), e.gen)
		typeID := e.typeID
		victims = append(victims, victim{value: h.free(handle), handle: handle, typeID: typeID})
	}
	h.mu.Unlock()

	for _, v := range victims {
		h.finalize(v.handle, v.typeID, v.value)
	}
	return len(victims)
}

// Close frees every slot and stops accepting inserts.
func (h *Heap) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.Clear()
	return nil
}

// Subscribe adds an observer for lifecycle events.
func (h *Heap) Subscribe(o Observer) {
	h.obsMu.Lock()
	defer h.obsMu.Unlock()
	h.observers = append(h.observers, o)
}

// Unsubscribe removes an observer.
func (h *Heap) Unsubscribe(o Observer) {
	h.obsMu.Lock()
	defer h.obsMu.Unlock()
	for i, obs := range h.observers {
		if obs == o {
			h.observers = append(h.observers[:i], h.observers[i+1:]...)
			return
		}
	}
}

func (h *Heap) notify(e Event) {
	h.obsMu.RLock()
	defer h.obsMu.RUnlock()
	for _, o := range h.observers {
		o.OnResourceEvent(e)
	}
}
