package resource

import "fmt"

// Handle is an opaque reference to a slot in a Heap. The low 32 bits hold
// the slot index plus one and the high 32 bits hold the slot generation, so a
// handle to a freed slot never resolves after the slot is reused.
// Handle 0 is reserved and always invalid.
type Handle uint64

func makeHandle(idx, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(idx+1))
}

func (h Handle) index() (uint32, bool) {
	lo := uint32(h)
	if lo == 0 {
		return 0, false
	}
	return lo - 1, true
}

func (h Handle) generation() uint32 {
	return uint32(h >> 32)
}

// String formats the handle as slot@generation.
func (h Handle) String() string {
	idx, ok := h.index()
	if !ok {
		return "invalid"
	}
	return fmt.Sprintf("%d@%d", idx, h.generation())
}

// EventType identifies a heap lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventRetained
	EventReleased
	EventFreed
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventRetained:
		return "retained"
	case EventReleased:
		return "released"
	case EventFreed:
		return "freed"
	}
	return "unknown"
}

// Event represents a heap lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Refs   int64
	TypeID uint32
	Type   EventType
}

// Observer receives notifications about heap lifecycle events.
// Observers are called without the heap lock held.
type Observer interface {
	OnResourceEvent(Event)
}

// Dropper is optionally implemented by heap values that need cleanup when
// their last reference goes away.
type Dropper interface {
	Drop()
}

// Stats is a snapshot of heap counters.
type Stats struct {
	Live    int
	Refs    int64
	Created uint64
	Freed   uint64
}
