// Package resource provides the reference-counted object heap behind host
// object handles.
//
// Every host object reachable from Go lives in a Heap slot. A slot carries a
// strong count, the ID of the type that produced it, and a generation. The
// count starts at one on Insert, moves with IncRef and DecRef, and the slot is
// freed when it reaches zero:
//
//	heap := resource.NewHeap()
//
//	h, _ := heap.Insert(typeID, value) // refs = 1
//	heap.IncRef(h)                     // refs = 2
//	heap.DecRef(h)                     // refs = 1
//	value, freed, err := heap.DecRef(h) // freed
//
// # Generations
//
// Freed slots are recycled. A Handle embeds the generation of the slot it was
// issued for, so a handle kept past the free never resolves to whatever value
// reuses the slot; DecRef on it reports an invalid_handle error.
//
// # Finalization
//
// Values implementing Dropper have Drop called when their slot is freed.
// Drop runs outside the heap lock and may itself insert or release slots.
//
// # Observers
//
// Register observers to track lifecycle events:
//
//	heap.Subscribe(observer)
//
// Events are EventCreated, EventRetained, EventReleased and EventFreed.
//
// # Concurrency
//
// Heap methods are safe for concurrent use. The heap does not know about the
// interpreter lock; the runtime only calls IncRef and DecRef while holding it.
package resource
