// Package gil provides the interpreter lock that attachment tokens hold.
//
// Two modes exist. In ModeStandard one mutex serializes every attachment,
// like a classic global interpreter lock. In ModeDisabled attachments share a
// reader-writer world lock and run in parallel; object safety then rests on
// the object heap's own lock, and only finalization takes the world lock
// exclusively. The contract seen by callers is the same in both modes: between
// Acquire and Release it is safe to touch the interpreter's objects.
package gil

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Mode selects the locking discipline.
type Mode string

const (
	ModeStandard Mode = "standard"
	ModeDisabled Mode = "disabled"
)

// ParseMode converts a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStandard, "":
		return ModeStandard, nil
	case ModeDisabled:
		return ModeDisabled, nil
	}
	return "", fmt.Errorf("gil: unknown mode %q", s)
}

// Lock is the interpreter lock.
type Lock interface {
	// Acquire blocks until the caller may touch interpreter objects.
	Acquire()
	// Release ends an Acquire.
	Release()
	// AcquireExclusive blocks until no other holder remains. Used for
	// interpreter finalization.
	AcquireExclusive()
	// ReleaseExclusive ends an AcquireExclusive.
	ReleaseExclusive()
	// LockDrain serializes reclamation drains among concurrent holders.
	LockDrain()
	UnlockDrain()
	// Held reports whether any holder is inside the lock.
	Held() bool
	// Holders returns the number of current holders.
	Holders() int
	Mode() Mode
}

// New creates a lock for mode.
func New(mode Mode) Lock {
	if mode == ModeDisabled {
		return &worldLock{}
	}
	return &mutexLock{}
}

// mutexLock is the standard single-holder lock. Drain serialization is
// implied by the mutex.
type mutexLock struct {
	mu      sync.Mutex
	holders atomic.Int32
}

func (l *mutexLock) Acquire() {
	l.mu.Lock()
	l.holders.Add(1)
}

func (l *mutexLock) Release() {
	if l.holders.Add(-1) < 0 {
		panic("gil: release of unheld lock")
	}
	l.mu.Unlock()
}

func (l *mutexLock) AcquireExclusive() { l.Acquire() }
func (l *mutexLock) ReleaseExclusive() { l.Release() }
func (l *mutexLock) LockDrain()        {}
func (l *mutexLock) UnlockDrain()      {}
func (l *mutexLock) Held() bool        { return l.holders.Load() > 0 }
func (l *mutexLock) Holders() int      { return int(l.holders.Load()) }
func (l *mutexLock) Mode() Mode        { return ModeStandard }

// worldLock lets attachments proceed in parallel under the shared side of a
// reader-writer lock.
type worldLock struct {
	world   sync.RWMutex
	drain   sync.Mutex
	holders atomic.Int32
}

func (l *worldLock) Acquire() {
	l.world.RLock()
	l.holders.Add(1)
}

func (l *worldLock) Release() {
	if l.holders.Add(-1) < 0 {
		panic("gil: release of unheld lock")
	}
	l.world.RUnlock()
}

func (l *worldLock) AcquireExclusive() {
	l.world.Lock()
	l.holders.Add(1)
}

func (l *worldLock) ReleaseExclusive() {
	if l.holders.Add(-1) < 0 {
		panic("gil: release of unheld lock")
	}
	l.world.Unlock()
}

func (l *worldLock) LockDrain()   { l.drain.Lock() }
func (l *worldLock) UnlockDrain() { l.drain.Unlock() }
func (l *worldLock) Held() bool   { return l.holders.Load() > 0 }
func (l *worldLock) Holders() int { return int(l.holders.Load()) }
func (l *worldLock) Mode() Mode   { return ModeDisabled }
