package engine

import (
	"sync"

	"go.starlark.net/starlark"
	"go.uber.org/zap"
)

// ThreadPool manages a pool of Starlark threads. Each attachment takes a
// thread for its lifetime; threads are never shared between goroutines.
type ThreadPool struct {
	mu      sync.Mutex
	threads []*starlark.Thread
	print   func(thread *starlark.Thread, msg string)
	maxSize int
}

// NewThreadPool creates a new thread pool with the specified maximum size.
func NewThreadPool(maxSize int) *ThreadPool {
	if maxSize <= 0 {
		maxSize = 10 // default pool size
	}
	return &ThreadPool{
		threads: make([]*starlark.Thread, 0, maxSize),
		maxSize: maxSize,
		print:   logPrint,
	}
}

// SetPrint replaces the handler for the print builtin.
func (p *ThreadPool) SetPrint(fn func(thread *starlark.Thread, msg string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.print = fn
}

// Get retrieves a thread from the pool or creates a new one.
// The thread name is used for error reporting.
func (p *ThreadPool) Get(name string) *starlark.Thread {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.threads) > 0 {
		thread := p.threads[len(p.threads)-1]
		p.threads = p.threads[:len(p.threads)-1]
		thread.Name = name
		thread.Print = p.print
		return thread
	}

	return &starlark.Thread{
		Name:  name,
		Print: p.print,
	}
}

// Put returns a thread to the pool for reuse.
// If the pool is full, the thread is discarded.
func (p *ThreadPool) Put(thread *starlark.Thread) {
	// Clear any state that might leak between uses
	thread.Name = ""
	for _, key := range resetLocals {
		thread.SetLocal(key, nil)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.threads) < p.maxSize {
		p.threads = append(p.threads, thread)
	}
}

// Size returns the current number of threads in the pool.
func (p *ThreadPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.threads)
}

// resetLocals lists thread-local keys cleared when a thread is recycled.
var resetLocals []string

// RegisterLocal declares a thread-local key owned by a caller of the pool so
// recycled threads never carry it over. Call from package init.
func RegisterLocal(key string) {
	resetLocals = append(resetLocals, key)
}

func logPrint(thread *starlark.Thread, msg string) {
	Logger().Info(msg, zap.String("thread", thread.Name))
}
