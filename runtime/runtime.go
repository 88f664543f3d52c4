package runtime

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/config"
	"github.com/wippyai/hostbridge/engine"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/gil"
	"github.com/wippyai/hostbridge/reclaim"
	"github.com/wippyai/hostbridge/transcoder"
)

// Runtime is the process-wide bridge context. It owns the deferred
// reclamation queue, the host function and type registries, and every
// sub-interpreter created from it. It is passed explicitly; nothing in the
// bridge is ambient global state.
type Runtime struct {
	cfg      *config.Target
	opts     options
	fileOpts *syntax.FileOptions
	queue    *reclaim.Queue
	hosts    *HostRegistry
	types    *TypeRegistry
	compiler *transcoder.Compiler
	interps  map[uint64]*Interpreter
	nextID   atomic.Uint64
	mu       sync.RWMutex
	closed   bool
}

// Option configures a Runtime.
type Option func(*options)

type options struct {
	print func(interp, thread, msg string)
}

// WithPrint routes the print builtin of every interpreter to fn.
func WithPrint(fn func(interp, thread, msg string)) Option {
	return func(o *options) { o.print = fn }
}

// New creates a runtime for target. A nil target uses config.Default().
// It fails with an unsupported error if the embedded interpreter is older
// than target.MinVersion.
func New(target *config.Target, opts ...Option) (*Runtime, error) {
	if target == nil {
		target = config.Default()
	}
	if err := target.Validate(); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "invalid target")
	}
	if _, err := gil.ParseMode(string(target.GILMode)); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "invalid gil mode")
	}
	if engine.HostVersion.Less(target.MinVersion) {
		return nil, errors.New(errors.PhaseConfig, errors.KindUnsupported).
			Detail("interpreter version %d.%d is below the required %d.%d",
				engine.HostVersion.Major, engine.HostVersion.Minor,
				target.MinVersion.Major, target.MinVersion.Minor).
			Build()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	r := &Runtime{
		cfg:      target,
		opts:     o,
		fileOpts: target.Dialect.FileOptions(),
		queue:    reclaim.New(),
		hosts:    NewHostRegistry(),
		types:    newTypeRegistry(),
		compiler: transcoder.NewCompiler(),
		interps:  make(map[uint64]*Interpreter),
	}

	Logger().Debug("runtime created",
		zap.String("abi", string(target.ABI)),
		zap.String("gil_mode", string(target.GILMode)))
	return r, nil
}

// Config returns the target the runtime was created for.
func (r *Runtime) Config() *config.Target {
	return r.cfg
}

// NewInterpreter creates a sub-interpreter with a fresh identity. Identities
// are never reused, so a handle can never resolve against a later
// interpreter.
func (r *Runtime) NewInterpreter(name string) (*Interpreter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.New(errors.PhaseAttach, errors.KindFinalized).
			Detail("runtime closed").
			Build()
	}

	id := r.nextID.Add(1)
	if name == "" {
		name = "interp-" + strconv.FormatUint(id, 10)
	}
	interp := newInterpreter(r, id, name)
	r.interps[id] = interp
	r.queue.Register(id)

	Logger().Debug("interpreter created", zap.Uint64("id", id), zap.String("name", name))
	return interp, nil
}

// Interpreter returns the live interpreter with the given identity.
func (r *Runtime) Interpreter(id uint64) (*Interpreter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.interps[id]
	return i, ok
}

// Interpreters returns the live interpreters ordered by identity.
func (r *Runtime) Interpreters() []*Interpreter {
	r.mu.RLock()
	out := make([]*Interpreter, 0, len(r.interps))
	for _, i := range r.interps {
		out = append(out, i)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Interpreter) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	return out
}

func (r *Runtime) forget(id uint64) {
	r.mu.Lock()
	delete(r.interps, id)
	r.mu.Unlock()
}

// QueueStats returns the counters of the deferred reclamation queue.
func (r *Runtime) QueueStats() reclaim.Stats {
	return r.queue.Stats()
}

// RegisterFunc exposes fn to scripts as module.name. See
// HostRegistry.RegisterFunc for the accepted signatures.
func (r *Runtime) RegisterFunc(module, name string, fn any) error {
	return r.hosts.RegisterFunc(module, name, fn)
}

// RegisterHost exposes the methods of h under h.Namespace().
func (r *Runtime) RegisterHost(h Host) error {
	return r.hosts.RegisterHost(h)
}

// RegisterType registers a Go type so its values cross into scripts as
// opaque objects carrying the method table of spec.
func (r *Runtime) RegisterType(spec TypeSpec) (*Registration, error) {
	return r.types.Register(spec)
}

// Hosts returns the host function registry.
func (r *Runtime) Hosts() *HostRegistry {
	return r.hosts
}

// Types returns the type registry.
func (r *Runtime) Types() *TypeRegistry {
	return r.types
}

// Close finalizes every interpreter. No token may be live on the calling
// goroutine.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	var firstErr error
	for _, i := range r.Interpreters() {
		if err := i.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// predeclared returns the names every script sees: the engine builtins,
// host modules, and constructors of registered types.
func (r *Runtime) predeclared() starlark.StringDict {
	env := engine.Predeclared()
	for name, mod := range r.hosts.modules() {
		env[name] = mod
	}
	for name, ctor := range r.types.constructors() {
		env[name] = ctor
	}
	return env
}
