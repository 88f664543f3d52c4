package runtime

import (
	"context"
	"maps"
	"sync/atomic"

	"go.bytecodealliance.org/wit"
	"go.starlark.net/starlark"

	"github.com/wippyai/hostbridge/engine"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/resource"
	"github.com/wippyai/hostbridge/transcoder"
)

// tokenKey is the context key under which Token.Context stores a token, one
// key per interpreter.
type tokenKey struct {
	interp uint64
}

// tokenFrom returns the live token ctx carries for interpreter id.
func tokenFrom(ctx context.Context, id uint64) *Token {
	if ctx == nil {
		return nil
	}
	t, _ := ctx.Value(tokenKey{interp: id}).(*Token)
	if t == nil || t.released.Load() {
		return nil
	}
	return t
}

// attachment is the state shared by an owning token and the nested tokens
// stacked on it: the Starlark thread, the token stack and the pending host
// exception slot.
type attachment struct {
	interp  *Interpreter
	thread  *starlark.Thread
	pending *errors.HostException
	enc     *transcoder.Encoder
	dec     *transcoder.Decoder
	stack   []*Token
}

func (a *attachment) push(ctx context.Context, owning bool) *Token {
	t := &Token{att: a, ctx: ctx, owning: owning, depth: len(a.stack)}
	a.stack = append(a.stack, t)
	return t
}

func (a *attachment) top() *Token {
	if len(a.stack) == 0 {
		return nil
	}
	return a.stack[len(a.stack)-1]
}

func (a *attachment) encoder() *transcoder.Encoder {
	if a.enc == nil {
		a.enc = transcoder.NewEncoder(a.codecOptions()...)
	}
	return a.enc
}

func (a *attachment) decoder() *transcoder.Decoder {
	if a.dec == nil {
		a.dec = transcoder.NewDecoder(a.codecOptions()...)
	}
	return a.dec
}

func (a *attachment) codecOptions() []transcoder.Option {
	rt := a.interp.rt
	return []transcoder.Option{
		transcoder.WithResolver(resolver{att: a}),
		transcoder.WithCompiler(rt.compiler),
		transcoder.WithLimitedABI(rt.cfg.Limited()),
	}
}

// Token proves that its holder may touch the objects of one interpreter.
// An owning token holds the interpreter lock; nested tokens, created by
// re-entrant Attach calls and inside callbacks, ride on it. Tokens are
// released in LIFO order and must stay on the goroutine that attached.
//
// Values a token hands out as Borrowed handles are kept alive until the
// token is released.
type Token struct {
	att      *attachment
	ctx      context.Context
	temps    []resource.Handle
	depth    int
	owning   bool
	released atomic.Bool
}

// Release ends the token's scope. Releasing a nested token pops it; releasing
// the owning token drains the reclamation queue, drops the token's
// temporaries, drains again and unlocks. Release panics if a token stacked
// above this one is still live. Releasing twice is a no-op. Releasing the
// owning token with a host exception still pending detaches first and then
// panics with a pending-exception error.
func (t *Token) Release() {
	if t.released.Load() {
		return
	}
	att := t.att
	n := len(att.stack)
	if n == 0 || att.stack[n-1] != t {
		panic(errors.TokenMisuse("token released out of order"))
	}
	i := att.interp

	if !t.owning {
		t.releaseTemps()
		att.stack = att.stack[:n-1]
		t.released.Store(true)
		return
	}

	pending := att.pending
	att.pending = nil
	i.drain()
	t.releaseTemps()
	i.drain()
	att.stack = att.stack[:0]
	t.released.Store(true)
	i.detach(att)
	if pending != nil {
		panic(errors.PendingExceptionDropped("release", pending))
	}
}

func (t *Token) releaseTemps() {
	i := t.att.interp
	for _, h := range t.temps {
		i.decref(h)
	}
	t.temps = nil
}

// check panics if the token can no longer be used.
func (t *Token) check() {
	if t == nil {
		panic(errors.TokenMisuse("nil token"))
	}
	if t.released.Load() {
		panic(errors.TokenMisuse("token used after release"))
	}
}

// guard refuses to start host work while an exception is pending, which
// would otherwise be overwritten.
func (t *Token) guard(op string) {
	if p := t.att.pending; p != nil {
		panic(errors.PendingExceptionDropped(op, p))
	}
}

// Context returns ctx extended with the token. Attach recognises it and
// returns a nested token instead of blocking.
func (t *Token) Context() context.Context {
	return context.WithValue(t.ctx, tokenKey{interp: t.att.interp.id}, t)
}

// Interpreter returns the interpreter the token is attached to.
func (t *Token) Interpreter() *Interpreter { return t.att.interp }

// Owning reports whether the token holds the lock itself.
func (t *Token) Owning() bool { return t.owning }

// Depth is 0 for the owning token and grows by one per nesting level.
func (t *Token) Depth() int { return t.depth }

// Live reports whether the token has not been released.
func (t *Token) Live() bool { return !t.released.Load() }

// borrow adopts v into the heap for the token's lifetime.
func (t *Token) borrow(v starlark.Value) Borrowed {
	i := t.att.interp
	h := i.adopt(v)
	t.temps = append(t.temps, h)
	return Borrowed{tok: t, h: h, interp: i.id}
}

// fail converts an interpreter error into a host exception.
func (t *Token) fail(err error) error {
	if exc := engine.Exception(err, t.att.interp.id); exc != nil {
		return exc
	}
	return nil
}

// failValue converts an error returned by a value operation.
func (t *Token) failValue(err error) error {
	if exc := engine.ValueException(err, t.att.interp.id); exc != nil {
		return exc
	}
	return nil
}

// Exec runs a script in the interpreter. Globals it defines are added to the
// interpreter's globals and frozen.
func (t *Token) Exec(filename string, src any) error {
	t.check()
	t.guard("exec")
	i := t.att.interp

	globals, err := starlark.ExecFileOptions(i.rt.fileOpts, t.att.thread, filename, src, i.env())
	if err != nil {
		return t.fail(err)
	}
	i.globalsMu.Lock()
	maps.Copy(i.globals, globals)
	i.globalsMu.Unlock()
	return nil
}

// Eval evaluates an expression against the interpreter's globals.
func (t *Token) Eval(expr string) (Borrowed, error) {
	t.check()
	t.guard("eval")
	i := t.att.interp

	v, err := starlark.EvalOptions(i.rt.fileOpts, t.att.thread, "<eval>", expr, i.env())
	if err != nil {
		return Borrowed{}, t.fail(err)
	}
	return t.borrow(v), nil
}

// Global returns the named global.
func (t *Token) Global(name string) (Borrowed, error) {
	t.check()
	i := t.att.interp

	i.globalsMu.RLock()
	v, ok := i.globals[name]
	i.globalsMu.RUnlock()
	if !ok {
		return Borrowed{}, errors.NotFound(errors.PhaseCall, "global", name)
	}
	return t.borrow(v), nil
}

// SetGlobal converts v and binds it as a global.
func (t *Token) SetGlobal(name string, v any) error {
	t.check()
	if !engine.ValidIdent(name) {
		return errors.InvalidInput(errors.PhaseCall, "invalid global name "+name)
	}
	hv, err := t.toHost(v)
	if err != nil {
		return err
	}
	i := t.att.interp
	i.globalsMu.Lock()
	i.globals[name] = hv
	i.globalsMu.Unlock()
	return nil
}

// None returns the None value.
func (t *Token) None() Borrowed {
	t.check()
	return t.borrow(starlark.None)
}

// IntoHost converts a Go value into a host object. Conversion only fails for
// Go kinds with no host form.
func (t *Token) IntoHost(v any) (Borrowed, error) {
	t.check()
	hv, err := t.toHost(v)
	if err != nil {
		return Borrowed{}, err
	}
	return t.borrow(hv), nil
}

// Lower converts v into the host form of schema type typ.
func (t *Token) Lower(typ wit.Type, v any) (Borrowed, error) {
	t.check()
	hv, err := t.att.encoder().Lower(typ, v)
	if err != nil {
		return Borrowed{}, err
	}
	return t.borrow(hv), nil
}

func (t *Token) toHost(v any) (starlark.Value, error) {
	return t.att.encoder().Encode(v)
}

// valueOf resolves a handle passed to an operation of t, enforcing the
// identity guard.
func (t *Token) valueOf(b Borrowed) starlark.Value {
	if b.tok == nil {
		panic(errors.TokenMisuse("zero Borrowed handle"))
	}
	if b.interp != t.att.interp.id {
		panic(errors.CrossInterpreterViolation(b.interp, t.att.interp.id))
	}
	if b.tok.released.Load() {
		panic(errors.TokenMisuse("borrowed handle used after its token was released"))
	}
	return t.att.interp.value(b.h)
}
