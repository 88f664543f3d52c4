package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.starlark.net/starlark"

	"github.com/wippyai/hostbridge/errors"
)

// kvHost implements a small key-value module for scripts.
type kvHost struct {
	data map[string]string
	mu   sync.Mutex
}

func (h *kvHost) Namespace() string { return "kv" }

func (h *kvHost) Set(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.data[key] = value
}

func (h *kvHost) Get(key string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.data[key]
	if !ok {
		return "", errors.NotFound(errors.PhaseCall, "key", key)
	}
	return v, nil
}

func (h *kvHost) KeyCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.data)
}

func execIn(t *testing.T, interp *Interpreter, src string) error {
	t.Helper()
	return interp.Do(context.Background(), func(tok *Token) error {
		return tok.Exec("test.star", src)
	})
}

func TestHost_RegisterFuncTyped(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.RegisterFunc("math", "add", func(a, b int) (int, error) { return a + b, nil }); err != nil {
		t.Fatal(err)
	}
	if err := rt.RegisterFunc("math", "Scale", func(xs []float64, f float64) []float64 {
		out := make([]float64, len(xs))
		for i, x := range xs {
			out[i] = x * f
		}
		return out
	}); err != nil {
		t.Fatal(err)
	}
	interp := newTestInterp(t, rt)

	tok := interp.Attach(context.Background())
	defer tok.Release()
	if err := tok.Exec("m.star", "r = math.add(2, 3)\ns = math.scale([1.0, 2.5], 2.0)"); err != nil {
		t.Fatal(err)
	}
	r, _ := tok.Global("r")
	if n, err := Extract[int](r); err != nil || n != 5 {
		t.Fatalf("r = %d, %v", n, err)
	}
	s, _ := tok.Global("s")
	if xs, err := Extract[[]float64](s); err != nil || len(xs) != 2 || xs[1] != 5 {
		t.Fatalf("s = %v, %v", xs, err)
	}

	_, err := tok.Eval(`math.add("a", 1)`)
	var exc *errors.HostException
	if !stderrors.As(err, &exc) || exc.Type != errors.ExcType {
		t.Fatalf("bad argument: %v", err)
	}
	if _, err := tok.Eval("math.add(1)"); err == nil {
		t.Fatal("arity mismatch accepted")
	}
	if _, err := tok.Eval("math.add(1, b=2)"); err == nil {
		t.Fatal("keyword arguments accepted")
	}

	if got := rt.Hosts().Names(); strings.Join(got, ",") != "math.add,math.scale" {
		t.Errorf("Names = %v", got)
	}
}

func TestHost_RegisterHost(t *testing.T) {
	rt := newTestRuntime(t)
	host := &kvHost{data: map[string]string{}}
	if err := rt.RegisterHost(host); err != nil {
		t.Fatal(err)
	}
	interp := newTestInterp(t, rt)

	if err := execIn(t, interp, `kv.set("a", "b")`+"\n"+`v = kv.get("a")`+"\nn = kv.key_count()"); err != nil {
		t.Fatal(err)
	}
	if host.data["a"] != "b" {
		t.Errorf("data = %v", host.data)
	}

	err := execIn(t, interp, `kv.get("missing")`)
	var exc *errors.HostException
	if !stderrors.As(err, &exc) {
		t.Fatalf("err = %v", err)
	}
	if exc.Type != errors.ExcKey {
		t.Errorf("type = %s, want KeyError", exc.Type)
	}
	if errors.KindOf(exc.Origin) != errors.KindNotFound {
		t.Errorf("origin = %v", exc.Origin)
	}
}

func TestHost_CallbackToken(t *testing.T) {
	rt := newTestRuntime(t)
	var depths []int
	err := rt.RegisterFunc("probe", "depth", func(tok *Token, args Args) (any, error) {
		if tok.Owning() {
			return nil, fmt.Errorf("callback token is owning")
		}
		if !tok.Interpreter().LockHeld() {
			return nil, fmt.Errorf("lock not held in callback")
		}
		depths = append(depths, tok.Depth())

		nested := tok.Interpreter().Attach(tok.Context())
		defer nested.Release()
		depths = append(depths, nested.Depth())

		if args.Len() > 0 {
			fn := args.At(0)
			return fn.Call(args.Len())
		}
		return tok.Depth(), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	interp := newTestInterp(t, rt)

	tok := interp.Attach(context.Background())
	defer tok.Release()
	res, err := tok.Eval("probe.depth(lambda n: probe.depth() + n)")
	if err != nil {
		t.Fatal(err)
	}
	// The outer callback calls back into the script, which re-enters the
	// host: the inner callback runs one nesting level deeper.
	if n, _ := Extract[int](res); n != 4 {
		t.Errorf("result = %d, want 4", n)
	}
	want := []int{1, 2, 3, 4}
	if fmt.Sprint(depths) != fmt.Sprint(want) {
		t.Errorf("depths = %v, want %v", depths, want)
	}
}

func TestHost_ErrPending(t *testing.T) {
	rt := newTestRuntime(t)
	rt.RegisterFunc("ex", "raise", func(tok *Token, args Args) (any, error) {
		tok.Restore(&errors.HostException{Type: "ValueError", Message: "nope"})
		return nil, ErrPending
	})
	rt.RegisterFunc("ex", "wrapped", func(tok *Token, args Args) (any, error) {
		tok.Restore(&errors.HostException{Type: "ValueError", Message: "inner"})
		return nil, fmt.Errorf("outer")
	})
	rt.RegisterFunc("ex", "empty", func(tok *Token, args Args) (any, error) {
		return nil, ErrPending
	})
	interp := newTestInterp(t, rt)
	tok := interp.Attach(context.Background())
	defer tok.Release()

	var exc *errors.HostException
	_, err := tok.Eval("ex.raise()")
	if !stderrors.As(err, &exc) || exc.Type != "ValueError" || exc.Message != "nope" {
		t.Fatalf("raise: %v", err)
	}
	if tok.Pending() {
		t.Fatal("raised exception still pending")
	}

	_, err = tok.Eval("ex.wrapped()")
	if !stderrors.As(err, &exc) {
		t.Fatalf("wrapped: %v", err)
	}
	if exc.Message != "outer" || exc.Cause == nil || exc.Cause.Message != "inner" {
		t.Errorf("wrapped chain = %v", exc.Chain())
	}

	_, err = tok.Eval("ex.empty()")
	if !stderrors.As(err, &exc) || exc.Type != errors.ExcRuntime {
		t.Errorf("empty: %v", err)
	}
}

func TestHost_SuccessWithPendingPanics(t *testing.T) {
	rt := newTestRuntime(t)
	rt.RegisterFunc("ex", "sloppy", func(tok *Token, args Args) (any, error) {
		tok.Restore(stderrors.New("forgotten"))
		return 1, nil
	})
	interp := newTestInterp(t, rt)
	tok := interp.Attach(context.Background())
	defer tok.Release()

	mustPanic(t, errors.KindPendingException, func() { tok.Eval("ex.sloppy()") })
	if tok.Pending() {
		t.Fatal("dropped exception still pending")
	}
}

func TestHost_RegistrationErrors(t *testing.T) {
	rt := newTestRuntime(t)
	tests := []struct {
		name   string
		module string
		fn     string
		impl   any
		kind   errors.Kind
	}{
		{"empty module", "", "f", func() {}, errors.KindInvalidInput},
		{"bad module", "a-b", "f", func() {}, errors.KindInvalidInput},
		{"bad name", "m", "1f", func() {}, errors.KindInvalidInput},
		{"not a func", "m", "f", 42, errors.KindRegistration},
		{"variadic", "m", "f", func(xs ...int) {}, errors.KindRegistration},
		{"bad second result", "m", "f", func() (int, int) { return 0, 0 }, errors.KindRegistration},
		{"three results", "m", "f", func() (int, int, error) { return 0, 0, nil }, errors.KindRegistration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rt.RegisterFunc(tt.module, tt.fn, tt.impl)
			if errors.KindOf(err) != tt.kind {
				t.Errorf("kind = %q, want %q (%v)", errors.KindOf(err), tt.kind, err)
			}
		})
	}
}

func TestHost_CalledOutsideAttachment(t *testing.T) {
	rt := newTestRuntime(t)
	rt.RegisterFunc("m", "f", func() int { return 1 })
	mod := rt.hosts.modules()["m"]
	f, _ := mod.Attr("f")

	_, err := starlark.Call(&starlark.Thread{Name: "bare"}, f, nil, nil)
	if err == nil || !strings.Contains(err.Error(), "outside an attachment") {
		t.Errorf("err = %v", err)
	}
}
