package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/wippyai/hostbridge/config"
	"github.com/wippyai/hostbridge/errors"
)

func TestAttach_LockHeldWhileOwningTokenLive(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate []func(*config.Target)
	}{
		{"standard", nil},
		{"disabled", []func(*config.Target){disabledGIL}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			interp := newTestInterp(t, newTestRuntime(t, tc.mutate...))

			for round := 0; round < 3; round++ {
				if interp.LockHeld() {
					t.Fatalf("round %d: lock held before attach", round)
				}
				tok := interp.Attach(ctx)
				if !tok.Owning() || tok.Depth() != 0 {
					t.Fatalf("first token: owning=%v depth=%d", tok.Owning(), tok.Depth())
				}
				nested := interp.Attach(tok.Context())
				if nested.Owning() || nested.Depth() != 1 {
					t.Fatalf("nested token: owning=%v depth=%d", nested.Owning(), nested.Depth())
				}
				inner := interp.Attach(nested.Context())
				if inner.Depth() != 2 {
					t.Fatalf("inner depth = %d", inner.Depth())
				}

				inner.Release()
				nested.Release()
				if !interp.LockHeld() {
					t.Fatal("lock released by a non-owning token")
				}
				tok.Release()
				if interp.LockHeld() {
					t.Fatal("lock still held after owning release")
				}
			}
			if s := interp.Stats(); s.Attaches != 3 || s.Nested != 6 {
				t.Errorf("attaches=%d nested=%d, want 3 and 6", s.Attaches, s.Nested)
			}
		})
	}
}

func TestAttach_BlocksUntilRelease(t *testing.T) {
	ctx := context.Background()
	interp := newTestInterp(t, newTestRuntime(t))

	tok := interp.Attach(ctx)
	acquired := make(chan struct{})
	go func() {
		other := interp.Attach(ctx)
		close(acquired)
		other.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("second attach did not wait for the lock")
	case <-time.After(50 * time.Millisecond):
	}
	tok.Release()
	<-acquired
}

func TestAttach_ReleasedContextIsNotReentrant(t *testing.T) {
	ctx := context.Background()
	interp := newTestInterp(t, newTestRuntime(t))

	tok := interp.Attach(ctx)
	stale := tok.Context()
	tok.Release()

	again := interp.Attach(stale)
	defer again.Release()
	if !again.Owning() {
		t.Fatal("context of a released token must not yield a nested token")
	}
}

func TestRelease_OutOfOrderPanics(t *testing.T) {
	ctx := context.Background()
	interp := newTestInterp(t, newTestRuntime(t))

	tok := interp.Attach(ctx)
	nested := interp.Attach(tok.Context())

	mustPanic(t, errors.KindInvalidInput, tok.Release)
	if !tok.Live() {
		t.Fatal("failed release must leave the token live")
	}

	nested.Release()
	tok.Release()
	if interp.LockHeld() {
		t.Fatal("lock leaked")
	}
}

func TestRelease_Twice(t *testing.T) {
	interp := newTestInterp(t, newTestRuntime(t))
	tok := interp.Attach(context.Background())
	tok.Release()
	tok.Release()
	if interp.LockHeld() {
		t.Fatal("lock held after double release")
	}
}

func TestToken_UseAfterRelease(t *testing.T) {
	interp := newTestInterp(t, newTestRuntime(t))
	tok := interp.Attach(context.Background())
	b, err := tok.Eval("[1]")
	if err != nil {
		t.Fatal(err)
	}
	tok.Release()

	mustPanic(t, errors.KindInvalidInput, func() { b.Len() })
	mustPanic(t, errors.KindInvalidInput, func() { tok.Eval("1") })
	mustPanic(t, errors.KindInvalidInput, func() { b.ToOwned() })
}

func TestToken_ReleaseDropsTemporaries(t *testing.T) {
	ctx := context.Background()
	interp := newTestInterp(t, newTestRuntime(t))

	tok := interp.Attach(ctx)
	if _, err := tok.Eval("[1, 2, 3]"); err != nil {
		t.Fatal(err)
	}
	nested := interp.Attach(tok.Context())
	if _, err := nested.Eval("{'a': 1}"); err != nil {
		t.Fatal(err)
	}
	if live := interp.Stats().Live; live != 2 {
		t.Fatalf("live = %d, want 2", live)
	}
	nested.Release()
	if live := interp.Stats().Live; live != 1 {
		t.Fatalf("live after nested release = %d, want 1", live)
	}
	tok.Release()
	if live := interp.Stats().Live; live != 0 {
		t.Fatalf("live after release = %d, want 0", live)
	}
}

func TestToken_ExecGlobals(t *testing.T) {
	interp := newTestInterp(t, newTestRuntime(t))
	tok := interp.Attach(context.Background())
	defer tok.Release()

	if err := tok.Exec("a.star", "x = 1\ndef double(v):\n    return v * 2\n"); err != nil {
		t.Fatal(err)
	}
	if err := tok.Exec("b.star", "y = double(x) + 1"); err != nil {
		t.Fatal(err)
	}
	y, err := tok.Global("y")
	if err != nil {
		t.Fatal(err)
	}
	if n, err := Extract[int](y); err != nil || n != 3 {
		t.Fatalf("y = %d, %v", n, err)
	}

	if err := tok.SetGlobal("name", "world"); err != nil {
		t.Fatal(err)
	}
	greeting, err := tok.Eval(`"hello " + name`)
	if err != nil {
		t.Fatal(err)
	}
	if greeting.String() != "hello world" {
		t.Errorf("greeting = %q", greeting.String())
	}

	if _, err := tok.Global("missing"); errors.KindOf(err) != errors.KindNotFound {
		t.Errorf("missing global: %v", err)
	}
	if err := tok.SetGlobal("not valid", 1); errors.KindOf(err) != errors.KindInvalidInput {
		t.Errorf("invalid name: %v", err)
	}
	if got := interp.Globals(); len(got) != 4 {
		t.Errorf("Globals = %v", got)
	}
}

func TestToken_ExecErrors(t *testing.T) {
	interp := newTestInterp(t, newTestRuntime(t))
	tok := interp.Attach(context.Background())
	defer tok.Release()

	err := tok.Exec("bad.star", "x = (")
	var exc *errors.HostException
	if !errorsAs(err, &exc) || exc.Type != "SyntaxError" {
		t.Fatalf("syntax error = %v", err)
	}

	_, err = tok.Eval("1 // 0")
	if !errorsAs(err, &exc) || exc.Type != "ZeroDivisionError" {
		t.Fatalf("division error = %v", err)
	}
	if exc.Interpreter != interp.ID() {
		t.Errorf("exception interpreter = %d, want %d", exc.Interpreter, interp.ID())
	}
}

func TestToken_IntoHostAndNone(t *testing.T) {
	interp := newTestInterp(t, newTestRuntime(t))
	tok := interp.Attach(context.Background())
	defer tok.Release()

	b, err := tok.IntoHost(map[string][]int{"a": {1, 2}})
	if err != nil {
		t.Fatal(err)
	}
	if b.TypeName() != "dict" {
		t.Fatalf("type = %s", b.TypeName())
	}
	back, err := Extract[map[string][]int](b)
	if err != nil || len(back["a"]) != 2 {
		t.Fatalf("round trip = %v, %v", back, err)
	}

	if !tok.None().IsNone() {
		t.Error("None is not None")
	}
	if _, err := tok.IntoHost(make(chan int)); errors.KindOf(err) != errors.KindUnsupported {
		t.Errorf("chan conversion: %v", err)
	}
}
