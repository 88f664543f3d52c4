package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/wippyai/hostbridge/errors"
)

// End to end: a host function raising "boom" surfaces as a host exception
// with that message.
func TestBridge_FailBoom(t *testing.T) {
	interp := newTestInterp(t, newTestRuntime(t))
	tok := interp.Attach(context.Background())
	defer tok.Release()

	if err := tok.Exec("boom.star", "def explode():\n    fail(\"boom\")\n"); err != nil {
		t.Fatal(err)
	}
	fn, err := tok.Global("explode")
	if err != nil {
		t.Fatal(err)
	}
	_, err = fn.Call()
	if errors.KindOf(err) != errors.KindHostException {
		t.Fatalf("kind = %s (%v)", errors.KindOf(err), err)
	}
	var exc *errors.HostException
	if !stderrors.As(err, &exc) {
		t.Fatalf("%T is not a HostException", err)
	}
	if exc.Message != "boom" || exc.Type != errors.ExcFail {
		t.Errorf("exception = %s %q", exc.Type, exc.Message)
	}
	if exc.Traceback == "" {
		t.Error("traceback missing")
	}
	if tok.Pending() {
		t.Error("translated exception still pending")
	}
}

func TestBridge_Throw(t *testing.T) {
	interp := newTestInterp(t, newTestRuntime(t))
	tok := interp.Attach(context.Background())
	defer tok.Release()

	_, err := tok.Eval(`throw("ValueError", "bad input")`)
	var exc *errors.HostException
	if !stderrors.As(err, &exc) {
		t.Fatalf("err = %v", err)
	}
	if exc.Type != "ValueError" || exc.Message != "bad input" {
		t.Errorf("exception = %s %q", exc.Type, exc.Message)
	}
}

func TestBridge_FetchRestore(t *testing.T) {
	interp := newTestInterp(t, newTestRuntime(t))
	tok := interp.Attach(context.Background())
	defer tok.Release()

	if tok.Pending() || tok.Fetch() != nil {
		t.Fatal("fresh token has a pending exception")
	}

	base := stderrors.New("disk full")
	tok.Restore(fmt.Errorf("save: %w", base))
	if !tok.Pending() {
		t.Fatal("Restore did not set the pending exception")
	}
	tok.Restore(&errors.HostException{Type: "ValueError", Message: "second"})

	exc := tok.Fetch()
	if tok.Pending() {
		t.Fatal("Fetch did not clear the pending exception")
	}
	chain := exc.Chain()
	if len(chain) != 3 {
		t.Fatalf("chain = %v", chain)
	}
	if chain[0].Type != "ValueError" || chain[1].Message != "save" || chain[2].Message != "disk full" {
		t.Errorf("chain = %v / %v / %v", chain[0], chain[1], chain[2])
	}
	if !stderrors.Is(exc, base) {
		t.Error("original error lost from the chain")
	}
	if exc.Interpreter != interp.ID() {
		t.Errorf("interpreter = %d", exc.Interpreter)
	}

	tok.Restore(nil)
	if tok.Pending() {
		t.Error("Restore(nil) set an exception")
	}
}

func TestBridge_PendingBlocksHostWork(t *testing.T) {
	interp := newTestInterp(t, newTestRuntime(t))
	tok := interp.Attach(context.Background())
	defer tok.Release()

	tok.Restore(stderrors.New("pending"))
	mustPanic(t, errors.KindPendingException, func() { tok.Eval("1") })
	mustPanic(t, errors.KindPendingException, func() { tok.Exec("x.star", "x = 1") })

	tok.Fetch()
	if _, err := tok.Eval("1"); err != nil {
		t.Fatal(err)
	}
}

func TestBridge_Translate(t *testing.T) {
	interp := newTestInterp(t, newTestRuntime(t))
	tok := interp.Attach(context.Background())
	defer tok.Release()

	if tok.Translate(nil) != nil {
		t.Error("Translate(nil) != nil")
	}

	conv := errors.Overflow(errors.PhaseDecode, []string{"x"}, 300, "u8")
	if got := tok.Translate(conv); got != error(conv) {
		t.Errorf("conversion error changed: %v", got)
	}

	got := tok.Translate(stderrors.New("key \"a\" not in dict"))
	var exc *errors.HostException
	if !stderrors.As(got, &exc) {
		t.Fatalf("Translate = %T", got)
	}
	if exc.Interpreter != interp.ID() {
		t.Errorf("interpreter = %d", exc.Interpreter)
	}
}

func TestBridge_PendingAtReleaseIsFatal(t *testing.T) {
	interp := newTestInterp(t, newTestRuntime(t))
	tok := interp.Attach(context.Background())
	tok.Restore(stderrors.New("forgotten"))
	mustPanic(t, errors.KindPendingException, tok.Release)

	if tok.Live() || interp.LockHeld() {
		t.Fatal("token not detached before the panic")
	}
	tok = interp.Attach(context.Background())
	defer tok.Release()
	if tok.Pending() {
		t.Fatal("pending exception leaked into the next attachment")
	}
}

func TestBridge_DoSuccessWithPendingIsFatal(t *testing.T) {
	interp := newTestInterp(t, newTestRuntime(t))
	mustPanic(t, errors.KindPendingException, func() {
		_ = interp.Do(context.Background(), func(tok *Token) error {
			tok.Restore(stderrors.New("lost"))
			return nil
		})
	})
	if interp.LockHeld() {
		t.Fatal("lock still held after the panic")
	}
}

func TestBridge_DoSettlesPending(t *testing.T) {
	interp := newTestInterp(t, newTestRuntime(t))
	ctx := context.Background()

	err := interp.Do(ctx, func(tok *Token) error {
		tok.Restore(&errors.HostException{Type: "ValueError", Message: "raised"})
		return ErrPending
	})
	var exc *errors.HostException
	if !stderrors.As(err, &exc) || exc.Type != "ValueError" || exc.Message != "raised" {
		t.Fatalf("ErrPending: %v", err)
	}

	err = interp.Do(ctx, func(tok *Token) error {
		tok.Restore(&errors.HostException{Type: "ValueError", Message: "inner"})
		return fmt.Errorf("outer")
	})
	if !stderrors.As(err, &exc) || exc.Message != "outer" || exc.Cause == nil || exc.Cause.Message != "inner" {
		t.Fatalf("chained: %v", err)
	}

	err = interp.Do(ctx, func(tok *Token) error { return ErrPending })
	if !stderrors.As(err, &exc) || exc.Type != errors.ExcRuntime {
		t.Fatalf("empty ErrPending: %v", err)
	}

	plain := stderrors.New("plain")
	if err := interp.Do(ctx, func(tok *Token) error { return plain }); err != plain {
		t.Fatalf("plain error changed: %v", err)
	}
}
