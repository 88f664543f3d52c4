package runtime

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/wippyai/hostbridge/errors"
)

func excType(err error) string {
	var exc *errors.HostException
	if stderrors.As(err, &exc) {
		return exc.Type
	}
	return ""
}

func TestBorrowed_Items(t *testing.T) {
	interp := newTestInterp(t, newTestRuntime(t))
	tok := interp.Attach(context.Background())
	defer tok.Release()

	d, err := tok.Eval(`{"a": 1, "b": [10, 20, 30]}`)
	if err != nil {
		t.Fatal(err)
	}
	a, err := d.GetItem("a")
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := Extract[int](a); n != 1 {
		t.Errorf("d[a] = %d", n)
	}
	if _, err := d.GetItem("zz"); excType(err) != errors.ExcKey {
		t.Errorf("missing key: %v", err)
	}

	if err := d.SetItem("c", []string{"x"}); err != nil {
		t.Fatal(err)
	}
	if n, err := d.Len(); err != nil || n != 3 {
		t.Errorf("Len = %d, %v", n, err)
	}

	list, _ := d.GetItem("b")
	last, err := list.GetItem(-1)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := Extract[int](last); n != 30 {
		t.Errorf("b[-1] = %d", n)
	}
	if _, err := list.GetItem(3); excType(err) != errors.ExcIndex {
		t.Errorf("out of range: %v", err)
	}
	if _, err := list.GetItem("x"); excType(err) != errors.ExcType {
		t.Errorf("string index: %v", err)
	}
	if err := list.SetItem(0, 11); err != nil {
		t.Fatal(err)
	}
	if err := list.SetItem(-4, 0); excType(err) != errors.ExcIndex {
		t.Errorf("set out of range: %v", err)
	}

	n, _ := tok.IntoHost(5)
	if _, err := n.Len(); excType(err) != errors.ExcType {
		t.Errorf("len(int): %v", err)
	}
	if err := n.SetItem(0, 1); excType(err) != errors.ExcType {
		t.Errorf("int item assignment: %v", err)
	}
}

func TestBorrowed_Frozen(t *testing.T) {
	interp := newTestInterp(t, newTestRuntime(t))
	tok := interp.Attach(context.Background())
	defer tok.Release()

	if err := tok.Exec("f.star", "xs = [1, 2]"); err != nil {
		t.Fatal(err)
	}
	xs, _ := tok.Global("xs")
	if err := xs.SetItem(0, 5); err == nil {
		t.Fatal("frozen list accepted assignment")
	}
}

func TestBorrowed_AttrsAndCalls(t *testing.T) {
	interp := newTestInterp(t, newTestRuntime(t))
	tok := interp.Attach(context.Background())
	defer tok.Release()

	src := "def combine(a, b=2, *, sep='-'):\n    return str(a) + sep + str(b)\n"
	if err := tok.Exec("calls.star", src); err != nil {
		t.Fatal(err)
	}
	fn, _ := tok.Global("combine")
	res, err := fn.CallKw([]any{1}, map[string]any{"sep": "+", "b": 9})
	if err != nil {
		t.Fatal(err)
	}
	if res.String() != "1+9" {
		t.Errorf("combine = %s", res.String())
	}
	if _, err := fn.Call(); excType(err) == "" {
		t.Errorf("missing argument: %v", err)
	}

	s, err := tok.Eval("struct(x=1, y='two')")
	if err != nil {
		t.Fatal(err)
	}
	if !s.HasAttr("x") || s.HasAttr("z") {
		t.Error("HasAttr wrong")
	}
	y, err := s.GetAttr("y")
	if err != nil || y.String() != "two" || y.Repr() != `"two"` {
		t.Errorf("s.y = %v, %v", y, err)
	}
	if _, err := s.GetAttr("z"); excType(err) != errors.ExcAttribute {
		t.Errorf("missing attr: %v", err)
	}
	if err := s.SetAttr("x", 2); excType(err) != errors.ExcAttribute {
		t.Errorf("struct assignment: %v", err)
	}

	list, _ := tok.Eval("[]")
	if _, err := list.CallMethod("append", "v"); err != nil {
		t.Fatal(err)
	}
	if n, _ := list.Len(); n != 1 {
		t.Errorf("len after append = %d", n)
	}
	if !list.Truth() {
		t.Error("non-empty list is falsy")
	}
	if eq, err := list.Equal([]string{"v"}); err != nil || !eq {
		t.Errorf("Equal = %v, %v", eq, err)
	}
	if list.TypeName() != "list" || list.IsNone() {
		t.Error("type accessors wrong")
	}
}

func TestBorrowed_IterSnapshot(t *testing.T) {
	interp := newTestInterp(t, newTestRuntime(t))
	tok := interp.Attach(context.Background())
	defer tok.Release()

	list, _ := tok.Eval("[1, 2, 3]")
	elems, err := list.Iter()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := list.CallMethod("clear"); err != nil {
		t.Fatal(err)
	}
	if len(elems) != 3 {
		t.Fatalf("snapshot = %d elements", len(elems))
	}
	if n, _ := Extract[int](elems[2]); n != 3 {
		t.Errorf("elems[2] = %d", n)
	}

	n, _ := tok.IntoHost(1)
	if _, err := n.Iter(); excType(err) != errors.ExcType {
		t.Errorf("iterate int: %v", err)
	}
}

func TestBorrowed_Value(t *testing.T) {
	ctx := context.Background()

	full := newTestInterp(t, newTestRuntime(t))
	tok := full.Attach(ctx)
	b, _ := tok.Eval("[1]")
	if v, err := b.Value(); err != nil || v.Type() != "list" {
		t.Errorf("Value = %v, %v", v, err)
	}
	tok.Release()

	limited := newTestInterp(t, newTestRuntime(t, limitedABI))
	tok = limited.Attach(ctx)
	defer tok.Release()
	b, _ = tok.Eval("[1]")
	if _, err := b.Value(); errors.KindOf(err) != errors.KindUnsupported {
		t.Errorf("Value under limited ABI: %v", err)
	}
	if xs, err := Extract[[]int](b); err != nil || len(xs) != 1 {
		t.Errorf("Extract under limited ABI = %v, %v", xs, err)
	}
}

func TestBorrowed_ZeroHandle(t *testing.T) {
	var b Borrowed
	mustPanic(t, errors.KindInvalidInput, func() { b.Len() })
}
