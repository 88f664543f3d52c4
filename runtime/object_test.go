package runtime

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.starlark.net/starlark"

	"github.com/wippyai/hostbridge/errors"
)

type counter struct {
	n int
}

func counterSpec() TypeSpec {
	return TypeSpec{
		Name:   "Counter",
		GoType: reflect.TypeOf(&counter{}),
		Methods: map[string]Method{
			"inc": func(tok *Token, self any, args Args) (any, error) {
				c := self.(*counter)
				step := 1
				if args.Len() > 0 {
					if err := args.Decode(0, &step); err != nil {
						return nil, err
					}
				}
				c.n += step
				return c.n, nil
			},
			"value": func(tok *Token, self any, args Args) (any, error) {
				return self.(*counter).n, nil
			},
		},
		New: func(tok *Token, args Args) (any, error) {
			return &counter{}, nil
		},
	}
}

func TestType_RegisterAndUse(t *testing.T) {
	rt := newTestRuntime(t)
	reg, err := rt.RegisterType(counterSpec())
	if err != nil {
		t.Fatal(err)
	}
	if reg.ID == uuid.Nil || reg.Name != "Counter" {
		t.Fatalf("registration = %+v", reg)
	}
	if got, ok := rt.Types().Lookup("Counter"); !ok || got != reg {
		t.Fatal("Lookup failed")
	}

	interp := newTestInterp(t, rt)
	tok := interp.Attach(context.Background())
	defer tok.Release()

	if err := tok.Exec("c.star", "c = Counter()\nc.inc()\nn = c.inc(5)\nt = type(c)"); err != nil {
		t.Fatal(err)
	}
	n, _ := tok.Global("n")
	if v, _ := Extract[int](n); v != 6 {
		t.Errorf("n = %d, want 6", v)
	}
	typ, _ := tok.Global("t")
	if typ.String() != "Counter" {
		t.Errorf("type(c) = %s", typ.String())
	}

	c, _ := tok.Global("c")
	got, err := Extract[*counter](c)
	if err != nil {
		t.Fatal(err)
	}
	if got.n != 6 {
		t.Errorf("counter = %+v", got)
	}
	if !c.HasAttr("inc") || c.HasAttr("dec") {
		t.Error("attribute set wrong")
	}
	if generic, err := ToGo(c); err != nil || generic != any(got) {
		t.Errorf("ToGo = %v, %v", generic, err)
	}

	// A Go value of the registered type crosses as an object.
	b, err := tok.IntoHost(&counter{n: 41})
	if err != nil {
		t.Fatal(err)
	}
	res, err := b.CallMethod("inc")
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := Extract[int](res); v != 42 {
		t.Errorf("inc = %d", v)
	}

	if _, err := tok.Eval("{Counter(): 1}"); err == nil || !strings.Contains(err.Error(), "unhashable") {
		t.Errorf("hash: %v", err)
	}
}

func TestType_FromHostHook(t *testing.T) {
	type celsius float64
	rt := newTestRuntime(t)
	_, err := rt.RegisterType(TypeSpec{
		Name:   "Celsius",
		GoType: reflect.TypeOf(celsius(0)),
		ToHost: func(v any) (starlark.Value, error) {
			return starlark.Float(v.(celsius)), nil
		},
		FromHost: func(v starlark.Value) (any, error) {
			f, ok := starlark.AsFloat(v)
			if !ok {
				return nil, errors.TypeMismatch(errors.PhaseDecode, nil, "celsius", v.Type())
			}
			return celsius(f), nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	interp := newTestInterp(t, rt)
	tok := interp.Attach(context.Background())
	defer tok.Release()

	b, err := tok.IntoHost(celsius(21.5))
	if err != nil {
		t.Fatal(err)
	}
	if b.TypeName() != "float" {
		t.Fatalf("type = %s", b.TypeName())
	}
	got, err := Extract[celsius](b)
	if err != nil || got != 21.5 {
		t.Fatalf("Extract = %v, %v", got, err)
	}

	s, _ := tok.IntoHost("hot")
	if _, err := Extract[celsius](s); errors.KindOf(err) != errors.KindInvalidData {
		t.Errorf("bad FromHost input: %v", err)
	}
}

func TestType_RegistrationErrors(t *testing.T) {
	rt := newTestRuntime(t)
	if _, err := rt.RegisterType(counterSpec()); err != nil {
		t.Fatal(err)
	}

	dup := counterSpec()
	if _, err := rt.RegisterType(dup); errors.KindOf(err) != errors.KindRegistration {
		t.Errorf("duplicate Go type: %v", err)
	}

	renamed := counterSpec()
	renamed.GoType = reflect.TypeOf(counter{})
	if _, err := rt.RegisterType(renamed); errors.KindOf(err) != errors.KindRegistration {
		t.Errorf("duplicate name: %v", err)
	}

	shadow := TypeSpec{Name: "struct", GoType: reflect.TypeOf(0)}
	if _, err := rt.RegisterType(shadow); errors.KindOf(err) != errors.KindRegistration {
		t.Errorf("builtin shadow: %v", err)
	}

	if _, err := rt.RegisterType(TypeSpec{Name: "NoType"}); errors.KindOf(err) != errors.KindInvalidInput {
		t.Errorf("missing Go type: %v", err)
	}

	badMethod := TypeSpec{
		Name:    "Bad",
		GoType:  reflect.TypeOf(""),
		Methods: map[string]Method{"not-valid": nil},
	}
	if _, err := rt.RegisterType(badMethod); errors.KindOf(err) != errors.KindRegistration {
		t.Errorf("bad method name: %v", err)
	}
}
