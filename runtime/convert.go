package runtime

import (
	"reflect"

	"go.bytecodealliance.org/wit"
	"go.starlark.net/starlark"

	"github.com/wippyai/hostbridge/errors"
)

var (
	borrowedType = reflect.TypeOf(Borrowed{})
	ownedType    = reflect.TypeOf((*Owned)(nil))
)

// Extract converts the object b refers to into a Go value of type T.
// Failures are typed conversion errors naming the path and the mismatch.
func Extract[T any](b Borrowed) (T, error) {
	var out T
	err := ExtractInto(b, &out)
	return out, err
}

// ExtractInto decodes the object b refers to into the value out points to.
func ExtractInto(b Borrowed, out any) error {
	v := b.resolve()
	return b.tok.att.decoder().Decode(v, out)
}

// Lift converts the object b refers to into the Go form of schema type t.
func Lift(b Borrowed, t wit.Type) (any, error) {
	v := b.resolve()
	return b.tok.att.decoder().Lift(t, v)
}

// ToGo converts the object b refers to into its natural Go form.
func ToGo(b Borrowed) (any, error) {
	v := b.resolve()
	return b.tok.att.decoder().ToGo(v)
}

// resolver connects the transcoder to handles and registered types. It is
// bound to one attachment; conversions run under that attachment's
// innermost token.
type resolver struct {
	att *attachment
}

func (r resolver) token() *Token {
	t := r.att.top()
	if t == nil {
		panic(errors.TokenMisuse("conversion outside an attachment"))
	}
	return t
}

func (r resolver) ToHost(rv reflect.Value) (starlark.Value, bool, error) {
	switch rv.Type() {
	case borrowedType:
		return r.token().valueOf(rv.Interface().(Borrowed)), true, nil
	case ownedType:
		if rv.IsNil() {
			return starlark.None, true, nil
		}
		return r.owned(rv.Interface().(*Owned)), true, nil
	}
	if rv.Kind() == reflect.Interface {
		return nil, false, nil
	}
	reg, ok := r.att.interp.rt.types.lookup(rv.Type())
	if !ok {
		return nil, false, nil
	}
	hv, err := reg.toHost(r.att.interp, rv.Interface())
	return hv, true, err
}

func (r resolver) owned(o *Owned) starlark.Value {
	o.checkLive()
	if id := r.att.interp.id; o.interp.id != id {
		panic(errors.CrossInterpreterViolation(o.interp.id, id))
	}
	return r.att.interp.value(o.h)
}

func (r resolver) FromHost(v starlark.Value, target reflect.Type) (reflect.Value, bool, error) {
	if obj, ok := v.(*Object); ok && obj.interp != r.att.interp.id {
		panic(errors.CrossInterpreterViolation(obj.interp, r.att.interp.id))
	}
	switch target {
	case nil:
		if obj, ok := v.(*Object); ok {
			return reflect.ValueOf(obj.value), true, nil
		}
		return reflect.Value{}, false, nil
	case borrowedType:
		return reflect.ValueOf(r.token().borrow(v)), true, nil
	case ownedType:
		return reflect.ValueOf(r.token().borrow(v).ToOwned()), true, nil
	}
	reg, ok := r.att.interp.rt.types.lookup(target)
	if !ok {
		return reflect.Value{}, false, nil
	}
	gv, err := reg.fromHost(v, target)
	if err != nil {
		return reflect.Value{}, true, err
	}
	return gv, true, nil
}
