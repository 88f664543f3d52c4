package runtime

import (
	"fmt"
	"maps"
	"slices"

	"go.starlark.net/starlark"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/resource"
)

// Borrowed refers to a host object for the lifetime of the token that
// produced it. Copying a Borrowed is free; it carries no reference of its
// own. Using it after its token is released panics.
type Borrowed struct {
	tok    *Token
	h      resource.Handle
	interp uint64
}

// resolve validates the handle and returns the host value.
func (b Borrowed) resolve() starlark.Value {
	if b.tok == nil {
		panic(errors.TokenMisuse("zero Borrowed handle"))
	}
	b.tok.check()
	if b.interp != b.tok.att.interp.id {
		panic(errors.CrossInterpreterViolation(b.interp, b.tok.att.interp.id))
	}
	return b.tok.att.interp.value(b.h)
}

func (b Borrowed) exception(typ, format string, args ...any) error {
	return &errors.HostException{
		Type:        typ,
		Message:     fmt.Sprintf(format, args...),
		Interpreter: b.interp,
	}
}

// Token returns the token the handle is bound to.
func (b Borrowed) Token() *Token { return b.tok }

// Interpreter returns the identity of the interpreter owning the object.
func (b Borrowed) Interpreter() uint64 { return b.interp }

// Value returns the raw host value. It is unavailable under the limited ABI,
// where callers must go through the handle operations.
func (b Borrowed) Value() (starlark.Value, error) {
	v := b.resolve()
	if b.tok.att.interp.rt.cfg.Limited() {
		return nil, errors.Unsupported(errors.PhaseCall, "raw value access under the limited ABI")
	}
	return v, nil
}

// TypeName returns the host type name of the object.
func (b Borrowed) TypeName() string { return b.resolve().Type() }

// IsNone reports whether the object is None.
func (b Borrowed) IsNone() bool { return b.resolve() == starlark.None }

// Truth returns the truth value of the object.
func (b Borrowed) Truth() bool { return bool(b.resolve().Truth()) }

// Repr returns the host representation of the object.
func (b Borrowed) Repr() string { return b.resolve().String() }

// String returns str(object): strings unquoted, everything else as Repr.
func (b Borrowed) String() string {
	v := b.resolve()
	if s, ok := v.(starlark.String); ok {
		return string(s)
	}
	return v.String()
}

// RefCount returns the number of strong references Go holds to the object,
// including the one keeping this handle alive.
func (b Borrowed) RefCount() int64 {
	b.resolve()
	n, _ := b.tok.att.interp.heap.RefCount(b.h)
	return n
}

// ToOwned returns an Owned handle with its own strong reference.
func (b Borrowed) ToOwned() *Owned {
	b.resolve()
	i := b.tok.att.interp
	if !i.heap.IncRef(b.h) {
		panic(errors.TokenMisuse("handle " + b.h.String() + " is no longer live"))
	}
	return newOwned(i, b.h)
}

// Equal compares the object with other, which may be a handle or a Go
// value.
func (b Borrowed) Equal(other any) (bool, error) {
	v := b.resolve()
	o, err := b.tok.toHost(other)
	if err != nil {
		return false, err
	}
	eq, err := starlark.Equal(v, o)
	if err != nil {
		return false, b.tok.failValue(err)
	}
	return eq, nil
}

// HasAttr reports whether the object has the named attribute.
func (b Borrowed) HasAttr(name string) bool {
	v := b.resolve()
	ha, ok := v.(starlark.HasAttrs)
	if !ok {
		return false
	}
	unlock := b.tok.att.interp.lockObject(b.h)
	defer unlock()
	a, err := ha.Attr(name)
	return err == nil && a != nil
}

// GetAttr returns the named attribute.
func (b Borrowed) GetAttr(name string) (Borrowed, error) {
	v := b.resolve()
	ha, ok := v.(starlark.HasAttrs)
	if !ok {
		return Borrowed{}, b.exception(errors.ExcAttribute, "%s has no .%s field or method", v.Type(), name)
	}

	unlock := b.tok.att.interp.lockObject(b.h)
	a, err := ha.Attr(name)
	unlock()
	if err != nil {
		return Borrowed{}, b.tok.failValue(err)
	}
	if a == nil {
		return Borrowed{}, b.exception(errors.ExcAttribute, "%s has no .%s field or method", v.Type(), name)
	}
	return b.tok.borrow(a), nil
}

// SetAttr assigns the named field.
func (b Borrowed) SetAttr(name string, value any) error {
	v := b.resolve()
	hv, err := b.tok.toHost(value)
	if err != nil {
		return err
	}
	sf, ok := v.(starlark.HasSetField)
	if !ok {
		return b.exception(errors.ExcAttribute, "can't assign to .%s field of %s", name, v.Type())
	}

	unlock := b.tok.att.interp.lockObject(b.h)
	defer unlock()
	if err := sf.SetField(name, hv); err != nil {
		return b.tok.failValue(err)
	}
	return nil
}

// GetItem returns object[key]. Negative sequence indices count from the end.
func (b Borrowed) GetItem(key any) (Borrowed, error) {
	v := b.resolve()
	k, err := b.tok.toHost(key)
	if err != nil {
		return Borrowed{}, err
	}

	unlock := b.tok.att.interp.lockObject(b.h)
	item, err := b.getItem(v, k)
	unlock()
	if err != nil {
		return Borrowed{}, err
	}
	return b.tok.borrow(item), nil
}

func (b Borrowed) getItem(v, k starlark.Value) (starlark.Value, error) {
	switch x := v.(type) {
	case starlark.Mapping:
		item, found, err := x.Get(k)
		if err != nil {
			return nil, b.tok.failValue(err)
		}
		if !found {
			return nil, b.exception(errors.ExcKey, "key %s not in %s", k.String(), v.Type())
		}
		return item, nil
	case starlark.Indexable:
		idx, n, err := b.index(x, k)
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= n {
			return nil, b.exception(errors.ExcIndex, "%s index %s out of range [0:%d]", v.Type(), k.String(), n)
		}
		return x.Index(idx), nil
	}
	return nil, b.exception(errors.ExcType, "unhandled index operation %s[%s]", v.Type(), k.Type())
}

func (b Borrowed) index(x starlark.Indexable, k starlark.Value) (idx, n int, err error) {
	var i int
	if err := starlark.AsInt(k, &i); err != nil {
		return 0, 0, b.exception(errors.ExcType, "%s index: got %s, want int", x.Type(), k.Type())
	}
	n = x.Len()
	if i < 0 {
		i += n
	}
	return i, n, nil
}

// SetItem assigns object[key] = value.
func (b Borrowed) SetItem(key, value any) error {
	v := b.resolve()
	k, err := b.tok.toHost(key)
	if err != nil {
		return err
	}
	hv, err := b.tok.toHost(value)
	if err != nil {
		return err
	}

	unlock := b.tok.att.interp.lockObject(b.h)
	defer unlock()
	switch x := v.(type) {
	case starlark.HasSetKey:
		if err := x.SetKey(k, hv); err != nil {
			return b.tok.failValue(err)
		}
		return nil
	case starlark.HasSetIndex:
		idx, n, err := b.index(x, k)
		if err != nil {
			return err
		}
		if idx < 0 || idx >= n {
			return b.exception(errors.ExcIndex, "%s index %s out of range [0:%d]", v.Type(), k.String(), n)
		}
		if err := x.SetIndex(idx, hv); err != nil {
			return b.tok.failValue(err)
		}
		return nil
	}
	return b.exception(errors.ExcType, "%s value does not support item assignment", v.Type())
}

// Len returns the length of a sized object.
func (b Borrowed) Len() (int, error) {
	v := b.resolve()
	unlock := b.tok.att.interp.lockObject(b.h)
	n := starlark.Len(v)
	unlock()
	if n < 0 {
		return 0, b.exception(errors.ExcType, "value of type %s has no len()", v.Type())
	}
	return n, nil
}

// Iter returns the elements of an iterable object. The elements are
// snapshotted before any is handed out, so later mutation of the object
// does not affect the result.
func (b Borrowed) Iter() ([]Borrowed, error) {
	v := b.resolve()
	unlock := b.tok.att.interp.lockObject(b.h)
	it := starlark.Iterate(v)
	if it == nil {
		unlock()
		return nil, b.exception(errors.ExcType, "%s value is not iterable", v.Type())
	}
	var elems []starlark.Value
	var x starlark.Value
	for it.Next(&x) {
		elems = append(elems, x)
	}
	it.Done()
	unlock()

	out := make([]Borrowed, len(elems))
	for i, e := range elems {
		out[i] = b.tok.borrow(e)
	}
	return out, nil
}

// Call calls the object with positional arguments. Arguments may be Go
// values or handles of the same interpreter.
func (b Borrowed) Call(args ...any) (Borrowed, error) {
	return b.CallKw(args, nil)
}

// CallKw calls the object with positional and keyword arguments. Keyword
// arguments are passed in name order.
func (b Borrowed) CallKw(args []any, kwargs map[string]any) (Borrowed, error) {
	fn := b.resolve()
	t := b.tok
	t.guard("call")

	pos := make(starlark.Tuple, len(args))
	for i, a := range args {
		hv, err := t.toHost(a)
		if err != nil {
			return Borrowed{}, err
		}
		pos[i] = hv
	}
	var kw []starlark.Tuple
	for _, name := range slices.Sorted(maps.Keys(kwargs)) {
		hv, err := t.toHost(kwargs[name])
		if err != nil {
			return Borrowed{}, err
		}
		kw = append(kw, starlark.Tuple{starlark.String(name), hv})
	}

	res, err := starlark.Call(t.att.thread, fn, pos, kw)
	if err != nil {
		return Borrowed{}, t.fail(err)
	}
	return t.borrow(res), nil
}

// CallMethod looks up the named attribute and calls it.
func (b Borrowed) CallMethod(name string, args ...any) (Borrowed, error) {
	m, err := b.GetAttr(name)
	if err != nil {
		return Borrowed{}, err
	}
	return m.Call(args...)
}
