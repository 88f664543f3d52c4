package transcoder

import (
	"math"
	"reflect"
	"strconv"
	"unicode/utf8"

	"go.starlark.net/starlark"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/transcoder/internal/numeric"
)

// Decoder converts host values into Go values. Every failure is an
// *errors.Error with PhaseDecode, a path to the offending element, and one of
// the kinds type_mismatch, field_missing, overflow, invalid_utf8 or
// length_mismatch.
type Decoder struct {
	compiler *Compiler
	resolver Resolver
	limited  bool
}

func NewDecoder(opts ...Option) *Decoder {
	o := buildOptions(opts)
	return &Decoder{compiler: o.compiler, resolver: o.resolver, limited: o.limited}
}

// Decode stores the Go form of v in the value pointed to by out.
func (d *Decoder) Decode(v starlark.Value, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.NilPointer(errors.PhaseDecode, nil, typeName(out))
	}
	return d.DecodeValue(v, rv.Elem(), nil)
}

// DecodeValue decodes v into the settable value rv. path prefixes any error.
// An Unmarshaler target always decodes itself, even when v is already of the
// target type.
func (d *Decoder) DecodeValue(v starlark.Value, rv reflect.Value, path []string) error {
	if v == nil {
		v = starlark.None
	}
	t := rv.Type()

	if rv.CanAddr() && rv.Addr().Type().Implements(unmarshalerType) {
		if err := rv.Addr().Interface().(Unmarshaler).UnmarshalHost(v); err != nil {
			return errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Path(path...).
				GoType(t.String()).
				HostType(v.Type()).
				Cause(err).
				Build()
		}
		return nil
	}

	if t != anyType && reflect.TypeOf(v).AssignableTo(t) {
		rv.Set(reflect.ValueOf(v))
		return nil
	}

	if d.resolver != nil && t != anyType {
		gv, ok, err := d.resolver.FromHost(v, t)
		if err != nil {
			return err
		}
		if ok {
			rv.Set(gv)
			return nil
		}
	}

	switch t.Kind() {
	case reflect.Interface:
		gv, err := d.toGo(v, path)
		if err != nil {
			return err
		}
		if gv == nil {
			rv.Set(reflect.Zero(t))
			return nil
		}
		g := reflect.ValueOf(gv)
		if !g.Type().AssignableTo(t) {
			return errors.TypeMismatch(errors.PhaseDecode, path, t.String(), v.Type())
		}
		rv.Set(g)
		return nil

	case reflect.Bool:
		b, ok := v.(starlark.Bool)
		if !ok {
			return errors.TypeMismatch(errors.PhaseDecode, path, t.String(), v.Type())
		}
		rv.SetBool(bool(b))
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		x, ok := v.(starlark.Int)
		if !ok {
			return errors.TypeMismatch(errors.PhaseDecode, path, t.String(), v.Type())
		}
		i, ok := x.Int64()
		if !ok || rv.OverflowInt(i) {
			return errors.Overflow(errors.PhaseDecode, path, x.String(), t.String())
		}
		rv.SetInt(i)
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		x, ok := v.(starlark.Int)
		if !ok {
			return errors.TypeMismatch(errors.PhaseDecode, path, t.String(), v.Type())
		}
		u, ok := x.Uint64()
		if !ok || rv.OverflowUint(u) {
			return errors.Overflow(errors.PhaseDecode, path, x.String(), t.String())
		}
		rv.SetUint(u)
		return nil

	case reflect.Float32, reflect.Float64:
		f, err := hostFloat(v, path, t.String(), t.Bits())
		if err != nil {
			return err
		}
		rv.SetFloat(f)
		return nil

	case reflect.String:
		s, ok := v.(starlark.String)
		if !ok {
			return errors.TypeMismatch(errors.PhaseDecode, path, t.String(), v.Type())
		}
		if !utf8.ValidString(string(s)) {
			return errors.InvalidUTF8(errors.PhaseDecode, path, []byte(s))
		}
		rv.SetString(string(s))
		return nil

	case reflect.Ptr:
		if v == starlark.None {
			rv.Set(reflect.Zero(t))
			return nil
		}
		elem := reflect.New(t.Elem())
		if err := d.DecodeValue(v, elem.Elem(), path); err != nil {
			return err
		}
		rv.Set(elem)
		return nil

	case reflect.Slice:
		if b, ok := v.(starlark.Bytes); ok && t.Elem().Kind() == reflect.Uint8 {
			rv.SetBytes(append([]byte(nil), b...))
			return nil
		}
		return d.decodeSlice(v, rv, path)

	case reflect.Array:
		return d.decodeArray(v, rv, path)

	case reflect.Map:
		return d.decodeMap(v, rv, path)

	case reflect.Struct:
		return d.decodeStruct(v, rv, path)
	}

	return errors.New(errors.PhaseDecode, errors.KindUnsupported).
		Path(path...).
		GoType(t.String()).
		HostType(v.Type()).
		Build()
}

// eachElem visits the elements of a host sequence. The length is re-read
// before every index because code run during decoding may mutate the
// sequence; a sequence that shrinks simply ends early. It returns the
// number of elements visited.
func (d *Decoder) eachElem(v starlark.Value, path []string, fn func(i int, elem starlark.Value) error) (int, error) {
	if !d.limited {
		switch x := v.(type) {
		case starlark.Tuple:
			for i, elem := range x {
				if err := fn(i, elem); err != nil {
					return i, err
				}
			}
			return len(x), nil
		case *starlark.List:
			i := 0
			for ; i < x.Len(); i++ {
				if err := fn(i, x.Index(i)); err != nil {
					return i, err
				}
			}
			return i, nil
		}
	}

	switch x := v.(type) {
	case starlark.Indexable:
		if _, isString := v.(starlark.String); isString {
			break
		}
		i := 0
		for ; i < x.Len(); i++ {
			if err := fn(i, x.Index(i)); err != nil {
				return i, err
			}
		}
		return i, nil
	case starlark.Iterable:
		it := x.Iterate()
		defer it.Done()
		var elem starlark.Value
		i := 0
		for ; it.Next(&elem); i++ {
			if err := fn(i, elem); err != nil {
				return i, err
			}
		}
		return i, nil
	}
	return 0, errors.TypeMismatch(errors.PhaseDecode, path, "sequence", v.Type())
}

func (d *Decoder) decodeSlice(v starlark.Value, rv reflect.Value, path []string) error {
	t := rv.Type()
	hint := 0
	if s, ok := v.(starlark.Sequence); ok {
		hint = s.Len()
	}
	out := reflect.MakeSlice(t, 0, hint)
	_, err := d.eachElem(v, path, func(i int, elem starlark.Value) error {
		ev := reflect.New(t.Elem()).Elem()
		if err := d.DecodeValue(elem, ev, indexPath(path, i)); err != nil {
			return err
		}
		out = reflect.Append(out, ev)
		return nil
	})
	if err != nil {
		return err
	}
	rv.Set(out)
	return nil
}

// decodeArray enforces the fixed-length contract: the host sequence must
// have exactly as many elements as the array, including if it shrinks
// mid-read.
func (d *Decoder) decodeArray(v starlark.Value, rv reflect.Value, path []string) error {
	want := rv.Len()
	if s, ok := v.(starlark.Sequence); ok && s.Len() != want {
		return errors.LengthMismatch(errors.PhaseDecode, path, want, s.Len())
	}
	got, err := d.eachElem(v, path, func(i int, elem starlark.Value) error {
		if i >= want {
			return nil
		}
		return d.DecodeValue(elem, rv.Index(i), indexPath(path, i))
	})
	if err != nil {
		return err
	}
	if got != want {
		return errors.LengthMismatch(errors.PhaseDecode, path, want, got)
	}
	return nil
}

func (d *Decoder) decodeMap(v starlark.Value, rv reflect.Value, path []string) error {
	t := rv.Type()
	out := reflect.MakeMap(t)

	put := func(k, val starlark.Value) error {
		label := "[" + k.String() + "]"
		kv := reflect.New(t.Key()).Elem()
		if err := d.DecodeValue(k, kv, appendPath(path, label)); err != nil {
			return err
		}
		vv := reflect.New(t.Elem()).Elem()
		if err := d.DecodeValue(val, vv, appendPath(path, label)); err != nil {
			return err
		}
		out.SetMapIndex(kv, vv)
		return nil
	}

	switch x := v.(type) {
	case starlark.IterableMapping:
		for _, item := range x.Items() {
			if err := put(item[0], item[1]); err != nil {
				return err
			}
		}
	case starlark.HasAttrs:
		for _, name := range x.AttrNames() {
			attr, err := x.Attr(name)
			if err != nil || attr == nil {
				continue
			}
			if err := put(starlark.String(name), attr); err != nil {
				return err
			}
		}
	default:
		return errors.TypeMismatch(errors.PhaseDecode, path, t.String(), v.Type())
	}

	rv.Set(out)
	return nil
}

func (d *Decoder) decodeStruct(v starlark.Value, rv reflect.Value, path []string) error {
	plan, err := d.compiler.Compile(rv.Type())
	if err != nil {
		return err
	}

	var get func(name string) (starlark.Value, bool)
	switch x := v.(type) {
	case starlark.Mapping:
		get = func(name string) (starlark.Value, bool) {
			val, found, err := x.Get(starlark.String(name))
			return val, found && err == nil
		}
	case starlark.HasAttrs:
		get = func(name string) (starlark.Value, bool) {
			val, err := x.Attr(name)
			return val, err == nil && val != nil
		}
	default:
		return errors.TypeMismatch(errors.PhaseDecode, path, rv.Type().String(), v.Type())
	}

	for i := range plan.Fields {
		f := &plan.Fields[i]
		hv, found := get(f.HostName)
		if !found {
			if f.Optional || f.OmitEmpty {
				continue
			}
			return errors.FieldMissing(errors.PhaseDecode, path, f.HostName)
		}
		if err := d.DecodeValue(hv, rv.FieldByIndex(f.Index), appendPath(path, f.HostName)); err != nil {
			return err
		}
	}
	return nil
}

func indexPath(path []string, i int) []string {
	return appendPath(path, "["+strconv.Itoa(i)+"]")
}

// typeName returns "nil" for nil values, avoiding reflect.TypeOf(nil) panic.
func typeName(value any) string {
	if value == nil {
		return "nil"
	}
	return reflect.TypeOf(value).String()
}

// hostFloat converts a Float or Int to a float of bits. A finite value
// that would become infinite, including an Int beyond the float64 range,
// is an overflow.
func hostFloat(v starlark.Value, path []string, target string, bits int) (float64, error) {
	var f float64
	switch x := v.(type) {
	case starlark.Float:
		f = float64(x)
	case starlark.Int:
		f = float64(x.Float())
		if math.IsInf(f, 0) {
			return 0, errors.Overflow(errors.PhaseDecode, path, x.String(), target)
		}
	default:
		return 0, errors.TypeMismatch(errors.PhaseDecode, path, target, v.Type())
	}
	if !numeric.FitsFloat(f, bits) {
		return 0, errors.Overflow(errors.PhaseDecode, path, f, target)
	}
	return f, nil
}
