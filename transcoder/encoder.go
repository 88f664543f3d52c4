package transcoder

import (
	"cmp"
	"reflect"
	"slices"
	"strconv"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/wippyai/hostbridge/errors"
)

// Encoder converts Go values into host values. Every Go value of a supported
// kind converts; only kinds with no host form (channels, functions, complex
// numbers, unsafe pointers) fail.
type Encoder struct {
	compiler *Compiler
	resolver Resolver
}

func NewEncoder(opts ...Option) *Encoder {
	o := buildOptions(opts)
	return &Encoder{compiler: o.compiler, resolver: o.resolver}
}

// Encode converts v into a host value.
func (e *Encoder) Encode(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}
	if hv, ok := v.(starlark.Value); ok {
		return hv, nil
	}
	return e.encodeValue(reflect.ValueOf(v), nil)
}

func (e *Encoder) encodeValue(rv reflect.Value, path []string) (starlark.Value, error) {
	if !rv.IsValid() {
		return starlark.None, nil
	}

	if rv.Type().Implements(hostValueType) {
		if rv.Kind() == reflect.Interface || rv.Kind() == reflect.Ptr {
			if rv.IsNil() {
				return starlark.None, nil
			}
		}
		return rv.Interface().(starlark.Value), nil
	}

	if rv.Type().Implements(marshalerType) && !(rv.Kind() == reflect.Ptr && rv.IsNil()) {
		hv, err := rv.Interface().(Marshaler).MarshalHost()
		if err != nil {
			return nil, errors.New(errors.PhaseEncode, errors.KindInvalidData).
				Path(path...).
				GoType(rv.Type().String()).
				Cause(err).
				Build()
		}
		return hv, nil
	}

	if e.resolver != nil {
		hv, ok, err := e.resolver.ToHost(rv)
		if err != nil {
			return nil, err
		}
		if ok {
			return hv, nil
		}
	}

	switch rv.Kind() {
	case reflect.Bool:
		return starlark.Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return starlark.MakeInt64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return starlark.MakeUint64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return starlark.Float(rv.Float()), nil
	case reflect.String:
		return starlark.String(rv.String()), nil
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return starlark.None, nil
		}
		return e.encodeValue(rv.Elem(), path)
	case reflect.Slice:
		if rv.IsNil() {
			return starlark.NewList(nil), nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return starlark.Bytes(rv.Bytes()), nil
		}
		return e.encodeList(rv, path)
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return starlark.Bytes(b), nil
		}
		return e.encodeTuple(rv, path)
	case reflect.Map:
		return e.encodeMap(rv, path)
	case reflect.Struct:
		return e.encodeStruct(rv, path)
	default:
		return nil, errors.New(errors.PhaseEncode, errors.KindUnsupported).
			Path(path...).
			GoType(rv.Type().String()).
			Detail("no host representation").
			Build()
	}
}

func (e *Encoder) encodeList(rv reflect.Value, path []string) (starlark.Value, error) {
	elems, err := e.encodeElems(rv, path)
	if err != nil {
		return nil, err
	}
	return starlark.NewList(elems), nil
}

// Fixed-length Go arrays become tuples so the length contract survives the
// round trip.
func (e *Encoder) encodeTuple(rv reflect.Value, path []string) (starlark.Value, error) {
	elems, err := e.encodeElems(rv, path)
	if err != nil {
		return nil, err
	}
	return starlark.Tuple(elems), nil
}

func (e *Encoder) encodeElems(rv reflect.Value, path []string) ([]starlark.Value, error) {
	n := rv.Len()
	elems := make([]starlark.Value, n)
	for i := 0; i < n; i++ {
		hv, err := e.encodeValue(rv.Index(i), appendPath(path, "["+strconv.Itoa(i)+"]"))
		if err != nil {
			return nil, err
		}
		elems[i] = hv
	}
	return elems, nil
}

func (e *Encoder) encodeMap(rv reflect.Value, path []string) (starlark.Value, error) {
	if rv.IsNil() {
		return starlark.NewDict(0), nil
	}

	keys := rv.MapKeys()
	sortKeys(keys)

	dict := starlark.NewDict(len(keys))
	for _, k := range keys {
		keyPath := appendPath(path, "["+keyLabel(k)+"]")
		hk, err := e.encodeValue(k, keyPath)
		if err != nil {
			return nil, err
		}
		hv, err := e.encodeValue(rv.MapIndex(k), keyPath)
		if err != nil {
			return nil, err
		}
		if err := dict.SetKey(hk, hv); err != nil {
			return nil, errors.New(errors.PhaseEncode, errors.KindInvalidData).
				Path(keyPath...).
				GoType(k.Type().String()).
				Cause(err).
				Build()
		}
	}
	return dict, nil
}

func (e *Encoder) encodeStruct(rv reflect.Value, path []string) (starlark.Value, error) {
	plan, err := e.compiler.Compile(rv.Type())
	if err != nil {
		return nil, err
	}

	fields := make(starlark.StringDict, len(plan.Fields))
	for i := range plan.Fields {
		f := &plan.Fields[i]
		fv := rv.FieldByIndex(f.Index)
		if f.OmitEmpty && fv.IsZero() {
			continue
		}
		hv, err := e.encodeValue(fv, appendPath(path, f.HostName))
		if err != nil {
			return nil, err
		}
		fields[f.HostName] = hv
	}
	return starlarkstruct.FromStringDict(starlarkstruct.Default, fields), nil
}

// sortKeys orders map keys so dict insertion order is deterministic.
func sortKeys(keys []reflect.Value) {
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		switch a.Kind() {
		case reflect.String:
			return cmp.Compare(a.String(), b.String())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return cmp.Compare(a.Int(), b.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			return cmp.Compare(a.Uint(), b.Uint())
		case reflect.Float32, reflect.Float64:
			return cmp.Compare(a.Float(), b.Float())
		}
		return cmp.Compare(keyLabel(a), keyLabel(b))
	})
}

func keyLabel(k reflect.Value) string {
	switch k.Kind() {
	case reflect.String:
		return strconv.Quote(k.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10)
	}
	return k.Type().String()
}

func appendPath(path []string, elem string) []string {
	return append(append(make([]string, 0, len(path)+1), path...), elem)
}
