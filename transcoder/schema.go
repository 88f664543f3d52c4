package transcoder

import (
	"reflect"
	"slices"
	"unicode/utf8"

	"go.bytecodealliance.org/wit"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/wippyai/hostbridge/engine"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/transcoder/internal/numeric"
)

// Schema-driven conversion. A wit type names the exact shape expected on
// the other side, so integers are range-checked against their declared
// width, enum and flag names are validated, and records list every field.
//
// Go forms produced by Lift:
//
//	bool               bool
//	u8..u64, s8..s64   uint8..uint64, int8..int64
//	f32, f64           float32, float64
//	char               rune
//	string             string
//	list<T>, tuple     []any
//	record             map[string]any keyed by wit field name
//	enum               string
//	flags              []string in declaration order
//	option<T>          nil or the lifted T
//	variant, result    Variant
//	own, borrow        resolver form
//
// The host form of variants and results is struct(case=..., value=...).

// Lift converts host value v into the Go form of schema type t.
func (d *Decoder) Lift(t wit.Type, v starlark.Value) (any, error) {
	return d.lift(t, v, nil)
}

func (d *Decoder) lift(t wit.Type, v starlark.Value, path []string) (any, error) {
	if v == nil {
		v = starlark.None
	}
	kind, def, ok := kindOf(t)
	if !ok {
		return nil, errors.Unsupported(errors.PhaseDecode, schemaName(t))
	}

	switch kind {
	case KindBool:
		b, ok := v.(starlark.Bool)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseDecode, path, kind.String(), v.Type())
		}
		return bool(b), nil

	case KindS8, KindS16, KindS32, KindS64:
		x, ok := v.(starlark.Int)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseDecode, path, kind.String(), v.Type())
		}
		i, ok := x.Int64()
		if !ok || !numeric.FitsInt(i, kind.Bits()) {
			return nil, errors.Overflow(errors.PhaseDecode, path, x.String(), kind.String())
		}
		switch kind {
		case KindS8:
			return int8(i), nil
		case KindS16:
			return int16(i), nil
		case KindS32:
			return int32(i), nil
		}
		return i, nil

	case KindU8, KindU16, KindU32, KindU64:
		x, ok := v.(starlark.Int)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseDecode, path, kind.String(), v.Type())
		}
		u, ok := x.Uint64()
		if !ok || !numeric.FitsUint(u, kind.Bits()) {
			return nil, errors.Overflow(errors.PhaseDecode, path, x.String(), kind.String())
		}
		switch kind {
		case KindU8:
			return uint8(u), nil
		case KindU16:
			return uint16(u), nil
		case KindU32:
			return uint32(u), nil
		}
		return u, nil

	case KindF32, KindF64:
		bits := 64
		if kind == KindF32 {
			bits = 32
		}
		f, err := hostFloat(v, path, kind.String(), bits)
		if err != nil {
			return nil, err
		}
		if kind == KindF32 {
			return float32(f), nil
		}
		return f, nil

	case KindChar:
		s, ok := v.(starlark.String)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseDecode, path, kind.String(), v.Type())
		}
		r, size := utf8.DecodeRuneInString(string(s))
		if r == utf8.RuneError || size != len(s) || !numeric.ValidChar(r) {
			return nil, errors.InvalidData(errors.PhaseDecode, path, "char must be exactly one valid code point")
		}
		return r, nil

	case KindString:
		s, ok := v.(starlark.String)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseDecode, path, kind.String(), v.Type())
		}
		if !utf8.ValidString(string(s)) {
			return nil, errors.InvalidUTF8(errors.PhaseDecode, path, []byte(s))
		}
		return string(s), nil

	case KindList:
		elemType := def.(*wit.List).Type
		out := make([]any, 0)
		_, err := d.eachElem(v, path, func(i int, elem starlark.Value) error {
			gv, err := d.lift(elemType, elem, indexPath(path, i))
			if err != nil {
				return err
			}
			out = append(out, gv)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil

	case KindTuple:
		elemTypes := def.(*wit.Tuple).Types
		out := make([]any, len(elemTypes))
		got, err := d.eachElem(v, path, func(i int, elem starlark.Value) error {
			if i >= len(elemTypes) {
				return nil
			}
			gv, err := d.lift(elemTypes[i], elem, indexPath(path, i))
			if err != nil {
				return err
			}
			out[i] = gv
			return nil
		})
		if err != nil {
			return nil, err
		}
		if got != len(elemTypes) {
			return nil, errors.LengthMismatch(errors.PhaseDecode, path, len(elemTypes), got)
		}
		return out, nil

	case KindRecord:
		get, err := fieldGetter(v, path)
		if err != nil {
			return nil, err
		}
		fields := def.(*wit.Record).Fields
		out := make(map[string]any, len(fields))
		for _, f := range fields {
			name := engine.HostName(f.Name)
			hv, found := get(name)
			if !found {
				if isOptionType(f.Type) {
					out[f.Name] = nil
					continue
				}
				return nil, errors.FieldMissing(errors.PhaseDecode, path, name)
			}
			gv, err := d.lift(f.Type, hv, appendPath(path, name))
			if err != nil {
				return nil, err
			}
			out[f.Name] = gv
		}
		return out, nil

	case KindEnum:
		s, ok := v.(starlark.String)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseDecode, path, kind.String(), v.Type())
		}
		names := enumNames(def.(*wit.Enum))
		if !slices.Contains(names, string(s)) {
			return nil, errors.InvalidDiscriminant(errors.PhaseDecode, path, string(s), names)
		}
		return string(s), nil

	case KindFlags:
		names := flagNames(def.(*wit.Flags))
		set := make(map[string]bool)
		_, err := d.eachElem(v, path, func(i int, elem starlark.Value) error {
			s, ok := elem.(starlark.String)
			if !ok {
				return errors.TypeMismatch(errors.PhaseDecode, indexPath(path, i), "flag name", elem.Type())
			}
			if !slices.Contains(names, string(s)) {
				return errors.InvalidDiscriminant(errors.PhaseDecode, indexPath(path, i), string(s), names)
			}
			set[string(s)] = true
			return nil
		})
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(set))
		for _, name := range names {
			if set[name] {
				out = append(out, name)
			}
		}
		return out, nil

	case KindOption:
		if v == starlark.None {
			return nil, nil
		}
		return d.lift(def.(*wit.Option).Type, v, path)

	case KindResult:
		r := def.(*wit.Result)
		return d.liftCase(v, path, []caseType{{"ok", r.OK}, {"err", r.Err}})

	case KindVariant:
		var cases []caseType
		for _, c := range def.(*wit.Variant).Cases {
			cases = append(cases, caseType{c.Name, c.Type})
		}
		return d.liftCase(v, path, cases)

	case KindOwn, KindBorrow:
		if d.resolver != nil {
			gv, ok, err := d.resolver.FromHost(v, nil)
			if err != nil {
				return nil, err
			}
			if ok && gv.IsValid() {
				return gv.Interface(), nil
			}
		}
		return nil, errors.TypeMismatch(errors.PhaseDecode, path, kind.String(), v.Type())
	}

	return nil, errors.Unsupported(errors.PhaseDecode, kind.String())
}

type caseType struct {
	name string
	typ  wit.Type
}

func (d *Decoder) liftCase(v starlark.Value, path []string, cases []caseType) (any, error) {
	get, err := fieldGetter(v, path)
	if err != nil {
		return nil, err
	}
	hc, found := get("case")
	if !found {
		return nil, errors.FieldMissing(errors.PhaseDecode, path, "case")
	}
	name, ok := hc.(starlark.String)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseDecode, appendPath(path, "case"), "string", hc.Type())
	}

	names := make([]string, len(cases))
	for i, c := range cases {
		names[i] = c.name
	}
	idx := slices.Index(names, string(name))
	if idx < 0 {
		return nil, errors.InvalidDiscriminant(errors.PhaseDecode, path, string(name), names)
	}

	hv, found := get("value")
	if !found {
		hv = starlark.None
	}
	if cases[idx].typ == nil {
		if hv != starlark.None {
			return nil, errors.TypeMismatch(errors.PhaseDecode, appendPath(path, "value"), "None", hv.Type())
		}
		return Variant{Case: string(name)}, nil
	}
	gv, err := d.lift(cases[idx].typ, hv, appendPath(path, "value"))
	if err != nil {
		return nil, err
	}
	return Variant{Case: string(name), Value: gv}, nil
}

// Lower converts Go value v into the host form of schema type t. Host values
// are accepted as input and validated against t.
func (e *Encoder) Lower(t wit.Type, v any) (starlark.Value, error) {
	return e.lower(t, v, nil)
}

func (e *Encoder) lower(t wit.Type, v any, path []string) (starlark.Value, error) {
	kind, def, ok := kindOf(t)
	if !ok {
		return nil, errors.Unsupported(errors.PhaseEncode, schemaName(t))
	}

	if hv, isHost := v.(starlark.Value); isHost && kind != KindOwn && kind != KindBorrow {
		d := &Decoder{compiler: e.compiler, resolver: e.resolver}
		if _, err := d.lift(t, hv, path); err != nil {
			return nil, err
		}
		return hv, nil
	}
	if kind.IsPrimitive() || kind == KindString || kind == KindEnum {
		v = baseValue(v)
	}

	switch kind {
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), kind.String())
		}
		return starlark.Bool(b), nil

	case KindS8, KindS16, KindS32, KindS64:
		i, ok := numeric.Int(v, kind.Bits())
		if !ok {
			return nil, numberError(v, kind, path)
		}
		return starlark.MakeInt64(i), nil

	case KindU8, KindU16, KindU32, KindU64:
		u, ok := numeric.Uint(v, kind.Bits())
		if !ok {
			return nil, numberError(v, kind, path)
		}
		return starlark.MakeUint64(u), nil

	case KindF32, KindF64:
		switch x := v.(type) {
		case float32:
			return starlark.Float(x), nil
		case float64:
			if kind == KindF32 {
				if !numeric.FitsFloat(x, 32) {
					return nil, errors.Overflow(errors.PhaseEncode, path, x, kind.String())
				}
				return starlark.Float(float32(x)), nil
			}
			return starlark.Float(x), nil
		}
		if i, ok := numeric.Int(v, 64); ok {
			return starlark.Float(float64(i)), nil
		}
		return nil, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), kind.String())

	case KindChar:
		var r rune
		switch x := v.(type) {
		case rune:
			r = x
		case string:
			var size int
			r, size = utf8.DecodeRuneInString(x)
			if size != len(x) || r == utf8.RuneError {
				return nil, errors.InvalidData(errors.PhaseEncode, path, "char must be exactly one valid code point")
			}
		default:
			i, ok := numeric.Int(v, 32)
			if !ok {
				return nil, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), kind.String())
			}
			r = rune(i)
		}
		if !numeric.ValidChar(r) {
			return nil, errors.InvalidData(errors.PhaseEncode, path, "char is not a valid code point")
		}
		return starlark.String(string(r)), nil

	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), kind.String())
		}
		if !utf8.ValidString(s) {
			return nil, errors.InvalidUTF8(errors.PhaseEncode, path, []byte(s))
		}
		return starlark.String(s), nil

	case KindList:
		elems, err := e.lowerElems(v, path, func(int) wit.Type { return def.(*wit.List).Type })
		if err != nil {
			return nil, err
		}
		return starlark.NewList(elems), nil

	case KindTuple:
		elemTypes := def.(*wit.Tuple).Types
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), kind.String())
		}
		if rv.Len() != len(elemTypes) {
			return nil, errors.LengthMismatch(errors.PhaseEncode, path, len(elemTypes), rv.Len())
		}
		elems, err := e.lowerElems(v, path, func(i int) wit.Type { return elemTypes[i] })
		if err != nil {
			return nil, err
		}
		return starlark.Tuple(elems), nil

	case KindRecord:
		return e.lowerRecord(def.(*wit.Record), v, path)

	case KindEnum:
		names := enumNames(def.(*wit.Enum))
		var name string
		switch x := v.(type) {
		case string:
			name = x
		default:
			i, ok := numeric.Int(v, 64)
			if !ok {
				return nil, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), kind.String())
			}
			if i < 0 || i >= int64(len(names)) {
				return nil, errors.InvalidEnum(errors.PhaseEncode, path, i, kind.String())
			}
			name = names[i]
		}
		if !slices.Contains(names, name) {
			return nil, errors.InvalidDiscriminant(errors.PhaseEncode, path, name, names)
		}
		return starlark.String(name), nil

	case KindFlags:
		names := flagNames(def.(*wit.Flags))
		set := make(map[string]bool)
		switch x := v.(type) {
		case []string:
			for _, s := range x {
				set[s] = true
			}
		case map[string]bool:
			for s, on := range x {
				if on {
					set[s] = true
				}
			}
		default:
			return nil, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), kind.String())
		}
		out := starlark.NewSet(len(set))
		for s := range set {
			if !slices.Contains(names, s) {
				return nil, errors.InvalidDiscriminant(errors.PhaseEncode, path, s, names)
			}
		}
		for _, s := range names {
			if set[s] {
				_ = out.Insert(starlark.String(s))
			}
		}
		return out, nil

	case KindOption:
		if v == nil {
			return starlark.None, nil
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Ptr {
			if rv.IsNil() {
				return starlark.None, nil
			}
			v = rv.Elem().Interface()
		}
		return e.lower(def.(*wit.Option).Type, v, path)

	case KindResult:
		r := def.(*wit.Result)
		return e.lowerCase(v, path, []caseType{{"ok", r.OK}, {"err", r.Err}})

	case KindVariant:
		var cases []caseType
		for _, c := range def.(*wit.Variant).Cases {
			cases = append(cases, caseType{c.Name, c.Type})
		}
		return e.lowerCase(v, path, cases)

	case KindOwn, KindBorrow:
		if e.resolver != nil && v != nil {
			hv, ok, err := e.resolver.ToHost(reflect.ValueOf(v))
			if err != nil {
				return nil, err
			}
			if ok {
				return hv, nil
			}
		}
		if hv, ok := v.(starlark.Value); ok {
			return hv, nil
		}
		return nil, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), kind.String())
	}

	return nil, errors.Unsupported(errors.PhaseEncode, kind.String())
}

func (e *Encoder) lowerElems(v any, path []string, typeAt func(int) wit.Type) ([]starlark.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "sequence")
	}
	elems := make([]starlark.Value, rv.Len())
	for i := range elems {
		hv, err := e.lower(typeAt(i), rv.Index(i).Interface(), indexPath(path, i))
		if err != nil {
			return nil, err
		}
		elems[i] = hv
	}
	return elems, nil
}

func (e *Encoder) lowerRecord(r *wit.Record, v any, path []string) (starlark.Value, error) {
	var get func(name string) (any, bool)

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr && !rv.IsNil() {
		rv = rv.Elem()
	}
	switch {
	case rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String:
		get = func(name string) (any, bool) {
			fv := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
			if !fv.IsValid() {
				return nil, false
			}
			return fv.Interface(), true
		}
	case rv.Kind() == reflect.Struct:
		plan, err := e.compiler.Compile(rv.Type())
		if err != nil {
			return nil, err
		}
		get = func(name string) (any, bool) {
			f, ok := plan.Lookup(engine.HostName(name))
			if !ok {
				return nil, false
			}
			return rv.FieldByIndex(f.Index).Interface(), true
		}
	default:
		return nil, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "record")
	}

	fields := make(starlark.StringDict, len(r.Fields))
	for _, f := range r.Fields {
		name := engine.HostName(f.Name)
		gv, found := get(f.Name)
		if !found {
			gv, found = get(name)
		}
		if !found {
			if isOptionType(f.Type) {
				fields[name] = starlark.None
				continue
			}
			return nil, errors.FieldMissing(errors.PhaseEncode, path, f.Name)
		}
		hv, err := e.lower(f.Type, gv, appendPath(path, name))
		if err != nil {
			return nil, err
		}
		fields[name] = hv
	}
	return starlarkstruct.FromStringDict(starlarkstruct.Default, fields), nil
}

func (e *Encoder) lowerCase(v any, path []string, cases []caseType) (starlark.Value, error) {
	var vr Variant
	switch x := v.(type) {
	case Variant:
		vr = x
	case *Variant:
		if x == nil {
			return nil, errors.NilPointer(errors.PhaseEncode, path, variantType.String())
		}
		vr = *x
	default:
		return nil, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), variantType.String())
	}

	names := make([]string, len(cases))
	for i, c := range cases {
		names[i] = c.name
	}
	idx := slices.Index(names, vr.Case)
	if idx < 0 {
		return nil, errors.InvalidDiscriminant(errors.PhaseEncode, path, vr.Case, names)
	}

	var hv starlark.Value = starlark.None
	if cases[idx].typ != nil {
		var err error
		hv, err = e.lower(cases[idx].typ, vr.Value, appendPath(path, "value"))
		if err != nil {
			return nil, err
		}
	} else if vr.Value != nil {
		return nil, errors.TypeMismatch(errors.PhaseEncode, appendPath(path, "value"), typeName(vr.Value), "None")
	}

	return starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
		"case":  starlark.String(vr.Case),
		"value": hv,
	}), nil
}

// fieldGetter reads named members of a dict or attribute-bearing value.
func fieldGetter(v starlark.Value, path []string) (func(string) (starlark.Value, bool), error) {
	switch x := v.(type) {
	case starlark.Mapping:
		return func(name string) (starlark.Value, bool) {
			val, found, err := x.Get(starlark.String(name))
			return val, found && err == nil
		}, nil
	case starlark.HasAttrs:
		return func(name string) (starlark.Value, bool) {
			val, err := x.Attr(name)
			return val, err == nil && val != nil
		}, nil
	}
	return nil, errors.TypeMismatch(errors.PhaseDecode, path, "record", v.Type())
}

// numberError distinguishes a value of the wrong type from a number that
// does not fit.
func numberError(v any, kind TypeKind, path []string) error {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return errors.Overflow(errors.PhaseEncode, path, v, kind.String())
	}
	return errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), kind.String())
}

// baseValue strips named types (type Level int) down to their builtin kind.
func baseValue(v any) any {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Type().PkgPath() == "" {
		return v
	}
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	}
	return v
}

func isOptionType(t wit.Type) bool {
	kind, _, ok := kindOf(t)
	return ok && kind == KindOption
}

func enumNames(e *wit.Enum) []string {
	names := make([]string, len(e.Cases))
	for i, c := range e.Cases {
		names[i] = c.Name
	}
	return names
}

func flagNames(f *wit.Flags) []string {
	names := make([]string, len(f.Flags))
	for i, fl := range f.Flags {
		names[i] = fl.Name
	}
	return names
}

func schemaName(t wit.Type) string {
	if t == nil {
		return "nil schema type"
	}
	return reflect.TypeOf(t).String()
}
