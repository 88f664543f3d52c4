package transcoder

import (
	"reflect"
	"unicode/utf8"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/wippyai/hostbridge/errors"
)

// ToGo converts v into its natural Go form:
//
//	None        nil
//	bool        bool
//	int         int64, or *big.Int beyond 64 bits
//	float       float64
//	string      string
//	bytes       []byte
//	list/tuple  []any
//	set         []any
//	dict        map[string]any when every key is a string, else map[any]any
//	struct      map[string]any
//
// Opaque references the resolver recognises become their Go form; any other
// value (functions, modules) is returned as the host value itself.
func (d *Decoder) ToGo(v starlark.Value) (any, error) {
	return d.toGo(v, nil)
}

func (d *Decoder) toGo(v starlark.Value, path []string) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch x := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(x), nil
	case starlark.Int:
		if i, ok := x.Int64(); ok {
			return i, nil
		}
		return x.BigInt(), nil
	case starlark.Float:
		return float64(x), nil
	case starlark.String:
		if !utf8.ValidString(string(x)) {
			return nil, errors.InvalidUTF8(errors.PhaseDecode, path, []byte(x))
		}
		return string(x), nil
	case starlark.Bytes:
		return []byte(x), nil
	}

	if d.resolver != nil {
		gv, ok, err := d.resolver.FromHost(v, nil)
		if err != nil {
			return nil, err
		}
		if ok {
			if !gv.IsValid() {
				return nil, nil
			}
			return gv.Interface(), nil
		}
	}

	switch x := v.(type) {
	case starlark.IterableMapping:
		return d.mappingToGo(x, path)
	case *starlarkstruct.Struct:
		return d.attrsToGo(x, path)
	case starlark.Indexable, starlark.Iterable:
		out := make([]any, 0)
		_, err := d.eachElem(v, path, func(i int, elem starlark.Value) error {
			gv, err := d.toGo(elem, indexPath(path, i))
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
	}
	return v, nil
}

func (d *Decoder) mappingToGo(m starlark.IterableMapping, path []string) (any, error) {
	items := m.Items()

	allStrings := true
	for _, item := range items {
		if _, ok := item[0].(starlark.String); !ok {
			allStrings = false
			break
		}
	}

	if allStrings {
		out := make(map[string]any, len(items))
		for _, item := range items {
			key := string(item[0].(starlark.String))
			gv, err := d.toGo(item[1], appendPath(path, key))
			if err != nil {
				return nil, err
			}
			out[key] = gv
		}
		return out, nil
	}

	out := make(map[any]any, len(items))
	for _, item := range items {
		label := "[" + item[0].String() + "]"
		gk, err := d.toGo(item[0], appendPath(path, label))
		if err != nil {
			return nil, err
		}
		// Tuple keys decode to slices, which Go maps cannot hold.
		if gk != nil && !reflect.TypeOf(gk).Comparable() {
			gk = item[0].String()
		}
		gv, err := d.toGo(item[1], appendPath(path, label))
		if err != nil {
			return nil, err
		}
		out[gk] = gv
	}
	return out, nil
}

func (d *Decoder) attrsToGo(s starlark.HasAttrs, path []string) (map[string]any, error) {
	names := s.AttrNames()
	out := make(map[string]any, len(names))
	for _, name := range names {
		attr, err := s.Attr(name)
		if err != nil || attr == nil {
			continue
		}
		gv, err := d.toGo(attr, appendPath(path, name))
		if err != nil {
			return nil, err
		}
		out[name] = gv
	}
	return out, nil
}
