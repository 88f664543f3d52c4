package runtime

import (
	"maps"
	"reflect"
	"slices"
	"strconv"
	"sync"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/engine"
	"github.com/wippyai/hostbridge/errors"
)

// Host is the interface for struct-based host modules.
// All exported methods (except Namespace) are registered as host functions
// under their snake_case names.
type Host interface {
	// Namespace returns the module name scripts see (e.g. "kv").
	Namespace() string
}

// HostFunc is the native form of a host function. The token is a nested,
// non-owning token valid for the duration of the call.
type HostFunc func(tok *Token, args Args) (any, error)

type HostRegistry struct {
	funcs map[string]map[string]HostFunc
	mu    sync.RWMutex
}

func NewHostRegistry() *HostRegistry {
	return &HostRegistry{
		funcs: make(map[string]map[string]HostFunc),
	}
}

var (
	tokenType = reflect.TypeOf((*Token)(nil))
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// RegisterFunc exposes fn to scripts as module.name. fn is either a
// HostFunc or any function whose parameters, after an optional leading
// *Token, are decoded from the positional arguments, and whose results are
// one of (), (T), (error) or (T, error).
func (r *HostRegistry) RegisterFunc(module, name string, fn any) error {
	if !engine.ValidIdent(module) {
		return errors.InvalidInput(errors.PhaseRegister, "invalid module name "+strconv.Quote(module))
	}
	name = engine.HostName(name)
	if !engine.ValidIdent(name) {
		return errors.InvalidInput(errors.PhaseRegister, "invalid function name "+strconv.Quote(name))
	}

	call, err := adapt(module+"."+name, fn)
	if err != nil {
		return errors.Registration(module, name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.funcs[module] == nil {
		r.funcs[module] = make(map[string]HostFunc)
	}
	r.funcs[module][name] = call
	Logger().Debug("host function registered", zap.String("module", module), zap.String("name", name))
	return nil
}

// RegisterHost registers every exported method of h except Namespace.
func (r *HostRegistry) RegisterHost(h Host) error {
	ns := h.Namespace()
	if !engine.ValidIdent(ns) {
		return errors.InvalidInput(errors.PhaseRegister, "invalid namespace "+strconv.Quote(ns))
	}

	rv := reflect.ValueOf(h)
	rt := rv.Type()
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() || method.Name == "Namespace" {
			continue
		}
		if err := r.RegisterFunc(ns, method.Name, rv.Method(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// Names returns the registered functions as module.name, sorted.
func (r *HostRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for module, funcs := range r.funcs {
		for name := range funcs {
			out = append(out, module+"."+name)
		}
	}
	slices.Sort(out)
	return out
}

// modules builds one host module value per namespace.
func (r *HostRegistry) modules() map[string]*starlarkstruct.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*starlarkstruct.Module, len(r.funcs))
	for module, funcs := range r.funcs {
		members := make(starlark.StringDict, len(funcs))
		for name, fn := range funcs {
			members[name] = builtin(module+"."+name, fn)
		}
		out[module] = &starlarkstruct.Module{Name: module, Members: members}
	}
	return out
}

func builtin(name string, fn HostFunc) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return invoke(thread, name, fn, args, kwargs)
	})
}

// invoke runs a host function under a nested token and translates its
// outcome for the interpreter. Exactly one of the returned error and the
// pending exception survives: a pending exception is raised when fn
// returns ErrPending, chained under any other error fn returns, and a
// success with an exception still pending is fatal.
func invoke(thread *starlark.Thread, name string, fn HostFunc, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	att, _ := thread.Local(attachmentLocal).(*attachment)
	if att == nil || att.top() == nil {
		return nil, &errors.HostException{
			Type:    errors.ExcRuntime,
			Message: name + " called outside an attachment",
		}
	}
	i := att.interp
	tok := att.push(att.top().Context(), false)
	i.nested.Add(1)
	defer tok.Release()

	res, err := fn(tok, Args{tok: tok, name: name, pos: args, kwargs: kwargs})
	if err := tok.settle(name, err); err != nil {
		return nil, engine.Exception(err, i.id)
	}

	hv, err := tok.toHost(res)
	if err != nil {
		return nil, engine.Exception(err, i.id)
	}
	return hv, nil
}

// adapt turns fn into a HostFunc.
func adapt(name string, fn any) (HostFunc, error) {
	switch f := fn.(type) {
	case HostFunc:
		return f, nil
	case func(*Token, Args) (any, error):
		return f, nil
	}

	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, errors.New(errors.PhaseRegister, errors.KindTypeMismatch).
			GoType(typeString(fn)).
			Detail("handler must be a function").
			Build()
	}
	ft := rv.Type()
	if ft.IsVariadic() {
		return nil, errors.Unsupported(errors.PhaseRegister, "variadic host function "+ft.String())
	}

	first := 0
	if ft.NumIn() > 0 && ft.In(0) == tokenType {
		first = 1
	}
	params := make([]reflect.Type, 0, ft.NumIn()-first)
	for j := first; j < ft.NumIn(); j++ {
		params = append(params, ft.In(j))
	}

	var hasValue, hasErr bool
	switch ft.NumOut() {
	case 0:
	case 1:
		hasErr = ft.Out(0) == errorType
		hasValue = !hasErr
	case 2:
		if ft.Out(1) != errorType {
			return nil, errors.New(errors.PhaseRegister, errors.KindTypeMismatch).
				GoType(ft.String()).
				Detail("second result must be error").
				Build()
		}
		hasValue, hasErr = true, true
	default:
		return nil, errors.New(errors.PhaseRegister, errors.KindTypeMismatch).
			GoType(ft.String()).
			Detail("at most two results").
			Build()
	}

	return func(tok *Token, args Args) (any, error) {
		if len(args.kwargs) > 0 {
			return nil, &errors.HostException{
				Type:    errors.ExcType,
				Message: name + ": unexpected keyword arguments",
			}
		}
		if args.Len() != len(params) {
			return nil, &errors.HostException{
				Type: errors.ExcType,
				Message: name + ": got " + strconv.Itoa(args.Len()) +
					" arguments, want " + strconv.Itoa(len(params)),
			}
		}

		in := make([]reflect.Value, 0, ft.NumIn())
		if first == 1 {
			in = append(in, reflect.ValueOf(tok))
		}
		for j, pt := range params {
			p := reflect.New(pt)
			if err := args.Decode(j, p.Interface()); err != nil {
				return nil, err
			}
			in = append(in, p.Elem())
		}

		out := rv.Call(in)
		var res any
		if hasValue {
			res = out[0].Interface()
		}
		if hasErr {
			if e := out[len(out)-1]; !e.IsNil() {
				return nil, e.Interface().(error)
			}
		}
		return res, nil
	}, nil
}

func typeString(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}

// Args are the arguments of a host function call.
type Args struct {
	tok    *Token
	name   string
	pos    starlark.Tuple
	kwargs []starlark.Tuple
}

// Name returns the qualified name of the called function.
func (a Args) Name() string { return a.name }

// Len returns the number of positional arguments.
func (a Args) Len() int { return len(a.pos) }

// At returns the i-th positional argument.
func (a Args) At(i int) Borrowed { return a.tok.borrow(a.pos[i]) }

// Kwarg returns the named keyword argument.
func (a Args) Kwarg(name string) (Borrowed, bool) {
	for _, kv := range a.kwargs {
		if string(kv[0].(starlark.String)) == name {
			return a.tok.borrow(kv[1]), true
		}
	}
	return Borrowed{}, false
}

// Kwargs returns the keyword argument names in sorted order.
func (a Args) Kwargs() []string {
	names := make(map[string]struct{}, len(a.kwargs))
	for _, kv := range a.kwargs {
		names[string(kv[0].(starlark.String))] = struct{}{}
	}
	return slices.Sorted(maps.Keys(names))
}

// Decode converts the i-th positional argument into the value out points
// to.
func (a Args) Decode(i int, out any) error {
	if i < 0 || i >= len(a.pos) {
		return &errors.HostException{
			Type:    errors.ExcType,
			Message: a.name + ": missing argument " + strconv.Itoa(i),
		}
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.NilPointer(errors.PhaseDecode, nil, typeString(out))
	}
	return a.tok.att.decoder().DecodeValue(a.pos[i], rv.Elem(), []string{"arg" + strconv.Itoa(i)})
}

// Unpack binds the arguments with starlark.UnpackArgs conventions.
func (a Args) Unpack(pairs ...any) error {
	return starlark.UnpackArgs(a.name, a.pos, a.kwargs, pairs...)
}
