package runtime

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.starlark.net/starlark"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/engine"
	"github.com/wippyai/hostbridge/errors"
)

// Method is a method of a registered type. self is the Go value the host
// object wraps.
type Method func(tok *Token, self any, args Args) (any, error)

// TypeSpec describes a Go type exposed to scripts.
type TypeSpec struct {
	// Name is the host type name, also used for the constructor.
	Name string
	// GoType is the registered Go type. Values of exactly this type are
	// converted through the registration.
	GoType reflect.Type
	// ToHost, if set, builds the host form of a value instead of wrapping it
	// in an Object.
	ToHost func(v any) (starlark.Value, error)
	// FromHost, if set, converts host values that are not Objects of this
	// type.
	FromHost func(v starlark.Value) (any, error)
	// Methods are the attributes of the wrapping Object.
	Methods map[string]Method
	// New, if set, is exposed as a predeclared constructor named Name.
	New HostFunc
}

// Registration is the opaque handle returned by RegisterType.
type Registration struct {
	spec   TypeSpec
	ID     uuid.UUID
	Name   string
	GoType reflect.Type
}

func (r *Registration) toHost(interp *Interpreter, v any) (starlark.Value, error) {
	if r.spec.ToHost != nil {
		return r.spec.ToHost(v)
	}
	return &Object{reg: r, value: v, interp: interp.id}, nil
}

func (r *Registration) fromHost(v starlark.Value, target reflect.Type) (reflect.Value, error) {
	if obj, ok := v.(*Object); ok && obj.reg == r {
		return reflect.ValueOf(obj.value), nil
	}
	if r.spec.FromHost == nil {
		return reflect.Value{}, errors.TypeMismatch(errors.PhaseDecode, nil, target.String(), v.Type())
	}
	gv, err := r.spec.FromHost(v)
	if err != nil {
		return reflect.Value{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			GoType(target.String()).
			HostType(v.Type()).
			Cause(err).
			Build()
	}
	rv := reflect.ValueOf(gv)
	if !rv.IsValid() || !rv.Type().AssignableTo(target) {
		return reflect.Value{}, errors.TypeMismatch(errors.PhaseDecode, nil, target.String(), typeString(gv))
	}
	return rv, nil
}

// TypeRegistry holds the registered types of a runtime.
type TypeRegistry struct {
	byType map[reflect.Type]*Registration
	byName map[string]*Registration
	mu     sync.RWMutex
}

func newTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		byType: make(map[reflect.Type]*Registration),
		byName: make(map[string]*Registration),
	}
}

// Register validates spec and records it.
func (r *TypeRegistry) Register(spec TypeSpec) (*Registration, error) {
	if !engine.ValidIdent(spec.Name) {
		return nil, errors.InvalidInput(errors.PhaseRegister, "invalid type name "+fmt.Sprintf("%q", spec.Name))
	}
	if spec.GoType == nil {
		return nil, errors.InvalidInput(errors.PhaseRegister, "type "+spec.Name+" has no Go type")
	}
	if _, ok := engine.Predeclared()[spec.Name]; ok {
		return nil, errors.Registration("types", spec.Name, fmt.Errorf("shadows builtin %s", spec.Name))
	}
	for name := range spec.Methods {
		if !engine.ValidIdent(name) {
			return nil, errors.Registration(spec.Name, name, fmt.Errorf("invalid method name"))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byType[spec.GoType]; ok {
		return nil, errors.Registration("types", spec.Name,
			fmt.Errorf("%s already registered as %s", spec.GoType, prev.Name))
	}
	if _, ok := r.byName[spec.Name]; ok {
		return nil, errors.Registration("types", spec.Name, fmt.Errorf("name already registered"))
	}

	spec.Methods = maps.Clone(spec.Methods)
	reg := &Registration{spec: spec, ID: uuid.New(), Name: spec.Name, GoType: spec.GoType}
	r.byType[spec.GoType] = reg
	r.byName[spec.Name] = reg
	Logger().Debug("type registered",
		zap.String("name", reg.Name),
		zap.Stringer("go_type", reg.GoType),
		zap.Stringer("id", reg.ID))
	return reg, nil
}

func (r *TypeRegistry) lookup(t reflect.Type) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byType[t]
	return reg, ok
}

// Lookup returns the registration of the named type.
func (r *TypeRegistry) Lookup(name string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byName[name]
	return reg, ok
}

func (r *TypeRegistry) constructors() starlark.StringDict {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(starlark.StringDict)
	for name, reg := range r.byName {
		if reg.spec.New != nil {
			out[name] = builtin(name, reg.spec.New)
		}
	}
	return out
}

// Object is the host value of a registered Go type. Its attributes are the
// type's methods, bound to the wrapped value.
type Object struct {
	reg    *Registration
	value  any
	interp uint64
}

var _ starlark.HasAttrs = (*Object)(nil)

// Value returns the wrapped Go value.
func (o *Object) Value() any { return o.value }

// Registration returns the type the object belongs to.
func (o *Object) Registration() *Registration { return o.reg }

func (o *Object) String() string        { return "<" + o.reg.Name + ">" }
func (o *Object) Type() string          { return o.reg.Name }
func (o *Object) Freeze()               {}
func (o *Object) Truth() starlark.Bool  { return starlark.True }
func (o *Object) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: %s", o.reg.Name) }

func (o *Object) Attr(name string) (starlark.Value, error) {
	m, ok := o.reg.spec.Methods[name]
	if !ok {
		return nil, nil
	}
	qualified := o.reg.Name + "." + name
	return starlark.NewBuiltin(qualified, func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return invoke(thread, qualified, func(tok *Token, a Args) (any, error) {
			if id := tok.att.interp.id; id != o.interp {
				panic(errors.CrossInterpreterViolation(o.interp, id))
			}
			return m(tok, o.value, a)
		}, args, kwargs)
	}), nil
}

func (o *Object) AttrNames() []string {
	return slices.Sorted(maps.Keys(o.reg.spec.Methods))
}
