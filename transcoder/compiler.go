package transcoder

import (
	"reflect"
	"strings"
	"sync"

	"github.com/wippyai/hostbridge/engine"
	"github.com/wippyai/hostbridge/errors"
)

// Compiler builds and caches struct plans keyed by Go type.
type Compiler struct {
	cache sync.Map // reflect.Type -> *Plan
}

func NewCompiler() *Compiler {
	return &Compiler{}
}

// Compile returns the plan for a struct type.
func (c *Compiler) Compile(goType reflect.Type) (*Plan, error) {
	if goType == nil {
		return nil, errors.New(errors.PhaseEncode, errors.KindNilPointer).
			Detail("Go type cannot be nil").
			Build()
	}
	if goType.Kind() == reflect.Ptr {
		goType = goType.Elem()
	}
	if goType.Kind() != reflect.Struct {
		return nil, errors.TypeMismatch(errors.PhaseEncode, nil, goType.String(), "struct")
	}

	if cached, ok := c.cache.Load(goType); ok {
		return cached.(*Plan), nil
	}

	plan := &Plan{GoType: goType}
	if err := c.collect(plan, goType, nil); err != nil {
		return nil, err
	}

	actual, _ := c.cache.LoadOrStore(goType, plan)
	return actual.(*Plan), nil
}

func (c *Compiler) collect(plan *Plan, goType reflect.Type, index []int) error {
	for i := 0; i < goType.NumField(); i++ {
		field := goType.Field(i)
		if !field.IsExported() {
			continue
		}

		tag := field.Tag.Get("host")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		fieldIndex := append(append([]int{}, index...), i)

		// Untagged embedded structs contribute their fields directly.
		if field.Anonymous && name == "" && field.Type.Kind() == reflect.Struct {
			if err := c.collect(plan, field.Type, fieldIndex); err != nil {
				return err
			}
			continue
		}

		if name == "" {
			name = engine.HostName(field.Name)
		}
		if !engine.ValidIdent(name) {
			return errors.New(errors.PhaseEncode, errors.KindInvalidInput).
				Path(goType.Name(), field.Name).
				Detail("host name %q is not a valid identifier", name).
				Build()
		}
		if _, dup := plan.Lookup(name); dup {
			return errors.New(errors.PhaseEncode, errors.KindInvalidInput).
				Path(goType.Name(), field.Name).
				Detail("duplicate host name %q", name).
				Build()
		}

		pf := PlanField{
			Type:     field.Type,
			Name:     field.Name,
			HostName: name,
			Index:    fieldIndex,
			Optional: field.Type.Kind() == reflect.Ptr,
		}
		for _, opt := range strings.Split(opts, ",") {
			switch opt {
			case "optional":
				pf.Optional = true
			case "omitempty":
				pf.OmitEmpty = true
			}
		}
		plan.Fields = append(plan.Fields, pf)
	}
	return nil
}
