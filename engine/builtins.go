package engine

import (
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/wippyai/hostbridge/errors"
)

// Predeclared returns the builtins every interpreter starts with:
// throw(type, message) and struct(**kwargs).
func Predeclared() starlark.StringDict {
	return starlark.StringDict{
		"throw":  starlark.NewBuiltin("throw", throw),
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	}
}

// throw raises a host exception of the given type.
func throw(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var typ, msg string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &typ, &msg); err != nil {
		return nil, err
	}
	if !ValidIdent(typ) {
		return nil, &errors.HostException{
			Type:    errors.ExcValue,
			Message: "throw: invalid exception type " + typ,
		}
	}
	return nil, &errors.HostException{Type: typ, Message: msg}
}
