package engine

import (
	stderrors "errors"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/wippyai/hostbridge/errors"
)

// failPrefix is the message prefix of the fail builtin.
const failPrefix = "fail: "

// Exception types produced only by the interpreter.
const (
	ExcSyntax       = "SyntaxError"
	ExcZeroDivision = "ZeroDivisionError"
	ExcCancelled    = "CancelledError"
)

// Exception converts an error returned by the interpreter into a host
// exception. Exceptions raised by Go callbacks (wrapped in EvalError by the
// interpreter) keep their type and gain the traceback; errors produced by
// the interpreter itself are classified from their message.
func Exception(err error, interp uint64) *errors.HostException {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case *errors.HostException:
		if e.Interpreter == 0 {
			c := *e
			c.Interpreter = interp
			return &c
		}
		return e
	case *starlark.EvalError:
		exc := fromEvalError(e, interp)
		debugf("exception %s from %s", exc.Type, e.Msg)
		return exc
	case syntax.Error:
		return &errors.HostException{Origin: err, Type: ExcSyntax, Message: e.Error(), Interpreter: interp}
	case resolve.ErrorList:
		return &errors.HostException{Origin: err, Type: ExcSyntax, Message: e.Error(), Interpreter: interp}
	}

	exc := &errors.HostException{
		Origin:      err,
		Type:        errors.HostTypeFor(err),
		Message:     errors.LocalMessage(err),
		Interpreter: interp,
	}
	if inner := stderrors.Unwrap(err); inner != nil {
		exc.Cause = Exception(inner, interp)
	}
	return exc
}

func fromEvalError(e *starlark.EvalError, interp uint64) *errors.HostException {
	var exc errors.HostException
	if cause := e.Unwrap(); cause != nil && !isInterpreterError(cause) {
		exc = *Exception(cause, interp)
	} else {
		exc = classify(e.Msg)
		exc.Interpreter = interp
		exc.Origin = e
	}
	if exc.Traceback == "" {
		exc.Traceback = e.Backtrace()
	}
	return &exc
}

// isInterpreterError reports whether err was produced by the interpreter
// itself rather than by a Go callback. The interpreter's own errors are
// plain errors; callbacks raise structured ones.
func isInterpreterError(err error) bool {
	var he *errors.HostException
	if stderrors.As(err, &he) {
		return false
	}
	var se *errors.Error
	if stderrors.As(err, &se) {
		return false
	}
	var ee *starlark.EvalError
	return !stderrors.As(err, &ee)
}

// messageTypes maps fragments of interpreter messages to exception types.
// Order matters: the first match wins.
var messageTypes = []struct {
	fragment string
	typ      string
}{
	{"not in dict", errors.ExcKey},
	{"out of range", errors.ExcIndex},
	{"division by zero", ExcZeroDivision},
	{"modulo by zero", ExcZeroDivision},
	{"field or method", errors.ExcAttribute},
	{"has no .", errors.ExcAttribute},
	{"too large", errors.ExcOverflow},
	{"unsupported", errors.ExcType},
	{"unhashable", errors.ExcType},
	{"non-function", errors.ExcType},
	{"got ", errors.ExcType},
	{"cancelled", ExcCancelled},
}

func classify(msg string) errors.HostException {
	if rest, ok := strings.CutPrefix(msg, failPrefix); ok {
		return errors.HostException{Type: errors.ExcFail, Message: rest}
	}
	for _, m := range messageTypes {
		if strings.Contains(msg, m.fragment) {
			return errors.HostException{Type: m.typ, Message: msg}
		}
	}
	return errors.HostException{Type: errors.ExcFail, Message: msg}
}

// ValueException converts an error returned directly by a value operation
// (attribute lookup, indexing, hashing, assignment) rather than by a call.
// Such errors come from the interpreter and are classified by message.
func ValueException(err error, interp uint64) *errors.HostException {
	if err == nil {
		return nil
	}
	if !isInterpreterError(err) {
		return Exception(err, interp)
	}
	exc := classify(err.Error())
	exc.Origin = err
	exc.Interpreter = interp
	return &exc
}
