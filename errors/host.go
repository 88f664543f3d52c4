package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// HostException is a host interpreter exception captured as a local value.
// Exactly one representation of an exception is live at a time: once an
// exception is fetched into a HostException the interpreter no longer holds it
// as pending, and restoring it hands ownership back.
type HostException struct {
	// Origin is the local error this exception was raised from, if any.
	Origin error
	// Cause is the exception that was being handled when this one was raised.
	Cause     *HostException
	Type      string
	Message   string
	Traceback string
	// Interpreter is the identity of the sub-interpreter that raised it.
	Interpreter uint64
}

// Error implements the error interface
func (e *HostException) Error() string {
	if e.Message == "" {
		return e.Type
	}
	return e.Type + ": " + e.Message
}

// Unwrap returns the cause exception and the originating local error, so
// errors.Is and errors.As see both.
func (e *HostException) Unwrap() []error {
	var errs []error
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	if e.Origin != nil {
		errs = append(errs, e.Origin)
	}
	return errs
}

// Is matches another HostException with the same type name and message.
func (e *HostException) Is(target error) bool {
	t, ok := target.(*HostException)
	if !ok {
		return false
	}
	return e.Type == t.Type && (t.Message == "" || e.Message == t.Message)
}

// Chain returns the exception followed by its causes, outermost first.
func (e *HostException) Chain() []*HostException {
	var out []*HostException
	for cur := e; cur != nil; cur = cur.Cause {
		out = append(out, cur)
	}
	return out
}

// Format renders the exception with its cause chain and traceback.
func (e *HostException) Format() string {
	var b strings.Builder
	for i, ex := range e.Chain() {
		if i > 0 {
			b.WriteString("\ncaused by: ")
		}
		b.WriteString(ex.Error())
		if ex.Traceback != "" {
			b.WriteByte('\n')
			b.WriteString(strings.TrimRight(ex.Traceback, "\n"))
		}
	}
	return b.String()
}

// Host exception type names used when a local error is raised into the host.
const (
	ExcRuntime      = "RuntimeError"
	ExcType         = "TypeError"
	ExcValue        = "ValueError"
	ExcOverflow     = "OverflowError"
	ExcAttribute    = "AttributeError"
	ExcIndex        = "IndexError"
	ExcKey          = "KeyError"
	ExcUnicode      = "UnicodeDecodeError"
	ExcNotSupported = "NotImplementedError"
	ExcFail         = "Error"
)

// HostTypeFor picks the host exception type name for a local error.
func HostTypeFor(err error) string {
	var he *HostException
	if stderrors.As(err, &he) {
		return he.Type
	}
	switch KindOf(err) {
	case KindTypeMismatch, KindNilPointer:
		return ExcType
	case KindOverflow:
		return ExcOverflow
	case KindFieldMissing, KindFieldUnknown:
		return ExcAttribute
	case KindOutOfBounds, KindLengthMismatch:
		return ExcIndex
	case KindNotFound:
		return ExcKey
	case KindInvalidUTF8:
		return ExcUnicode
	case KindInvalidEnum, KindInvalidVariant, KindInvalidData, KindInvalidInput:
		return ExcValue
	case KindUnsupported:
		return ExcNotSupported
	default:
		return ExcRuntime
	}
}

// FromLocal converts a local error chain into a host exception chain. Each
// wrapped error becomes the cause of its wrapper. An existing HostException is
// returned unchanged.
func FromLocal(err error, interp uint64) *HostException {
	if err == nil {
		return nil
	}
	if he, ok := err.(*HostException); ok {
		return he
	}
	exc := &HostException{
		Origin:      err,
		Type:        HostTypeFor(err),
		Message:     LocalMessage(err),
		Interpreter: interp,
	}
	if inner := stderrors.Unwrap(err); inner != nil {
		exc.Cause = FromLocal(inner, interp)
	}
	return exc
}

// LocalMessage returns the message of err without the text of its wrapped
// cause, which the exception chain carries separately.
func LocalMessage(err error) string {
	if e, ok := err.(*Error); ok && e.Cause != nil {
		c := *e
		c.Cause = nil
		return c.Error()
	}
	msg := err.Error()
	if inner := stderrors.Unwrap(err); inner != nil {
		msg = strings.TrimSuffix(msg, ": "+inner.Error())
	}
	return msg
}

// Fatal conditions. These indicate a violated invariant upstream and are
// raised with panic, never returned.

// AttachmentFailure reports an attach against a finalized or unavailable
// interpreter.
func AttachmentFailure(interp uint64, detail string) *Error {
	return &Error{
		Phase:  PhaseAttach,
		Kind:   KindAttachment,
		Detail: fmt.Sprintf("interpreter %d: %s", interp, detail),
		Value:  interp,
	}
}

// CrossInterpreterViolation reports a handle used under a token of another
// sub-interpreter.
func CrossInterpreterViolation(handleInterp, tokenInterp uint64) *Error {
	return &Error{
		Phase:  PhaseAttach,
		Kind:   KindCrossInterpreter,
		Detail: fmt.Sprintf("handle of interpreter %d used under token of interpreter %d", handleInterp, tokenInterp),
		Value:  handleInterp,
	}
}

// PendingExceptionDropped reports a success result produced while a host
// exception was still pending.
func PendingExceptionDropped(op string, pending *HostException) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindPendingException,
		Detail: fmt.Sprintf("%s returned success with pending %s", op, pending.Error()),
		Cause:  pending,
	}
}

// TokenMisuse reports use of a released token or out-of-order release.
func TokenMisuse(detail string) *Error {
	return &Error{
		Phase:  PhaseAttach,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}
