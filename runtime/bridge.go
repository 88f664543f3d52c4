package runtime

import (
	stderrors "errors"

	"github.com/wippyai/hostbridge/engine"
	"github.com/wippyai/hostbridge/errors"
)

// ErrPending is returned by a host function to raise the exception set with
// Token.Restore.
var ErrPending = stderrors.New("host exception pending")

// Fetch takes the pending host exception, clearing it. It returns nil when
// nothing is pending.
func (t *Token) Fetch() *errors.HostException {
	t.check()
	exc := t.att.pending
	t.att.pending = nil
	return exc
}

// Restore makes err the pending host exception. A local error is
// translated first; its wrapped errors become the exception's causes. If an
// exception is already pending it is kept as the last cause of the new one.
func (t *Token) Restore(err error) {
	t.check()
	if err == nil {
		return
	}
	exc := engine.Exception(err, t.att.interp.id)
	if prev := t.att.pending; prev != nil && prev != exc {
		exc = chain(exc, prev)
	}
	t.att.pending = exc
}

// Pending reports whether a host exception is pending.
func (t *Token) Pending() bool {
	t.check()
	return t.att.pending != nil
}

// Translate converts an error returned by the interpreter into a typed local
// error. Conversion and bridge errors pass through unchanged; everything
// else becomes a *errors.HostException.
func (t *Token) Translate(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*errors.Error); ok {
		return err
	}
	return engine.Exception(err, t.att.interp.id)
}

// settle applies the pending-exception rules to the result of op. With
// nothing pending err is returned as is. Otherwise ErrPending yields the
// pending exception, another error gets it chained as its last cause, and
// success panics. The pending slot is cleared in every case.
func (t *Token) settle(op string, err error) error {
	att := t.att
	pending := att.pending
	switch {
	case pending == nil:
		if stderrors.Is(err, ErrPending) {
			return &errors.HostException{
				Type:        errors.ExcRuntime,
				Message:     op + " returned ErrPending with no exception set",
				Interpreter: att.interp.id,
			}
		}
		return err
	case err == nil:
		att.pending = nil
		panic(errors.PendingExceptionDropped(op, pending))
	case stderrors.Is(err, ErrPending):
		att.pending = nil
		return pending
	default:
		att.pending = nil
		return chain(engine.Exception(err, att.interp.id), pending)
	}
}

// chain copies the cause chain of exc and appends tail as its final cause.
func chain(exc, tail *errors.HostException) *errors.HostException {
	links := exc.Chain()
	copies := make([]errors.HostException, len(links))
	for i, l := range links {
		copies[i] = *l
	}
	for i := range copies {
		if i+1 < len(copies) {
			copies[i].Cause = &copies[i+1]
		} else {
			copies[i].Cause = tail
		}
	}
	return &copies[0]
}
