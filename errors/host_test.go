package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestHostException_Error(t *testing.T) {
	tests := []struct {
		exc  *HostException
		want string
	}{
		{&HostException{Type: "ValueError", Message: "bad"}, "ValueError: bad"},
		{&HostException{Type: "KeyError"}, "KeyError"},
	}
	for _, tt := range tests {
		if got := tt.exc.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestHostException_Chain(t *testing.T) {
	root := &HostException{Type: "KeyError", Message: "x"}
	mid := &HostException{Type: "ValueError", Message: "y", Cause: root}
	top := &HostException{Type: "RuntimeError", Message: "z", Cause: mid}

	chain := top.Chain()
	if len(chain) != 3 {
		t.Fatalf("len(Chain()) = %d, want 3", len(chain))
	}
	if chain[0] != top || chain[2] != root {
		t.Error("chain order should be outermost first")
	}
	if !stderrors.Is(top, &HostException{Type: "KeyError"}) {
		t.Error("errors.Is should find KeyError in the cause chain")
	}
	if stderrors.Is(top, &HostException{Type: "KeyError", Message: "other"}) {
		t.Error("errors.Is should compare message when set")
	}

	formatted := top.Format()
	for _, s := range []string{"RuntimeError: z", "caused by: ValueError: y", "caused by: KeyError: x"} {
		if !containsSubstring(formatted, s) {
			t.Errorf("Format() = %q, should contain %q", formatted, s)
		}
	}
}

func TestHostException_UnwrapNil(t *testing.T) {
	e := &HostException{Type: "Error"}
	if len(e.Unwrap()) != 0 {
		t.Error("Unwrap() with no cause or origin should be empty")
	}

	origin := Overflow(PhaseDecode, nil, 1, "int8")
	withOrigin := &HostException{Type: ExcOverflow, Origin: origin}
	var se *Error
	if !stderrors.As(withOrigin, &se) || se != origin {
		t.Error("errors.As should reach the originating local error")
	}
}

func TestHostTypeFor(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{Overflow(PhaseDecode, nil, 1<<40, "int32"), ExcOverflow},
		{TypeMismatch(PhaseDecode, nil, "int", "string"), ExcType},
		{FieldMissing(PhaseDecode, nil, "x"), ExcAttribute},
		{OutOfBounds(PhaseCall, nil, 4, 2), ExcIndex},
		{LengthMismatch(PhaseDecode, nil, 3, 1), ExcIndex},
		{NotFound(PhaseCall, "key", "a"), ExcKey},
		{InvalidUTF8(PhaseDecode, nil, []byte{0xff}), ExcUnicode},
		{InvalidInput(PhaseCall, "no"), ExcValue},
		{Unsupported(PhaseEncode, "chan"), ExcNotSupported},
		{stderrors.New("plain"), ExcRuntime},
		{fmt.Errorf("wrapped: %w", Overflow(PhaseDecode, nil, 1, "uint8")), ExcOverflow},
		{&HostException{Type: "ZeroDivisionError"}, "ZeroDivisionError"},
	}
	for _, tt := range tests {
		if got := HostTypeFor(tt.err); got != tt.want {
			t.Errorf("HostTypeFor(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(fmt.Errorf("ctx: %w", Overflow(PhaseDecode, nil, 1, "int8"))); got != KindOverflow {
		t.Errorf("KindOf() = %v, want %v", got, KindOverflow)
	}
	if got := KindOf(&HostException{Type: "Error", Message: "boom"}); got != KindHostException {
		t.Errorf("KindOf() = %v, want %v", got, KindHostException)
	}
	if got := KindOf(stderrors.New("plain")); got != "" {
		t.Errorf("KindOf() = %v, want empty", got)
	}
	if got := KindOf(nil); got != "" {
		t.Errorf("KindOf(nil) = %v, want empty", got)
	}
}

func TestFromLocal(t *testing.T) {
	inner := Overflow(PhaseDecode, []string{"n"}, 300, "uint8")
	outer := Wrap(PhaseCall, KindInvalidInput, inner, "argument n")

	exc := FromLocal(outer, 7)
	if exc.Type != ExcValue {
		t.Errorf("Type = %q, want %q", exc.Type, ExcValue)
	}
	if exc.Interpreter != 7 {
		t.Errorf("Interpreter = %d, want 7", exc.Interpreter)
	}
	if containsSubstring(exc.Message, "caused by") {
		t.Errorf("Message = %q, cause should be carried by the chain only", exc.Message)
	}
	if exc.Cause == nil || exc.Cause.Type != ExcOverflow {
		t.Fatalf("Cause = %v, want OverflowError", exc.Cause)
	}
	if exc.Origin != error(outer) {
		t.Error("Origin should keep the local error")
	}

	plain := FromLocal(fmt.Errorf("load config: %w", stderrors.New("missing")), 1)
	if plain.Message != "load config" {
		t.Errorf("Message = %q, want %q", plain.Message, "load config")
	}
	if plain.Cause == nil || plain.Cause.Message != "missing" {
		t.Errorf("Cause = %v, want message %q", plain.Cause, "missing")
	}

	existing := &HostException{Type: "KeyError"}
	if FromLocal(existing, 1) != existing {
		t.Error("FromLocal should return an existing HostException unchanged")
	}
	if FromLocal(nil, 1) != nil {
		t.Error("FromLocal(nil) should be nil")
	}
}

func TestFatalConstructors(t *testing.T) {
	cross := CrossInterpreterViolation(1, 2)
	if cross.Kind != KindCrossInterpreter {
		t.Errorf("Kind = %v, want %v", cross.Kind, KindCrossInterpreter)
	}
	if !containsSubstring(cross.Error(), "interpreter 1") || !containsSubstring(cross.Error(), "interpreter 2") {
		t.Errorf("Error() = %q, should name both interpreters", cross.Error())
	}

	att := AttachmentFailure(3, "finalized")
	if att.Kind != KindAttachment || att.Phase != PhaseAttach {
		t.Errorf("got %v/%v", att.Phase, att.Kind)
	}

	pending := &HostException{Type: "ValueError", Message: "x"}
	dropped := PendingExceptionDropped("GetAttr", pending)
	if dropped.Kind != KindPendingException {
		t.Errorf("Kind = %v, want %v", dropped.Kind, KindPendingException)
	}
	if !stderrors.Is(dropped, &HostException{Type: "ValueError"}) {
		t.Error("pending exception should be reachable through the cause chain")
	}
}
