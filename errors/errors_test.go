package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:    PhaseJIT,
				Kind:     KindInvalidCast,
				Path:     []string{"Module", "MethodA", "bb3"},
				TypeName: "System.Widget",
				Detail:   "cannot convert",
			},
			contains: []string{"[jit]", "invalid_cast", "Module.MethodA.bb3", "System.Widget", "cannot convert"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseGC,
				Kind:  KindOutOfMemory,
			},
			contains: []string{"[gc]", "out_of_memory"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseSched,
				Kind:   KindStackOverflow,
				Detail: "guard page hit",
				Cause:  stderrors.New("page fault at 0xdead"),
			},
			contains: []string{"[sched]", "stack_overflow", "guard page hit", "caused by: page fault at 0xdead"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.contains {
				if !strings.Contains(msg, want) {
					t.Errorf("Error() = %q, want substring %q", msg, want)
				}
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	a := NullReference(PhaseJIT, "deref of null field")
	b := NullReference(PhaseEH, "different detail, same kind")
	c := DivideByZero()

	if !stderrors.Is(a, b) {
		t.Errorf("expected errors with the same Kind to match via errors.Is")
	}
	if stderrors.Is(a, c) {
		t.Errorf("expected errors with different Kinds not to match")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := stderrors.New("underlying fault")
	err := &Error{Phase: PhaseGC, Kind: KindOutOfMemory, Cause: cause}

	if stderrors.Unwrap(err) != cause {
		t.Errorf("expected Unwrap to return the original cause")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		kind Kind
	}{
		{"NullReference", NullReference(PhaseJIT, "x"), KindNullReference},
		{"IndexOutOfRange", IndexOutOfRange("x"), KindIndexOutOfRange},
		{"InvalidCast", InvalidCast("A", "B"), KindInvalidCast},
		{"ArrayTypeMismatch", ArrayTypeMismatch("int", "string"), KindArrayTypeMismatch},
		{"Overflow", Overflow("x"), KindOverflow},
		{"DivideByZero", DivideByZero(), KindDivideByZero},
		{"OutOfMemory", OutOfMemory("x"), KindOutOfMemory},
		{"StackOverflow", StackOverflow(), KindStackOverflow},
		{"TypeLoadFailed", TypeLoadFailed("A", "x"), KindTypeLoadFailed},
		{"MissingMember", MissingMember("A", "Foo"), KindMissingMember},
		{"Unhandled", Unhandled(DivideByZero()), KindUnhandled},
		{"Panic", Panic(PhaseGC, "x"), KindPanic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("%s: Kind = %v, want %v", tt.name, tt.err.Kind, tt.kind)
			}
		})
	}
}
