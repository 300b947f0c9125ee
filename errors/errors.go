// Package errors provides the structured error type raised by every
// component of the managed runtime core.
package errors

import (
	"fmt"
	"strings"
)

// Phase identifies which component raised an Error.
type Phase string

const (
	PhaseTypeSystem Phase = "typesys" // type resolution, layout, vtable/interface-map build
	PhaseLoad       Phase = "load"    // assembly loading, token resolution
	PhaseJIT        Phase = "jit"     // bytecode-to-native compilation
	PhaseGC         Phase = "gc"      // allocation, collection
	PhaseEH         Phase = "eh"      // exception dispatch
	PhaseSched      Phase = "sched"  // thread lifecycle, scheduling
)

// Kind is the abstract failure category, matching spec.md section 7.
type Kind string

const (
	KindNullReference     Kind = "null_reference"
	KindIndexOutOfRange   Kind = "index_out_of_range"
	KindInvalidCast       Kind = "invalid_cast"
	KindArrayTypeMismatch Kind = "array_type_mismatch"
	KindOverflow          Kind = "overflow"
	KindDivideByZero      Kind = "divide_by_zero"
	KindOutOfMemory       Kind = "out_of_memory"
	KindStackOverflow     Kind = "stack_overflow"
	KindTypeLoadFailed    Kind = "type_load_failed"
	KindMissingMember     Kind = "missing_member"
	KindUnhandled         Kind = "unhandled_exception"
	KindThreadInterrupted Kind = "thread_interrupted"
	KindPanic             Kind = "panic"
)

// Error is the structured error type used throughout the core. A managed
// exception carries one of these; a Kind of KindPanic means the core's own
// invariants were violated rather than anything attributable to the
// workload (spec.md section 7's halt-vs-raise boundary).
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	// TypeName is the TD/MD name involved, when applicable (e.g. the
	// catch type an InvalidCast failed against).
	TypeName string
	// Path records nested context, e.g. ["Module", "MethodA", "bb3"].
	Path []string
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.TypeName != "" {
		b.WriteString(": ")
		b.WriteString(e.TypeName)
	}

	if e.Detail != "" {
		if e.TypeName != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap allows errors.Is / errors.As to see through to the cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, &errors.Error{Kind: KindNullReference}) style
// checks without comparing every field.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func newErr(phase Phase, kind Kind, detail string) *Error {
	return &Error{Phase: phase, Kind: kind, Detail: detail}
}

// NullReference builds the exception raised by a JIT-emitted null check
// or a virtual/interface dispatch on a null receiver.
func NullReference(phase Phase, detail string) *Error {
	return newErr(phase, KindNullReference, detail)
}

// IndexOutOfRange builds the exception raised by a JIT-emitted bounds check.
func IndexOutOfRange(detail string) *Error {
	return newErr(PhaseJIT, KindIndexOutOfRange, detail)
}

// InvalidCast builds the exception raised when IsAssignableTo fails for a
// castclass.
func InvalidCast(srcType, dstType string) *Error {
	return &Error{Phase: PhaseJIT, Kind: KindInvalidCast, TypeName: dstType,
		Detail: fmt.Sprintf("cannot cast %s to %s", srcType, dstType)}
}

// ArrayTypeMismatch builds the exception raised by a covariant reference
// array store whose runtime element type check fails.
func ArrayTypeMismatch(elemType, valueType string) *Error {
	return &Error{Phase: PhaseJIT, Kind: KindArrayTypeMismatch, TypeName: elemType,
		Detail: fmt.Sprintf("cannot store %s into array of %s", valueType, elemType)}
}

// Overflow builds the exception raised by an overflow-checked arithmetic
// instruction, including signed INT_MIN / -1.
func Overflow(detail string) *Error {
	return newErr(PhaseJIT, KindOverflow, detail)
}

// DivideByZero builds the exception raised by integer division by zero.
func DivideByZero() *Error {
	return newErr(PhaseJIT, KindDivideByZero, "integer division by zero")
}

// OutOfMemory builds the exception raised by the GC after a failed
// collection. Callers should prefer a preallocated instance at the call
// site to avoid recursive allocation while already out of memory.
func OutOfMemory(detail string) *Error {
	return newErr(PhaseGC, KindOutOfMemory, detail)
}

// StackOverflow builds the exception raised by a guard-page fault.
func StackOverflow() *Error {
	return newErr(PhaseSched, KindStackOverflow, "guard page hit")
}

// TypeLoadFailed builds the exception raised when a base class, interface,
// or field type cannot be resolved.
func TypeLoadFailed(typeName, detail string) *Error {
	return &Error{Phase: PhaseTypeSystem, Kind: KindTypeLoadFailed, TypeName: typeName, Detail: detail}
}

// MissingMember builds the exception raised when a token resolves to no
// member of the expected kind.
func MissingMember(owner, member string) *Error {
	return &Error{Phase: PhaseLoad, Kind: KindMissingMember, TypeName: owner,
		Detail: fmt.Sprintf("missing member %q", member)}
}

// ThreadInterrupted builds the exception raised at a thread's next
// safepoint after its cancellation flag fires (spec.md section 5
// "Cancellation").
func ThreadInterrupted() *Error {
	return newErr(PhaseSched, KindThreadInterrupted, "thread cancellation observed at safepoint")
}

// Unhandled wraps an exception that reached the root of a thread's call
// stack without a matching handler (spec.md section 4.E pass 1 failure).
func Unhandled(cause *Error) *Error {
	return &Error{Phase: PhaseEH, Kind: KindUnhandled, Cause: cause,
		Detail: "no handler found while unwinding to thread root"}
}

// Panic builds a core-invariant-violation failure. Unlike every other
// constructor in this file, a Panic is never delivered through the
// exception handler (section 4.E) — the caller halts.
func Panic(phase Phase, detail string) *Error {
	return newErr(phase, KindPanic, detail)
}
