// Package errors provides the structured error type raised by the managed
// runtime core.
//
// Errors are categorized by Phase (which component raised it) and Kind (the
// abstract failure category of spec.md section 7). Every failure that
// originates in managed code becomes one of these, delivered through the
// exception handler (package eh); a Kind of KindPanic instead means a core
// invariant broke and the caller should halt, never route it through eh.
//
//	err := errors.IndexOutOfRange("index 4 out of range for length 4")
//	err := errors.TypeLoadFailed("System.Widget", "base class unresolved")
//
// All errors implement the standard error interface and support errors.Is.
package errors
