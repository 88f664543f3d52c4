// Package errors provides structured error types for the hostbridge library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: field path, Go/host type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
//		Path("user", "age").
//		GoType("int32").
//		HostType("string").
//		Detail("cannot convert string to integer").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Overflow(errors.PhaseDecode, path, v, "int32")
//	err := errors.OutOfBounds(errors.PhaseDecode, path, 10, 5)
//
// Exceptions raised inside the host interpreter are carried as *HostException,
// which keeps the exception type name, message, traceback and cause chain.
// FromLocal turns a local error chain into the exception chain raised into the
// host when a host function fails.
//
// AttachmentFailure, CrossInterpreterViolation and PendingExceptionDropped
// describe violated usage invariants. The runtime raises them with panic.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
