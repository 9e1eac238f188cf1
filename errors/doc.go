// Package errors provides structured error types for the clearvm library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes rich context: the failing opcode, the
// byte offset in the code buffer, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseExecute, errors.KindTypeMismatch).
//		Op("INT_ADD").
//		Offset(42).
//		Detail("operand is not an integer").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.StackUnderflow(op, offset)
//	err := errors.OutOfBounds(op, "constant", 9, 4)
//
// All errors implement the standard error interface and support errors.Is/As.
// The Error() rendering is the one-line diagnostic the VM emits on failure.
package errors
