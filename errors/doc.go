// Package errors provides structured error types for the engine bridge.
//
// Errors are categorized by Phase (which bridge component raised them) and
// Kind (error category). The Error type carries the engine entry point
// involved, a detail message, the offending value and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseIPC, errors.KindFrameRejected).
//		Symbol("send_ipc").
//		Value(3).
//		Detail("engine queue closed").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.VersionMismatch(expected, got)
//	err := errors.NotRunning(errors.PhasePreview, "generate preview")
//
// The ErrXxx sentinels match on Kind alone, so callers can test for a
// category without caring which component raised it:
//
//	if errors.Is(err, enginerrors.ErrVersionMismatch) { ... }
package errors
