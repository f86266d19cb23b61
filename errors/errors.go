package errors

import (
	"fmt"
	"sort"
	"strings"
)

// Phase indicates where in the bridge the error occurred
type Phase string

const (
	PhaseLoad    Phase = "load"    // module loading and version check
	PhaseSession Phase = "session" // start/cleanup lifecycle
	PhaseIPC     Phase = "ipc"     // config frames and barriers
	PhasePreview Phase = "preview" // preview generation
	PhaseGL      Phase = "gl"      // GPU context handoff
	PhaseInbound Phase = "inbound" // engine-to-host messages
	PhaseCodec   Phase = "codec"   // wire encoding/decoding
	PhaseConfig  Phase = "config"  // bridge configuration
	PhaseBackend Phase = "backend" // module backend plumbing
)

// Kind categorizes the error
type Kind string

const (
	KindModuleNotFound  Kind = "module_not_found"
	KindSymbolMissing   Kind = "symbol_missing"
	KindVersionMismatch Kind = "version_mismatch"
	KindNotRunning      Kind = "not_running"
	KindFrameRejected   Kind = "frame_rejected"
	KindInvalidState    Kind = "invalid_state"
	KindInvalidInput    Kind = "invalid_input"
	KindInvalidData     Kind = "invalid_data"
	KindOutOfBounds     Kind = "out_of_bounds"
	KindAllocation      Kind = "allocation"
	KindInstantiation   Kind = "instantiation"
	KindTimeout         Kind = "timeout"
	KindEngineFault     Kind = "engine_fault"
)

// Sentinels for errors.Is. They match any error with the same Kind,
// regardless of Phase.
var (
	ErrModuleNotFound  = &kindSentinel{KindModuleNotFound}
	ErrSymbolMissing   = &kindSentinel{KindSymbolMissing}
	ErrVersionMismatch = &kindSentinel{KindVersionMismatch}
	ErrNotRunning      = &kindSentinel{KindNotRunning}
	ErrFrameRejected   = &kindSentinel{KindFrameRejected}
	ErrInvalidState    = &kindSentinel{KindInvalidState}
	ErrTimeout         = &kindSentinel{KindTimeout}
)

type kindSentinel struct {
	kind Kind
}

func (s *kindSentinel) Error() string {
	return string(s.kind)
}

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Symbol string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Symbol != "" {
		b.WriteString(" at ")
		b.WriteString(e.Symbol)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// *Error targets match on Phase and Kind; sentinels match on Kind only.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case *Error:
		return e.Phase == t.Phase && e.Kind == t.Kind
	case *kindSentinel:
		return e.Kind == t.kind
	}
	return false
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			return e.Kind
		case *MissingSymbolsError:
			return KindSymbolMissing
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Symbol sets the engine entry point involved
func (b *Builder) Symbol(name string) *Builder {
	b.err.Symbol = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// ModuleNotFound reports a module that could not be located or opened.
func ModuleNotFound(path string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindModuleNotFound,
		Detail: fmt.Sprintf("engine module %q", path),
		Value:  path,
		Cause:  cause,
	}
}

// VersionMismatch reports an engine built against another protocol.
func VersionMismatch(expected, got uint32) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindVersionMismatch,
		Symbol: "protocol_version",
		Detail: fmt.Sprintf("engine reports protocol %d, bridge expects %d", got, expected),
		Value:  got,
	}
}

// VersionUnavailable reports an engine without a usable version query.
func VersionUnavailable(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindVersionMismatch,
		Symbol: "protocol_version",
		Detail: "version query unavailable",
		Cause:  cause,
	}
}

// NotRunning rejects an operation issued without a live engine handle.
func NotRunning(phase Phase, op string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotRunning,
		Detail: fmt.Sprintf("%s: no running engine session", op),
	}
}

// InvalidState reports an illegal lifecycle transition.
func InvalidState(phase Phase, op, state string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidState,
		Detail: fmt.Sprintf("%s not allowed in state %s", op, state),
		Value:  state,
	}
}

// FrameRejected reports a config frame the engine refused.
func FrameRejected(index int, cause error) *Error {
	return &Error{
		Phase:  PhaseIPC,
		Kind:   KindFrameRejected,
		Symbol: "send_ipc",
		Detail: fmt.Sprintf("frame %d rejected", index),
		Value:  index,
		Cause:  cause,
	}
}

// EngineFault wraps a failure raised while executing an engine entry point.
func EngineFault(phase Phase, symbol string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindEngineFault,
		Symbol: symbol,
		Detail: "engine call failed",
		Cause:  cause,
	}
}

// Timeout reports a host-side watchdog expiry.
func Timeout(phase Phase, op string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTimeout,
		Detail: fmt.Sprintf("%s did not return in time", op),
		Cause:  cause,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, offset, length uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("offset %d length %d outside engine memory", offset, length),
		Value:  offset,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: "instantiate engine module",
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingSymbolsError is returned when an engine module lacks required
// entry points.
type MissingSymbolsError struct {
	Path    string
	Symbols []string
}

// NewMissingSymbolsError sorts and records the absent symbols.
func NewMissingSymbolsError(path string, symbols []string) *MissingSymbolsError {
	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)
	return &MissingSymbolsError{Path: path, Symbols: sorted}
}

func (e *MissingSymbolsError) Error() string {
	if len(e.Symbols) == 0 {
		return "[load] symbol_missing: no symbols specified"
	}

	var b strings.Builder
	b.WriteString("[load] symbol_missing: engine module")
	if e.Path != "" {
		fmt.Fprintf(&b, " %q", e.Path)
	}
	fmt.Fprintf(&b, " lacks %d entry point(s):", len(e.Symbols))
	for _, s := range e.Symbols {
		b.WriteString("\n  - ")
		b.WriteString(s)
	}
	return b.String()
}

// Is reports whether target matches this error type
func (e *MissingSymbolsError) Is(target error) bool {
	switch t := target.(type) {
	case *MissingSymbolsError:
		return true
	case *kindSentinel:
		return t.kind == KindSymbolMissing
	case *Error:
		return t.Phase == PhaseLoad && t.Kind == KindSymbolMissing
	}
	return false
}
