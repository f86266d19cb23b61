package enginebridge

import (
	"context"

	"github.com/wippyai/engine-bridge/abi"
)

// ProtocolVersion is the engine protocol this bridge is built against.
// An engine reporting any other value is rejected before any further call.
const ProtocolVersion uint32 = 56

// Symbol names an exported engine entry point.
type Symbol string

const (
	SymProtocolVersion     Symbol = "protocol_version"
	SymStartEngine         Symbol = "start_engine"
	SymCleanup             Symbol = "cleanup"
	SymGeneratePreview     Symbol = "generate_preview"
	SymSendIPC             Symbol = "send_ipc"
	SymSetEngineBarrier    Symbol = "set_engine_barrier"
	SymRemoveEngineBarrier Symbol = "remove_engine_barrier"
	SymSetupGLContext      Symbol = "setup_current_gl_context"
	SymRegisterUIMessages  Symbol = "register_ui_messages_callback"
	SymUpdateMousePosition Symbol = "update_mouse_position"
	SymResizeWindow        Symbol = "resize_window"
	SymGameTick            Symbol = "game_tick"
)

// RequiredSymbols lists every entry point an engine must export.
var RequiredSymbols = []Symbol{
	SymProtocolVersion,
	SymStartEngine,
	SymCleanup,
	SymGeneratePreview,
	SymSendIPC,
	SymSetEngineBarrier,
	SymRemoveEngineBarrier,
	SymSetupGLContext,
	SymRegisterUIMessages,
	SymUpdateMousePosition,
	SymResizeWindow,
	SymGameTick,
}

// Handle identifies one running engine instance. Handle 0 is never valid.
// It is created by exactly one StartEngine and consumed by exactly one
// Cleanup; it is compared for identity only.
type Handle uint32

// Frame is one opaque config command. It is binary safe and carries its
// own length; the bridge never splits or merges frames.
type Frame []byte

// Config is an ordered sequence of frames.
type Config []Frame

// ContextTokens are the two identifiers handed to the engine alongside
// the proc-address resolver when binding a shared GPU context. The host
// owns their meaning; the reference frontend passes zeros.
type ContextTokens [2]uint32

// ProcResolver maps a GPU entry point name to an address. Zero means the
// symbol is unavailable; the engine disables the dependent feature.
type ProcResolver interface {
	ProcAddress(name string) uint64
}

// UIMessageFunc receives engine events. It may be invoked from inside an
// engine call and must only hand the message off, never block or call
// back into the engine.
type UIMessageFunc func(mt abi.MessageType, payload []byte)

// Library is a loaded engine module. Implementations map each method to
// the exported entry point of the same name and perform no state checks
// of their own beyond handle validity; lifecycle rules live in bridge.
type Library interface {
	// Exports reports which entry points the module provides.
	Exports() []Symbol

	ProtocolVersion(ctx context.Context) (uint32, error)
	StartEngine(ctx context.Context) (Handle, error)
	Cleanup(ctx context.Context, h Handle) error
	GeneratePreview(ctx context.Context, h Handle) (abi.PreviewInfo, error)

	// SendIPC delivers one frame. A non-nil error means the engine
	// reported failure for this frame.
	SendIPC(ctx context.Context, h Handle, frame []byte) error
	SetEngineBarrier(ctx context.Context, h Handle) error
	RemoveEngineBarrier(ctx context.Context, h Handle) error

	SetupGLContext(ctx context.Context, h Handle, tokens ContextTokens, resolver ProcResolver) error
	RegisterUIMessagesCallback(ctx context.Context, h Handle, fn UIMessageFunc) error

	UpdateMousePosition(ctx context.Context, h Handle, centerX, centerY, x, y int32) (bool, error)
	ResizeWindow(ctx context.Context, h Handle, width, height uint32) error
	GameTick(ctx context.Context, h Handle, delta uint32) error

	// Close unloads the module.
	Close(ctx context.Context) error
}

// Opener locates and opens engine modules.
type Opener interface {
	Open(ctx context.Context, path string) (Library, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, path string) (Library, error)

func (f OpenerFunc) Open(ctx context.Context, path string) (Library, error) {
	return f(ctx, path)
}

// HasSymbol reports whether exports contains s.
func HasSymbol(exports []Symbol, s Symbol) bool {
	for _, e := range exports {
		if e == s {
			return true
		}
	}
	return false
}
