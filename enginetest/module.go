package enginetest

import (
	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/abi"
	"github.com/wippyai/engine-bridge/internal/wasmgen"
)

const (
	// ProcName is the GPU symbol the module engine resolves from
	// setup_current_gl_context.
	ProcName = "glClear"

	// PreviewMagic is the first little-endian word of every preview the
	// module engine generates. The second word is the engine rep.
	PreviewMagic uint32 = 0x48575056

	procNameAddr = 16
	heapBase     = 1024
)

type moduleConfig struct {
	omit    map[string]bool
	broken  map[string]bool
	version uint32
}

// ModuleOption customizes the generated engine.
type ModuleOption func(*moduleConfig)

// WithVersion sets the value protocol_version returns.
func WithVersion(v uint32) ModuleOption {
	return func(c *moduleConfig) { c.version = v }
}

// WithoutExport leaves the named exports out. cabi_realloc may be named.
func WithoutExport(names ...string) ModuleOption {
	return func(c *moduleConfig) {
		for _, n := range names {
			c.omit[n] = true
		}
	}
}

// WithBrokenSignature exports the named symbols as () -> ().
func WithBrokenSignature(names ...string) ModuleOption {
	return func(c *moduleConfig) {
		for _, n := range names {
			c.broken[n] = true
		}
	}
}

// Module returns a wasm engine binary. The engine:
//
//   - numbers instances from 1
//   - echoes each send_ipc frame back as a to-net event and rejects
//     empty frames with status 1
//   - emits game-finished from every game_tick
//   - resolves ProcName through hw_get_proc_address on GL setup
//   - reports mouse movement as handled
func Module(opts ...ModuleOption) []byte {
	cfg := &moduleConfig{
		version: enginebridge.ProtocolVersion,
		omit:    make(map[string]bool),
		broken:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	i32 := wasmgen.I32
	m := wasmgen.New()
	uiMessage := m.ImportFunc("env", "hw_ui_message", []wasmgen.ValType{i32, i32, i32, i32}, nil)
	getProc := m.ImportFunc("env", "hw_get_proc_address", []wasmgen.ValType{i32}, []wasmgen.ValType{wasmgen.I64})

	m.Memory(2)
	m.ExportMemory("memory")
	gHeap := m.Global(i32, heapBase)
	gCtx := m.Global(i32, 0)
	gInst := m.Global(i32, 0)

	name := append([]byte{byte(len(ProcName))}, ProcName...)
	m.Data(procNameAddr, name)

	params := func(n int) []wasmgen.ValType {
		p := make([]wasmgen.ValType, n)
		for i := range p {
			p[i] = i32
		}
		return p
	}
	ret := []wasmgen.ValType{i32}

	define := func(sym string, nparams int, results []wasmgen.ValType, body *wasmgen.Code) {
		if cfg.omit[sym] {
			return
		}
		if cfg.broken[sym] {
			m.ExportFunc(sym, m.Func(nil, nil, nil, nil))
			return
		}
		m.ExportFunc(sym, m.Func(params(nparams), results, nil, body))
	}

	define(string(enginebridge.SymProtocolVersion), 0, ret,
		wasmgen.NewCode().I32Const(int32(cfg.version)))

	define(string(enginebridge.SymStartEngine), 0, ret,
		wasmgen.NewCode().
			GlobalGet(gInst).I32Const(1).I32Add().GlobalSet(gInst).
			GlobalGet(gInst))

	define(string(enginebridge.SymCleanup), 1, nil, nil)

	define(string(enginebridge.SymGeneratePreview), 2, nil,
		wasmgen.NewCode().
			LocalGet(1).I32Const(int32(PreviewMagic)).I32Store(0).
			LocalGet(1).LocalGet(0).I32Store(4))

	define(string(enginebridge.SymSendIPC), 3, ret,
		wasmgen.NewCode().
			GlobalGet(gCtx).I32Const(int32(abi.MessageToNet)).LocalGet(1).LocalGet(2).Call(uiMessage).
			LocalGet(2).I32Eqz())

	define(string(enginebridge.SymSetEngineBarrier), 1, nil, nil)
	define(string(enginebridge.SymRemoveEngineBarrier), 1, nil, nil)

	define(string(enginebridge.SymSetupGLContext), 3, nil,
		wasmgen.NewCode().I32Const(procNameAddr).Call(getProc).Drop())

	define(string(enginebridge.SymRegisterUIMessages), 2, nil,
		wasmgen.NewCode().LocalGet(1).GlobalSet(gCtx))

	define(string(enginebridge.SymUpdateMousePosition), 5, ret,
		wasmgen.NewCode().I32Const(1))

	define(string(enginebridge.SymResizeWindow), 3, nil, nil)

	define(string(enginebridge.SymGameTick), 2, nil,
		wasmgen.NewCode().
			GlobalGet(gCtx).I32Const(int32(abi.MessageGameFinished)).I32Const(0).I32Const(0).Call(uiMessage))

	// Bump allocator; frees are no-ops.
	define("cabi_realloc", 4, ret,
		wasmgen.NewCode().
			GlobalGet(gHeap).
			GlobalGet(gHeap).LocalGet(3).I32Add().I32Const(7).I32Add().I32Const(-8).I32And().GlobalSet(gHeap))

	return m.Encode()
}
