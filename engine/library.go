package engine

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/abi"
	"github.com/wippyai/engine-bridge/errors"
	"github.com/wippyai/engine-bridge/handle"
)

// previewAlign matches the alignment of the engine's preview structure.
const previewAlign = 8

// instanceState is the host side of one running engine instance.
type instanceState struct {
	callback enginebridge.UIMessageFunc
	resolver enginebridge.ProcResolver
}

// Drop releases host references so late engine events go nowhere.
func (s *instanceState) Drop() {
	s.callback = nil
	s.resolver = nil
}

type handleKey struct{}

// Library is an engine module instantiated on its own wazero runtime.
type Library struct {
	runtime wazero.Runtime
	module  api.Module
	memory  api.Memory
	realloc api.Function
	funcs   map[enginebridge.Symbol]api.Function
	// ipcStatus is set when send_ipc returns a status word.
	ipcStatus bool
	handles   *handle.Table
	path      string
	exports   []enginebridge.Symbol
	mu        sync.Mutex
	closed    bool
}

var _ enginebridge.Library = (*Library)(nil)

// LoadBytes compiles and instantiates an engine module from its binary.
// Exports with an unexpected signature are treated as absent; the module
// must still provide memory and cabi_realloc.
func LoadBytes(ctx context.Context, wasm []byte, cfg *Config) (*Library, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.InterruptOnCancel {
			runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)
		}
	}
	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	lib := &Library{
		runtime: r,
		handles: handle.NewTable(),
		funcs:   make(map[enginebridge.Symbol]api.Function, len(signatures)),
	}
	if cfg != nil && cfg.Observer != nil {
		lib.handles.Subscribe(cfg.Observer)
	}

	fail := func(err error) (*Library, error) {
		_ = r.Close(ctx)
		return nil, err
	}

	if cfg != nil && cfg.EnableWASI {
		if err := instantiateWASI(ctx, r); err != nil {
			return fail(errors.Instantiation(err))
		}
	}

	if err := lib.instantiateHost(ctx, cfg.hostModule()); err != nil {
		return fail(errors.Instantiation(err))
	}

	compiled, err := r.CompileModule(ctx, wasm)
	if err != nil {
		return fail(errors.New(errors.PhaseLoad, errors.KindInstantiation).
			Detail("compile engine module").
			Cause(err).
			Build())
	}

	modCfg := wazero.NewModuleConfig().
		WithName("engine").
		WithStartFunctions("_initialize")
	mod, err := r.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return fail(errors.Instantiation(err))
	}
	lib.module = mod

	if err := lib.bindExports(); err != nil {
		return fail(err)
	}

	Logger().Debug("engine module instantiated",
		zap.Int("exports", len(lib.exports)),
		zap.Uint32("memory_pages", lib.memory.Size()/65536))
	return lib, nil
}

func (l *Library) instantiateHost(ctx context.Context, name string) error {
	i32 := api.ValueTypeI32
	_, err := l.runtime.NewHostModuleBuilder(name).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(l.uiMessage), []api.ValueType{i32, i32, i32, i32}, nil).
		WithParameterNames("context", "type", "ptr", "len").
		Export(importUIMessage).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(l.getProcAddress), []api.ValueType{i32}, []api.ValueType{api.ValueTypeI64}).
		WithParameterNames("name").
		Export(importGetProcAddress).
		Instantiate(ctx)
	return err
}

func (l *Library) bindExports() error {
	var missing []string

	l.memory = l.module.Memory()
	if l.memory == nil {
		missing = append(missing, symMemory)
	}

	defs := l.module.ExportedFunctionDefinitions()
	if def, ok := defs[symRealloc]; ok && signatures[symRealloc].matches(def) {
		l.realloc = l.module.ExportedFunction(symRealloc)
	} else {
		missing = append(missing, symRealloc)
	}

	if len(missing) > 0 {
		return errors.NewMissingSymbolsError("", missing)
	}

	for _, sym := range enginebridge.RequiredSymbols {
		def, ok := defs[string(sym)]
		if !ok {
			continue
		}
		if !signatures[sym].matches(def) {
			Logger().Debug("engine export has unexpected signature",
				zap.String("symbol", string(sym)),
				zap.Int("params", len(def.ParamTypes())),
				zap.Int("results", len(def.ResultTypes())))
			continue
		}
		l.funcs[sym] = l.module.ExportedFunction(string(sym))
		l.exports = append(l.exports, sym)
		if sym == enginebridge.SymSendIPC {
			l.ipcStatus = len(def.ResultTypes()) == 1
		}
	}
	return nil
}

// Path returns the file the module was loaded from, if any.
func (l *Library) Path() string {
	return l.path
}

// Exports lists the entry points with a usable signature.
func (l *Library) Exports() []enginebridge.Symbol {
	out := make([]enginebridge.Symbol, len(l.exports))
	copy(out, l.exports)
	return out
}

// Handles returns the number of live engine instances.
func (l *Library) Handles() int {
	return l.handles.Len()
}

func (l *Library) ProtocolVersion(ctx context.Context) (uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.call(ctx, enginebridge.SymProtocolVersion)
	if err != nil {
		return 0, err
	}
	return api.DecodeU32(res[0]), nil
}

func (l *Library) StartEngine(ctx context.Context) (enginebridge.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.call(ctx, enginebridge.SymStartEngine)
	if err != nil {
		return 0, err
	}
	rep := api.DecodeU32(res[0])
	if rep == 0 {
		return 0, errors.New(errors.PhaseSession, errors.KindEngineFault).
			Symbol(string(enginebridge.SymStartEngine)).
			Detail("engine returned no instance").
			Build()
	}

	h, err := l.handles.Insert(rep, &instanceState{})
	if err != nil {
		return 0, errors.Wrap(errors.PhaseSession, errors.KindInvalidState, err, "library closed")
	}
	Logger().Debug("engine instance started", zap.Uint32("handle", uint32(h)), zap.Uint32("rep", rep))
	return h, nil
}

// Cleanup destroys the instance. The handle is released even when the
// engine call fails.
func (l *Library) Cleanup(ctx context.Context, h enginebridge.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rep, _, err := l.instance(h, enginebridge.SymCleanup)
	if err != nil {
		return err
	}
	_, callErr := l.call(l.withHandle(ctx, h), enginebridge.SymCleanup, api.EncodeU32(rep))
	l.handles.Remove(h)
	Logger().Debug("engine instance cleaned up", zap.Uint32("handle", uint32(h)))
	return callErr
}

func (l *Library) GeneratePreview(ctx context.Context, h enginebridge.Handle) (abi.PreviewInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var info abi.PreviewInfo
	rep, _, err := l.instance(h, enginebridge.SymGeneratePreview)
	if err != nil {
		return info, err
	}

	ptr, err := l.alloc(ctx, abi.PreviewInfoSize, previewAlign)
	if err != nil {
		return info, err
	}
	defer l.free(ctx, ptr, abi.PreviewInfoSize, previewAlign)

	if !l.memory.Write(ptr, make([]byte, abi.PreviewInfoSize)) {
		return info, errors.OutOfBounds(errors.PhasePreview, ptr, abi.PreviewInfoSize)
	}
	if _, err := l.call(l.withHandle(ctx, h), enginebridge.SymGeneratePreview, api.EncodeU32(rep), api.EncodeU32(ptr)); err != nil {
		return info, err
	}

	raw, ok := l.memory.Read(ptr, abi.PreviewInfoSize)
	if !ok {
		return info, errors.OutOfBounds(errors.PhasePreview, ptr, abi.PreviewInfoSize)
	}
	return abi.PreviewInfoFromBytes(raw), nil
}

func (l *Library) SendIPC(ctx context.Context, h enginebridge.Handle, frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rep, _, err := l.instance(h, enginebridge.SymSendIPC)
	if err != nil {
		return err
	}

	size := uint32(len(frame))
	var ptr uint32
	if size > 0 {
		ptr, err = l.alloc(ctx, size, 1)
		if err != nil {
			return err
		}
		defer l.free(ctx, ptr, size, 1)
		if !l.memory.Write(ptr, frame) {
			return errors.OutOfBounds(errors.PhaseIPC, ptr, size)
		}
	}

	res, err := l.call(l.withHandle(ctx, h), enginebridge.SymSendIPC,
		api.EncodeU32(rep), api.EncodeU32(ptr), api.EncodeU32(size))
	if err != nil {
		return err
	}
	if l.ipcStatus {
		if status := api.DecodeI32(res[0]); status != 0 {
			return errors.New(errors.PhaseIPC, errors.KindFrameRejected).
				Symbol(string(enginebridge.SymSendIPC)).
				Value(status).
				Detail("engine status %d", status).
				Build()
		}
	}
	return nil
}

func (l *Library) SetEngineBarrier(ctx context.Context, h enginebridge.Handle) error {
	return l.callHandle(ctx, h, enginebridge.SymSetEngineBarrier)
}

func (l *Library) RemoveEngineBarrier(ctx context.Context, h enginebridge.Handle) error {
	return l.callHandle(ctx, h, enginebridge.SymRemoveEngineBarrier)
}

// SetupGLContext records resolver for the instance and hands the tokens
// to the engine. The engine may query hw_get_proc_address during this
// call or any later call on the same instance.
func (l *Library) SetupGLContext(ctx context.Context, h enginebridge.Handle, tokens enginebridge.ContextTokens, resolver enginebridge.ProcResolver) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rep, st, err := l.instance(h, enginebridge.SymSetupGLContext)
	if err != nil {
		return err
	}
	st.resolver = resolver
	_, err = l.call(l.withHandle(ctx, h), enginebridge.SymSetupGLContext,
		api.EncodeU32(rep), api.EncodeU32(tokens[0]), api.EncodeU32(tokens[1]))
	return err
}

// RegisterUIMessagesCallback installs fn and passes the handle to the
// engine as the callback context.
func (l *Library) RegisterUIMessagesCallback(ctx context.Context, h enginebridge.Handle, fn enginebridge.UIMessageFunc) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rep, st, err := l.instance(h, enginebridge.SymRegisterUIMessages)
	if err != nil {
		return err
	}
	st.callback = fn
	_, err = l.call(l.withHandle(ctx, h), enginebridge.SymRegisterUIMessages,
		api.EncodeU32(rep), api.EncodeU32(uint32(h)))
	return err
}

func (l *Library) UpdateMousePosition(ctx context.Context, h enginebridge.Handle, centerX, centerY, x, y int32) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rep, _, err := l.instance(h, enginebridge.SymUpdateMousePosition)
	if err != nil {
		return false, err
	}
	res, err := l.call(l.withHandle(ctx, h), enginebridge.SymUpdateMousePosition,
		api.EncodeU32(rep), api.EncodeI32(centerX), api.EncodeI32(centerY), api.EncodeI32(x), api.EncodeI32(y))
	if err != nil {
		return false, err
	}
	return api.DecodeU32(res[0]) != 0, nil
}

func (l *Library) ResizeWindow(ctx context.Context, h enginebridge.Handle, width, height uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rep, _, err := l.instance(h, enginebridge.SymResizeWindow)
	if err != nil {
		return err
	}
	_, err = l.call(l.withHandle(ctx, h), enginebridge.SymResizeWindow,
		api.EncodeU32(rep), api.EncodeU32(width), api.EncodeU32(height))
	return err
}

func (l *Library) GameTick(ctx context.Context, h enginebridge.Handle, delta uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rep, _, err := l.instance(h, enginebridge.SymGameTick)
	if err != nil {
		return err
	}
	_, err = l.call(l.withHandle(ctx, h), enginebridge.SymGameTick, api.EncodeU32(rep), api.EncodeU32(delta))
	return err
}

// Close drops every live instance and releases the runtime.
func (l *Library) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	l.handles.Each(func(h enginebridge.Handle, rep uint32, _ any) bool {
		Logger().Warn("closing engine module with live instance",
			zap.Uint32("handle", uint32(h)), zap.Uint32("rep", rep))
		return true
	})
	_ = l.handles.Close()
	return l.runtime.Close(ctx)
}

func (l *Library) callHandle(ctx context.Context, h enginebridge.Handle, sym enginebridge.Symbol) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rep, _, err := l.instance(h, sym)
	if err != nil {
		return err
	}
	_, err = l.call(l.withHandle(ctx, h), sym, api.EncodeU32(rep))
	return err
}

// instance resolves h. Callers hold l.mu.
func (l *Library) instance(h enginebridge.Handle, sym enginebridge.Symbol) (uint32, *instanceState, error) {
	v, ok := l.handles.Get(h)
	if !ok {
		return 0, nil, errors.NotRunning(phaseOf(sym), string(sym))
	}
	rep, _ := l.handles.Rep(h)
	return rep, v.(*instanceState), nil
}

func (l *Library) withHandle(ctx context.Context, h enginebridge.Handle) context.Context {
	return context.WithValue(ctx, handleKey{}, h)
}

// call invokes an export. Callers hold l.mu.
func (l *Library) call(ctx context.Context, sym enginebridge.Symbol, params ...uint64) ([]uint64, error) {
	if l.closed {
		return nil, errors.New(phaseOf(sym), errors.KindInvalidState).
			Symbol(string(sym)).
			Detail("engine module closed").
			Build()
	}
	fn := l.funcs[sym]
	if fn == nil {
		return nil, errors.New(phaseOf(sym), errors.KindSymbolMissing).
			Symbol(string(sym)).
			Build()
	}
	res, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, errors.EngineFault(phaseOf(sym), string(sym), err)
	}
	return res, nil
}

func (l *Library) alloc(ctx context.Context, size, align uint32) (uint32, error) {
	res, err := l.realloc.Call(ctx, 0, 0, api.EncodeU32(align), api.EncodeU32(size))
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseBackend, size, align, err)
	}
	ptr := api.DecodeU32(res[0])
	if ptr == 0 {
		return 0, errors.AllocationFailed(errors.PhaseBackend, size, align, nil)
	}
	return ptr, nil
}

func (l *Library) free(ctx context.Context, ptr, size, align uint32) {
	if _, err := l.realloc.Call(ctx, api.EncodeU32(ptr), api.EncodeU32(size), api.EncodeU32(align), 0); err != nil {
		Logger().Debug("engine free failed", zap.Uint32("ptr", ptr), zap.Error(err))
	}
}

// uiMessage implements hw_ui_message. It runs inside an engine call with
// l.mu held.
func (l *Library) uiMessage(_ context.Context, mod api.Module, stack []uint64) {
	h := enginebridge.Handle(api.DecodeU32(stack[0]))
	mt := abi.MessageType(api.DecodeU32(stack[1]))
	ptr := api.DecodeU32(stack[2])
	size := api.DecodeU32(stack[3])

	v, ok := l.handles.Get(h)
	if !ok {
		Logger().Debug("engine event for unknown context", zap.Uint32("context", uint32(h)))
		return
	}
	st := v.(*instanceState)
	if st.callback == nil {
		return
	}

	var payload []byte
	if size > 0 {
		view, ok := mod.Memory().Read(ptr, size)
		if !ok {
			Logger().Warn("engine event payload out of bounds",
				zap.Uint32("ptr", ptr), zap.Uint32("len", size))
			return
		}
		payload = make([]byte, size)
		copy(payload, view)
	}
	st.callback(mt, payload)
}

// getProcAddress implements hw_get_proc_address. The name is a String255
// in engine memory.
func (l *Library) getProcAddress(ctx context.Context, mod api.Module, stack []uint64) {
	ptr := api.DecodeU32(stack[0])
	stack[0] = 0

	h, _ := ctx.Value(handleKey{}).(enginebridge.Handle)
	v, ok := l.handles.Get(h)
	if !ok {
		return
	}
	st := v.(*instanceState)
	if st.resolver == nil {
		return
	}

	mem := mod.Memory()
	n, ok := mem.ReadByte(ptr)
	if !ok {
		return
	}
	raw, ok := mem.Read(ptr, 1+uint32(n))
	if !ok {
		return
	}
	name, _, err := abi.DecodeString255(raw)
	if err != nil {
		return
	}
	stack[0] = st.resolver.ProcAddress(name.String())
}

func phaseOf(sym enginebridge.Symbol) errors.Phase {
	switch sym {
	case enginebridge.SymProtocolVersion:
		return errors.PhaseLoad
	case enginebridge.SymStartEngine, enginebridge.SymCleanup,
		enginebridge.SymUpdateMousePosition, enginebridge.SymResizeWindow, enginebridge.SymGameTick:
		return errors.PhaseSession
	case enginebridge.SymGeneratePreview:
		return errors.PhasePreview
	case enginebridge.SymSendIPC, enginebridge.SymSetEngineBarrier, enginebridge.SymRemoveEngineBarrier:
		return errors.PhaseIPC
	case enginebridge.SymSetupGLContext:
		return errors.PhaseGL
	case enginebridge.SymRegisterUIMessages:
		return errors.PhaseInbound
	}
	return errors.PhaseBackend
}
