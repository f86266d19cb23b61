package enginetest

import (
	"context"
	"sync"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/abi"
	"github.com/wippyai/engine-bridge/errors"
)

// Call is one recorded entry point invocation.
type Call struct {
	Symbol enginebridge.Symbol
	Handle enginebridge.Handle
}

// Instance is the fake engine's view of one started engine.
type Instance struct {
	Resolver enginebridge.ProcResolver
	callback enginebridge.UIMessageFunc
	Frames   [][]byte
	Tokens   enginebridge.ContextTokens
	// Barrier is the current barrier depth.
	Barrier int
	Ticks   int
}

// Library is an in-process engine double. Exported fields configure it
// and must be set before the library is shared.
type Library struct {
	// Version is returned by ProtocolVersion.
	Version uint32
	// VersionErr fails ProtocolVersion when set.
	VersionErr error
	// Missing names entry points left out of Exports.
	Missing []enginebridge.Symbol
	// Preview is returned by GeneratePreview.
	Preview abi.PreviewInfo
	// PreviewFunc overrides GeneratePreview. It runs without the library
	// lock held.
	PreviewFunc func(ctx context.Context, h enginebridge.Handle) (abi.PreviewInfo, error)
	// RejectFrame fails SendIPC for frames it returns true for.
	RejectFrame func(frame []byte) bool
	// EchoFrames emits each accepted frame back as a to-net event.
	EchoFrames bool
	// ResolveNames are looked up through the resolver on SetupGLContext.
	ResolveNames []string

	instances map[enginebridge.Handle]*Instance
	resolved  map[string]uint64
	calls     []Call
	next      enginebridge.Handle
	mu        sync.Mutex
	closed    bool
}

var _ enginebridge.Library = (*Library)(nil)

// NewLibrary returns a fake speaking the current protocol.
func NewLibrary() *Library {
	return &Library{
		Version:   enginebridge.ProtocolVersion,
		instances: make(map[enginebridge.Handle]*Instance),
		resolved:  make(map[string]uint64),
	}
}

func (l *Library) record(sym enginebridge.Symbol, h enginebridge.Handle) {
	l.calls = append(l.calls, Call{Symbol: sym, Handle: h})
}

// Calls returns a copy of the call log.
func (l *Library) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Call, len(l.calls))
	copy(out, l.calls)
	return out
}

// Count returns how many times sym was called.
func (l *Library) Count(sym enginebridge.Symbol) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		if c.Symbol == sym {
			n++
		}
	}
	return n
}

// Instance returns a snapshot of the instance state for h.
func (l *Library) Instance(h enginebridge.Handle) (Instance, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inst, ok := l.instances[h]
	if !ok {
		return Instance{}, false
	}
	out := *inst
	out.Frames = append([][]byte(nil), inst.Frames...)
	return out, true
}

// Live returns the number of started, not cleaned up, instances.
func (l *Library) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.instances)
}

// Resolved returns the address the resolver gave for name on the last
// SetupGLContext.
func (l *Library) Resolved(name string) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	addr, ok := l.resolved[name]
	return addr, ok
}

// Closed reports whether Close was called.
func (l *Library) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Emit delivers an engine event through the callback registered for h.
// It reports false if h has no callback.
func (l *Library) Emit(h enginebridge.Handle, mt abi.MessageType, payload []byte) bool {
	l.mu.Lock()
	inst, ok := l.instances[h]
	var fn enginebridge.UIMessageFunc
	if ok {
		fn = inst.callback
	}
	l.mu.Unlock()

	if fn == nil {
		return false
	}
	fn(mt, append([]byte(nil), payload...))
	return true
}

func (l *Library) Exports() []enginebridge.Symbol {
	var out []enginebridge.Symbol
	for _, s := range enginebridge.RequiredSymbols {
		if !enginebridge.HasSymbol(l.Missing, s) {
			out = append(out, s)
		}
	}
	return out
}

func (l *Library) ProtocolVersion(_ context.Context) (uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record(enginebridge.SymProtocolVersion, 0)
	if l.VersionErr != nil {
		return 0, l.VersionErr
	}
	return l.Version, nil
}

func (l *Library) StartEngine(_ context.Context) (enginebridge.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	h := l.next
	l.record(enginebridge.SymStartEngine, h)
	if l.instances == nil {
		l.instances = make(map[enginebridge.Handle]*Instance)
	}
	l.instances[h] = &Instance{}
	return h, nil
}

// lookup records the call and resolves h. Callers hold l.mu.
func (l *Library) lookup(sym enginebridge.Symbol, phase errors.Phase, h enginebridge.Handle) (*Instance, error) {
	l.record(sym, h)
	inst, ok := l.instances[h]
	if !ok {
		return nil, errors.NotRunning(phase, string(sym))
	}
	return inst, nil
}

func (l *Library) Cleanup(_ context.Context, h enginebridge.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.lookup(enginebridge.SymCleanup, errors.PhaseSession, h); err != nil {
		return err
	}
	delete(l.instances, h)
	return nil
}

func (l *Library) GeneratePreview(ctx context.Context, h enginebridge.Handle) (abi.PreviewInfo, error) {
	l.mu.Lock()
	_, err := l.lookup(enginebridge.SymGeneratePreview, errors.PhasePreview, h)
	preview, fn := l.Preview, l.PreviewFunc
	l.mu.Unlock()

	if err != nil {
		return abi.PreviewInfo{}, err
	}
	if fn != nil {
		return fn(ctx, h)
	}
	return preview, nil
}

func (l *Library) SendIPC(_ context.Context, h enginebridge.Handle, frame []byte) error {
	l.mu.Lock()
	inst, err := l.lookup(enginebridge.SymSendIPC, errors.PhaseIPC, h)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	if l.RejectFrame != nil && l.RejectFrame(frame) {
		l.mu.Unlock()
		return errors.New(errors.PhaseIPC, errors.KindFrameRejected).
			Symbol(string(enginebridge.SymSendIPC)).
			Detail("rejected by fake engine").
			Build()
	}
	cp := append([]byte(nil), frame...)
	inst.Frames = append(inst.Frames, cp)
	fn := inst.callback
	echo := l.EchoFrames
	l.mu.Unlock()

	if echo && fn != nil {
		fn(abi.MessageToNet, append([]byte(nil), cp...))
	}
	return nil
}

func (l *Library) SetEngineBarrier(_ context.Context, h enginebridge.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	inst, err := l.lookup(enginebridge.SymSetEngineBarrier, errors.PhaseIPC, h)
	if err != nil {
		return err
	}
	inst.Barrier++
	return nil
}

func (l *Library) RemoveEngineBarrier(_ context.Context, h enginebridge.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	inst, err := l.lookup(enginebridge.SymRemoveEngineBarrier, errors.PhaseIPC, h)
	if err != nil {
		return err
	}
	inst.Barrier--
	return nil
}

func (l *Library) SetupGLContext(_ context.Context, h enginebridge.Handle, tokens enginebridge.ContextTokens, resolver enginebridge.ProcResolver) error {
	l.mu.Lock()
	inst, err := l.lookup(enginebridge.SymSetupGLContext, errors.PhaseGL, h)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	inst.Tokens = tokens
	inst.Resolver = resolver
	names := l.ResolveNames
	l.mu.Unlock()

	if resolver == nil {
		return nil
	}
	for _, name := range names {
		addr := resolver.ProcAddress(name)
		l.mu.Lock()
		l.resolved[name] = addr
		l.mu.Unlock()
	}
	return nil
}

func (l *Library) RegisterUIMessagesCallback(_ context.Context, h enginebridge.Handle, fn enginebridge.UIMessageFunc) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	inst, err := l.lookup(enginebridge.SymRegisterUIMessages, errors.PhaseInbound, h)
	if err != nil {
		return err
	}
	inst.callback = fn
	return nil
}

func (l *Library) UpdateMousePosition(_ context.Context, h enginebridge.Handle, _, _, _, _ int32) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.lookup(enginebridge.SymUpdateMousePosition, errors.PhaseSession, h); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Library) ResizeWindow(_ context.Context, h enginebridge.Handle, _, _ uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.lookup(enginebridge.SymResizeWindow, errors.PhaseSession, h)
	return err
}

func (l *Library) GameTick(_ context.Context, h enginebridge.Handle, _ uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	inst, err := l.lookup(enginebridge.SymGameTick, errors.PhaseSession, h)
	if err != nil {
		return err
	}
	inst.Ticks++
	return nil
}

func (l *Library) Close(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Opener serves fake libraries by path. Unknown paths fail with
// module_not_found.
type Opener struct {
	Libraries map[string]*Library
}

var _ enginebridge.Opener = (*Opener)(nil)

// NewOpener serves lib at path.
func NewOpener(path string, lib *Library) *Opener {
	return &Opener{Libraries: map[string]*Library{path: lib}}
}

func (o *Opener) Open(_ context.Context, path string) (enginebridge.Library, error) {
	lib, ok := o.Libraries[path]
	if !ok {
		return nil, errors.ModuleNotFound(path, nil)
	}
	return lib, nil
}
