package loader

import (
	"context"
	"sync"

	"go.uber.org/zap"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/abi"
	"github.com/wippyai/engine-bridge/errors"
)

// EngineAPI is a loaded, version-checked engine module. It is the only
// path from the bridge to the engine. After Close every call fails with
// not_running.
type EngineAPI struct {
	lib     enginebridge.Library
	log     *zap.Logger
	path    string
	exports []enginebridge.Symbol
	mu      sync.RWMutex
	version uint32
	closed  bool
}

// Load opens the module at path through opener and validates it.
func Load(ctx context.Context, opener enginebridge.Opener, path string, opts ...Option) (*EngineAPI, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = Logger()
	}
	log = log.With(zap.String("engine", path))

	lib, err := opener.Open(ctx, path)
	if err != nil {
		if errors.KindOf(err) == "" {
			err = errors.ModuleNotFound(path, err)
		}
		log.Debug("engine module open failed", zap.Error(err))
		return nil, err
	}

	fail := func(err error) (*EngineAPI, error) {
		if cerr := lib.Close(ctx); cerr != nil {
			log.Debug("engine module close failed", zap.Error(cerr))
		}
		log.Warn("engine module rejected", zap.Error(err))
		return nil, err
	}

	exports := lib.Exports()
	if !enginebridge.HasSymbol(exports, enginebridge.SymProtocolVersion) {
		return fail(errors.VersionUnavailable(nil))
	}

	var missing []string
	for _, sym := range enginebridge.RequiredSymbols {
		if !enginebridge.HasSymbol(exports, sym) {
			missing = append(missing, string(sym))
		}
	}
	if len(missing) > 0 {
		return fail(errors.NewMissingSymbolsError(path, missing))
	}

	version, err := lib.ProtocolVersion(ctx)
	if err != nil {
		return fail(errors.VersionUnavailable(err))
	}
	if version != o.expectedVersion {
		return fail(errors.VersionMismatch(o.expectedVersion, version))
	}

	log.Info("engine module loaded", zap.Uint32("protocol_version", version))

	return &EngineAPI{
		lib:     lib,
		log:     log,
		path:    path,
		exports: exports,
		version: version,
	}, nil
}

// Version returns the protocol version the engine reported.
func (a *EngineAPI) Version() uint32 {
	return a.version
}

// Path returns the module path passed to Load.
func (a *EngineAPI) Path() string {
	return a.path
}

// Exports returns the resolved entry points.
func (a *EngineAPI) Exports() []enginebridge.Symbol {
	out := make([]enginebridge.Symbol, len(a.exports))
	copy(out, a.exports)
	return out
}

// Logger returns the logger bound to this module.
func (a *EngineAPI) Logger() *zap.Logger {
	return a.log
}

// Closed reports whether Close has been called.
func (a *EngineAPI) Closed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.closed
}

// Close unloads the module. It is safe to call more than once.
func (a *EngineAPI) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.log.Debug("engine module unloaded")
	return a.lib.Close(ctx)
}

// acquire holds the read lock for the duration of one engine call so Close
// cannot unload the module underneath it.
func (a *EngineAPI) acquire(phase errors.Phase, sym enginebridge.Symbol) (func(), error) {
	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		return nil, errors.NotRunning(phase, string(sym))
	}
	return a.mu.RUnlock, nil
}

func (a *EngineAPI) StartEngine(ctx context.Context) (enginebridge.Handle, error) {
	release, err := a.acquire(errors.PhaseSession, enginebridge.SymStartEngine)
	if err != nil {
		return 0, err
	}
	defer release()
	return a.lib.StartEngine(ctx)
}

func (a *EngineAPI) Cleanup(ctx context.Context, h enginebridge.Handle) error {
	release, err := a.acquire(errors.PhaseSession, enginebridge.SymCleanup)
	if err != nil {
		return err
	}
	defer release()
	return a.lib.Cleanup(ctx, h)
}

func (a *EngineAPI) GeneratePreview(ctx context.Context, h enginebridge.Handle) (abi.PreviewInfo, error) {
	release, err := a.acquire(errors.PhasePreview, enginebridge.SymGeneratePreview)
	if err != nil {
		return abi.PreviewInfo{}, err
	}
	defer release()
	return a.lib.GeneratePreview(ctx, h)
}

func (a *EngineAPI) SendIPC(ctx context.Context, h enginebridge.Handle, frame []byte) error {
	release, err := a.acquire(errors.PhaseIPC, enginebridge.SymSendIPC)
	if err != nil {
		return err
	}
	defer release()
	return a.lib.SendIPC(ctx, h, frame)
}

func (a *EngineAPI) SetEngineBarrier(ctx context.Context, h enginebridge.Handle) error {
	release, err := a.acquire(errors.PhaseIPC, enginebridge.SymSetEngineBarrier)
	if err != nil {
		return err
	}
	defer release()
	return a.lib.SetEngineBarrier(ctx, h)
}

func (a *EngineAPI) RemoveEngineBarrier(ctx context.Context, h enginebridge.Handle) error {
	release, err := a.acquire(errors.PhaseIPC, enginebridge.SymRemoveEngineBarrier)
	if err != nil {
		return err
	}
	defer release()
	return a.lib.RemoveEngineBarrier(ctx, h)
}

func (a *EngineAPI) SetupGLContext(ctx context.Context, h enginebridge.Handle, tokens enginebridge.ContextTokens, resolver enginebridge.ProcResolver) error {
	release, err := a.acquire(errors.PhaseGL, enginebridge.SymSetupGLContext)
	if err != nil {
		return err
	}
	defer release()
	return a.lib.SetupGLContext(ctx, h, tokens, resolver)
}

func (a *EngineAPI) RegisterUIMessagesCallback(ctx context.Context, h enginebridge.Handle, fn enginebridge.UIMessageFunc) error {
	release, err := a.acquire(errors.PhaseInbound, enginebridge.SymRegisterUIMessages)
	if err != nil {
		return err
	}
	defer release()
	return a.lib.RegisterUIMessagesCallback(ctx, h, fn)
}

func (a *EngineAPI) UpdateMousePosition(ctx context.Context, h enginebridge.Handle, centerX, centerY, x, y int32) (bool, error) {
	release, err := a.acquire(errors.PhaseSession, enginebridge.SymUpdateMousePosition)
	if err != nil {
		return false, err
	}
	defer release()
	return a.lib.UpdateMousePosition(ctx, h, centerX, centerY, x, y)
}

func (a *EngineAPI) ResizeWindow(ctx context.Context, h enginebridge.Handle, width, height uint32) error {
	release, err := a.acquire(errors.PhaseSession, enginebridge.SymResizeWindow)
	if err != nil {
		return err
	}
	defer release()
	return a.lib.ResizeWindow(ctx, h, width, height)
}

func (a *EngineAPI) GameTick(ctx context.Context, h enginebridge.Handle, delta uint32) error {
	release, err := a.acquire(errors.PhaseSession, enginebridge.SymGameTick)
	if err != nil {
		return err
	}
	defer release()
	return a.lib.GameTick(ctx, h, delta)
}
