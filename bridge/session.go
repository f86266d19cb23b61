package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/abi"
	"github.com/wippyai/engine-bridge/errors"
	"github.com/wippyai/engine-bridge/metrics"
)

// Engine is the capability table a session drives. *loader.EngineAPI
// implements it.
type Engine interface {
	StartEngine(ctx context.Context) (enginebridge.Handle, error)
	Cleanup(ctx context.Context, h enginebridge.Handle) error
	GeneratePreview(ctx context.Context, h enginebridge.Handle) (abi.PreviewInfo, error)
	SendIPC(ctx context.Context, h enginebridge.Handle, frame []byte) error
	SetEngineBarrier(ctx context.Context, h enginebridge.Handle) error
	RemoveEngineBarrier(ctx context.Context, h enginebridge.Handle) error
	SetupGLContext(ctx context.Context, h enginebridge.Handle, tokens enginebridge.ContextTokens, resolver enginebridge.ProcResolver) error
	RegisterUIMessagesCallback(ctx context.Context, h enginebridge.Handle, fn enginebridge.UIMessageFunc) error
	UpdateMousePosition(ctx context.Context, h enginebridge.Handle, centerX, centerY, x, y int32) (bool, error)
	ResizeWindow(ctx context.Context, h enginebridge.Handle, width, height uint32) error
	GameTick(ctx context.Context, h enginebridge.Handle, delta uint32) error
}

// State is the session lifecycle position.
type State int32

const (
	StateUninitialized State = iota
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Session owns one engine handle from Start to Cleanup. Every engine call
// goes through the session lock, so calls never overlap and none reaches
// the engine outside the Running state.
type Session struct {
	eng     Engine
	log     *zap.Logger
	metrics *metrics.Collector
	// unavailable is set on sessions of a disabled bridge.
	unavailable error

	transmitter *Transmitter
	gl          *GLBinder
	preview     *PreviewGenerator
	inbound     *Inbound

	id     string
	mu     sync.Mutex
	handle enginebridge.Handle
	state  State
	// running mirrors state == StateRunning for readers that must not wait
	// on an in-flight engine call.
	running atomic.Bool
}

// NewSession returns an Uninitialized session over eng.
func NewSession(eng Engine, opts ...Option) *Session {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newSession(eng, o)
}

func newSession(eng Engine, o options) *Session {
	id := uuid.NewString()
	log := o.logger
	if log == nil {
		log = Logger()
	}

	s := &Session{
		eng:     eng,
		id:      id,
		log:     log.With(zap.String("session", id)),
		metrics: o.metrics,
	}
	s.transmitter = newTransmitter(s, o.rateLimit, o.rateBurst)
	s.gl = &GLBinder{s: s}
	s.preview = &PreviewGenerator{s: s, timeout: o.previewTimeout}
	s.inbound = newInbound(s, o.queueHint)
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transmitter returns the session's config transmitter.
func (s *Session) Transmitter() *Transmitter {
	return s.transmitter
}

// GL returns the session's GPU context binder.
func (s *Session) GL() *GLBinder {
	return s.gl
}

// Preview returns the session's preview generator.
func (s *Session) Preview() *PreviewGenerator {
	return s.preview
}

// Inbound returns the session's inbound message channel.
func (s *Session) Inbound() *Inbound {
	return s.inbound
}

// Start creates the engine instance. It is only valid once, from
// Uninitialized; a failed start leaves the session Uninitialized.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUninitialized {
		return errors.InvalidState(errors.PhaseSession, "start", s.state.String())
	}
	if s.unavailable != nil {
		return errors.New(errors.PhaseSession, errors.KindNotRunning).
			Detail("engine unavailable").
			Cause(s.unavailable).
			Build()
	}

	start := time.Now()
	h, err := s.eng.StartEngine(ctx)
	s.metrics.RecordCall(string(enginebridge.SymStartEngine), time.Since(start), err)
	s.metrics.RecordSessionStart(err)
	if err != nil {
		s.log.Warn("engine start failed", zap.Error(err))
		return err
	}

	s.handle = h
	s.state = StateRunning
	s.running.Store(true)
	s.log.Info("engine session started")
	return nil
}

// Cleanup destroys the engine instance exactly once. The session is
// Terminated afterwards even if the engine reports an error. Calling it
// in any state other than Running fails with not_running and makes no
// engine call.
func (s *Session) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return errors.NotRunning(errors.PhaseSession, "cleanup")
	}

	start := time.Now()
	err := s.eng.Cleanup(ctx, s.handle)
	s.metrics.RecordCall(string(enginebridge.SymCleanup), time.Since(start), err)
	s.metrics.RecordSessionEnd()
	s.handle = 0
	s.state = StateTerminated
	s.running.Store(false)
	s.mu.Unlock()

	s.inbound.stop()
	if err != nil {
		s.log.Warn("engine cleanup failed", zap.Error(err))
		return err
	}
	s.log.Info("engine session terminated")
	return nil
}

// Advance runs the engine simulation for delta milliseconds.
func (s *Session) Advance(ctx context.Context, delta uint32) error {
	return s.call(ctx, errors.PhaseSession, enginebridge.SymGameTick, func(h enginebridge.Handle) error {
		return s.eng.GameTick(ctx, h, delta)
	})
}

// UpdateMousePosition forwards pointer movement. It reports whether the
// engine consumed the update.
func (s *Session) UpdateMousePosition(ctx context.Context, centerX, centerY, x, y int32) (bool, error) {
	var moved bool
	err := s.call(ctx, errors.PhaseSession, enginebridge.SymUpdateMousePosition, func(h enginebridge.Handle) error {
		var err error
		moved, err = s.eng.UpdateMousePosition(ctx, h, centerX, centerY, x, y)
		return err
	})
	return moved, err
}

// Resize tells the engine its drawable size changed.
func (s *Session) Resize(ctx context.Context, width, height uint32) error {
	return s.call(ctx, errors.PhaseSession, enginebridge.SymResizeWindow, func(h enginebridge.Handle) error {
		return s.eng.ResizeWindow(ctx, h, width, height)
	})
}

// call runs fn with the live handle under the session lock.
func (s *Session) call(ctx context.Context, phase errors.Phase, sym enginebridge.Symbol, fn func(enginebridge.Handle) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return errors.NotRunning(phase, string(sym))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	err := fn(s.handle)
	s.metrics.RecordCall(string(sym), time.Since(start), err)
	return err
}

// WithSession starts a session over eng, runs fn, and always cleans up,
// also when fn panics. fn's error takes precedence over a cleanup error.
func WithSession(ctx context.Context, eng Engine, fn func(ctx context.Context, s *Session) error, opts ...Option) (err error) {
	s := NewSession(eng, opts...)
	if err := s.Start(ctx); err != nil {
		return err
	}

	defer func() {
		cerr := s.Cleanup(ctx)
		if err != nil || errors.KindOf(cerr) == errors.KindNotRunning {
			// fn failed, or cleaned up itself.
			return
		}
		err = cerr
	}()
	return fn(ctx, s)
}
