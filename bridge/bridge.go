package bridge

import (
	"context"

	"go.uber.org/zap"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/errors"
	"github.com/wippyai/engine-bridge/loader"
)

// Bridge ties a loaded engine module to one session.
//
// A Bridge whose module failed to load is disabled: it keeps answering
// locally (Start fails with not_running, previews are empty, sends fail
// with not_running) so the host can carry on without an engine.
type Bridge struct {
	api     *loader.EngineAPI
	session *Session
	loadErr error
	log     *zap.Logger
}

// Open loads the engine at path and prepares a session. On load failure
// it returns a disabled Bridge together with the load error.
func Open(ctx context.Context, opener enginebridge.Opener, path string, opts ...Option) (*Bridge, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = Logger()
	}

	loaderOpts := append([]loader.Option{loader.WithLogger(log)}, o.loaderOpts...)
	api, err := loader.Load(ctx, opener, path, loaderOpts...)
	o.metrics.RecordLoad(string(errors.KindOf(err)))
	if err != nil {
		log.Warn("engine unavailable, bridge disabled", zap.String("engine", path), zap.Error(err))
		s := newSession(nil, o)
		s.unavailable = err
		return &Bridge{session: s, loadErr: err, log: log}, err
	}
	return &Bridge{api: api, session: newSession(api, o), log: log}, nil
}

// New wraps an already loaded module.
func New(api *loader.EngineAPI, opts ...Option) *Bridge {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = Logger()
	}
	return &Bridge{api: api, session: newSession(api, o), log: log}
}

// Enabled reports whether an engine module is loaded.
func (b *Bridge) Enabled() bool {
	return b.api != nil
}

// LoadErr returns the error that disabled the bridge, if any.
func (b *Bridge) LoadErr() error {
	return b.loadErr
}

// API returns the loaded module, or nil when disabled.
func (b *Bridge) API() *loader.EngineAPI {
	return b.api
}

func (b *Bridge) Session() *Session {
	return b.session
}

func (b *Bridge) Transmitter() *Transmitter {
	return b.session.Transmitter()
}

func (b *Bridge) GL() *GLBinder {
	return b.session.GL()
}

func (b *Bridge) Preview() *PreviewGenerator {
	return b.session.Preview()
}

func (b *Bridge) Inbound() *Inbound {
	return b.session.Inbound()
}

// Start starts the engine session.
func (b *Bridge) Start(ctx context.Context) error {
	return b.session.Start(ctx)
}

// Close cleans up a running session, waits for queued events to reach
// the handler, and unloads the module. It must not be called from the
// inbound handler.
func (b *Bridge) Close(ctx context.Context) error {
	var err error
	if b.session.State() == StateRunning {
		err = b.session.Cleanup(ctx)
	}
	b.session.Inbound().Close()
	if b.api != nil {
		if cerr := b.api.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
