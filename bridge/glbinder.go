package bridge

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/errors"
)

// NullResolver resolves nothing. Engines treat every GPU entry point as
// unavailable and disable the features that need them.
type NullResolver struct{}

func (NullResolver) ProcAddress(string) uint64 { return 0 }

// ResolverFunc adapts a function to enginebridge.ProcResolver.
type ResolverFunc func(name string) uint64

func (f ResolverFunc) ProcAddress(name string) uint64 { return f(name) }

// MapResolver resolves from a fixed table.
type MapResolver map[string]uint64

func (m MapResolver) ProcAddress(name string) uint64 { return m[name] }

// GLBinder hands a host-created GPU context to the engine.
type GLBinder struct {
	s *Session
}

// Bind calls setup_current_gl_context with tokens and exposes resolver to
// the engine. A nil resolver is replaced with NullResolver.
func (g *GLBinder) Bind(ctx context.Context, tokens enginebridge.ContextTokens, resolver enginebridge.ProcResolver) error {
	s := g.s
	if resolver == nil {
		resolver = NullResolver{}
	}
	logged := &loggingResolver{next: resolver, log: s.log}

	err := s.call(ctx, errors.PhaseGL, enginebridge.SymSetupGLContext, func(h enginebridge.Handle) error {
		return s.eng.SetupGLContext(ctx, h, tokens, logged)
	})
	if err != nil {
		return err
	}
	s.log.Debug("gl context bound",
		zap.Uint32("token0", tokens[0]),
		zap.Uint32("token1", tokens[1]),
		zap.Int64("lookups", logged.lookups()))
	return nil
}

type loggingResolver struct {
	next enginebridge.ProcResolver
	log  *zap.Logger
	n    atomic.Int64
}

func (r *loggingResolver) ProcAddress(name string) uint64 {
	addr := r.next.ProcAddress(name)
	r.n.Add(1)
	if addr == 0 {
		r.log.Debug("gl entry point unavailable", zap.String("name", name))
	}
	return addr
}

func (r *loggingResolver) lookups() int64 {
	return r.n.Load()
}
