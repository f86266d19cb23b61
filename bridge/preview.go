package bridge

import (
	"context"
	"time"

	"go.uber.org/zap"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/abi"
	"github.com/wippyai/engine-bridge/errors"
)

// PreviewGenerator runs the engine's synchronous preview call.
type PreviewGenerator struct {
	s       *Session
	timeout time.Duration
}

type previewResult struct {
	err  error
	info abi.PreviewInfo
}

// Generate returns a fresh preview from the engine. Without a running
// session it returns the zero PreviewInfo and makes no engine call.
//
// The engine call cannot be cancelled. When the configured timeout or the
// context expires first, Generate returns a timeout error and the call
// finishes in the background; the session lock keeps it from overlapping
// later engine calls.
func (p *PreviewGenerator) Generate(ctx context.Context) (abi.PreviewInfo, error) {
	if !p.s.running.Load() {
		p.s.metrics.RecordPreview("idle", 0)
		return abi.PreviewInfo{}, nil
	}
	if p.timeout <= 0 && ctx.Done() == nil {
		return p.generate(ctx)
	}

	start := time.Now()
	done := make(chan previewResult, 1)
	go func() {
		info, err := p.generate(context.WithoutCancel(ctx))
		done <- previewResult{info: info, err: err}
	}()

	var expired <-chan time.Time
	if p.timeout > 0 {
		timer := time.NewTimer(p.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case r := <-done:
		return r.info, r.err
	case <-expired:
		return p.abandon(start, nil)
	case <-ctx.Done():
		return p.abandon(start, ctx.Err())
	}
}

func (p *PreviewGenerator) abandon(start time.Time, cause error) (abi.PreviewInfo, error) {
	p.s.metrics.RecordPreview("timeout", time.Since(start))
	p.s.log.Warn("preview watchdog expired", zap.Duration("elapsed", time.Since(start)))
	return abi.PreviewInfo{}, errors.Timeout(errors.PhasePreview, "generate preview", cause)
}

func (p *PreviewGenerator) generate(ctx context.Context) (abi.PreviewInfo, error) {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	if s.state != StateRunning {
		s.metrics.RecordPreview("idle", 0)
		return abi.PreviewInfo{}, nil
	}

	info, err := s.eng.GeneratePreview(ctx, s.handle)
	elapsed := time.Since(start)
	s.metrics.RecordCall(string(enginebridge.SymGeneratePreview), elapsed, err)
	if err != nil {
		s.metrics.RecordPreview("error", elapsed)
		return abi.PreviewInfo{}, err
	}
	s.metrics.RecordPreview("success", elapsed)
	return info, nil
}
