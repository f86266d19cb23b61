package bridge

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/errors"
)

// Transmitter feeds config frames into the engine's ordered inbound
// queue. Multiple goroutines may use it; each Send is delivered as a
// contiguous run.
type Transmitter struct {
	s       *Session
	limiter *rate.Limiter
	mu      sync.Mutex
}

func newTransmitter(s *Session, limit rate.Limit, burst int) *Transmitter {
	t := &Transmitter{s: s}
	if limit != rate.Inf {
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(limit, burst)
	}
	return t
}

// Send delivers cfg one frame per engine call, in order. If the engine
// rejects frame i, Send stops and returns a frame_rejected error with
// Value i; frames before i stay delivered and nothing is retried.
func (t *Transmitter) Send(ctx context.Context, cfg enginebridge.Config) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.send(ctx, cfg)
}

// SendFrame delivers a single frame.
func (t *Transmitter) SendFrame(ctx context.Context, frame enginebridge.Frame) error {
	return t.Send(ctx, enginebridge.Config{frame})
}

// Barrier inserts a barrier after every frame sent so far.
func (t *Transmitter) Barrier(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.barrier(ctx)
}

// ReleaseBarrier removes the barrier.
func (t *Transmitter) ReleaseBarrier(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.release(ctx)
}

// SendAndSync sends cfg, raises a barrier, runs fn, and releases the
// barrier. fn observes the engine with every frame of cfg processed. No
// other producer can interleave frames until SendAndSync returns. fn may
// be nil.
func (t *Transmitter) SendAndSync(ctx context.Context, cfg enginebridge.Config, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.send(ctx, cfg); err != nil {
		return err
	}
	if err := t.barrier(ctx); err != nil {
		return err
	}

	var ferr error
	if fn != nil {
		ferr = fn(ctx)
	}
	rerr := t.release(ctx)
	if ferr != nil {
		return ferr
	}
	return rerr
}

func (t *Transmitter) send(ctx context.Context, cfg enginebridge.Config) error {
	s := t.s
	for i, frame := range cfg {
		if err := t.wait(ctx); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}

		err := s.call(ctx, errors.PhaseIPC, enginebridge.SymSendIPC, func(h enginebridge.Handle) error {
			return s.eng.SendIPC(ctx, h, frame)
		})
		if err != nil {
			if errors.KindOf(err) == errors.KindNotRunning {
				return err
			}
			if notSent(err) {
				return fmt.Errorf("frame %d: %w", i, err)
			}
			s.metrics.RecordFrame(len(frame), err)
			s.log.Warn("config frame rejected", zap.Int("frame", i), zap.Int("len", len(frame)), zap.Error(err))
			return errors.FrameRejected(i, err)
		}
		s.metrics.RecordFrame(len(frame), nil)
	}
	if len(cfg) > 0 {
		s.log.Debug("config sent", zap.Int("frames", len(cfg)))
	}
	return nil
}

// notSent reports a context error raised before the frame reached the
// engine.
func notSent(err error) bool {
	if errors.KindOf(err) != "" {
		return false
	}
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}

func (t *Transmitter) wait(ctx context.Context) error {
	if t.limiter == nil {
		return nil
	}
	start := time.Now()
	err := t.limiter.Wait(ctx)
	t.s.metrics.RecordRateLimitWait(time.Since(start))
	return err
}

func (t *Transmitter) barrier(ctx context.Context) error {
	s := t.s
	err := s.call(ctx, errors.PhaseIPC, enginebridge.SymSetEngineBarrier, func(h enginebridge.Handle) error {
		return s.eng.SetEngineBarrier(ctx, h)
	})
	if err == nil {
		s.metrics.RecordBarrier()
	}
	return err
}

func (t *Transmitter) release(ctx context.Context) error {
	s := t.s
	return s.call(ctx, errors.PhaseIPC, enginebridge.SymRemoveEngineBarrier, func(h enginebridge.Handle) error {
		return s.eng.RemoveEngineBarrier(ctx, h)
	})
}
