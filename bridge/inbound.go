package bridge

import (
	"context"
	"sync"

	"go.uber.org/zap"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/abi"
	"github.com/wippyai/engine-bridge/errors"
)

// Handler receives engine events on the dispatcher goroutine.
type Handler func(abi.Message)

// Inbound carries engine events to a handler. The engine callback only
// copies the payload into an unbounded FIFO; a dispatcher goroutine drains
// it in arrival order, so the handler never runs inside an engine call and
// may call back into the session.
//
// Once game-finished has been queued, later events are dropped.
type Inbound struct {
	s       *Session
	handler Handler
	cond    *sync.Cond
	queue   []abi.Message
	done    chan struct{}
	stopped chan struct{}
	dropped int
	mu      sync.Mutex
	doneMu  sync.Once

	registered bool
	started    bool
	closed     bool
	finished   bool
}

func newInbound(s *Session, hint int) *Inbound {
	in := &Inbound{
		s:       s,
		queue:   make([]abi.Message, 0, hint),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	in.cond = sync.NewCond(&in.mu)
	return in
}

// Register installs handler for the session's lifetime. It may be called
// once, on a running session.
func (in *Inbound) Register(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.InvalidInput(errors.PhaseInbound, "nil handler")
	}

	in.mu.Lock()
	if in.registered {
		in.mu.Unlock()
		return errors.InvalidState(errors.PhaseInbound, "register", "registered")
	}
	if in.closed {
		in.mu.Unlock()
		return errors.NotRunning(errors.PhaseInbound, string(enginebridge.SymRegisterUIMessages))
	}
	in.registered = true
	in.handler = handler
	in.mu.Unlock()

	s := in.s
	err := s.call(ctx, errors.PhaseInbound, enginebridge.SymRegisterUIMessages, func(h enginebridge.Handle) error {
		return s.eng.RegisterUIMessagesCallback(ctx, h, in.enqueue)
	})
	if err != nil {
		in.mu.Lock()
		in.registered = false
		in.handler = nil
		in.mu.Unlock()
		return err
	}

	in.mu.Lock()
	if !in.started && !in.closed {
		in.started = true
		go in.dispatch()
	}
	in.mu.Unlock()
	s.log.Debug("inbound handler registered")
	return nil
}

// enqueue is the engine callback. It never blocks on the handler.
func (in *Inbound) enqueue(mt abi.MessageType, payload []byte) {
	msg := abi.Message{Type: mt, Payload: append([]byte(nil), payload...)}

	in.mu.Lock()
	if in.closed || in.finished {
		in.dropped++
		in.mu.Unlock()
		in.s.metrics.RecordInboundDropped()
		in.s.log.Debug("engine event dropped", zap.Stringer("type", mt))
		return
	}
	if mt == abi.MessageGameFinished {
		in.finished = true
	}
	in.queue = append(in.queue, msg)
	depth := len(in.queue)
	in.cond.Signal()
	in.mu.Unlock()

	in.s.metrics.SetInboundQueueDepth(depth)
}

func (in *Inbound) dispatch() {
	defer close(in.stopped)
	for {
		in.mu.Lock()
		for len(in.queue) == 0 && !in.closed {
			in.cond.Wait()
		}
		if len(in.queue) == 0 {
			in.mu.Unlock()
			return
		}
		msg := in.queue[0]
		in.queue[0] = abi.Message{}
		in.queue = in.queue[1:]
		depth := len(in.queue)
		handler := in.handler
		in.mu.Unlock()

		in.s.metrics.SetInboundQueueDepth(depth)
		handler(msg)
		in.s.metrics.RecordInbound(msg.Type.String())

		if msg.Type == abi.MessageGameFinished {
			in.doneMu.Do(func() { close(in.done) })
		}
	}
}

// Done is closed once the game-finished event has been handed to the
// handler.
func (in *Inbound) Done() <-chan struct{} {
	return in.done
}

// Dropped returns how many events arrived after game-finished or close.
func (in *Inbound) Dropped() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.dropped
}

// Pending returns the number of events waiting for the handler.
func (in *Inbound) Pending() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.queue)
}

// stop refuses further events and lets the dispatcher drain and exit.
func (in *Inbound) stop() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return in.started
	}
	in.closed = true
	in.cond.Broadcast()
	return in.started
}

// Close stops accepting events, delivers those already queued, and waits
// for the dispatcher to exit. It must not be called from the handler.
func (in *Inbound) Close() {
	if in.stop() {
		<-in.stopped
	}
}
