package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/abi"
	"github.com/wippyai/engine-bridge/messages"
)

type runOptions struct {
	frames    []string
	says      []string
	ticks     int
	delta     uint32
	preview   bool
	barrier   bool
	waitGame  time.Duration
	configReq bool
}

func newRunCmd(a *app) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [engine.wasm]",
		Short: "Start an engine session, send config frames, tick, and print engine events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.enginePath(args)
			if err != nil {
				return err
			}
			return a.run(cmd, path, o)
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&o.frames, "frame", nil, "message body in hex, framed and sent in order (repeatable)")
	f.StringArrayVar(&o.says, "say", nil, "chat line sent after the raw frames (repeatable)")
	f.BoolVar(&o.configReq, "config-request", false, "append a config request message")
	f.BoolVar(&o.barrier, "barrier", false, "tick only after an engine barrier confirms the frames were processed")
	f.IntVar(&o.ticks, "ticks", 0, "number of game ticks to advance")
	f.Uint32Var(&o.delta, "tick-delta", 16, "milliseconds per tick")
	f.BoolVar(&o.preview, "preview", false, "generate a preview and print it")
	f.DurationVar(&o.waitGame, "wait", 0, "wait this long for game-finished before cleanup")
	return cmd
}

// buildConfig frames the raw bodies first, then the chat lines.
func buildConfig(o *runOptions) (enginebridge.Config, error) {
	var cfg enginebridge.Config
	for _, h := range o.frames {
		body, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("frame %q: %w", h, err)
		}
		frame, err := messages.FrameRaw(body)
		if err != nil {
			return nil, err
		}
		cfg = append(cfg, frame)
	}

	var msgs []messages.Message
	for _, s := range o.says {
		msgs = append(msgs, messages.Say{Text: s})
	}
	if o.configReq {
		msgs = append(msgs, messages.ConfigRequest{})
	}
	rest, err := messages.EncodeAll(msgs...)
	if err != nil {
		return nil, err
	}
	return append(cfg, rest...), nil
}

func (a *app) run(cmd *cobra.Command, path string, o *runOptions) error {
	ctx := cmd.Context()
	cfg, err := buildConfig(o)
	if err != nil {
		return err
	}

	b, err := a.openBridge(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close(ctx) }()

	out := &lockedWriter{w: cmd.OutOrStdout()}
	out.printf("session %s started\n", b.Session().ID())

	err = b.Inbound().Register(ctx, func(m abi.Message) {
		out.printf("event %s\n", describeEvent(m))
	})
	if err != nil {
		return err
	}

	tick := func(ctx context.Context) error {
		for i := 0; i < o.ticks; i++ {
			if err := b.Session().Advance(ctx, o.delta); err != nil {
				return err
			}
		}
		return nil
	}

	if o.barrier {
		// Ticks run once the engine has drained the frames; the barrier
		// keeps other producers out until they finish.
		if err := b.Transmitter().SendAndSync(ctx, cfg, tick); err != nil {
			return err
		}
		out.printf("sent %d frames and synced at a barrier\n", len(cfg))
	} else {
		if len(cfg) > 0 {
			if err := b.Transmitter().Send(ctx, cfg); err != nil {
				return err
			}
			out.printf("sent %d frames\n", len(cfg))
		}
		if err := tick(ctx); err != nil {
			return err
		}
	}

	if o.preview {
		info, err := b.Preview().Generate(ctx)
		if err != nil {
			return err
		}
		out.printf("preview %s\n", hex.EncodeToString(info.Bytes()))
	}

	if o.waitGame > 0 {
		select {
		case <-b.Inbound().Done():
		case <-time.After(o.waitGame):
			out.printf("no game-finished within %s\n", o.waitGame)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := b.Close(ctx); err != nil {
		return err
	}
	out.printf("session %s finished\n", b.Session().ID())
	return nil
}

// lockedWriter serializes output from the dispatcher and command
// goroutines.
type lockedWriter struct {
	w  io.Writer
	mu sync.Mutex
}

func (l *lockedWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format, args...)
}
