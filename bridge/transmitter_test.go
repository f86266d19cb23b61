package bridge

import (
	"bytes"
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/abi"
	"github.com/wippyai/engine-bridge/enginetest"
	"github.com/wippyai/engine-bridge/errors"
)

func TestSendOrder(t *testing.T) {
	tests := []struct {
		name string
		cfg  enginebridge.Config
	}{
		{"empty", nil},
		{"single", enginebridge.Config{enginebridge.Frame("a")}},
		{"binary", enginebridge.Config{{0x00}, {0xff, 0x00, 0xff}, {}}},
		{"many", func() enginebridge.Config {
			var cfg enginebridge.Config
			for i := 0; i < 100; i++ {
				cfg = append(cfg, enginebridge.Frame{byte(i), byte(i >> 8)})
			}
			return cfg
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := enginetest.NewLibrary()
			b := startFake(t, lib)

			if err := b.Transmitter().Send(context.Background(), tt.cfg); err != nil {
				t.Fatalf("Send: %v", err)
			}

			inst, _ := lib.Instance(1)
			if len(inst.Frames) != len(tt.cfg) {
				t.Fatalf("delivered %d frames, want %d", len(inst.Frames), len(tt.cfg))
			}
			for i := range tt.cfg {
				if !bytes.Equal(inst.Frames[i], tt.cfg[i]) {
					t.Errorf("frame %d = %x, want %x", i, inst.Frames[i], tt.cfg[i])
				}
			}
			if n := lib.Count(enginebridge.SymSendIPC); n != len(tt.cfg) {
				t.Errorf("send_ipc calls = %d, want one per frame", n)
			}
		})
	}
}

func TestSendRejectedFrame(t *testing.T) {
	lib := enginetest.NewLibrary()
	lib.RejectFrame = func(f []byte) bool { return string(f) == "bad" }
	b := startFake(t, lib)

	cfg := enginebridge.Config{enginebridge.Frame("a"), enginebridge.Frame("bad"), enginebridge.Frame("c")}
	err := b.Transmitter().Send(context.Background(), cfg)
	if !stderrors.Is(err, errors.ErrFrameRejected) {
		t.Fatalf("err = %v, want frame_rejected", err)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Value != 1 {
		t.Errorf("rejected index = %v, want 1", e)
	}

	inst, _ := lib.Instance(1)
	if len(inst.Frames) != 1 || string(inst.Frames[0]) != "a" {
		t.Errorf("frames = %q, want [a]", inst.Frames)
	}
	if n := lib.Count(enginebridge.SymSendIPC); n != 2 {
		t.Errorf("send_ipc calls = %d, want 2 (no retry, no continuation)", n)
	}
}

func TestSendDoneContext(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	expired, cancel2 := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel2()

	tests := []struct {
		name string
		ctx  context.Context
		want error
		send func(ctx context.Context, tr *Transmitter) error
	}{
		{"send cancelled", cancelled, context.Canceled, func(ctx context.Context, tr *Transmitter) error {
			return tr.Send(ctx, enginebridge.Config{enginebridge.Frame("a"), enginebridge.Frame("b")})
		}},
		{"send frame expired", expired, context.DeadlineExceeded, func(ctx context.Context, tr *Transmitter) error {
			return tr.SendFrame(ctx, enginebridge.Frame("a"))
		}},
		{"send and sync cancelled", cancelled, context.Canceled, func(ctx context.Context, tr *Transmitter) error {
			return tr.SendAndSync(ctx, enginebridge.Config{enginebridge.Frame("a")}, nil)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := enginetest.NewLibrary()
			b := startFake(t, lib)

			err := tt.send(tt.ctx, b.Transmitter())
			if !stderrors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if kind := errors.KindOf(err); kind == errors.KindFrameRejected {
				t.Errorf("context error reported as %s", kind)
			}
			if n := lib.Count(enginebridge.SymSendIPC); n != 0 {
				t.Errorf("send_ipc calls = %d, want 0", n)
			}
			if n := lib.Count(enginebridge.SymSetEngineBarrier); n != 0 {
				t.Errorf("set_engine_barrier calls = %d, want 0", n)
			}
		})
	}
}

func TestBarrierOrdering(t *testing.T) {
	ctx := context.Background()
	lib := enginetest.NewLibrary()
	b := startFake(t, lib)
	tx := b.Transmitter()

	before := len(lib.Calls())
	if err := tx.SendFrame(ctx, enginebridge.Frame("A")); err != nil {
		t.Fatal(err)
	}
	if err := tx.Barrier(ctx); err != nil {
		t.Fatal(err)
	}
	inst, _ := lib.Instance(1)
	if inst.Barrier != 1 {
		t.Errorf("barrier depth = %d, want 1", inst.Barrier)
	}
	if err := tx.SendFrame(ctx, enginebridge.Frame("B")); err != nil {
		t.Fatal(err)
	}
	if err := tx.ReleaseBarrier(ctx); err != nil {
		t.Fatal(err)
	}

	want := []enginebridge.Symbol{
		enginebridge.SymSendIPC,
		enginebridge.SymSetEngineBarrier,
		enginebridge.SymSendIPC,
		enginebridge.SymRemoveEngineBarrier,
	}
	got := symbols(lib.Calls()[before:])
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, got[i], want[i])
		}
	}

	inst, _ = lib.Instance(1)
	if inst.Barrier != 0 {
		t.Errorf("barrier depth = %d after release", inst.Barrier)
	}
	if string(inst.Frames[0]) != "A" || string(inst.Frames[1]) != "B" {
		t.Errorf("frames = %q", inst.Frames)
	}
}

func TestSendAndSync(t *testing.T) {
	ctx := context.Background()
	lib := enginetest.NewLibrary()
	lib.Preview = cannedPreview()
	b := startFake(t, lib)

	before := len(lib.Calls())
	var info abi.PreviewInfo
	err := b.Transmitter().SendAndSync(ctx, enginebridge.Config{enginebridge.Frame("m1"), enginebridge.Frame("m2")},
		func(ctx context.Context) error {
			var err error
			info, err = b.Preview().Generate(ctx)
			return err
		})
	if err != nil {
		t.Fatalf("SendAndSync: %v", err)
	}
	if !info.Equal(cannedPreview()) {
		t.Error("preview not returned")
	}

	want := []enginebridge.Symbol{
		enginebridge.SymSendIPC,
		enginebridge.SymSendIPC,
		enginebridge.SymSetEngineBarrier,
		enginebridge.SymGeneratePreview,
		enginebridge.SymRemoveEngineBarrier,
	}
	got := symbols(lib.Calls()[before:])
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSendAndSyncReleasesOnError(t *testing.T) {
	lib := enginetest.NewLibrary()
	b := startFake(t, lib)

	boom := stderrors.New("boom")
	err := b.Transmitter().SendAndSync(context.Background(), nil, func(context.Context) error { return boom })
	if !stderrors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if lib.Count(enginebridge.SymRemoveEngineBarrier) != 1 {
		t.Error("barrier not released after fn error")
	}
}

func TestSendAndSyncStopsOnRejection(t *testing.T) {
	lib := enginetest.NewLibrary()
	lib.RejectFrame = func([]byte) bool { return true }
	b := startFake(t, lib)

	called := false
	err := b.Transmitter().SendAndSync(context.Background(), enginebridge.Config{enginebridge.Frame("x")},
		func(context.Context) error { called = true; return nil })
	if !stderrors.Is(err, errors.ErrFrameRejected) {
		t.Errorf("err = %v", err)
	}
	if called || lib.Count(enginebridge.SymSetEngineBarrier) != 0 {
		t.Error("sync step ran after rejected frame")
	}
}

func TestConcurrentSendsStayContiguous(t *testing.T) {
	lib := enginetest.NewLibrary()
	b := startFake(t, lib)

	const producers = 8
	const frames = 20

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			var cfg enginebridge.Config
			for i := 0; i < frames; i++ {
				cfg = append(cfg, enginebridge.Frame{byte(p), byte(i)})
			}
			if err := b.Transmitter().Send(context.Background(), cfg); err != nil {
				t.Errorf("producer %d: %v", p, err)
			}
		}(p)
	}
	wg.Wait()

	inst, _ := lib.Instance(1)
	if len(inst.Frames) != producers*frames {
		t.Fatalf("frames = %d", len(inst.Frames))
	}
	for start := 0; start < len(inst.Frames); start += frames {
		p := inst.Frames[start][0]
		for i := 0; i < frames; i++ {
			f := inst.Frames[start+i]
			if f[0] != p || int(f[1]) != i {
				t.Fatalf("run at %d interleaved: frame %d = %x", start, i, f)
			}
		}
	}
}

func TestRateLimit(t *testing.T) {
	lib := enginetest.NewLibrary()
	b := startFake(t, lib, WithRateLimit(rate.Every(time.Hour), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := b.Transmitter().Send(ctx, enginebridge.Config{enginebridge.Frame("a"), enginebridge.Frame("b")})
	if err == nil {
		t.Fatal("expected rate limit wait to fail")
	}
	if errors.KindOf(err) == errors.KindFrameRejected {
		t.Errorf("rate limit failure reported as rejection: %v", err)
	}
	inst, _ := lib.Instance(1)
	if len(inst.Frames) != 1 {
		t.Errorf("frames = %d, want 1 within the burst", len(inst.Frames))
	}
}

func TestRateLimitAllowsBurst(t *testing.T) {
	lib := enginetest.NewLibrary()
	b := startFake(t, lib, WithRateLimit(rate.Limit(1000), 10))

	var cfg enginebridge.Config
	for i := 0; i < 10; i++ {
		cfg = append(cfg, enginebridge.Frame{byte(i)})
	}
	if err := b.Transmitter().Send(context.Background(), cfg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n := lib.Count(enginebridge.SymSendIPC); n != 10 {
		t.Errorf("send_ipc = %d", n)
	}
}
