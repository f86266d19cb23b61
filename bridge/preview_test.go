package bridge

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/abi"
	"github.com/wippyai/engine-bridge/enginetest"
	"github.com/wippyai/engine-bridge/errors"
)

func TestPreviewNotCached(t *testing.T) {
	ctx := context.Background()
	lib := enginetest.NewLibrary()
	lib.Preview = cannedPreview()
	b := startFake(t, lib)

	for i := 0; i < 3; i++ {
		if _, err := b.Preview().Generate(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if n := lib.Count(enginebridge.SymGeneratePreview); n != 3 {
		t.Errorf("generate_preview calls = %d, want 3", n)
	}
}

func TestPreviewEngineError(t *testing.T) {
	lib := enginetest.NewLibrary()
	boom := errors.EngineFault(errors.PhasePreview, "generate_preview", stderrors.New("trap"))
	lib.PreviewFunc = func(context.Context, enginebridge.Handle) (abi.PreviewInfo, error) {
		return abi.PreviewInfo{}, boom
	}
	b := startFake(t, lib)

	_, err := b.Preview().Generate(context.Background())
	if errors.KindOf(err) != errors.KindEngineFault {
		t.Errorf("err = %v, want engine_fault", err)
	}
}

func TestPreviewIdleWithDoneContext(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name  string
		setup func(t *testing.T, lib *enginetest.Library) *Bridge
	}{
		{"before start", func(t *testing.T, lib *enginetest.Library) *Bridge {
			return openFake(t, lib)
		}},
		{"after cleanup", func(t *testing.T, lib *enginetest.Library) *Bridge {
			b := startFake(t, lib)
			if err := b.Session().Cleanup(context.Background()); err != nil {
				t.Fatalf("Cleanup: %v", err)
			}
			return b
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := enginetest.NewLibrary()
			lib.Preview = cannedPreview()
			b := tt.setup(t, lib)

			for i := 0; i < 3; i++ {
				info, err := b.Preview().Generate(cancelled)
				if err != nil {
					t.Fatalf("call %d: err = %v, want nil", i, err)
				}
				if info != (abi.PreviewInfo{}) {
					t.Errorf("call %d: info = %v, want zero", i, info)
				}
			}
			if n := lib.Count(enginebridge.SymGeneratePreview); n != 0 {
				t.Errorf("generate_preview calls = %d, want 0", n)
			}
		})
	}
}

func TestPreviewWatchdog(t *testing.T) {
	lib := enginetest.NewLibrary()
	release := make(chan struct{})
	lib.PreviewFunc = func(context.Context, enginebridge.Handle) (abi.PreviewInfo, error) {
		<-release
		return cannedPreview(), nil
	}
	b := startFake(t, lib, WithPreviewTimeout(20*time.Millisecond))

	start := time.Now()
	info, err := b.Preview().Generate(context.Background())
	if !stderrors.Is(err, errors.ErrTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
	if !info.IsZero() {
		t.Error("timed out preview should be zero")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("watchdog took %v", elapsed)
	}

	// The abandoned call still holds the session; later calls wait for it.
	advanced := make(chan error, 1)
	go func() { advanced <- b.Session().Advance(context.Background(), 1) }()
	select {
	case <-advanced:
		t.Fatal("engine call overlapped an in-flight preview")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	if err := <-advanced; err != nil {
		t.Errorf("Advance: %v", err)
	}

	lib.PreviewFunc = nil
	lib.Preview = cannedPreview()
	info, err = b.Preview().Generate(context.Background())
	if err != nil || !info.Equal(cannedPreview()) {
		t.Errorf("Generate after watchdog = %x, %v", info.Bytes(), err)
	}
}

func TestPreviewContextDeadline(t *testing.T) {
	lib := enginetest.NewLibrary()
	release := make(chan struct{})
	defer close(release)
	lib.PreviewFunc = func(context.Context, enginebridge.Handle) (abi.PreviewInfo, error) {
		<-release
		return abi.PreviewInfo{}, nil
	}
	b := startFake(t, lib)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.Preview().Generate(ctx)
	if !stderrors.Is(err, errors.ErrTimeout) {
		t.Errorf("err = %v, want timeout", err)
	}
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Error("context cause not preserved")
	}
}
