package loader

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/engine"
	"github.com/wippyai/engine-bridge/enginetest"
	"github.com/wippyai/engine-bridge/errors"
)

const fakePath = "fake-engine"

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*enginetest.Library)
		opts     []Option
		wantKind errors.Kind
		// wantCalls is the number of module calls made, version query
		// included.
		wantCalls int
	}{
		{
			name:      "matching version",
			wantCalls: 1,
		},
		{
			name:      "mismatched version",
			setup:     func(l *enginetest.Library) { l.Version = enginebridge.ProtocolVersion + 1 },
			wantKind:  errors.KindVersionMismatch,
			wantCalls: 1,
		},
		{
			name:      "expected version override",
			setup:     func(l *enginetest.Library) { l.Version = 7 },
			opts:      []Option{WithExpectedVersion(7)},
			wantCalls: 1,
		},
		{
			name:      "missing version query",
			setup:     func(l *enginetest.Library) { l.Missing = []enginebridge.Symbol{enginebridge.SymProtocolVersion} },
			wantKind:  errors.KindVersionMismatch,
			wantCalls: 0,
		},
		{
			name: "missing entry points",
			setup: func(l *enginetest.Library) {
				l.Missing = []enginebridge.Symbol{enginebridge.SymGameTick, enginebridge.SymSendIPC}
			},
			wantKind:  errors.KindSymbolMissing,
			wantCalls: 0,
		},
		{
			name:      "version query fails",
			setup:     func(l *enginetest.Library) { l.VersionErr = stderrors.New("trap") },
			wantKind:  errors.KindVersionMismatch,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := enginetest.NewLibrary()
			if tt.setup != nil {
				tt.setup(lib)
			}

			api, err := Load(context.Background(), enginetest.NewOpener(fakePath, lib), fakePath, tt.opts...)
			if got := len(lib.Calls()); got != tt.wantCalls {
				t.Errorf("module calls = %d, want %d", got, tt.wantCalls)
			}

			if tt.wantKind != "" {
				if api != nil {
					t.Error("expected nil EngineAPI on failure")
				}
				if errors.KindOf(err) != tt.wantKind {
					t.Fatalf("err = %v, want kind %s", err, tt.wantKind)
				}
				if !lib.Closed() {
					t.Error("rejected library was not closed")
				}
				return
			}

			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if lib.Closed() {
				t.Error("accepted library closed")
			}
			if api.Path() != fakePath {
				t.Errorf("Path = %q", api.Path())
			}
		})
	}
}

func TestLoadMissingSymbolsListed(t *testing.T) {
	lib := enginetest.NewLibrary()
	lib.Missing = []enginebridge.Symbol{enginebridge.SymResizeWindow, enginebridge.SymCleanup}

	_, err := Load(context.Background(), enginetest.NewOpener(fakePath, lib), fakePath)

	var ms *errors.MissingSymbolsError
	if !stderrors.As(err, &ms) {
		t.Fatalf("err = %v, want MissingSymbolsError", err)
	}
	want := []string{"cleanup", "resize_window"}
	if len(ms.Symbols) != len(want) {
		t.Fatalf("Symbols = %v, want %v", ms.Symbols, want)
	}
	for i := range want {
		if ms.Symbols[i] != want[i] {
			t.Errorf("Symbols[%d] = %q, want %q", i, ms.Symbols[i], want[i])
		}
	}
	if ms.Path != fakePath {
		t.Errorf("Path = %q", ms.Path)
	}
}

func TestLoadModuleNotFound(t *testing.T) {
	_, err := Load(context.Background(), enginetest.NewOpener(fakePath, enginetest.NewLibrary()), "elsewhere")
	if !stderrors.Is(err, errors.ErrModuleNotFound) {
		t.Errorf("err = %v, want module_not_found", err)
	}
}

func TestLoadWrapsPlainOpenerError(t *testing.T) {
	opener := enginebridge.OpenerFunc(func(context.Context, string) (enginebridge.Library, error) {
		return nil, os.ErrPermission
	})

	_, err := Load(context.Background(), opener, "engine.wasm")
	if !stderrors.Is(err, errors.ErrModuleNotFound) {
		t.Errorf("err = %v, want module_not_found", err)
	}
	if !stderrors.Is(err, os.ErrPermission) {
		t.Error("cause not preserved")
	}
}

func TestEngineAPIAccessors(t *testing.T) {
	lib := enginetest.NewLibrary()
	api, err := Load(context.Background(), enginetest.NewOpener(fakePath, lib), fakePath, WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if api.Version() != enginebridge.ProtocolVersion {
		t.Errorf("Version = %d", api.Version())
	}
	if len(api.Exports()) != len(enginebridge.RequiredSymbols) {
		t.Errorf("Exports = %v", api.Exports())
	}
	if api.Logger() == nil {
		t.Error("Logger is nil")
	}
}

func TestEngineAPIClose(t *testing.T) {
	ctx := context.Background()
	lib := enginetest.NewLibrary()
	api, err := Load(ctx, enginetest.NewOpener(fakePath, lib), fakePath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	h, err := api.StartEngine(ctx)
	if err != nil {
		t.Fatalf("StartEngine: %v", err)
	}
	if err := api.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := api.Close(ctx); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if !lib.Closed() || !api.Closed() {
		t.Error("library not closed")
	}

	before := len(lib.Calls())
	if err := api.SendIPC(ctx, h, []byte("x")); !stderrors.Is(err, errors.ErrNotRunning) {
		t.Errorf("SendIPC after close err = %v", err)
	}
	if _, err := api.GeneratePreview(ctx, h); !stderrors.Is(err, errors.ErrNotRunning) {
		t.Errorf("GeneratePreview after close err = %v", err)
	}
	if got := len(lib.Calls()); got != before {
		t.Errorf("calls after close reached the module: %d", got-before)
	}
}

func TestLoadWasmEngine(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	write := func(name string, opts ...enginetest.ModuleOption) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, enginetest.Module(opts...), 0o600); err != nil {
			t.Fatal(err)
		}
		return p
	}

	good := write("good.wasm")
	api, err := Load(ctx, engine.NewOpener(nil), good)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if api.Version() != enginebridge.ProtocolVersion {
		t.Errorf("Version = %d", api.Version())
	}
	_ = api.Close(ctx)

	old := write("old.wasm", enginetest.WithVersion(enginebridge.ProtocolVersion-1))
	if _, err := Load(ctx, engine.NewOpener(nil), old); !stderrors.Is(err, errors.ErrVersionMismatch) {
		t.Errorf("old engine err = %v, want version_mismatch", err)
	}

	partial := write("partial.wasm", enginetest.WithoutExport(string(enginebridge.SymGameTick)))
	if _, err := Load(ctx, engine.NewOpener(nil), partial); !stderrors.Is(err, errors.ErrSymbolMissing) {
		t.Errorf("partial engine err = %v, want symbol_missing", err)
	}

	if _, err := Load(ctx, engine.NewOpener(nil), filepath.Join(dir, "none.wasm")); !stderrors.Is(err, errors.ErrModuleNotFound) {
		t.Errorf("missing file err = %v, want module_not_found", err)
	}
}
