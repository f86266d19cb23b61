package engine

import (
	"context"
	"os"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/errors"
	"github.com/wippyai/engine-bridge/handle"
)

// Config holds configuration for engine module loading
type Config struct {
	// HostModule is the import module name of the host callbacks.
	// Empty means "env".
	HostModule string

	// MemoryLimitPages sets the maximum engine memory in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// EnableWASI instantiates wasi_snapshot_preview1 for engines built
	// against a libc.
	EnableWASI bool

	// InterruptOnCancel aborts a running engine call when its context is
	// done. The module is closed afterwards and the library is unusable.
	InterruptOnCancel bool

	// Observer, when set, sees every engine instance created and
	// destroyed in the module.
	Observer handle.Observer
}

func (c *Config) hostModule() string {
	if c == nil || c.HostModule == "" {
		return hostModule
	}
	return c.HostModule
}

// Opener loads engine modules from the filesystem.
type Opener struct {
	cfg *Config
}

var _ enginebridge.Opener = (*Opener)(nil)

// NewOpener returns an opener that applies cfg to every module it loads.
// A nil cfg uses defaults.
func NewOpener(cfg *Config) *Opener {
	return &Opener{cfg: cfg}
}

// Open reads and instantiates the engine module at path.
func (o *Opener) Open(ctx context.Context, path string) (enginebridge.Library, error) {
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ModuleNotFound(path, err)
	}

	lib, err := LoadBytes(ctx, wasm, o.cfg)
	if err != nil {
		if ms, ok := err.(*errors.MissingSymbolsError); ok {
			ms.Path = path
		}
		return nil, err
	}
	lib.path = path
	return lib, nil
}
