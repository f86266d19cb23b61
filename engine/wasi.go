package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

const wasiModule = "wasi_snapshot_preview1"

// instantiateWASI adds WASI preview1 to r unless it is already present.
func instantiateWASI(ctx context.Context, r wazero.Runtime) error {
	if r.Module(wasiModule) != nil {
		return nil
	}
	_, err := wasi_snapshot_preview1.Instantiate(ctx, r)
	if err != nil && r.Module(wasiModule) == nil {
		return err
	}
	return nil
}
