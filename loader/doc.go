// Package loader opens an engine module, checks that it exports every
// entry point the bridge needs and that it speaks the bridge's protocol
// version, and returns an EngineAPI capability table.
//
// Loading is a one-time startup step:
//
//	api, err := loader.Load(ctx, engine.NewOpener(nil), "hwengine.wasm")
//	if err != nil {
//	    // errors.ErrModuleNotFound, errors.ErrSymbolMissing or
//	    // errors.ErrVersionMismatch
//	}
//	defer api.Close(ctx)
//
// An engine without a version query, or reporting a different version, is
// closed without any further call.
package loader
