// Package enginebridge connects a host UI process to a simulation engine
// that is loaded as a separate module at runtime.
//
// The host never links the engine. It discovers the engine's entry points,
// checks that the engine speaks the same protocol version, and from then on
// talks to it only through an ordered stream of config frames, a callback
// channel for engine events, and a few synchronous calls.
//
// # Architecture Overview
//
//	enginebridge/        Root package: Library and Opener interfaces, symbols
//	├── loader/          Opens a module, resolves symbols, checks the version
//	├── bridge/          Session lifecycle, transmitter, preview, GL, inbound
//	├── engine/          wazero backend: engines compiled to wasm32
//	├── enginetest/      In-process fake engine and wasm fixtures for tests
//	├── abi/             Wire values: MessageType, String255, PreviewInfo
//	├── messages/        Engine message framing and parsing
//	├── handle/          Handle table mapping bridge handles to engine reps
//	├── metrics/         Prometheus collectors for bridge activity
//	├── config/          YAML + environment configuration
//	└── errors/          Structured error types
//
// # Quick Start
//
//	ctx := context.Background()
//	b, err := bridge.Open(ctx, engine.NewOpener(nil), "hwengine.wasm")
//	if err != nil {
//	    log.Printf("engine disabled: %v", err) // b still usable, degraded
//	}
//	defer b.Close(ctx)
//
//	b.Inbound().Register(ctx, func(m abi.Message) { ... })
//	b.Transmitter().Send(ctx, enginebridge.Config{frame1, frame2})
//	preview, err := b.Preview().Generate(ctx)
//
// # Thread Safety
//
// All bridge components are safe for concurrent use. Calls into the engine
// are serialized; engine events are delivered on a dispatcher goroutine,
// never on the goroutine that happens to be inside the engine.
package enginebridge
