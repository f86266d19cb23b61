// Package bridge drives a loaded engine module through one session.
//
// # Session Lifecycle
//
//	Uninitialized ──Start──▶ Running ──Cleanup──▶ Terminated
//
// Start is valid once; Cleanup performs exactly one engine cleanup. Every
// other operation requires Running and fails with not_running, without
// touching the engine, otherwise. The exception is preview generation,
// which returns the zero PreviewInfo when no engine is running.
//
// # Ordering
//
// The Transmitter sends config frames one engine call per frame, in
// submission order. A barrier sent after a run of frames guarantees the
// engine has processed them before anything sent later, and before any
// synchronous call issued while the barrier is held:
//
//	err := b.Transmitter().SendAndSync(ctx, cfg, func(ctx context.Context) error {
//	    info, err := b.Preview().Generate(ctx)
//	    ...
//	})
//
// # Inbound Events
//
// The engine may raise events from inside any engine call. The bridge
// copies each event into a queue and hands it to the registered Handler on
// a dedicated goroutine, in order. Game-finished is the last event
// delivered; Inbound.Done closes once the handler has seen it.
//
// # Disabled Mode
//
// Open returns a disabled Bridge alongside the load error when the module
// is missing, incomplete or speaks another protocol. A disabled bridge
// never panics and never reaches an engine.
package bridge
