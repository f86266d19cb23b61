// Package engine runs engine modules compiled to wasm32 on wazero.
//
// An engine module is a core WebAssembly module exporting the entry points
// listed in enginebridge.RequiredSymbols, plus a linear memory and a
// cabi_realloc allocator the host uses to stage frames and result blocks:
//
//	Export                          Signature
//	──────────────────────────────────────────────────────────────
//	protocol_version                () -> i32
//	start_engine                    () -> i32            engine rep
//	cleanup                         (rep)
//	generate_preview                (rep, ptr)           fills PreviewInfo
//	send_ipc                        (rep, ptr, len) [-> i32 status]
//	set_engine_barrier              (rep)
//	remove_engine_barrier           (rep)
//	setup_current_gl_context        (rep, token0, token1)
//	register_ui_messages_callback   (rep, context)
//	update_mouse_position           (rep, cx, cy, x, y) -> i32
//	resize_window                   (rep, w, h)
//	game_tick                       (rep, delta)
//	cabi_realloc                    (old, old_size, align, new_size) -> i32
//	memory
//
// The host supplies two imports in module "env":
//
//	hw_ui_message(context, type, ptr, len)     engine event
//	hw_get_proc_address(name_ptr) -> i64       GPU symbol lookup, name is
//	                                           a String255 in engine memory
//
// An export whose signature differs from the table counts as missing.
//
// # Handles
//
// start_engine returns the engine's own value for the instance. The
// library keeps it in a handle.Table and hands out an enginebridge.Handle;
// the engine never sees bridge handles except as the opaque context value
// it echoes back through hw_ui_message.
//
// # Thread Safety
//
// A Library serializes all calls into the module. Host imports run on the
// calling goroutine while that lock is held, so callbacks must not call
// back into the Library.
package engine
