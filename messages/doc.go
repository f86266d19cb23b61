// Package messages encodes and parses engine IPC messages.
//
// Every config frame sent to the engine is one framed message:
//
//	len < 64     [len] body
//	len >= 64    [(len-64)/256 + 64] [(len-64)%256] body     (max 49215)
//	empty        [0x00]
//
// Bodies come in four families:
//
//	Synced      command bytes followed by a big-endian u16 timestamp
//	TimeWrap    "#", a synced marker with implicit timestamp 65535
//	Unsynced    "?" or "!" (ping), "esay <text>"
//	Config      "C" (config request)
//
// Anything else parses as Unknown rather than failing, so a stream never
// stalls on a message kind this package does not know.
package messages
