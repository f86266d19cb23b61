// Package abi defines the wire-level values exchanged with an engine module.
//
// These types mirror the engine's exported C structures byte for byte:
//
//	MessageType   small integer tag of an inbound engine event
//	String255     1 length byte followed by up to 255 payload bytes
//	PreviewInfo   opaque fixed-size block filled by generate_preview
//
// PreviewInfo is deliberately opaque. Its field order belongs to the
// engine's compiled structure and is not interpreted here; callers that
// know the engine build can decode Bytes() themselves.
package abi
