package abi

import "bytes"

// PreviewInfoSize is the size of the engine's preview structure as laid
// out by the wasm32 engine build.
const PreviewInfoSize = 16

// PreviewInfo is the result block of generate_preview. The zero value is
// the well-defined empty preview returned when no engine is running.
type PreviewInfo struct {
	raw [PreviewInfoSize]byte
}

// PreviewInfoFromBytes copies an engine-produced block. Short input is
// zero-padded, longer input truncated.
func PreviewInfoFromBytes(b []byte) PreviewInfo {
	var p PreviewInfo
	copy(p.raw[:], b)
	return p
}

// Bytes returns a copy of the raw block.
func (p PreviewInfo) Bytes() []byte {
	out := make([]byte, PreviewInfoSize)
	copy(out, p.raw[:])
	return out
}

// IsZero reports whether p is the empty preview.
func (p PreviewInfo) IsZero() bool {
	return p.raw == [PreviewInfoSize]byte{}
}

// Equal reports bitwise equality.
func (p PreviewInfo) Equal(o PreviewInfo) bool {
	return bytes.Equal(p.raw[:], o.raw[:])
}
