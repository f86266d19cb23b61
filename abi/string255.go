package abi

import (
	"github.com/wippyai/engine-bridge/errors"
)

// MaxString255 is the longest payload a String255 can carry.
const MaxString255 = 255

// String255 is the bounded string wire form: a length byte followed by
// that many payload bytes. The zero value is the empty string.
type String255 struct {
	buf [MaxString255 + 1]byte
}

// NewString255 copies s into a String255.
func NewString255(s []byte) (String255, error) {
	var out String255
	if len(s) > MaxString255 {
		return out, errors.New(errors.PhaseCodec, errors.KindInvalidInput).
			Value(len(s)).
			Detail("string255 payload of %d bytes exceeds %d", len(s), MaxString255).
			Build()
	}
	out.buf[0] = byte(len(s))
	copy(out.buf[1:], s)
	return out, nil
}

// Len returns the payload length.
func (s *String255) Len() int {
	return int(s.buf[0])
}

// Bytes returns the payload without the length byte.
func (s *String255) Bytes() []byte {
	return s.buf[1 : 1+int(s.buf[0])]
}

func (s *String255) String() string {
	return string(s.Bytes())
}

// Encoded returns the wire frame: length byte plus payload, 1+Len bytes.
func (s *String255) Encoded() []byte {
	return s.buf[:1+int(s.buf[0])]
}

// AppendString255 appends the wire form of p to dst.
func AppendString255(dst, p []byte) ([]byte, error) {
	if len(p) > MaxString255 {
		return dst, errors.New(errors.PhaseCodec, errors.KindInvalidInput).
			Value(len(p)).
			Detail("string255 payload of %d bytes exceeds %d", len(p), MaxString255).
			Build()
	}
	dst = append(dst, byte(len(p)))
	return append(dst, p...), nil
}

// DecodeString255 reads one String255 from the front of data and returns
// it with the number of bytes consumed.
func DecodeString255(data []byte) (String255, int, error) {
	var out String255
	if len(data) == 0 {
		return out, 0, errors.InvalidData(errors.PhaseCodec, "string255: missing length byte")
	}
	n := int(data[0])
	if len(data) < 1+n {
		return out, 0, errors.New(errors.PhaseCodec, errors.KindInvalidData).
			Value(n).
			Detail("string255: length %d but only %d payload bytes", n, len(data)-1).
			Build()
	}
	copy(out.buf[:], data[:1+n])
	return out, 1 + n, nil
}
