package messages

import (
	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/errors"
)

const (
	shortLimit = 64
	// MaxBodyLen is the longest body a two-byte length specifier can carry.
	MaxBodyLen = (255-shortLimit)*256 + 255 + shortLimit
)

// Encode frames m for the engine's inbound queue.
func Encode(m Message) (enginebridge.Frame, error) {
	if _, ok := m.(Empty); ok {
		return enginebridge.Frame{0}, nil
	}

	body, err := m.appendBody(make([]byte, 0, 16))
	if err != nil {
		return nil, err
	}
	return frameBody(body)
}

// EncodeAll frames each message, preserving order.
func EncodeAll(msgs ...Message) (enginebridge.Config, error) {
	cfg := make(enginebridge.Config, 0, len(msgs))
	for _, m := range msgs {
		f, err := Encode(m)
		if err != nil {
			return nil, err
		}
		cfg = append(cfg, f)
	}
	return cfg, nil
}

// FrameRaw frames an arbitrary body, for commands this package does not model.
func FrameRaw(body []byte) (enginebridge.Frame, error) {
	if len(body) == 0 {
		return enginebridge.Frame{0}, nil
	}
	return frameBody(body)
}

func frameBody(body []byte) (enginebridge.Frame, error) {
	n := len(body)
	switch {
	case n < shortLimit:
		out := make(enginebridge.Frame, 0, 1+n)
		out = append(out, byte(n))
		return append(out, body...), nil
	case n <= MaxBodyLen:
		v := n - shortLimit
		out := make(enginebridge.Frame, 0, 2+n)
		out = append(out, byte(v/256+shortLimit), byte(v%256))
		return append(out, body...), nil
	default:
		return nil, errors.New(errors.PhaseCodec, errors.KindInvalidInput).
			Value(n).
			Detail("message body of %d bytes exceeds %d", n, MaxBodyLen).
			Build()
	}
}

// readLength decodes a length specifier. ok is false when data is too
// short to hold it.
func readLength(data []byte) (n, consumed int, ok bool) {
	if len(data) == 0 {
		return 0, 0, false
	}
	if data[0] < shortLimit {
		return int(data[0]), 1, true
	}
	if len(data) < 2 {
		return 0, 0, false
	}
	return (int(data[0])-shortLimit)*256 + int(data[1]) + shortLimit, 2, true
}

// Next parses the first framed message in data and returns it with the
// number of bytes consumed. It fails only when data holds an incomplete
// frame.
func Next(data []byte) (Message, int, error) {
	if len(data) > 0 && data[0] == 0 {
		return Empty{}, 1, nil
	}
	n, hdr, ok := readLength(data)
	if !ok || len(data) < hdr+n {
		return nil, 0, errors.InvalidData(errors.PhaseCodec, "incomplete message frame")
	}
	return ParseBody(data[hdr : hdr+n]), hdr + n, nil
}

// Extract parses consecutive messages from a stream. It stops at the first
// incomplete frame and reports how many bytes were consumed, so the caller
// can keep the remainder for the next read.
func Extract(data []byte) ([]Message, int) {
	var (
		out      []Message
		consumed int
	)
	for consumed < len(data) {
		m, n, err := Next(data[consumed:])
		if err != nil {
			break
		}
		out = append(out, m)
		consumed += n
	}
	return out, consumed
}

// ParseBody classifies an unframed body. The whole body must match a
// message form; otherwise the result is Unknown.
func ParseBody(body []byte) Message {
	if m, ok := parseTimestamped(body); ok {
		return m
	}
	if len(body) == 1 && body[0] == '#' {
		return TimeWrap{}
	}
	if m, ok := parseUnsynced(body); ok {
		return m
	}
	if len(body) == 1 && body[0] == 'C' {
		return ConfigRequest{}
	}
	return Unknown{Body: append([]byte(nil), body...)}
}

func parseTimestamped(body []byte) (Message, bool) {
	if len(body) <= 2 {
		return nil, false
	}
	cmd := body[:len(body)-2]
	ts := uint16(body[len(body)-2])<<8 | uint16(body[len(body)-1])

	op := Op(cmd[0])
	rest := cmd[1:]
	m := Synced{Op: op, Timestamp: ts}
	switch {
	case op.simple():
		if len(rest) != 0 {
			return nil, false
		}
	case op.takesCoords():
		if len(rest) != 6 {
			return nil, false
		}
		m.X = readI24(rest[:3])
		m.Y = readI24(rest[3:])
	case op.takesTeam():
		if !validText(rest) {
			return nil, false
		}
		m.Team = string(rest)
	default:
		return nil, false
	}
	return m, true
}

func parseUnsynced(body []byte) (Message, bool) {
	if len(body) == 1 {
		switch body[0] {
		case '?':
			return Ping{}, true
		case '!':
			return Ping{Bang: true}, true
		}
	}
	if len(body) >= len(sayPrefix) && string(body[:len(sayPrefix)]) == sayPrefix {
		text := body[len(sayPrefix):]
		if validText(text) {
			return Say{Text: string(text)}, true
		}
	}
	return nil, false
}
