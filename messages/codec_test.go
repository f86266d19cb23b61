package messages

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	enginerrors "github.com/wippyai/engine-bridge/errors"
)

func TestNext_KnownFrames(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want Message
	}{
		{"left press", []byte("\x03L\x01\x02"), Synced{Op: OpLeftPress, Timestamp: 258}},
		{"time wrap", []byte("\x01#"), TimeWrap{}},
		{"say", []byte("\x0aesay hello"), Say{Text: "hello"}},
		{"ping", []byte("\x01?"), Ping{}},
		{"ping bang", []byte("\x01!"), Ping{Bang: true}},
		{"config request", []byte("\x01C"), ConfigRequest{}},
		{"empty", []byte("\x00"), Empty{}},
		{"unknown nul body", []byte("\x01\x00"), Unknown{Body: []byte{0}}},
		{"garbage after correct message", []byte("\x04La\x01\x02"), Unknown{Body: []byte("La\x01\x02")}},
		{"team lost", []byte("\x06fred\x00\x05"), Synced{Op: OpTeamControlLost, Team: "red", Timestamp: 5}},
		{
			"cursor move",
			[]byte{9, 'P', 0x00, 0x01, 0x00, 0xff, 0xff, 0xfe, 0x00, 0x10},
			Synced{Op: OpCursorMove, X: 256, Y: -2, Timestamp: 16},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n, err := Next(tt.in)
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if n != len(tt.in) {
				t.Errorf("consumed %d of %d", n, len(tt.in))
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestReadLength(t *testing.T) {
	tests := []struct {
		in       []byte
		n, bytes int
	}{
		{[]byte{0x01}, 1, 1},
		{[]byte{0x00}, 0, 1},
		{[]byte{0x3f}, 63, 1},
		{[]byte{0x40, 0x00}, 64, 2},
		{[]byte{0xff, 0xff}, 49215, 2},
	}
	for _, tt := range tests {
		n, consumed, ok := readLength(tt.in)
		if !ok || n != tt.n || consumed != tt.bytes {
			t.Errorf("readLength(%x) = %d, %d, %v; want %d, %d", tt.in, n, consumed, ok, tt.n, tt.bytes)
		}
	}
	if _, _, ok := readLength([]byte{0x40}); ok {
		t.Error("truncated two-byte specifier accepted")
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	msgs := []Message{
		Empty{},
		Synced{Op: OpAttackPress, Timestamp: 1},
		Synced{Op: OpPut, X: -8388608, Y: 8388607, Timestamp: 65534},
		Synced{Op: OpTeamControlGained, Team: "blue team", Timestamp: 9},
		TimeWrap{},
		Ping{},
		Say{Text: "gg"},
		ConfigRequest{},
	}

	for _, m := range msgs {
		frame, err := Encode(m)
		if err != nil {
			t.Fatalf("Encode(%#v): %v", m, err)
		}
		got, n, err := Next(frame)
		if err != nil {
			t.Fatalf("Next(%x): %v", []byte(frame), err)
		}
		if n != len(frame) {
			t.Errorf("%#v: consumed %d of %d", m, n, len(frame))
		}
		if !reflect.DeepEqual(got, m) {
			t.Errorf("round trip %#v -> %#v", m, got)
		}
	}
}

func TestEncode_LongBody(t *testing.T) {
	text := string(bytes.Repeat([]byte{'x'}, 100))
	frame, err := Encode(Say{Text: text})
	if err != nil {
		t.Fatal(err)
	}
	bodyLen := len(sayPrefix) + 100
	v := bodyLen - 64
	if frame[0] != byte(v/256+64) || frame[1] != byte(v%256) {
		t.Fatalf("length specifier = %x %x", frame[0], frame[1])
	}
	if len(frame) != 2+bodyLen {
		t.Fatalf("frame length = %d", len(frame))
	}
}

func TestEncode_Errors(t *testing.T) {
	if _, err := Encode(Synced{Op: 'Q'}); !errors.Is(err, &enginerrors.Error{Phase: enginerrors.PhaseCodec, Kind: enginerrors.KindInvalidInput}) {
		t.Errorf("unknown op err = %v", err)
	}
	if _, err := Encode(Synced{Op: OpPut, X: 1 << 23}); err == nil {
		t.Error("out of range coordinate accepted")
	}
	if _, err := FrameRaw(make([]byte, MaxBodyLen+1)); err == nil {
		t.Error("oversized body accepted")
	}
	if _, err := FrameRaw(make([]byte, MaxBodyLen)); err != nil {
		t.Errorf("max body rejected: %v", err)
	}
}

func TestExtract_Stream(t *testing.T) {
	cfg, err := EncodeAll(Ping{}, Say{Text: "hi"}, Synced{Op: OpSkip, Timestamp: 3})
	if err != nil {
		t.Fatal(err)
	}
	var stream []byte
	for _, f := range cfg {
		stream = append(stream, f...)
	}
	// Trailing partial frame stays unconsumed.
	stream = append(stream, 0x05, 'e', 's')

	msgs, n := Extract(stream)
	if len(msgs) != 3 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if n != len(stream)-3 {
		t.Errorf("consumed %d, want %d", n, len(stream)-3)
	}
	if _, ok := msgs[1].(Say); !ok {
		t.Errorf("second message = %#v", msgs[1])
	}
}

func TestNext_Incomplete(t *testing.T) {
	for _, in := range [][]byte{nil, {0x05, 'a'}, {0x41}} {
		if _, _, err := Next(in); err == nil {
			t.Errorf("Next(%x) succeeded", in)
		}
	}
}

func TestKind_String(t *testing.T) {
	if KindSynced.String() != "synced" || KindUnknown.String() != "unknown" {
		t.Error("Kind.String mismatch")
	}
	if (Say{}).Kind() != KindUnsynced || (ConfigRequest{}).Kind() != KindConfig {
		t.Error("Kind mismatch")
	}
}
