package abi

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	enginerrors "github.com/wippyai/engine-bridge/errors"
)

func TestMessageType_String(t *testing.T) {
	tests := []struct {
		mt   MessageType
		want string
	}{
		{MessagePreview, "preview"},
		{MessagePreviewHogCount, "preview-hog-count"},
		{MessageToNet, "to-net"},
		{MessageGameFinished, "game-finished"},
		{MessageType(9), "message-type(9)"},
	}
	for _, tt := range tests {
		if got := tt.mt.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", uint32(tt.mt), got, tt.want)
		}
	}
}

func TestMessageType_WireValues(t *testing.T) {
	// Tag values are part of the engine ABI.
	if MessagePreview != 0 || MessagePreviewHogCount != 1 || MessageToNet != 2 || MessageGameFinished != 3 {
		t.Fatal("message tags changed")
	}
	if !MessageGameFinished.Valid() || MessageType(4).Valid() {
		t.Error("Valid boundary wrong")
	}
}

func TestString255(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"short", []byte("glClear")},
		{"binary", []byte{0, 1, 2, 0xff}},
		{"max", bytes.Repeat([]byte{'x'}, MaxString255)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewString255(tt.in)
			if err != nil {
				t.Fatalf("NewString255: %v", err)
			}
			if s.Len() != len(tt.in) {
				t.Errorf("Len = %d, want %d", s.Len(), len(tt.in))
			}
			enc := s.Encoded()
			if len(enc) != 1+len(tt.in) {
				t.Fatalf("encoded size = %d, want %d", len(enc), 1+len(tt.in))
			}
			if int(enc[0]) != len(tt.in) {
				t.Errorf("length byte = %d", enc[0])
			}
			if !bytes.Equal(enc[1:], tt.in) {
				t.Errorf("payload = %v", enc[1:])
			}

			dec, n, err := DecodeString255(append(enc, 0xAA, 0xBB))
			if err != nil {
				t.Fatalf("DecodeString255: %v", err)
			}
			if n != len(enc) {
				t.Errorf("consumed %d, want %d", n, len(enc))
			}
			if !bytes.Equal(dec.Bytes(), tt.in) {
				t.Errorf("decoded %v", dec.Bytes())
			}
		})
	}
}

func TestString255_TooLong(t *testing.T) {
	_, err := NewString255(make([]byte, 256))
	if !errors.Is(err, &enginerrors.Error{Phase: enginerrors.PhaseCodec, Kind: enginerrors.KindInvalidInput}) {
		t.Fatalf("err = %v", err)
	}
	if _, err := AppendString255(nil, make([]byte, 300)); err == nil {
		t.Fatal("AppendString255 accepted 300 bytes")
	}
}

func TestAppendString255(t *testing.T) {
	out, err := AppendString255([]byte("e"), []byte("abc"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, []byte{'e', 3, 'a', 'b', 'c'}) {
		t.Errorf("got %v", out)
	}
}

func TestDecodeString255_Truncated(t *testing.T) {
	if _, _, err := DecodeString255(nil); err == nil {
		t.Error("empty input accepted")
	}
	_, _, err := DecodeString255([]byte{5, 'a', 'b'})
	if err == nil || !strings.Contains(err.Error(), "length 5") {
		t.Errorf("err = %v", err)
	}
}

func TestPreviewInfo(t *testing.T) {
	var zero PreviewInfo
	if !zero.IsZero() {
		t.Error("zero value should be empty preview")
	}

	raw := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17}
	p := PreviewInfoFromBytes(raw)
	if p.IsZero() {
		t.Error("populated preview reported empty")
	}
	if !bytes.Equal(p.Bytes(), raw[:PreviewInfoSize]) {
		t.Errorf("Bytes = %v", p.Bytes())
	}

	b := p.Bytes()
	b[0] = 0xff
	if p.Bytes()[0] != 1 {
		t.Error("Bytes must return a copy")
	}

	short := PreviewInfoFromBytes([]byte{1})
	if !short.Equal(PreviewInfoFromBytes([]byte{1, 0, 0})) {
		t.Error("short input should zero-pad")
	}
}
