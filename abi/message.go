package abi

import "fmt"

// MessageType tags an asynchronous event raised by the engine.
type MessageType uint32

const (
	MessagePreview MessageType = iota
	MessagePreviewHogCount
	MessageToNet
	MessageGameFinished
)

// Valid reports whether t is one of the known tags.
func (t MessageType) Valid() bool {
	return t <= MessageGameFinished
}

func (t MessageType) String() string {
	switch t {
	case MessagePreview:
		return "preview"
	case MessagePreviewHogCount:
		return "preview-hog-count"
	case MessageToNet:
		return "to-net"
	case MessageGameFinished:
		return "game-finished"
	default:
		return fmt.Sprintf("message-type(%d)", uint32(t))
	}
}

// Message is one inbound event. Payload is owned by the receiver; the
// bridge copies it out of engine memory before delivery.
type Message struct {
	Payload []byte
	Type    MessageType
}
