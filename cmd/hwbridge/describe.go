package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/wippyai/engine-bridge/abi"
	"github.com/wippyai/engine-bridge/messages"
)

const maxHexDump = 32

// describeEvent renders an engine event on one line. to-net payloads are
// decoded as engine messages.
func describeEvent(m abi.Message) string {
	switch m.Type {
	case abi.MessageGameFinished:
		return m.Type.String()
	case abi.MessageToNet:
		msgs, consumed := messages.Extract(m.Payload)
		parts := make([]string, 0, len(msgs))
		for _, msg := range msgs {
			parts = append(parts, describeMessage(msg))
		}
		s := fmt.Sprintf("%s [%s]", m.Type, strings.Join(parts, ", "))
		if rest := len(m.Payload) - consumed; rest > 0 {
			s += fmt.Sprintf(" +%d trailing bytes", rest)
		}
		return s
	default:
		return fmt.Sprintf("%s %d bytes %s", m.Type, len(m.Payload), hexDump(m.Payload))
	}
}

func describeMessage(m messages.Message) string {
	switch v := m.(type) {
	case messages.Empty:
		return "empty"
	case messages.TimeWrap:
		return "time-wrap"
	case messages.ConfigRequest:
		return "config-request"
	case messages.Ping:
		return "ping"
	case messages.Say:
		return fmt.Sprintf("say %q", v.Text)
	case messages.Synced:
		switch v.Op {
		case messages.OpPut, messages.OpCursorMove:
			return fmt.Sprintf("synced %c (%d,%d) @%d", v.Op, v.X, v.Y, v.Timestamp)
		case messages.OpTeamControlLost, messages.OpTeamControlGained:
			return fmt.Sprintf("synced %c %q @%d", v.Op, v.Team, v.Timestamp)
		}
		return fmt.Sprintf("synced %c @%d", v.Op, v.Timestamp)
	case messages.Unknown:
		return "unknown " + hexDump(v.Body)
	}
	return m.Kind().String()
}

func hexDump(b []byte) string {
	if len(b) > maxHexDump {
		return hex.EncodeToString(b[:maxHexDump]) + "..."
	}
	return hex.EncodeToString(b)
}
