package messages

import (
	"unicode/utf8"

	"github.com/wippyai/engine-bridge/errors"
)

// Kind classifies a parsed message.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindSynced
	KindTimeWrap
	KindUnsynced
	KindConfig
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindSynced:
		return "synced"
	case KindTimeWrap:
		return "time-wrap"
	case KindUnsynced:
		return "unsynced"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// TimeWrapTimestamp is the timestamp implied by a TimeWrap message.
const TimeWrapTimestamp = 65535

// Message is one engine IPC message.
type Message interface {
	Kind() Kind
	appendBody(dst []byte) ([]byte, error)
}

// Op is a synced command opcode.
type Op byte

const (
	OpLeftPress         Op = 'L'
	OpLeftRelease       Op = 'l'
	OpRightPress        Op = 'R'
	OpRightRelease      Op = 'r'
	OpUpPress           Op = 'U'
	OpUpRelease         Op = 'u'
	OpDownPress         Op = 'D'
	OpDownRelease       Op = 'd'
	OpPrecisePress      Op = 'Z'
	OpPreciseRelease    Op = 'z'
	OpAttackPress       Op = 'A'
	OpAttackRelease     Op = 'a'
	OpNextTurn          Op = 'N'
	OpLongJump          Op = 'j'
	OpHighJump          Op = 'J'
	OpSwitch            Op = 'S'
	OpSkip              Op = ','
	OpTimer1            Op = '1'
	OpTimer2            Op = '2'
	OpTimer3            Op = '3'
	OpTimer4            Op = '4'
	OpTimer5            Op = '5'
	OpPut               Op = 'p'
	OpCursorMove        Op = 'P'
	OpTeamControlLost   Op = 'f'
	OpTeamControlGained Op = 'g'
)

// takesCoords reports ops followed by two be_i24 coordinates.
func (o Op) takesCoords() bool {
	return o == OpPut || o == OpCursorMove
}

// takesTeam reports ops followed by a team name running to the end.
func (o Op) takesTeam() bool {
	return o == OpTeamControlLost || o == OpTeamControlGained
}

func (o Op) simple() bool {
	switch o {
	case OpLeftPress, OpLeftRelease, OpRightPress, OpRightRelease,
		OpUpPress, OpUpRelease, OpDownPress, OpDownRelease,
		OpPrecisePress, OpPreciseRelease, OpAttackPress, OpAttackRelease,
		OpNextTurn, OpLongJump, OpHighJump, OpSwitch, OpSkip,
		OpTimer1, OpTimer2, OpTimer3, OpTimer4, OpTimer5:
		return true
	}
	return false
}

// Empty is the single 0x00 byte message.
type Empty struct{}

func (Empty) Kind() Kind { return KindEmpty }

func (Empty) appendBody(dst []byte) ([]byte, error) { return dst, nil }

// Synced is a timestamped game command.
type Synced struct {
	Team      string
	X, Y      int32
	Timestamp uint16
	Op        Op
}

func (Synced) Kind() Kind { return KindSynced }

func (m Synced) appendBody(dst []byte) ([]byte, error) {
	dst = append(dst, byte(m.Op))
	switch {
	case m.Op.takesCoords():
		var err error
		if dst, err = appendI24(dst, m.X); err != nil {
			return dst, err
		}
		if dst, err = appendI24(dst, m.Y); err != nil {
			return dst, err
		}
	case m.Op.takesTeam():
		dst = append(dst, m.Team...)
	case !m.Op.simple():
		return dst, errors.New(errors.PhaseCodec, errors.KindInvalidInput).
			Value(byte(m.Op)).
			Detail("unknown synced op %q", byte(m.Op)).
			Build()
	}
	return append(dst, byte(m.Timestamp>>8), byte(m.Timestamp)), nil
}

// TimeWrap marks the synced timestamp wrapping around.
type TimeWrap struct{}

func (TimeWrap) Kind() Kind { return KindTimeWrap }

func (TimeWrap) appendBody(dst []byte) ([]byte, error) { return append(dst, '#'), nil }

// Ping is an unsynced keep-alive. Bang selects the '!' spelling.
type Ping struct {
	Bang bool
}

func (Ping) Kind() Kind { return KindUnsynced }

func (m Ping) appendBody(dst []byte) ([]byte, error) {
	if m.Bang {
		return append(dst, '!'), nil
	}
	return append(dst, '?'), nil
}

// Say is an unsynced chat line.
type Say struct {
	Text string
}

func (Say) Kind() Kind { return KindUnsynced }

func (m Say) appendBody(dst []byte) ([]byte, error) {
	dst = append(dst, sayPrefix...)
	return append(dst, m.Text...), nil
}

// ConfigRequest asks the engine to report its configuration state.
type ConfigRequest struct{}

func (ConfigRequest) Kind() Kind { return KindConfig }

func (ConfigRequest) appendBody(dst []byte) ([]byte, error) { return append(dst, 'C'), nil }

// Unknown carries a body no other message matched.
type Unknown struct {
	Body []byte
}

func (Unknown) Kind() Kind { return KindUnknown }

func (m Unknown) appendBody(dst []byte) ([]byte, error) { return append(dst, m.Body...), nil }

const sayPrefix = "esay "

const (
	minI24 = -1 << 23
	maxI24 = 1<<23 - 1
)

func appendI24(dst []byte, v int32) ([]byte, error) {
	if v < minI24 || v > maxI24 {
		return dst, errors.New(errors.PhaseCodec, errors.KindInvalidInput).
			Value(v).
			Detail("coordinate %d outside 24-bit range", v).
			Build()
	}
	u := uint32(v)
	return append(dst, byte(u>>16), byte(u>>8), byte(u)), nil
}

func readI24(b []byte) int32 {
	u := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	if u&0x800000 != 0 {
		u |= 0xff000000
	}
	return int32(u)
}

func validText(b []byte) bool {
	return utf8.Valid(b)
}
