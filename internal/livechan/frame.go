package livechan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Engine.IO v4 packet types.
const (
	eioOpen    byte = '0'
	eioClose   byte = '1'
	eioPing    byte = '2'
	eioPong    byte = '3'
	eioMessage byte = '4'
)

// Socket.IO v4 packet types, carried inside an Engine.IO message.
const (
	sioConnect      byte = '0'
	sioDisconnect   byte = '1'
	sioEvent        byte = '2'
	sioAck          byte = '3'
	sioConnectError byte = '4'
)

var (
	pongFrame       = []byte{eioPong}
	disconnectFrame = []byte{eioMessage, sioDisconnect}
)

type packet struct {
	engine byte
	socket byte
	event  string
	data   json.RawMessage
}

type openPayload struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
	MaxPayload   int    `json:"maxPayload"`
}

func (o openPayload) heartbeat() time.Duration {
	interval, timeout := o.PingInterval, o.PingTimeout
	if interval <= 0 {
		interval = 25000
	}
	if timeout <= 0 {
		timeout = 20000
	}
	return time.Duration(interval+timeout) * time.Millisecond
}

func decodePacket(b []byte) (packet, error) {
	if len(b) == 0 {
		return packet{}, fmt.Errorf("empty frame")
	}
	p := packet{engine: b[0]}
	rest := b[1:]
	switch p.engine {
	case eioOpen:
		p.data = json.RawMessage(rest)
		return p, nil
	case eioClose, eioPing, eioPong:
		return p, nil
	case eioMessage:
	default:
		return packet{}, fmt.Errorf("unknown engine packet %q", p.engine)
	}

	if len(rest) == 0 {
		return packet{}, fmt.Errorf("empty socket packet")
	}
	p.socket = rest[0]
	rest = skipNamespace(rest[1:])
	switch p.socket {
	case sioConnect, sioConnectError, sioDisconnect:
		if len(rest) > 0 {
			p.data = json.RawMessage(rest)
		}
		return p, nil
	case sioEvent, sioAck:
	default:
		return packet{}, fmt.Errorf("unknown socket packet %q", p.socket)
	}

	rest = skipAckID(rest)
	var args []json.RawMessage
	if err := json.Unmarshal(rest, &args); err != nil {
		return packet{}, fmt.Errorf("decode event args: %w", err)
	}
	if p.socket == sioEvent {
		if len(args) == 0 {
			return packet{}, fmt.Errorf("event without name")
		}
		if err := json.Unmarshal(args[0], &p.event); err != nil {
			return packet{}, fmt.Errorf("decode event name: %w", err)
		}
		args = args[1:]
	}
	if len(args) > 0 {
		p.data = args[0]
	}
	return p, nil
}

// skipNamespace drops a "/ns," prefix; the default namespace has none.
func skipNamespace(b []byte) []byte {
	if len(b) == 0 || b[0] != '/' {
		return b
	}
	if i := bytes.IndexByte(b, ','); i >= 0 {
		return b[i+1:]
	}
	return nil
}

func skipAckID(b []byte) []byte {
	i := 0
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		i++
	}
	return b[i:]
}

func encodeEvent(event string, payload any) ([]byte, error) {
	args := []any{event}
	if payload != nil {
		args = append(args, payload)
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return append([]byte{eioMessage, sioEvent}, body...), nil
}

func encodeConnect(auth any) ([]byte, error) {
	frame := []byte{eioMessage, sioConnect}
	if auth == nil {
		return frame, nil
	}
	body, err := json.Marshal(auth)
	if err != nil {
		return nil, fmt.Errorf("encode connect: %w", err)
	}
	return append(frame, body...), nil
}
