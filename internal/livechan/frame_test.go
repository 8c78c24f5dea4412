package livechan

import "testing"

func TestDecodeEventFrame(t *testing.T) {
	p, err := decodePacket([]byte(`42["game_update",{"game_id":"g1","status":"ongoing"}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.engine != eioMessage || p.socket != sioEvent || p.event != "game_update" {
		t.Fatalf("unexpected packet: %+v", p)
	}
	if string(p.data) != `{"game_id":"g1","status":"ongoing"}` {
		t.Fatalf("unexpected data: %s", p.data)
	}
}

func TestDecodeNamespacedEventWithAckID(t *testing.T) {
	p, err := decodePacket([]byte(`42/chess,17["game_update",{"game_id":"g2"}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.event != "game_update" || string(p.data) != `{"game_id":"g2"}` {
		t.Fatalf("unexpected packet: %+v", p)
	}
}

func TestDecodeControlFrames(t *testing.T) {
	open, err := decodePacket([]byte(`0{"sid":"abc","pingInterval":100,"pingTimeout":50}`))
	if err != nil || open.engine != eioOpen {
		t.Fatalf("open: %+v %v", open, err)
	}
	for _, raw := range []string{"2", "3", "1", "40", `40{"sid":"x"}`, "41"} {
		if _, err := decodePacket([]byte(raw)); err != nil {
			t.Fatalf("%q: %v", raw, err)
		}
	}
	for _, raw := range []string{"", "9", "4", "42", "42[]", "47"} {
		if _, err := decodePacket([]byte(raw)); err == nil {
			t.Fatalf("%q: expected error", raw)
		}
	}
}

func TestEncodeFrames(t *testing.T) {
	b, err := encodeEvent(eventJoinGame, map[string]string{"game_id": "g1"})
	if err != nil || string(b) != `42["join_game",{"game_id":"g1"}]` {
		t.Fatalf("join frame %q %v", b, err)
	}
	b, err = encodeConnect(nil)
	if err != nil || string(b) != "40" {
		t.Fatalf("connect frame %q %v", b, err)
	}
	b, err = encodeConnect(map[string]string{"token": "t"})
	if err != nil || string(b) != `40{"token":"t"}` {
		t.Fatalf("auth connect frame %q %v", b, err)
	}
}
