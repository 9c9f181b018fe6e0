package protocol

import (
	"errors"
	"testing"

	"github.com/ent0n29/socketrobot/internal/drive"
)

func TestParseClientMessageKey(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"key","key":"W","action":"down"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	key, ok := msg.(ClientKey)
	if !ok {
		t.Fatalf("message type = %T, want ClientKey", msg)
	}
	if key.Key != "w" || key.Action != "down" {
		t.Fatalf("unexpected key message: %+v", key)
	}

	evs := Events(key)
	if len(evs) != 1 || evs[0].Kind != drive.KindKeyDown || evs[0].Code != drive.CodeForward {
		t.Fatalf("Events() = %+v, want forward key-down", evs)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsInvalid(t *testing.T) {
	for _, raw := range []string{
		``,
		`{"type":"key","key":"w","action":"sideways"}`,
		`{"type":"key","key":"","action":"down"}`,
		`{"type":"button","button":"jump","action":"press"}`,
		`{"type":"button","button":"left","action":"hold"}`,
		`{"type":"command","cmd":"exit"}`,
		`{"type":`,
		`fly`,
	} {
		if _, err := ParseClientMessage([]byte(raw)); err == nil {
			t.Fatalf("ParseClientMessage(%q) should fail", raw)
		}
	}
}

func TestParseClientMessageBareCommand(t *testing.T) {
	msg, err := ParseClientMessage([]byte("STOP\n"))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	cmd, ok := msg.(ClientCommand)
	if !ok || cmd.Cmd != "stop" {
		t.Fatalf("message = %+v, want stop command", msg)
	}
	evs := Events(cmd)
	if len(evs) != 1 || evs[0].Code != drive.CodeStop {
		t.Fatalf("Events() = %+v, want single stop", evs)
	}
}

func TestEventsDirectionalCommandLatches(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"command","cmd":"left"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	evs := Events(msg)
	if len(evs) != 2 {
		t.Fatalf("len(Events()) = %d, want 2", len(evs))
	}
	if evs[0].Code != drive.CodeStop || evs[1].Code != drive.CodeLeft || evs[1].Kind != drive.KindButtonPress {
		t.Fatalf("Events() = %+v, want stop then left press", evs)
	}
}

func TestEventsButtonsAndHeartbeat(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"button","button":"backward","action":"release"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	evs := Events(msg)
	if len(evs) != 1 || evs[0].Kind != drive.KindButtonRelease || evs[0].Code != drive.CodeBackward {
		t.Fatalf("Events() = %+v, want backward release", evs)
	}

	hb, err := ParseClientMessage([]byte(`{"type":"heartbeat"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	evs = Events(hb)
	if len(evs) != 1 || evs[0].Kind != drive.KindHeartbeat {
		t.Fatalf("Events() = %+v, want heartbeat", evs)
	}
}

func TestEventsIgnoresUnmappedKeys(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"key","key":"q","action":"down"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if evs := Events(msg); len(evs) != 0 {
		t.Fatalf("Events() = %+v, want none", evs)
	}
}

func TestTypeOf(t *testing.T) {
	if got, ok := TypeOf(State{Type: TypeState}); !ok || got != TypeState {
		t.Fatalf("TypeOf(State) = %q, %v", got, ok)
	}
	if _, ok := TypeOf(42); ok {
		t.Fatalf("TypeOf(int) should fail")
	}
}

func BenchmarkParseClientMessageKey(b *testing.B) {
	raw := []byte(`{"type":"key","key":"w","action":"down"}`)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msg, err := ParseClientMessage(raw)
		if err != nil {
			b.Fatalf("ParseClientMessage() error = %v", err)
		}
		if _, ok := msg.(ClientKey); !ok {
			b.Fatalf("message type = %T, want ClientKey", msg)
		}
	}
}
