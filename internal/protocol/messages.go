package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/socketrobot/internal/arbiter"
	"github.com/ent0n29/socketrobot/internal/drive"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeKey        MessageType = "key"
	TypeButton     MessageType = "button"
	TypeCommand    MessageType = "command"
	TypeHeartbeat  MessageType = "heartbeat"
	TypeHello      MessageType = "hello"
	TypeState      MessageType = "state"
	TypeErrorEvent MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientKey is a keyboard transition. Action is "down" or "up".
type ClientKey struct {
	Type   MessageType `json:"type"`
	Key    string      `json:"key"`
	Action string      `json:"action"`
}

// ClientButton is an on-screen button transition. Action is "press" or "release".
type ClientButton struct {
	Type   MessageType `json:"type"`
	Button string      `json:"button"`
	Action string      `json:"action"`
}

// ClientCommand latches one direction for the session, or stops it.
type ClientCommand struct {
	Type MessageType `json:"type"`
	Cmd  string      `json:"cmd"`
}

type ClientHeartbeat struct {
	Type MessageType `json:"type"`
}

type Hello struct {
	Type                MessageType       `json:"type"`
	SessionID           string            `json:"session_id"`
	HeartbeatIntervalMS int64             `json:"heartbeat_interval_ms"`
	FailsafeTimeoutMS   int64             `json:"failsafe_timeout_ms"`
	State               arbiter.HeldState `json:"state"`
}

type State struct {
	Type      MessageType       `json:"type"`
	SessionID string            `json:"session_id"`
	Held      arbiter.HeldState `json:"held"`
	Vector    drive.DriveVector `json:"vector"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail"`
}

// ParseClientMessage decodes one inbound frame. Frames that are not JSON are
// treated as a bare command ("stop", "forward", ...).
func ParseClientMessage(raw []byte) (any, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, errors.New("empty message")
	}
	if !strings.HasPrefix(trimmed, "{") {
		cmd := ClientCommand{Type: TypeCommand, Cmd: strings.ToLower(trimmed)}
		if _, ok := commandCode(cmd.Cmd); !ok {
			return nil, fmt.Errorf("unknown command %q", trimmed)
		}
		return cmd, nil
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeKey:
		var msg ClientKey
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		msg.Key = strings.ToLower(strings.TrimSpace(msg.Key))
		msg.Action = strings.ToLower(strings.TrimSpace(msg.Action))
		if msg.Key == "" || (msg.Action != "down" && msg.Action != "up") {
			return nil, errors.New("invalid key message")
		}
		return msg, nil
	case TypeButton:
		var msg ClientButton
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		msg.Button = strings.ToLower(strings.TrimSpace(msg.Button))
		msg.Action = strings.ToLower(strings.TrimSpace(msg.Action))
		if _, ok := commandCode(msg.Button); !ok {
			return nil, fmt.Errorf("invalid button %q", msg.Button)
		}
		if msg.Action != "press" && msg.Action != "release" {
			return nil, errors.New("invalid button message")
		}
		return msg, nil
	case TypeCommand:
		var msg ClientCommand
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		msg.Cmd = strings.ToLower(strings.TrimSpace(msg.Cmd))
		if _, ok := commandCode(msg.Cmd); !ok {
			return nil, fmt.Errorf("unknown command %q", msg.Cmd)
		}
		return msg, nil
	case TypeHeartbeat:
		return ClientHeartbeat{Type: TypeHeartbeat}, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// Events translates a parsed client message into input events, in the order
// they must be applied. Keys the robot does not use translate to nothing.
func Events(msg any) []drive.InputEvent {
	switch m := msg.(type) {
	case ClientKey:
		code, ok := keyCode(m.Key)
		if !ok {
			return nil
		}
		kind := drive.KindKeyDown
		if m.Action == "up" {
			kind = drive.KindKeyUp
		}
		return []drive.InputEvent{{Kind: kind, Code: code}}
	case ClientButton:
		code, _ := commandCode(m.Button)
		kind := drive.KindButtonPress
		if m.Action == "release" {
			kind = drive.KindButtonRelease
		}
		return []drive.InputEvent{{Kind: kind, Code: code}}
	case ClientCommand:
		code, ok := commandCode(m.Cmd)
		if !ok {
			return nil
		}
		stop := drive.InputEvent{Kind: drive.KindButtonPress, Code: drive.CodeStop}
		if code == drive.CodeStop {
			return []drive.InputEvent{stop}
		}
		return []drive.InputEvent{stop, {Kind: drive.KindButtonPress, Code: code}}
	case ClientHeartbeat:
		return []drive.InputEvent{{Kind: drive.KindHeartbeat}}
	default:
		return nil
	}
}

func keyCode(key string) (drive.Code, bool) {
	switch key {
	case "w", "arrowup", "up":
		return drive.CodeForward, true
	case "s", "arrowdown", "down":
		return drive.CodeBackward, true
	case "a", "arrowleft", "left":
		return drive.CodeLeft, true
	case "d", "arrowright", "right":
		return drive.CodeRight, true
	case "space", "escape", "esc":
		return drive.CodeStop, true
	default:
		return drive.CodeNone, false
	}
}

func commandCode(cmd string) (drive.Code, bool) {
	switch cmd {
	case "forward":
		return drive.CodeForward, true
	case "backward", "back":
		return drive.CodeBackward, true
	case "left":
		return drive.CodeLeft, true
	case "right":
		return drive.CodeRight, true
	case "stop":
		return drive.CodeStop, true
	default:
		return drive.CodeNone, false
	}
}

// TypeOf returns the message type of any protocol message.
func TypeOf(v any) (MessageType, bool) {
	switch m := v.(type) {
	case ClientKey:
		return m.Type, true
	case ClientButton:
		return m.Type, true
	case ClientCommand:
		return m.Type, true
	case ClientHeartbeat:
		return m.Type, true
	case Hello:
		return m.Type, true
	case State:
		return m.Type, true
	case ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
