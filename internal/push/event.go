package push

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

type Kind string

const (
	KindBotStatus        Kind = "bot_status"
	KindAccountUpdate    Kind = "account_update"
	KindTradesUpdate     Kind = "trades_update"
	KindPositionUpdate   Kind = "position_update"
	KindConsoleLog       Kind = "console_log"
	KindConsoleCleared   Kind = "console_cleared"
	KindSuccess          Kind = "success"
	KindWarning          Kind = "warning"
	KindError            Kind = "error"
	KindConnectionStatus Kind = "connection_status"
	KindPong             Kind = "pong"
)

// Outbound command names.
const (
	CmdStartBot          = "start_bot"
	CmdStopBot           = "stop_bot"
	CmdClearConsole      = "clear_console"
	CmdEmergencySL       = "emergency_sl"
	CmdBatchModifyTPSL   = "batch_modify_tpsl"
	CmdBatchCancelOrders = "batch_cancel_orders"
	cmdPing              = "ping"
)

type Event struct {
	Kind Kind
	// Data is never nil. Non-object payloads decode to an empty map.
	Data map[string]any
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var errEmptyFrame = errors.New("empty frame")

// DecodeEvent accepts {"event": kind, "data": {...}} or the array form
// ["kind", {...}].
func DecodeEvent(raw []byte) (Event, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Event{}, errEmptyFrame
	}
	switch raw[0] {
	case '{':
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return Event{}, fmt.Errorf("decode envelope: %w", err)
		}
		if env.Event == "" {
			return Event{}, errors.New("envelope has no event name")
		}
		return Event{Kind: Kind(env.Event), Data: decodeData(env.Data)}, nil
	case '[':
		var parts []json.RawMessage
		if err := json.Unmarshal(raw, &parts); err != nil {
			return Event{}, fmt.Errorf("decode array frame: %w", err)
		}
		if len(parts) == 0 {
			return Event{}, errEmptyFrame
		}
		var name string
		if err := json.Unmarshal(parts[0], &name); err != nil || name == "" {
			return Event{}, errors.New("array frame has no event name")
		}
		var data json.RawMessage
		if len(parts) > 1 {
			data = parts[1]
		}
		return Event{Kind: Kind(name), Data: decodeData(data)}, nil
	default:
		return Event{}, fmt.Errorf("unexpected frame %q", truncate(raw, 32))
	}
}

// EncodeCommand builds the outbound envelope. Nil data is omitted.
func EncodeCommand(name string, data any) ([]byte, error) {
	msg := map[string]any{"event": name}
	if data != nil {
		msg["data"] = data
	}
	return json.Marshal(msg)
}

func decodeData(raw json.RawMessage) map[string]any {
	var m map[string]any
	if len(raw) == 0 || json.Unmarshal(raw, &m) != nil || m == nil {
		return map[string]any{}
	}
	return m
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
