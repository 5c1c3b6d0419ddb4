package push

import (
	"encoding/json"
	"testing"
)

func TestDecodeEventObject(t *testing.T) {
	evt, err := DecodeEvent([]byte(`{"event":"bot_status","data":{"running":true}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.Kind != KindBotStatus || evt.Data["running"] != true {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestDecodeEventArray(t *testing.T) {
	evt, err := DecodeEvent([]byte(` ["trades_update", {"trades": []}] `))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.Kind != KindTradesUpdate {
		t.Fatalf("expected trades_update, got %q", evt.Kind)
	}
	if _, ok := evt.Data["trades"]; !ok {
		t.Fatalf("expected trades key, got %v", evt.Data)
	}
}

func TestDecodeEventWithoutData(t *testing.T) {
	for _, raw := range []string{`{"event":"console_cleared"}`, `["console_cleared"]`, `{"event":"console_cleared","data":"x"}`} {
		evt, err := DecodeEvent([]byte(raw))
		if err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
		if evt.Kind != KindConsoleCleared || evt.Data == nil || len(evt.Data) != 0 {
			t.Fatalf("unexpected event %+v for %s", evt, raw)
		}
	}
}

func TestDecodeEventRejectsMalformed(t *testing.T) {
	for _, raw := range []string{``, `   `, `42`, `{"data":{}}`, `[]`, `[1,{}]`, `{bad`} {
		if _, err := DecodeEvent([]byte(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestEncodeCommand(t *testing.T) {
	data, err := EncodeCommand(CmdBatchModifyTPSL, map[string]any{"tp_price": 101.5})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg["event"] != CmdBatchModifyTPSL {
		t.Fatalf("unexpected event %v", msg["event"])
	}
	payload, _ := msg["data"].(map[string]any)
	if payload["tp_price"] != 101.5 {
		t.Fatalf("unexpected data %v", msg["data"])
	}

	data, _ = EncodeCommand(CmdStartBot, nil)
	if string(data) != `{"event":"start_bot"}` {
		t.Fatalf("unexpected encoding %s", data)
	}
}
