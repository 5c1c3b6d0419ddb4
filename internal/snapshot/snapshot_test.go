package snapshot

import (
	"math"
	"testing"
)

func TestParseAccountDefaultsMalformedToZero(t *testing.T) {
	payload := map[string]any{
		"used_amount":      "1000",
		"size_amount":      500.0,
		"remaining_amount": "not-a-number",
		"net_profit":       nil,
		"total_trades":     "7",
		"total_capital":    map[string]any{"nested": true},
	}
	acct := ParseAccount(payload)
	if !closeEnough(acct.UsedAmount, 1000) {
		t.Fatalf("expected used amount 1000, got %f", acct.UsedAmount)
	}
	if !closeEnough(acct.SizeAmount, 500) {
		t.Fatalf("expected size amount 500, got %f", acct.SizeAmount)
	}
	if acct.RemainingAmount != 0 {
		t.Fatalf("expected malformed remaining amount to be 0, got %f", acct.RemainingAmount)
	}
	if acct.NetProfit != 0 || acct.TotalCapital != 0 {
		t.Fatalf("expected missing fields to be 0, got %+v", acct)
	}
	if acct.TotalTrades != 7 {
		t.Fatalf("expected 7 total trades, got %d", acct.TotalTrades)
	}
	if acct.DailyReports != nil {
		t.Fatalf("expected nil daily reports when key absent")
	}
}

func TestParseAccountBackendFees(t *testing.T) {
	acct := ParseAccount(map[string]any{"used_fees": 0.5, "trade_fees": "0.9"})
	if acct.Fees.Used == nil || !closeEnough(*acct.Fees.Used, 0.5) {
		t.Fatalf("expected used fees 0.5, got %v", acct.Fees.Used)
	}
	if acct.Fees.Size != nil {
		t.Fatalf("expected size fees to be absent, got %v", *acct.Fees.Size)
	}
	if acct.Fees.Total == nil || !closeEnough(*acct.Fees.Total, 0.9) {
		t.Fatalf("expected trade fees 0.9, got %v", acct.Fees.Total)
	}
	bad := ParseAccount(map[string]any{"used_fees": "NaN"})
	if bad.Fees.Used != nil {
		t.Fatalf("expected NaN used fees to be treated as absent")
	}
}

func TestParseAccountDailyReports(t *testing.T) {
	acct := ParseAccount(map[string]any{
		"daily_reports": []any{
			map[string]any{"date": "2026-10-13", "total_capital": 1200.5, "net_trade_profit": 3.2, "compound_interest": 1.0021},
			"garbage",
		},
	})
	if len(acct.DailyReports) != 1 {
		t.Fatalf("expected 1 daily report, got %d", len(acct.DailyReports))
	}
	if acct.DailyReports[0].Date != "2026-10-13" {
		t.Fatalf("unexpected report date %q", acct.DailyReports[0].Date)
	}
}

func TestParseTrades(t *testing.T) {
	payload := map[string]any{
		"trades": []any{
			map[string]any{"id": "A1", "type": "Buy", "stake": "12.5", "time_left": 30.0},
			map[string]any{"id": "B2", "type": "Sell", "time_left": nil},
			map[string]any{"type": "Buy"},
		},
	}
	trades, ok := ParseTrades(payload)
	if !ok {
		t.Fatalf("expected trades list to be found")
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].TimeLeft == nil || *trades[0].TimeLeft != 30 {
		t.Fatalf("expected A1 time left 30, got %v", trades[0].TimeLeft)
	}
	if trades[1].TimeLeft != nil {
		t.Fatalf("expected B2 time left to be nil")
	}
	if !closeEnough(trades[0].Stake, 12.5) {
		t.Fatalf("expected stake 12.5, got %f", trades[0].Stake)
	}
}

func TestParseTradesBareList(t *testing.T) {
	trades, ok := ParseTrades([]any{map[string]any{"ordId": "X"}})
	if !ok || len(trades) != 1 || trades[0].ID != "X" {
		t.Fatalf("unexpected trades: %+v", trades)
	}
}

func TestParseTradesMissingList(t *testing.T) {
	for _, payload := range []any{
		map[string]any{},
		map[string]any{"trades": nil},
		map[string]any{"trades": "oops"},
		nil,
	} {
		if trades, ok := ParseTrades(payload); ok || trades != nil {
			t.Fatalf("expected no list for %#v, got %+v", payload, trades)
		}
	}
	trades, ok := ParseTrades(map[string]any{"trades": []any{}})
	if !ok || len(trades) != 0 {
		t.Fatalf("expected present empty list, got %+v %v", trades, ok)
	}
}

func TestParsePositionBlock(t *testing.T) {
	pos := ParsePosition(map[string]any{
		"positions": map[string]any{
			"long":  map[string]any{"in": true, "qty": 0.5, "price": 30000.0},
			"short": map[string]any{"in": false, "qty": 0.0, "price": 0.0},
		},
		"in_position":         false,
		"current_take_profit": 31000.0,
		"current_stop_loss":   29000.0,
	})
	if !pos.Long.In || !closeEnough(pos.Long.Qty, 0.5) {
		t.Fatalf("unexpected long side: %+v", pos.Long)
	}
	if !closeEnough(pos.Long.TakeProfit, 31000) || !closeEnough(pos.Long.StopLoss, 29000) {
		t.Fatalf("expected scalar TP/SL on display side, got %+v", pos.Long)
	}
	if pos.Short.In {
		t.Fatalf("expected short side flat")
	}
}

func TestParsePositionPerSideMaps(t *testing.T) {
	pos := ParsePosition(map[string]any{
		"in_position":          map[string]any{"long": false, "short": true},
		"position_qty":         map[string]any{"long": 0.0, "short": 2.0},
		"position_entry_price": map[string]any{"long": 0.0, "short": 1800.0},
		"current_stop_loss":    map[string]any{"long": 0.0, "short": 1900.0},
	})
	if !pos.Short.In || !closeEnough(pos.Short.Qty, 2) || !closeEnough(pos.Short.StopLoss, 1900) {
		t.Fatalf("unexpected short side: %+v", pos.Short)
	}
	if pos.Long.In {
		t.Fatalf("expected long side flat")
	}
	if !pos.InPosition() {
		t.Fatalf("expected in position")
	}
}

func TestParseRunning(t *testing.T) {
	if running, ok := ParseRunning(map[string]any{"running": true}); !ok || !running {
		t.Fatalf("expected running=true")
	}
	if _, ok := ParseRunning(map[string]any{}); ok {
		t.Fatalf("expected missing running to report !ok")
	}
}

func TestParseStatus(t *testing.T) {
	status := ParseStatus(map[string]any{
		"running":     false,
		"used_amount": 100.0,
		"open_trades": []any{map[string]any{"id": "A1", "time_left": 10.0}},
	})
	if !status.HasRunning || status.Running {
		t.Fatalf("expected running=false present")
	}
	if !status.HasTrades || len(status.Trades) != 1 {
		t.Fatalf("expected one open trade, got %+v", status.Trades)
	}
	if !closeEnough(status.Account.UsedAmount, 100) {
		t.Fatalf("expected used amount 100, got %f", status.Account.UsedAmount)
	}
}

func TestDecodeNonObject(t *testing.T) {
	if m := Decode([]byte(`[1,2]`)); m == nil || len(m) != 0 {
		t.Fatalf("expected empty map, got %v", m)
	}
	if m := Decode(nil); m == nil {
		t.Fatalf("expected empty map for nil payload")
	}
}

func closeEnough(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
