package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"bot-panel/internal/alerts"
	"bot-panel/internal/config"
	"bot-panel/internal/fees"
	"bot-panel/internal/push"
	"bot-panel/internal/session"
	"bot-panel/internal/state"
	"bot-panel/internal/transition"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	return val, ok, nil
}

func (m *memoryStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string]string)
	}
	m.data[key] = value
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memoryStore) List(ctx context.Context, prefix string, limit int) ([]state.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []state.Entry
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, state.Entry{Key: k, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key > out[j].Key })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) Close() error {
	return nil
}

type fakePanel struct {
	mu       sync.Mutex
	calls    []string
	changes  map[string]any
	startErr error
	view     session.View
	config   map[string]any
}

func (f *fakePanel) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakePanel) View() *session.View {
	v := f.view
	return &v
}

func (f *fakePanel) RequestStart(ctx context.Context) error {
	f.record("start")
	return f.startErr
}

func (f *fakePanel) RequestStop(ctx context.Context) error {
	f.record("stop")
	return nil
}

func (f *fakePanel) SendRisk(ctx context.Context, cmd string) error {
	f.record(cmd)
	return nil
}

func (f *fakePanel) ClearConsole(ctx context.Context) error {
	f.record("clear")
	return nil
}

func (f *fakePanel) Resync(ctx context.Context) error {
	f.record("resync")
	return nil
}

func (f *fakePanel) EditConfig(ctx context.Context, changes map[string]any) error {
	f.record("edit")
	f.changes = changes
	return nil
}

func (f *fakePanel) BackendConfig(ctx context.Context) (map[string]any, error) {
	return f.config, nil
}

func newOperatorApp() (*App, *fakePanel, *memoryStore) {
	panel := &fakePanel{}
	store := &memoryStore{data: make(map[string]string)}
	return &App{panel: panel, store: store, log: zap.NewNop(), cfg: &config.Config{}}, panel, store
}

func TestParseOperatorCommand(t *testing.T) {
	cmd, args, ok := parseOperatorCommand("/set trade_fee_percentage=0.05")
	if !ok {
		t.Fatalf("expected ok")
	}
	if cmd != "set" {
		t.Fatalf("expected set, got %s", cmd)
	}
	if len(args) != 1 || args[0] != "trade_fee_percentage=0.05" {
		t.Fatalf("unexpected args: %v", args)
	}
	if cmd, _, ok := parseOperatorCommand("/Status@panel_bot"); !ok || cmd != "status" {
		t.Fatalf("expected status from mention form, got %q %v", cmd, ok)
	}
	for _, text := range []string{"", "status", "   ", "/"} {
		if _, _, ok := parseOperatorCommand(text); ok {
			t.Fatalf("expected %q to be rejected", text)
		}
	}
}

func TestParseConfigChanges(t *testing.T) {
	changes, err := parseConfigChanges([]string{"trade_fee_percentage=0.05", "use_pnl_auto_cal=true", "symbol=BTCUSDT"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if changes["trade_fee_percentage"] != 0.05 {
		t.Fatalf("expected float value, got %#v", changes["trade_fee_percentage"])
	}
	if changes["use_pnl_auto_cal"] != true {
		t.Fatalf("expected bool value, got %#v", changes["use_pnl_auto_cal"])
	}
	if changes["symbol"] != "BTCUSDT" {
		t.Fatalf("expected string value, got %#v", changes["symbol"])
	}
	if _, err := parseConfigChanges([]string{"novalue"}); err == nil {
		t.Fatalf("expected error for missing value")
	}
	if _, err := parseConfigChanges([]string{"key="}); err == nil {
		t.Fatalf("expected error for empty value")
	}
}

func TestOperatorStartStopAudit(t *testing.T) {
	app, panel, store := newOperatorApp()
	meta := operatorMeta{UpdateID: 10, UserID: 1, ChatID: 2, Raw: "/start"}

	resp, err := app.handleOperatorCommand(context.Background(), "start", nil, meta)
	if err != nil {
		t.Fatalf("start error: %v", err)
	}
	if resp != "start requested" {
		t.Fatalf("unexpected start response: %s", resp)
	}

	panel.startErr = transition.ErrPending
	meta.UpdateID = 11
	if _, err := app.handleOperatorCommand(context.Background(), "start", nil, meta); !errors.Is(err, transition.ErrPending) {
		t.Fatalf("expected pending error, got %v", err)
	}

	meta.UpdateID, meta.Raw = 12, "/stop"
	resp, err = app.handleOperatorCommand(context.Background(), "stop", nil, meta)
	if err != nil || resp != "stop requested" {
		t.Fatalf("unexpected stop result: %q %v", resp, err)
	}

	events, err := state.RecentAudit(context.Background(), store, 10)
	if err != nil {
		t.Fatalf("recent audit: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 audit events, got %d", len(events))
	}
	byUpdate := make(map[int64]state.AuditEvent)
	for _, e := range events {
		byUpdate[e.UpdateID] = e
	}
	if byUpdate[10].Action != "start" || byUpdate[10].Error != "" {
		t.Fatalf("unexpected start audit: %+v", byUpdate[10])
	}
	if byUpdate[11].Error != transition.ErrPending.Error() {
		t.Fatalf("expected failed start audited, got %+v", byUpdate[11])
	}
	if byUpdate[12].Action != "stop" || byUpdate[12].Source != state.AuditSourceTelegram {
		t.Fatalf("unexpected stop audit: %+v", byUpdate[12])
	}
}

func TestOperatorRiskCommands(t *testing.T) {
	app, panel, _ := newOperatorApp()
	for _, cmd := range []string{"emergency_sl", "tpsl", "cancel_orders"} {
		if _, err := app.handleOperatorCommand(context.Background(), cmd, nil, operatorMeta{Raw: "/" + cmd}); err != nil {
			t.Fatalf("%s: %v", cmd, err)
		}
	}
	want := []string{push.CmdEmergencySL, push.CmdBatchModifyTPSL, push.CmdBatchCancelOrders}
	if strings.Join(panel.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected calls: %v", panel.calls)
	}
}

func TestOperatorSetAndShowConfig(t *testing.T) {
	app, panel, store := newOperatorApp()
	panel.config = map[string]any{"trade_fee_percentage": 0.07, "symbol": "BTCUSDT", "pnl_auto_cal_times": 4.0}

	resp, err := app.handleOperatorCommand(context.Background(), "set", nil, operatorMeta{})
	if err != nil {
		t.Fatalf("show config: %v", err)
	}
	if !strings.Contains(resp, "trade_fee_percentage=0.07") || !strings.Contains(resp, "pnl_auto_cal_times=4") {
		t.Fatalf("unexpected config text: %s", resp)
	}
	if strings.Contains(resp, "symbol") {
		t.Fatalf("non-live key shown: %s", resp)
	}

	meta := operatorMeta{UpdateID: 5, Raw: "/set trade_fee_percentage=0.1"}
	if _, err := app.handleOperatorCommand(context.Background(), "set", []string{"trade_fee_percentage=0.1"}, meta); err != nil {
		t.Fatalf("set: %v", err)
	}
	if panel.changes[fees.KeyFeeRate] != 0.1 {
		t.Fatalf("unexpected changes: %v", panel.changes)
	}
	events, _ := state.RecentAudit(context.Background(), store, 1)
	if len(events) != 1 || events[0].Action != "config_set" || events[0].Changes[fees.KeyFeeRate] != 0.1 {
		t.Fatalf("unexpected audit: %+v", events)
	}
}

func TestOperatorStatusAndFees(t *testing.T) {
	app, panel, _ := newOperatorApp()
	panel.view.Run = transition.RunState{Running: true, Known: true, Phase: transition.PhaseIdle}
	panel.view.Connected = true
	panel.view.LiveConfig = fees.DefaultLiveConfig()
	panel.view.Fees = fees.Figures{UsedFee: 0.7, SizeFee: 0.35, RemainingFee: 0.14, TotalFee: 0.84}

	status, _ := app.handleOperatorCommand(context.Background(), "status", nil, operatorMeta{})
	if !strings.Contains(status, "running: true") || !strings.Contains(status, "connected: true") {
		t.Fatalf("unexpected status: %s", status)
	}
	feeText, _ := app.handleOperatorCommand(context.Background(), "fees", nil, operatorMeta{})
	if !strings.Contains(feeText, "total_fee: 0.8400") {
		t.Fatalf("unexpected fees: %s", feeText)
	}
	help, _ := app.handleOperatorCommand(context.Background(), "unknown", nil, operatorMeta{})
	if !strings.Contains(help, "/emergency_sl") {
		t.Fatalf("expected help text, got %s", help)
	}
}

type fakeOperatorBot struct {
	mu      sync.Mutex
	batches [][]alerts.Update
	offsets []int64
	sent    []string
	cancel  context.CancelFunc
}

func (b *fakeOperatorBot) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]alerts.Update, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offsets = append(b.offsets, offset)
	if len(b.batches) == 0 {
		b.cancel()
		return nil, ctx.Err()
	}
	next := b.batches[0]
	b.batches = b.batches[1:]
	return next, nil
}

func (b *fakeOperatorBot) Send(ctx context.Context, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, message)
	return nil
}

func update(id, chatID, userID int64, text string) alerts.Update {
	return alerts.Update{
		UpdateID: id,
		Message: &alerts.Message{
			Text: text,
			Chat: &alerts.Chat{ID: chatID},
			From: &alerts.User{ID: userID, Username: "ops"},
		},
	}
}

func TestOperatorLoopFiltersAndPersistsOffset(t *testing.T) {
	app, panel, store := newOperatorApp()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bot := &fakeOperatorBot{cancel: cancel, batches: [][]alerts.Update{{
		update(7, 99, 1, "/stop"),
		update(8, 100, 1, "/start"),
		update(9, 99, 2, "/start"),
		update(10, 99, 1, "hello"),
	}}}

	app.operatorLoop(ctx, bot, 99, map[int64]struct{}{1: {}}, time.Millisecond)

	if strings.Join(panel.calls, ",") != "stop" {
		t.Fatalf("expected only allowed stop, got %v", panel.calls)
	}
	if len(bot.sent) != 1 || bot.sent[0] != "stop requested" {
		t.Fatalf("unexpected replies: %v", bot.sent)
	}
	if got := state.LoadOffset(context.Background(), store, state.OperatorOffsetKey); got != 11 {
		t.Fatalf("expected offset 11, got %d", got)
	}
	if len(bot.offsets) != 2 || bot.offsets[1] != 11 {
		t.Fatalf("unexpected polled offsets: %v", bot.offsets)
	}
}
