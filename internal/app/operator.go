package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"bot-panel/internal/alerts"
	"bot-panel/internal/fees"
	"bot-panel/internal/push"
	"bot-panel/internal/state"

	"go.uber.org/zap"
)

type operatorBot interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]alerts.Update, error)
	Send(ctx context.Context, message string) error
}

type operatorMeta struct {
	UpdateID int64
	UserID   int64
	Username string
	ChatID   int64
	Raw      string
}

var operatorRiskCommands = map[string]string{
	"emergency_sl":  push.CmdEmergencySL,
	"tpsl":          push.CmdBatchModifyTPSL,
	"cancel_orders": push.CmdBatchCancelOrders,
}

// startOperator polls Telegram for operator commands until ctx ends.
func (a *App) startOperator(ctx context.Context) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(a.cfg.Telegram.ChatID), 10, 64)
	if err != nil {
		a.log.Warn("telegram operator disabled: invalid chat_id", zap.Error(err))
		return
	}
	pollInterval := a.cfg.Telegram.OperatorPollInterval
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	allowedUsers := make(map[int64]struct{}, len(a.cfg.Telegram.OperatorAllowedUserIDs))
	for _, id := range a.cfg.Telegram.OperatorAllowedUserIDs {
		allowedUsers[id] = struct{}{}
	}
	a.operatorLoop(ctx, a.alerts, chatID, allowedUsers, pollInterval)
}

func (a *App) operatorLoop(ctx context.Context, bot operatorBot, chatID int64, allowedUsers map[int64]struct{}, pollInterval time.Duration) {
	offset := state.LoadOffset(ctx, a.store, state.OperatorOffsetKey)
	for {
		if ctx.Err() != nil {
			return
		}
		updates, err := bot.GetUpdates(ctx, offset, pollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logOperatorError(err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		if a.operatorWarned {
			a.log.Info("telegram operator recovered")
			a.operatorWarned = false
		}
		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
				if err := state.SaveOffset(ctx, a.store, state.OperatorOffsetKey, offset); err != nil {
					a.log.Warn("operator offset save failed", zap.Error(err))
				}
			}
			a.handleOperatorUpdate(ctx, bot, upd, chatID, allowedUsers)
		}
	}
}

func (a *App) handleOperatorUpdate(ctx context.Context, bot operatorBot, upd alerts.Update, chatID int64, allowedUsers map[int64]struct{}) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil || msg.From == nil {
		return
	}
	if msg.Chat.ID != chatID {
		return
	}
	if len(allowedUsers) > 0 {
		if _, ok := allowedUsers[msg.From.ID]; !ok {
			return
		}
	}
	cmd, args, ok := parseOperatorCommand(msg.Text)
	if !ok {
		return
	}
	meta := operatorMeta{
		UpdateID: upd.UpdateID,
		UserID:   msg.From.ID,
		Username: msg.From.Username,
		ChatID:   msg.Chat.ID,
		Raw:      msg.Text,
	}
	resp, err := a.handleOperatorCommand(ctx, cmd, args, meta)
	if err != nil {
		resp = fmt.Sprintf("command failed: %v", err)
	}
	if resp == "" {
		return
	}
	if err := bot.Send(ctx, resp); err != nil {
		a.log.Warn("operator response failed", zap.Error(err))
	}
}

func parseOperatorCommand(text string) (string, []string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return "", nil, false
	}
	fields := strings.Fields(trimmed)
	cmd := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	// Group chats suffix commands with the bot name.
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	if cmd == "" {
		return "", nil, false
	}
	return cmd, fields[1:], true
}

func (a *App) handleOperatorCommand(ctx context.Context, cmd string, args []string, meta operatorMeta) (string, error) {
	switch cmd {
	case "status":
		return a.operatorStatus(), nil
	case "fees":
		return a.operatorFees(), nil
	case "start":
		err := a.panel.RequestStart(ctx)
		a.auditOperator(ctx, "start", meta, nil, err)
		if err != nil {
			return "", err
		}
		return "start requested", nil
	case "stop":
		err := a.panel.RequestStop(ctx)
		a.auditOperator(ctx, "stop", meta, nil, err)
		if err != nil {
			return "", err
		}
		return "stop requested", nil
	case "set":
		return a.handleSetCommand(ctx, args, meta)
	case "emergency_sl", "tpsl", "cancel_orders":
		name := operatorRiskCommands[cmd]
		err := a.panel.SendRisk(ctx, name)
		a.auditOperator(ctx, name, meta, nil, err)
		if err != nil {
			return "", err
		}
		return name + " sent", nil
	case "resync":
		if err := a.panel.Resync(ctx); err != nil {
			return "", err
		}
		return "resync requested", nil
	default:
		return operatorHelpText(), nil
	}
}

func (a *App) handleSetCommand(ctx context.Context, args []string, meta operatorMeta) (string, error) {
	if len(args) == 0 {
		return a.liveConfigText(ctx)
	}
	changes, err := parseConfigChanges(args)
	if err != nil {
		return "", err
	}
	err = a.panel.EditConfig(ctx, changes)
	a.auditOperator(ctx, "config_set", meta, changes, err)
	if err != nil {
		return "", err
	}
	return "config update sent", nil
}

// parseConfigChanges turns key=value pairs into a change set. Values that
// parse as numbers or booleans keep that type.
func parseConfigChanges(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, arg := range args {
		parts := strings.SplitN(arg, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid setting: %s", arg)
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		val := strings.TrimSpace(parts[1])
		if key == "" || val == "" {
			return nil, fmt.Errorf("invalid setting: %s", arg)
		}
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			out[key] = f
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			out[key] = b
			continue
		}
		out[key] = val
	}
	return out, nil
}

func (a *App) liveConfigText(ctx context.Context) (string, error) {
	cfg, err := a.panel.BackendConfig(ctx)
	if err != nil {
		return "", err
	}
	keys := make([]string, 0, len(cfg))
	for key := range cfg {
		if fees.IsLiveKey(key) {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return "", errors.New("no live config loaded")
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys)+1)
	lines = append(lines, "live config:")
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("%s=%v", key, cfg[key]))
	}
	return strings.Join(lines, "\n"), nil
}

func (a *App) operatorStatus() string {
	v := a.panel.View()
	running := "unknown"
	if v.Run.Known {
		running = strconv.FormatBool(v.Run.Running)
	}
	lastResync := "n/a"
	if !v.LastResync.IsZero() {
		lastResync = v.LastResync.UTC().Format(time.RFC3339)
	}
	return strings.Join([]string{
		fmt.Sprintf("running: %s", running),
		fmt.Sprintf("phase: %s", v.Run.Phase),
		fmt.Sprintf("connected: %t", v.Connected),
		fmt.Sprintf("total_capital: %.2f", v.Account.TotalCapital),
		fmt.Sprintf("trades: %d (countdowns %d)", len(v.Trades), len(v.Countdowns)),
		fmt.Sprintf("config_dirty: %t", v.ConfigDirty),
		fmt.Sprintf("last_resync: %s", lastResync),
	}, "\n")
}

func (a *App) operatorFees() string {
	v := a.panel.View()
	f := v.Fees
	return strings.Join([]string{
		fmt.Sprintf("fee_rate: %.4f%%", v.LiveConfig.FeeRate),
		fmt.Sprintf("used_fee: %.4f (%s)", f.UsedFee, f.UsedFeeSource),
		fmt.Sprintf("size_fee: %.4f (%s)", f.SizeFee, f.SizeFeeSource),
		fmt.Sprintf("remaining_fee: %.4f", f.RemainingFee),
		fmt.Sprintf("total_fee: %.4f", f.TotalFee),
		fmt.Sprintf("auto_cal: profit %.4f loss %.4f", f.AutoCalProfitTarget, f.AutoCalLossTarget),
		fmt.Sprintf("size_cal: profit %.4f loss %.4f", f.SizeProfitTarget, f.SizeLossTarget),
	}, "\n")
}

func operatorHelpText() string {
	return strings.Join([]string{
		"commands:",
		"/status - bot and panel status",
		"/fees - fee and auto-cal figures",
		"/start - start the bot",
		"/stop - stop the bot",
		"/set - show live config",
		"/set key=value ... - edit live config (e.g. trade_fee_percentage=0.05)",
		"/emergency_sl - emergency stop-loss",
		"/tpsl - batch modify TP/SL",
		"/cancel_orders - batch cancel orders",
		"/resync - force a status resync",
	}, "\n")
}

func (a *App) logOperatorError(err error) {
	if a.operatorWarned {
		return
	}
	a.operatorWarned = true
	a.log.Warn("telegram operator failed", zap.Error(err))
}

func (a *App) auditOperator(ctx context.Context, action string, meta operatorMeta, changes map[string]any, cmdErr error) {
	event := state.AuditEvent{
		Source:   state.AuditSourceTelegram,
		Action:   action,
		Command:  meta.Raw,
		UpdateID: meta.UpdateID,
		UserID:   meta.UserID,
		Username: meta.Username,
		ChatID:   meta.ChatID,
		Changes:  changes,
	}
	if cmdErr != nil {
		event.Error = cmdErr.Error()
	}
	if err := state.RecordAudit(ctx, a.store, event); err != nil {
		a.log.Warn("operator audit failed", zap.Error(err))
	}
}
