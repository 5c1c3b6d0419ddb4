package session

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"bot-panel/internal/fees"
	"bot-panel/internal/push"
)

// Risk commands accepted by SendRisk.
var riskCommands = map[string]string{
	push.CmdEmergencySL:       "Emergency stop-loss",
	push.CmdBatchModifyTPSL:   "Batch TP/SL update",
	push.CmdBatchCancelOrders: "Batch order cancel",
}

// configEdit is one optimistic edit awaiting its save answer. unsaved marks
// an edit whose save failed in transport.
type configEdit struct {
	id      uint64
	changes map[string]any
	unsaved bool
}

func (s *Session) RequestStart(ctx context.Context) error {
	return s.call(ctx, s.ctrl.RequestStart)
}

func (s *Session) RequestStop(ctx context.Context) error {
	return s.call(ctx, s.ctrl.RequestStop)
}

// SendRisk sends one of the risk-control commands. Delivery failures are
// surfaced as notices, not returned.
func (s *Session) SendRisk(ctx context.Context, cmd string) error {
	label, ok := riskCommands[cmd]
	if !ok {
		return fmt.Errorf("unknown risk command %q", cmd)
	}
	return s.call(ctx, func() error {
		s.log.Info("risk command", zap.String("command", cmd))
		s.sendCommand(cmd, nil, func(err error) {
			s.addNotice(NoticeError, label+" not sent: "+err.Error())
		})
		return nil
	})
}

func (s *Session) ClearConsole(ctx context.Context) error {
	return s.call(ctx, func() error {
		s.sendCommand(push.CmdClearConsole, nil, func(err error) {
			s.addNotice(NoticeError, "Clear console not sent: "+err.Error())
		})
		return nil
	})
}

// Resync forces a full status poll.
func (s *Session) Resync(ctx context.Context) error {
	return s.call(ctx, func() error {
		s.resync("manual")
		return nil
	})
}

// EditConfig applies changes optimistically and saves them. Live fee keys
// are validated locally first; the save answer arrives asynchronously and a
// rejection rolls back only the rejected edit.
func (s *Session) EditConfig(ctx context.Context, changes map[string]any) error {
	if len(changes) == 0 {
		return fmt.Errorf("no config changes")
	}
	payload := make(map[string]any, len(changes))
	for k, v := range changes {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("empty config key")
		}
		payload[k] = v
	}
	return s.call(ctx, func() error {
		if _, _, err := s.engine.Config().Apply(payload); err != nil {
			return err
		}
		s.editSeq++
		id := s.editSeq
		s.edits = append(s.edits, configEdit{id: id, changes: payload})
		s.reconfigure()
		backend := s.backend
		s.async(func(ctx context.Context) func() {
			res, err := backend.SaveConfig(ctx, payload)
			return func() { s.finishSave(id, res.Success, res.Message, err) }
		})
		return nil
	})
}

func (s *Session) finishSave(id uint64, ok bool, message string, err error) {
	idx := s.editIndex(id)
	if idx < 0 {
		// Discarded by a config reload.
		return
	}
	edit := s.edits[idx]
	switch {
	case err != nil:
		s.edits[idx].unsaved = true
		s.log.Warn("config save failed", zap.Error(err))
		s.addNotice(NoticeError, "Config not saved: "+err.Error())
	case !ok:
		s.removeEdit(idx)
		s.metrics.ConfigRollbacks.Inc()
		s.log.Warn("config save rejected, rolling back", zap.String("message", message))
		if message == "" {
			message = "rejected by backend"
		}
		s.addNotice(NoticeError, "Config rolled back: "+message)
	default:
		s.removeEdit(idx)
		s.acknowledge(edit)
		if message == "" {
			message = "Configuration saved"
		}
		s.addNotice(NoticeSuccess, message)
	}
	s.reconfigure()
}

// acknowledge folds an accepted edit into the last known-good config. Keys
// already overwritten by a newer accepted edit keep the newer value.
func (s *Session) acknowledge(edit configEdit) {
	fresh := s.newerThanAcked(edit)
	for k, v := range fresh {
		s.backendConfig[k] = v
		s.ackedSeq[k] = edit.id
	}
	if good, _, err := s.liveGood.Apply(fresh); err == nil {
		s.liveGood = good
	}
}

// reconfigure rebuilds the live config as the last known-good values plus
// every outstanding edit in submission order.
func (s *Session) reconfigure() {
	live := s.liveGood
	for _, edit := range s.edits {
		if next, _, err := live.Apply(s.newerThanAcked(edit)); err == nil {
			live = next
		}
	}
	s.engine.Configure(live)
}

func (s *Session) newerThanAcked(edit configEdit) map[string]any {
	out := make(map[string]any, len(edit.changes))
	for k, v := range edit.changes {
		if edit.id > s.ackedSeq[k] {
			out[k] = v
		}
	}
	return out
}

func (s *Session) editIndex(id uint64) int {
	for i, edit := range s.edits {
		if edit.id == id {
			return i
		}
	}
	return -1
}

func (s *Session) removeEdit(idx int) {
	s.edits = append(s.edits[:idx], s.edits[idx+1:]...)
}

func (s *Session) configDirty() bool {
	return len(s.edits) > 0
}

// BackendConfig returns a copy of the last loaded backend config.
func (s *Session) BackendConfig(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := s.call(ctx, func() error {
		out = make(map[string]any, len(s.backendConfig))
		for k, v := range s.backendConfig {
			out[k] = v
		}
		for k, v := range s.engine.Config().Map() {
			out[k] = v
		}
		return nil
	})
	return out, err
}

// loadConfig replaces the known-good config with the backend's copy. Edits
// whose save is still in flight stay applied on top; edits that failed to
// save are dropped.
func (s *Session) loadConfig() {
	backend := s.backend
	s.async(func(ctx context.Context) func() {
		cfg, err := backend.Config(ctx)
		return func() {
			if err != nil {
				s.log.Warn("config load failed", zap.Error(err))
				s.addNotice(NoticeError, "Config load failed: "+err.Error())
				return
			}
			s.backendConfig = cfg
			s.liveGood = fees.ParseLiveConfig(cfg)
			kept := s.edits[:0]
			dropped := 0
			for _, edit := range s.edits {
				if edit.unsaved {
					dropped++
					continue
				}
				kept = append(kept, edit)
			}
			s.edits = kept
			if dropped > 0 {
				s.log.Warn("unsaved config edits discarded by reload", zap.Int("edits", dropped))
				s.addNotice(NoticeWarning, fmt.Sprintf("Unsaved config edits discarded (%d), re-apply them", dropped))
			}
			s.reconfigure()
		}
	})
}

func (s *Session) sendCommand(name string, data any, onFail func(err error)) {
	sender := s.sender
	s.async(func(ctx context.Context) func() {
		err := sender.Send(ctx, name, data)
		if err == nil {
			return nil
		}
		return func() {
			s.metrics.CommandSendFailures.Inc()
			s.log.Warn("command send failed", zap.String("command", name), zap.Error(err))
			onFail(err)
		}
	})
}
