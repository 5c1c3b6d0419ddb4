package session

import (
	"time"

	"bot-panel/internal/countdown"
	"bot-panel/internal/fees"
	"bot-panel/internal/snapshot"
	"bot-panel/internal/transition"
)

type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}

// View is an immutable copy of everything the panel renders. A new View is
// published after every handled input.
type View struct {
	Version     uint64    `json:"version"`
	GeneratedAt time.Time `json:"generated_at"`
	Connected   bool      `json:"connected"`

	Run     transition.RunState `json:"run"`
	Surface transition.Surface  `json:"surface"`

	Account      snapshot.Account       `json:"account"`
	HasAccount   bool                   `json:"has_account"`
	DailyReports []snapshot.DailyReport `json:"daily_reports"`
	Fees         fees.Figures           `json:"fees"`
	LiveConfig   fees.LiveConfig        `json:"live_config"`
	ConfigDirty  bool                   `json:"config_dirty"`

	Trades     []snapshot.Trade  `json:"trades"`
	Countdowns []countdown.Entry `json:"countdowns"`
	Position   snapshot.Position `json:"position"`

	Console []snapshot.LogLine `json:"console"`
	Notices []Notice           `json:"notices"`

	LastResync     time.Time `json:"last_resync,omitempty"`
	ResyncInFlight bool      `json:"resync_in_flight"`
}

// Countdown returns the rendered remaining seconds for orderID.
func (v *View) Countdown(orderID string) (int, bool) {
	for _, e := range v.Countdowns {
		if e.OrderID == orderID {
			return e.Remaining, true
		}
	}
	return 0, false
}

func (s *Session) publish() {
	s.version++
	v := &View{
		Version:        s.version,
		GeneratedAt:    s.clock.Now(),
		Connected:      s.connected,
		Run:            s.ctrl.State(),
		Surface:        s.ctrl.Surface(),
		Account:        s.account,
		HasAccount:     s.hasAccount,
		DailyReports:   append([]snapshot.DailyReport(nil), s.dailyReports...),
		Fees:           s.engine.Figures(),
		LiveConfig:     s.engine.Config(),
		ConfigDirty:    s.configDirty(),
		Trades:         append([]snapshot.Trade(nil), s.trades...),
		Countdowns:     s.countdowns.Entries(s.clock.Now()),
		Position:       s.position,
		Console:        s.console.snapshot(),
		Notices:        s.notices.snapshot(),
		LastResync:     s.lastResync,
		ResyncInFlight: s.poll.inFlight,
	}
	v.Account.DailyReports = nil
	s.view.Store(v)
}
