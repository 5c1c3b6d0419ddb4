package session

import (
	"fmt"

	"go.uber.org/zap"

	"bot-panel/internal/push"
	"bot-panel/internal/snapshot"
	"bot-panel/internal/transition"
)

// OnConnect, OnEvent and OnDisconnect satisfy push.Handler. They queue onto
// the loop in the order the channel delivers them.
func (s *Session) OnConnect() {
	s.post(s.handleConnect)
}

func (s *Session) OnEvent(evt push.Event) {
	s.post(func() { s.dispatch(evt) })
}

func (s *Session) OnDisconnect(err error) {
	s.post(func() { s.handleDisconnect(err) })
}

func (s *Session) dispatch(evt push.Event) {
	switch evt.Kind {
	case push.KindBotStatus:
		running, ok := snapshot.ParseRunning(evt.Data)
		if !ok {
			s.log.Debug("bot_status without running flag")
			return
		}
		s.ctrl.OnStatus(running)
	case push.KindAccountUpdate:
		s.applyAccount(snapshot.ParseAccount(evt.Data))
	case push.KindTradesUpdate:
		trades, ok := snapshot.ParseTrades(evt.Data)
		if !ok {
			s.log.Debug("trades_update without trades list")
			return
		}
		s.applyTrades(trades)
	case push.KindPositionUpdate:
		s.position = snapshot.ParsePosition(evt.Data)
	case push.KindConsoleLog:
		s.console.add(snapshot.ParseLogLine(evt.Data))
	case push.KindConsoleCleared:
		s.console.reset()
	case push.KindSuccess:
		s.addNotice(NoticeSuccess, snapshot.ParseMessage(evt.Data))
	case push.KindWarning:
		s.addNotice(NoticeWarning, snapshot.ParseMessage(evt.Data))
	case push.KindError:
		msg := snapshot.ParseMessage(evt.Data)
		s.addNotice(NoticeError, msg)
		s.alert("Bot error: " + msg)
		s.ctrl.OnError(msg)
	case push.KindConnectionStatus, push.KindPong:
		return
	default:
		s.log.Debug("unhandled push event", zap.String("kind", string(evt.Kind)))
		return
	}
	s.publish()
}

func (s *Session) handleConnect() {
	s.connected = true
	s.metrics.Reconnects.Inc()
	// The server replays its console history on every connect.
	s.console.reset()
	s.ctrl.OnReconnect()
	s.loadConfig()
	s.publish()
}

func (s *Session) handleDisconnect(err error) {
	wasConnected := s.connected
	s.connected = false
	if wasConnected {
		s.log.Warn("push channel lost, resyncing by poll", zap.Error(err))
		s.resync("disconnect")
	}
	s.publish()
}

func (s *Session) applyAccount(acct snapshot.Account) {
	now := s.clock.Now()
	if acct.DailyReports != nil {
		s.dailyReports = acct.DailyReports
	}
	s.account = acct
	s.hasAccount = true
	figures := s.engine.Snapshot(acct)
	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordAccount(now, acct, figures)
	}
}

func (s *Session) applyTrades(trades []snapshot.Trade) {
	s.trades = trades
	s.countdowns.ObserveSnapshot(trades, s.clock.Now())
}

func (s *Session) applyStatus(status snapshot.Status) {
	if status.HasRunning {
		s.ctrl.OnStatus(status.Running)
	}
	s.applyAccount(status.Account)
	if status.HasTrades {
		s.applyTrades(status.Trades)
	}
	s.position = status.Position
}

func (s *Session) onOutcome(o transition.Outcome) {
	switch o.Kind {
	case transition.OutcomeTimedOut:
		msg := fmt.Sprintf("%s not confirmed within %s, resyncing", verb(o.Phase), o.Elapsed)
		s.addNotice(NoticeWarning, msg)
		s.alert(msg)
	case transition.OutcomeResolved, transition.OutcomeFailed:
	default:
		return
	}
	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordTransition(o)
	}
}

func verb(phase transition.Phase) string {
	if phase == transition.PhasePendingStop {
		return "Stop"
	}
	return "Start"
}
