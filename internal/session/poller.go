package session

import (
	"context"

	"go.uber.org/zap"

	"bot-panel/internal/snapshot"
)

// pollState coalesces resync requests: one status poll in flight and at
// most one follow-up queued behind it.
type pollState struct {
	inFlight bool
	again    bool
	reason   string
}

func (s *Session) resync(reason string) {
	if s.poll.inFlight {
		if !s.poll.again {
			s.poll.again = true
			s.poll.reason = reason
		}
		return
	}
	s.startPoll(reason)
}

func (s *Session) startPoll(reason string) {
	s.poll.inFlight = true
	s.metrics.Resyncs.Inc()
	s.log.Debug("status resync", zap.String("reason", reason))
	backend := s.backend
	s.async(func(ctx context.Context) func() {
		status, err := backend.Status(ctx)
		return func() { s.finishPoll(reason, status, err) }
	})
}

func (s *Session) finishPoll(reason string, status snapshot.Status, err error) {
	s.poll.inFlight = false
	if err != nil {
		s.metrics.ResyncFailures.Inc()
		s.log.Warn("status resync failed", zap.String("reason", reason), zap.Error(err))
		s.addNotice(NoticeError, "Status refresh failed: "+err.Error())
	} else {
		s.lastResync = s.clock.Now()
		s.applyStatus(status)
	}
	if s.poll.again {
		next := s.poll.reason
		s.poll.again = false
		s.poll.reason = ""
		s.startPoll(next)
	}
}
