package transition

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"bot-panel/internal/clock"
	"bot-panel/internal/metrics"
)

var (
	ErrPending        = errors.New("a start/stop transition is already pending")
	ErrAlreadyRunning = errors.New("bot is already running")
	ErrNotRunning     = errors.New("bot is not running")
)

const DefaultTimeout = 8 * time.Second

// Outbound is how the controller reaches the backend. Both calls must return
// without waiting on the network.
type Outbound interface {
	Command(cmd Command)
	Resync(reason string)
}

type Config struct {
	Timeout time.Duration
	Clock   clock.Clock
	// Post hands the deadline callback back to the goroutine that owns the
	// controller. Nil runs it on the timer's goroutine.
	Post     func(func())
	Metrics  *metrics.Metrics
	Observer func(Outcome)
}

// Controller manages the optimistic start/stop control. It is owned by one
// goroutine and holds no locks.
type Controller struct {
	cfg     Config
	out     Outbound
	log     *zap.Logger
	metrics *metrics.Metrics

	state     RunState
	startedAt time.Time
	timer     clock.Timer
	gen       uint64
}

func New(cfg Config, out Outbound, log *zap.Logger) *Controller {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Post == nil {
		cfg.Post = func(fn func()) { fn() }
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		cfg:     cfg,
		out:     out,
		log:     log,
		metrics: metrics.OrNoop(cfg.Metrics),
		state:   RunState{Phase: PhaseIdle},
	}
}

func (c *Controller) State() RunState {
	return c.state
}

func (c *Controller) Surface() Surface {
	return surfaceFor(c.state)
}

func (c *Controller) RequestStart() error {
	return c.request(PhasePendingStart)
}

func (c *Controller) RequestStop() error {
	return c.request(PhasePendingStop)
}

func (c *Controller) request(phase Phase) error {
	if c.state.Pending() {
		return ErrPending
	}
	if c.state.Known && c.state.Running == target(phase) {
		if phase == PhasePendingStart {
			return ErrAlreadyRunning
		}
		return ErrNotRunning
	}
	now := c.cfg.Clock.Now()
	c.state.Phase = phase
	c.state.Deadline = now.Add(c.cfg.Timeout)
	c.startedAt = now
	c.gen++
	gen := c.gen
	c.timer = c.cfg.Clock.AfterFunc(c.cfg.Timeout, func() {
		c.cfg.Post(func() { c.expire(gen) })
	})
	c.metrics.TransitionsRequested.Inc()
	c.log.Info("transition requested", zap.String("phase", string(phase)))
	c.emit(OutcomeRequested, phase, "")
	c.out.Command(commandFor(phase))
	return nil
}

// OnStatus applies a pushed or polled running flag. While pending, a value
// equal to the pre-transition state is a stale echo and is discarded.
func (c *Controller) OnStatus(running bool) Outcome {
	phase := c.state.Phase
	if phase == PhaseIdle {
		c.state.Running = running
		c.state.Known = true
		return c.emit(OutcomeAdopted, phase, "")
	}
	if c.state.Known && running == c.state.Running {
		c.metrics.StaleEchoes.Inc()
		c.log.Debug("stale status echo discarded", zap.String("phase", string(phase)), zap.Bool("running", running))
		return c.emit(OutcomeStaleEcho, phase, "")
	}
	if running != target(phase) {
		// First report seen while pending with no prior state.
		c.state.Running = running
		c.state.Known = true
		c.metrics.StaleEchoes.Inc()
		return c.emit(OutcomeStaleEcho, phase, "")
	}
	elapsed := c.cfg.Clock.Now().Sub(c.startedAt)
	c.clearPending()
	c.state.Running = running
	c.state.Known = true
	c.metrics.TransitionsResolved.Inc()
	c.log.Info("transition resolved", zap.String("phase", string(phase)), zap.Bool("running", running), zap.Duration("elapsed", elapsed))
	return c.emitElapsed(OutcomeResolved, phase, "", elapsed)
}

// OnError treats the in-flight command as failed. The real state is not
// assumed; a resync is forced.
func (c *Controller) OnError(message string) Outcome {
	phase := c.state.Phase
	var out Outcome
	if phase != PhaseIdle {
		c.clearPending()
		c.metrics.TransitionsFailed.Inc()
		c.log.Warn("transition failed", zap.String("phase", string(phase)), zap.String("message", message))
		out = c.emit(OutcomeFailed, phase, message)
	} else {
		out = Outcome{Kind: OutcomeFailed, Phase: phase, Running: c.state.Running, Message: message, At: c.cfg.Clock.Now()}
	}
	c.out.Resync("error")
	return out
}

// OnReconnect leaves any pending transition alone and forces a resync.
func (c *Controller) OnReconnect() {
	c.out.Resync("reconnect")
}

func (c *Controller) expire(gen uint64) {
	if gen != c.gen || !c.state.Pending() {
		return
	}
	phase := c.state.Phase
	c.clearPending()
	c.metrics.TransitionsTimedOut.Inc()
	c.log.Warn("transition timed out", zap.String("phase", string(phase)), zap.Duration("timeout", c.cfg.Timeout))
	c.emitElapsed(OutcomeTimedOut, phase, "no status change before the deadline", c.cfg.Timeout)
	c.out.Resync("timeout")
}

func (c *Controller) clearPending() {
	c.state.Phase = PhaseIdle
	c.state.Deadline = time.Time{}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

func (c *Controller) emit(kind OutcomeKind, phase Phase, message string) Outcome {
	return c.emitElapsed(kind, phase, message, 0)
}

func (c *Controller) emitElapsed(kind OutcomeKind, phase Phase, message string, elapsed time.Duration) Outcome {
	out := Outcome{
		Kind:    kind,
		Phase:   phase,
		Running: c.state.Running,
		Message: message,
		At:      c.cfg.Clock.Now(),
		Elapsed: elapsed,
	}
	if c.cfg.Observer != nil {
		c.cfg.Observer(out)
	}
	return out
}

func commandFor(phase Phase) Command {
	if phase == PhasePendingStop {
		return CommandStop
	}
	return CommandStart
}
