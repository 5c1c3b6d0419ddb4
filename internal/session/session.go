package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"bot-panel/internal/api"
	"bot-panel/internal/clock"
	"bot-panel/internal/countdown"
	"bot-panel/internal/fees"
	"bot-panel/internal/metrics"
	"bot-panel/internal/snapshot"
	"bot-panel/internal/transition"
)

var ErrClosed = errors.New("session closed")

// Backend is the request/response side of the bot.
type Backend interface {
	Status(ctx context.Context) (snapshot.Status, error)
	Config(ctx context.Context) (map[string]any, error)
	SaveConfig(ctx context.Context, changes map[string]any) (api.Result, error)
}

// Sender delivers fire-and-forget commands over the push channel.
type Sender interface {
	Send(ctx context.Context, name string, data any) error
}

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Recorder receives history rows. Implementations must not block.
type Recorder interface {
	RecordAccount(at time.Time, acct snapshot.Account, figures fees.Figures)
	RecordTransition(outcome transition.Outcome)
}

type Options struct {
	TransitionTimeout time.Duration
	TickInterval      time.Duration
	RequestTimeout    time.Duration
	ConsoleHistory    int
	NoticeHistory     int
	PruneAbsentOrders bool

	Clock    clock.Clock
	Metrics  *metrics.Metrics
	Notifier Notifier
	Recorder Recorder
}

// Session owns all panel state. Every mutation runs on the goroutine inside
// Run; other goroutines reach it through the inbox and read published Views.
type Session struct {
	opts    Options
	backend Backend
	sender  Sender
	log     *zap.Logger
	clock   clock.Clock
	metrics *metrics.Metrics

	inbox   chan func()
	done    chan struct{}
	running atomic.Bool
	runCtx  context.Context
	wg      sync.WaitGroup
	view    atomic.Pointer[View]

	ctrl       *transition.Controller
	countdowns *countdown.Cache
	engine     *fees.Engine

	account      snapshot.Account
	hasAccount   bool
	dailyReports []snapshot.DailyReport
	trades       []snapshot.Trade
	position     snapshot.Position
	console      *history[snapshot.LogLine]
	notices      *history[Notice]
	connected    bool

	backendConfig map[string]any
	liveGood      fees.LiveConfig
	edits         []configEdit
	editSeq       uint64
	ackedSeq      map[string]uint64

	poll       pollState
	lastResync time.Time
	tickTimer  clock.Timer
	version    uint64
}

func New(opts Options, backend Backend, sender Sender, log *zap.Logger) *Session {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{
		opts:          opts,
		backend:       backend,
		sender:        sender,
		log:           log,
		clock:         opts.Clock,
		metrics:       metrics.OrNoop(opts.Metrics),
		inbox:         make(chan func(), 1024),
		done:          make(chan struct{}),
		runCtx:        context.Background(),
		countdowns:    countdown.New(opts.PruneAbsentOrders),
		engine:        fees.NewEngine(fees.DefaultLiveConfig()),
		liveGood:      fees.DefaultLiveConfig(),
		console:       newHistory[snapshot.LogLine](opts.ConsoleHistory),
		notices:       newHistory[Notice](opts.NoticeHistory),
		backendConfig: map[string]any{},
		ackedSeq:      map[string]uint64{},
	}
	s.ctrl = transition.New(transition.Config{
		Timeout:  opts.TransitionTimeout,
		Clock:    opts.Clock,
		Post:     s.postAndPublish,
		Metrics:  s.metrics,
		Observer: s.onOutcome,
	}, controllerOutbound{s}, log.Named("transition"))
	s.publish()
	return s
}

// View returns the latest published state. It never returns nil.
func (s *Session) View() *View {
	return s.view.Load()
}

// Run processes inputs until ctx ends. It loads status and config, then
// ticks countdowns every TickInterval.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("session already running")
	}
	s.runCtx = ctx
	s.resync("initial")
	s.loadConfig()
	s.armTick()
	defer func() {
		if s.tickTimer != nil {
			s.tickTimer.Stop()
		}
		close(s.done)
		s.wg.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-s.inbox:
			fn()
		}
	}
}

// post queues fn for the loop. It drops fn once the loop has exited.
func (s *Session) post(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.done:
	}
}

func (s *Session) postAndPublish(fn func()) {
	s.post(func() {
		fn()
		s.publish()
	})
}

// call runs fn on the loop and waits for its result.
func (s *Session) call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	select {
	case s.inbox <- func() {
		err := fn()
		s.publish()
		result <- err
	}:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// async runs work off the loop. The returned func, if any, is posted back.
func (s *Session) async(work func(ctx context.Context) func()) {
	ctx := s.runCtx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		reqCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
		if then := work(reqCtx); then != nil {
			s.postAndPublish(then)
		}
	}()
}

func (s *Session) armTick() {
	s.tickTimer = s.clock.AfterFunc(s.opts.TickInterval, func() { s.post(s.tick) })
}

func (s *Session) tick() {
	s.countdowns.Tick(s.clock.Now())
	s.armTick()
	s.publish()
}

func (s *Session) addNotice(level NoticeLevel, message string) {
	s.notices.add(Notice{Level: level, Message: message, At: s.clock.Now()})
}

// alert forwards message to the notifier without blocking the loop.
func (s *Session) alert(message string) {
	if s.opts.Notifier == nil {
		return
	}
	notifier := s.opts.Notifier
	s.async(func(ctx context.Context) func() {
		if err := notifier.Notify(ctx, message); err != nil {
			s.log.Warn("notify failed", zap.Error(err))
		}
		return nil
	})
}

type controllerOutbound struct {
	s *Session
}

func (o controllerOutbound) Command(cmd transition.Command) {
	s := o.s
	s.sendCommand(string(cmd), nil, func(err error) {
		msg := "send " + string(cmd) + ": " + err.Error()
		s.addNotice(NoticeError, msg)
		s.ctrl.OnError(msg)
	})
}

func (o controllerOutbound) Resync(reason string) {
	o.s.resync(reason)
}
