package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"bot-panel/internal/alerts"
	"bot-panel/internal/api"
	"bot-panel/internal/config"
	"bot-panel/internal/control"
	"bot-panel/internal/metrics"
	"bot-panel/internal/push"
	"bot-panel/internal/session"
	"bot-panel/internal/state"
	"bot-panel/internal/state/sqlite"
	"bot-panel/internal/timescale"

	"go.uber.org/zap"
)

// Panel is the session surface the operator commands act on.
type Panel interface {
	control.Panel
	BackendConfig(ctx context.Context) (map[string]any, error)
}

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     state.Store
	api       *api.Client
	push      *push.Client
	session   *session.Session
	panel     Panel
	control   *control.Server
	metrics   *metrics.Metrics
	alerts    *alerts.Telegram
	timescale *timescale.Writer

	operatorWarned bool
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	m := metrics.NewNoop()
	var promHandler http.Handler
	if cfg.Metrics.EnabledValue() {
		prom := metrics.NewPrometheus()
		m = prom.Metrics
		promHandler = prom.Handler()
	}

	writer, err := timescale.New(cfg.Timescale, log.Named("timescale"))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	telegram := alerts.NewTelegram(cfg.Telegram, log.Named("telegram"))
	apiClient := api.New(cfg.API.BaseURL, cfg.API.Timeout, log.Named("api"))
	pushClient := push.New(cfg.Push.URL, cfg.Push.ReconnectDelay, cfg.Push.PingInterval, log.Named("push"))

	opts := session.Options{
		TransitionTimeout: cfg.Session.TransitionTimeout,
		TickInterval:      cfg.Session.TickInterval,
		RequestTimeout:    cfg.API.Timeout,
		ConsoleHistory:    cfg.Session.ConsoleHistory,
		NoticeHistory:     cfg.Session.NoticeHistory,
		PruneAbsentOrders: cfg.Session.PruneAbsentOrdersValue(),
		Metrics:           m,
	}
	if telegram.Enabled() {
		opts.Notifier = telegram
	}
	if writer != nil {
		opts.Recorder = writer
	}
	sess := session.New(opts, apiClient, pushClient, log.Named("session"))

	a := &App{
		cfg:       cfg,
		log:       log,
		store:     store,
		api:       apiClient,
		push:      pushClient,
		session:   sess,
		panel:     sess,
		metrics:   m,
		alerts:    telegram,
		timescale: writer,
	}
	if cfg.Control.EnabledValue() {
		a.control = control.New(control.Config{
			ListenAddr:     cfg.Control.ListenAddr,
			MetricsPath:    cfg.Metrics.Path,
			MetricsHandler: promHandler,
		}, sess, apiClient, store, log.Named("control"))
	}
	return a, nil
}

// Run drives the session, the push channel and the operator surfaces until
// ctx ends or one of them fails.
func (a *App) Run(ctx context.Context) error {
	defer a.close()
	a.log.Info("panel starting",
		zap.String("api", a.cfg.API.BaseURL),
		zap.String("push", a.cfg.Push.URL),
		zap.Bool("control", a.control != nil),
		zap.Bool("telegram", a.alerts.Enabled()),
		zap.Bool("timescale", a.timescale != nil),
	)
	a.timescale.Start(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.session.Run(ctx) })
	g.Go(func() error { return a.push.Run(ctx, a.session) })
	if a.control != nil {
		g.Go(func() error { return a.control.Run(ctx) })
	}
	if a.operatorEnabled() {
		g.Go(func() error {
			a.startOperator(ctx)
			return nil
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) operatorEnabled() bool {
	return a.cfg.Telegram.OperatorEnabled && a.alerts.Enabled() && strings.TrimSpace(a.cfg.Telegram.ChatID) != ""
}

func (a *App) close() {
	if a.timescale != nil {
		if accounts, transitions := a.timescale.Dropped(); accounts > 0 || transitions > 0 {
			a.log.Warn("timescale rows dropped", zap.Uint64("accounts", accounts), zap.Uint64("transitions", transitions))
		}
		if err := a.timescale.Close(); err != nil {
			a.log.Warn("timescale close failed", zap.Error(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("state store close failed", zap.Error(err))
	}
}
