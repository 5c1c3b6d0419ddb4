package control

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bot-panel/internal/api"
	"bot-panel/internal/push"
	"bot-panel/internal/session"
	"bot-panel/internal/state"
	"bot-panel/internal/transition"
)

// Panel is the session surface the operator API drives.
type Panel interface {
	View() *session.View
	RequestStart(ctx context.Context) error
	RequestStop(ctx context.Context) error
	SendRisk(ctx context.Context, cmd string) error
	ClearConsole(ctx context.Context) error
	Resync(ctx context.Context) error
	EditConfig(ctx context.Context, changes map[string]any) error
}

// Backend covers the passthrough endpoints that do not touch panel state.
type Backend interface {
	TestAPIKey(ctx context.Context, creds api.Credentials) (api.Result, error)
	DownloadLogs(ctx context.Context, w io.Writer) (int64, error)
}

type Config struct {
	ListenAddr     string
	MetricsPath    string
	MetricsHandler http.Handler
}

type Server struct {
	cfg     Config
	panel   Panel
	backend Backend
	store   state.Store
	log     *zap.Logger
}

func New(cfg Config, panel Panel, backend Backend, store state.Store, log *zap.Logger) *Server {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cfg: cfg, panel: panel, backend: backend, store: store, log: log}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	if s.cfg.MetricsHandler != nil {
		r.GET(s.cfg.MetricsPath, gin.WrapH(s.cfg.MetricsHandler))
	}

	g := r.Group("/api")
	g.GET("/view", s.handleView)
	g.POST("/bot/start", s.handleStart)
	g.POST("/bot/stop", s.handleStop)
	g.POST("/risk/emergency-sl", s.handleRisk(push.CmdEmergencySL))
	g.POST("/risk/batch-modify-tpsl", s.handleRisk(push.CmdBatchModifyTPSL))
	g.POST("/risk/batch-cancel-orders", s.handleRisk(push.CmdBatchCancelOrders))
	g.POST("/console/clear", s.handleClearConsole)
	g.POST("/resync", s.handleResync)
	g.PATCH("/config", s.handleConfig)
	g.POST("/credentials/test", s.handleCredentials)
	g.GET("/logs", s.handleLogs)
	g.GET("/audit", s.handleAudit)
	return r
}

// Run serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("control server listening", zap.String("addr", s.cfg.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleView(c *gin.Context) {
	c.JSON(http.StatusOK, s.panel.View())
}

func (s *Server) handleStart(c *gin.Context) {
	err := s.panel.RequestStart(c.Request.Context())
	s.audit(c, "start", nil, err)
	s.respondAction(c, err)
}

func (s *Server) handleStop(c *gin.Context) {
	err := s.panel.RequestStop(c.Request.Context())
	s.audit(c, "stop", nil, err)
	s.respondAction(c, err)
}

func (s *Server) handleRisk(cmd string) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := s.panel.SendRisk(c.Request.Context(), cmd)
		s.audit(c, cmd, nil, err)
		s.respondAction(c, err)
	}
}

func (s *Server) handleClearConsole(c *gin.Context) {
	err := s.panel.ClearConsole(c.Request.Context())
	s.audit(c, "clear_console", nil, err)
	s.respondAction(c, err)
}

func (s *Server) handleResync(c *gin.Context) {
	s.respondAction(c, s.panel.Resync(c.Request.Context()))
}

func (s *Server) handleConfig(c *gin.Context) {
	var changes map[string]any
	if err := c.ShouldBindJSON(&changes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid json: " + err.Error()})
		return
	}
	err := s.panel.EditConfig(c.Request.Context(), changes)
	s.audit(c, "config_set", changes, err)
	s.respondAction(c, err)
}

func (s *Server) handleCredentials(c *gin.Context) {
	var creds api.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid json: " + err.Error()})
		return
	}
	res, err := s.backend.TestAPIKey(c.Request.Context(), creds)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleLogs(c *gin.Context) {
	var buf bytes.Buffer
	if _, err := s.backend.DownloadLogs(c.Request.Context(), &buf); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="bot.log"`)
	c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
}

func (s *Server) handleAudit(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "limit must be a positive integer"})
		return
	}
	events, err := state.RecentAudit(c.Request.Context(), s.store, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}
	if events == nil {
		events = []state.AuditEvent{}
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) respondAction(c *gin.Context, err error) {
	if err == nil {
		c.JSON(http.StatusAccepted, gin.H{"success": true, "surface": s.panel.View().Surface})
		return
	}
	c.JSON(statusFor(err), gin.H{"success": false, "message": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, transition.ErrPending),
		errors.Is(err, transition.ErrAlreadyRunning),
		errors.Is(err, transition.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) audit(c *gin.Context, action string, changes map[string]any, err error) {
	event := state.AuditEvent{
		Source:  state.AuditSourceControlAPI,
		Action:  action,
		Command: c.Request.Method + " " + c.FullPath(),
		Remote:  c.ClientIP(),
		Changes: changes,
	}
	if err != nil {
		event.Error = err.Error()
	}
	if recErr := state.RecordAudit(c.Request.Context(), s.store, event); recErr != nil {
		s.log.Warn("audit write failed", zap.Error(recErr))
	}
}
