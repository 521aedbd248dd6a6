// Package dashboard serves the terminal snapshot, operator controls and
// process diagnostics over HTTP.
package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"cryptoterm/config"
	"cryptoterm/internal/fetcher"
	"cryptoterm/internal/metrics"
	"cryptoterm/internal/models"
	"cryptoterm/internal/terminal"
	"cryptoterm/logger"
)

// Controller is the part of the terminal the dashboard drives.
type Controller interface {
	Snapshot() *terminal.Snapshot
	Select(ctx context.Context, patch terminal.SelectionPatch) error
	PanStart(ctx context.Context, x float64) error
	PanMove(ctx context.Context, x, width float64) error
	PanEnd(ctx context.Context) error
	Zoom(ctx context.Context, dir int) error
	ResetView(ctx context.Context) error
}

// Server hosts the Gin-powered terminal API.
type Server struct {
	cfg             config.DashboardConfig
	log             *logger.Log
	term            Controller
	metricStore     *metricStore
	logStore        *logStore
	metricHandler   metrics.MetricHandlerID
	httpServer      *http.Server
	resourceSampler *resourceSampler
}

type panRequest struct {
	Phase string  `json:"phase"`
	X     float64 `json:"x"`
	Width float64 `json:"width"`
}

type zoomRequest struct {
	Direction int `json:"direction"`
}

// NewServer constructs a dashboard server when the dashboard feature is enabled.
// When the dashboard is disabled the returned server will be nil.
func NewServer(cfg config.DashboardConfig, log *logger.Log, term Controller, buffer BufferReporter) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if term == nil {
		return nil, errors.New("dashboard requires a terminal")
	}

	cfg.Address = normalizeAddress(cfg.Address)

	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 5 * time.Second
	}

	if cfg.LogHistory <= 0 {
		cfg.LogHistory = 200
	}

	if cfg.MetricsHistory <= 0 {
		cfg.MetricsHistory = 200
	}

	metricStore := newMetricStore(cfg.MetricsHistory)
	handlerID := metrics.RegisterMetricHandler(metricStore.handle)

	logStore := newLogStore(cfg.LogHistory)
	log.AddHook(logStore)

	return &Server{
		cfg:             cfg,
		log:             log,
		term:            term,
		metricStore:     metricStore,
		logStore:        logStore,
		metricHandler:   handlerID,
		resourceSampler: newResourceSampler(cfg.MetricsHistory, cfg.SampleInterval, "/", buffer, log),
	}, nil
}

// Run starts the dashboard HTTP server and blocks until the provided context is
// cancelled or the underlying HTTP server exits with an error.
func (s *Server) Run(ctx context.Context, appName string) error {
	if s == nil {
		return nil
	}

	defer s.cleanup()

	router, err := s.buildRouter(appName)
	if err != nil {
		return err
	}

	s.resourceSampler.start(ctx)

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.WithComponent("dashboard").WithFields(logger.Fields{"address": s.cfg.Address}).Info("dashboard listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	if s.logStore != nil {
		s.logStore.close()
	}
	s.resourceSampler.stop()
}

// Address reports the network address the dashboard server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter(appName string) (*gin.Engine, error) {
	env := config.AppEnvironment()
	if config.IsProductionLike(env) {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"app": appName, "environment": env, "status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/snapshot", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.term.Snapshot())
	})

	api.POST("/selection", func(c *gin.Context) {
		var patch terminal.SelectionPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.respond(c, s.term.Select(c.Request.Context(), patch))
	})

	api.POST("/viewport/pan", func(c *gin.Context) {
		var req panRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx := c.Request.Context()
		var err error
		switch req.Phase {
		case "start":
			err = s.term.PanStart(ctx, req.X)
		case "move":
			err = s.term.PanMove(ctx, req.X, req.Width)
		case "end":
			err = s.term.PanEnd(ctx)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "phase must be start, move or end"})
			return
		}
		s.respond(c, err)
	})

	api.POST("/viewport/zoom", func(c *gin.Context) {
		var req zoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.respond(c, s.term.Zoom(c.Request.Context(), req.Direction))
	})

	api.POST("/viewport/reset", func(c *gin.Context) {
		s.respond(c, s.term.ResetView(c.Request.Context()))
	})

	api.GET("/timeframes", func(c *gin.Context) {
		sel := s.term.Snapshot().Selection
		c.JSON(http.StatusOK, gin.H{
			"selected":  sel.Timeframe,
			"exchanges": sel.ActiveExchanges(),
			"options":   fetcher.TimeframeOptions(sel.ActiveExchanges()),
		})
	})

	api.GET("/history-days", func(c *gin.Context) {
		tf := s.term.Snapshot().Selection.Timeframe
		if q := c.Query("timeframe"); q != "" {
			tf = models.Timeframe(q)
			if !tf.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown timeframe " + strconv.Quote(q)})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"timeframe": tf,
			"max":       fetcher.MaxHistoryDaysFor(tf),
			"options":   fetcher.HistoryDayOptions(tf),
		})
	})

	api.GET("/metrics", func(c *gin.Context) {
		metricsSnapshot := s.metricStore.byComponent(c.Query("component"))
		payload := make([]gin.H, 0, len(metricsSnapshot))
		for _, m := range metricsSnapshot {
			payload = append(payload, gin.H{
				"timestamp": m.Timestamp.Format(time.RFC3339Nano),
				"component": m.Component,
				"name":      m.Name,
				"value":     m.Value,
				"type":      m.Type,
				"fields":    m.Fields,
			})
		}
		c.JSON(http.StatusOK, gin.H{"metrics": payload})
	})

	api.GET("/logs", func(c *gin.Context) {
		level := logrus.TraceLevel
		if q := c.Query("level"); q != "" {
			parsed, err := logrus.ParseLevel(q)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			level = parsed
		}
		logsSnapshot := s.logStore.atLeast(level, c.Query("component"))
		payload := make([]gin.H, 0, len(logsSnapshot))
		for _, l := range logsSnapshot {
			payload = append(payload, gin.H{
				"timestamp": l.Timestamp.Format(time.RFC3339Nano),
				"level":     l.Level,
				"component": l.Component,
				"message":   l.Message,
				"fields":    l.Fields,
			})
		}
		c.JSON(http.StatusOK, gin.H{"logs": payload})
	})

	api.GET("/resources", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"resources": s.resourceSampler.snapshot()})
	})

	api.GET("/runtime", func(c *gin.Context) {
		c.JSON(http.StatusOK, logger.RuntimeReport())
	})

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	return router, nil
}

// respond writes the latest snapshot, or maps err onto a status code.
func (s *Server) respond(c *gin.Context, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, s.term.Snapshot())
	case errors.Is(err, fetcher.ErrUnsupportedTimeframe),
		errors.Is(err, terminal.ErrUnknownExchange),
		errors.Is(err, terminal.ErrInvalidSelection):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		s.log.WithComponent("dashboard").WithError(err).Warn("terminal command failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	}
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "127.0.0.1:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
