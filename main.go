package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cryptoterm/config"
	"cryptoterm/internal/backend"
	"cryptoterm/internal/channel"
	"cryptoterm/internal/dashboard"
	"cryptoterm/internal/feed"
	"cryptoterm/internal/fetcher"
	"cryptoterm/internal/metrics"
	"cryptoterm/internal/models"
	"cryptoterm/internal/terminal"
	"cryptoterm/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithEnv("APP_ENV").WithFields(logger.Fields{
		"service": cfg.Terminal.Name,
		"version": cfg.Terminal.Version,
	}).Info("starting cryptoterm")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.Configure(cfg.Metrics)
	metrics.Init()
	metrics.InitCloudWatch(ctx, cfg.Metrics.CloudWatch)

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	} else {
		logger.StartReport(ctx, log, cfg.Metrics.ReportInterval)
	}

	events := channel.NewEvents(cfg.Streaming.EventBuffer)
	metrics.StartChannelSizeMetrics(ctx, events, cfg.Metrics.ChannelSizeInterval)

	client := backend.NewClient(cfg.Backend)

	deps := terminal.Deps{
		Pairs:   client,
		Fetcher: fetcher.New(client),
		Events:  events,
	}
	if cfg.Streaming.Enabled {
		deps.Streamer = feed.NewRegistry(events, feedOptions(cfg.Streaming, cfg.Backend.UserAgent, log))
	} else {
		log.WithComponent("main").Info("streaming disabled; live prices come from polling only")
	}

	term, err := terminal.New(cfg, deps)
	if err != nil {
		log.WithError(err).Error("failed to create terminal")
		os.Exit(1)
	}

	dash, err := dashboard.NewServer(cfg.Dashboard, log, term, events)
	if err != nil {
		log.WithError(err).Error("failed to create dashboard")
		os.Exit(1)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := term.Run(ctx); err != nil {
			log.WithError(err).Error("terminal stopped with error")
			cancel()
		}
	}()

	if dash != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dash.Run(ctx, cfg.Terminal.Name); err != nil {
				log.WithError(err).Warn("dashboard failed")
			}
		}()
	} else {
		log.WithComponent("main").Info("dashboard disabled")
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case <-ctx.Done():
		log.Warn("component failure; shutting down")
	}

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("cryptoterm stopped")
}

// feedOptions converts the streaming section into adapter options. Endpoint
// overrides for unknown exchanges are logged and ignored.
func feedOptions(cfg config.StreamingConfig, userAgent string, log *logger.Log) feed.Options {
	opts := feed.Options{
		Keepalive:        cfg.Keepalive,
		HandshakeTimeout: cfg.HandshakeTimeout,
		Endpoints:        make(map[models.ExchangeID]string, len(cfg.Endpoints)),
	}
	for name, endpoint := range cfg.Endpoints {
		id, err := models.ParseExchange(name)
		if err != nil {
			log.WithComponent("main").WithError(err).Warn("ignoring endpoint override")
			continue
		}
		opts.Endpoints[id] = endpoint
	}
	if userAgent != "" {
		opts.Header = http.Header{"User-Agent": []string{userAgent}}
	}
	return opts
}
