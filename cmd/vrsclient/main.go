package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autovrs-client/internal/config"
	"autovrs-client/internal/inspect"
	"autovrs-client/internal/logger"
	"autovrs-client/internal/metrics"
	"autovrs-client/internal/monitor"
)

func main() {
	_ = config.Load() // .env is optional; system env and defaults apply
	cfg := config.FromEnv()

	var logLevel string
	var logColor bool

	flag.StringVar(&cfg.StationURL, "station", cfg.StationURL, "Inspection station base URL (ws:// or wss://)")
	flag.StringVar(&cfg.ClientID, "client-id", cfg.ClientID, "Client identifier used in the endpoint path")
	flag.DurationVar(&cfg.HeartbeatInterval, "heartbeat", cfg.HeartbeatInterval, "Keepalive ping interval")
	flag.DurationVar(&cfg.ReconnectDelay, "reconnect-delay", cfg.ReconnectDelay, "Delay before a reconnect attempt")
	flag.DurationVar(&cfg.CaptureTimeout, "capture-timeout", cfg.CaptureTimeout, "Window before a capture request times out")
	flag.StringVar(&cfg.MonitorAddr, "monitor", cfg.MonitorAddr, "Local monitor HTTP address (empty disables)")
	flag.StringVar(&logLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error, silent)")
	flag.BoolVar(&logColor, "log-color", true, "Enable colored log output")
	flag.Parse()

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, logColor)

	logger.Info("Main", "Inspection client starting...")
	logger.Info("Main", "Station: %s (client id: %s)", cfg.StationURL, cfg.ClientID)
	logger.Info("Main", "Log level: %s", level)

	m := metrics.New()
	client := inspect.NewClient(cfg, m)

	var monitorServer *monitor.Server
	var httpServer *http.Server
	if cfg.MonitorAddr != "" {
		monitorServer = monitor.NewServer(client, m)
		httpServer = &http.Server{
			Addr:    cfg.MonitorAddr,
			Handler: monitorServer.Handler(),
		}
		go func() {
			logger.Info("Main", "Monitor endpoint listening on %s", cfg.MonitorAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Main", "Monitor server error: %v", err)
			}
		}()
	}

	if err := client.Connect(); err != nil {
		// Not fatal: the reconnect timer keeps trying.
		logger.Warn("Main", "Initial connect failed: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")

	client.Close()
	if monitorServer != nil {
		monitorServer.Stop()
	}
	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}

	log.Println("Client stopped")
}
