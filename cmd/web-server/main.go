// ADS-B fuel analysis web server
// Provides a REST API for trace analysis plus health and Prometheus endpoints
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unklstewy/ads-bfuel/internal/db"
	"github.com/unklstewy/ads-bfuel/internal/pipeline"
	"github.com/unklstewy/ads-bfuel/pkg/config"
	"github.com/unklstewy/ads-bfuel/pkg/logger"
)

var (
	configPath = flag.String("config", "configs/config.json", "Path to configuration file")
	port       = flag.String("port", "", "HTTP server port (overrides configuration)")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting ADS-B fuel analysis server", logger.String("config", *configPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := pipeline.Setup(ctx, cfg, log, nil)
	if err != nil {
		log.Fatal("Failed to set up analysis", logger.Error(err))
	}
	defer rt.Close()

	if rt.DB != nil && cfg.Database.RetentionDays > 0 {
		go retentionLoop(ctx, rt, cfg, log)
	}

	srv := NewServer(cfg, rt, log)

	timeout := time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server listening", logger.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", logger.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
	log.Info("Server stopped")
}

// retentionLoop removes expired runs once an hour.
func retentionLoop(ctx context.Context, rt *pipeline.Runtime, cfg *config.Config, log *logger.Logger) {
	maxAge := time.Duration(cfg.Database.RetentionDays) * 24 * time.Hour
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		err := db.WithRetry(func() error {
			_, err := rt.DB.CleanupOldData(ctx, maxAge)
			return err
		}, 3)
		if err != nil {
			log.Warn("Cleanup failed", logger.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
