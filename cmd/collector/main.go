package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/unklstewy/ads-bfuel/internal/pipeline"
	"github.com/unklstewy/ads-bfuel/pkg/config"
	"github.com/unklstewy/ads-bfuel/pkg/logger"
)

// Collector periodically analyses a watchlist of aircraft and stores the
// results, so that API clients can read legs without triggering fetches.
func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	aircraft := flag.String("aircraft", "", "Comma-separated ICAO addresses to watch")
	watchlist := flag.String("watchlist", "", "File with one or more ICAO addresses per line")
	interval := flag.Duration("interval", 30*time.Minute, "Time between updates")
	once := flag.Bool("once", false, "Run a single update and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	icaos, err := ParseWatchlist(strings.NewReader(*aircraft))
	if err != nil {
		log.Fatal("Invalid -aircraft list", logger.Error(err))
	}
	if *watchlist != "" {
		f, err := os.Open(*watchlist)
		if err != nil {
			log.Fatal("Failed to open watchlist", logger.Error(err))
		}
		more, err := ParseWatchlist(f)
		f.Close()
		if err != nil {
			log.Fatal("Invalid watchlist", logger.String("file", *watchlist), logger.Error(err))
		}
		icaos = append(icaos, more...)
	}
	if len(icaos) == 0 {
		log.Fatal("No aircraft to watch: use -aircraft or -watchlist")
	}
	if !cfg.Database.Enabled && !cfg.Archive.Enabled {
		log.Warn("Database and archive are both disabled; results will only be logged")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := pipeline.Setup(ctx, cfg, log, nil)
	if err != nil {
		log.Fatal("Failed to set up analysis", logger.Error(err))
	}
	defer rt.Close()

	collector := &Collector{
		rt:        rt,
		aircraft:  icaos,
		interval:  *interval,
		retention: time.Duration(cfg.Database.RetentionDays) * 24 * time.Hour,
		log:       log.Named("collector"),
	}

	log.Info("Collector service started",
		logger.Int("aircraft", len(icaos)),
		logger.Duration("interval", *interval))

	if *once {
		collector.update(ctx)
		collector.printStats(ctx)
		return
	}
	collector.Run(ctx)
	log.Info("Collector service stopped")
}
