package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/unklstewy/ads-bfuel/internal/db"
	"github.com/unklstewy/ads-bfuel/internal/pipeline"
	"github.com/unklstewy/ads-bfuel/pkg/adsb"
	"github.com/unklstewy/ads-bfuel/pkg/logger"
)

// ParseWatchlist reads ICAO addresses separated by commas, whitespace or
// newlines. Text after '#' on a line is ignored; duplicates are dropped.
func ParseWatchlist(r io.Reader) ([]string, error) {
	var out []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		for _, field := range strings.FieldsFunc(text, func(c rune) bool {
			return c == ',' || c == ' ' || c == '\t'
		}) {
			icao, err := adsb.NormaliseICAO(field)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			if !seen[icao] {
				seen[icao] = true
				out = append(out, icao)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStats summarises one pass over the watchlist.
type UpdateStats struct {
	Analysed int
	NotFound int
	Failed   int
	Legs     int
	FuelKg   float64
}

// Collector periodically analyses a watchlist of aircraft.
type Collector struct {
	rt        *pipeline.Runtime
	aircraft  []string
	interval  time.Duration
	retention time.Duration
	log       *logger.Logger

	totalUpdates int
}

// Run performs one update immediately, then one per interval until ctx is done.
func (c *Collector) Run(ctx context.Context) {
	c.update(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Periodic cleanup (every hour)
	cleanupTicker := time.NewTicker(time.Hour)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.update(ctx)
			c.printStats(ctx)
		case <-cleanupTicker.C:
			c.cleanup(ctx)
		}
	}
}

// update analyses every aircraft once. The trace client paces requests.
func (c *Collector) update(ctx context.Context) UpdateStats {
	var st UpdateStats
	c.totalUpdates++

	for _, icao := range c.aircraft {
		if ctx.Err() != nil {
			break
		}
		report, err := c.rt.Analyser.AnalyseICAO(ctx, icao)
		switch {
		case errors.Is(err, adsb.ErrTraceNotFound):
			st.NotFound++
			c.log.Debug("no trace", logger.String("icao24", icao))
			continue
		case err != nil:
			st.Failed++
			c.log.Warn("analysis failed", logger.String("icao24", icao), logger.Error(err))
			continue
		}

		st.Analysed++
		st.Legs += len(report.Legs) - report.Skipped
		st.FuelKg += report.Totals.Fuel
	}

	c.log.Info("update complete",
		logger.Int("update", c.totalUpdates),
		logger.Int("aircraft", len(c.aircraft)),
		logger.Int("analysed", st.Analysed),
		logger.Int("not_found", st.NotFound),
		logger.Int("failed", st.Failed),
		logger.Int("legs", st.Legs),
		logger.Float64("fuel_kg", st.FuelKg))
	return st
}

// cleanup removes runs older than the retention period.
func (c *Collector) cleanup(ctx context.Context) {
	if c.rt.DB == nil || c.retention <= 0 {
		return
	}
	n, err := c.rt.DB.CleanupOldData(ctx, c.retention)
	if err != nil {
		c.log.Error("cleanup failed", logger.Error(err))
		return
	}
	c.log.Info("cleanup completed", logger.Int64("runs_removed", n))
}

// printStats logs stored totals.
func (c *Collector) printStats(ctx context.Context) {
	if c.rt.DB == nil {
		return
	}
	if !db.HealthCheck(ctx, c.rt.DB) {
		c.log.Warn("database unreachable, skipping stats")
		return
	}
	stats, err := c.rt.DB.GetStats(ctx)
	if err != nil {
		c.log.Error("failed to get stats", logger.Error(err))
		return
	}
	c.log.Info("stored totals",
		logger.Int64("runs", stats.Runs),
		logger.Int64("legs", stats.Legs),
		logger.Int64("aircraft", stats.Aircraft),
		logger.Float64("fuel_kg", stats.FuelKg),
		logger.Float64("co2_kg", stats.CO2Kg))
}
