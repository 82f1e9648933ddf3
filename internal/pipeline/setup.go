package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/unklstewy/ads-bfuel/internal/archive"
	"github.com/unklstewy/ads-bfuel/internal/db"
	"github.com/unklstewy/ads-bfuel/internal/metrics"
	"github.com/unklstewy/ads-bfuel/pkg/adsb"
	"github.com/unklstewy/ads-bfuel/pkg/config"
	"github.com/unklstewy/ads-bfuel/pkg/logger"
	"github.com/unklstewy/ads-bfuel/pkg/perf"
)

// Runtime is an Analyser together with the resources it was built from.
type Runtime struct {
	Analyser *Analyser
	Client   *adsb.Client
	Perf     *perf.DB
	Metrics  *metrics.Registry

	// DB and Legs are nil when the database is disabled
	DB   *db.DB
	Legs *db.LegRepository

	// Archive is nil when archiving is disabled
	Archive *archive.Store
}

// Setup builds a Runtime from configuration. The database is retried a few
// times before giving up.
func Setup(ctx context.Context, cfg *config.Config, log *logger.Logger, reg *metrics.Registry) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	if reg == nil {
		reg = metrics.New()
	}

	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Metrics: reg}

	if cfg.Aircraft.AircraftFile != "" && cfg.Aircraft.EnginesFile != "" {
		rt.Perf, err = perf.LoadFiles(cfg.Aircraft.AircraftFile, cfg.Aircraft.EnginesFile)
	} else {
		rt.Perf, err = perf.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load performance database: %w", err)
	}

	rt.Client, err = adsb.NewClient(cfg.Source.ClientConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace client: %w", err)
	}

	deps := Deps{
		Perf:    rt.Perf,
		Source:  rt.Client,
		Metrics: reg,
		Logger:  log,
	}

	if cfg.Database.Enabled {
		rt.DB, err = db.ReconnectWithRetry(ctx, cfg.Database, log, 3, time.Second)
		if err != nil {
			return nil, err
		}
		if err := rt.DB.InitSchema(ctx); err != nil {
			rt.DB.Close()
			return nil, err
		}
		rt.Legs = db.NewLegRepository(rt.DB)
		deps.Store = rt.Legs
	}

	if cfg.Archive.Enabled {
		rt.Archive, err = archive.Open(cfg.Archive.Dir, cfg.Archive.Level, log)
		if err != nil {
			rt.Close()
			return nil, err
		}
		deps.Archive = rt.Archive
	}

	rt.Analyser, err = New(opts, deps)
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// Close releases the database connection.
func (rt *Runtime) Close() error {
	var err error
	if rt.DB != nil {
		err = multierr.Append(err, rt.DB.Close())
	}
	return err
}
