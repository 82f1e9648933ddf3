// Package pipeline runs the full analysis of one aircraft trace: phase
// classification, distance, leg segmentation, per-leg fuel integration and
// emissions, then persistence and archiving.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/unklstewy/ads-bfuel/internal/archive"
	"github.com/unklstewy/ads-bfuel/internal/db"
	"github.com/unklstewy/ads-bfuel/internal/metrics"
	"github.com/unklstewy/ads-bfuel/pkg/adsb"
	"github.com/unklstewy/ads-bfuel/pkg/config"
	"github.com/unklstewy/ads-bfuel/pkg/emissions"
	"github.com/unklstewy/ads-bfuel/pkg/fuel"
	"github.com/unklstewy/ads-bfuel/pkg/legs"
	"github.com/unklstewy/ads-bfuel/pkg/logger"
	"github.com/unklstewy/ads-bfuel/pkg/perf"
	"github.com/unklstewy/ads-bfuel/pkg/phase"
	"github.com/unklstewy/ads-bfuel/pkg/trace"
)

// ErrNoSource is returned by AnalyseICAO when no trace source is configured.
var ErrNoSource = errors.New("no trace source configured")

// Store persists finished runs.
type Store interface {
	SaveRun(ctx context.Context, run db.Run, legs []db.LegSummary) error
}

// Archiver keeps the analysed series.
type Archiver interface {
	Write(rec *archive.Record) (string, error)
}

// Options are the analysis settings.
type Options struct {
	SourceType      string
	Strategy        legs.Strategy
	Filter          legs.FilterOptions
	Fuel            fuel.Options
	InitialMass     float64
	Emissions       bool
	NOxMethod       emissions.Method
	Workers         int
	DefaultType     string
	EngineOverrides map[string]string
	ModelCacheSize  int
	ModelCacheTTL   time.Duration
}

// OptionsFromConfig validates and converts the analysis sections of cfg.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	strategy, err := legs.ParseStrategy(cfg.Segmentation.Strategy)
	if err != nil {
		return Options{}, err
	}
	fuelOpts, err := cfg.Fuel.Options()
	if err != nil {
		return Options{}, err
	}
	method, err := emissions.ParseMethod(cfg.Emissions.NOxMethod)
	if err != nil {
		return Options{}, err
	}
	return Options{
		SourceType:      cfg.Source.Type,
		Strategy:        strategy,
		Filter:          cfg.Segmentation.FilterOptions(),
		Fuel:            fuelOpts,
		InitialMass:     cfg.Fuel.InitialMass,
		Emissions:       cfg.Emissions.Enabled,
		NOxMethod:       method,
		Workers:         cfg.Pipeline.Workers,
		DefaultType:     cfg.Aircraft.DefaultType,
		EngineOverrides: cfg.Aircraft.EngineOverrides,
		ModelCacheSize:  cfg.Pipeline.ModelCacheSize,
		ModelCacheTTL:   time.Duration(cfg.Pipeline.ModelCacheTTLMinutes) * time.Minute,
	}, nil
}

// Deps are the collaborators of an Analyser. Perf is required; Source, Store
// and Archive are optional.
type Deps struct {
	Perf    *perf.DB
	Source  adsb.TraceSource
	Store   Store
	Archive Archiver
	Metrics *metrics.Registry
	Logger  *logger.Logger
}

// Analyser runs analyses. It is safe for concurrent use.
type Analyser struct {
	opts    Options
	deps    Deps
	log     *logger.Logger
	metrics *metrics.Registry
	models  *expirable.LRU[string, *perf.Model]
}

// New creates an Analyser.
func New(opts Options, deps Deps) (*Analyser, error) {
	if deps.Perf == nil {
		return nil, fmt.Errorf("performance database is required")
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.ModelCacheSize < 1 {
		opts.ModelCacheSize = 32
	}
	if opts.SourceType == "" {
		opts.SourceType = adsb.SourceADSBExchange
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}

	return &Analyser{
		opts:    opts,
		deps:    deps,
		log:     log.Named("pipeline"),
		metrics: m,
		models:  expirable.NewLRU[string, *perf.Model](opts.ModelCacheSize, nil, opts.ModelCacheTTL),
	}, nil
}

// Options returns the analysis settings.
func (a *Analyser) Options() Options { return a.opts }

// AnalyseICAO fetches, normalises and analyses the trace of one aircraft.
func (a *Analyser) AnalyseICAO(ctx context.Context, icao string) (*Report, error) {
	if a.deps.Source == nil {
		return nil, ErrNoSource
	}

	start := time.Now()
	raw, err := a.deps.Source.FetchTrace(ctx, icao)
	a.metrics.TraceFetchDuration.Observe(time.Since(start).Seconds())
	switch {
	case errors.Is(err, adsb.ErrTraceNotFound):
		a.metrics.TraceFetchesTotal.WithLabelValues("not_found").Inc()
		return nil, err
	case err != nil:
		a.metrics.TraceFetchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to fetch trace: %w", err)
	}
	a.metrics.TraceFetchesTotal.WithLabelValues("ok").Inc()

	return a.AnalyseRaw(ctx, raw)
}

// AnalyseRaw normalises a provider trace and analyses it.
func (a *Analyser) AnalyseRaw(ctx context.Context, raw *adsb.RawTrace) (*Report, error) {
	s, err := adsb.Normalise(raw, a.opts.SourceType)
	if err != nil {
		return nil, fmt.Errorf("failed to normalise trace: %w", err)
	}
	return a.Analyse(ctx, s)
}

// Analyse runs the analysis of one series. Leg-level failures are reported in
// the returned legs, not as an error.
func (a *Analyser) Analyse(ctx context.Context, s trace.Series) (*Report, error) {
	start := time.Now()
	report, err := a.analyse(ctx, s)
	a.metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		a.metrics.AnalysesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	a.metrics.AnalysesTotal.WithLabelValues("ok").Inc()

	a.persist(ctx, report)
	return report, nil
}

func (a *Analyser) analyse(ctx context.Context, s trace.Series) (*Report, error) {
	if s.Len() == 0 {
		return nil, &trace.EmptySeriesError{Op: "analysis"}
	}
	log := a.log.WithAircraft(s.ICAO24)

	var err error
	if !s.Has(trace.ColPhase) {
		if s, err = phase.Classify(s); err != nil {
			return nil, fmt.Errorf("failed to classify phases: %w", err)
		}
	}
	if s, err = trace.AddDistance(s); err != nil {
		return nil, fmt.Errorf("failed to compute distance: %w", err)
	}

	segmented, stats, err := legs.IdentifyWithStats(s, a.opts.Strategy, a.opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("failed to identify legs: %w", err)
	}
	parts, err := legs.Split(segmented)
	if err != nil {
		return nil, fmt.Errorf("failed to split legs: %w", err)
	}
	a.metrics.LegsTotal.WithLabelValues("dropped").Add(float64(stats.Dropped()))

	typeCode := strings.ToUpper(segmented.TypeCode)
	if typeCode == "" {
		typeCode = strings.ToUpper(a.opts.DefaultType)
	}
	model, err := a.model(typeCode)
	if err != nil {
		return nil, fmt.Errorf("aircraft %q: %w", typeCode, err)
	}
	env := model.Aircraft().Envelope()

	report := &Report{
		RunID:        uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
		ICAO24:       segmented.ICAO24,
		Registration: segmented.Registration,
		TypeCode:     typeCode,
		EngineID:     model.Engine().ID,
		InputSamples: s.Len(),
		Samples:      segmented.Len(),
		Strategy:     a.opts.Strategy.String(),
		FuelMode:     a.opts.Fuel.Mode.String(),
		Segmentation: stats,
		Legs:         make([]LegReport, len(parts)),
		DistanceKm:   segmented.TotalDistance(),
		Trace:        segmented,
	}
	if a.opts.Emissions {
		report.NOxMethod = a.opts.NOxMethod.String()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for i, part := range parts {
		i, part := i, part
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			report.Legs[i] = a.integrateLeg(part, model, env)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, leg := range report.Legs {
		if leg.Err != nil {
			report.Skipped++
			a.metrics.LegsTotal.WithLabelValues("skipped").Inc()
			log.Warn("leg skipped", logger.Int("leg", leg.Leg), logger.Error(leg.Err))
			continue
		}
		report.Totals = report.Totals.Add(leg.Totals)
		a.metrics.LegsTotal.WithLabelValues("integrated").Inc()
		a.metrics.SanitizedTotal.Add(float64(leg.Sanitized))
		if leg.Retried {
			a.metrics.MTOWRetriesTotal.Inc()
		}
	}
	a.metrics.FuelBurnedKg.Add(report.Totals.Fuel)
	a.metrics.CO2EmittedKg.Add(report.Totals.CO2)

	log.Info("analysis complete",
		logger.String("run_id", report.RunID),
		logger.String("type", typeCode),
		logger.Int("legs", len(report.Legs)),
		logger.Int("skipped", report.Skipped),
		logger.Float64("fuel_kg", report.Totals.Fuel))
	return report, nil
}

// integrateLeg runs fuel integration and emissions for one leg. Failures are
// recorded on the result.
func (a *Analyser) integrateLeg(s trace.Series, model *perf.Model, env fuel.Envelope) LegReport {
	lr := newLegReport(s)

	out, diag, err := fuel.Integrate(s, model, a.opts.InitialMass, env, a.opts.Fuel)
	if err != nil {
		lr.setError(err)
		return lr
	}
	lr.InitialMassKg = diag.InitialMass
	lr.FinalMassKg = diag.FinalMass
	lr.Retried = diag.Retried
	lr.Sanitized = diag.Sanitized

	if a.opts.Emissions {
		if out, err = emissions.Compute(out, model.Engine(), env.Engines, a.opts.NOxMethod); err != nil {
			lr.setError(err)
			return lr
		}
	}

	totals, err := emissions.Sum(out)
	if err != nil {
		lr.setError(err)
		return lr
	}
	lr.Totals = totals
	lr.Series = out
	return lr
}

// model returns the cached fuel-flow model of a type.
func (a *Analyser) model(typeCode string) (*perf.Model, error) {
	engineID := a.opts.EngineOverrides[typeCode]
	key := typeCode + "/" + engineID

	if m, ok := a.models.Get(key); ok {
		a.metrics.ModelCacheTotal.WithLabelValues("hit").Inc()
		return m, nil
	}
	a.metrics.ModelCacheTotal.WithLabelValues("miss").Inc()

	m, err := a.deps.Perf.ModelFor(typeCode, engineID)
	if err != nil {
		return nil, err
	}
	a.models.Add(key, m)
	return m, nil
}

// persist stores and archives a finished report. Failures are logged and
// recorded on the report; the analysis itself stands.
func (a *Analyser) persist(ctx context.Context, r *Report) {
	log := a.log.WithAircraft(r.ICAO24)

	if a.deps.Store != nil {
		run, legs := r.Records()
		if err := a.deps.Store.SaveRun(ctx, run, legs); err != nil {
			log.Error("failed to store run", logger.String("run_id", r.RunID), logger.Error(err))
			r.Warnings = append(r.Warnings, "store: "+err.Error())
		}
	}

	if a.deps.Archive != nil {
		path, err := a.deps.Archive.Write(r.ArchiveRecord())
		if err != nil {
			log.Error("failed to archive run", logger.String("run_id", r.RunID), logger.Error(err))
			r.Warnings = append(r.Warnings, "archive: "+err.Error())
			return
		}
		r.ArchivePath = path
	}
}
