// analyse estimates the fuel burn and emissions of one aircraft's trace.
//
// The trace comes from the configured provider (-icao), a local trace file
// (-file) or an archived analysis (-archived), which is re-analysed with the
// current settings.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/unklstewy/ads-bfuel/internal/archive"
	"github.com/unklstewy/ads-bfuel/internal/pipeline"
	"github.com/unklstewy/ads-bfuel/pkg/adsb"
	"github.com/unklstewy/ads-bfuel/pkg/config"
	"github.com/unklstewy/ads-bfuel/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	icao := flag.String("icao", "", "ICAO hex address of the aircraft (e.g., 3c6444)")
	file := flag.String("file", "", "Analyse a local trace_full JSON file instead of fetching")
	archived := flag.String("archived", "", "Re-analyse an archived record (.msgpack.zst)")
	typeCode := flag.String("type", "", "Aircraft type used when the trace has none")
	strategy := flag.String("strategy", "", "Leg strategy override (flags or custom)")
	asJSON := flag.Bool("json", false, "Print the report as JSON")
	flag.Parse()

	if (*icao == "") == (*file == "" && *archived == "") {
		fmt.Fprintln(os.Stderr, "One of -icao, -file or -archived is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *typeCode != "" {
		cfg.Aircraft.DefaultType = *typeCode
	}
	if *strategy != "" {
		cfg.Segmentation.Strategy = *strategy
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := pipeline.Setup(ctx, cfg, log, nil)
	if err != nil {
		log.Fatal("Failed to set up analysis", logger.Error(err))
	}
	defer rt.Close()

	var report *pipeline.Report
	switch {
	case *icao != "":
		report, err = rt.Analyser.AnalyseICAO(ctx, *icao)
	case *file != "":
		report, err = analyseFile(ctx, rt.Analyser, *file)
	default:
		report, err = analyseArchived(ctx, rt.Analyser, *archived)
	}
	if err != nil {
		log.Error("Analysis failed", logger.Error(err))
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			log.Fatal("Failed to encode report", logger.Error(err))
		}
		return
	}
	fmt.Println(Render(report))
}

func analyseFile(ctx context.Context, a *pipeline.Analyser, path string) (*pipeline.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := adsb.ParseRawTrace(data)
	if err != nil {
		return nil, err
	}
	return a.AnalyseRaw(ctx, raw)
}

func analyseArchived(ctx context.Context, a *pipeline.Analyser, path string) (*pipeline.Report, error) {
	rec, err := archive.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return a.Analyse(ctx, rec.Trace)
}
