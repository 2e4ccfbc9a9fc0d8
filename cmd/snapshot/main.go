package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"dcl-forecast/internal/app"
	"dcl-forecast/internal/config"
	"dcl-forecast/internal/data"
	"dcl-forecast/internal/efa"
)

// Saves the NESO responses needed to build features over a date range, so the
// CLI, demo and tests can run offline with neso.fixtures_dir.
func main() {
	var (
		cfgPath = flag.String("config", "", "Path to YAML config (optional)")
		start   = flag.String("start", "", "First trading date (default: today)")
		end     = flag.String("end", "", "Last trading date (default: tomorrow)")
		outDir  = flag.String("out", "testdata/neso", "Directory for <dataset-id>.json files")
	)
	flag.Parse()
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	// Always query the live API, even if the config points at fixtures.
	cfg.NESO.FixturesDir = ""

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	today := a.Builder.Today()
	r := efa.DateRange{Start: today, End: today.AddDate(0, 0, 1)}
	if *start != "" {
		if r.Start, err = efa.ParseDate(*start); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	if *end != "" {
		if r.End, err = efa.ParseDate(*end); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	if err := r.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	fmt.Printf("Saving NESO datasets for %s to %s\n", r, *outDir)
	lookback := a.Builder.Options().Lags.LookbackDays()
	cat, err := data.Snapshot(ctx, a.Querier, *outDir, r, lookback, time.Now(), a.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "snapshot failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%-38s %-20s %-12s %-12s %-8s\n", "dataset", "source", "from", "to", "records")
	for _, d := range cat.Datasets {
		fmt.Printf("%-38s %-20s %-12s %-12s %-8d\n", d.ID, d.Source, d.From, d.To, d.Records)
	}
}
