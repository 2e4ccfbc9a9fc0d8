package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dcl-forecast/internal/app"
	"dcl-forecast/internal/config"
	"dcl-forecast/internal/data"
	"dcl-forecast/internal/efa"
	"dcl-forecast/internal/export"
	"dcl-forecast/internal/model"
)

// Demo:
// - Serve NESO queries from a snapshot directory (see cmd/snapshot)
// - Build the prediction feature matrix for one trading date
// - Print it block by block to show how the sources line up on the EFA grid
func main() {
	dataDir := flag.String("data", "testdata/neso", "Snapshot directory written by cmd/snapshot")
	cfgPath := flag.String("config", "", "Path to YAML config (optional)")
	date := flag.String("date", "", "Trading date (default: first date of the snapshot)")
	cols := flag.Int("n", 8, "Number of feature columns to print")
	outCSV := flag.String("out", "", "Optional path to write the matrix as CSV (e.g. results/demo.csv)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		panic(err)
	}
	cfg.NESO.FixturesDir = *dataDir
	cfg.Features.AllowMissing = true
	cfg.Log.Level = "warn"

	day, err := demoDate(*date, *dataDir)
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		panic(err)
	}
	defer a.Close()

	for _, src := range []model.SourceResult{
		a.Sources.Margins(ctx, efa.SingleDay(day)),
		a.Sources.Demand(ctx, efa.SingleDay(day)),
		a.Sources.BalancingReserve(ctx, efa.SingleDay(day)),
	} {
		fmt.Printf("%-18s status=%-17s rows=%d\n", src.Source, src.Status, src.Frame.Len())
	}

	ds, err := a.Builder.PredictionSet(ctx, &day)
	if err != nil {
		panic(err)
	}

	columns := ds.Features.Columns()
	shown := columns
	if *cols < len(shown) {
		shown = shown[:*cols]
	}
	fmt.Printf("\nTrading date %s: %d blocks x %d features (showing %d)\n\n",
		day.Format(efa.DateLayout), ds.Len(), len(columns), len(shown))
	fmt.Printf("%-6s %-17s %s\n", "block", "start_local", strings.Join(shown, "  "))
	for i, t := range ds.Index() {
		_, block := efa.BlockOf(t)
		values := make([]string, len(shown))
		for j, c := range shown {
			v := ds.Features.Value(c, i)
			if model.IsMissing(v) {
				values[j] = fmt.Sprintf("%*s", len(c), "-")
			} else {
				values[j] = fmt.Sprintf("%*.2f", len(c), v)
			}
		}
		fmt.Printf("%-6d %-17s %s\n", block, t.Format("2006-01-02 15:04"), strings.Join(values, "  "))
	}

	if *outCSV != "" {
		if err := os.MkdirAll(filepath.Dir(*outCSV), 0o755); err != nil {
			panic(err)
		}
		if err := export.WriteCSVFile(*outCSV, ds, a.Clock); err != nil {
			panic(err)
		}
		fmt.Printf("\nWrote CSV: %s\n", *outCSV)
	}
}

// demoDate is the flag value, or the first trading date the snapshot covers.
func demoDate(flagValue, dir string) (day time.Time, err error) {
	if flagValue != "" {
		return efa.ParseDate(flagValue)
	}
	cat, err := data.LoadCatalogue(filepath.Join(dir, data.CatalogueFile))
	if err != nil {
		return day, fmt.Errorf("no --date and no snapshot catalogue: %w", err)
	}
	d, ok := cat.Find(data.DatasetMargins)
	if !ok || d.From == "" {
		return day, fmt.Errorf("snapshot catalogue has no margins window")
	}
	from, err := efa.ParseDate(d.From)
	if err != nil {
		return day, err
	}
	// The query window opens one day before the first trading date.
	return from.AddDate(0, 0, 1), nil
}
