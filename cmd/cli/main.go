package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"dcl-forecast/internal/analysis"
	"dcl-forecast/internal/app"
	"dcl-forecast/internal/config"
	"dcl-forecast/internal/efa"
	"dcl-forecast/internal/export"
	"dcl-forecast/internal/features"
	"dcl-forecast/internal/pipeline"
	"dcl-forecast/internal/storage"
)

// errUsage marks a bad invocation (exit 2).
var errUsage = errors.New("usage")

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout)
	var missing *features.MissingSourceError
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		usage(os.Stderr)
		os.Exit(2)
	case errors.As(err, &missing):
		fmt.Fprintf(os.Stderr, "data source %s is unavailable (%s)\n", missing.Source, missing.Status)
		if missing.Err != nil {
			fmt.Fprintf(os.Stderr, "  cause: %v\n", missing.Err)
		}
		fmt.Fprintln(os.Stderr, "  rerun later, or pass --allow-missing to fill it with missing values")
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  cli efa-index --start 2025-06-12 [--end 2025-06-13]")
	fmt.Fprintln(w, "  cli features --start 2025-06-01 --end 2025-06-07 --out results/features.parquet [--save]")
	fmt.Fprintln(w, "  cli train-set [--end 2025-06-12] --out results/train.csv [--profile] [--splits 4 --test-size 540]")
	fmt.Fprintln(w, "  cli predict-set [--date 2025-06-13] --out results/predict.csv")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "notes:")
	fmt.Fprintln(w, "  - --out writes CSV or Parquet by file extension; --save stores the run (Postgres when DATABASE_URL is set)")
	fmt.Fprintln(w, "  - all commands accept --config path/to/config.yaml")
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) < 1 {
		return errUsage
	}
	switch args[0] {
	case "efa-index":
		return cmdEFAIndex(args[1:], stdout)
	case "features":
		return cmdFeatures(ctx, args[1:], stdout)
	case "train-set":
		return cmdTrainSet(ctx, args[1:], stdout)
	case "predict-set":
		return cmdPredictSet(ctx, args[1:], stdout)
	}
	return errUsage
}

// common holds the flags every data command accepts.
type common struct {
	cfgPath      *string
	out          *string
	save         *bool
	allowMissing *bool
}

func commonFlags(fs *flag.FlagSet) common {
	return common{
		cfgPath:      fs.String("config", "", "Path to YAML config"),
		out:          fs.String("out", "", "Output path (.csv or .parquet)"),
		save:         fs.Bool("save", false, "Store the run"),
		allowMissing: fs.Bool("allow-missing", false, "Fill unavailable sources with missing values"),
	}
}

func (c common) open(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(*c.cfgPath)
	if err != nil {
		return nil, err
	}
	if *c.allowMissing {
		cfg.Features = config.MergeFeatures(cfg.Features, config.FeaturesConfig{AllowMissing: true})
	}
	return app.New(ctx, cfg)
}

func cmdEFAIndex(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("efa-index", flag.ContinueOnError)
	start := fs.String("start", "", "First trading date (YYYY-MM-DD)")
	end := fs.String("end", "", "Last trading date (default: --start)")
	zone := fs.String("tz", efa.DefaultZone, "Civil time zone")
	if err := fs.Parse(args); err != nil || *start == "" {
		return errUsage
	}
	if *end == "" {
		*end = *start
	}
	r, err := efa.ParseDateRange(*start, *end)
	if err != nil {
		return err
	}
	clock, err := efa.NewClock(*zone)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%-12s %-6s %-20s %-21s\n", "date", "block", "start_local", "start_utc")
	for _, t := range efa.Index(r) {
		date, block := efa.BlockOf(t)
		fmt.Fprintf(stdout, "%-12s %-6d %-20s %-21s\n",
			date.Format(efa.DateLayout), block, t.Format("2006-01-02T15:04:05"), clock.ToInstant(t).Format(time.RFC3339))
	}
	return nil
}

func cmdFeatures(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("features", flag.ContinueOnError)
	c := commonFlags(fs)
	start := fs.String("start", "", "First trading date (YYYY-MM-DD)")
	end := fs.String("end", "", "Last trading date (default: --start)")
	if err := fs.Parse(args); err != nil || *start == "" {
		return errUsage
	}
	if *end == "" {
		*end = *start
	}
	r, err := efa.ParseDateRange(*start, *end)
	if err != nil {
		return err
	}

	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	matrix, err := a.Builder.BuildFeatures(ctx, r)
	if err != nil {
		return err
	}
	return emit(ctx, a, c, storage.KindFeatures, &pipeline.Dataset{Range: r, Features: matrix}, stdout)
}

func cmdTrainSet(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("train-set", flag.ContinueOnError)
	c := commonFlags(fs)
	end := fs.String("end", "", "Last trading date (default: today)")
	nSplits := fs.Int("splits", 0, "Print this many walk-forward folds")
	testSize := fs.Int("test-size", 3*30*6, "Rows per test fold")
	profile := fs.Bool("profile", false, "Print feature coverage and correlation with the target")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	endDate, err := optionalDate(*end)
	if err != nil {
		return err
	}

	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ds, err := a.Builder.TrainingSet(ctx, endDate)
	if err != nil {
		return err
	}
	if *profile {
		printProfile(stdout, ds)
	}
	if *nSplits > 0 {
		if err := printSplits(stdout, ds, *nSplits, *testSize); err != nil {
			return err
		}
	}
	return emit(ctx, a, c, storage.KindTraining, ds, stdout)
}

func cmdPredictSet(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("predict-set", flag.ContinueOnError)
	c := commonFlags(fs)
	date := fs.String("date", "", "Trading date to predict (default: tomorrow)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	d, err := optionalDate(*date)
	if err != nil {
		return err
	}

	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ds, err := a.Builder.PredictionSet(ctx, d)
	if err != nil {
		return err
	}
	return emit(ctx, a, c, storage.KindPrediction, ds, stdout)
}

func printProfile(stdout io.Writer, ds *pipeline.Dataset) {
	fmt.Fprintf(stdout, "%-4s %-28s %-8s %-10s %-10s %-10s %-8s\n", "rank", "feature", "cover", "p05", "p95", "mean", "corr")
	for i, p := range analysis.RankByCorrelation(ds) {
		fmt.Fprintf(stdout, "%-4d %-28s %-8.3f %-10.2f %-10.2f %-10.2f %-8.3f\n",
			i+1, p.Column, p.Coverage(), p.P05, p.P95, p.Mean, p.Correlation)
	}
}

func printSplits(stdout io.Writer, ds *pipeline.Dataset, nSplits, testSize int) error {
	splits, err := pipeline.TimeSeriesSplits(ds.Len(), nSplits, testSize)
	if err != nil {
		return err
	}
	index := ds.Index()
	fmt.Fprintf(stdout, "%-5s %-8s %-20s %-20s %-8s %-20s %-20s\n", "fold", "train", "train_from", "train_to", "test", "test_from", "test_to")
	for i, s := range splits {
		fmt.Fprintf(stdout, "%-5d %-8d %-20s %-20s %-8d %-20s %-20s\n",
			i+1,
			s.TrainEnd-s.TrainStart, index[s.TrainStart].Format("2006-01-02T15:04"), index[s.TrainEnd-1].Format("2006-01-02T15:04"),
			s.TestEnd-s.TestStart, index[s.TestStart].Format("2006-01-02T15:04"), index[s.TestEnd-1].Format("2006-01-02T15:04"),
		)
	}
	return nil
}

// emit writes ds to --out and stores it with --save.
func emit(ctx context.Context, a *app.App, c common, kind string, ds *pipeline.Dataset, stdout io.Writer) error {
	if *c.out == "" && !*c.save {
		fmt.Fprintf(stdout, "Built %d rows x %d features for %s (use --out or --save to keep them)\n",
			ds.Len(), len(ds.Features.Columns()), ds.Range)
		return nil
	}
	if *c.out != "" {
		if err := writeDataset(*c.out, ds, a.Clock); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Wrote %d rows to %s\n", ds.Len(), *c.out)
	}
	if *c.save {
		run := storage.NewRun(kind, ds, a.Clock, time.Now())
		if err := a.Store.SaveRun(ctx, run); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Saved run %s\n", run.ID)
	}
	return nil
}

func writeDataset(path string, ds *pipeline.Dataset, clock *efa.Clock) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return export.WriteCSVFile(path, ds, clock)
	case ".parquet":
		return export.WriteParquetFile(path, ds, clock, "snappy")
	}
	return fmt.Errorf("unsupported output %q: use .csv or .parquet", path)
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := efa.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
