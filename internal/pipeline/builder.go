package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"dcl-forecast/internal/data"
	"dcl-forecast/internal/efa"
	"dcl-forecast/internal/features"
	"dcl-forecast/internal/logger"
	"dcl-forecast/internal/model"
)

// SourceLags names the lag part of the feature matrix.
const SourceLags = "lags"

// Options controls which features are built and how gaps are treated.
type Options struct {
	Lags     features.LagSpec
	Temporal []string
	// AllowMissing fills the columns of unavailable sources with missing values
	// instead of failing.
	AllowMissing bool
	// Sequential fetches sources one after another.
	Sequential bool

	Target       string
	LookbackDays int
	Floor        time.Time
}

// DefaultOptions is the DCL model configuration.
func DefaultOptions() Options {
	return Options{
		Lags:         features.DefaultLagSpec(),
		Temporal:     append([]string(nil), features.DefaultTemporalFeatures...),
		Target:       DefaultTarget,
		LookbackDays: DefaultLookbackDays,
		Floor:        DefaultFloor,
	}
}

// Fetcher is the set of source pipelines the builder draws from.
type Fetcher interface {
	Margins(ctx context.Context, r efa.DateRange) model.SourceResult
	Demand(ctx context.Context, r efa.DateRange) model.SourceResult
	BalancingReserve(ctx context.Context, r efa.DateRange) model.SourceResult
	FrequencyResponse(ctx context.Context, r efa.DateRange) model.SourceResult
}

var _ Fetcher = (*data.Sources)(nil)

// Builder assembles feature matrices and datasets for trading date ranges.
type Builder struct {
	sources Fetcher
	clock   *efa.Clock
	opts    Options
	log     *logrus.Entry
	now     func() time.Time
}

func NewBuilder(sources Fetcher, clock *efa.Clock, opts Options, log *logrus.Logger) (*Builder, error) {
	if err := opts.Lags.Validate(); err != nil {
		return nil, err
	}
	if _, err := features.TemporalFeatures(nil, opts.Temporal); err != nil {
		return nil, err
	}
	if opts.Target == "" {
		opts.Target = DefaultTarget
	}
	return &Builder{
		sources: sources,
		clock:   clock,
		opts:    opts,
		log:     logger.Component(log, "pipeline"),
		now:     time.Now,
	}, nil
}

// WithNow replaces the wall clock used to resolve default dates.
func (b *Builder) WithNow(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Options returns the builder configuration.
func (b *Builder) Options() Options { return b.opts }

// Today is the current civil date.
func (b *Builder) Today() time.Time { return b.clock.Today(b.now()) }

// built carries the assembled matrix and the frequency-response history it
// was lagged from, which also holds the training target.
type built struct {
	features *model.Frame
	history  model.SourceResult
}

// BuildFeatures returns the feature matrix for r, indexed by efa.Index(r).
func (b *Builder) BuildFeatures(ctx context.Context, r efa.DateRange) (*model.Frame, error) {
	out, err := b.build(ctx, r)
	if err != nil {
		return nil, err
	}
	return out.features, nil
}

func (b *Builder) build(ctx context.Context, r efa.DateRange) (*built, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	index := efa.Index(r)
	historyRange := r.Extend(b.opts.Lags.LookbackDays(), 1)

	fetches := []func(context.Context) model.SourceResult{
		func(ctx context.Context) model.SourceResult { return b.sources.Margins(ctx, r) },
		func(ctx context.Context) model.SourceResult { return b.sources.Demand(ctx, r) },
		func(ctx context.Context) model.SourceResult { return b.sources.BalancingReserve(ctx, r) },
		func(ctx context.Context) model.SourceResult { return b.sources.FrequencyResponse(ctx, historyRange) },
	}
	results := make([]model.SourceResult, len(fetches))
	start := time.Now()
	if b.opts.Sequential {
		for i, fetch := range fetches {
			results[i] = fetch(ctx)
		}
	} else {
		var wg sync.WaitGroup
		for i, fetch := range fetches {
			wg.Add(1)
			go func(i int, fetch func(context.Context) model.SourceResult) {
				defer wg.Done()
				results[i] = fetch(ctx)
			}(i, fetch)
		}
		wg.Wait()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	history := results[3]

	lags, err := b.lagPart(index, history)
	if err != nil {
		return nil, err
	}
	temporal, err := features.TemporalFeatures(index, b.opts.Temporal)
	if err != nil {
		return nil, err
	}

	parts := []model.SourceResult{results[0], results[1], results[2], lags, model.Succeeded("temporal", temporal)}
	for _, p := range parts {
		if !p.OK() && b.opts.AllowMissing {
			b.log.WithFields(logrus.Fields{"source": p.Source, "status": p.Status}).WithError(p.Err).
				Warn("source unavailable, filling with missing values")
		}
	}
	matrix, err := features.Assemble(index, parts, features.AssembleOptions{AllowMissing: b.opts.AllowMissing})
	if err != nil {
		return nil, err
	}
	b.log.WithFields(logrus.Fields{
		"range":    r.String(),
		"rows":     matrix.Len(),
		"columns":  len(matrix.Columns()),
		"duration": time.Since(start),
	}).Info("feature matrix built")
	return &built{features: matrix, history: history}, nil
}

// lagPart builds the lag columns, passing on the failure of the history source.
func (b *Builder) lagPart(index []time.Time, history model.SourceResult) (model.SourceResult, error) {
	columns := b.opts.Lags.Columns()
	if !history.OK() {
		return model.SourceResult{Source: history.Source, Frame: model.Empty(columns...), Status: history.Status, Err: history.Err}, nil
	}
	lags, err := features.BuildLags(index, history.Frame, b.opts.Lags)
	if err != nil {
		return model.SourceResult{}, err
	}
	if missing := history.Frame.MissingColumns(b.opts.Lags.Parameters()...); len(missing) > 0 {
		b.log.WithField("parameters", missing).Warn("lag parameters absent from frequency response history")
	}
	return model.SourceResult{Source: SourceLags, Frame: lags, Status: model.StatusOK}, nil
}

// TrainingSet builds the features and target for the training window ending at
// end (today when nil). Rows without a target value are dropped.
func (b *Builder) TrainingSet(ctx context.Context, end *time.Time) (*Dataset, error) {
	r, err := TrainingRange(end, b.Today(), b.opts.LookbackDays, b.opts.Floor)
	if err != nil {
		return nil, err
	}
	return b.TrainingSetFor(ctx, r)
}

// TrainingSetFor builds a training dataset over an explicit range.
func (b *Builder) TrainingSetFor(ctx context.Context, r efa.DateRange) (*Dataset, error) {
	out, err := b.build(ctx, r)
	if err != nil {
		return nil, err
	}
	if !out.history.OK() {
		return nil, &features.MissingSourceError{Source: out.history.Source, Status: out.history.Status, Err: out.history.Err}
	}
	if !out.history.Frame.HasColumn(b.opts.Target) {
		return nil, fmt.Errorf("target %q not found in %s", b.opts.Target, out.history.Source)
	}

	index := out.features.Index()
	kept := make([]time.Time, 0, len(index))
	target := make([]float64, 0, len(index))
	for _, t := range index {
		if v, ok := out.history.Frame.At(b.opts.Target, t); ok {
			kept = append(kept, t)
			target = append(target, v)
		}
	}
	if dropped := len(index) - len(kept); dropped > 0 {
		b.log.WithFields(logrus.Fields{"target": b.opts.Target, "dropped": dropped}).Warn("dropped rows without target")
	}
	return &Dataset{
		Range:      r,
		Features:   out.features.Reindex(kept),
		TargetName: b.opts.Target,
		Target:     target,
	}, nil
}

// PredictionSet builds the features for one trading date (tomorrow when nil).
func (b *Builder) PredictionSet(ctx context.Context, date *time.Time) (*Dataset, error) {
	r := PredictionRange(date, b.Today())
	matrix, err := b.BuildFeatures(ctx, r)
	if err != nil {
		return nil, err
	}
	return &Dataset{Range: r, Features: matrix}, nil
}
