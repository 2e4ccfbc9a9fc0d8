package data

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"dcl-forecast/internal/efa"
	"dcl-forecast/internal/features"
	"dcl-forecast/internal/logger"
	"dcl-forecast/internal/model"
)

// Source names, as reported in SourceResult and MissingSourceError.
const (
	SourceMargins           = "margins"
	SourceDemand            = "demand"
	SourceBalancingReserve  = "balancing_reserve"
	SourceFrequencyResponse = "frequency_response"
)

// NESO datastore resource IDs.
const (
	DatasetMargins           = "0eede912-8820-4c66-a58a-f7436d36b95f"
	DatasetDemand            = "9847e7bb-986e-49be-8138-717b25933fbb"
	DatasetBalancingReserve  = "1b3f2ee1-74a0-4939-a5a3-f01f19e663e4"
	DatasetFrequencyResponse = "596f29ac-0387-4ba4-a6d3-95c243140707"
)

// Querier runs a datastore SQL query. NESOClient and FileQuerier implement it.
type Querier interface {
	Query(ctx context.Context, sql string) ([]model.Record, error)
}

// SourceOptions tunes the four source pipelines.
type SourceOptions struct {
	MarginColumns []string
	// PublishLag selects the margin forecast published this long before its date.
	PublishLag time.Duration
	// NearestPublishLag falls back to the closest available lag for dates that
	// have no forecast at exactly PublishLag.
	NearestPublishLag bool

	DemandStats []features.Stat
	BRStats     []features.Stat
	BRProducts  []string
	// IncludeBRVolume adds aggregated cleared-volume columns next to the prices.
	IncludeBRVolume bool

	FRProducts []string
}

// DefaultSourceOptions are the settings the DCL model was trained with.
func DefaultSourceOptions() SourceOptions {
	return SourceOptions{
		MarginColumns: []string{"high_freq_response_requirement", "negative_reserve", "generator_availability"},
		PublishLag:    48 * time.Hour,
		DemandStats:   features.DefaultStats,
		BRStats:       features.DefaultStats,
		BRProducts:    []string{"pbr", "nbr"},
		FRProducts:    []string{"dch", "dcl", "dmh", "dml", "drh", "drl"},
	}
}

// Sources fetches and transforms each NESO dataset into EFA-aligned frames.
type Sources struct {
	q     Querier
	clock *efa.Clock
	opts  SourceOptions
	log   *logrus.Entry
}

func NewSources(q Querier, clock *efa.Clock, opts SourceOptions, log *logrus.Logger) *Sources {
	return &Sources{q: q, clock: clock, opts: opts, log: logger.Component(log, "sources")}
}

// Options returns the pipeline settings.
func (s *Sources) Options() SourceOptions { return s.opts }

// MarginsSQL selects margin forecasts over the query window of r.
func MarginsSQL(r efa.DateRange) string {
	from, to := efa.QueryWindow(r)
	return fmt.Sprintf(`SELECT * FROM "%s" WHERE "Date" >= '%s' AND "Date" <= '%s'`, DatasetMargins, from, to)
}

// DemandSQL selects day-ahead demand forecasts over the query window of r.
func DemandSQL(r efa.DateRange) string {
	from, to := efa.QueryWindow(r)
	return fmt.Sprintf(`SELECT * FROM "%s" WHERE "TARGETDATE" >= '%s' AND "TARGETDATE" <= '%s'`, DatasetDemand, from, to)
}

// AuctionSQL selects one service type's EAC results over the query window of r.
func AuctionSQL(dataset, serviceType string, r efa.DateRange) string {
	from, to := efa.QueryWindow(r)
	return fmt.Sprintf(`SELECT * FROM "%s" WHERE "serviceType" = '%s' AND "deliveryStart" >= '%s' AND "deliveryStart" <= '%s'`,
		dataset, serviceType, from, to)
}

// MarginColumns is the schema of the margins result.
func (s *Sources) MarginColumns() []string { return append([]string(nil), s.opts.MarginColumns...) }

// DemandColumns is the schema of the demand result.
func (s *Sources) DemandColumns() []string {
	return features.StatColumns([]string{"forecastdemand"}, s.opts.DemandStats)
}

// BalancingReserveColumns is the schema of the balancing reserve result.
func (s *Sources) BalancingReserveColumns() []string {
	cols := features.StatColumns(features.AuctionColumns(s.opts.BRProducts, features.KindPrice), s.opts.BRStats)
	if s.opts.IncludeBRVolume {
		cols = append(cols, features.StatColumns(features.AuctionColumns(s.opts.BRProducts, features.KindVolume), s.opts.BRStats)...)
	}
	return cols
}

// FrequencyResponseColumns is the minimum schema of the frequency response result.
func (s *Sources) FrequencyResponseColumns() []string {
	return features.AuctionColumns(s.opts.FRProducts, features.KindPrice)
}

// Margins returns the day-ahead system margin forecasts on the EFA grid of r.
func (s *Sources) Margins(ctx context.Context, r efa.DateRange) model.SourceResult {
	cols := s.MarginColumns()
	records, err := s.q.Query(ctx, MarginsSQL(r))
	if err != nil {
		return s.failed(SourceMargins, err, cols)
	}
	if len(records) == 0 {
		return s.noData(SourceMargins, cols)
	}
	records = NormaliseFields(records, efa.FieldName)

	type row struct {
		date time.Time
		lag  time.Duration
		rec  model.Record
	}
	byDate := map[int64][]row{}
	for i, rec := range records {
		date, err := ParseTime(rec, "date")
		if err != nil {
			return s.malformed(SourceMargins, fmt.Errorf("record %d: %w", i, err), cols)
		}
		published, err := ParseTime(rec, "publish_date")
		if err != nil {
			return s.malformed(SourceMargins, fmt.Errorf("record %d: %w", i, err), cols)
		}
		byDate[date.UnixNano()] = append(byDate[date.UnixNano()], row{date: date, lag: date.Sub(published), rec: rec})
	}

	series := make([]model.Series, len(cols))
	for i, c := range cols {
		series[i].Name = c
	}
	for _, rows := range byDate {
		chosen, ok := pickPublishLag(rows, s.opts.PublishLag, s.opts.NearestPublishLag, func(r row) time.Duration { return r.lag })
		if !ok {
			continue
		}
		efaStart := chosen.date.Add(-time.Hour)
		for i, c := range cols {
			if _, present := chosen.rec[c]; !present {
				return s.malformed(SourceMargins, fmt.Errorf("column %q not in margins dataset", c), cols)
			}
			v, err := ParseNumber(chosen.rec, c)
			if err != nil {
				return s.malformed(SourceMargins, err, cols)
			}
			series[i].Points = append(series[i].Points, model.Point{Time: efaStart, Value: v})
		}
	}

	raw := model.FromSeries(false, series...)
	if raw.IsEmpty() {
		s.log.WithField("publish_lag", s.opts.PublishLag).Warn("no margin forecast at the configured publish lag")
		return s.noData(SourceMargins, cols)
	}
	start, end := efa.SettlementBounds(r)
	return model.Succeeded(SourceMargins, features.ForwardFill(raw, efa.BlockDuration, start, end))
}

// pickPublishLag returns the row published exactly want before its date, or,
// when nearest is set, the row with the closest lag (the earlier publication on
// a tie).
func pickPublishLag[T any](rows []T, want time.Duration, nearest bool, lagOf func(T) time.Duration) (T, bool) {
	var zero T
	for _, r := range rows {
		if lagOf(r) == want {
			return r, true
		}
	}
	if !nearest || len(rows) == 0 {
		return zero, false
	}
	sorted := append([]T(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := absDuration(lagOf(sorted[i])-want), absDuration(lagOf(sorted[j])-want)
		if di != dj {
			return di < dj
		}
		return lagOf(sorted[i]) > lagOf(sorted[j])
	})
	return sorted[0], true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Demand returns EFA-block statistics of the half-hourly national demand forecast.
func (s *Sources) Demand(ctx context.Context, r efa.DateRange) model.SourceResult {
	cols := s.DemandColumns()
	records, err := s.q.Query(ctx, DemandSQL(r))
	if err != nil {
		return s.failed(SourceDemand, err, cols)
	}
	if len(records) == 0 {
		return s.noData(SourceDemand, cols)
	}
	records = NormaliseFields(records, efa.FieldName)

	points := make([]model.Point, 0, len(records))
	for i, rec := range records {
		date, err := ParseTime(rec, "targetdate")
		if err != nil {
			return s.malformed(SourceDemand, fmt.Errorf("record %d: %w", i, err), cols)
		}
		offset, err := ParseClock(rec, "cp_st_time")
		if err != nil {
			return s.malformed(SourceDemand, fmt.Errorf("record %d: %w", i, err), cols)
		}
		v, err := ParseNumber(rec, "forecastdemand")
		if err != nil {
			return s.malformed(SourceDemand, fmt.Errorf("record %d: %w", i, err), cols)
		}
		points = append(points, model.Point{Time: efa.Midnight(date).Add(offset), Value: v})
	}

	// Later rows are newer forecasts for the same cardinal point.
	raw := model.FromSeries(true, model.Series{Name: "forecastdemand", Points: points})
	start, end := efa.SettlementBounds(r)
	halfHourly := features.UpsampleQuadratic(raw, efa.SettlementPeriod).Between(start, end)
	agg := features.Aggregate(halfHourly, s.opts.DemandStats, features.AggregateOptions{Origin: start})
	return model.Succeeded(SourceDemand, agg.Select(cols...))
}

// BalancingReserve returns EFA-block statistics of BR clearing prices, and of
// cleared volumes when enabled.
func (s *Sources) BalancingReserve(ctx context.Context, r efa.DateRange) model.SourceResult {
	cols := s.BalancingReserveColumns()
	auctions, res, ok := s.auctions(ctx, SourceBalancingReserve, DatasetBalancingReserve, "Balancing Reserve", r, cols)
	if !ok {
		return res
	}

	start, end := efa.SettlementBounds(r)
	opts := features.AggregateOptions{Origin: start}
	kinds := []features.ValueKind{features.KindPrice}
	if s.opts.IncludeBRVolume {
		kinds = append(kinds, features.KindVolume)
	}

	out := model.NewFrame(efa.Index(r))
	for _, kind := range kinds {
		wide, err := features.Unstack(auctions, kind, s.clock)
		if err != nil {
			return s.malformed(SourceBalancingReserve, err, cols)
		}
		agg := features.Aggregate(wide.Between(start, end), s.opts.BRStats, opts)
		for _, c := range features.StatColumns(features.AuctionColumns(s.opts.BRProducts, kind), s.opts.BRStats) {
			values, _ := agg.Reindex(out.Index()).Select(c).Column(c)
			if err := out.AddColumn(c, values); err != nil {
				return s.malformed(SourceBalancingReserve, err, cols)
			}
		}
		if agg.IsEmpty() {
			return s.noData(SourceBalancingReserve, cols)
		}
	}
	return model.Succeeded(SourceBalancingReserve, out)
}

// FrequencyResponse returns DC/DM/DR clearing prices per EFA block over r, one
// column per product.
func (s *Sources) FrequencyResponse(ctx context.Context, r efa.DateRange) model.SourceResult {
	cols := s.FrequencyResponseColumns()
	auctions, res, ok := s.auctions(ctx, SourceFrequencyResponse, DatasetFrequencyResponse, "Response", r, cols)
	if !ok {
		return res
	}
	wide, err := features.Unstack(auctions, features.KindPrice, s.clock)
	if err != nil {
		return s.malformed(SourceFrequencyResponse, err, cols)
	}
	start, end := efa.IndexBounds(r)
	wide = wide.Between(start, end)

	// Keep the expected schema even when a product did not clear in the window.
	for _, c := range cols {
		if !wide.HasColumn(c) {
			values := make([]float64, wide.Len())
			for i := range values {
				values[i] = model.Missing()
			}
			if err := wide.AddColumn(c, values); err != nil {
				return s.malformed(SourceFrequencyResponse, err, cols)
			}
		}
	}
	return model.Succeeded(SourceFrequencyResponse, wide)
}

// auctions fetches and decodes one EAC service type. ok is false when res
// already carries the failure.
func (s *Sources) auctions(ctx context.Context, source, dataset, serviceType string, r efa.DateRange, cols []string) ([]model.AuctionRecord, model.SourceResult, bool) {
	records, err := s.q.Query(ctx, AuctionSQL(dataset, serviceType, r))
	if err != nil {
		return nil, s.failed(source, err, cols), false
	}
	if len(records) == 0 {
		return nil, s.noData(source, cols), false
	}
	auctions, err := ParseAuctionRecords(NormaliseFields(records, efa.SnakeCase))
	if err != nil {
		return nil, s.malformed(source, err, cols), false
	}
	return auctions, model.SourceResult{}, true
}

// failed classifies a Query error: undecodable bodies are malformed, anything
// else is a transport failure.
func (s *Sources) failed(source string, err error, cols []string) model.SourceResult {
	if errors.Is(err, ErrMalformedResponse) {
		return s.malformed(source, err, cols)
	}
	s.log.WithField("source", source).WithError(err).Warn("fetch failed")
	return model.Failed(source, model.StatusTransportFailure, err, cols...)
}

func (s *Sources) malformed(source string, err error, cols []string) model.SourceResult {
	s.log.WithField("source", source).WithError(err).Warn("malformed data")
	return model.Failed(source, model.StatusMalformed, err, cols...)
}

func (s *Sources) noData(source string, cols []string) model.SourceResult {
	s.log.WithField("source", source).Warn("no data returned")
	return model.Failed(source, model.StatusNoData, nil, cols...)
}
