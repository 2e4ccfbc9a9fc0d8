package data

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"dcl-forecast/internal/efa"
	"dcl-forecast/internal/logger"
	"dcl-forecast/internal/model"
)

// CatalogueFile is the manifest written next to a snapshot.
const CatalogueFile = "catalogue.json"

// Dataset describes one NESO datastore resource the sources read.
type Dataset struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Source     string `json:"source"`
	Resolution string `json:"resolution"`
	// Set by Snapshot.
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Records int    `json:"records,omitempty"`
}

// Catalogue is a collection of datasets, optionally with snapshot metadata.
type Catalogue struct {
	UpdatedAt string    `json:"updated_at,omitempty"` // RFC 3339
	Datasets  []Dataset `json:"datasets"`
}

// DefaultCatalogue lists the four datasets behind the feature sources.
func DefaultCatalogue() Catalogue {
	return Catalogue{Datasets: []Dataset{
		{ID: DatasetMargins, Name: "Day-ahead system margin forecast", Source: SourceMargins, Resolution: "1d"},
		{ID: DatasetDemand, Name: "Day-ahead demand forecast", Source: SourceDemand, Resolution: "30min"},
		{ID: DatasetBalancingReserve, Name: "Balancing Reserve auction results", Source: SourceBalancingReserve, Resolution: "30min"},
		{ID: DatasetFrequencyResponse, Name: "EAC frequency response auction results", Source: SourceFrequencyResponse, Resolution: "4h"},
	}}
}

// Find returns the dataset with the given id.
func (c Catalogue) Find(id string) (Dataset, bool) {
	for _, d := range c.Datasets {
		if d.ID == id {
			return d, true
		}
	}
	return Dataset{}, false
}

func LoadCatalogue(path string) (*Catalogue, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalogue: %w", err)
	}
	var c Catalogue
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalogue: %w", err)
	}
	return &c, nil
}

func SaveCatalogue(c *Catalogue, path string) error {
	return writeJSON(path, c)
}

// SaveRecordsJSON writes records in the datastore_search_sql response shape,
// so LoadRecordsJSON and FileQuerier can read them back.
func SaveRecordsJSON(path string, records []model.Record) error {
	var body searchResponse
	body.Success = true
	body.Result.Records = records
	if body.Result.Records == nil {
		body.Result.Records = []model.Record{}
	}
	return writeJSON(path, body)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// SnapshotQueries maps each dataset id to the query that covers building
// features over r. Frequency response history reaches lookbackDays further
// back for lags and training targets.
func SnapshotQueries(r efa.DateRange, lookbackDays int) map[string]string {
	return map[string]string{
		DatasetMargins:           MarginsSQL(r),
		DatasetDemand:            DemandSQL(r),
		DatasetBalancingReserve:  AuctionSQL(DatasetBalancingReserve, "Balancing Reserve", r),
		DatasetFrequencyResponse: AuctionSQL(DatasetFrequencyResponse, "Response", r.Extend(lookbackDays, 1)),
	}
}

// Snapshot runs every snapshot query against q and saves the responses to dir
// as <dataset-id>.json, with a catalogue manifest. A failed dataset stops the
// snapshot; files already written are kept.
func Snapshot(ctx context.Context, q Querier, dir string, r efa.DateRange, lookbackDays int, now time.Time, log *logrus.Logger) (*Catalogue, error) {
	entry := logger.Component(log, "snapshot")
	queries := SnapshotQueries(r, lookbackDays)
	cat := DefaultCatalogue()

	ids := make([]string, 0, len(queries))
	for id := range queries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		records, err := q.Query(ctx, queries[id])
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", id, err)
		}
		if err := SaveRecordsJSON(filepath.Join(dir, id+".json"), records); err != nil {
			return nil, err
		}
		from, to := efa.QueryWindow(r)
		if id == DatasetFrequencyResponse {
			from, to = efa.QueryWindow(r.Extend(lookbackDays, 1))
		}
		for i := range cat.Datasets {
			if cat.Datasets[i].ID == id {
				cat.Datasets[i].From, cat.Datasets[i].To, cat.Datasets[i].Records = from, to, len(records)
			}
		}
		entry.WithFields(logrus.Fields{"dataset": id, "records": len(records)}).Info("dataset saved")
	}

	cat.UpdatedAt = now.UTC().Format(time.RFC3339)
	if err := SaveCatalogue(&cat, filepath.Join(dir, CatalogueFile)); err != nil {
		return nil, err
	}
	return &cat, nil
}
