package data

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"dcl-forecast/internal/model"
)

// LoadRecordsJSON reads a saved datastore_search_sql response.
func LoadRecordsJSON(path string) ([]model.Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeRecords(raw)
}

var datasetPattern = regexp.MustCompile(`FROM\s+"([0-9a-f-]+)"`)

// FileQuerier answers queries from saved responses named <dataset-id>.json in
// Dir. The WHERE clause is ignored; the source pipelines trim to their window.
type FileQuerier struct {
	Dir string
}

func (f FileQuerier) Query(ctx context.Context, sql string) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := datasetPattern.FindStringSubmatch(sql)
	if m == nil {
		return nil, fmt.Errorf("no dataset id in query %q", sql)
	}
	path := filepath.Join(f.Dir, m[1]+".json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return LoadRecordsJSON(path)
}
