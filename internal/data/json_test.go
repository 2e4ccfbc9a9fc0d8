package data

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dcl-forecast/internal/efa"
)

func TestFileQuerier(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DatasetMargins+".json"), []byte(okBody), 0o644))
	q := FileQuerier{Dir: dir}
	r, err := efa.ParseDateRange("2025-06-12", "2025-06-12")
	require.NoError(t, err)

	records, err := q.Query(context.Background(), MarginsSQL(r))
	require.NoError(t, err)
	assert.Len(t, records, 1)

	records, err = q.Query(context.Background(), DemandSQL(r))
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = q.Query(context.Background(), "SELECT 1")
	assert.Error(t, err)
}

func TestLoadRecordsJSON_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err := LoadRecordsJSON(path)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}
