package export

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"dcl-forecast/internal/efa"
	"dcl-forecast/internal/model"
	"dcl-forecast/internal/pipeline"
)

// WriteCSVFile writes ds to path in wide format.
func WriteCSVFile(path string, ds *pipeline.Dataset, clock *efa.Clock) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := WriteCSV(f, ds, clock); err != nil {
		return err
	}
	return f.Close()
}

// WriteCSV writes one row per EFA block: the civil and UTC opening times, the
// trading date and block number, every feature column, then the target if any.
// Missing values are written as empty cells.
func WriteCSV(out io.Writer, ds *pipeline.Dataset, clock *efa.Clock) error {
	w := csv.NewWriter(out)

	columns := ds.Features.Columns()
	header := []string{
		"efa_start_local",
		"efa_start_utc",
		"trading_date",
		"efa_block",
	}
	header = append(header, columns...)
	if ds.HasTarget() {
		header = append(header, ds.TargetName)
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for i, t := range ds.Index() {
		date, block := efa.BlockOf(t)
		row := []string{
			t.Format("2006-01-02T15:04:05"),
			fmtTime(clock.ToInstant(t)),
			date.Format(efa.DateLayout),
			strconv.Itoa(block),
		}
		for _, c := range columns {
			row = append(row, fmtFloat(ds.Features.Value(c, i)))
		}
		if ds.HasTarget() {
			row = append(row, fmtFloat(ds.Target[i]))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func fmtFloat(x float64) string {
	if model.IsMissing(x) {
		return ""
	}
	return strconv.FormatFloat(x, 'f', 6, 64)
}
