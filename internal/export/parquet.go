package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"dcl-forecast/internal/efa"
	"dcl-forecast/internal/model"
	"dcl-forecast/internal/pipeline"
)

// FeatureRecord is one cell of a dataset in long format. Missing cells are not
// written.
type FeatureRecord struct {
	EFAStartUTC   int64   `parquet:"name=efa_start_utc, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	EFAStartLocal string  `parquet:"name=efa_start_local, type=BYTE_ARRAY, convertedtype=UTF8"`
	TradingDate   string  `parquet:"name=trading_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	EFABlock      int32   `parquet:"name=efa_block, type=INT32"`
	Feature       string  `parquet:"name=feature, type=BYTE_ARRAY, convertedtype=UTF8"`
	Value         float64 `parquet:"name=value, type=DOUBLE"`
	IsTarget      bool    `parquet:"name=is_target, type=BOOLEAN"`
}

// LongRecords flattens ds into one record per present cell, row by row.
func LongRecords(ds *pipeline.Dataset, clock *efa.Clock) []FeatureRecord {
	columns := ds.Features.Columns()
	out := make([]FeatureRecord, 0, ds.Len()*(len(columns)+1))
	for i, t := range ds.Index() {
		date, block := efa.BlockOf(t)
		base := FeatureRecord{
			EFAStartUTC:   clock.ToInstant(t).UnixMilli(),
			EFAStartLocal: t.Format("2006-01-02T15:04:05"),
			TradingDate:   date.Format(efa.DateLayout),
			EFABlock:      int32(block),
		}
		for _, c := range columns {
			v := ds.Features.Value(c, i)
			if model.IsMissing(v) {
				continue
			}
			rec := base
			rec.Feature, rec.Value = c, v
			out = append(out, rec)
		}
		if ds.HasTarget() && !model.IsMissing(ds.Target[i]) {
			rec := base
			rec.Feature, rec.Value, rec.IsTarget = ds.TargetName, ds.Target[i], true
			out = append(out, rec)
		}
	}
	return out
}

// WriteParquetFile writes ds in long format to a local file.
func WriteParquetFile(path string, ds *pipeline.Dataset, clock *efa.Clock, compression string) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}
	if err := writeParquet(fw, LongRecords(ds, clock), compression); err != nil {
		fw.Close()
		return err
	}
	return fw.Close()
}

// EncodeParquet returns ds in long format as parquet bytes.
func EncodeParquet(ds *pipeline.Dataset, clock *efa.Clock, compression string) ([]byte, error) {
	mem := &memFile{buffer: &bytes.Buffer{}}
	if err := writeParquet(mem, LongRecords(ds, clock), compression); err != nil {
		return nil, err
	}
	return mem.buffer.Bytes(), nil
}

func writeParquet(fw source.ParquetFile, records []FeatureRecord, compression string) error {
	codec, err := compressionCodec(compression)
	if err != nil {
		return err
	}
	pw, err := writer.NewParquetWriter(fw, new(FeatureRecord), 1)
	if err != nil {
		return fmt.Errorf("new parquet writer: %w", err)
	}
	pw.CompressionType = codec

	for _, rec := range records {
		if err := pw.Write(rec); err != nil {
			pw.WriteStop()
			return fmt.Errorf("write feature record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finalize parquet: %w", err)
	}
	return nil
}

func compressionCodec(name string) (parquet.CompressionCodec, error) {
	switch strings.ToLower(name) {
	case "snappy", "":
		return parquet.CompressionCodec_SNAPPY, nil
	case "gzip":
		return parquet.CompressionCodec_GZIP, nil
	case "none", "uncompressed":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	}
	return 0, fmt.Errorf("unsupported parquet compression %q", name)
}

// memFile is a write-only in-memory parquet sink.
type memFile struct {
	buffer *bytes.Buffer
}

func (m *memFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFile) Read([]byte) (int, error)                  { return 0, fmt.Errorf("read not supported") }
func (m *memFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFile) Close() error                              { return nil }
