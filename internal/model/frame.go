package model

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var (
	// ErrColumnExists is returned when adding a column whose name is taken.
	ErrColumnExists = errors.New("column already exists")
	// ErrLengthMismatch is returned when a column does not match the index length.
	ErrLengthMismatch = errors.New("column length does not match index")
)

// Missing is the explicit missing-value marker stored in frames.
func Missing() float64 { return math.NaN() }

// IsMissing reports whether v is the missing-value marker.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Frame is a column-oriented table over an ascending civil-time index.
//
// A zero-row frame still carries its column names, so "no data" travels through
// every stage with a known schema. Frames are treated as immutable by the feature
// functions: they build new frames instead of editing their inputs.
type Frame struct {
	index   []time.Time
	columns []string
	data    map[string][]float64
	pos     map[int64]int
}

// NewFrame returns a frame over index with the given columns, all missing.
// The index must be ascending and free of duplicates.
func NewFrame(index []time.Time, columns ...string) *Frame {
	f := &Frame{
		index: append([]time.Time(nil), index...),
		data:  make(map[string][]float64, len(columns)),
	}
	f.reindexPositions()
	for _, c := range columns {
		if _, ok := f.data[c]; ok {
			continue
		}
		col := make([]float64, len(index))
		for i := range col {
			col[i] = math.NaN()
		}
		f.columns = append(f.columns, c)
		f.data[c] = col
	}
	return f
}

// Empty returns a zero-row frame with the given columns.
func Empty(columns ...string) *Frame {
	return NewFrame(nil, columns...)
}

func (f *Frame) reindexPositions() {
	f.pos = make(map[int64]int, len(f.index))
	for i, t := range f.index {
		f.pos[t.UnixNano()] = i
	}
}

// Len is the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.index)
}

// IsEmpty reports whether the frame has no rows.
func (f *Frame) IsEmpty() bool { return f.Len() == 0 }

// Index returns a copy of the row timestamps.
func (f *Frame) Index() []time.Time {
	if f == nil {
		return nil
	}
	return append([]time.Time(nil), f.index...)
}

// Columns returns a copy of the column names in order.
func (f *Frame) Columns() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.columns...)
}

// HasColumn reports whether name is a column.
func (f *Frame) HasColumn(name string) bool {
	if f == nil {
		return false
	}
	_, ok := f.data[name]
	return ok
}

// Column returns a copy of the named column.
func (f *Frame) Column(name string) ([]float64, bool) {
	if f == nil {
		return nil, false
	}
	col, ok := f.data[name]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), col...), true
}

// Row returns the position of t in the index.
func (f *Frame) Row(t time.Time) (int, bool) {
	if f == nil {
		return 0, false
	}
	i, ok := f.pos[t.UnixNano()]
	return i, ok
}

// At returns the value of column name at timestamp t. Absent rows, absent
// columns and missing cells all report false.
func (f *Frame) At(name string, t time.Time) (float64, bool) {
	i, ok := f.Row(t)
	if !ok {
		return math.NaN(), false
	}
	col, ok := f.data[name]
	if !ok || math.IsNaN(col[i]) {
		return math.NaN(), false
	}
	return col[i], true
}

// Value returns the cell at row i of column name, NaN when absent.
func (f *Frame) Value(name string, i int) float64 {
	col, ok := f.data[name]
	if !ok || i < 0 || i >= len(col) {
		return math.NaN()
	}
	return col[i]
}

// Set writes one cell. It panics on an unknown column or row, like a slice index.
func (f *Frame) Set(name string, i int, v float64) {
	col, ok := f.data[name]
	if !ok {
		panic(fmt.Sprintf("frame: unknown column %q", name))
	}
	col[i] = v
}

// AddColumn appends a column. values is copied.
func (f *Frame) AddColumn(name string, values []float64) error {
	if _, ok := f.data[name]; ok {
		return fmt.Errorf("%w: %q", ErrColumnExists, name)
	}
	if len(values) != len(f.index) {
		return fmt.Errorf("%w: %q has %d values, index has %d", ErrLengthMismatch, name, len(values), len(f.index))
	}
	f.columns = append(f.columns, name)
	f.data[name] = append([]float64(nil), values...)
	return nil
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	out := NewFrame(f.index)
	for _, c := range f.columns {
		out.columns = append(out.columns, c)
		out.data[c] = append([]float64(nil), f.data[c]...)
	}
	return out
}

// Between returns the rows with start <= t <= end.
func (f *Frame) Between(start, end time.Time) *Frame {
	lo := sort.Search(len(f.index), func(i int) bool { return !f.index[i].Before(start) })
	hi := sort.Search(len(f.index), func(i int) bool { return f.index[i].After(end) })
	if hi < lo {
		hi = lo
	}
	out := NewFrame(f.index[lo:hi])
	for _, c := range f.columns {
		out.columns = append(out.columns, c)
		out.data[c] = append([]float64(nil), f.data[c][lo:hi]...)
	}
	return out
}

// Reindex returns a frame over index; rows not present in f are missing.
func (f *Frame) Reindex(index []time.Time) *Frame {
	out := NewFrame(index, f.columns...)
	for i, t := range index {
		j, ok := f.pos[t.UnixNano()]
		if !ok {
			continue
		}
		for _, c := range f.columns {
			out.data[c][i] = f.data[c][j]
		}
	}
	return out
}

// Select returns the named columns in the given order. Columns the frame does
// not have are returned all-missing rather than dropped, so the schema is fixed
// by the caller.
func (f *Frame) Select(columns ...string) *Frame {
	out := NewFrame(f.index, columns...)
	for _, c := range columns {
		if src, ok := f.data[c]; ok {
			copy(out.data[c], src)
		}
	}
	return out
}

// MissingColumns lists the requested columns absent from f.
func (f *Frame) MissingColumns(columns ...string) []string {
	var out []string
	for _, c := range columns {
		if !f.HasColumn(c) {
			out = append(out, c)
		}
	}
	return out
}

// Rename returns a copy with columns renamed through fn.
func (f *Frame) Rename(fn func(string) string) (*Frame, error) {
	out := NewFrame(f.index)
	for _, c := range f.columns {
		if err := out.AddColumn(fn(c), f.data[c]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CountMissing returns the number of missing cells in column name.
func (f *Frame) CountMissing(name string) int {
	n := 0
	for _, v := range f.data[name] {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Equal reports whether two frames have the same index, columns and values,
// treating missing cells as equal to each other.
func (f *Frame) Equal(o *Frame) bool {
	if f.Len() != o.Len() || len(f.columns) != len(o.columns) {
		return false
	}
	for i := range f.index {
		if !f.index[i].Equal(o.index[i]) {
			return false
		}
	}
	for i, c := range f.columns {
		if o.columns[i] != c {
			return false
		}
		a, b := f.data[c], o.data[c]
		for j := range a {
			if math.IsNaN(a[j]) != math.IsNaN(b[j]) || (!math.IsNaN(a[j]) && a[j] != b[j]) {
				return false
			}
		}
	}
	return true
}

// Series is one observation stream, the input shape for building frames from
// parsed records.
type Series struct {
	Name   string
	Points []Point
}

// Point is one timestamped observation.
type Point struct {
	Time  time.Time
	Value float64
}

// FromSeries builds a frame over the sorted union of all series timestamps.
// When a series repeats a timestamp, keepLast decides which observation wins.
func FromSeries(keepLast bool, series ...Series) *Frame {
	seen := map[int64]time.Time{}
	for _, s := range series {
		for _, p := range s.Points {
			seen[p.Time.UnixNano()] = p.Time
		}
	}
	index := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		index = append(index, t)
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Before(index[j]) })

	names := make([]string, 0, len(series))
	for _, s := range series {
		names = append(names, s.Name)
	}
	f := NewFrame(index, names...)
	for _, s := range series {
		col := f.data[s.Name]
		written := map[int]bool{}
		for _, p := range s.Points {
			i := f.pos[p.Time.UnixNano()]
			if written[i] && !keepLast {
				continue
			}
			col[i] = p.Value
			written[i] = true
		}
	}
	return f
}
