package model

// Status classifies the outcome of fetching and transforming one data source.
type Status string

const (
	StatusOK               Status = "ok"
	StatusNoData           Status = "no_data"
	StatusMalformed        Status = "malformed"
	StatusTransportFailure Status = "transport_failure"
)

// SourceResult is what a source pipeline hands to the assembler. Frame is never
// nil: failed sources carry a zero-row frame with their expected columns.
type SourceResult struct {
	Source string
	Frame  *Frame
	Status Status
	Err    error
}

// OK reports whether the source produced usable rows.
func (r SourceResult) OK() bool {
	return r.Status == StatusOK && !r.Frame.IsEmpty()
}

// Failed builds a result for a source that produced nothing usable.
func Failed(source string, status Status, err error, columns ...string) SourceResult {
	return SourceResult{Source: source, Frame: Empty(columns...), Status: status, Err: err}
}

// Succeeded wraps a transformed frame. An empty frame is reported as no data.
func Succeeded(source string, f *Frame) SourceResult {
	if f.IsEmpty() {
		return SourceResult{Source: source, Frame: f, Status: StatusNoData}
	}
	return SourceResult{Source: source, Frame: f, Status: StatusOK}
}
