package models

import (
	"time"

	"dcl-forecast/internal/storage"
)

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// EFABlockInfo describes one EFA block
type EFABlockInfo struct {
	TradingDate string    `json:"trading_date"`
	Block       int       `json:"block"`
	StartLocal  string    `json:"start_local"`
	StartUTC    time.Time `json:"start_utc"`
	EndUTC      time.Time `json:"end_utc"`
}

// EFAIndexResponse lists the blocks of a date range
type EFAIndexResponse struct {
	StartDate string         `json:"start_date"`
	EndDate   string         `json:"end_date"`
	Timezone  string         `json:"timezone"`
	Blocks    []EFABlockInfo `json:"blocks"`
}

// WindowsResponse lists the derived windows of a date range
type WindowsResponse struct {
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	QueryFrom       string `json:"query_from"`
	QueryTo         string `json:"query_to"`
	IndexStart      string `json:"index_start"`
	IndexEnd        string `json:"index_end"`
	SettlementStart string `json:"settlement_start"`
	SettlementEnd   string `json:"settlement_end"`
	Blocks          int    `json:"blocks"`
	Settlements     int    `json:"settlement_periods"`
}

// DatasetRow is one EFA block of a dataset. Missing values are null.
type DatasetRow struct {
	EFAStartLocal string              `json:"efa_start_local"`
	EFAStartUTC   time.Time           `json:"efa_start_utc"`
	TradingDate   string              `json:"trading_date"`
	Block         int                 `json:"efa_block"`
	Features      map[string]*float64 `json:"features"`
	Target        *float64            `json:"target,omitempty"`
}

// DatasetResponse represents a feature matrix, with its target for training sets
type DatasetResponse struct {
	ID        string       `json:"id,omitempty"`
	Kind      string       `json:"kind"`
	StartDate string       `json:"start_date"`
	EndDate   string       `json:"end_date"`
	Target    string       `json:"target,omitempty"`
	Columns   []string     `json:"columns"`
	Rows      []DatasetRow `json:"rows"`
}

// RunListResponse lists stored feature runs
type RunListResponse struct {
	Runs  []storage.RunInfo `json:"runs"`
	Count int               `json:"count"`
}
