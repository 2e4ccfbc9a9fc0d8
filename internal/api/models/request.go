package models

// FeaturesRequest represents the request body for building a feature run
type FeaturesRequest struct {
	StartDate string `json:"start_date" binding:"required"` // YYYY-MM-DD
	EndDate   string `json:"end_date" binding:"required"`   // YYYY-MM-DD
	// Kind is "features" (default) or "training". Training runs attach the
	// target and drop rows without one.
	Kind     string           `json:"kind,omitempty"`
	Features FeaturesOverride `json:"features,omitempty"`
	Save     bool             `json:"save,omitempty"` // default: false
}

// FeaturesOverride replaces parts of the server's feature configuration
type FeaturesOverride struct {
	Lags         map[string][]int `json:"lags,omitempty"`
	Temporal     []string         `json:"temporal,omitempty"`
	AllowMissing bool             `json:"allow_missing,omitempty"`
}

// RangeQuery selects an inclusive range of trading dates
type RangeQuery struct {
	StartDate string `form:"start_date" binding:"required"`
	EndDate   string `form:"end_date"` // default: start_date
}

// PredictionQuery selects the trading date to predict
type PredictionQuery struct {
	Date   string `form:"date"`   // default: tomorrow
	Format string `form:"format"` // json (default), csv, parquet
}

// TrainingQuery selects the end of the training window
type TrainingQuery struct {
	End    string `form:"end"`    // default: today
	Format string `form:"format"` // json (default), csv, parquet
}
