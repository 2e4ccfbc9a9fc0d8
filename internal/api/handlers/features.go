package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dcl-forecast/internal/api/models"
	"dcl-forecast/internal/config"
	"dcl-forecast/internal/efa"
	"dcl-forecast/internal/export"
	"dcl-forecast/internal/logger"
	"dcl-forecast/internal/model"
	"dcl-forecast/internal/pipeline"
	"dcl-forecast/internal/storage"
)

// FeaturesHandler builds and stores feature matrices
type FeaturesHandler struct {
	cfg     *config.Config
	sources pipeline.Fetcher
	clock   *efa.Clock
	store   storage.Store
	log     *logrus.Logger
	now     func() time.Time
}

// NewFeaturesHandler creates a handler drawing on sources with the feature
// settings in cfg.
func NewFeaturesHandler(cfg *config.Config, sources pipeline.Fetcher, clock *efa.Clock, store storage.Store, log *logrus.Logger) *FeaturesHandler {
	return &FeaturesHandler{cfg: cfg, sources: sources, clock: clock, store: store, log: log, now: time.Now}
}

// WithNow replaces the wall clock used for default dates.
func (h *FeaturesHandler) WithNow(now func() time.Time) *FeaturesHandler {
	h.now = now
	return h
}

func (h *FeaturesHandler) builder(override config.FeaturesConfig) (*pipeline.Builder, error) {
	cfg := *h.cfg
	cfg.Features = config.MergeFeatures(h.cfg.Features, override)
	opts, err := cfg.PipelineOptions()
	if err != nil {
		return nil, err
	}
	b, err := pipeline.NewBuilder(h.sources, h.clock, opts, h.log)
	if err != nil {
		return nil, err
	}
	return b.WithNow(h.now), nil
}

// CreateRun handles POST /api/v1/features
func (h *FeaturesHandler) CreateRun(c *gin.Context) {
	var req models.FeaturesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	kind := req.Kind
	if kind == "" {
		kind = storage.KindFeatures
	}
	if kind != storage.KindFeatures && kind != storage.KindTraining {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("kind %q must be features or training", kind), nil)
		return
	}
	r, ok := parseRange(c, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	b, err := h.builder(config.FeaturesConfig{
		Lags:         req.Features.Lags,
		Temporal:     req.Features.Temporal,
		AllowMissing: req.Features.AllowMissing,
	})
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_FEATURES", err.Error(), nil)
		return
	}

	var ds *pipeline.Dataset
	if kind == storage.KindTraining {
		ds, err = b.TrainingSetFor(c.Request.Context(), r)
	} else {
		var matrix *model.Frame
		matrix, err = b.BuildFeatures(c.Request.Context(), r)
		if err == nil {
			ds = &pipeline.Dataset{Range: r, Features: matrix}
		}
	}
	if err != nil {
		writeBuildError(c, err)
		return
	}

	resp := h.datasetResponse(kind, ds)
	if req.Save {
		run := storage.NewRun(kind, ds, h.clock, h.now())
		if err := h.store.SaveRun(c.Request.Context(), run); err != nil {
			writeError(c, http.StatusInternalServerError, "STORAGE_ERROR", err.Error(), nil)
			return
		}
		resp.ID = run.ID.String()
		c.JSON(http.StatusCreated, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetRun handles GET /api/v1/features/:id
func (h *FeaturesHandler) GetRun(c *gin.Context) {
	id, ok := runID(c)
	if !ok {
		return
	}
	run, err := h.store.GetRun(c.Request.Context(), id)
	if err != nil {
		writeBuildError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListRuns handles GET /api/v1/features
func (h *FeaturesHandler) ListRuns(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a non-negative integer", nil)
			return
		}
		limit = n
	}
	runs, err := h.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "STORAGE_ERROR", err.Error(), nil)
		return
	}
	if runs == nil {
		runs = []storage.RunInfo{}
	}
	c.JSON(http.StatusOK, models.RunListResponse{Runs: runs, Count: len(runs)})
}

// DeleteRun handles DELETE /api/v1/features/:id
func (h *FeaturesHandler) DeleteRun(c *gin.Context) {
	id, ok := runID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteRun(c.Request.Context(), id); err != nil {
		writeBuildError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Prediction handles GET /api/v1/prediction
func (h *FeaturesHandler) Prediction(c *gin.Context) {
	var q models.PredictionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	date, ok := optionalDate(c, q.Date)
	if !ok {
		return
	}
	b, err := h.builder(config.FeaturesConfig{})
	if err != nil {
		writeBuildError(c, err)
		return
	}
	ds, err := b.PredictionSet(c.Request.Context(), date)
	if err != nil {
		writeBuildError(c, err)
		return
	}
	h.writeDataset(c, storage.KindPrediction, ds, q.Format)
}

// Training handles GET /api/v1/training
func (h *FeaturesHandler) Training(c *gin.Context) {
	var q models.TrainingQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	end, ok := optionalDate(c, q.End)
	if !ok {
		return
	}
	b, err := h.builder(config.FeaturesConfig{})
	if err != nil {
		writeBuildError(c, err)
		return
	}
	ds, err := b.TrainingSet(c.Request.Context(), end)
	if err != nil {
		writeBuildError(c, err)
		return
	}
	h.writeDataset(c, storage.KindTraining, ds, q.Format)
}

func (h *FeaturesHandler) writeDataset(c *gin.Context, kind string, ds *pipeline.Dataset, format string) {
	name := fmt.Sprintf("%s_%s_%s", kind, ds.Range.Start.Format(efa.DateLayout), ds.Range.End.Format(efa.DateLayout))
	switch format {
	case "", "json":
		c.JSON(http.StatusOK, h.datasetResponse(kind, ds))
	case "csv":
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, name))
		c.Header("Content-Type", "text/csv")
		c.Status(http.StatusOK)
		if err := export.WriteCSV(c.Writer, ds, h.clock); err != nil {
			logger.Component(h.log, "api").WithError(err).Error("csv export failed")
		}
	case "parquet":
		raw, err := export.EncodeParquet(ds, h.clock, "snappy")
		if err != nil {
			writeError(c, http.StatusInternalServerError, "EXPORT_ERROR", err.Error(), nil)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.parquet"`, name))
		c.Data(http.StatusOK, "application/vnd.apache.parquet", raw)
	default:
		writeError(c, http.StatusBadRequest, "INVALID_FORMAT", fmt.Sprintf("format %q must be json, csv or parquet", format), nil)
	}
}

func (h *FeaturesHandler) datasetResponse(kind string, ds *pipeline.Dataset) models.DatasetResponse {
	columns := ds.Features.Columns()
	rows := make([]models.DatasetRow, ds.Len())
	for i, t := range ds.Index() {
		date, block := efa.BlockOf(t)
		values := make(map[string]*float64, len(columns))
		for _, col := range columns {
			values[col] = optional(ds.Features.Value(col, i))
		}
		rows[i] = models.DatasetRow{
			EFAStartLocal: t.Format("2006-01-02T15:04:05"),
			EFAStartUTC:   h.clock.ToInstant(t),
			TradingDate:   date.Format(efa.DateLayout),
			Block:         block,
			Features:      values,
		}
		if ds.HasTarget() {
			rows[i].Target = optional(ds.Target[i])
		}
	}
	resp := models.DatasetResponse{
		Kind:      kind,
		StartDate: ds.Range.Start.Format(efa.DateLayout),
		EndDate:   ds.Range.End.Format(efa.DateLayout),
		Columns:   columns,
		Rows:      rows,
	}
	if ds.HasTarget() {
		resp.Target = ds.TargetName
	}
	return resp
}

func optional(v float64) *float64 {
	if model.IsMissing(v) {
		return nil
	}
	return &v
}

func optionalDate(c *gin.Context, s string) (*time.Time, bool) {
	if s == "" {
		return nil, true
	}
	d, err := efa.ParseDate(s)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_DATE", err.Error(), nil)
		return nil, false
	}
	return &d, true
}

func runID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_ID", fmt.Sprintf("run id must be a UUID: %v", err), nil)
		return uuid.Nil, false
	}
	return id, true
}
