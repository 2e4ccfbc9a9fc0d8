package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dcl-forecast/internal/api/models"
	"dcl-forecast/internal/efa"
)

// maxRangeDays bounds the ranges the API will expand or build.
const maxRangeDays = 731

// EFAHandler serves the EFA calendar
type EFAHandler struct {
	clock *efa.Clock
}

func NewEFAHandler(clock *efa.Clock) *EFAHandler {
	return &EFAHandler{clock: clock}
}

// Index handles GET /api/v1/efa/index
func (h *EFAHandler) Index(c *gin.Context) {
	r, ok := bindRange(c)
	if !ok {
		return
	}

	index := efa.Index(r)
	blocks := make([]models.EFABlockInfo, len(index))
	for i, t := range index {
		date, block := efa.BlockOf(t)
		blocks[i] = models.EFABlockInfo{
			TradingDate: date.Format(efa.DateLayout),
			Block:       block,
			StartLocal:  t.Format("2006-01-02T15:04:05"),
			StartUTC:    h.clock.ToInstant(t),
			EndUTC:      h.clock.ToInstant(t.Add(efa.BlockDuration)),
		}
	}

	c.JSON(http.StatusOK, models.EFAIndexResponse{
		StartDate: r.Start.Format(efa.DateLayout),
		EndDate:   r.End.Format(efa.DateLayout),
		Timezone:  h.clock.Location().String(),
		Blocks:    blocks,
	})
}

// Windows handles GET /api/v1/efa/windows
func (h *EFAHandler) Windows(c *gin.Context) {
	r, ok := bindRange(c)
	if !ok {
		return
	}

	const layout = "2006-01-02T15:04:05"
	from, to := efa.QueryWindow(r)
	indexStart, indexEnd := efa.IndexBounds(r)
	spStart, spEnd := efa.SettlementBounds(r)
	c.JSON(http.StatusOK, models.WindowsResponse{
		StartDate:       r.Start.Format(efa.DateLayout),
		EndDate:         r.End.Format(efa.DateLayout),
		QueryFrom:       from,
		QueryTo:         to,
		IndexStart:      indexStart.Format(layout),
		IndexEnd:        indexEnd.Format(layout),
		SettlementStart: spStart.Format(layout),
		SettlementEnd:   spEnd.Format(layout),
		Blocks:          len(efa.Index(r)),
		Settlements:     len(efa.SettlementPeriods(r)),
	})
}

// bindRange reads start_date and end_date query parameters. It writes the
// error response itself when ok is false.
func bindRange(c *gin.Context) (efa.DateRange, bool) {
	var q models.RangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return efa.DateRange{}, false
	}
	if q.EndDate == "" {
		q.EndDate = q.StartDate
	}
	return parseRange(c, q.StartDate, q.EndDate)
}

func parseRange(c *gin.Context, start, end string) (efa.DateRange, bool) {
	r, err := efa.ParseDateRange(start, end)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_RANGE", err.Error(), nil)
		return efa.DateRange{}, false
	}
	if r.Days() > maxRangeDays {
		writeError(c, http.StatusBadRequest, "RANGE_TOO_LARGE", "date range exceeds the maximum length",
			map[string]interface{}{"days": r.Days(), "max_days": maxRangeDays})
		return efa.DateRange{}, false
	}
	return r, true
}
