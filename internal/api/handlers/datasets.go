package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dcl-forecast/internal/data"
)

// ListDatasets handles GET /api/v1/datasets
func ListDatasets(c *gin.Context) {
	cat := data.DefaultCatalogue()
	c.JSON(http.StatusOK, gin.H{
		"datasets": cat.Datasets,
		"count":    len(cat.Datasets),
	})
}
