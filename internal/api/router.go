package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"dcl-forecast/internal/api/handlers"
	"dcl-forecast/internal/api/middleware"
	"dcl-forecast/internal/config"
	"dcl-forecast/internal/efa"
	"dcl-forecast/internal/pipeline"
	"dcl-forecast/internal/storage"
)

// Deps are the services the HTTP API is built on.
type Deps struct {
	Config  *config.Config
	Sources pipeline.Fetcher
	Clock   *efa.Clock
	Store   storage.Store
	Log     *logrus.Logger
}

// NewRouter wires middleware and routes. The returned handlers are exposed so
// callers can adjust them (tests pin the clock).
func NewRouter(d Deps) (*gin.Engine, *handlers.FeaturesHandler) {
	router := gin.New()
	router.Use(middleware.CORS(d.Config.API.AllowedOrigins))
	router.Use(middleware.Logger(d.Log))
	router.Use(middleware.ErrorHandler(d.Log))

	efaHandler := handlers.NewEFAHandler(d.Clock)
	featuresHandler := handlers.NewFeaturesHandler(d.Config, d.Sources, d.Clock, d.Store, d.Log)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	{
		api.GET("/efa/index", efaHandler.Index)
		api.GET("/efa/windows", efaHandler.Windows)

		api.GET("/datasets", handlers.ListDatasets)

		api.POST("/features", featuresHandler.CreateRun)
		api.GET("/features", featuresHandler.ListRuns)
		api.GET("/features/:id", featuresHandler.GetRun)
		api.DELETE("/features/:id", featuresHandler.DeleteRun)

		api.GET("/prediction", featuresHandler.Prediction)
		api.GET("/training", featuresHandler.Training)
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "Not found"}})
			return
		}
		c.Status(http.StatusNotFound)
	})

	return router, featuresHandler
}
