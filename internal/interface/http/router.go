package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phenosat/sitefinder/internal/infra/config"
)

// NewRouter wires up the HTTP handlers and returns a configured server.
func NewRouter(cfg *config.Config, handler *Handler, logger *slog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestLogger(logger),
		errorHandlingMiddleware(logger),
		corsMiddleware(cfg.HTTP.AllowedOrigins),
	)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	{
		api.GET("/sites", handler.ListSites)
		api.POST("/evaluations", handler.StartEvaluation)
		api.GET("/evaluations", handler.ListEvaluations)
		api.GET("/evaluations/:id", handler.GetEvaluation)
		api.GET("/evaluations/:id/results", handler.GetEvaluationResults)
		api.GET("/results", handler.ListResults)
		api.GET("/results/geojson", handler.ResultsGeoJSON)
		api.GET("/cache/stats", handler.CacheStats)
		api.DELETE("/cache", handler.ClearCache)
	}

	return &http.Server{
		Addr:           cfg.HTTP.Address,
		Handler:        router,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}
