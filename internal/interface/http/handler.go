package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phenosat/sitefinder/internal/domain/evaluation"
	"github.com/phenosat/sitefinder/internal/infra/export"
	"github.com/phenosat/sitefinder/internal/infra/querycache"
	apperrors "github.com/phenosat/sitefinder/pkg/errors"
)

// Handler wires the HTTP transport to the evaluation domain.
type Handler struct {
	evalSvc *evaluation.Service
	runner  *evaluation.Runner
	cache   *querycache.Cache
	logger  *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(evalSvc *evaluation.Service, runner *evaluation.Runner, cache *querycache.Cache, logger *slog.Logger) *Handler {
	return &Handler{
		evalSvc: evalSvc,
		runner:  runner,
		cache:   cache,
		logger:  logger.With("component", "http.handler"),
	}
}

// ListSites returns the candidate sites from the camera directory.
func (h *Handler) ListSites(c *gin.Context) {
	sites, err := h.evalSvc.Sites(c.Request.Context())
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadGateway, "site_source_error", errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sites": sites, "count": len(sites)})
}

type startRunRequest struct {
	MaxSites int `json:"maxSites"`
}

// StartEvaluation launches a background evaluation run.
func (h *Handler) StartEvaluation(c *gin.Context) {
	var req startRunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
			return
		}
	}
	if req.MaxSites < 0 {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "maxSites must not be negative", nil))
		return
	}

	snapshot := h.runner.Start(req.MaxSites)
	c.JSON(http.StatusAccepted, snapshot)
}

// ListEvaluations lists known runs, newest first.
func (h *Handler) ListEvaluations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": h.runner.List()})
}

// GetEvaluation reports the status of one run.
func (h *Handler) GetEvaluation(c *gin.Context) {
	snapshot, err := h.runner.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusNotFound, "run_not_found", errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// GetEvaluationResults returns the season results of a completed run.
func (h *Handler) GetEvaluationResults(c *gin.Context) {
	results, err := h.runner.Results(c.Param("id"))
	if err != nil {
		status := http.StatusConflict
		code := "run_not_completed"
		if apperrors.IsCode(err, "run_not_found") {
			status = http.StatusNotFound
			code = "run_not_found"
		}
		abortWithError(c, NewHTTPError(status, code, errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

// ListResults returns the persisted result set of the latest run.
func (h *Handler) ListResults(c *gin.Context) {
	results, err := h.evalSvc.Results(c.Request.Context())
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "repo_error", errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

// ResultsGeoJSON renders the persisted results as a GeoJSON feature collection.
func (h *Handler) ResultsGeoJSON(c *gin.Context) {
	results, err := h.evalSvc.Results(c.Request.Context())
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "repo_error", errMessage(err), err))
		return
	}
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, export.Build(results))
}

// CacheStats reports query cache hit and miss counters.
func (h *Handler) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.Stats())
}

// ClearCache drops every cached query response.
func (h *Handler) ClearCache(c *gin.Context) {
	removed, err := h.cache.Clear(c.Request.Context())
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "cache_error", errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
