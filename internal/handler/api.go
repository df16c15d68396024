package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/karlnotmarx/synthec/internal/dataset"
	"github.com/karlnotmarx/synthec/internal/generator"
	"github.com/karlnotmarx/synthec/internal/llmjson"
	"github.com/karlnotmarx/synthec/internal/repository"
	"github.com/karlnotmarx/synthec/internal/service"
)

// ProviderInfo describes the LLM provider chain behind the generator.
type ProviderInfo interface {
	GetModelInfo() map[string]interface{}
	GetProvidersInfo() []map[string]interface{}
}

// Handler handles HTTP requests
type Handler struct {
	runs      *service.GenerationService
	providers ProviderInfo
	logger    *zap.Logger
}

// ValidateRequest carries raw model output to check.
type ValidateRequest struct {
	Text string `json:"text"`
}

// NewHandler creates a new API handler
func NewHandler(runs *service.GenerationService, providers ProviderInfo, logger *zap.Logger) *Handler {
	return &Handler{
		runs:      runs,
		providers: providers,
		logger:    logger.Named("handler"),
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		// Generation runs
		api.POST("/generate", h.StartRun)
		api.GET("/runs", h.ListRuns)
		api.GET("/runs/:id", h.GetRun)
		api.GET("/runs/:id/records", h.GetRecords)
		api.GET("/runs/:id/failures", h.GetFailures)

		// Export
		api.GET("/runs/:id/export/jsonl", h.ExportJSONL)
		api.GET("/runs/:id/export/csv", h.ExportCSV)

		api.POST("/validate", h.Validate)
		api.GET("/stats", h.GetStats)
		api.GET("/providers", h.GetProviders)
	}

	r.GET("/health", h.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// StartRun starts an asynchronous generation run
func (h *Handler) StartRun(c *gin.Context) {
	var req service.RunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	run, err := h.runs.Start(c.Request.Context(), req)
	if errors.Is(err, service.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "run_id": h.runs.Active()})
		return
	}
	if err != nil {
		h.logger.Error("Failed to start run", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start run"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run_id":  run.ID,
		"status":  run.Status,
		"message": "Generation started. Check /api/v1/runs/" + run.ID + " for status",
	})
}

// ListRuns returns recent runs
func (h *Handler) ListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	runs, err := h.runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"total": len(runs),
	})
}

// GetRun returns run status
func (h *Handler) GetRun(c *gin.Context) {
	run, err := h.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to get run")
		return
	}
	c.JSON(http.StatusOK, run)
}

// GetRecords returns the accepted records of a run
func (h *Handler) GetRecords(c *gin.Context) {
	records, err := h.runs.Records(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to get records")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"total":   len(records),
	})
}

// GetFailures returns the rejected responses of a run
func (h *Handler) GetFailures(c *gin.Context) {
	failures, err := h.runs.Failures(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to get failures")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"failures": failures,
		"total":    len(failures),
	})
}

// ExportJSONL exports a run's records as JSON lines
func (h *Handler) ExportJSONL(c *gin.Context) {
	id := c.Param("id")
	records, err := h.runs.Records(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "export failed")
		return
	}
	data, err := dataset.EncodeJSONL(records)
	if err != nil {
		h.logger.Error("Failed to export JSONL", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+id+".jsonl")
	c.Data(http.StatusOK, "application/x-ndjson; charset=utf-8", data)
}

// ExportCSV exports a run's records as an annotation-ready CSV
func (h *Handler) ExportCSV(c *gin.Context) {
	id := c.Param("id")
	records, err := h.runs.Records(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "export failed")
		return
	}
	data, err := dataset.EncodeRecordsCSV(records)
	if err != nil {
		h.logger.Error("Failed to export CSV", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+id+".csv")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

// Validate runs raw model output through the decode and schema checks
func (h *Handler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records, err := generator.Parse(req.Text)
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"valid": true, "records": records})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid": false,
		"stage": llmjson.StageOf(err),
		"error": err.Error(),
	})
}

// GetStats returns generation statistics
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.runs.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetProviders lists the provider chain and marks the one requests currently go to.
func (h *Handler) GetProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"current":   h.providers.GetModelInfo(),
		"providers": h.providers.GetProvidersInfo(),
	})
}

// HealthCheck returns service health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"service":    "synthec",
		"active_run": h.runs.Active(),
		"model":      h.providers.GetModelInfo()["model"],
	})
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	if errors.Is(err, repository.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	h.logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
