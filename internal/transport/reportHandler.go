package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ds124wfegd/linktracker/internal/entity"
	"github.com/ds124wfegd/linktracker/internal/service"
	"github.com/ds124wfegd/linktracker/pkg/queue"
)

const defaultFailedLimit = 50

type ReportHandler struct {
	statsService  service.StatsService
	reportService service.ReportService
	dlq           queue.DLQHandler
	now           func() time.Time
}

// NewReportHandler builds the stats and report endpoints. dlq may be nil,
// the failed report endpoints then answer 404.
func NewReportHandler(statsService service.StatsService, reportService service.ReportService, dlq queue.DLQHandler) *ReportHandler {
	return &ReportHandler{
		statsService:  statsService,
		reportService: reportService,
		dlq:           dlq,
		now:           time.Now,
	}
}

func (h *ReportHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/stats/:kind", h.GetWindowStats)

	reports := router.Group("/reports")
	{
		reports.GET("/failed", h.GetFailedReports)
		reports.GET("/failed/stats", h.GetFailedStats)
		reports.DELETE("/failed", h.PurgeFailedReports)
		reports.DELETE("/failed/:id", h.DeleteFailedReport)
		reports.GET("/:kind/preview", h.PreviewReport)
		reports.POST("/:kind", h.SendReport)
	}
}

func (h *ReportHandler) GetWindowStats(c *gin.Context) {
	kind, err := entity.ParseReportKind(c.Param("kind"))
	if err != nil {
		respondError(c, err)
		return
	}

	stats, err := h.statsService.ComputeWindow(c.Request.Context(), h.now(), kind.Window())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *ReportHandler) PreviewReport(c *gin.Context) {
	kind, err := entity.ParseReportKind(c.Param("kind"))
	if err != nil {
		respondError(c, err)
		return
	}

	text, err := h.reportService.Preview(c.Request.Context(), kind, h.now())
	if err != nil {
		respondError(c, err)
		return
	}

	c.String(http.StatusOK, text)
}

// SendReport dispatches a report outside the schedule. The dispatch is not
// tied to the request context, a disconnecting client does not cut retries short.
func (h *ReportHandler) SendReport(c *gin.Context) {
	kind, err := entity.ParseReportKind(c.Param("kind"))
	if err != nil {
		respondError(c, err)
		return
	}

	out := h.reportService.Dispatch(context.WithoutCancel(c.Request.Context()), kind, h.now())
	if !out.Delivered() {
		c.JSON(http.StatusBadGateway, out)
		return
	}

	c.JSON(http.StatusOK, out)
}

func (h *ReportHandler) GetFailedReports(c *gin.Context) {
	if h.dlq == nil {
		respondError(c, entity.ErrReportNotFound)
		return
	}
	limit, err := queryInt(c, "limit", defaultFailedLimit)
	if err != nil {
		respondError(c, err)
		return
	}

	reports, err := h.dlq.GetFailedReports(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, reports)
}

func (h *ReportHandler) GetFailedStats(c *gin.Context) {
	if h.dlq == nil {
		respondError(c, entity.ErrReportNotFound)
		return
	}

	stats, err := h.dlq.GetDLQStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *ReportHandler) DeleteFailedReport(c *gin.Context) {
	if h.dlq == nil {
		respondError(c, entity.ErrReportNotFound)
		return
	}

	if err := h.dlq.DeleteFailedReport(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ReportHandler) PurgeFailedReports(c *gin.Context) {
	if h.dlq == nil {
		respondError(c, entity.ErrReportNotFound)
		return
	}

	purged, err := h.dlq.PurgeDLQ(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"purged": purged})
}
