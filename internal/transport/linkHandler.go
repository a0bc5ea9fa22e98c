package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/linktracker/internal/entity"
	"github.com/ds124wfegd/linktracker/internal/service"
)

const (
	defaultListLimit  = 100
	defaultClickLimit = 20
	defaultStatsDays  = 7
)

type LinkHandler struct {
	linkService service.LinkService
}

func NewLinkHandler(linkService service.LinkService) *LinkHandler {
	return &LinkHandler{
		linkService: linkService,
	}
}

func (h *LinkHandler) RegisterRoutes(router *gin.RouterGroup) {
	links := router.Group("/links")
	{
		links.POST("", h.CreateLink)
		links.GET("", h.ListLinks)
		links.GET("/:code", h.GetLink)
		links.PATCH("/:code", h.UpdateLink)
		links.DELETE("/:code", h.DeleteLink)
		links.GET("/:code/stats", h.GetLinkStats)
		links.GET("/:code/clicks", h.GetClicks)
		links.DELETE("/:code/clicks", h.ResetClicks)
	}
}

// Redirect records the click before answering, so a report computed after
// the response already sees it.
func (h *LinkHandler) Redirect(c *gin.Context) {
	code := c.Param("code")

	link, err := h.linkService.RecordClick(c.Request.Context(), code, entity.ClickMeta{
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
		Referer:   c.Request.Referer(),
	})
	if err != nil {
		if errorStatus(err) == http.StatusNotFound {
			logrus.WithField("code", code).Warn("Link not found")
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Link not found",
				"path":    c.Request.URL.Path,
			})
			return
		}
		respondError(c, err)
		return
	}

	c.Redirect(http.StatusFound, link.TargetURL)
}

func (h *LinkHandler) CreateLink(c *gin.Context) {
	var req entity.CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	link, err := h.linkService.CreateLink(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, link)
}

func (h *LinkHandler) ListLinks(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultListLimit)
	if err != nil {
		respondError(c, err)
		return
	}

	links, err := h.linkService.ListLinks(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, links)
}

func (h *LinkHandler) GetLink(c *gin.Context) {
	link, err := h.linkService.GetLink(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, link)
}

func (h *LinkHandler) UpdateLink(c *gin.Context) {
	var req entity.UpdateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	link, err := h.linkService.UpdateLink(c.Request.Context(), c.Param("code"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, link)
}

func (h *LinkHandler) DeleteLink(c *gin.Context) {
	if err := h.linkService.DeleteLink(c.Request.Context(), c.Param("code")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *LinkHandler) GetLinkStats(c *gin.Context) {
	days, err := queryInt(c, "days", defaultStatsDays)
	if err != nil {
		respondError(c, err)
		return
	}

	stats, err := h.linkService.GetLinkStats(c.Request.Context(), c.Param("code"), days)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *LinkHandler) GetClicks(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultClickLimit)
	if err != nil {
		respondError(c, err)
		return
	}

	clicks, err := h.linkService.GetClicks(c.Request.Context(), c.Param("code"), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, clicks)
}

func (h *LinkHandler) ResetClicks(c *gin.Context) {
	deleted, err := h.linkService.ResetClicks(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
