package handlers

import (
	"net/http"

	"github.com/andresuchdata/roastery/internal/quality"
	"github.com/andresuchdata/roastery/internal/repository"
	"github.com/gin-gonic/gin"
)

const defaultWindowDays = 30

type QualityHandler struct {
	service *quality.Service
}

func NewQualityHandler(service *quality.Service) *QualityHandler {
	return &QualityHandler{service: service}
}

// Trend handles GET /quality/trend?item_id=&window_days=
func (h *QualityHandler) Trend(c *gin.Context) {
	itemID, ok := queryInt64(c, "item_id")
	if !ok {
		return
	}
	windowDays, ok := queryInt(c, "window_days", defaultWindowDays)
	if !ok {
		return
	}
	report, err := h.service.Trend(c.Request.Context(), itemID, windowDays)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Comparison handles GET /quality/comparison?window_days=
func (h *QualityHandler) Comparison(c *gin.Context) {
	windowDays, ok := queryInt(c, "window_days", defaultWindowDays)
	if !ok {
		return
	}
	report, err := h.service.PerItemComparison(c.Request.Context(), windowDays)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Warnings handles GET /quality/warnings?item_id=&resolved=&from=
func (h *QualityHandler) Warnings(c *gin.Context) {
	var (
		filter repository.WarningFilter
		ok     bool
	)
	if filter.ItemID, ok = queryInt64(c, "item_id"); !ok {
		return
	}
	if filter.Resolved, ok = queryBool(c, "resolved"); !ok {
		return
	}
	if filter.From, ok = queryTime(c, "from"); !ok {
		return
	}

	warnings, err := h.service.Warnings(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"warnings": warnings})
}

type resolveBody struct {
	Note string `json:"note"`
}

// Resolve handles POST /quality/warnings/:id/resolve
func (h *QualityHandler) Resolve(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var body resolveBody
	if c.Request.ContentLength != 0 && !bindJSON(c, &body) {
		return
	}
	warning, err := h.service.Resolve(c.Request.Context(), id, body.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, warning)
}
