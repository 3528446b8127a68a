package handlers

import (
	"net/http"

	"github.com/andresuchdata/roastery/internal/forecast"
	"github.com/gin-gonic/gin"
)

type ForecastHandler struct {
	engine *forecast.Engine
}

func NewForecastHandler(engine *forecast.Engine) *ForecastHandler {
	return &ForecastHandler{engine: engine}
}

// SeasonalIndex handles GET /forecast/seasonal-index?refresh=true
func (h *ForecastHandler) SeasonalIndex(c *gin.Context) {
	refresh, ok := queryBool(c, "refresh")
	if !ok {
		return
	}
	index, err := h.engine.SeasonalIndex(c.Request.Context(), refresh != nil && *refresh)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, index)
}

// Predict handles GET /forecast?item_id=&months_ahead=
func (h *ForecastHandler) Predict(c *gin.Context) {
	itemID, ok := queryInt64(c, "item_id")
	if !ok {
		return
	}
	monthsAhead, ok := queryInt(c, "months_ahead", 1)
	if !ok {
		return
	}
	result, err := h.engine.Predict(c.Request.Context(), itemID, monthsAhead)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Series handles GET /forecast/series?item_id=&months=
func (h *ForecastHandler) Series(c *gin.Context) {
	itemID, ok := queryInt64(c, "item_id")
	if !ok {
		return
	}
	months, ok := queryInt(c, "months", 6)
	if !ok {
		return
	}
	series, err := h.engine.Series(c.Request.Context(), itemID, months)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"forecasts": series})
}
