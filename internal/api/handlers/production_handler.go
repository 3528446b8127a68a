package handlers

import (
	"net/http"

	"github.com/andresuchdata/roastery/internal/production"
	"github.com/gin-gonic/gin"
)

type ProductionHandler struct {
	service *production.Service
}

func NewProductionHandler(service *production.Service) *ProductionHandler {
	return &ProductionHandler{service: service}
}

// Roast handles POST /production/roasts
func (h *ProductionHandler) Roast(c *gin.Context) {
	var req production.RoastRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.RoastSingle(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Blend handles POST /production/blends
func (h *ProductionHandler) Blend(c *gin.Context) {
	var req production.BlendRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.RoastBlend(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}
