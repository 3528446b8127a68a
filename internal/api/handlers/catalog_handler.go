package handlers

import (
	"net/http"

	"github.com/andresuchdata/roastery/internal/catalog"
	"github.com/gin-gonic/gin"
)

type CatalogHandler struct {
	service *catalog.Service
}

func NewCatalogHandler(service *catalog.Service) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// ListItems handles GET /items
func (h *CatalogHandler) ListItems(c *gin.Context) {
	items, err := h.service.ListItems(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetItem handles GET /items/:id
func (h *CatalogHandler) GetItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	item, err := h.service.GetItem(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// CreateItem handles POST /items
func (h *CatalogHandler) CreateItem(c *gin.Context) {
	var req catalog.ItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.service.CreateItem(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// CreateRecipe handles POST /recipes
func (h *CatalogHandler) CreateRecipe(c *gin.Context) {
	var req catalog.RecipeRequest
	if !bindJSON(c, &req) {
		return
	}
	recipe, err := h.service.CreateRecipe(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, recipe)
}

// GetRecipe handles GET /recipes/:id
func (h *CatalogHandler) GetRecipe(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	recipe, err := h.service.GetRecipe(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, recipe)
}

// ListBatches handles GET /batches?item_id=&limit=
func (h *CatalogHandler) ListBatches(c *gin.Context) {
	itemID, ok := queryInt64(c, "item_id")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	batches, err := h.service.ListBatches(c.Request.Context(), itemID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches})
}

// GetBatch handles GET /batches/:id
func (h *CatalogHandler) GetBatch(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	batch, err := h.service.GetBatch(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}
