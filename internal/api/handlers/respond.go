package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/roastery/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// StatusFor maps a service error onto an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrEmptyRecipe),
		errors.Is(err, domain.ErrInvalidRecipe),
		errors.Is(err, domain.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}

	body := gin.H{"error": err.Error()}
	var stock *domain.InsufficientStockError
	if errors.As(err, &stock) {
		body["item_id"] = stock.ItemID
		body["required"] = stock.Required
		body["available"] = stock.Available
	}
	var data *domain.InsufficientDataError
	if errors.As(err, &data) {
		body["required"] = data.Required
		body["available"] = data.Available
	}

	log.Warn().Err(err).Int("status", status).Str("path", c.FullPath()).Msg("request rejected")
	c.JSON(status, body)
}

func badRequest(c *gin.Context, format string, args ...any) {
	respondError(c, fmt.Errorf("%w: %s", domain.ErrInvalidRequest, fmt.Sprintf(format, args...)))
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid %s %q", name, c.Param(name))
		return 0, false
	}
	return id, true
}

func queryInt64(c *gin.Context, name string) (*int64, bool) {
	value := strings.TrimSpace(c.Query(name))
	if value == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		badRequest(c, "invalid %s %q", name, value)
		return nil, false
	}
	return &id, true
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	value := strings.TrimSpace(c.Query(name))
	if value == "" {
		return def, true
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		badRequest(c, "invalid %s %q", name, value)
		return 0, false
	}
	return n, true
}

func queryBool(c *gin.Context, name string) (*bool, bool) {
	value := strings.TrimSpace(c.Query(name))
	if value == "" {
		return nil, true
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		badRequest(c, "invalid %s %q", name, value)
		return nil, false
	}
	return &b, true
}

func queryDecimal(c *gin.Context, name string) (decimal.Decimal, bool) {
	value := strings.TrimSpace(c.Query(name))
	d, err := decimal.NewFromString(value)
	if err != nil {
		badRequest(c, "invalid %s %q", name, value)
		return decimal.Zero, false
	}
	return d, true
}

// queryTime accepts RFC3339 timestamps and plain dates (UTC midnight).
func queryTime(c *gin.Context, name string) (*time.Time, bool) {
	value := strings.TrimSpace(c.Query(name))
	if value == "" {
		return nil, true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, true
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		badRequest(c, "invalid %s %q", name, value)
		return nil, false
	}
	return &t, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return false
	}
	return true
}
