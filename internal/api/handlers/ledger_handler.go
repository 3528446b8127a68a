package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/roastery/internal/costing"
	"github.com/andresuchdata/roastery/internal/domain"
	"github.com/andresuchdata/roastery/internal/ledger"
	"github.com/andresuchdata/roastery/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type LedgerHandler struct {
	ledger  *ledger.Service
	costing *costing.Service
}

func NewLedgerHandler(ledgerService *ledger.Service, costingService *costing.Service) *LedgerHandler {
	return &LedgerHandler{ledger: ledgerService, costing: costingService}
}

type receiveBody struct {
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	ReceivedAt *time.Time      `json:"received_at"`
	Note       string          `json:"note"`
}

type postBody struct {
	ChangeType    string          `json:"change_type"`
	Delta         decimal.Decimal `json:"delta"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	Note          string          `json:"note"`
	AllowNegative bool            `json:"allow_negative"`
}

type correctBody struct {
	Delta decimal.Decimal `json:"delta"`
	Note  string          `json:"note"`
}

// Receive handles POST /items/:id/receipts
func (h *LedgerHandler) Receive(c *gin.Context) {
	itemID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var body receiveBody
	if !bindJSON(c, &body) {
		return
	}

	req := ledger.ReceiveRequest{
		ItemID:    itemID,
		Quantity:  body.Quantity,
		UnitPrice: body.UnitPrice,
		Note:      body.Note,
	}
	if body.ReceivedAt != nil {
		req.ReceivedAt = body.ReceivedAt.UTC()
	}

	receipt, err := h.ledger.Receive(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

// Post handles POST /items/:id/ledger for adjustments and waste.
func (h *LedgerHandler) Post(c *gin.Context) {
	itemID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var body postBody
	if !bindJSON(c, &body) {
		return
	}

	var changeType domain.ChangeType
	if label := strings.TrimSpace(body.ChangeType); label != "" {
		ct, known := domain.ParseChangeType(label)
		if !known {
			badRequest(c, "unknown change_type %q", label)
			return
		}
		changeType = ct
	}

	entry, err := h.ledger.Post(c.Request.Context(), ledger.PostRequest{
		ItemID:        itemID,
		ChangeType:    changeType,
		Delta:         body.Delta,
		UnitCost:      body.UnitCost,
		Note:          body.Note,
		AllowNegative: body.AllowNegative,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// Query handles GET /items/:id/ledger?type=&from=&to=&page=&page_size=
func (h *LedgerHandler) Query(c *gin.Context) {
	itemID, ok := pathID(c, "id")
	if !ok {
		return
	}

	filter := repository.LedgerFilter{ItemID: itemID}

	for _, raw := range c.QueryArray("type") {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			ct, known := domain.ParseChangeType(part)
			if !known {
				badRequest(c, "unknown change type %q", part)
				return
			}
			filter.ChangeTypes = append(filter.ChangeTypes, ct)
		}
	}

	if filter.From, ok = queryTime(c, "from"); !ok {
		return
	}
	if filter.To, ok = queryTime(c, "to"); !ok {
		return
	}
	if filter.Page, ok = queryInt(c, "page", 1); !ok {
		return
	}
	if filter.PageSize, ok = queryInt(c, "page_size", repository.DefaultPageSize); !ok {
		return
	}

	page, err := h.ledger.Query(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Balance handles GET /items/:id/balance
func (h *LedgerHandler) Balance(c *gin.Context) {
	itemID, ok := pathID(c, "id")
	if !ok {
		return
	}
	balance, err := h.ledger.Balance(c.Request.Context(), itemID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item_id": itemID, "balance": balance})
}

// Correct handles POST /ledger/:id/corrections
func (h *LedgerHandler) Correct(c *gin.Context) {
	entryID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var body correctBody
	if !bindJSON(c, &body) {
		return
	}
	entry, err := h.ledger.Correct(c.Request.Context(), entryID, body.Delta, body.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// Quote handles GET /items/:id/cost?quantity=
func (h *LedgerHandler) Quote(c *gin.Context) {
	itemID, ok := pathID(c, "id")
	if !ok {
		return
	}
	qty, ok := queryDecimal(c, "quantity")
	if !ok {
		return
	}
	resolution, err := h.costing.Quote(c.Request.Context(), itemID, qty)
	if err != nil {
		respondError(c, err)
		return
	}

	body := gin.H{"resolution": resolution}
	if warning := resolution.Warning(); warning != "" {
		body["warning"] = warning
	}
	c.JSON(http.StatusOK, body)
}
