package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/noa1020/Finance-master/internal/models"
	"github.com/noa1020/Finance-master/internal/validation"
)

// EntryCoordinator defines the operations EntryHandler needs from the
// per-kind transaction coordinator.
type EntryCoordinator interface {
	Create(ctx context.Context, entry models.Entry) (models.Entry, error)
	Update(ctx context.Context, id int64, patch models.EntryPatch, requesterID int64) (models.Entry, error)
	Delete(ctx context.Context, id, userID int64) (models.Entry, error)
	Get(ctx context.Context, id, userID int64) (models.Entry, error)
	List(ctx context.Context, userID int64) ([]models.Entry, error)
}

// EntryHandler serves one record kind. The only difference between the two
// kinds at this layer is the counterparty field name on the wire.
type EntryHandler struct {
	entries EntryCoordinator
	kind    models.EntryKind
}

func NewEntryHandler(entries EntryCoordinator, kind models.EntryKind) *EntryHandler {
	return &EntryHandler{entries: entries, kind: kind}
}

type expenseRequest struct {
	ID            int64           `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	Beneficiary   string          `json:"beneficiary" validate:"required"`
	Documentation string          `json:"documentation" validate:"required"`
}

type revenueRequest struct {
	ID            int64           `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	Benefactor    string          `json:"benefactor" validate:"required"`
	Documentation string          `json:"documentation" validate:"required"`
}

type expensePatchRequest struct {
	Amount        *decimal.Decimal `json:"amount"`
	Date          *time.Time       `json:"date"`
	Beneficiary   *string          `json:"beneficiary"`
	Documentation *string          `json:"documentation"`
}

type revenuePatchRequest struct {
	Amount        *decimal.Decimal `json:"amount"`
	Date          *time.Time       `json:"date"`
	Benefactor    *string          `json:"benefactor"`
	Documentation *string          `json:"documentation"`
}

func (h *EntryHandler) bindCreate(c *gin.Context) (models.Entry, []validation.FieldError, bool) {
	if h.kind == models.KindExpense {
		var req expenseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return models.Entry{}, nil, false
		}
		if fieldErrs := validation.CheckRequest(req); fieldErrs != nil {
			return models.Entry{}, fieldErrs, true
		}
		return models.Entry{
			ID: req.ID, Amount: req.Amount, Date: req.Date,
			Counterparty: req.Beneficiary, Documentation: req.Documentation,
		}, nil, true
	}

	var req revenueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return models.Entry{}, nil, false
	}
	if fieldErrs := validation.CheckRequest(req); fieldErrs != nil {
		return models.Entry{}, fieldErrs, true
	}
	return models.Entry{
		ID: req.ID, Amount: req.Amount, Date: req.Date,
		Counterparty: req.Benefactor, Documentation: req.Documentation,
	}, nil, true
}

func (h *EntryHandler) bindPatch(c *gin.Context) (models.EntryPatch, bool) {
	if h.kind == models.KindExpense {
		var req expensePatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return models.EntryPatch{}, false
		}
		return models.EntryPatch{
			Amount: req.Amount, Date: req.Date,
			Counterparty: req.Beneficiary, Documentation: req.Documentation,
		}, true
	}

	var req revenuePatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return models.EntryPatch{}, false
	}
	return models.EntryPatch{
		Amount: req.Amount, Date: req.Date,
		Counterparty: req.Benefactor, Documentation: req.Documentation,
	}, true
}

// payload renders an entry with the kind-specific counterparty key.
func (h *EntryHandler) payload(e models.Entry) gin.H {
	counterpartyKey := "beneficiary"
	if h.kind == models.KindRevenue {
		counterpartyKey = "benefactor"
	}
	return gin.H{
		"id":               e.ID,
		"userId":           e.UserID,
		"amount":           e.Amount,
		"date":             e.Date,
		counterpartyKey:    e.Counterparty,
		"documentation":    e.Documentation,
		"createdTimestamp": e.CreatedAt,
		"updatedTimestamp": e.UpdatedAt,
	}
}

func (h *EntryHandler) Create(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	entry, fieldErrs, bound := h.bindCreate(c)
	if !bound {
		respondBadRequest(c, "Invalid request body")
		return
	}
	if fieldErrs != nil {
		respondValidationErrors(c, fieldErrs)
		return
	}
	entry.UserID = userID

	created, err := h.entries.Create(c.Request.Context(), entry)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.payload(created))
}

func (h *EntryHandler) Get(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	entryID, ok := pathID(c, "entryId")
	if !ok {
		return
	}

	entry, err := h.entries.Get(c.Request.Context(), entryID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.payload(entry))
}

func (h *EntryHandler) List(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}

	entries, err := h.entries.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	payloads := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		payloads = append(payloads, h.payload(e))
	}
	c.JSON(http.StatusOK, payloads)
}

func (h *EntryHandler) Update(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	entryID, ok := pathID(c, "entryId")
	if !ok {
		return
	}
	patch, bound := h.bindPatch(c)
	if !bound {
		respondBadRequest(c, "Invalid request body")
		return
	}

	updated, err := h.entries.Update(c.Request.Context(), entryID, patch, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.payload(updated))
}

func (h *EntryHandler) Delete(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	entryID, ok := pathID(c, "entryId")
	if !ok {
		return
	}

	deleted, err := h.entries.Delete(c.Request.Context(), entryID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.payload(deleted))
}

// pathID parses a numeric path parameter, responding 400 itself on garbage.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		respondBadRequest(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}
