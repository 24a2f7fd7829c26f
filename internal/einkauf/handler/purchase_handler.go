package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jmrehder/einkauf2/internal/einkauf/repository"
	"github.com/jmrehder/einkauf2/internal/einkauf/service"
)

// PurchaseHandler serves listing, manual entry, and deletion.
type PurchaseHandler struct {
	svc *service.PurchaseService
}

func NewPurchaseHandler(svc *service.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{svc: svc}
}

// List GET /api/v1/purchases
func (h *PurchaseHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)

	items, total, err := h.svc.Page(c.Request.Context(), page, pageSize)
	if err != nil {
		InternalError(c, err.Error())
		return
	}

	totalPages := total / pageSize
	if total%pageSize > 0 {
		totalPages++
	}
	Success(c, ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}

// Get GET /api/v1/purchases/:id
func (h *PurchaseHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid record id")
		return
	}

	record, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			NotFound(c, "record not found")
			return
		}
		InternalError(c, err.Error())
		return
	}
	Success(c, record)
}

// Create POST /api/v1/purchases
func (h *PurchaseHandler) Create(c *gin.Context) {
	var input service.CreatePurchaseInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	record, err := h.svc.Create(c.Request.Context(), &input)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			BadRequest(c, verr.Message)
			return
		}
		InternalError(c, err.Error())
		return
	}
	Created(c, record)
}

// Delete DELETE /api/v1/purchases/:id
//
// Deleting an id that does not exist reports success; the operation is a
// no-op in that case.
func (h *PurchaseHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid record id")
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{"deleted": true})
}
