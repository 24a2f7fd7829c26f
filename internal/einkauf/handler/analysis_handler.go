package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jmrehder/einkauf2/internal/einkauf/service"
)

// AnalysisHandler serves the aggregation view.
type AnalysisHandler struct {
	svc *service.AnalysisService
}

func NewAnalysisHandler(svc *service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{svc: svc}
}

// filtersFromQuery reads the repeatable filter params. Absent params
// mean "match everything" for that field.
func filtersFromQuery(c *gin.Context) service.Filters {
	return service.Filters{
		CostCenterDescs: c.QueryArray("cost_center_desc"),
		MaterialGroups:  c.QueryArray("material_group"),
		Suppliers:       c.QueryArray("supplier"),
	}
}

// Summary GET /api/v1/analysis/summary
func (h *AnalysisHandler) Summary(c *gin.Context) {
	summary, err := h.svc.Summary(c.Request.Context(), filtersFromQuery(c))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, summary)
}

// Records GET /api/v1/analysis/records
func (h *AnalysisHandler) Records(c *gin.Context) {
	records, err := h.svc.FilteredRecords(c.Request.Context(), filtersFromQuery(c))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{"items": records, "total": len(records)})
}

// FilterOptions GET /api/v1/analysis/filters
func (h *AnalysisHandler) FilterOptions(c *gin.Context) {
	options, err := h.svc.FilterOptions(c.Request.Context())
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, options)
}
