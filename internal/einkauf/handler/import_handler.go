package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/jmrehder/einkauf2/internal/einkauf/service"
)

// ImportHandler serves the bulk-import surface: file upload plus
// template download.
type ImportHandler struct {
	svc *service.ImportService
}

func NewImportHandler(svc *service.ImportService) *ImportHandler {
	return &ImportHandler{svc: svc}
}

// Import POST /api/v1/imports
//
// Multipart upload: "file" is the CSV or XLSX batch, "mode" selects the
// reconciliation mode (defaults to append_all). Schema mismatches reject
// the whole batch with the missing column names; a batch left empty
// after coercion drops is a no-op, not an error.
func (h *ImportHandler) Import(c *gin.Context) {
	mode, err := service.ParseImportMode(c.PostForm("mode"))
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		BadRequest(c, "file upload is required")
		return
	}
	defer file.Close()

	report, err := h.svc.Import(c.Request.Context(), file, header.Filename, mode)
	if err != nil {
		var schemaErr *service.SchemaError
		if errors.As(err, &schemaErr) {
			BadRequest(c, schemaErr.Error())
			return
		}
		InternalError(c, err.Error())
		return
	}

	if report.TotalRows-report.DroppedRows == 0 {
		SuccessMessage(c, "no importable rows in batch", report)
		return
	}
	Success(c, report)
}

// DownloadTemplate GET /api/v1/imports/template?format=csv|xlsx
func (h *ImportHandler) DownloadTemplate(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	switch format {
	case "csv":
		data, filename, err := h.svc.GenerateTemplateCSV()
		if err != nil {
			InternalError(c, err.Error())
			return
		}
		c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
		c.Data(200, "text/csv; charset=utf-8", data)
	case "xlsx":
		f, filename, err := h.svc.GenerateTemplateXLSX()
		if err != nil {
			InternalError(c, err.Error())
			return
		}
		defer f.Close()

		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
		c.Header("Content-Transfer-Encoding", "binary")
		if err := f.Write(c.Writer); err != nil {
			InternalError(c, "write template: "+err.Error())
		}
	default:
		BadRequest(c, "unknown template format (expected csv or xlsx)")
	}
}
