package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/evgrid/station-api/internal/models"
	appErrors "github.com/evgrid/station-api/pkg/errors"
	"github.com/evgrid/station-api/pkg/response"
)

type auditService interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error)
	ExportCSV(ctx context.Context, filter models.AuditFilter) ([]byte, error)
}

// AuditHandler exposes the admin audit ledger.
type AuditHandler struct {
	service auditService
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(service auditService) *AuditHandler {
	return &AuditHandler{service: service}
}

func auditFilterFromQuery(c *gin.Context) (models.AuditFilter, error) {
	var filter models.AuditFilter
	if raw := strings.TrimSpace(c.Query("actorId")); raw != "" {
		filter.ActorID = &raw
	}
	if raw := strings.ToUpper(strings.TrimSpace(c.Query("action"))); raw != "" {
		filter.Action = &raw
	}
	if raw := strings.TrimSpace(c.Query("entityType")); raw != "" {
		filter.EntityType = &raw
	}
	if raw := strings.TrimSpace(c.Query("entityId")); raw != "" {
		filter.EntityID = &raw
	}
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "from must be RFC3339")
		}
		filter.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "to must be RFC3339")
		}
		filter.To = &to
	}
	filter.Page, filter.PageSize = paginationFromQuery(c)
	return filter, nil
}

// List godoc
// @Summary List audit ledger entries
// @Tags Audit
// @Produce json
// @Param actorId query string false "Actor filter"
// @Param action query string false "Action filter"
// @Param entityType query string false "Entity type filter"
// @Param entityId query string false "Entity filter"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Success 200 {object} response.Envelope
// @Router /audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	filter, err := auditFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Export godoc
// @Summary Export matching ledger entries as CSV
// @Tags Audit
// @Produce text/csv
// @Param action query string false "Action filter"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Success 200 {file} file
// @Router /audit-logs/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	filter, err := auditFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	payload, err := h.service.ExportCSV(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := "audit-" + time.Now().UTC().Format("20060102-150405") + ".csv"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv", payload)
}
