package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/evgrid/station-api/internal/dto"
	"github.com/evgrid/station-api/internal/models"
	appErrors "github.com/evgrid/station-api/pkg/errors"
	"github.com/evgrid/station-api/pkg/response"
)

type issueService interface {
	Report(ctx context.Context, stationID string, payload dto.ReportIssuePayload, actor *models.JWTClaims) (*models.StationIssue, error)
	Get(ctx context.Context, id string) (*models.StationIssue, error)
	List(ctx context.Context, filter models.IssueFilter) ([]models.StationIssue, int, error)
	Acknowledge(ctx context.Context, id string, actor *models.JWTClaims) (*models.StationIssue, error)
	Resolve(ctx context.Context, id string, actor *models.JWTClaims) (*models.StationIssue, error)
	Reject(ctx context.Context, id string, actor *models.JWTClaims) (*models.StationIssue, error)
}

// IssueHandler exposes REST endpoints for EV-user reports and admin triage.
type IssueHandler struct {
	service issueService
}

// NewIssueHandler constructs the handler.
func NewIssueHandler(service issueService) *IssueHandler {
	return &IssueHandler{service: service}
}

// Report godoc
// @Summary Report an issue against a published station
// @Tags Issues
// @Accept json
// @Produce json
// @Param id path string true "Station ID"
// @Param payload body dto.ReportIssuePayload true "Issue payload"
// @Success 201 {object} response.Envelope
// @Router /stations/{id}/issues [post]
func (h *IssueHandler) Report(c *gin.Context) {
	var payload dto.ReportIssuePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid issue payload"))
		return
	}
	issue, err := h.service.Report(c.Request.Context(), c.Param("id"), payload, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, issue, nil)
}

// List godoc
// @Summary List issues
// @Tags Issues
// @Produce json
// @Param stationId query string false "Station filter"
// @Param status query string false "Status filter"
// @Param category query string false "Category filter"
// @Success 200 {object} response.Envelope
// @Router /issues [get]
func (h *IssueHandler) List(c *gin.Context) {
	var filter models.IssueFilter
	if raw := strings.TrimSpace(c.Query("stationId")); raw != "" {
		filter.StationID = &raw
	}
	if raw := strings.ToUpper(strings.TrimSpace(c.Query("status"))); raw != "" {
		status := models.IssueStatus(raw)
		filter.Status = &status
	}
	if raw := strings.ToUpper(strings.TrimSpace(c.Query("category"))); raw != "" {
		category := models.IssueCategory(raw)
		filter.Category = &category
	}
	filter.Page, filter.PageSize = paginationFromQuery(c)

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

// Get godoc
// @Summary Get one issue
// @Tags Issues
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Router /issues/{id} [get]
func (h *IssueHandler) Get(c *gin.Context) {
	issue, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issue, nil)
}

// Acknowledge godoc
// @Summary Acknowledge an open issue
// @Tags Issues
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Router /issues/{id}/acknowledge [post]
func (h *IssueHandler) Acknowledge(c *gin.Context) {
	issue, err := h.service.Acknowledge(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issue, nil)
}

// Resolve godoc
// @Summary Resolve an issue
// @Tags Issues
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Router /issues/{id}/resolve [post]
func (h *IssueHandler) Resolve(c *gin.Context) {
	issue, err := h.service.Resolve(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issue, nil)
}

// Reject godoc
// @Summary Reject an issue as invalid
// @Tags Issues
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Router /issues/{id}/reject [post]
func (h *IssueHandler) Reject(c *gin.Context) {
	issue, err := h.service.Reject(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issue, nil)
}
