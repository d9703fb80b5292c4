package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/evgrid/station-api/internal/dto"
	"github.com/evgrid/station-api/internal/models"
	appErrors "github.com/evgrid/station-api/pkg/errors"
	"github.com/evgrid/station-api/pkg/response"
)

type changeRequestService interface {
	Create(ctx context.Context, payload dto.CreateChangeRequestPayload, actor *models.JWTClaims) (*models.ChangeRequest, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ChangeRequest, error)
	List(ctx context.Context, filter models.ChangeRequestFilter, actor *models.JWTClaims) ([]models.ChangeRequest, int, error)
	Submit(ctx context.Context, id string, actor *models.JWTClaims) (*models.ChangeRequest, error)
	Approve(ctx context.Context, id string, actor *models.JWTClaims) (*models.ChangeRequest, error)
	Reject(ctx context.Context, id string, actor *models.JWTClaims, reason string) (*models.ChangeRequest, error)
}

type publishService interface {
	Publish(ctx context.Context, changeRequestID string, actor *models.JWTClaims) (*models.ChangeRequest, error)
}

// ChangeRequestHandler exposes REST endpoints for the moderation workflow.
type ChangeRequestHandler struct {
	service   changeRequestService
	publisher publishService
}

// NewChangeRequestHandler constructs the handler.
func NewChangeRequestHandler(service changeRequestService, publisher publishService) *ChangeRequestHandler {
	return &ChangeRequestHandler{service: service, publisher: publisher}
}

func toChangeRequestResponse(cr *models.ChangeRequest) dto.ChangeRequestResponse {
	resp := dto.ChangeRequestResponse{ChangeRequest: *cr}
	if cr.RiskScore != nil {
		level := models.RiskLevelFromScore(*cr.RiskScore)
		resp.RiskLevel = &level
	}
	return resp
}

// Create godoc
// @Summary Open a draft change request
// @Tags ChangeRequests
// @Accept json
// @Produce json
// @Param payload body dto.CreateChangeRequestPayload true "Change request payload"
// @Success 201 {object} response.Envelope
// @Router /change-requests [post]
func (h *ChangeRequestHandler) Create(c *gin.Context) {
	var payload dto.CreateChangeRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid change request payload"))
		return
	}
	cr, err := h.service.Create(c.Request.Context(), payload, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, toChangeRequestResponse(cr), nil)
}

// List godoc
// @Summary List change requests
// @Tags ChangeRequests
// @Produce json
// @Param status query string false "Status filter"
// @Param type query string false "Request type filter"
// @Param minRisk query int false "Minimum frozen risk score"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /change-requests [get]
func (h *ChangeRequestHandler) List(c *gin.Context) {
	var filter models.ChangeRequestFilter
	if raw := strings.ToUpper(strings.TrimSpace(c.Query("status"))); raw != "" {
		status := models.ChangeRequestStatus(raw)
		filter.Status = &status
	}
	if raw := strings.ToUpper(strings.TrimSpace(c.Query("type"))); raw != "" {
		requestType := models.ChangeRequestType(raw)
		filter.RequestType = &requestType
	}
	if raw := c.Query("minRisk"); raw != "" {
		minRisk, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "minRisk must be an integer"))
			return
		}
		filter.MinRisk = &minRisk
	}
	filter.Page, filter.PageSize = paginationFromQuery(c)

	items, total, err := h.service.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	responses := make([]dto.ChangeRequestResponse, 0, len(items))
	for i := range items {
		responses = append(responses, toChangeRequestResponse(&items[i]))
	}
	response.JSON(c, http.StatusOK, responses, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Get godoc
// @Summary Get one change request
// @Tags ChangeRequests
// @Produce json
// @Param id path string true "Change request ID"
// @Success 200 {object} response.Envelope
// @Router /change-requests/{id} [get]
func (h *ChangeRequestHandler) Get(c *gin.Context) {
	cr, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, toChangeRequestResponse(cr), nil)
}

// Submit godoc
// @Summary Submit a draft change request for review
// @Tags ChangeRequests
// @Produce json
// @Param id path string true "Change request ID"
// @Success 200 {object} response.Envelope
// @Router /change-requests/{id}/submit [post]
func (h *ChangeRequestHandler) Submit(c *gin.Context) {
	cr, err := h.service.Submit(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, toChangeRequestResponse(cr), nil)
}

// Approve godoc
// @Summary Approve a pending change request
// @Tags ChangeRequests
// @Produce json
// @Param id path string true "Change request ID"
// @Success 200 {object} response.Envelope
// @Router /change-requests/{id}/approve [post]
func (h *ChangeRequestHandler) Approve(c *gin.Context) {
	cr, err := h.service.Approve(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, toChangeRequestResponse(cr), nil)
}

// Reject godoc
// @Summary Reject a pending change request
// @Tags ChangeRequests
// @Accept json
// @Produce json
// @Param id path string true "Change request ID"
// @Param payload body dto.RejectChangeRequestPayload true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /change-requests/{id}/reject [post]
func (h *ChangeRequestHandler) Reject(c *gin.Context) {
	var payload dto.RejectChangeRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "rejection reason is required"))
		return
	}
	cr, err := h.service.Reject(c.Request.Context(), c.Param("id"), claimsFromContext(c), payload.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, toChangeRequestResponse(cr), nil)
}

// Publish godoc
// @Summary Publish an approved change request
// @Tags ChangeRequests
// @Produce json
// @Param id path string true "Change request ID"
// @Success 200 {object} response.Envelope
// @Router /change-requests/{id}/publish [post]
func (h *ChangeRequestHandler) Publish(c *gin.Context) {
	if h.publisher == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "publish service not configured"))
		return
	}
	cr, err := h.publisher.Publish(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, toChangeRequestResponse(cr), nil)
}

func paginationFromQuery(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
