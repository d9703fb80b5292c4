package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/evgrid/station-api/internal/dto"
	"github.com/evgrid/station-api/internal/models"
	appErrors "github.com/evgrid/station-api/pkg/errors"
	"github.com/evgrid/station-api/pkg/response"
)

type verificationService interface {
	CreateTask(ctx context.Context, payload dto.CreateVerificationTaskPayload, actor *models.JWTClaims) (*models.VerificationTask, error)
	GetTask(ctx context.Context, id string, actor *models.JWTClaims) (*models.VerificationTask, error)
	ListTasks(ctx context.Context, filter models.VerificationTaskFilter, actor *models.JWTClaims) ([]models.VerificationTask, int, error)
	Assign(ctx context.Context, id string, payload dto.AssignVerificationTaskPayload, actor *models.JWTClaims) (*models.VerificationTask, error)
	Candidates(ctx context.Context, taskID string, actor *models.JWTClaims) ([]models.CandidateCollaborator, error)
	Checkin(ctx context.Context, taskID string, payload dto.CheckinPayload, actor *models.JWTClaims) (*models.VerificationCheckin, error)
	AddEvidence(ctx context.Context, taskID string, payload dto.EvidencePayload, actor *models.JWTClaims) (*models.VerificationEvidence, error)
	SubmitEvidence(ctx context.Context, taskID string, payload dto.SubmitEvidencePayload, actor *models.JWTClaims) (*models.VerificationTask, error)
	Review(ctx context.Context, taskID string, payload dto.ReviewPayload, actor *models.JWTClaims) (*models.VerificationTask, error)
	ListEvidence(ctx context.Context, taskID string, actor *models.JWTClaims) ([]dto.EvidenceResponse, error)
}

// VerificationHandler exposes REST endpoints for the field verification
// lifecycle.
type VerificationHandler struct {
	service verificationService
}

// NewVerificationHandler constructs the handler.
func NewVerificationHandler(service verificationService) *VerificationHandler {
	return &VerificationHandler{service: service}
}

// Create godoc
// @Summary Open a verification task
// @Tags Verifications
// @Accept json
// @Produce json
// @Param payload body dto.CreateVerificationTaskPayload true "Task payload"
// @Success 201 {object} response.Envelope
// @Router /verification-tasks [post]
func (h *VerificationHandler) Create(c *gin.Context) {
	var payload dto.CreateVerificationTaskPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid task payload"))
		return
	}
	task, err := h.service.CreateTask(c.Request.Context(), payload, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, task, nil)
}

// List godoc
// @Summary List verification tasks
// @Tags Verifications
// @Produce json
// @Param status query string false "Status filter"
// @Param stationId query string false "Station filter"
// @Param dueBefore query string false "SLA deadline cutoff (RFC3339)"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /verification-tasks [get]
func (h *VerificationHandler) List(c *gin.Context) {
	var filter models.VerificationTaskFilter
	if raw := strings.ToUpper(strings.TrimSpace(c.Query("status"))); raw != "" {
		status := models.VerificationStatus(raw)
		filter.Status = &status
	}
	if raw := strings.TrimSpace(c.Query("stationId")); raw != "" {
		filter.StationID = &raw
	}
	if raw := strings.TrimSpace(c.Query("dueBefore")); raw != "" {
		cutoff, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "dueBefore must be RFC3339"))
			return
		}
		filter.DueBefore = &cutoff
	}
	filter.Page, filter.PageSize = paginationFromQuery(c)

	tasks, total, err := h.service.ListTasks(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tasks, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Get godoc
// @Summary Get one verification task
// @Tags Verifications
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Router /verification-tasks/{id} [get]
func (h *VerificationHandler) Get(c *gin.Context) {
	task, err := h.service.GetTask(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}

// Assign godoc
// @Summary Assign an open task to a collaborator
// @Tags Verifications
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param payload body dto.AssignVerificationTaskPayload true "Assignee"
// @Success 200 {object} response.Envelope
// @Router /verification-tasks/{id}/assign [post]
func (h *VerificationHandler) Assign(c *gin.Context) {
	var payload dto.AssignVerificationTaskPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "assigneeId is required"))
		return
	}
	task, err := h.service.Assign(c.Request.Context(), c.Param("id"), payload, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}

// Candidates godoc
// @Summary Rank collaborators for a task
// @Tags Verifications
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Router /verification-tasks/{id}/candidates [get]
func (h *VerificationHandler) Candidates(c *gin.Context) {
	candidates, err := h.service.Candidates(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, candidates, nil)
}

// Checkin godoc
// @Summary Record arrival at the station
// @Tags Verifications
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param payload body dto.CheckinPayload true "Reported position"
// @Success 200 {object} response.Envelope
// @Router /verification-tasks/{id}/checkin [post]
func (h *VerificationHandler) Checkin(c *gin.Context) {
	var payload dto.CheckinPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "lat and lng are required"))
		return
	}
	checkin, err := h.service.Checkin(c.Request.Context(), c.Param("id"), payload, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, checkin, nil)
}

// AddEvidence godoc
// @Summary Attach one evidence object
// @Tags Verifications
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param payload body dto.EvidencePayload true "Evidence"
// @Success 201 {object} response.Envelope
// @Router /verification-tasks/{id}/evidence [post]
func (h *VerificationHandler) AddEvidence(c *gin.Context) {
	var payload dto.EvidencePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "objectKey is required"))
		return
	}
	evidence, err := h.service.AddEvidence(c.Request.Context(), c.Param("id"), payload, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, evidence, nil)
}

// ListEvidence godoc
// @Summary List a task's evidence with signed view URLs
// @Tags Verifications
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Router /verification-tasks/{id}/evidence [get]
func (h *VerificationHandler) ListEvidence(c *gin.Context) {
	items, err := h.service.ListEvidence(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Submit godoc
// @Summary Submit the site visit for review
// @Tags Verifications
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param payload body dto.SubmitEvidencePayload false "Final evidence batch"
// @Success 200 {object} response.Envelope
// @Router /verification-tasks/{id}/submit [post]
func (h *VerificationHandler) Submit(c *gin.Context) {
	var payload dto.SubmitEvidencePayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid evidence payload"))
			return
		}
	}
	task, err := h.service.SubmitEvidence(c.Request.Context(), c.Param("id"), payload, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}

// Review godoc
// @Summary Review a submitted task
// @Tags Verifications
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param payload body dto.ReviewPayload true "Verdict"
// @Success 200 {object} response.Envelope
// @Router /verification-tasks/{id}/review [post]
func (h *VerificationHandler) Review(c *gin.Context) {
	var payload dto.ReviewPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "result is required"))
		return
	}
	task, err := h.service.Review(c.Request.Context(), c.Param("id"), payload, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}
