package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/evgrid/station-api/internal/dto"
	"github.com/evgrid/station-api/internal/models"
	appErrors "github.com/evgrid/station-api/pkg/errors"
	"github.com/evgrid/station-api/pkg/response"
)

type collaboratorService interface {
	UpsertProfile(ctx context.Context, userID string, payload dto.CollaboratorProfilePayload) (*models.CollaboratorProfile, error)
	GetProfile(ctx context.Context, userID string) (*models.CollaboratorProfile, error)
	CreateContract(ctx context.Context, payload dto.ContractPayload) (*models.CollaboratorContract, error)
	ListContracts(ctx context.Context, userID string) ([]models.CollaboratorContract, error)
	TerminateContract(ctx context.Context, id string) error
}

type kpiService interface {
	KPI(ctx context.Context, collaboratorID string, actor *models.JWTClaims) (*models.CollaboratorKPI, error)
	KPIPDF(ctx context.Context, collaboratorID string, actor *models.JWTClaims) ([]byte, error)
}

// CollaboratorHandler exposes the collaborator directory, contracts and
// monthly KPI reports.
type CollaboratorHandler struct {
	service collaboratorService
	kpi     kpiService
}

// NewCollaboratorHandler constructs the handler.
func NewCollaboratorHandler(service collaboratorService, kpi kpiService) *CollaboratorHandler {
	return &CollaboratorHandler{service: service, kpi: kpi}
}

// UpsertProfile godoc
// @Summary Create or update a collaborator profile
// @Tags Collaborators
// @Accept json
// @Produce json
// @Param id path string true "Collaborator user ID"
// @Param payload body dto.CollaboratorProfilePayload true "Profile payload"
// @Success 200 {object} response.Envelope
// @Router /collaborators/{id}/profile [put]
func (h *CollaboratorHandler) UpsertProfile(c *gin.Context) {
	var payload dto.CollaboratorProfilePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid profile payload"))
		return
	}
	profile, err := h.service.UpsertProfile(c.Request.Context(), c.Param("id"), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// GetProfile godoc
// @Summary Get a collaborator profile
// @Tags Collaborators
// @Produce json
// @Param id path string true "Collaborator user ID"
// @Success 200 {object} response.Envelope
// @Router /collaborators/{id}/profile [get]
func (h *CollaboratorHandler) GetProfile(c *gin.Context) {
	profile, err := h.service.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// CreateContract godoc
// @Summary Create a collaborator contract
// @Tags Collaborators
// @Accept json
// @Produce json
// @Param payload body dto.ContractPayload true "Contract payload"
// @Success 201 {object} response.Envelope
// @Router /collaborator-contracts [post]
func (h *CollaboratorHandler) CreateContract(c *gin.Context) {
	var payload dto.ContractPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid contract payload"))
		return
	}
	contract, err := h.service.CreateContract(c.Request.Context(), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, contract, nil)
}

// ListContracts godoc
// @Summary List a collaborator's contracts
// @Tags Collaborators
// @Produce json
// @Param id path string true "Collaborator user ID"
// @Success 200 {object} response.Envelope
// @Router /collaborators/{id}/contracts [get]
func (h *CollaboratorHandler) ListContracts(c *gin.Context) {
	contracts, err := h.service.ListContracts(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, contracts, nil)
}

// TerminateContract godoc
// @Summary Terminate an active contract
// @Tags Collaborators
// @Produce json
// @Param id path string true "Contract ID"
// @Success 204
// @Router /collaborator-contracts/{id} [delete]
func (h *CollaboratorHandler) TerminateContract(c *gin.Context) {
	if err := h.service.TerminateContract(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// KPI godoc
// @Summary Monthly KPI for a collaborator
// @Tags Collaborators
// @Produce json
// @Param id path string true "Collaborator user ID"
// @Success 200 {object} response.Envelope
// @Router /collaborators/{id}/kpi [get]
func (h *CollaboratorHandler) KPI(c *gin.Context) {
	kpi, err := h.kpi.KPI(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, kpi, nil)
}

// KPIReport godoc
// @Summary Monthly KPI rendered as PDF
// @Tags Collaborators
// @Produce application/pdf
// @Param id path string true "Collaborator user ID"
// @Success 200 {file} file
// @Router /collaborators/{id}/kpi/report [get]
func (h *CollaboratorHandler) KPIReport(c *gin.Context) {
	payload, err := h.kpi.KPIPDF(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := "kpi-" + time.Now().UTC().Format("2006-01") + ".pdf"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", payload)
}
