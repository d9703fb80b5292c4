package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/evgrid/station-api/internal/dto"
	"github.com/evgrid/station-api/internal/models"
	"github.com/evgrid/station-api/pkg/response"
)

type stationService interface {
	Detail(ctx context.Context, stationID string, actor *models.JWTClaims) (*dto.StationDetailResponse, error)
}

type trustService interface {
	Get(ctx context.Context, stationID string) (*models.StationTrust, error)
	Recompute(ctx context.Context, stationID string) (*models.StationTrust, error)
}

// StationHandler serves the public station read model and trust scores.
type StationHandler struct {
	stations stationService
	trust    trustService
}

// NewStationHandler constructs the handler.
func NewStationHandler(stations stationService, trust trustService) *StationHandler {
	return &StationHandler{stations: stations, trust: trust}
}

// Get godoc
// @Summary Get a station's live version with services and charging bays
// @Description Owners and admins with a bearer token also see stations that
// @Description have not published yet.
// @Tags Stations
// @Produce json
// @Param id path string true "Station ID"
// @Success 200 {object} response.Envelope
// @Router /stations/{id} [get]
func (h *StationHandler) Get(c *gin.Context) {
	detail, err := h.stations.Detail(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Trust godoc
// @Summary Get a station's trust score with breakdown
// @Tags Stations
// @Produce json
// @Param id path string true "Station ID"
// @Success 200 {object} response.Envelope
// @Router /stations/{id}/trust [get]
func (h *StationHandler) Trust(c *gin.Context) {
	trust, err := h.trust.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trust, nil)
}

// RecomputeTrust godoc
// @Summary Recompute a station's trust score
// @Tags Stations
// @Produce json
// @Param id path string true "Station ID"
// @Success 200 {object} response.Envelope
// @Router /stations/{id}/trust/recompute [post]
func (h *StationHandler) RecomputeTrust(c *gin.Context) {
	trust, err := h.trust.Recompute(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trust, nil)
}
