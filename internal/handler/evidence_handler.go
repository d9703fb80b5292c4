package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/evgrid/station-api/pkg/errors"
	"github.com/evgrid/station-api/pkg/response"
	"github.com/evgrid/station-api/pkg/storage"
)

// EvidenceHandler resolves signed evidence view tokens back into object
// references. Blob delivery itself is the object store's job.
type EvidenceHandler struct {
	signer *storage.EvidenceURLSigner
}

// NewEvidenceHandler constructs the handler.
func NewEvidenceHandler(signer *storage.EvidenceURLSigner) *EvidenceHandler {
	return &EvidenceHandler{signer: signer}
}

// View godoc
// @Summary Resolve a signed evidence token
// @Tags Verifications
// @Produce json
// @Param token query string true "Signed token"
// @Success 200 {object} response.Envelope
// @Router /evidence/view [get]
func (h *EvidenceHandler) View(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	taskID, objectKey, expiresAt, err := h.signer.Parse(token)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token"))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"taskId":    taskID,
		"objectKey": objectKey,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
	}, nil)
}
