package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/evgrid/station-api/internal/dto"
	"github.com/evgrid/station-api/internal/models"
	appErrors "github.com/evgrid/station-api/pkg/errors"
)

type collaboratorStore interface {
	UpsertProfile(ctx context.Context, profile *models.CollaboratorProfile) error
	GetProfile(ctx context.Context, userID string) (*models.CollaboratorProfile, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	CreateContract(ctx context.Context, contract *models.CollaboratorContract) error
	GetActiveContract(ctx context.Context, userID string, at time.Time) (*models.CollaboratorContract, error)
	ListContracts(ctx context.Context, userID string) ([]models.CollaboratorContract, error)
	TerminateContract(ctx context.Context, id string) error
}

// CollaboratorService manages field-collaborator profiles and contracts.
type CollaboratorService struct {
	repo   collaboratorStore
	logger *zap.Logger
}

// NewCollaboratorService constructs the service.
func NewCollaboratorService(repo collaboratorStore, logger *zap.Logger) *CollaboratorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CollaboratorService{repo: repo, logger: logger}
}

// UpsertProfile creates or updates the profile of a collaborator.
func (s *CollaboratorService) UpsertProfile(ctx context.Context, userID string, payload dto.CollaboratorProfilePayload) (*models.CollaboratorProfile, error) {
	name := strings.TrimSpace(payload.FullName)
	if name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "fullName is required")
	}
	if (payload.Lat == nil) != (payload.Lng == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "lat and lng must be provided together")
	}
	profile := &models.CollaboratorProfile{
		UserID:   userID,
		FullName: name,
		Phone:    payload.Phone,
		Region:   payload.Region,
		Lat:      payload.Lat,
		Lng:      payload.Lng,
	}
	if err := s.repo.UpsertProfile(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save collaborator profile")
	}
	return profile, nil
}

// GetProfile returns the profile of a collaborator.
func (s *CollaboratorService) GetProfile(ctx context.Context, userID string) (*models.CollaboratorProfile, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load collaborator profile")
	}
	return profile, nil
}

// CreateContract opens an engagement for a collaborator. Dates are inclusive
// calendar days.
func (s *CollaboratorService) CreateContract(ctx context.Context, payload dto.ContractPayload) (*models.CollaboratorContract, error) {
	start, err := time.Parse("2006-01-02", payload.StartDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "startDate must be YYYY-MM-DD")
	}
	end, err := time.Parse("2006-01-02", payload.EndDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "endDate must be YYYY-MM-DD")
	}
	if end.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "endDate must not precede startDate")
	}
	if _, err := s.GetProfile(ctx, payload.UserID); err != nil {
		return nil, err
	}
	contract := &models.CollaboratorContract{
		UserID:    payload.UserID,
		Status:    models.ContractActive,
		StartDate: start,
		EndDate:   end,
	}
	if err := s.repo.CreateContract(ctx, contract); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create contract")
	}
	return contract, nil
}

// ListContracts returns all contracts of a collaborator.
func (s *CollaboratorService) ListContracts(ctx context.Context, userID string) ([]models.CollaboratorContract, error) {
	contracts, err := s.repo.ListContracts(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list contracts")
	}
	return contracts, nil
}

// TerminateContract ends an active contract early.
func (s *CollaboratorService) TerminateContract(ctx context.Context, id string) error {
	if err := s.repo.TerminateContract(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidState, "contract is not active")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to terminate contract")
	}
	return nil
}

// RequireActiveContract verifies the collaborator holds an active contract
// covering the given instant.
func (s *CollaboratorService) RequireActiveContract(ctx context.Context, userID string, at time.Time) error {
	_, err := s.repo.GetActiveContract(ctx, userID, at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrForbidden, "no active contract covers this date")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check contract")
	}
	return nil
}

// ResolveRole returns the role of an active account. Used to confirm
// assignment eligibility before handing a task to a user.
func (s *CollaboratorService) ResolveRole(ctx context.Context, userID string) (models.UserRole, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrValidation, "unknown user account")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.Active {
		return "", appErrors.Clone(appErrors.ErrValidation, "user account is inactive")
	}
	return user.Role, nil
}

// HasProfile reports whether the collaborator has a profile on record.
func (s *CollaboratorService) HasProfile(ctx context.Context, userID string) (bool, error) {
	_, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load collaborator profile")
	}
	return true, nil
}
