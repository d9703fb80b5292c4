package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evgrid/station-api/internal/models"
	appErrors "github.com/evgrid/station-api/pkg/errors"
)

type collaboratorStoreStub struct {
	users    map[string]*models.User
	profiles map[string]*models.CollaboratorProfile
}

func (s *collaboratorStoreStub) UpsertProfile(ctx context.Context, profile *models.CollaboratorProfile) error {
	if s.profiles == nil {
		s.profiles = map[string]*models.CollaboratorProfile{}
	}
	s.profiles[profile.UserID] = profile
	return nil
}

func (s *collaboratorStoreStub) GetProfile(ctx context.Context, userID string) (*models.CollaboratorProfile, error) {
	profile, ok := s.profiles[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return profile, nil
}

func (s *collaboratorStoreStub) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (s *collaboratorStoreStub) CreateContract(ctx context.Context, contract *models.CollaboratorContract) error {
	return nil
}

func (s *collaboratorStoreStub) GetActiveContract(ctx context.Context, userID string, at time.Time) (*models.CollaboratorContract, error) {
	return nil, sql.ErrNoRows
}

func (s *collaboratorStoreStub) ListContracts(ctx context.Context, userID string) ([]models.CollaboratorContract, error) {
	return nil, nil
}

func (s *collaboratorStoreStub) TerminateContract(ctx context.Context, id string) error {
	return nil
}

func TestCollaboratorResolveRole(t *testing.T) {
	store := &collaboratorStoreStub{users: map[string]*models.User{
		"collab-1": {ID: "collab-1", Role: models.RoleCollaborator, Active: true},
		"ghost-1":  {ID: "ghost-1", Role: models.RoleCollaborator, Active: false},
	}}
	svc := NewCollaboratorService(store, nil)

	role, err := svc.ResolveRole(context.Background(), "collab-1")
	require.NoError(t, err)
	require.Equal(t, models.RoleCollaborator, role)

	_, err = svc.ResolveRole(context.Background(), "ghost-1")
	require.Equal(t, "VALIDATION_ERROR", appErrors.FromError(err).Code)

	_, err = svc.ResolveRole(context.Background(), "nobody")
	require.Equal(t, "VALIDATION_ERROR", appErrors.FromError(err).Code)
}
