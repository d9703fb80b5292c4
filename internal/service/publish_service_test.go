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

type publishCRStoreStub struct {
	cr        *models.ChangeRequest
	published bool
}

func (s *publishCRStoreStub) GetByID(ctx context.Context, id string) (*models.ChangeRequest, error) {
	if s.cr == nil || s.cr.ID != id {
		return nil, sql.ErrNoRows
	}
	clone := *s.cr
	return &clone, nil
}

func (s *publishCRStoreStub) MarkPublished(ctx context.Context, id string, at time.Time) error {
	s.published = true
	return nil
}

type publishStationStoreStub struct {
	archivedID *string
	err        error
	calls      int
}

func (s *publishStationStoreStub) Publish(ctx context.Context, stationID, versionID string, publishedAt time.Time) (*string, error) {
	s.calls++
	return s.archivedID, s.err
}

type verificationGateStub struct {
	passed bool
	asked  bool
}

func (s *verificationGateStub) HasPassForChangeRequest(ctx context.Context, changeRequestID string) (bool, error) {
	s.asked = true
	return s.passed, nil
}

type trustRecomputerStub struct {
	stationIDs []string
}

func (s *trustRecomputerStub) Recompute(ctx context.Context, stationID string) (*models.StationTrust, error) {
	s.stationIDs = append(s.stationIDs, stationID)
	return &models.StationTrust{StationID: stationID, Score: 50}, nil
}

type unitSyncerStub struct {
	versionIDs []string
}

func (s *unitSyncerStub) SyncForVersion(ctx context.Context, stationID, versionID string) error {
	s.versionIDs = append(s.versionIDs, versionID)
	return nil
}

func approvedChangeRequest(score int) *models.ChangeRequest {
	stationID := "station-1"
	return &models.ChangeRequest{
		ID:               "cr-1",
		RequestType:      models.ChangeRequestUpdateStation,
		StationID:        &stationID,
		StationVersionID: "version-2",
		RequestedBy:      "provider-1",
		Status:           models.ChangeRequestApproved,
		RiskScore:        &score,
	}
}

func TestPublishArchivesPreviousVersion(t *testing.T) {
	previous := "version-1"
	crStore := &publishCRStoreStub{cr: approvedChangeRequest(20)}
	stations := &publishStationStoreStub{archivedID: &previous}
	gate := &verificationGateStub{}
	trust := &trustRecomputerStub{}
	units := &unitSyncerStub{}
	audit := &auditRecorderStub{}
	svc := NewPublishService(crStore, stations, gate, trust, units, audit, nil, 60, nil)

	cr, err := svc.Publish(context.Background(), "cr-1", adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.ChangeRequestPublished, cr.Status)
	require.NotNil(t, cr.DecidedAt)
	require.True(t, crStore.published)
	require.False(t, gate.asked, "low risk must not require verification")
	require.Equal(t, []string{"station-1"}, trust.stationIDs)
	require.Equal(t, []string{"version-2"}, units.versionIDs)

	require.Len(t, audit.entries, 2)
	require.Equal(t, models.AuditArchiveStationVersion, audit.entries[0].Action)
	require.Equal(t, "version-1", audit.entries[0].EntityID)
	require.Equal(t, models.AuditPublishStationVersion, audit.entries[1].Action)
	require.Equal(t, "version-2", audit.entries[1].EntityID)
}

func TestPublishFirstVersionSkipsArchiveAudit(t *testing.T) {
	crStore := &publishCRStoreStub{cr: approvedChangeRequest(10)}
	stations := &publishStationStoreStub{}
	audit := &auditRecorderStub{}
	svc := NewPublishService(crStore, stations, &verificationGateStub{}, nil, nil, audit, nil, 60, nil)

	_, err := svc.Publish(context.Background(), "cr-1", adminClaims())
	require.NoError(t, err)
	require.Len(t, audit.entries, 1)
	require.Equal(t, models.AuditPublishStationVersion, audit.entries[0].Action)
}

func TestPublishHighRiskRequiresPassedVerification(t *testing.T) {
	crStore := &publishCRStoreStub{cr: approvedChangeRequest(60)}
	stations := &publishStationStoreStub{}
	gate := &verificationGateStub{passed: false}
	svc := NewPublishService(crStore, stations, gate, nil, nil, nil, nil, 60, nil)

	_, err := svc.Publish(context.Background(), "cr-1", adminClaims())
	require.Error(t, err)
	require.Equal(t, "INVALID_STATE", appErrors.FromError(err).Code)
	require.True(t, gate.asked)
	require.Zero(t, stations.calls)

	gate.passed = true
	cr, err := svc.Publish(context.Background(), "cr-1", adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.ChangeRequestPublished, cr.Status)
	require.Equal(t, 1, stations.calls)
}

func TestPublishRejectsNonApproved(t *testing.T) {
	cr := approvedChangeRequest(0)
	cr.Status = models.ChangeRequestPending
	crStore := &publishCRStoreStub{cr: cr}
	svc := NewPublishService(crStore, &publishStationStoreStub{}, &verificationGateStub{}, nil, nil, nil, nil, 60, nil)

	_, err := svc.Publish(context.Background(), "cr-1", adminClaims())
	require.Equal(t, "INVALID_STATE", appErrors.FromError(err).Code)
}

func TestPublishAdminOnly(t *testing.T) {
	svc := NewPublishService(&publishCRStoreStub{}, &publishStationStoreStub{}, &verificationGateStub{}, nil, nil, nil, nil, 60, nil)

	_, err := svc.Publish(context.Background(), "cr-1", providerClaims())
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.Publish(context.Background(), "cr-1", adminClaims())
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestPublishApprovedVersionGone(t *testing.T) {
	crStore := &publishCRStoreStub{cr: approvedChangeRequest(0)}
	stations := &publishStationStoreStub{err: sql.ErrNoRows}
	svc := NewPublishService(crStore, stations, &verificationGateStub{}, nil, nil, nil, nil, 60, nil)

	_, err := svc.Publish(context.Background(), "cr-1", adminClaims())
	require.Equal(t, "NOT_FOUND", appErrors.FromError(err).Code)
}
