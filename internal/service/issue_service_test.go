package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evgrid/station-api/internal/dto"
	"github.com/evgrid/station-api/internal/models"
	appErrors "github.com/evgrid/station-api/pkg/errors"
)

type issueStoreStub struct {
	issues map[string]*models.StationIssue
}

func newIssueStoreStub() *issueStoreStub {
	return &issueStoreStub{issues: make(map[string]*models.StationIssue)}
}

func (s *issueStoreStub) Create(ctx context.Context, issue *models.StationIssue) error {
	if issue.ID == "" {
		issue.ID = "issue-1"
	}
	clone := *issue
	s.issues[issue.ID] = &clone
	return nil
}

func (s *issueStoreStub) GetByID(ctx context.Context, id string) (*models.StationIssue, error) {
	if issue, ok := s.issues[id]; ok {
		clone := *issue
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (s *issueStoreStub) List(ctx context.Context, filter models.IssueFilter) ([]models.StationIssue, int, error) {
	var items []models.StationIssue
	for _, issue := range s.issues {
		items = append(items, *issue)
	}
	return items, len(items), nil
}

func (s *issueStoreStub) UpdateStatus(ctx context.Context, id string, to models.IssueStatus, from ...models.IssueStatus) error {
	issue, ok := s.issues[id]
	if !ok {
		return sql.ErrNoRows
	}
	for _, f := range from {
		if issue.Status == f {
			issue.Status = to
			return nil
		}
	}
	return sql.ErrNoRows
}

type publishedSourceStub struct {
	published bool
}

func (s *publishedSourceStub) GetPublishedVersion(ctx context.Context, stationID string) (*models.StationVersion, error) {
	if !s.published {
		return nil, sql.ErrNoRows
	}
	return &models.StationVersion{ID: "version-live", StationID: stationID}, nil
}

func userClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Role: models.RoleEVUser}
}

func TestIssueReport(t *testing.T) {
	store := newIssueStoreStub()
	trust := &trustRecomputerStub{}
	svc := NewIssueService(store, &publishedSourceStub{published: true}, trust, nil)

	issue, err := svc.Report(context.Background(), "station-1", dto.ReportIssuePayload{
		Category:    models.IssuePriceWrong,
		Description: strPtr("price on the pole says 12k, app says 15k"),
	}, userClaims())
	require.NoError(t, err)
	require.Equal(t, models.IssueOpen, issue.Status)
	require.Equal(t, "user-1", issue.ReportedBy)
	require.Equal(t, []string{"station-1"}, trust.stationIDs)
}

func TestIssueReportRequiresPublishedStation(t *testing.T) {
	svc := NewIssueService(newIssueStoreStub(), &publishedSourceStub{}, nil, nil)

	_, err := svc.Report(context.Background(), "station-1", dto.ReportIssuePayload{
		Category: models.IssueOther,
	}, userClaims())
	require.Equal(t, "NOT_FOUND", appErrors.FromError(err).Code)
}

func TestIssueReportRejectsUnknownCategory(t *testing.T) {
	svc := NewIssueService(newIssueStoreStub(), &publishedSourceStub{published: true}, nil, nil)

	_, err := svc.Report(context.Background(), "station-1", dto.ReportIssuePayload{
		Category: "WEATHER",
	}, userClaims())
	require.Equal(t, "VALIDATION_ERROR", appErrors.FromError(err).Code)
}

func TestIssueTransitions(t *testing.T) {
	store := newIssueStoreStub()
	trust := &trustRecomputerStub{}
	svc := NewIssueService(store, &publishedSourceStub{published: true}, trust, nil)

	issue, err := svc.Report(context.Background(), "station-1", dto.ReportIssuePayload{
		Category: models.IssueHoursWrong,
	}, userClaims())
	require.NoError(t, err)

	// Triage is admin-only.
	_, err = svc.Acknowledge(context.Background(), issue.ID, userClaims())
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	acked, err := svc.Acknowledge(context.Background(), issue.ID, adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.IssueAcknowledged, acked.Status)

	// Acknowledged issues cannot be acknowledged again but can close.
	_, err = svc.Acknowledge(context.Background(), issue.ID, adminClaims())
	require.Equal(t, "INVALID_STATE", appErrors.FromError(err).Code)

	resolved, err := svc.Resolve(context.Background(), issue.ID, adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.IssueResolved, resolved.Status)

	_, err = svc.Reject(context.Background(), issue.ID, adminClaims())
	require.Equal(t, "INVALID_STATE", appErrors.FromError(err).Code)

	// Report, acknowledge, resolve each recompute trust.
	require.Len(t, trust.stationIDs, 3)
}

func TestIssueRejectFromOpen(t *testing.T) {
	store := newIssueStoreStub()
	svc := NewIssueService(store, &publishedSourceStub{published: true}, nil, nil)

	issue, err := svc.Report(context.Background(), "station-1", dto.ReportIssuePayload{
		Category: models.IssueLocationWrong,
	}, userClaims())
	require.NoError(t, err)

	rejected, err := svc.Reject(context.Background(), issue.ID, adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.IssueRejected, rejected.Status)
}
