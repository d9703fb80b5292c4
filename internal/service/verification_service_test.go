package service

import (
	"context"
	"database/sql"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evgrid/station-api/internal/dto"
	"github.com/evgrid/station-api/internal/models"
	appErrors "github.com/evgrid/station-api/pkg/errors"
	"github.com/evgrid/station-api/pkg/geo"
)

type verificationStoreStub struct {
	tasks      map[string]*models.VerificationTask
	evidence   map[string][]models.VerificationEvidence
	checkins   []*models.VerificationCheckin
	candidates []models.CandidateCollaborator
	kpi        *models.CollaboratorKPI
}

func newVerificationStoreStub() *verificationStoreStub {
	return &verificationStoreStub{
		tasks:    make(map[string]*models.VerificationTask),
		evidence: make(map[string][]models.VerificationEvidence),
	}
}

func (s *verificationStoreStub) CreateTask(ctx context.Context, task *models.VerificationTask) error {
	if task.ID == "" {
		task.ID = "task-1"
	}
	clone := *task
	s.tasks[task.ID] = &clone
	return nil
}

func (s *verificationStoreStub) GetTask(ctx context.Context, id string) (*models.VerificationTask, error) {
	if task, ok := s.tasks[id]; ok {
		clone := *task
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (s *verificationStoreStub) ListTasks(ctx context.Context, filter models.VerificationTaskFilter) ([]models.VerificationTask, int, error) {
	var items []models.VerificationTask
	for _, task := range s.tasks {
		if filter.AssigneeID != nil && !isAssignee(task, *filter.AssigneeID) {
			continue
		}
		items = append(items, *task)
	}
	return items, len(items), nil
}

func (s *verificationStoreStub) Assign(ctx context.Context, id, assigneeID string, at time.Time) error {
	task, ok := s.tasks[id]
	if !ok || task.Status != models.VerificationOpen {
		return sql.ErrNoRows
	}
	task.Status = models.VerificationAssigned
	task.AssigneeID = &assigneeID
	task.AssignedAt = &at
	return nil
}

func (s *verificationStoreStub) Checkin(ctx context.Context, checkin *models.VerificationCheckin) error {
	task, ok := s.tasks[checkin.TaskID]
	if !ok || task.Status != models.VerificationAssigned {
		return sql.ErrNoRows
	}
	task.Status = models.VerificationCheckedIn
	s.checkins = append(s.checkins, checkin)
	return nil
}

func (s *verificationStoreStub) AddEvidence(ctx context.Context, evidence *models.VerificationEvidence) error {
	if evidence.ID == "" {
		evidence.ID = "evidence-1"
	}
	s.evidence[evidence.TaskID] = append(s.evidence[evidence.TaskID], *evidence)
	return nil
}

func (s *verificationStoreStub) ListEvidence(ctx context.Context, taskID string) ([]models.VerificationEvidence, error) {
	return s.evidence[taskID], nil
}

func (s *verificationStoreStub) SubmitTask(ctx context.Context, id string, at time.Time) error {
	task, ok := s.tasks[id]
	if !ok || task.Status != models.VerificationCheckedIn {
		return sql.ErrNoRows
	}
	task.Status = models.VerificationSubmitted
	task.SubmittedAt = &at
	return nil
}

func (s *verificationStoreStub) Review(ctx context.Context, id string, result models.VerificationResult, note *string, reviewerID string, at time.Time) error {
	task, ok := s.tasks[id]
	if !ok || task.Status != models.VerificationSubmitted {
		return sql.ErrNoRows
	}
	task.Status = models.VerificationReviewed
	task.Result = &result
	task.ReviewedBy = &reviewerID
	task.ReviewedAt = &at
	return nil
}

func (s *verificationStoreStub) ListCandidates(ctx context.Context, at time.Time) ([]models.CandidateCollaborator, error) {
	return s.candidates, nil
}

func (s *verificationStoreStub) MonthlyKPI(ctx context.Context, collaboratorID string, periodStart time.Time) (*models.CollaboratorKPI, error) {
	kpi := *s.kpi
	kpi.CollaboratorID = collaboratorID
	kpi.PeriodStart = periodStart.Format("2006-01-02")
	return &kpi, nil
}

type stationLocatorStub struct {
	station   *models.Station
	published *models.StationVersion
}

func (s *stationLocatorStub) GetByID(ctx context.Context, id string) (*models.Station, error) {
	if s.station == nil || s.station.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.station, nil
}

func (s *stationLocatorStub) GetPublishedVersion(ctx context.Context, stationID string) (*models.StationVersion, error) {
	if s.published == nil {
		return nil, sql.ErrNoRows
	}
	return s.published, nil
}

type collaboratorGateStub struct {
	profiles    map[string]bool
	roles       map[string]models.UserRole
	contractErr error
}

func (s *collaboratorGateStub) HasProfile(ctx context.Context, userID string) (bool, error) {
	return s.profiles[userID], nil
}

func (s *collaboratorGateStub) ResolveRole(ctx context.Context, userID string) (models.UserRole, error) {
	if role, ok := s.roles[userID]; ok {
		return role, nil
	}
	return models.RoleCollaborator, nil
}

func (s *collaboratorGateStub) RequireActiveContract(ctx context.Context, userID string, at time.Time) error {
	return s.contractErr
}

type evidenceSignerStub struct{}

func (s *evidenceSignerStub) Generate(taskID, objectKey string) (string, time.Time, error) {
	return "signed-token", time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC), nil
}

func collaboratorClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "collab-1", Role: models.RoleCollaborator}
}

func publishedAt(lat, lng float64) *models.StationVersion {
	return &models.StationVersion{
		ID:             "version-live",
		StationID:      "station-1",
		WorkflowStatus: models.WorkflowStatusPublished,
		Lat:            &lat,
		Lng:            &lng,
	}
}

func assignedTask() *models.VerificationTask {
	assignee := "collab-1"
	return &models.VerificationTask{
		ID:         "task-1",
		StationID:  "station-1",
		Status:     models.VerificationAssigned,
		Priority:   3,
		AssigneeID: &assignee,
	}
}

func newVerificationService(store *verificationStoreStub, stations *stationLocatorStub, gate *collaboratorGateStub, trust trustRecomputer, audit auditRecorder, opts ...VerificationServiceOption) *VerificationService {
	return NewVerificationService(store, stations, gate, &evidenceSignerStub{}, trust, audit, nil, nil, opts...)
}

func TestVerificationCheckinWithinRadius(t *testing.T) {
	store := newVerificationStoreStub()
	store.tasks["task-1"] = assignedTask()
	stations := &stationLocatorStub{published: publishedAt(10.7769, 106.7009)}
	gate := &collaboratorGateStub{profiles: map[string]bool{"collab-1": true}}
	audit := &auditRecorderStub{}
	svc := newVerificationService(store, stations, gate, nil, audit)

	// Roughly 111m north of the published pin.
	checkin, err := svc.Checkin(context.Background(), "task-1", dto.CheckinPayload{
		Lat: 10.7779, Lng: 106.7009, DeviceNote: strPtr("gps accuracy 5m"),
	}, collaboratorClaims())
	require.NoError(t, err)
	require.InDelta(t, 111, checkin.DistanceMeters, 2)
	require.Equal(t, "gps accuracy 5m", *checkin.DeviceNote)
	require.Equal(t, models.VerificationCheckedIn, store.tasks["task-1"].Status)
	require.Len(t, audit.entries, 1)
	require.Equal(t, models.AuditCheckinVerification, audit.entries[0].Action)
}

func TestVerificationCheckinTooFar(t *testing.T) {
	store := newVerificationStoreStub()
	store.tasks["task-1"] = assignedTask()
	stations := &stationLocatorStub{published: publishedAt(10.7769, 106.7009)}
	gate := &collaboratorGateStub{}
	svc := newVerificationService(store, stations, gate, nil, nil)

	// Roughly 222m away, past the 200m limit.
	_, err := svc.Checkin(context.Background(), "task-1", dto.CheckinPayload{Lat: 10.7789, Lng: 106.7009}, collaboratorClaims())
	require.Error(t, err)
	require.Equal(t, "VALIDATION_ERROR", appErrors.FromError(err).Code)
	require.Equal(t, models.VerificationAssigned, store.tasks["task-1"].Status)
}

func TestVerificationCheckinRequiresPublishedLocation(t *testing.T) {
	store := newVerificationStoreStub()
	store.tasks["task-1"] = assignedTask()
	svc := newVerificationService(store, &stationLocatorStub{}, &collaboratorGateStub{}, nil, nil)

	_, err := svc.Checkin(context.Background(), "task-1", dto.CheckinPayload{Lat: 10.7769, Lng: 106.7009}, collaboratorClaims())
	require.Equal(t, "INVALID_STATE", appErrors.FromError(err).Code)
}

func TestVerificationCheckinAssigneeOnly(t *testing.T) {
	store := newVerificationStoreStub()
	store.tasks["task-1"] = assignedTask()
	stations := &stationLocatorStub{published: publishedAt(10.7769, 106.7009)}
	svc := newVerificationService(store, stations, &collaboratorGateStub{}, nil, nil)

	other := &models.JWTClaims{UserID: "collab-2", Role: models.RoleCollaborator}
	_, err := svc.Checkin(context.Background(), "task-1", dto.CheckinPayload{Lat: 10.7769, Lng: 106.7009}, other)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestVerificationAssignGuards(t *testing.T) {
	store := newVerificationStoreStub()
	task := assignedTask()
	task.Status = models.VerificationOpen
	task.AssigneeID = nil
	store.tasks["task-1"] = task
	gate := &collaboratorGateStub{profiles: map[string]bool{"collab-1": true}}
	svc := newVerificationService(store, &stationLocatorStub{}, gate, nil, nil)

	_, err := svc.Assign(context.Background(), "task-1", dto.AssignVerificationTaskPayload{AssigneeID: "collab-1"}, providerClaims())
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.Assign(context.Background(), "task-1", dto.AssignVerificationTaskPayload{AssigneeID: "nobody"}, adminClaims())
	require.Equal(t, "VALIDATION_ERROR", appErrors.FromError(err).Code)

	// Only accounts holding the collaborator role are eligible.
	gate.roles = map[string]models.UserRole{"driver-1": models.RoleEVUser}
	_, err = svc.Assign(context.Background(), "task-1", dto.AssignVerificationTaskPayload{AssigneeID: "driver-1"}, adminClaims())
	require.Equal(t, "VALIDATION_ERROR", appErrors.FromError(err).Code)
	require.Equal(t, models.VerificationOpen, store.tasks["task-1"].Status)

	// No active contract covering today blocks the assignment.
	gate.contractErr = appErrors.Clone(appErrors.ErrForbidden, "no active contract covers this date")
	_, err = svc.Assign(context.Background(), "task-1", dto.AssignVerificationTaskPayload{AssigneeID: "collab-1"}, adminClaims())
	require.Equal(t, "VALIDATION_ERROR", appErrors.FromError(err).Code)
	require.Equal(t, models.VerificationOpen, store.tasks["task-1"].Status)
	gate.contractErr = nil

	assigned, err := svc.Assign(context.Background(), "task-1", dto.AssignVerificationTaskPayload{AssigneeID: "collab-1"}, adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.VerificationAssigned, assigned.Status)

	_, err = svc.Assign(context.Background(), "task-1", dto.AssignVerificationTaskPayload{AssigneeID: "collab-1"}, adminClaims())
	require.Equal(t, "INVALID_STATE", appErrors.FromError(err).Code)
}

func TestVerificationCreateTaskCarriesSLA(t *testing.T) {
	store := newVerificationStoreStub()
	stations := &stationLocatorStub{station: &models.Station{ID: "station-1"}}
	svc := newVerificationService(store, stations, &collaboratorGateStub{}, nil, nil)

	due := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	task, err := svc.CreateTask(context.Background(), dto.CreateVerificationTaskPayload{
		StationID: "station-1",
		SLADueAt:  &due,
	}, adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.VerificationOpen, task.Status)
	require.Equal(t, 3, task.Priority)
	require.NotNil(t, task.SLADueAt)
	require.True(t, task.SLADueAt.Equal(due))
	require.True(t, store.tasks[task.ID].SLADueAt.Equal(due))
}

func TestVerificationCheckinAtExactRadiusBoundary(t *testing.T) {
	origin := geo.Point{Lat: 10.7769, Lng: 106.7009}
	spot := geo.Point{Lat: origin.Lat + 200.0*180.0/(math.Pi*6371000.0), Lng: origin.Lng}
	limit := geo.DistanceMeters(origin, spot)
	require.InDelta(t, 200, limit, 0.001)

	store := newVerificationStoreStub()
	store.tasks["task-1"] = assignedTask()
	stations := &stationLocatorStub{published: publishedAt(origin.Lat, origin.Lng)}
	svc := newVerificationService(store, stations, &collaboratorGateStub{}, nil, nil,
		WithMaxCheckinDistance(limit))

	// A check-in from exactly the limit distance is accepted.
	checkin, err := svc.Checkin(context.Background(), "task-1", dto.CheckinPayload{Lat: spot.Lat, Lng: spot.Lng}, collaboratorClaims())
	require.NoError(t, err)
	require.Equal(t, limit, checkin.DistanceMeters)

	// One hair past the radius is not.
	rewound := newVerificationStoreStub()
	rewound.tasks["task-1"] = assignedTask()
	tight := newVerificationService(rewound, stations, &collaboratorGateStub{}, nil, nil,
		WithMaxCheckinDistance(math.Nextafter(limit, 0)))
	_, err = tight.Checkin(context.Background(), "task-1", dto.CheckinPayload{Lat: spot.Lat, Lng: spot.Lng}, collaboratorClaims())
	require.Equal(t, "VALIDATION_ERROR", appErrors.FromError(err).Code)
	require.Equal(t, models.VerificationAssigned, rewound.tasks["task-1"].Status)
}

func TestVerificationSubmitRequiresEvidence(t *testing.T) {
	store := newVerificationStoreStub()
	task := assignedTask()
	task.Status = models.VerificationCheckedIn
	store.tasks["task-1"] = task
	svc := newVerificationService(store, &stationLocatorStub{}, &collaboratorGateStub{}, nil, nil)

	_, err := svc.SubmitEvidence(context.Background(), "task-1", dto.SubmitEvidencePayload{}, collaboratorClaims())
	require.Equal(t, "VALIDATION_ERROR", appErrors.FromError(err).Code)

	submitted, err := svc.SubmitEvidence(context.Background(), "task-1", dto.SubmitEvidencePayload{
		Items: []dto.EvidencePayload{{ObjectKey: "photos/front.jpg"}},
	}, collaboratorClaims())
	require.NoError(t, err)
	require.Equal(t, models.VerificationSubmitted, submitted.Status)
	require.Equal(t, "collab-1", store.evidence["task-1"][0].SubmittedBy)
}

func TestVerificationReviewRecomputesTrust(t *testing.T) {
	store := newVerificationStoreStub()
	task := assignedTask()
	task.Status = models.VerificationSubmitted
	store.tasks["task-1"] = task
	trust := &trustRecomputerStub{}
	audit := &auditRecorderStub{}
	svc := newVerificationService(store, &stationLocatorStub{}, &collaboratorGateStub{}, trust, audit)

	_, err := svc.Review(context.Background(), "task-1", dto.ReviewPayload{Result: models.VerificationPass}, collaboratorClaims())
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.Review(context.Background(), "task-1", dto.ReviewPayload{Result: "MAYBE"}, adminClaims())
	require.Equal(t, "VALIDATION_ERROR", appErrors.FromError(err).Code)

	reviewed, err := svc.Review(context.Background(), "task-1", dto.ReviewPayload{Result: models.VerificationPass}, adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.VerificationReviewed, reviewed.Status)
	require.Equal(t, models.VerificationPass, *reviewed.Result)
	require.Equal(t, []string{"station-1"}, trust.stationIDs)
	require.Len(t, audit.entries, 1)
	require.Equal(t, models.AuditReviewEvidence, audit.entries[0].Action)
}

func TestVerificationCandidatesRanking(t *testing.T) {
	store := newVerificationStoreStub()
	task := assignedTask()
	task.Status = models.VerificationOpen
	store.tasks["task-1"] = task
	store.candidates = []models.CandidateCollaborator{
		{UserID: "far", Lat: floatPtr(10.7969), Lng: floatPtr(106.7009), ActiveTasks: 0, CompletedTasks: 9},
		{UserID: "no-location", ActiveTasks: 0, CompletedTasks: 20},
		{UserID: "near-busy", Lat: floatPtr(10.7779), Lng: floatPtr(106.7009), ActiveTasks: 3, CompletedTasks: 1},
		{UserID: "near-idle", Lat: floatPtr(10.7779), Lng: floatPtr(106.7009), ActiveTasks: 1, CompletedTasks: 5},
	}
	stations := &stationLocatorStub{published: publishedAt(10.7769, 106.7009)}
	svc := newVerificationService(store, stations, &collaboratorGateStub{}, nil, nil)

	ranked, err := svc.Candidates(context.Background(), "task-1", adminClaims())
	require.NoError(t, err)
	ids := make([]string, len(ranked))
	for i, c := range ranked {
		ids[i] = c.UserID
	}
	require.Equal(t, []string{"near-idle", "near-busy", "far", "no-location"}, ids)
	require.NotNil(t, ranked[0].DistanceMeters)
	require.Nil(t, ranked[3].DistanceMeters)
}

func TestVerificationKPIPassRate(t *testing.T) {
	store := newVerificationStoreStub()
	store.kpi = &models.CollaboratorKPI{TotalReviewed: 3, Passed: 2, Failed: 1}
	svc := newVerificationService(store, &stationLocatorStub{}, &collaboratorGateStub{}, nil, nil)

	kpi, err := svc.KPI(context.Background(), "collab-1", collaboratorClaims())
	require.NoError(t, err)
	require.InDelta(t, 66.67, kpi.PassRate, 0.001)

	// Collaborators cannot read someone else's numbers.
	_, err = svc.KPI(context.Background(), "collab-2", collaboratorClaims())
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestVerificationListEvidenceSignsURLs(t *testing.T) {
	store := newVerificationStoreStub()
	store.tasks["task-1"] = assignedTask()
	store.evidence["task-1"] = []models.VerificationEvidence{{ID: "evidence-1", TaskID: "task-1", ObjectKey: "photos/front.jpg"}}
	svc := newVerificationService(store, &stationLocatorStub{}, &collaboratorGateStub{}, nil, nil)

	items, err := svc.ListEvidence(context.Background(), "task-1", collaboratorClaims())
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "/evidence/view?token=signed-token", items[0].ViewURL)
	require.Equal(t, "2026-08-29T12:00:00Z", items[0].ExpiresAt)
}
