package service

import (
	"context"
	"database/sql"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evgrid/station-api/internal/dto"
	"github.com/evgrid/station-api/internal/models"
	"github.com/evgrid/station-api/internal/repository"
	appErrors "github.com/evgrid/station-api/pkg/errors"
)

type changeRequestRepoStub struct {
	requests map[string]*models.ChangeRequest
	seq      int
}

func newChangeRequestRepoStub() *changeRequestRepoStub {
	return &changeRequestRepoStub{requests: make(map[string]*models.ChangeRequest)}
}

func (s *changeRequestRepoStub) Create(ctx context.Context, cr *models.ChangeRequest) error {
	s.seq++
	if cr.ID == "" {
		cr.ID = "cr-" + strconv.Itoa(s.seq)
	}
	if cr.Status == "" {
		cr.Status = models.ChangeRequestDraft
	}
	clone := *cr
	s.requests[cr.ID] = &clone
	return nil
}

func (s *changeRequestRepoStub) GetByID(ctx context.Context, id string) (*models.ChangeRequest, error) {
	if cr, ok := s.requests[id]; ok {
		clone := *cr
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (s *changeRequestRepoStub) List(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, int, error) {
	var items []models.ChangeRequest
	for _, cr := range s.requests {
		if filter.RequestedBy != nil && cr.RequestedBy != *filter.RequestedBy {
			continue
		}
		items = append(items, *cr)
	}
	return items, len(items), nil
}

func (s *changeRequestRepoStub) Submit(ctx context.Context, id string, score int, reasons []string, submittedAt time.Time) error {
	cr, ok := s.requests[id]
	if !ok || cr.Status != models.ChangeRequestDraft {
		return sql.ErrNoRows
	}
	cr.Status = models.ChangeRequestPending
	cr.RiskScore = &score
	cr.RiskReasons = reasons
	cr.SubmittedAt = &submittedAt
	return nil
}

func (s *changeRequestRepoStub) Decide(ctx context.Context, id string, to models.ChangeRequestStatus, reason *string, decidedAt time.Time) error {
	cr, ok := s.requests[id]
	if !ok || cr.Status != models.ChangeRequestPending {
		return sql.ErrNoRows
	}
	cr.Status = to
	cr.RejectReason = reason
	cr.DecidedAt = &decidedAt
	return nil
}

func (s *changeRequestRepoStub) SetStationID(ctx context.Context, id, stationID string) error {
	if cr, ok := s.requests[id]; ok {
		cr.StationID = &stationID
	}
	return nil
}

type stationRepoStub struct {
	stations  map[string]*models.Station
	versions  map[string]*models.StationVersion
	ports     map[string][]models.ChargingPort
	published map[string]string
	seq       int
}

func newStationRepoStub() *stationRepoStub {
	return &stationRepoStub{
		stations:  make(map[string]*models.Station),
		versions:  make(map[string]*models.StationVersion),
		ports:     make(map[string][]models.ChargingPort),
		published: make(map[string]string),
	}
}

func (s *stationRepoStub) Create(ctx context.Context, station *models.Station) error {
	s.seq++
	if station.ID == "" {
		station.ID = "station-stub-" + strconv.Itoa(s.seq)
	}
	s.stations[station.ID] = station
	return nil
}

func (s *stationRepoStub) GetByID(ctx context.Context, id string) (*models.Station, error) {
	if station, ok := s.stations[id]; ok {
		return station, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stationRepoStub) CreateVersion(ctx context.Context, version *models.StationVersion, services []repository.VersionServiceInput) error {
	s.seq++
	if version.ID == "" {
		version.ID = "version-stub-" + strconv.Itoa(s.seq)
	}
	s.versions[version.ID] = version
	for _, svc := range services {
		s.ports[version.ID] = append(s.ports[version.ID], svc.Ports...)
	}
	return nil
}

func (s *stationRepoStub) GetVersion(ctx context.Context, id string) (*models.StationVersion, error) {
	if version, ok := s.versions[id]; ok {
		return version, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stationRepoStub) GetPublishedVersion(ctx context.Context, stationID string) (*models.StationVersion, error) {
	versionID, ok := s.published[stationID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s.versions[versionID], nil
}

func (s *stationRepoStub) ListPorts(ctx context.Context, versionID string) ([]models.ChargingPort, error) {
	return s.ports[versionID], nil
}

func (s *stationRepoStub) UpdateVersionStatus(ctx context.Context, id string, from, to models.WorkflowStatus) error {
	version, ok := s.versions[id]
	if !ok || version.WorkflowStatus != from {
		return sql.ErrNoRows
	}
	version.WorkflowStatus = to
	return nil
}

type auditRecorderStub struct {
	entries []models.AuditLog
}

func (s *auditRecorderStub) Record(ctx context.Context, entry models.AuditLog) {
	s.entries = append(s.entries, entry)
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func providerClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "provider-1", Role: models.RoleProvider}
}

func validVersionPayload() dto.StationVersionPayload {
	kw := 150.0
	return dto.StationVersionPayload{
		Name:         "District 1 Hub",
		Address:      "1 Le Duan",
		Lat:          floatPtr(10.7769),
		Lng:          floatPtr(106.7009),
		Parking:      models.ParkingFree,
		Visibility:   models.VisibilityPublic,
		PublicStatus: models.PublicStatusActive,
		Services: []dto.ServicePayload{{
			ServiceType: models.ServiceTypeCharging,
			Ports:       []dto.PortPayload{{PowerType: models.PowerTypeDC, PowerKw: &kw, PortCount: 4}},
		}},
	}
}

func TestChangeRequestCreateValidation(t *testing.T) {
	svc := NewChangeRequestService(newChangeRequestRepoStub(), newStationRepoStub(), nil, nil, nil)

	stationID := "station-1"
	cases := []struct {
		name    string
		payload dto.CreateChangeRequestPayload
	}{
		{"create with stationId", dto.CreateChangeRequestPayload{
			RequestType: models.ChangeRequestCreateStation, StationID: &stationID, Version: validVersionPayload()}},
		{"update without stationId", dto.CreateChangeRequestPayload{
			RequestType: models.ChangeRequestUpdateStation, Version: validVersionPayload()}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.payload, providerClaims())
			require.Error(t, err)
			require.Equal(t, "VALIDATION_ERROR", appErrors.FromError(err).Code)
		})
	}

	noPorts := validVersionPayload()
	noPorts.Services[0].Ports = nil
	_, err := svc.Create(context.Background(), dto.CreateChangeRequestPayload{
		RequestType: models.ChangeRequestCreateStation, Version: noPorts}, providerClaims())
	require.Error(t, err)

	dcNoKw := validVersionPayload()
	dcNoKw.Services[0].Ports[0].PowerKw = nil
	_, err = svc.Create(context.Background(), dto.CreateChangeRequestPayload{
		RequestType: models.ChangeRequestCreateStation, Version: dcNoKw}, providerClaims())
	require.Error(t, err)
}

func TestChangeRequestCreateAllocatesStation(t *testing.T) {
	stations := newStationRepoStub()
	svc := NewChangeRequestService(newChangeRequestRepoStub(), stations, nil, nil, nil)

	cr, err := svc.Create(context.Background(), dto.CreateChangeRequestPayload{
		RequestType: models.ChangeRequestCreateStation,
		Version:     validVersionPayload(),
	}, providerClaims())
	require.NoError(t, err)
	require.Equal(t, models.ChangeRequestDraft, cr.Status)
	require.NotNil(t, cr.StationID)
	require.Len(t, stations.stations, 1)

	version := stations.versions[cr.StationVersionID]
	require.NotNil(t, version)
	require.Equal(t, 1, version.VersionNo)
	require.Equal(t, models.WorkflowStatusDraft, version.WorkflowStatus)
}

func TestChangeRequestSubmitFreezesRisk(t *testing.T) {
	repo := newChangeRequestRepoStub()
	stations := newStationRepoStub()
	audit := &auditRecorderStub{}
	svc := NewChangeRequestService(repo, stations, nil, audit, nil)

	// Live version the update will be scored against.
	publishedLat := 10.7769
	published := &models.StationVersion{
		ID: "version-live", StationID: "station-1", VersionNo: 1,
		WorkflowStatus: models.WorkflowStatusPublished,
		Lat:            &publishedLat, Lng: floatPtr(106.7009),
		Visibility:   models.VisibilityPublic,
		PublicStatus: models.PublicStatusActive,
	}
	stations.stations["station-1"] = &models.Station{ID: "station-1", ProviderID: "provider-1"}
	stations.versions[published.ID] = published
	stations.published["station-1"] = published.ID

	// Proposed version moves the pin by roughly 111m.
	payload := validVersionPayload()
	payload.Lat = floatPtr(publishedLat + 0.001)
	cr, err := svc.Create(context.Background(), dto.CreateChangeRequestPayload{
		RequestType: models.ChangeRequestUpdateStation,
		StationID:   strPtr("station-1"),
		Version:     payload,
	}, providerClaims())
	require.NoError(t, err)

	submitted, err := svc.Submit(context.Background(), cr.ID, providerClaims())
	require.NoError(t, err)
	require.Equal(t, models.ChangeRequestPending, submitted.Status)
	require.NotNil(t, submitted.RiskScore)
	// GPS move plus the port layout differing from the empty live one.
	require.Equal(t, 80, *submitted.RiskScore)
	require.Contains(t, submitted.RiskReasons, string(models.RiskGPSChanged100M))
	require.Len(t, audit.entries, 1)
	require.Equal(t, models.AuditSubmitChangeRequest, audit.entries[0].Action)
}

func TestChangeRequestSubmitOwnerOnly(t *testing.T) {
	repo := newChangeRequestRepoStub()
	stations := newStationRepoStub()
	svc := NewChangeRequestService(repo, stations, nil, nil, nil)

	cr, err := svc.Create(context.Background(), dto.CreateChangeRequestPayload{
		RequestType: models.ChangeRequestCreateStation,
		Version:     validVersionPayload(),
	}, providerClaims())
	require.NoError(t, err)

	intruder := &models.JWTClaims{UserID: "provider-2", Role: models.RoleProvider}
	_, err = svc.Submit(context.Background(), cr.ID, intruder)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestChangeRequestSubmitRequiresDraft(t *testing.T) {
	repo := newChangeRequestRepoStub()
	stations := newStationRepoStub()
	svc := NewChangeRequestService(repo, stations, nil, nil, nil)

	cr, err := svc.Create(context.Background(), dto.CreateChangeRequestPayload{
		RequestType: models.ChangeRequestCreateStation,
		Version:     validVersionPayload(),
	}, providerClaims())
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), cr.ID, providerClaims())
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), cr.ID, providerClaims())
	require.Equal(t, "INVALID_STATE", appErrors.FromError(err).Code)
}

func TestChangeRequestDecide(t *testing.T) {
	repo := newChangeRequestRepoStub()
	stations := newStationRepoStub()
	audit := &auditRecorderStub{}
	svc := NewChangeRequestService(repo, stations, nil, audit, nil)

	cr, err := svc.Create(context.Background(), dto.CreateChangeRequestPayload{
		RequestType: models.ChangeRequestCreateStation,
		Version:     validVersionPayload(),
	}, providerClaims())
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), cr.ID, providerClaims())
	require.NoError(t, err)

	// Providers cannot decide.
	_, err = svc.Approve(context.Background(), cr.ID, providerClaims())
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	// Rejection demands a reason.
	_, err = svc.Reject(context.Background(), cr.ID, adminClaims(), "  ")
	require.Equal(t, "VALIDATION_ERROR", appErrors.FromError(err).Code)

	approved, err := svc.Approve(context.Background(), cr.ID, adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.ChangeRequestApproved, approved.Status)
	require.NotNil(t, approved.DecidedAt)
	require.Equal(t, models.WorkflowStatusApproved, stations.versions[cr.StationVersionID].WorkflowStatus)

	// A decided request cannot be decided again.
	_, err = svc.Approve(context.Background(), cr.ID, adminClaims())
	require.Equal(t, "INVALID_STATE", appErrors.FromError(err).Code)
}

func TestChangeRequestListScopedByRole(t *testing.T) {
	repo := newChangeRequestRepoStub()
	stations := newStationRepoStub()
	svc := NewChangeRequestService(repo, stations, nil, nil, nil)

	_, err := svc.Create(context.Background(), dto.CreateChangeRequestPayload{
		RequestType: models.ChangeRequestCreateStation,
		Version:     validVersionPayload(),
	}, providerClaims())
	require.NoError(t, err)

	other := &models.JWTClaims{UserID: "provider-2", Role: models.RoleProvider}
	items, total, err := svc.List(context.Background(), models.ChangeRequestFilter{}, other)
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, items)

	_, total, err = svc.List(context.Background(), models.ChangeRequestFilter{}, adminClaims())
	require.NoError(t, err)
	require.Equal(t, 1, total)
}
