package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evgrid/station-api/internal/models"
	"github.com/evgrid/station-api/pkg/jobs"
)

type auditStoreStub struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (s *auditStoreStub) Insert(ctx context.Context, entry *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *auditStoreStub) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]models.AuditLog, len(s.entries))
	copy(items, s.entries)
	return items, len(items), nil
}

func (s *auditStoreStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func TestAuditRecordPersistsAsync(t *testing.T) {
	store := &auditStoreStub{}
	svc := NewAuditService(store, nil, jobs.QueueConfig{Workers: 1})
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Record(context.Background(), models.AuditLog{
		ActorID:    "admin-1",
		ActorRole:  models.RoleAdmin,
		Action:     models.AuditPublishStationVersion,
		EntityType: "station_version",
		EntityID:   "version-2",
		Metadata:   map[string]string{"stationId": "station-1"},
	})

	require.Eventually(t, func() bool {
		return store.count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	entry := store.entries[0]
	require.NotEmpty(t, entry.ID)
	require.False(t, entry.CreatedAt.IsZero())
	require.Equal(t, models.AuditPublishStationVersion, entry.Action)
}

func TestAuditRecordBeforeStartIsSwallowed(t *testing.T) {
	store := &auditStoreStub{}
	svc := NewAuditService(store, nil, jobs.QueueConfig{Workers: 1})

	// Not started: the enqueue fails but must not panic or block.
	svc.Record(context.Background(), models.AuditLog{Action: models.AuditSubmitChangeRequest})
	require.Zero(t, store.count())
}

func TestAuditExportCSV(t *testing.T) {
	store := &auditStoreStub{entries: []models.AuditLog{
		{
			ID:         "log-1",
			ActorID:    "admin-1",
			ActorRole:  models.RoleAdmin,
			Action:     models.AuditApproveChangeRequest,
			EntityType: "change_request",
			EntityID:   "cr-1",
			Metadata:   map[string]string{"riskScore": "80", "riskLevel": "HIGH"},
			CreatedAt:  time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC),
		},
	}}
	svc := NewAuditService(store, nil, jobs.QueueConfig{})

	payload, err := svc.ExportCSV(context.Background(), models.AuditFilter{})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "Timestamp,Actor,Role,Action,Entity Type,Entity ID,Metadata", lines[0])
	require.Contains(t, lines[1], "2026-08-01T09:30:00Z")
	require.Contains(t, lines[1], "APPROVE_CHANGE_REQUEST")
	// Metadata keys render sorted.
	require.Contains(t, lines[1], "riskLevel=HIGH; riskScore=80")
}

func TestFlattenMetadata(t *testing.T) {
	require.Empty(t, flattenMetadata(nil))
	require.Equal(t, "a=1; b=2", flattenMetadata(map[string]string{"b": "2", "a": "1"}))
}
