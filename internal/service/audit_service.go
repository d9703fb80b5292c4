package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evgrid/station-api/internal/models"
	appErrors "github.com/evgrid/station-api/pkg/errors"
	"github.com/evgrid/station-api/pkg/export"
	"github.com/evgrid/station-api/pkg/jobs"
)

type auditStore interface {
	Insert(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error)
}

// AuditService appends ledger entries asynchronously through a worker queue
// and serves reads and exports. Recording never blocks or fails the calling
// workflow.
type AuditService struct {
	store  auditStore
	queue  *jobs.Queue
	csv    *export.CSVExporter
	logger *zap.Logger
}

// NewAuditService constructs the service and its backing queue. Call Start
// before recording and Stop on shutdown.
func NewAuditService(store auditStore, logger *zap.Logger, cfg jobs.QueueConfig) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AuditService{
		store:  store,
		csv:    export.NewCSVExporter(),
		logger: logger,
	}
	cfg.Logger = logger
	svc.queue = jobs.NewQueue("audit", svc.handleJob, cfg)
	return svc
}

// Start launches the queue workers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue workers.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// Record enqueues one ledger entry. Failures are logged and swallowed.
func (s *AuditService) Record(ctx context.Context, entry models.AuditLog) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      entry.ID,
		Type:    entry.Action,
		Payload: entry,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue audit entry",
			zap.String("action", entry.Action),
			zap.String("entity_id", entry.EntityID),
			zap.Error(err))
	}
}

func (s *AuditService) handleJob(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(models.AuditLog)
	if !ok {
		s.logger.Error("unexpected audit job payload", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.store.Insert(ctx, &entry); err != nil {
		return fmt.Errorf("persist audit entry %s: %w", entry.ID, err)
	}
	return nil
}

// List returns ledger entries for the admin console.
func (s *AuditService) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error) {
	items, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs")
	}
	return items, total, nil
}

// ExportCSV renders matching ledger entries as a CSV document.
func (s *AuditService) ExportCSV(ctx context.Context, filter models.AuditFilter) ([]byte, error) {
	filter.Page = 1
	if filter.PageSize <= 0 {
		filter.PageSize = 500
	}
	items, _, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit logs for export")
	}
	dataset := export.Dataset{
		Headers: []string{"Timestamp", "Actor", "Role", "Action", "Entity Type", "Entity ID", "Metadata"},
		Rows:    make([]map[string]string, 0, len(items)),
	}
	for _, entry := range items {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Timestamp":   entry.CreatedAt.UTC().Format(time.RFC3339),
			"Actor":       entry.ActorID,
			"Role":        string(entry.ActorRole),
			"Action":      entry.Action,
			"Entity Type": entry.EntityType,
			"Entity ID":   entry.EntityID,
			"Metadata":    flattenMetadata(entry.Metadata),
		})
	}
	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render audit export")
	}
	return payload, nil
}

func flattenMetadata(metadata map[string]string) string {
	if len(metadata) == 0 {
		return ""
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+metadata[k])
	}
	return strings.Join(parts, "; ")
}
