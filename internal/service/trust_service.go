package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/evgrid/station-api/internal/models"
	appErrors "github.com/evgrid/station-api/pkg/errors"
)

const (
	trustBaseScore          = 50
	trustVerificationBonus  = 20
	trustIssuePenaltyEach   = -5
	trustIssuePenaltyFloor  = -30
	trustHighRiskPenalty    = -10
	defaultTrustLookback    = 30 * 24 * time.Hour
	defaultHighRiskCutoff   = 60
	trustCacheKeyPrefix     = "trust:"
	defaultTrustCacheExpiry = 5 * time.Minute
)

type trustStore interface {
	Upsert(ctx context.Context, trust *models.StationTrust) error
	Get(ctx context.Context, stationID string) (*models.StationTrust, error)
}

type trustVerificationSource interface {
	LatestReviewedResult(ctx context.Context, stationID string, since time.Time) (models.VerificationResult, error)
}

type trustIssueSource interface {
	CountUnresolved(ctx context.Context, stationID string) (int, error)
}

type trustChangeRequestSource interface {
	HasRecentHighRiskPublish(ctx context.Context, stationID string, since time.Time, minRisk int) (bool, error)
}

type trustCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// TrustService derives a 0-100 confidence score per station from recent
// verification outcomes, unresolved reports, and high-risk publishes.
type TrustService struct {
	store          trustStore
	verifications  trustVerificationSource
	issues         trustIssueSource
	changeRequests trustChangeRequestSource
	cache          trustCache
	logger         *zap.Logger

	lookback    time.Duration
	highRiskMin int
	cacheTTL    time.Duration
}

// TrustServiceOption configures the service.
type TrustServiceOption func(*TrustService)

// WithTrustLookback overrides the recency window.
func WithTrustLookback(d time.Duration) TrustServiceOption {
	return func(s *TrustService) {
		if d > 0 {
			s.lookback = d
		}
	}
}

// WithHighRiskThreshold overrides the risk score that counts as high risk.
func WithHighRiskThreshold(min int) TrustServiceOption {
	return func(s *TrustService) {
		if min > 0 {
			s.highRiskMin = min
		}
	}
}

// WithTrustCache attaches a read cache.
func WithTrustCache(cache trustCache, ttl time.Duration) TrustServiceOption {
	return func(s *TrustService) {
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// NewTrustService constructs the service with defaults.
func NewTrustService(store trustStore, verifications trustVerificationSource, issues trustIssueSource, changeRequests trustChangeRequestSource, logger *zap.Logger, opts ...TrustServiceOption) *TrustService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &TrustService{
		store:          store,
		verifications:  verifications,
		issues:         issues,
		changeRequests: changeRequests,
		logger:         logger,
		lookback:       defaultTrustLookback,
		highRiskMin:    defaultHighRiskCutoff,
		cacheTTL:       defaultTrustCacheExpiry,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Get returns the trust record of a station, preferring the cache.
func (s *TrustService) Get(ctx context.Context, stationID string) (*models.StationTrust, error) {
	if s.cache != nil {
		var cached models.StationTrust
		if err := s.cache.Get(ctx, trustCacheKeyPrefix+stationID, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("trust cache read failed", zap.String("station_id", stationID), zap.Error(err))
		}
	}
	trust, err := s.store.Get(ctx, stationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trust score")
	}
	s.fillCache(ctx, trust)
	return trust, nil
}

// Recompute recalculates and persists the score for a station. It is
// triggered after every verification review, issue transition, and publish.
func (s *TrustService) Recompute(ctx context.Context, stationID string) (*models.StationTrust, error) {
	now := time.Now().UTC()
	since := now.Add(-s.lookback)

	breakdown := models.TrustBreakdown{Base: trustBaseScore}

	result, err := s.verifications.LatestReviewedResult(ctx, stationID, since)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// no recent review, no adjustment
	case err != nil:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load verification history")
	case result == models.VerificationPass:
		breakdown.VerificationBonus = trustVerificationBonus
	case result == models.VerificationFail:
		breakdown.VerificationBonus = -trustVerificationBonus
	}

	unresolved, err := s.issues.CountUnresolved(ctx, stationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unresolved issues")
	}
	penalty := unresolved * trustIssuePenaltyEach
	if penalty < trustIssuePenaltyFloor {
		penalty = trustIssuePenaltyFloor
	}
	breakdown.IssuesPenalty = penalty

	highRisk, err := s.changeRequests.HasRecentHighRiskPublish(ctx, stationID, since, s.highRiskMin)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check high risk publishes")
	}
	if highRisk {
		breakdown.HighRiskPenalty = trustHighRiskPenalty
	}

	trust := &models.StationTrust{
		StationID:    stationID,
		Score:        breakdown.Score(),
		Breakdown:    breakdown.Components(),
		RecomputedAt: now,
	}
	if err := s.store.Upsert(ctx, trust); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist trust score")
	}
	s.fillCache(ctx, trust)
	return trust, nil
}

func (s *TrustService) fillCache(ctx context.Context, trust *models.StationTrust) {
	if s.cache == nil || trust == nil {
		return
	}
	if err := s.cache.Set(ctx, trustCacheKeyPrefix+trust.StationID, trust, s.cacheTTL); err != nil {
		s.logger.Warn("trust cache write failed", zap.String("station_id", trust.StationID), zap.Error(err))
	}
}
