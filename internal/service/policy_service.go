package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/pkg/config"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type policyStore interface {
	FindByTenant(ctx context.Context, tenantID string) (*models.GradingPolicy, error)
}

// PolicyService resolves the grading policy in effect for a tenant.
type PolicyService struct {
	store  policyStore
	cache  *CacheService
	base   grading.Policy
	ttl    time.Duration
	logger *zap.Logger
}

// PolicyFromConfig builds the school-wide default policy.
func PolicyFromConfig(cfg config.GradingConfig) grading.Policy {
	policy := grading.DefaultPolicy()
	thresholds := []grading.LetterThreshold{
		{Min: cfg.ThresholdA, Letter: "A"},
		{Min: cfg.ThresholdB, Letter: "B"},
		{Min: cfg.ThresholdC, Letter: "C"},
		{Min: cfg.ThresholdD, Letter: "D"},
	}
	for i, t := range thresholds {
		if t.Min > 0 {
			policy.LetterThresholds[i] = t
		}
	}
	if cfg.PassMark > 0 {
		policy.PassMark = cfg.PassMark
	}
	if cfg.GPADivisor > 0 {
		policy.GPADivisor = cfg.GPADivisor
	}
	if cfg.HonorRollGPA > 0 {
		policy.HonorRollGPA = cfg.HonorRollGPA
	}
	if cfg.AttendanceCategory != "" {
		policy.AttendanceCategory = cfg.AttendanceCategory
	}
	policy.SkipNonFinite = cfg.SkipNonFinite
	return policy
}

// NewPolicyService constructs a PolicyService. A nil store serves base to every tenant.
func NewPolicyService(store policyStore, cache *CacheService, base grading.Policy, ttl time.Duration, logger *zap.Logger) *PolicyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyService{store: store, cache: cache, base: base, ttl: ttl, logger: logger}
}

// Resolve returns base overlaid with the tenant's stored override.
func (s *PolicyService) Resolve(ctx context.Context, tenantID string) (grading.Policy, error) {
	if s.store == nil || tenantID == "" {
		return s.base, nil
	}
	key := policyKey(tenantID)
	var cached grading.Policy
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}
	override, err := s.store.FindByTenant(ctx, tenantID)
	if err != nil {
		return grading.Policy{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grading policy")
	}
	if err := override.Validate(); err != nil {
		s.logger.Warn("rejecting grading policy override", zap.String("tenant_id", tenantID), zap.Error(err))
		return grading.Policy{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "invalid grading policy override")
	}
	policy := override.ToPolicy(s.base)
	s.cache.Set(ctx, key, policy, s.ttl)
	return policy, nil
}

// Engine returns an engine configured for the tenant.
func (s *PolicyService) Engine(ctx context.Context, tenantID string) (*grading.Engine, error) {
	policy, err := s.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return grading.NewEngine(policy), nil
}
