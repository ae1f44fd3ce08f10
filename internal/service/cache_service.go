package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
}

// CacheService orchestrates cache operations and related metrics.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
// Backend failures are logged and reported as a miss so callers fall through to compute.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) bool {
	if !s.Enabled() {
		return false
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	return true
}

// Set stores the value in cache. Failures are logged, never surfaced.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !s.Enabled() {
		return
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate removes cached values for each pattern.
func (s *CacheService) Invalidate(ctx context.Context, patterns ...string) error {
	if !s.Enabled() {
		return nil
	}
	var errs []error
	for _, pattern := range patterns {
		if _, err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
			s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
			errs = append(errs, fmt.Errorf("invalidate %s: %w", pattern, err))
		}
	}
	return errors.Join(errs...)
}

// Cache key layout. Every key is tenant-prefixed so a tenant can be flushed wholesale.
func performanceKey(tenantID, studentID, subjectID, termID string) string {
	return fmt.Sprintf("gradebook:%s:perf:%s:%s:%s", tenantID, studentID, subjectID, termOrAll(termID))
}

func overviewKey(tenantID, studentID, termID string) string {
	return fmt.Sprintf("gradebook:%s:overview:%s:%s", tenantID, studentID, termOrAll(termID))
}

func classKey(tenantID, classID, subjectID, termID string) string {
	return fmt.Sprintf("gradebook:%s:class:%s:%s:%s", tenantID, classID, subjectID, termID)
}

func reportCardKey(tenantID, studentID, academicYear string) string {
	return fmt.Sprintf("gradebook:%s:reportcard:%s:%s", tenantID, studentID, academicYear)
}

func policyKey(tenantID string) string {
	return fmt.Sprintf("gradebook:%s:policy", tenantID)
}

// studentPatterns lists the cache entries derived from one student's results.
func studentPatterns(tenantID, studentID, classID string) []string {
	class := "*"
	if classID != "" {
		class = classID
	}
	return []string{
		fmt.Sprintf("gradebook:%s:perf:%s:*", tenantID, studentID),
		fmt.Sprintf("gradebook:%s:overview:%s:*", tenantID, studentID),
		fmt.Sprintf("gradebook:%s:reportcard:%s:*", tenantID, studentID),
		fmt.Sprintf("gradebook:%s:class:%s:*", tenantID, class),
	}
}

// computedPatterns lists every computed entry of a tenant, leaving the policy entry alone.
func computedPatterns(tenantID string) []string {
	return []string{
		fmt.Sprintf("gradebook:%s:perf:*", tenantID),
		fmt.Sprintf("gradebook:%s:overview:*", tenantID),
		fmt.Sprintf("gradebook:%s:reportcard:*", tenantID),
		fmt.Sprintf("gradebook:%s:class:*", tenantID),
	}
}

func termOrAll(termID string) string {
	if termID == "" {
		return "all"
	}
	return termID
}
