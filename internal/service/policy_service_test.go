package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/pkg/config"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type stubPolicyStore struct {
	policy *models.GradingPolicy
	err    error
	calls  int
}

func (s *stubPolicyStore) FindByTenant(context.Context, string) (*models.GradingPolicy, error) {
	s.calls++
	return s.policy, s.err
}

func TestPolicyFromConfig(t *testing.T) {
	policy := PolicyFromConfig(config.GradingConfig{
		ThresholdA:    85,
		ThresholdC:    65,
		PassMark:      60,
		GPADivisor:    20,
		SkipNonFinite: true,
	})

	engine := grading.NewEngine(policy)
	assert.Equal(t, "A", engine.LetterGrade(86))
	assert.Equal(t, "B", engine.LetterGrade(81))
	assert.Equal(t, "C", engine.LetterGrade(66))
	assert.False(t, engine.Passed(59))
	assert.InDelta(t, 4.0, engine.GPA(80), 1e-9)
	assert.Equal(t, 3.5, policy.HonorRollGPA)
	assert.Equal(t, "attendance", policy.AttendanceCategory)
	assert.True(t, policy.SkipNonFinite)
}

func TestPolicyServiceResolveOverride(t *testing.T) {
	pass := 65.0
	store := &stubPolicyStore{policy: &models.GradingPolicy{
		TenantID:         "school-1",
		LetterThresholds: models.LetterThresholds{{Min: 75, Letter: "A"}, {Min: 55, Letter: "B"}},
		PassMark:         &pass,
	}}
	cache := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, nil, true)
	svc := NewPolicyService(store, cache, grading.DefaultPolicy(), time.Minute, nil)

	policy, err := svc.Resolve(context.Background(), "school-1")
	require.NoError(t, err)
	assert.Equal(t, 65.0, policy.PassMark)
	assert.Equal(t, 25.0, policy.GPADivisor)
	require.Len(t, policy.LetterThresholds, 2)

	engine, err := svc.Engine(context.Background(), "school-1")
	require.NoError(t, err)
	assert.Equal(t, "A", engine.LetterGrade(76))
	assert.Equal(t, "F", engine.LetterGrade(54))
	assert.Equal(t, 1, store.calls, "second lookup is served from cache")
}

func TestPolicyServiceResolveWithoutOverride(t *testing.T) {
	store := &stubPolicyStore{}
	svc := NewPolicyService(store, nil, grading.DefaultPolicy(), time.Minute, nil)

	policy, err := svc.Resolve(context.Background(), "school-2")
	require.NoError(t, err)
	assert.Equal(t, grading.DefaultPolicy(), policy)

	policy, err = svc.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, grading.DefaultPolicy(), policy)
	assert.Equal(t, 1, store.calls)
}

func TestPolicyServiceResolveError(t *testing.T) {
	svc := NewPolicyService(&stubPolicyStore{err: sql.ErrConnDone}, nil, grading.DefaultPolicy(), time.Minute, nil)

	_, err := svc.Engine(context.Background(), "school-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestPolicyServiceRejectsNonPositiveOverrides(t *testing.T) {
	zero := 0.0
	negative := -1.0
	cases := map[string]*models.GradingPolicy{
		"pass mark":      {TenantID: "school-1", PassMark: &zero},
		"honor roll gpa": {TenantID: "school-1", HonorRollGPA: &zero},
		"gpa divisor":    {TenantID: "school-1", GPADivisor: &negative},
	}
	for name, override := range cases {
		t.Run(name, func(t *testing.T) {
			cache := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, nil, true)
			svc := NewPolicyService(&stubPolicyStore{policy: override}, cache, grading.DefaultPolicy(), time.Minute, nil)

			_, err := svc.Resolve(context.Background(), "school-1")
			require.Error(t, err)
			assert.ErrorIs(t, err, appErrors.ErrInternal)
			assert.Contains(t, err.Error(), "must be positive")
		})
	}
}

func TestGradingPolicyToPolicyKeepsPositiveOverrides(t *testing.T) {
	pass, honor := 40.0, 3.0
	override := &models.GradingPolicy{PassMark: &pass, HonorRollGPA: &honor}
	require.NoError(t, override.Validate())

	engine := grading.NewEngine(override.ToPolicy(grading.DefaultPolicy()))
	assert.True(t, engine.Passed(40))
	assert.False(t, engine.Passed(39.9))
	assert.True(t, engine.HonorRoll(3.0))
}
