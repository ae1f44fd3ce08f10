package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/sma-gradebook-api/internal/grading"
)

// LetterThresholds is the JSONB letter table of a tenant policy.
type LetterThresholds []grading.LetterThreshold

// Value marshals thresholds to JSON for persistence.
func (t LetterThresholds) Value() (driver.Value, error) {
	if t == nil {
		t = LetterThresholds{}
	}
	data, err := json.Marshal([]grading.LetterThreshold(t))
	if err != nil {
		return nil, fmt.Errorf("marshal letter thresholds: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into thresholds.
func (t *LetterThresholds) Scan(value interface{}) error {
	if value == nil {
		*t = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for LetterThresholds", value)
	}
	if len(data) == 0 {
		*t = nil
		return nil
	}
	var out []grading.LetterThreshold
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("unmarshal letter thresholds: %w", err)
	}
	*t = out
	return nil
}

// GradingPolicy stores a per-tenant override of the school-wide policy. Nil fields inherit.
type GradingPolicy struct {
	TenantID         string           `db:"tenant_id" json:"tenant_id"`
	LetterThresholds LetterThresholds `db:"letter_thresholds" json:"letter_thresholds,omitempty"`
	FailingLetter    *string          `db:"failing_letter" json:"failing_letter,omitempty"`
	PassMark         *float64         `db:"pass_mark" json:"pass_mark,omitempty"`
	GPADivisor       *float64         `db:"gpa_divisor" json:"gpa_divisor,omitempty"`
	HonorRollGPA     *float64         `db:"honor_roll_gpa" json:"honor_roll_gpa,omitempty"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// Validate rejects overrides that cannot be applied. Pass mark, GPA divisor and honor
// roll GPA must be positive when set; zero is not a valid override.
func (p *GradingPolicy) Validate() error {
	if p == nil {
		return nil
	}
	checks := []struct {
		name  string
		value *float64
	}{
		{"pass_mark", p.PassMark},
		{"gpa_divisor", p.GPADivisor},
		{"honor_roll_gpa", p.HonorRollGPA},
	}
	for _, c := range checks {
		if c.value != nil && !(*c.value > 0) {
			return fmt.Errorf("grading policy %s: %s must be positive, got %v", p.TenantID, c.name, *c.value)
		}
	}
	return nil
}

// ToPolicy overlays the tenant override on base. Call Validate first; non-positive
// numeric overrides are ignored here.
func (p *GradingPolicy) ToPolicy(base grading.Policy) grading.Policy {
	if p == nil {
		return base
	}
	if len(p.LetterThresholds) > 0 {
		base.LetterThresholds = append([]grading.LetterThreshold(nil), p.LetterThresholds...)
	}
	if p.FailingLetter != nil && *p.FailingLetter != "" {
		base.FailingLetter = *p.FailingLetter
	}
	if p.PassMark != nil && *p.PassMark > 0 {
		base.PassMark = *p.PassMark
	}
	if p.GPADivisor != nil && *p.GPADivisor > 0 {
		base.GPADivisor = *p.GPADivisor
	}
	if p.HonorRollGPA != nil && *p.HonorRollGPA > 0 {
		base.HonorRollGPA = *p.HonorRollGPA
	}
	return base
}
