package grading

import "sort"

// Policy consolidates the thresholds used wherever grades are displayed.
type Policy struct {
	LetterThresholds   []LetterThreshold `json:"letter_thresholds"`
	FailingLetter      string            `json:"failing_letter"`
	PassMark           float64           `json:"pass_mark"`
	GPADivisor         float64           `json:"gpa_divisor"`
	HonorRollGPA       float64           `json:"honor_roll_gpa"`
	AttendanceCategory string            `json:"attendance_category"`
	// SkipNonFinite drops NaN/Inf percentages before aggregation.
	SkipNonFinite bool `json:"skip_non_finite"`
}

// DefaultPolicy returns the stock A/B/C/D/F table with a 50% pass mark.
func DefaultPolicy() Policy {
	return Policy{
		LetterThresholds: []LetterThreshold{
			{Min: 90, Letter: "A"},
			{Min: 80, Letter: "B"},
			{Min: 70, Letter: "C"},
			{Min: 60, Letter: "D"},
		},
		FailingLetter:      "F",
		PassMark:           50,
		GPADivisor:         25,
		HonorRollGPA:       3.5,
		AttendanceCategory: "attendance",
	}
}

// normalized fills zero values from DefaultPolicy and orders thresholds descending.
func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if len(p.LetterThresholds) == 0 {
		p.LetterThresholds = def.LetterThresholds
	} else {
		thresholds := make([]LetterThreshold, len(p.LetterThresholds))
		copy(thresholds, p.LetterThresholds)
		sort.SliceStable(thresholds, func(i, j int) bool { return thresholds[i].Min > thresholds[j].Min })
		p.LetterThresholds = thresholds
	}
	if p.FailingLetter == "" {
		p.FailingLetter = def.FailingLetter
	}
	if p.PassMark == 0 {
		p.PassMark = def.PassMark
	}
	if p.GPADivisor <= 0 {
		p.GPADivisor = def.GPADivisor
	}
	if p.HonorRollGPA == 0 {
		p.HonorRollGPA = def.HonorRollGPA
	}
	if p.AttendanceCategory == "" {
		p.AttendanceCategory = def.AttendanceCategory
	}
	return p
}
