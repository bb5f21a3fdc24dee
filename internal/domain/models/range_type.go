package models

import "fmt"

// RangeType is the shape of a requested chart window.
type RangeType string

const (
	RangeToday  RangeType = "today"
	RangeDay1   RangeType = "day1"
	RangeWeek1  RangeType = "week1"
	RangeWeek2  RangeType = "week2"
	RangeMonth1 RangeType = "month1"
	RangeMonth3 RangeType = "month3"
	RangeMonth6 RangeType = "month6"
	RangeYear1  RangeType = "year1"
	RangeYear2  RangeType = "year2"
)

// AllRangeTypes lists every supported range type, shortest first.
func AllRangeTypes() []RangeType {
	return []RangeType{
		RangeToday, RangeDay1, RangeWeek1, RangeWeek2,
		RangeMonth1, RangeMonth3, RangeMonth6, RangeYear1, RangeYear2,
	}
}

// IsValidRangeType returns true if rt is a supported range type.
func IsValidRangeType(rt RangeType) bool {
	switch rt {
	case RangeToday, RangeDay1, RangeWeek1, RangeWeek2,
		RangeMonth1, RangeMonth3, RangeMonth6, RangeYear1, RangeYear2:
		return true
	default:
		return false
	}
}

// ParseRangeType converts a raw string into a supported range type.
func ParseRangeType(s string) (RangeType, error) {
	rt := RangeType(s)
	if !IsValidRangeType(rt) {
		return "", fmt.Errorf("unsupported range type: %q", s)
	}
	return rt, nil
}
