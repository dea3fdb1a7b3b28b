// Package fiscal derives the July-to-June fiscal year label used for quota
// accounting and refund aggregation.
package fiscal

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// StartMonth is the first month of a fiscal year.
const StartMonth = time.July

var labelPattern = regexp.MustCompile(`^(\d{4})-(\d{4})$`)

// Year returns the fiscal year label for date, e.g. "2024-2025" for any date
// between 2024-07-01 and 2025-06-30 inclusive.
func Year(date time.Time) string {
	y := date.Year()
	if date.Month() >= StartMonth {
		return fmt.Sprintf("%d-%d", y, y+1)
	}
	return fmt.Sprintf("%d-%d", y-1, y)
}

// Current returns the fiscal year containing now.
func Current(now time.Time) string {
	return Year(now)
}

// Validate checks that label is a well formed fiscal year.
func Validate(label string) error {
	m := labelPattern.FindStringSubmatch(label)
	if m == nil {
		return fmt.Errorf("fiscal year %q must look like 2024-2025", label)
	}
	start, _ := strconv.Atoi(m[1])
	end, _ := strconv.Atoi(m[2])
	if end != start+1 {
		return fmt.Errorf("fiscal year %q must span consecutive years", label)
	}
	return nil
}

// Bounds returns the inclusive start and exclusive end dates of label.
func Bounds(label string) (time.Time, time.Time, error) {
	if err := Validate(label); err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, _ := strconv.Atoi(label[:4])
	from := time.Date(start, StartMonth, 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(1, 0, 0), nil
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
