package server

import (
	"strconv"
	"strings"
	"time"
)

// queryFlag parses an optional boolean filter. Blank means unset.
func queryFlag(field, raw string) (*bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, newValidationError(field, "invalid_"+field, "must be true or false")
	}
	return &v, nil
}

// queryInstant accepts RFC3339 or YYYY-MM-DD. Dates are UTC; an upper bound
// covers the whole day.
func queryInstant(field, raw string, upper bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	day, err := time.ParseInLocation(time.DateOnly, raw, time.UTC)
	if err != nil {
		return nil, newValidationError(field, "invalid_"+field, "must be RFC3339 or YYYY-MM-DD")
	}
	if upper {
		day = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &day, nil
}

// queryWindow parses a from/to pair and rejects inverted windows.
func queryWindow(fromField, fromRaw, toField, toRaw string) (*time.Time, *time.Time, error) {
	from, err := queryInstant(fromField, fromRaw, false)
	if err != nil {
		return nil, nil, err
	}
	to, err := queryInstant(toField, toRaw, true)
	if err != nil {
		return nil, nil, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, newValidationError(toField, "invalid_time_range", toField+" must not be before "+fromField)
	}
	return from, to, nil
}
