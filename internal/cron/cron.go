package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed 5-field cron expression:
// minute hour day-of-month month day-of-week.
// Each field is a bitset of the allowed values.
type Schedule struct {
	minutes  uint64
	hours    uint64
	days     uint64
	months   uint64
	weekdays uint64
}

// Shorthand expressions accepted in place of the 5-field form.
var macros = map[string]string{
	"@hourly":  "0 * * * *",
	"@daily":   "0 0 * * *",
	"@weekly":  "0 0 * * 0",
	"@monthly": "0 0 1 * *",
}

// Parse validates and parses a cron expression. Macros like @daily are
// accepted; day-of-week 7 is an alias for Sunday.
func Parse(expr string) (*Schedule, error) {
	expr = strings.TrimSpace(expr)
	if alias, ok := macros[strings.ToLower(expr)]; ok {
		expr = alias
	}
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron: expected 5 fields, got %d", len(fields))
	}

	s := &Schedule{}
	specs := []struct {
		name string
		dst  *uint64
		min  int
		max  int
	}{
		{"minute", &s.minutes, 0, 59},
		{"hour", &s.hours, 0, 23},
		{"day-of-month", &s.days, 1, 31},
		{"month", &s.months, 1, 12},
		{"day-of-week", &s.weekdays, 0, 7},
	}
	for i, spec := range specs {
		bits, err := parseField(fields[i], spec.min, spec.max)
		if err != nil {
			return nil, fmt.Errorf("cron: %s: %w", spec.name, err)
		}
		*spec.dst = bits
	}

	// Fold the Sunday alias.
	if s.weekdays&(1<<7) != 0 {
		s.weekdays = (s.weekdays &^ (1 << 7)) | 1
	}
	return s, nil
}

func bit(set uint64, v int) bool {
	return set&(1<<uint(v)) != 0
}

// Next returns the first fire time strictly after from, in from's location.
// The zero time is returned if no match exists within four years.
func (s *Schedule) Next(from time.Time) time.Time {
	t := from.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(4, 0, 0)

	for t.Before(limit) {
		switch {
		case !bit(s.months, int(t.Month())):
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
		case !bit(s.days, t.Day()) || !bit(s.weekdays, int(t.Weekday())):
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
		case !bit(s.hours, t.Hour()):
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, t.Location())
		case !bit(s.minutes, t.Minute()):
			t = t.Add(time.Minute)
		default:
			return t
		}
	}
	return time.Time{}
}

// parseField parses one field (lists, ranges, steps, *) into a bitset.
func parseField(field string, min, max int) (uint64, error) {
	var bits uint64
	for _, part := range strings.Split(field, ",") {
		b, err := parsePart(part, min, max)
		if err != nil {
			return 0, err
		}
		bits |= b
	}
	if bits == 0 {
		return 0, fmt.Errorf("empty field")
	}
	return bits, nil
}

func parsePart(part string, min, max int) (uint64, error) {
	step := 1
	if idx := strings.Index(part, "/"); idx >= 0 {
		n, err := strconv.Atoi(part[idx+1:])
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid step %q", part[idx+1:])
		}
		step = n
		part = part[:idx]
	}

	low, high := min, max
	switch {
	case part == "*":
	case strings.Contains(part, "-"):
		lo, hi, _ := strings.Cut(part, "-")
		var err error
		low, err = strconv.Atoi(lo)
		if err != nil {
			return 0, fmt.Errorf("invalid range start %q", lo)
		}
		high, err = strconv.Atoi(hi)
		if err != nil {
			return 0, fmt.Errorf("invalid range end %q", hi)
		}
	default:
		v, err := strconv.Atoi(part)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q", part)
		}
		low = v
		// A bare value with a step means "from v to max".
		if step == 1 {
			high = v
		}
	}

	if low < min || high > max || low > high {
		return 0, fmt.Errorf("range %d-%d out of bounds [%d, %d]", low, high, min, max)
	}

	var bits uint64
	for v := low; v <= high; v += step {
		bits |= 1 << uint(v)
	}
	return bits, nil
}
