package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// field is one cron field: the set of allowed values in [lo, hi].
type field struct {
	any     bool
	allowed map[int]bool
}

func (f field) match(v int) bool { return f.any || f.allowed[v] }

// Schedule is a parsed five-field cron expression: minute, hour, day of
// month, month, day of week. Each field accepts "*", "*/n", "a", "a-b",
// "a-b/n" and comma lists of those.
type Schedule struct {
	minute, hour, dom, month, dow field
}

var fieldRanges = [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}

func ParseSchedule(expr string) (Schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return Schedule{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(parts))
	}
	var fs [5]field
	for i, p := range parts {
		f, err := parseField(p, fieldRanges[i][0], fieldRanges[i][1])
		if err != nil {
			return Schedule{}, fmt.Errorf("field %d %q: %w", i+1, p, err)
		}
		fs[i] = f
	}
	return Schedule{minute: fs[0], hour: fs[1], dom: fs[2], month: fs[3], dow: fs[4]}, nil
}

func parseField(s string, lo, hi int) (field, error) {
	if s == "*" {
		return field{any: true}, nil
	}
	f := field{allowed: make(map[int]bool)}
	for _, item := range strings.Split(s, ",") {
		rng, stepText, hasStep := strings.Cut(item, "/")
		step := 1
		if hasStep {
			n, err := strconv.Atoi(stepText)
			if err != nil || n <= 0 {
				return field{}, fmt.Errorf("bad step %q", stepText)
			}
			step = n
		}
		from, to := lo, hi
		if rng != "*" {
			a, b, isRange := strings.Cut(rng, "-")
			var err error
			if from, err = strconv.Atoi(a); err != nil {
				return field{}, fmt.Errorf("bad value %q", a)
			}
			to = from
			if isRange {
				if to, err = strconv.Atoi(b); err != nil {
					return field{}, fmt.Errorf("bad value %q", b)
				}
			} else if hasStep {
				to = hi
			}
		}
		if from < lo || to > hi || from > to {
			return field{}, fmt.Errorf("%q outside %d-%d", item, lo, hi)
		}
		for v := from; v <= to; v += step {
			f.allowed[v] = true
		}
	}
	return f, nil
}

func (s Schedule) matches(t time.Time) bool {
	return s.minute.match(t.Minute()) &&
		s.hour.match(t.Hour()) &&
		s.dom.match(t.Day()) &&
		s.month.match(int(t.Month())) &&
		s.dow.match(int(t.Weekday()))
}

// Next returns the first minute strictly after after that matches,
// searching up to one year ahead.
func (s Schedule) Next(after time.Time) (time.Time, error) {
	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)
	for candidate.Before(limit) {
		if s.matches(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching time within one year")
}
