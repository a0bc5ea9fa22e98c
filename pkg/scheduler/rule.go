package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

var ErrInvalidRule = errors.New("invalid schedule rule")

var weekdays = map[string]time.Weekday{
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
	"sunday": time.Sunday, "sun": time.Sunday,
}

// Rule fires at a wall-clock time of day in Location, every day or on one weekday.
type Rule struct {
	Hour     int
	Minute   int
	Weekly   bool
	Weekday  time.Weekday
	Location *time.Location
}

func Daily(hour, minute int, loc *time.Location) Rule {
	return Rule{Hour: hour, Minute: minute, Location: loc}
}

func Weekly(day time.Weekday, hour, minute int, loc *time.Location) Rule {
	return Rule{Hour: hour, Minute: minute, Weekly: true, Weekday: day, Location: loc}
}

// ParseRule builds a rule from "HH:MM", an optional weekday name
// (empty for a daily rule) and an IANA timezone name.
func ParseRule(clock, weekday, timezone string) (Rule, error) {
	hour, minute, err := parseClock(clock)
	if err != nil {
		return Rule{}, err
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: timezone %q: %v", ErrInvalidRule, timezone, err)
	}

	if strings.TrimSpace(weekday) == "" {
		return Daily(hour, minute, loc), nil
	}
	day, ok := weekdays[strings.ToLower(strings.TrimSpace(weekday))]
	if !ok {
		return Rule{}, fmt.Errorf("%w: unknown weekday %q", ErrInvalidRule, weekday)
	}
	return Weekly(day, hour, minute, loc), nil
}

func parseClock(s string) (int, int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: time of day %q, want HH:MM", ErrInvalidRule, s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: hour in %q", ErrInvalidRule, s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 || len(mm) != 2 {
		return 0, 0, fmt.Errorf("%w: minute in %q", ErrInvalidRule, s)
	}
	return hour, minute, nil
}

func (r Rule) Validate() error {
	switch {
	case r.Location == nil:
		return fmt.Errorf("%w: no location", ErrInvalidRule)
	case r.Hour < 0 || r.Hour > 23 || r.Minute < 0 || r.Minute > 59:
		return fmt.Errorf("%w: %02d:%02d", ErrInvalidRule, r.Hour, r.Minute)
	case r.Weekly && (r.Weekday < time.Sunday || r.Weekday > time.Saturday):
		return fmt.Errorf("%w: weekday %d", ErrInvalidRule, r.Weekday)
	}
	return nil
}

func (r Rule) String() string {
	if r.Weekly {
		return fmt.Sprintf("%s %02d:%02d %s", r.Weekday, r.Hour, r.Minute, r.Location)
	}
	return fmt.Sprintf("daily %02d:%02d %s", r.Hour, r.Minute, r.Location)
}

// NextFireAfter returns the earliest instant strictly after ref that matches
// the rule. It is a pure function of the rule, the zone database and ref.
func (r Rule) NextFireAfter(ref time.Time) time.Time {
	local := ref.In(r.Location)
	y, m, d := local.Date()

	// a day of slack on each side covers zones whose transitions cross midnight
	for i := -1; i <= 8; i++ {
		day := time.Date(y, m, d+i, 12, 0, 0, 0, time.UTC)
		if r.Weekly && day.Weekday() != r.Weekday {
			continue
		}
		at := resolveLocal(day.Year(), day.Month(), day.Day(), r.Hour, r.Minute, r.Location)
		if at.After(ref) {
			return at
		}
	}

	// unreachable for a valid rule: a matching weekday occurs every 7 days
	return time.Time{}
}

// resolveLocal maps a wall-clock time to exactly one instant. A time skipped
// by a forward transition is read with the offset in force before it, so
// 02:30 in a 02:00->03:00 gap becomes 03:30. A time that occurs twice
// resolves to the later occurrence.
func resolveLocal(y int, mo time.Month, d, h, mi int, loc *time.Location) time.Time {
	wall := time.Date(y, mo, d, h, mi, 0, 0, time.UTC)

	before := offsetAt(wall.Add(-30*time.Hour), loc)
	after := offsetAt(wall.Add(30*time.Hour), loc)

	var (
		found bool
		best  time.Time
	)
	for _, off := range []int{before, after} {
		at := wall.Add(-time.Duration(off) * time.Second)
		if offsetAt(at, loc) != off {
			continue
		}
		if !found || at.After(best) {
			best, found = at, true
		}
	}
	if !found {
		best = wall.Add(-time.Duration(before) * time.Second)
	}
	return best.In(loc)
}

func offsetAt(t time.Time, loc *time.Location) int {
	_, off := t.In(loc).Zone()
	return off
}
