package parse

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"hourmeter-backend/internal/usage"
)

var rangeRe = regexp.MustCompile(`^\s*([a-zA-Z]+)\s*-\s*([a-zA-Z]+)\s*$`)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// Weekday parses a day name such as "mon" or "Monday".
func Weekday(raw string) (time.Weekday, error) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday: %q", raw)
	}
	return d, nil
}

// Weekdays parses a day list. Items are separated by commas and may be
// single days ("mon"), ranges ("mon-fri", wrapping past sunday as in
// "fri-mon") or the keywords "daily" and "weekdays". The result is
// deduplicated and sorted Sunday first.
func Weekdays(raw string) ([]time.Weekday, error) {
	var seen [usage.DaysPerWeek]bool
	var days []time.Weekday
	add := func(d time.Weekday) {
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}

	for _, item := range strings.Split(raw, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		switch {
		case item == "":
			continue
		case item == "daily":
			for d := time.Sunday; d <= time.Saturday; d++ {
				add(d)
			}
		case item == "weekdays":
			for d := time.Monday; d <= time.Friday; d++ {
				add(d)
			}
		case rangeRe.MatchString(item):
			m := rangeRe.FindStringSubmatch(item)
			from, err := Weekday(m[1])
			if err != nil {
				return nil, err
			}
			to, err := Weekday(m[2])
			if err != nil {
				return nil, err
			}
			for d := from; ; d = (d + 1) % usage.DaysPerWeek {
				add(d)
				if d == to {
					break
				}
			}
		default:
			d, err := Weekday(item)
			if err != nil {
				return nil, err
			}
			add(d)
		}
	}

	if len(days) == 0 {
		return nil, fmt.Errorf("no weekdays in %q", raw)
	}
	usage.SortWeekdays(days)
	return days, nil
}

// FormatWeekdays renders days as a comma separated list of short names.
func FormatWeekdays(days []time.Weekday) string {
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = strings.ToLower(d.String()[:3])
	}
	return strings.Join(names, ",")
}
