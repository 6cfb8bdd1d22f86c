package usage

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

const (
	// MinDailyHours is the smallest accepted number of operating hours per active day.
	MinDailyHours = 1
	// MaxDailyHours is the largest accepted number of operating hours per active day.
	MaxDailyHours = 24
	// DaysPerWeek is the size of the weekday enumeration.
	DaysPerWeek = 7
)

// ValidationError reports an invalid schedule parameter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid usage schedule: %s %s", e.Field, e.Reason)
}

// Schedule is a machine's weekly operating pattern. It is immutable: a
// changed pattern is expressed by constructing a new Schedule.
type Schedule struct {
	dailyHours float64
	days       [DaysPerWeek]bool
	dayCount   int
}

// New validates the parameters and builds a Schedule.
func New(dailyHours float64, operatingDays []time.Weekday) (Schedule, error) {
	if math.IsNaN(dailyHours) || dailyHours < MinDailyHours || dailyHours > MaxDailyHours {
		return Schedule{}, &ValidationError{
			Field:  "dailyHours",
			Reason: fmt.Sprintf("must be within [%d, %d], got %v", MinDailyHours, MaxDailyHours, dailyHours),
		}
	}
	if len(operatingDays) == 0 {
		return Schedule{}, &ValidationError{Field: "operatingDays", Reason: "must not be empty"}
	}
	if len(operatingDays) > DaysPerWeek {
		return Schedule{}, &ValidationError{
			Field:  "operatingDays",
			Reason: fmt.Sprintf("must have at most %d entries, got %d", DaysPerWeek, len(operatingDays)),
		}
	}

	s := Schedule{dailyHours: dailyHours}
	for _, day := range operatingDays {
		if day < time.Sunday || day > time.Saturday {
			return Schedule{}, &ValidationError{
				Field:  "operatingDays",
				Reason: fmt.Sprintf("contains unknown weekday %d", int(day)),
			}
		}
		if s.days[day] {
			return Schedule{}, &ValidationError{
				Field:  "operatingDays",
				Reason: fmt.Sprintf("contains %s more than once", day),
			}
		}
		s.days[day] = true
		s.dayCount++
	}
	return s, nil
}

// MustNew is like New but panics on invalid input. Intended for tests and fixtures.
func MustNew(dailyHours float64, operatingDays ...time.Weekday) Schedule {
	s, err := New(dailyHours, operatingDays)
	if err != nil {
		panic(err)
	}
	return s
}

// IsZero reports whether s is the zero value, i.e. was never constructed through New.
func (s Schedule) IsZero() bool {
	return s.dayCount == 0
}

// DailyHours returns the hours operated on each active day.
func (s Schedule) DailyHours() float64 {
	return s.dailyHours
}

// OperatingDays returns the active weekdays in Sunday-first order.
func (s Schedule) OperatingDays() []time.Weekday {
	days := make([]time.Weekday, 0, s.dayCount)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.days[d] {
			days = append(days, d)
		}
	}
	return days
}

// WeeklyHours is DailyHours multiplied by the number of operating days.
func (s Schedule) WeeklyHours() float64 {
	return s.dailyHours * float64(s.dayCount)
}

// IsOperatingDay reports whether day is one of the schedule's active weekdays.
func (s Schedule) IsOperatingDay(day time.Weekday) bool {
	if day < time.Sunday || day > time.Saturday {
		return false
	}
	return s.days[day]
}

// ShouldAccumulateToday is the predicate the accrual run asks once per machine.
// The caller supplies today; the schedule never reads the clock.
func (s Schedule) ShouldAccumulateToday(today time.Weekday) bool {
	return s.IsOperatingDay(today)
}

// WeeksToReachHours returns how many whole weeks of scheduled operation are
// needed to move from currentHours to targetHours. It is 0 once the target is reached.
func (s Schedule) WeeksToReachHours(targetHours, currentHours float64) int {
	if targetHours <= currentHours {
		return 0
	}
	weekly := s.WeeklyHours()
	if weekly <= 0 {
		// Only reachable with a zero Schedule.
		return 0
	}
	return int(math.Ceil((targetHours - currentHours) / weekly))
}

// Equal reports whether both schedules run the same hours on the same set of days.
func (s Schedule) Equal(other Schedule) bool {
	return s.dailyHours == other.dailyHours && s.days == other.days
}

// String renders the schedule as "8h x Mon,Tue,Wed".
func (s Schedule) String() string {
	names := make([]string, 0, s.dayCount)
	for _, d := range s.OperatingDays() {
		names = append(names, d.String()[:3])
	}
	return fmt.Sprintf("%gh x %s", s.dailyHours, strings.Join(names, ","))
}

// SortWeekdays orders days Sunday first. It is used by callers that persist
// the day set and want a stable representation.
func SortWeekdays(days []time.Weekday) {
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
}
