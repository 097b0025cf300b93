package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DayRule is one weekday's recurring working window and slot granularity.
type DayRule struct {
	Weekday     time.Weekday
	Start       TimeOfDay
	End         TimeOfDay
	SlotMinutes int
}

// Schedule is a practitioner's weekly recurring availability. A practitioner
// has at most one schedule, and updates replace it wholesale.
type Schedule struct {
	PractitionerID uuid.UUID
	Rules          []DayRule
	UpdatedAt      time.Time
}

// RuleFor returns the first rule matching the weekday, in stored order.
// A schedule may carry several rules for the same weekday; the first one
// wins and the rest are ignored.
func (s *Schedule) RuleFor(day time.Weekday) (DayRule, bool) {
	for _, r := range s.Rules {
		if r.Weekday == day {
			return r, true
		}
	}
	return DayRule{}, false
}

var weekdaysByName = map[string]time.Weekday{
	"Sunday":    time.Sunday,
	"Monday":    time.Monday,
	"Tuesday":   time.Tuesday,
	"Wednesday": time.Wednesday,
	"Thursday":  time.Thursday,
	"Friday":    time.Friday,
	"Saturday":  time.Saturday,
}

func ParseWeekday(name string) (time.Weekday, error) {
	if d, ok := weekdaysByName[name]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}

// FieldViolation points at one invalid field of one submitted rule.
type FieldViolation struct {
	Rule    int    `json:"rule"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates every violation found in a schedule write,
// so the caller can fix all of them in one round trip.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("rule %d: %s %s", v.Rule, v.Field, v.Message))
	}
	return "invalid schedule: " + strings.Join(parts, "; ")
}

// ValidateRules checks every rule and returns a *ValidationError listing all
// violations, or nil if the rules are acceptable.
func ValidateRules(rules []DayRule) error {
	var violations []FieldViolation

	if len(rules) == 0 {
		violations = append(violations, FieldViolation{
			Rule: -1, Field: "rules", Message: "at least one availability rule is required",
		})
	}

	for i, r := range rules {
		if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
			violations = append(violations, FieldViolation{
				Rule: i, Field: "day", Message: "must be a weekday",
			})
		}
		if r.End <= r.Start {
			violations = append(violations, FieldViolation{
				Rule: i, Field: "end_time", Message: "must be after start_time",
			})
		}
		if r.SlotMinutes <= 0 {
			violations = append(violations, FieldViolation{
				Rule: i, Field: "slot_minutes", Message: "must be positive",
			})
		}
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}
