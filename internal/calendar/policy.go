package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/carservice/autotest/internal/autoerr"
	"github.com/carservice/autotest/internal/config"
)

// Rule names reported by Policy.Explain.
const (
	RuleWorkingHours = "working_hours"
	RuleWorkingDay   = "working_day"
	RuleSameDay      = "same_day_buffer"
	RuleMarkers      = "availability_markers"
	RuleConflict     = "conflicting_event"
)

// unavailableMarkers disqualify a slot lane when found anywhere in its class attribute.
var unavailableMarkers = []string{"disabled", "fc-non-business", "fc-past", "fc-timegrid-slot-minor"}

// Rules are the business constants of the policy. Clock values are offsets from midnight.
type Rules struct {
	WorkStart     time.Duration
	WorkEnd       time.Duration
	BookingBuffer time.Duration
	SameDayCutoff time.Duration
	ConflictMode  string
}

// DefaultRules: 11:00-18:00, 30 minute same-day buffer, nothing after noon today.
func DefaultRules() Rules {
	return Rules{
		WorkStart:     11 * time.Hour,
		WorkEnd:       18 * time.Hour,
		BookingBuffer: 30 * time.Minute,
		SameDayCutoff: 12 * time.Hour,
		ConflictMode:  config.ConflictModeGlobal,
	}
}

// RulesFromConfig converts the scheduling section of the configuration.
func RulesFromConfig(cfg config.SchedulingConfig) (Rules, error) {
	if err := cfg.Validate(); err != nil {
		return Rules{}, err
	}
	var (
		r   = Rules{BookingBuffer: cfg.BookingBuffer, ConflictMode: cfg.ConflictMode}
		err error
	)
	if r.WorkStart, err = config.ParseClock(cfg.WorkStart); err != nil {
		return Rules{}, err
	}
	if r.WorkEnd, err = config.ParseClock(cfg.WorkEnd); err != nil {
		return Rules{}, err
	}
	if r.SameDayCutoff, err = config.ParseClock(cfg.SameDayCutoff); err != nil {
		return Rules{}, err
	}
	return r, nil
}

// SlotFacts are the observations the policy judges. The search gathers them;
// the policy never touches the browser.
type SlotFacts struct {
	Time      time.Duration
	Displayed bool
	Enabled   bool
	Class     string
	// ReadErr is set when any marker could not be read.
	ReadErr error
	// Conflict is set when an existing event blocks this slot.
	Conflict bool
}

// Policy decides slot eligibility.
type Policy struct {
	Rules Rules
}

func NewPolicy(r Rules) Policy { return Policy{Rules: r} }

// IsEligible is the conjunction of every rule.
func (p Policy) IsEligible(f SlotFacts, day DayInfo, now time.Time) bool {
	return p.Explain(f, day, now) == ""
}

// Explain returns the first rule the slot fails, or "" when eligible.
func (p Policy) Explain(f SlotFacts, day DayInfo, now time.Time) string {
	rule, _ := p.evaluate(f, day, now)
	return rule
}

// CheckForced returns a SchedulingConstraintError for an ineligible slot.
func (p Policy) CheckForced(f SlotFacts, day DayInfo, now time.Time) error {
	rule, details := p.evaluate(f, day, now)
	if rule == "" {
		return nil
	}
	return &autoerr.SchedulingConstraintError{Constraint: rule, Details: details}
}

func (p Policy) evaluate(f SlotFacts, day DayInfo, now time.Time) (string, string) {
	r := p.Rules
	if f.Time < r.WorkStart || f.Time > r.WorkEnd {
		return RuleWorkingHours, fmt.Sprintf("%s outside %s-%s", clock(f.Time), clock(r.WorkStart), clock(r.WorkEnd))
	}
	if !day.Type.Workday() {
		return RuleWorkingDay, day.DayName() + " is not a working day"
	}
	if day.IsToday {
		earliest := timeOfDay(now) + r.BookingBuffer
		// No wrap past midnight: a late clock leaves nothing bookable today.
		if f.Time < earliest {
			return RuleSameDay, fmt.Sprintf("%s is before %s", clock(f.Time), clock(earliest))
		}
		if f.Time > r.SameDayCutoff {
			return RuleSameDay, fmt.Sprintf("%s is after the same-day cutoff %s", clock(f.Time), clock(r.SameDayCutoff))
		}
	}
	if f.ReadErr != nil {
		return RuleMarkers, "unreadable: " + f.ReadErr.Error()
	}
	if !f.Displayed || !f.Enabled {
		return RuleMarkers, fmt.Sprintf("displayed=%t enabled=%t", f.Displayed, f.Enabled)
	}
	for _, m := range unavailableMarkers {
		if strings.Contains(f.Class, m) {
			return RuleMarkers, "marked " + m
		}
	}
	if f.Conflict {
		return RuleConflict, "an existing event blocks " + clock(f.Time)
	}
	return "", ""
}

// ParseSlotTime parses a data-time value ("HH:MM:SS" or "HH:MM").
func ParseSlotTime(s string) (time.Duration, error) {
	return config.ParseClock(s)
}

func timeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}

func clock(d time.Duration) string {
	d = d.Truncate(time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}
