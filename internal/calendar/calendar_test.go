package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/carservice/autotest/internal/autoerr"
	"github.com/carservice/autotest/internal/browser/snapshot"
	"github.com/carservice/autotest/internal/config"
	"github.com/carservice/autotest/internal/mocks"
	"github.com/carservice/autotest/internal/selectors"
)

// -- fixtures --

type dayCol struct {
	class  string
	date   string
	events []string
}

func lane(t string, extra ...string) string {
	class := strings.Join(append([]string{"fc-timegrid-slot", "fc-timegrid-slot-lane"}, extra...), " ")
	return fmt.Sprintf(`<tr><td class="fc-timegrid-slot fc-timegrid-slot-label" data-time="%s">%s</td><td class="%s" data-time="%s"></td></tr>`,
		t, t[:5], class, t)
}

func event(timeRange, plate string) string {
	return fmt.Sprintf(`<div class="fc-timegrid-event-harness" style="inset: 0px 0%% -60px"><div class="fc-event fc-timegrid-event" style="top: 0px; bottom: -60px"><div class="fc-event-main"><div class="fc-event-time">%s</div><div class="fc-event-title"><span>%s</span></div></div></div></div>`,
		timeRange, plate)
}

func day(kind, date string, today bool, events ...string) dayCol {
	class := "fc-timegrid-col fc-day fc-day-" + kind
	if today {
		class += " fc-day-today"
	} else {
		class += " fc-day-future"
	}
	return dayCol{class: class, date: date, events: events}
}

func week(lanes []string, days ...dayCol) *snapshot.Page {
	var b strings.Builder
	b.WriteString(`<html><body><div class="fc-timegrid"><div class="fc-timegrid-body"><table class="fc-timegrid-slots"><tbody>`)
	for _, l := range lanes {
		b.WriteString(l)
	}
	b.WriteString(`</tbody></table><table class="fc-timegrid-cols"><tbody><tr>`)
	for _, d := range days {
		fmt.Fprintf(&b, `<td class="%s" data-date="%s"><div class="fc-timegrid-col-frame"><div class="fc-timegrid-col-events">%s</div></div></td>`,
			d.class, d.date, strings.Join(d.events, ""))
	}
	b.WriteString(`</tr></tbody></table></div></div></body></html>`)
	return snapshot.MustParseString(b.String())
}

// Monday 2024-06-03, 10:50.
var mondayMorning = time.Date(2024, 6, 3, 10, 50, 0, 0, time.UTC)

func newFinder(t *testing.T, p Port, rules Rules) *Finder {
	return NewFinder(p, rules, zaptest.NewLogger(t), WithClock(func() time.Time { return mondayMorning }), WithSettle(0))
}

func overlapRules() Rules {
	r := DefaultRules()
	r.ConflictMode = config.ConflictModeOverlap
	return r
}

// -- model --

func TestExtractDayInfo(t *testing.T) {
	ctx := context.Background()
	p := week(nil, day("sat", "2024-06-01", false), day("mon", "2024-06-03", true))
	cols, err := p.FindAll(ctx, selectors.DayColumns)
	require.NoError(t, err)
	require.Len(t, cols, 2)

	logger := zaptest.NewLogger(t)
	sat := ExtractDayInfo(ctx, p, cols[0], 0, logger)
	assert.Equal(t, DayInfo{ColumnIndex: 0, Type: Saturday, DateLabel: "2024-06-01"}, sat)
	assert.Equal(t, "Saturday", sat.DayName())

	mon := ExtractDayInfo(ctx, p, cols[1], 1, logger)
	assert.Equal(t, DayInfo{ColumnIndex: 1, Type: Monday, DateLabel: "2024-06-03", IsToday: true}, mon)
}

func TestExtractDayInfo_ReadFailureIsUnknown(t *testing.T) {
	port := new(mocks.MockPort)
	col := mocks.Element("col")
	port.On("Attribute", mock.Anything, col, "class").Return("", false, errors.New("stale element"))

	info := ExtractDayInfo(context.Background(), port, col, 4, zaptest.NewLogger(t))
	assert.Equal(t, DayInfo{ColumnIndex: 4, Type: Unknown}, info)
	assert.Equal(t, "Unknown", info.DayName())
	assert.False(t, info.Type.Workday())
}

func TestDayType(t *testing.T) {
	for _, d := range []DayType{Monday, Tuesday, Wednesday, Thursday, Friday} {
		assert.True(t, d.Workday(), d.String())
		assert.False(t, d.Weekend(), d.String())
	}
	assert.True(t, Saturday.Weekend())
	assert.True(t, Sunday.Weekend())
	assert.False(t, Unknown.Workday())
	assert.Equal(t, "unknown", DayType(42).String())
}

func TestListBookableSlots(t *testing.T) {
	p := week([]string{
		lane("10:30:00", "fc-timegrid-slot-minor"),
		lane("11:00:00"),
		lane("11:00:00", "duplicate"),
		lane("11:30:00"),
	}, day("mon", "2024-06-03", false))

	cells, err := ListBookableSlots(context.Background(), p, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Len(t, cells, 2)
	assert.Equal(t, "11:00:00", cells[0].Time)
	assert.Equal(t, "11:30:00", cells[1].Time)

	class, _, _ := p.Attribute(context.Background(), cells[0].Element, "class")
	assert.NotContains(t, class, "duplicate", "first occurrence wins")
}

// -- policy --

func at(h, m int) time.Duration { return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute }

func TestPolicy(t *testing.T) {
	p := NewPolicy(DefaultRules())
	monday := DayInfo{Type: Monday}
	today := DayInfo{Type: Monday, IsToday: true}
	ok := func(tm time.Duration) SlotFacts {
		return SlotFacts{Time: tm, Displayed: true, Enabled: true, Class: "fc-timegrid-slot fc-timegrid-slot-lane"}
	}

	cases := []struct {
		name  string
		facts SlotFacts
		day   DayInfo
		now   time.Time
		rule  string
	}{
		{"opening time inclusive", ok(at(11, 0)), monday, mondayMorning, ""},
		{"closing time inclusive", ok(at(18, 0)), monday, mondayMorning, ""},
		{"before opening", ok(at(10, 59)), monday, mondayMorning, RuleWorkingHours},
		{"after closing", ok(at(18, 30)), monday, mondayMorning, RuleWorkingHours},
		{"saturday", ok(at(14, 0)), DayInfo{Type: Saturday}, mondayMorning, RuleWorkingDay},
		{"sunday", ok(at(14, 0)), DayInfo{Type: Sunday}, mondayMorning, RuleWorkingDay},
		{"unknown day", ok(at(14, 0)), DayInfo{Type: Unknown}, mondayMorning, RuleWorkingDay},
		{"today inside buffer", ok(at(11, 15)), today, mondayMorning, RuleSameDay},
		{"today at buffer edge", ok(at(11, 20)), today, mondayMorning, ""},
		{"today noon inclusive", ok(at(12, 0)), today, mondayMorning, ""},
		{"today afternoon", ok(at(12, 30)), today, mondayMorning, RuleSameDay},
		{"today late evening has no wrap", ok(at(11, 0)), today, time.Date(2024, 6, 3, 23, 50, 0, 0, time.UTC), RuleSameDay},
		{"hidden", SlotFacts{Time: at(14, 0), Enabled: true}, monday, mondayMorning, RuleMarkers},
		{"disabled element", SlotFacts{Time: at(14, 0), Displayed: true}, monday, mondayMorning, RuleMarkers},
		{"unreadable", SlotFacts{Time: at(14, 0), Displayed: true, Enabled: true, ReadErr: errors.New("stale")}, monday, mondayMorning, RuleMarkers},
		{"conflict", SlotFacts{Time: at(14, 0), Displayed: true, Enabled: true, Conflict: true}, monday, mondayMorning, RuleConflict},
	}
	for _, m := range unavailableMarkers {
		f := ok(at(14, 0))
		f.Class += " " + m
		cases = append(cases, struct {
			name  string
			facts SlotFacts
			day   DayInfo
			now   time.Time
			rule  string
		}{"marker " + m, f, monday, mondayMorning, RuleMarkers})
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.rule, p.Explain(tc.facts, tc.day, tc.now))
			assert.Equal(t, tc.rule == "", p.IsEligible(tc.facts, tc.day, tc.now))
		})
	}
}

func TestPolicy_CheckForced(t *testing.T) {
	p := NewPolicy(DefaultRules())
	err := p.CheckForced(SlotFacts{Time: at(9, 0), Displayed: true, Enabled: true}, DayInfo{Type: Monday}, mondayMorning)

	var sce *autoerr.SchedulingConstraintError
	require.ErrorAs(t, err, &sce)
	assert.Equal(t, RuleWorkingHours, sce.Constraint)
	assert.Contains(t, sce.Details, "09:00:00")
	assert.ErrorIs(t, err, autoerr.ErrSchedulingConstraint)

	assert.NoError(t, p.CheckForced(SlotFacts{Time: at(14, 0), Displayed: true, Enabled: true}, DayInfo{Type: Monday}, mondayMorning))
}

func TestRulesFromConfig(t *testing.T) {
	cfg := config.NewDefaultConfig().Scheduling()
	rules, err := RulesFromConfig(cfg)
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultRules(), rules); diff != "" {
		t.Errorf("rules mismatch (-want +got):\n%s", diff)
	}

	cfg.WorkEnd = "25:99"
	_, err = RulesFromConfig(cfg)
	assert.Error(t, err)
}

// -- search --

func TestSearch_MondayPicksFirstBookable(t *testing.T) {
	p := week([]string{
		lane("10:30:00", "fc-timegrid-slot-minor"),
		lane("11:00:00"),
		lane("16:45:00", "disabled"),
	}, day("mon", "2024-06-10", false))

	slot, err := newFinder(t, p, DefaultRules()).FindFirstEligibleSlot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, "11:00:00", slot.Time)
	assert.Equal(t, "Monday", slot.DayName)
	assert.Equal(t, "2024-06-10", slot.DateLabel)
	assert.Equal(t, 0, slot.DayIndex)
}

func TestSearch_SameDayBufferMovesToNextDay(t *testing.T) {
	p := week([]string{lane("11:00:00"), lane("11:15:00")},
		day("mon", "2024-06-03", true),
		day("tue", "2024-06-04", false),
	)

	slot, err := newFinder(t, p, DefaultRules()).FindFirstEligibleSlot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, Tuesday, slot.DayType)
	assert.Equal(t, "11:00:00", slot.Time)
	assert.False(t, slot.IsToday)
}

func TestSearch_FirstMatchNotBestMatch(t *testing.T) {
	p := week([]string{lane("09:00:00"), lane("14:00:00"), lane("15:00:00")},
		day("wed", "2024-06-05", false))

	slot, err := newFinder(t, p, DefaultRules()).FindFirstEligibleSlot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, "14:00:00", slot.Time)
}

func TestSearch_SkipsWeekends(t *testing.T) {
	p := week([]string{lane("11:00:00")},
		day("sat", "2024-06-01", false),
		day("sun", "2024-06-02", false),
		day("mon", "2024-06-03", false),
	)

	slot, err := newFinder(t, p, DefaultRules()).FindFirstEligibleSlot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, Monday, slot.DayType)
	assert.Equal(t, 2, slot.DayIndex)
}

func TestSearch_NoneEligible(t *testing.T) {
	p := week([]string{lane("08:00:00"), lane("19:00:00"), lane("bogus")},
		day("sat", "2024-06-01", false),
		day("fri", "2024-06-07", false),
	)

	slot, err := newFinder(t, p, DefaultRules()).FindFirstEligibleSlot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, slot)
}

func TestSearch_Deterministic(t *testing.T) {
	p := week([]string{lane("11:00:00"), lane("11:30:00"), lane("12:00:00")},
		day("mon", "2024-06-03", true),
		day("tue", "2024-06-04", false),
	)
	f := newFinder(t, p, DefaultRules())

	first, err := f.FindFirstEligibleSlot(context.Background())
	require.NoError(t, err)
	second, err := f.FindFirstEligibleSlot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)
	require.NotNil(t, second)

	if diff := cmp.Diff(first, second, cmpopts.IgnoreFields(CalendarSlot{}, "Element")); diff != "" {
		t.Errorf("search is not deterministic (-first +second):\n%s", diff)
	}
	assert.Equal(t, first.Element.Ref(), second.Element.Ref())
	assert.Equal(t, "11:30:00", first.Time)
}

func TestSearch_GlobalConflictBlocksEverything(t *testing.T) {
	p := week([]string{lane("11:00:00"), lane("15:00:00")},
		day("mon", "2024-06-10", false, event("11:00 - 12:00", "9999TU111")),
		day("tue", "2024-06-11", false),
	)

	slot, err := newFinder(t, p, DefaultRules()).FindFirstEligibleSlot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, slot)
}

func TestSearch_OverlapConflictBlocksOnlyCoveredRows(t *testing.T) {
	p := week([]string{lane("11:00:00"), lane("11:30:00"), lane("12:00:00")},
		day("mon", "2024-06-10", false, event("11:00 - 12:00", "9999TU111")),
	)

	slot, err := newFinder(t, p, overlapRules()).FindFirstEligibleSlot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, "12:00:00", slot.Time)
}

func TestSearch_OverlapUnreadableEventBlocksDay(t *testing.T) {
	p := week([]string{lane("11:00:00")},
		day("mon", "2024-06-10", false, event("all day", "9999TU111")),
		day("tue", "2024-06-11", false),
	)

	slot, err := newFinder(t, p, overlapRules()).FindFirstEligibleSlot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, Tuesday, slot.DayType)
}

func TestEvaluateAll(t *testing.T) {
	p := week([]string{lane("09:00:00"), lane("11:00:00", "fc-past")},
		day("sun", "2024-06-02", false),
		day("mon", "2024-06-03", false),
	)

	evs, err := newFinder(t, p, DefaultRules()).EvaluateAll(context.Background())
	require.NoError(t, err)
	require.Len(t, evs, 3)
	assert.Equal(t, RuleWorkingDay, evs[0].Rule)
	assert.Empty(t, evs[0].Time)
	assert.Equal(t, RuleWorkingHours, evs[1].Rule)
	assert.Equal(t, RuleMarkers, evs[2].Rule)
	assert.Equal(t, "marked fc-past", evs[2].Detail)
}

func TestSearch_PropagatesQueryErrors(t *testing.T) {
	port := new(mocks.MockPort)
	port.On("FindAll", mock.Anything, selectors.PositionedEvents).Return(nil, nil)
	port.On("FindAll", mock.Anything, selectors.DayColumns).Return(nil, errors.New("session closed"))

	_, err := newFinder(t, port, DefaultRules()).FindFirstEligibleSlot(context.Background())
	assert.ErrorContains(t, err, "session closed")
}

func TestParseEventSpan(t *testing.T) {
	s, ok := parseEventSpan("11:00 - 12:30")
	require.True(t, ok)
	assert.Equal(t, span{start: at(11, 0), end: at(12, 30)}, s)

	_, ok = parseEventSpan("9:00–9:30")
	assert.True(t, ok)

	for _, bad := range []string{"", "all day", "12:00 - 11:00"} {
		_, ok := parseEventSpan(bad)
		assert.False(t, ok, bad)
	}
}

func TestScrollToWorkingHours(t *testing.T) {
	ctx := context.Background()

	t.Run("scrolls label into view", func(t *testing.T) {
		port := new(mocks.MockPort)
		port.On("FindAll", mock.Anything, selectors.ElevenLabel).Return(mocks.Elements("label"), nil)
		port.On("ScrollIntoView", mock.Anything, mocks.Element("label")).Return(nil)
		newFinder(t, port, DefaultRules()).ScrollToWorkingHours(ctx)
		port.AssertExpectations(t)
		port.AssertNotCalled(t, "ScrollBy", mock.Anything, mock.Anything)
	})

	t.Run("falls back to window scroll", func(t *testing.T) {
		port := new(mocks.MockPort)
		port.On("FindAll", mock.Anything, selectors.ElevenLabel).Return(nil, nil)
		port.On("ScrollBy", mock.Anything, 300).Return(nil)
		newFinder(t, port, DefaultRules()).ScrollToWorkingHours(ctx)
		port.AssertExpectations(t)
	})
}
