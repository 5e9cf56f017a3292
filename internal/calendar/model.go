// Package calendar reads the backoffice week view and picks a bookable slot.
package calendar

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/carservice/autotest/internal/browser"
	"github.com/carservice/autotest/internal/selectors"
)

// DayType classifies a day column by weekday.
type DayType int

const (
	Unknown DayType = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var dayNames = [...]string{"unknown", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

func (d DayType) String() string {
	if d < Unknown || d > Sunday {
		return dayNames[Unknown]
	}
	return dayNames[d]
}

// Workday reports Monday through Friday. Unknown is not a workday.
func (d DayType) Workday() bool { return d >= Monday && d <= Friday }

func (d DayType) Weekend() bool { return d == Saturday || d == Sunday }

// dayMarkers maps the column class markers to day types.
var dayMarkers = []struct {
	class string
	day   DayType
}{
	{"fc-day-sun", Sunday},
	{"fc-day-sat", Saturday},
	{"fc-day-mon", Monday},
	{"fc-day-tue", Tuesday},
	{"fc-day-wed", Wednesday},
	{"fc-day-thu", Thursday},
	{"fc-day-fri", Friday},
}

const todayMarker = "fc-day-today"

// DayInfo describes one day column of the current week view.
type DayInfo struct {
	ColumnIndex int
	Type        DayType
	// DateLabel is the raw data-date attribute.
	DateLabel string
	IsToday   bool
}

// DayName is the capitalized weekday, or "Unknown".
func (d DayInfo) DayName() string {
	s := d.Type.String()
	return strings.ToUpper(s[:1]) + s[1:]
}

// SlotCell is one bookable time row, before it is bound to a day.
type SlotCell struct {
	Element browser.Element
	// Time is the raw data-time attribute, HH:MM:SS.
	Time string
}

// CalendarSlot is a slot chosen for booking. Element is only valid for the
// DOM it was read from.
type CalendarSlot struct {
	Element   browser.Element
	Time      string
	DayIndex  int
	DayName   string
	DayType   DayType
	DateLabel string
	IsToday   bool
}

func (s CalendarSlot) String() string {
	return fmt.Sprintf("%s %s (%s)", s.DayName, s.Time, s.DateLabel)
}

func newSlot(day DayInfo, cell SlotCell) *CalendarSlot {
	return &CalendarSlot{
		Element:   cell.Element,
		Time:      cell.Time,
		DayIndex:  day.ColumnIndex,
		DayName:   day.DayName(),
		DayType:   day.Type,
		DateLabel: day.DateLabel,
		IsToday:   day.IsToday,
	}
}

// hasClass reports whether the space separated class list contains name.
func hasClass(classes, name string) bool {
	for _, c := range strings.Fields(classes) {
		if c == name {
			return true
		}
	}
	return false
}

// ExtractDayInfo classifies a day column. Read failures yield an Unknown
// day, which the policy never accepts.
func ExtractDayInfo(ctx context.Context, port browser.Inspector, column browser.Element, index int, logger *zap.Logger) DayInfo {
	info := DayInfo{ColumnIndex: index, Type: Unknown}
	class, _, err := port.Attribute(ctx, column, "class")
	if err != nil {
		logger.Debug("Could not read day column class.", zap.Int("column", index), zap.Error(err))
		return info
	}
	date, _, err := port.Attribute(ctx, column, "data-date")
	if err != nil {
		logger.Debug("Could not read day column date.", zap.Int("column", index), zap.Error(err))
		return info
	}
	for _, m := range dayMarkers {
		if hasClass(class, m.class) {
			info.Type = m.day
			break
		}
	}
	info.DateLabel = date
	info.IsToday = hasClass(class, todayMarker)
	return info
}

// ListBookableSlots returns the major slot rows in document order, one per time.
func ListBookableSlots(ctx context.Context, port interface {
	browser.Finder
	browser.Inspector
}, logger *zap.Logger) ([]SlotCell, error) {
	els, err := port.FindAll(ctx, selectors.SlotLanes)
	if err != nil {
		return nil, fmt.Errorf("listing slot lanes: %w", err)
	}
	seen := make(map[string]struct{}, len(els))
	cells := make([]SlotCell, 0, len(els))
	for _, el := range els {
		t, ok, err := port.Attribute(ctx, el, "data-time")
		if err != nil || !ok {
			logger.Debug("Slot lane without readable time.", zap.String("ref", el.Ref()), zap.Error(err))
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		cells = append(cells, SlotCell{Element: el, Time: t})
	}
	return cells, nil
}
