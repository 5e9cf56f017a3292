package calendar

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/carservice/autotest/internal/browser"
	"github.com/carservice/autotest/internal/config"
	"github.com/carservice/autotest/internal/selectors"
	"github.com/carservice/autotest/internal/wait"
)

// Port is the browser surface the slot search reads from.
type Port interface {
	browser.Finder
	browser.Inspector
	ScrollIntoView(ctx context.Context, el browser.Element) error
	ScrollBy(ctx context.Context, dy int) error
}

// Finder runs the first-match slot search over the current week view.
type Finder struct {
	port   Port
	policy Policy
	logger *zap.Logger
	now    func() time.Time
	settle time.Duration
}

type FinderOption func(*Finder)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) FinderOption {
	return func(f *Finder) { f.now = now }
}

// WithSettle sets the pause after scrolling the grid.
func WithSettle(d time.Duration) FinderOption {
	return func(f *Finder) { f.settle = d }
}

func NewFinder(port Port, rules Rules, logger *zap.Logger, opts ...FinderOption) *Finder {
	f := &Finder{
		port:   port,
		policy: NewPolicy(rules),
		logger: logger.Named("calendar"),
		now:    time.Now,
		settle: time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Finder) Policy() Policy { return f.policy }

// Evaluation is the verdict for one day/slot pair. Rule is empty when eligible.
// Weekend days produce a single entry with an empty Time.
type Evaluation struct {
	Day    DayInfo
	Time   string
	Rule   string
	Detail string
	Slot   *CalendarSlot
}

// FindFirstEligibleSlot returns the first eligible slot walking days left to
// right and slots top to bottom. A nil slot with a nil error means none qualified.
func (f *Finder) FindFirstEligibleSlot(ctx context.Context) (*CalendarSlot, error) {
	var found *CalendarSlot
	err := f.walk(ctx, func(ev Evaluation) bool {
		if ev.Rule != "" {
			return true
		}
		found = ev.Slot
		return false
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		f.logger.Info("No eligible slot in the visible week.")
		return nil, nil
	}
	f.logger.Info("Found available time slot.",
		zap.String("time", found.Time), zap.String("day", found.DayName), zap.String("date", found.DateLabel))
	return found, nil
}

// EvaluateAll judges every day/slot pair without stopping at the first match.
func (f *Finder) EvaluateAll(ctx context.Context) ([]Evaluation, error) {
	var out []Evaluation
	err := f.walk(ctx, func(ev Evaluation) bool {
		out = append(out, ev)
		return true
	})
	return out, err
}

// walk feeds evaluations to visit until it returns false.
func (f *Finder) walk(ctx context.Context, visit func(Evaluation) bool) error {
	now := f.now()
	columns, err := f.port.FindAll(ctx, selectors.DayColumns)
	if err != nil {
		return fmt.Errorf("listing day columns: %w", err)
	}
	f.logger.Debug("Day columns found.", zap.Int("count", len(columns)))

	var globalBlock bool
	if f.policy.Rules.ConflictMode != config.ConflictModeOverlap {
		globalBlock = f.anyPositionedEvent(ctx)
	}

	var cells []SlotCell
	for i, col := range columns {
		day := ExtractDayInfo(ctx, f.port, col, i, f.logger)
		if day.Type.Weekend() {
			if !visit(Evaluation{Day: day, Rule: RuleWorkingDay, Detail: "weekend"}) {
				return nil
			}
			continue
		}
		if cells == nil {
			if cells, err = ListBookableSlots(ctx, f.port, f.logger); err != nil {
				return err
			}
		}

		occ := occupancy{all: globalBlock}
		if f.policy.Rules.ConflictMode == config.ConflictModeOverlap {
			occ = f.dayOccupancy(ctx, col, day)
		}

		for _, cell := range cells {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := ParseSlotTime(cell.Time)
			if err != nil {
				f.logger.Debug("Skipping slot with unparseable time.", zap.String("time", cell.Time), zap.Error(err))
				continue
			}
			facts := f.readFacts(ctx, cell.Element, t)
			facts.Conflict = occ.blocks(t)
			rule, detail := f.policy.evaluate(facts, day, now)
			ev := Evaluation{Day: day, Time: cell.Time, Rule: rule, Detail: detail}
			if rule == "" {
				ev.Slot = newSlot(day, cell)
			} else {
				f.logger.Debug("Slot rejected.", zap.String("day", day.DayName()), zap.String("time", cell.Time),
					zap.String("rule", rule), zap.String("detail", detail))
			}
			if !visit(ev) {
				return nil
			}
		}
	}
	return nil
}

func (f *Finder) readFacts(ctx context.Context, el browser.Element, t time.Duration) SlotFacts {
	facts := SlotFacts{Time: t}
	if facts.Displayed, facts.ReadErr = f.port.IsDisplayed(ctx, el); facts.ReadErr != nil {
		return facts
	}
	if facts.Enabled, facts.ReadErr = f.port.IsEnabled(ctx, el); facts.ReadErr != nil {
		return facts
	}
	facts.Class, _, facts.ReadErr = f.port.Attribute(ctx, el, "class")
	return facts
}

// anyPositionedEvent reports whether the event layer holds any placed event.
// A failed lookup counts as an empty layer.
func (f *Finder) anyPositionedEvent(ctx context.Context) bool {
	events, err := f.port.FindAll(ctx, selectors.PositionedEvents)
	if err != nil {
		f.logger.Debug("Event layer lookup failed.", zap.Error(err))
		return false
	}
	if len(events) > 0 {
		f.logger.Debug("Existing events block the grid.", zap.Int("events", len(events)))
	}
	return len(events) > 0
}

// span is a half-open [start, end) interval of the day.
type span struct{ start, end time.Duration }

type occupancy struct {
	all   bool
	spans []span
}

func (o occupancy) blocks(t time.Duration) bool {
	if o.all {
		return true
	}
	for _, s := range o.spans {
		if t >= s.start && t < s.end {
			return true
		}
	}
	return false
}

var eventTimeRe = regexp.MustCompile(`(\d{1,2}):(\d{2})\s*[-–]\s*(\d{1,2}):(\d{2})`)

// dayOccupancy reads the time ranges of the events rendered in one day column.
// An event whose range cannot be read blocks the whole day.
func (f *Finder) dayOccupancy(ctx context.Context, column browser.Element, day DayInfo) occupancy {
	labels, err := f.port.FindWithin(ctx, column, selectors.DayEventTimes)
	if err != nil {
		f.logger.Debug("Day event lookup failed.", zap.String("day", day.DayName()), zap.Error(err))
		return occupancy{}
	}
	var occ occupancy
	for _, l := range labels {
		text, err := f.port.Text(ctx, l)
		if err != nil {
			f.logger.Debug("Unreadable event time; blocking day.", zap.String("day", day.DayName()), zap.Error(err))
			return occupancy{all: true}
		}
		s, ok := parseEventSpan(text)
		if !ok {
			f.logger.Debug("Unparseable event time; blocking day.", zap.String("day", day.DayName()), zap.String("text", text))
			return occupancy{all: true}
		}
		occ.spans = append(occ.spans, s)
	}
	return occ
}

func parseEventSpan(text string) (span, bool) {
	m := eventTimeRe.FindStringSubmatch(text)
	if m == nil {
		return span{}, false
	}
	n := make([]int, 4)
	for i := range n {
		n[i], _ = strconv.Atoi(m[i+1])
	}
	s := span{
		start: time.Duration(n[0])*time.Hour + time.Duration(n[1])*time.Minute,
		end:   time.Duration(n[2])*time.Hour + time.Duration(n[3])*time.Minute,
	}
	if s.end <= s.start {
		return span{}, false
	}
	return s, true
}

// ScrollToWorkingHours brings the 11:00 row into view, falling back to a
// fixed window scroll. Best effort; failures are only logged.
func (f *Finder) ScrollToWorkingHours(ctx context.Context) {
	labels, err := f.port.FindAll(ctx, selectors.ElevenLabel)
	if err == nil && len(labels) > 0 {
		if err = f.port.ScrollIntoView(ctx, labels[0]); err == nil {
			_ = wait.Sleep(ctx, f.settle)
			f.logger.Info("Scrolled to 11:00 slot.")
			return
		}
	}
	f.logger.Warn("Could not scroll to working hours; scrolling window.", zap.Error(err))
	if err := f.port.ScrollBy(ctx, 300); err != nil {
		f.logger.Warn("Window scroll failed.", zap.Error(err))
	}
}
