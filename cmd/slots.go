package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/carservice/autotest/internal/browser/snapshot"
	"github.com/carservice/autotest/internal/calendar"
)

// newSlotsCmd evaluates the slot policy against a saved calendar page, so
// rule changes can be checked without a browser.
func newSlotsCmd(a *app) *cobra.Command {
	var (
		snapshotPath string
		at           string
		explain      bool
	)

	slotsCmd := &cobra.Command{
		Use:   "slots --snapshot page.html",
		Short: "Finds the first bookable slot in a saved interventions page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if snapshotPath == "" {
				return errors.New("--snapshot is required")
			}
			page, err := snapshot.Load(snapshotPath)
			if err != nil {
				return err
			}
			rules, err := calendar.RulesFromConfig(a.cfg.Scheduling())
			if err != nil {
				return err
			}

			opts := []calendar.FinderOption{calendar.WithSettle(0)}
			if at != "" {
				now, err := parseNow(at, time.Now())
				if err != nil {
					return err
				}
				opts = append(opts, calendar.WithClock(func() time.Time { return now }))
			}
			finder := calendar.NewFinder(page, rules, a.logger, opts...)
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if explain {
				evals, err := finder.EvaluateAll(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "DAY\tDATE\tTIME\tVERDICT\tDETAIL")
				for _, ev := range evals {
					verdict := "eligible"
					if ev.Rule != "" {
						verdict = ev.Rule
					}
					slot := ev.Time
					if slot == "" {
						slot = "-"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", ev.Day.DayName(), ev.Day.DateLabel, slot, verdict, ev.Detail)
				}
				_ = tw.Flush()
				fmt.Fprintln(out)
			}

			slot, err := finder.FindFirstEligibleSlot(ctx)
			if err != nil {
				return err
			}
			if slot == nil {
				fmt.Fprintln(out, "No eligible slot in the visible week.")
				return nil
			}
			fmt.Fprintf(out, "First eligible slot: %s\n", slot)
			return nil
		},
	}

	flags := slotsCmd.Flags()
	flags.StringVarP(&snapshotPath, "snapshot", "s", "", "saved HTML of the interventions page")
	flags.StringVar(&at, "now", "", "evaluate as of this time (HH:MM today, or RFC 3339)")
	flags.BoolVar(&explain, "explain", false, "print the verdict for every day and slot")
	return slotsCmd
}

// parseNow accepts "15:04" on the day of ref, or a full RFC 3339 timestamp.
func parseNow(s string, ref time.Time) (time.Time, error) {
	if t, err := time.Parse("15:04", s); err == nil {
		return time.Date(ref.Year(), ref.Month(), ref.Day(), t.Hour(), t.Minute(), 0, 0, ref.Location()), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --now %q: want HH:MM or RFC 3339", s)
	}
	return t, nil
}
