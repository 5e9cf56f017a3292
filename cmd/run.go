package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/carservice/autotest/internal/browser"
	"github.com/carservice/autotest/internal/config"
	"github.com/carservice/autotest/internal/report"
	"github.com/carservice/autotest/internal/scenario"
)

// sessionProvider creates the browser backend for a run. Tests swap it for
// one that does not start Chrome.
type sessionProvider interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (scenario.Provider, func(), error)
}

type chromeProvider struct{}

func (chromeProvider) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (scenario.Provider, func(), error) {
	manager := browser.NewManager(cfg.Browser(), logger)
	cleanup := func() {
		sctx, cancel := context.WithTimeout(browser.Detach(ctx), 30*time.Second)
		defer cancel()
		if err := manager.Shutdown(sctx); err != nil {
			logger.Warn("Browser shutdown incomplete.", zap.Error(err))
		}
	}
	return scenario.FromManager(manager), cleanup, nil
}

func newRunCmd(a *app, provider sessionProvider) *cobra.Command {
	var list bool

	runCmd := &cobra.Command{
		Use:   "run [scenario...]",
		Short: "Runs scenarios against the configured environment (all of them when none are named)",
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return scenario.Names(), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if list {
				for _, name := range scenario.Names() {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			scenarios, err := scenario.Lookup(args...)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			sessions, cleanup, err := provider.Create(ctx, a.cfg, a.logger)
			if err != nil {
				return fmt.Errorf("failed to start browser: %w", err)
			}
			defer cleanup()

			hooks := scenario.NewHooks(sessions, a.cfg, a.logger)
			results := scenario.NewRunner(hooks, a.cfg.Runner().Parallelism, a.logger).Run(ctx, scenarios...)
			writeSummary(out, results)

			if scenario.Failed(results) {
				failed := 0
				for _, res := range results {
					if res.Status != report.StatusPassed {
						failed++
					}
				}
				return fmt.Errorf("%d of %d scenarios did not pass", failed, len(results))
			}
			return nil
		},
	}
	runCmd.Flags().BoolVar(&list, "list", false, "print the available scenario names and exit")
	return runCmd
}

func writeSummary(w io.Writer, results []scenario.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tSTATUS\tDURATION\tREPORT")
	for _, res := range results {
		dir := res.ReportDir
		if dir == "" {
			dir = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", res.Name, res.Status, res.Duration.Round(time.Millisecond), dir)
	}
	_ = tw.Flush()
	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(w, "\n%s: %v\n", res.Name, res.Err)
		}
	}
}
