package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/carservice/autotest/internal/browser"
	"github.com/carservice/autotest/internal/config"
	"github.com/carservice/autotest/internal/observability"
)

// app carries what PersistentPreRunE resolved to the subcommands.
type app struct {
	cfgFile string
	env     string

	cfg      *config.Config
	props    *config.Properties
	logger   *zap.Logger
	shutdown observability.ShutdownFunc
}

// flag name -> configuration key it overrides when set.
var flagKeys = []struct{ flag, key string }{
	{"headless", "browser.headless"},
	{"results-dir", "report.results_dir"},
	{"parallel", "runner.parallelism"},
}

// NewRootCommand builds a fresh command tree backed by real browser sessions.
func NewRootCommand() *cobra.Command {
	root, _ := newRoot(chromeProvider{})
	return root
}

func newRoot(provider sessionProvider) (*cobra.Command, *app) {
	a := &app{}
	root := &cobra.Command{
		Use:               "autotest",
		Short:             "Automated UI scenarios for the car-service backoffice.",
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config/config.yaml)")
	flags.StringVarP(&a.env, "env", "e", "", "environment overlay read from environments/<env>.yaml")
	flags.Bool("headless", false, "run the browser without a window")
	flags.String("results-dir", "", "directory for per-scenario report artifacts")
	flags.Int("parallel", 0, "number of scenarios run concurrently")

	root.AddCommand(
		newRunCmd(a, provider),
		newSlotsCmd(a),
		newConfigCmd(a),
	)
	return root, a
}

// setup loads the layered configuration, then logging and tracing.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	overrides := map[string]any{}
	for _, fk := range flagKeys {
		f := cmd.Flags().Lookup(fk.flag)
		if f == nil || !f.Changed {
			continue
		}
		switch fk.flag {
		case "headless":
			v, _ := cmd.Flags().GetBool(fk.flag)
			overrides[fk.key] = v
		case "parallel":
			v, _ := cmd.Flags().GetInt(fk.flag)
			overrides[fk.key] = v
		default:
			overrides[fk.key] = f.Value.String()
		}
	}

	v, err := config.Load(config.LoadOptions{File: a.cfgFile, Environment: a.env, Overrides: overrides})
	if err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}
	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.props = config.NewProperties(v)

	observability.InitializeLogger(cfg.Logger())
	a.logger = observability.GetLogger()
	a.logger.Info("Starting autotest.",
		zap.String("version", Version),
		zap.String("environment", cfg.Environment),
		zap.String("config_file", v.ConfigFileUsed()))

	shutdown, err := observability.SetupTracing(cmd.Context(), cfg.Tracing(), cfg.Logger().ServiceName)
	if err != nil {
		a.logger.Warn("Tracing disabled.", zap.Error(err))
		shutdown = nil
	}
	a.shutdown = shutdown
	return nil
}

// close flushes traces and logs. Runs even when the command failed.
func (a *app) close(ctx context.Context) {
	if a.shutdown != nil {
		sctx, cancel := context.WithTimeout(browser.Detach(ctx), 5*time.Second)
		defer cancel()
		if err := a.shutdown(sctx); err != nil && a.logger != nil {
			a.logger.Warn("Tracer shutdown failed.", zap.Error(err))
		}
	}
	observability.Sync()
}

// Execute runs the command tree with a signal-aware context.
func Execute(ctx context.Context) error {
	root, a := newRoot(chromeProvider{})
	defer a.close(ctx)

	err := root.ExecuteContext(ctx)
	if err != nil {
		if a.logger != nil {
			a.logger.Error("Command execution failed.", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	return err
}
