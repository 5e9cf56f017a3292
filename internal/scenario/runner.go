package scenario

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/carservice/autotest/internal/observability"
	"github.com/carservice/autotest/internal/report"
)

// Scenario is a named flow against one application.
type Scenario struct {
	Name string
	App  App
	Run  func(ctx context.Context, env *Env) error
}

// Result is the outcome of one scenario.
type Result struct {
	Name      string
	Status    report.Status
	Err       error
	Duration  time.Duration
	ReportDir string
}

// Runner executes scenarios concurrently, each in its own session.
type Runner struct {
	hooks       *Hooks
	parallelism int64
	logger      *zap.Logger
	tracer      trace.Tracer
}

func NewRunner(hooks *Hooks, parallelism int, logger *zap.Logger) *Runner {
	return &Runner{
		hooks:       hooks,
		parallelism: int64(max(parallelism, 1)),
		logger:      logger.Named("runner"),
		tracer:      observability.Tracer(),
	}
}

// Run executes every scenario and returns their results in input order.
// One scenario failing never stops the others.
func (r *Runner) Run(ctx context.Context, scenarios ...Scenario) []Result {
	results := make([]Result, len(scenarios))
	sem := semaphore.NewWeighted(r.parallelism)
	var g errgroup.Group

	r.logger.Info("Running scenarios.", zap.Int("count", len(scenarios)), zap.Int64("parallelism", r.parallelism))
	for i, sc := range scenarios {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = Result{Name: sc.Name, Status: report.StatusBroken, Err: err}
			continue
		}
		g.Go(func() error {
			defer sem.Release(1)
			results[i] = r.runOne(ctx, sc)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Runner) runOne(ctx context.Context, sc Scenario) (res Result) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "scenario", trace.WithAttributes(attribute.String("scenario", sc.Name)))

	var (
		env    *Env
		runErr error
	)
	defer func() {
		if p := recover(); p != nil {
			runErr = fmt.Errorf("%w: %v", ErrPanicked, p)
		}
		res = r.hooks.After(ctx, env, sc, runErr)
		res.Duration = time.Since(start)
		span.SetAttributes(attribute.String("status", string(res.Status)))
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
		}
		span.End()
		r.logger.Info("Scenario finished.",
			zap.String("scenario", sc.Name), zap.String("status", string(res.Status)), zap.Duration("duration", res.Duration))
	}()

	env, runErr = r.hooks.Before(ctx, sc)
	if runErr != nil {
		return
	}
	runErr = sc.Run(ctx, env)
	return
}

// Failed reports whether any result is not passed.
func Failed(results []Result) bool {
	for _, res := range results {
		if res.Status != report.StatusPassed {
			return true
		}
	}
	return false
}
