// Package batch drives row reconciliation across a whole workbook with a
// bounded number of rows in flight.
package batch

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/example/bulk-record-processor/internal/reconcile"
	"github.com/example/bulk-record-processor/internal/record"
)

// Reconciler applies a single row.
type Reconciler interface {
	Reconcile(ctx context.Context, row *record.Row, organizationID string) reconcile.Outcome
}

// Observer receives every row outcome, e.g. for metrics.
type Observer interface {
	ObserveRow(outcome reconcile.Outcome, elapsed time.Duration)
}

// Failure is a row that could not be applied and the reason shown to users.
type Failure struct {
	Row    *record.Row
	Reason string
}

// Result summarises one batch. Succeeded + Failed always equals Total.
type Result struct {
	Total      int
	Succeeded  int
	Failed     int
	FailedRows []Failure
}

// Config holds the runner settings.
type Config struct {
	Concurrency int
}

// Dependencies collects the runner collaborators.
type Dependencies struct {
	Reconciler Reconciler
	Observer   Observer
	Logger     zerolog.Logger
	Now        func() time.Time
}

// Runner reconciles rows concurrently, never more than Concurrency at once.
type Runner struct {
	concurrency int
	reconciler  Reconciler
	observer    Observer
	logger      zerolog.Logger
	now         func() time.Time
}

// NewRunner validates the configuration and constructs a Runner.
func NewRunner(cfg Config, deps Dependencies) (*Runner, error) {
	if cfg.Concurrency < 1 {
		return nil, errors.New("batch: concurrency must be >= 1")
	}
	if deps.Reconciler == nil {
		return nil, errors.New("batch: reconciler dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	nowFunc := deps.Now
	if nowFunc == nil {
		nowFunc = time.Now
	}

	return &Runner{
		concurrency: cfg.Concurrency,
		reconciler:  deps.Reconciler,
		observer:    deps.Observer,
		logger:      logger.With().Str("component", "batch_runner").Logger(),
		now:         nowFunc,
	}, nil
}

// Run attempts every row exactly once and collects the failures. Row errors
// never escape; a row that cannot start because ctx is done counts as failed.
// Failures are reported in sheet order.
func (r *Runner) Run(ctx context.Context, rows []*record.Row, organizationID string) Result {
	outcomes := make([]reconcile.Outcome, len(rows))
	sem := semaphore.NewWeighted(int64(r.concurrency))

	var wg sync.WaitGroup
	for i, row := range rows {
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = reconcile.Outcome{Row: row, Err: fmt.Errorf("row not started: %w", err)}
			continue
		}
		wg.Add(1)
		go func(i int, row *record.Row) {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[i] = r.runRow(ctx, row, organizationID)
		}(i, row)
	}
	wg.Wait()

	result := Result{Total: len(rows)}
	for _, out := range outcomes {
		if out.OK() {
			result.Succeeded++
			continue
		}
		result.Failed++
		result.FailedRows = append(result.FailedRows, Failure{Row: out.Row, Reason: out.Err.Error()})
		r.logger.Warn().
			Int("line", out.Row.Line).
			Str("row", out.Row.Key()).
			Str("reason", out.Err.Error()).
			Msg("batch: row failed")
	}
	return result
}

func (r *Runner) runRow(ctx context.Context, row *record.Row, organizationID string) (out reconcile.Outcome) {
	start := r.now()
	defer func() {
		if p := recover(); p != nil {
			out = reconcile.Outcome{Row: row, Err: fmt.Errorf("row panicked: %v", p)}
		}
		if r.observer != nil {
			r.observer.ObserveRow(out, r.now().Sub(start))
		}
	}()
	return r.reconciler.Reconcile(ctx, row, organizationID)
}
