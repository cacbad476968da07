package worker

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/bulk-record-processor/internal/batch"
	"github.com/example/bulk-record-processor/internal/metrics"
	"github.com/example/bulk-record-processor/internal/models"
	"github.com/example/bulk-record-processor/internal/record"
	"github.com/example/bulk-record-processor/internal/spreadsheet"
	"github.com/example/bulk-record-processor/internal/status"
)

// Downloader fetches the uploaded workbook.
type Downloader interface {
	Download(ctx context.Context, objectKey string) ([]byte, error)
}

// ParseFunc turns workbook bytes into a header and rows.
type ParseFunc func(data []byte) (*spreadsheet.Sheet, error)

// BatchRunner reconciles every row of a workbook.
type BatchRunner interface {
	Run(ctx context.Context, rows []*record.Row, organizationID string) batch.Result
}

// FailureReporter stores failed rows and returns the report object key.
type FailureReporter interface {
	Upload(ctx context.Context, failures []batch.Failure, objectKey string, header []string) (string, error)
}

const defaultFinalizeTimeout = 30 * time.Second

// Metrics records message level outcomes.
type Metrics interface {
	ObserveMessage(outcome string)
	BatchStarted(rows int) func()
}

// Dependencies collects the runtime collaborators required by the engine.
type Dependencies struct {
	Downloader      Downloader
	Parse           ParseFunc
	Runner          BatchRunner
	FailureReporter FailureReporter
	StatusReporter  status.Reporter
	Committer       Committer
	Metrics         Metrics
	Logger          zerolog.Logger
	Now             func() time.Time
	// FinalizeTimeout bounds the failure report upload and the status
	// report, which outlive cancellation of the message context.
	FinalizeTimeout time.Duration
}

// Engine handles upload events: it validates the event, processes the
// workbook, reports the terminal status and commits the record exactly once.
type Engine struct {
	downloader      Downloader
	parse           ParseFunc
	runner          BatchRunner
	failureReporter FailureReporter
	statusReporter  status.Reporter
	committer       Committer
	metrics         Metrics
	logger          zerolog.Logger
	now             func() time.Time
	finalizeTimeout time.Duration

	seq atomic.Uint64
}

// NewEngine validates the dependencies and constructs an Engine.
func NewEngine(deps Dependencies) (*Engine, error) {
	if deps.Downloader == nil {
		return nil, errors.New("worker: downloader dependency is required")
	}
	if deps.Runner == nil {
		return nil, errors.New("worker: batch runner dependency is required")
	}
	if deps.FailureReporter == nil {
		return nil, errors.New("worker: failure reporter dependency is required")
	}
	if deps.StatusReporter == nil {
		return nil, errors.New("worker: status reporter dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "worker_engine").Logger()

	parse := deps.Parse
	if parse == nil {
		parse = spreadsheet.Parse
	}
	committer := deps.Committer
	if committer == nil {
		committer = CommitFunc(func(ctx context.Context, r *Record) error { return r.Commit(ctx) })
	}
	m := deps.Metrics
	if m == nil {
		m = noopMetrics{}
	}
	nowFunc := deps.Now
	if nowFunc == nil {
		nowFunc = time.Now
	}
	finalizeTimeout := deps.FinalizeTimeout
	if finalizeTimeout <= 0 {
		finalizeTimeout = defaultFinalizeTimeout
	}

	return &Engine{
		downloader:      deps.Downloader,
		parse:           parse,
		runner:          deps.Runner,
		failureReporter: deps.FailureReporter,
		statusReporter:  deps.StatusReporter,
		committer:       committer,
		metrics:         m,
		logger:          logger,
		now:             nowFunc,
		finalizeTimeout: finalizeTimeout,
	}, nil
}

// Sequence returns the number of records handled so far.
func (e *Engine) Sequence() uint64 {
	return e.seq.Load()
}

// HandleRecord processes one record to a terminal state and commits it.
// Invalid, skipped, completed and failed records are all committed, and a
// panic is logged and counted as failed.
func (e *Engine) HandleRecord(ctx context.Context, rec *Record) {
	if rec == nil {
		return
	}

	log := e.logger.With().
		Uint64("message_seq", e.seq.Add(1)).
		Str("topic", rec.Topic).
		Int32("partition", rec.Partition).
		Int64("offset", rec.Offset).
		Logger()

	outcome := metrics.OutcomeFailed
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("worker: recovered from panic while handling record")
		}
		e.metrics.ObserveMessage(outcome)
		e.commitRecord(ctx, rec, log)
	}()

	outcome = e.handle(ctx, rec, log)
}

func (e *Engine) handle(ctx context.Context, rec *Record, log zerolog.Logger) string {
	event, err := decodeEvent(rec.Value)
	if err != nil {
		log.Warn().Err(err).Msg("worker: dropping invalid message")
		return metrics.OutcomeInvalid
	}
	if event.Topic != rec.Topic {
		log.Warn().
			Str("message_topic", event.Topic).
			Msg("worker: dropping message whose topic does not match the record topic")
		return metrics.OutcomeInvalid
	}

	payload := event.Payload
	log = log.With().
		Str("upload_id", payload.ID).
		Str("object_key", payload.ObjectKey).
		Logger()

	if !event.Triggers() {
		log.Info().
			Str("resource", payload.Resource).
			Str("status", payload.Status).
			Msg("worker: ignoring message that is not a pending upload")
		return metrics.OutcomeSkipped
	}

	log.Info().Str("organization_id", payload.OrganizationID).Msg("worker: processing upload")
	start := e.now()

	result, reportKey, err := e.processUpload(ctx, payload, log)
	report := models.StatusReport{
		UploadID:  payload.ID,
		ObjectKey: payload.ObjectKey,
		Total:     result.Total,
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
		Timestamp: e.now(),
	}

	if err != nil {
		log.Error().Err(err).Msg("worker: upload processing failed")
		e.reportFailed(ctx, report, err, log)
		return metrics.OutcomeFailed
	}

	report.Update = models.UploadStatus{
		Status:                 models.UploadStatusCompleted,
		FailedRecordsObjectKey: reportKey,
	}
	if err := e.reportStatus(ctx, report); err != nil {
		log.Error().Err(err).Msg("worker: failed to report completed status")
		e.reportFailed(ctx, report, err, log)
		return metrics.OutcomeFailed
	}

	log.Info().
		Int("total", result.Total).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Str("failed_records_object_key", reportKey).
		Dur("duration", e.now().Sub(start)).
		Msg("worker: upload processed")
	return metrics.OutcomeCompleted
}

// processUpload downloads, parses and runs the workbook. Failed rows are
// uploaded as a report whose key is returned. A batch cut short by
// cancellation is an error; a panic in any step is returned as one.
func (e *Engine) processUpload(ctx context.Context, payload models.EventPayload, log zerolog.Logger) (result batch.Result, key string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("processing panicked: %v", p)
		}
	}()

	data, err := e.downloader.Download(ctx, payload.ObjectKey)
	if err != nil {
		return batch.Result{}, "", fmt.Errorf("download %s: %w", payload.ObjectKey, err)
	}

	sheet, err := e.parse(data)
	if err != nil {
		return batch.Result{}, "", fmt.Errorf("parse %s: %w", payload.ObjectKey, err)
	}
	log.Debug().Int("rows", len(sheet.Rows)).Strs("header", sheet.Header).Msg("worker: workbook parsed")

	done := e.metrics.BatchStarted(len(sheet.Rows))
	result = e.runner.Run(ctx, sheet.Rows, payload.OrganizationID)
	done()

	if err := ctx.Err(); err != nil {
		return result, "", fmt.Errorf("batch interrupted: %w", err)
	}
	if result.Failed == 0 {
		return result, "", nil
	}

	uploadCtx, cancel := e.finalizeContext(ctx)
	defer cancel()
	key, err = e.failureReporter.Upload(uploadCtx, result.FailedRows, payload.ObjectKey, sheet.Header)
	if err != nil {
		return result, "", fmt.Errorf("upload failure report: %w", err)
	}
	return result, key, nil
}

func (e *Engine) reportFailed(ctx context.Context, report models.StatusReport, cause error, log zerolog.Logger) {
	report.Update = models.UploadStatus{Status: models.UploadStatusFailed, Info: cause.Error()}
	if err := e.reportStatus(ctx, report); err != nil {
		log.Error().Err(err).Msg("worker: failed to report failed status")
	}
}

// reportStatus delivers a terminal status even when ctx has been cancelled
// by a rebalance or shutdown; the offset is committed right after.
func (e *Engine) reportStatus(ctx context.Context, report models.StatusReport) error {
	statusCtx, cancel := e.finalizeContext(ctx)
	defer cancel()
	return e.statusReporter.ReportStatus(statusCtx, report)
}

func (e *Engine) finalizeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.finalizeTimeout)
}

func (e *Engine) commitRecord(ctx context.Context, rec *Record, log zerolog.Logger) {
	if err := e.committer.Commit(ctx, rec); err != nil {
		log.Error().Err(err).Msg("worker: failed to commit record offset")
	}
}

type noopMetrics struct{}

func (noopMetrics) ObserveMessage(string)   {}
func (noopMetrics) BatchStarted(int) func() { return func() {} }
