// Package report renders failed rows into a workbook and uploads it next to
// the failure bucket.
package report

import (
	"context"
	"fmt"
	"path"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/bulk-record-processor/internal/batch"
	"github.com/example/bulk-record-processor/internal/spreadsheet"
)

// ReasonColumn is appended to the source header in failure reports.
const ReasonColumn = "validationMessage"

// Uploader stores a rendered failure report.
type Uploader interface {
	UploadFailureReport(ctx context.Context, objectKey string, data []byte) error
}

// Option customises a Reporter.
type Option func(*Reporter)

// WithClock overrides the time source used for report keys.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		if now != nil {
			r.now = now
		}
	}
}

// Reporter builds and uploads failure reports.
type Reporter struct {
	uploader Uploader
	logger   zerolog.Logger
	now      func() time.Time
}

// New constructs a Reporter.
func New(uploader Uploader, logger zerolog.Logger, opts ...Option) *Reporter {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	r := &Reporter{uploader: uploader, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Upload writes failures as a workbook with the source header plus a reason
// column and returns the object key it was stored under.
func (r *Reporter) Upload(ctx context.Context, failures []batch.Failure, objectKey string, header []string) (string, error) {
	if len(failures) == 0 {
		return "", nil
	}

	header = withoutReason(header)
	columns := make([]string, 0, len(header)+1)
	columns = append(columns, header...)
	columns = append(columns, ReasonColumn)

	rows := make([][]string, 0, len(failures))
	for _, f := range failures {
		values := make([]string, 0, len(columns))
		if f.Row != nil {
			values = append(values, f.Row.Values(header)...)
		} else {
			values = append(values, make([]string, len(header))...)
		}
		rows = append(rows, append(values, f.Reason))
	}

	data, err := spreadsheet.Write(columns, rows)
	if err != nil {
		return "", fmt.Errorf("report: render: %w", err)
	}

	key := Key(objectKey, r.now())
	if err := r.uploader.UploadFailureReport(ctx, key, data); err != nil {
		return "", fmt.Errorf("report: upload %s: %w", key, err)
	}

	r.logger.Info().
		Str("object_key", key).
		Int("failed_rows", len(failures)).
		Msg("report: failure report uploaded")
	return key, nil
}

// withoutReason drops a reason column carried over from a resubmitted report.
func withoutReason(header []string) []string {
	out := make([]string, 0, len(header))
	for _, col := range header {
		if col != ReasonColumn {
			out = append(out, col)
		}
	}
	return out
}

// Key derives the failure report name from the source object key:
// "<base>_errors_<unix millis><ext>".
func Key(objectKey string, at time.Time) string {
	ext := path.Ext(objectKey)
	base := strings.TrimSuffix(objectKey, ext)
	return base + "_errors_" + strconv.FormatInt(at.UnixMilli(), 10) + ext
}
