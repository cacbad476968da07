// Package status reports terminal upload states to interested parties.
package status

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/example/bulk-record-processor/internal/models"
)

// Reporter delivers a terminal upload status.
type Reporter interface {
	ReportStatus(ctx context.Context, report models.StatusReport) error
}

// Patcher is the subset of httpapi.Client used by HTTPReporter.
type Patcher interface {
	Patch(ctx context.Context, path string, body, out any) error
}

// HTTPReporter patches uploads/{id} on the upload status API.
type HTTPReporter struct {
	client Patcher
	logger zerolog.Logger
}

// NewHTTPReporter constructs an HTTPReporter.
func NewHTTPReporter(client Patcher, logger zerolog.Logger) *HTTPReporter {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &HTTPReporter{client: client, logger: logger}
}

// ReportStatus implements Reporter.
func (r *HTTPReporter) ReportStatus(ctx context.Context, report models.StatusReport) error {
	if report.UploadID == "" {
		return errors.New("status: upload id is required")
	}
	path := "uploads/" + url.PathEscape(report.UploadID)
	if err := r.client.Patch(ctx, path, report.Update, nil); err != nil {
		return fmt.Errorf("status: patch upload %s: %w", report.UploadID, err)
	}
	r.logger.Debug().
		Str("upload_id", report.UploadID).
		Str("status", report.Update.Status).
		Msg("status: upload status updated")
	return nil
}

// FanOut delivers a report to every reporter. All reporters are attempted;
// their errors are joined.
type FanOut []Reporter

// ReportStatus implements Reporter.
func (f FanOut) ReportStatus(ctx context.Context, report models.StatusReport) error {
	var errs []error
	for _, r := range f {
		if r == nil {
			continue
		}
		if err := r.ReportStatus(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
