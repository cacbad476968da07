package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/example/bulk-record-processor/internal/models"
)

var errProducerNotInitialised = errors.New("kafka publisher: producer not initialised")

// SyncProducer captures the subset of producer behaviour required by the Kafka publishers.
type SyncProducer interface {
	PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

// ErrProducerNotInitialised exposes the sentinel error for callers and tests.
func ErrProducerNotInitialised() error {
	return errProducerNotInitialised
}

// StatusPublisher emits terminal upload statuses to a Kafka topic. It
// implements status.Reporter so it can sit next to the HTTP reporter.
type StatusPublisher struct {
	producer SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewStatusPublisher constructs a StatusPublisher instance.
func NewStatusPublisher(prod SyncProducer, topic string, logger zerolog.Logger) *StatusPublisher {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &StatusPublisher{
		producer: prod,
		topic:    topic,
		logger:   logger,
	}
}

// ReportStatus writes the report to Kafka synchronously, keyed by upload id.
func (p *StatusPublisher) ReportStatus(_ context.Context, report models.StatusReport) error {
	if p == nil || p.producer == nil {
		return errProducerNotInitialised
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal status report: %w", err)
	}

	headers := map[string][]byte{
		"content-type": []byte("application/json"),
	}

	if err := p.producer.PublishSync(p.topic, []byte(report.UploadID), headers, payload); err != nil {
		return fmt.Errorf("kafka publisher: publish status report: %w", err)
	}
	p.logger.Debug().
		Str("topic", p.topic).
		Str("upload_id", report.UploadID).
		Str("status", report.Update.Status).
		Msg("kafka publisher: status report published")
	return nil
}
