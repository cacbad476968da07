package worker

import (
	"context"

	"github.com/example/bulk-record-processor/internal/kafka/consumer"
)

// NewRecordFromConsumer converts a consumer record and binds the commit
// function the engine calls once the record is handled.
func NewRecordFromConsumer(rec *consumer.Record, commit func(context.Context) error) *Record {
	if rec == nil {
		return nil
	}
	return &Record{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       cloneBytes(rec.Key),
		Value:     cloneBytes(rec.Value),
		Timestamp: rec.Timestamp,
		Headers:   cloneHeaders(rec.Headers),
		commitFn:  commit,
	}
}
