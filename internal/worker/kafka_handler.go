package worker

import (
	"context"

	"github.com/example/bulk-record-processor/internal/kafka/consumer"
)

// RecordCommitter is the consumer side of an offset commit.
type RecordCommitter interface {
	Commit(ctx context.Context, rec *consumer.Record) error
}

// KafkaHandler returns a consumer.Handler that hands each record to the
// engine synchronously, so records of a partition are processed in order.
func KafkaHandler(engine *Engine, cons RecordCommitter) consumer.Handler {
	return func(ctx context.Context, rec *consumer.Record) error {
		if engine == nil || rec == nil {
			return nil
		}

		var commitFn func(context.Context) error
		if cons != nil {
			commitFn = func(c context.Context) error {
				return cons.Commit(c, rec)
			}
		}

		engine.HandleRecord(ctx, NewRecordFromConsumer(rec, commitFn))
		return nil
	}
}
