package worker

import (
	"context"
	"time"
)

// Record is a Kafka message delivered to the engine. It keeps the engine
// decoupled from the concrete consumer while exposing the data it needs.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
	Headers   map[string][]byte

	commitFn func(context.Context) error
}

// Commit acknowledges the record through the function bound by the consumer
// bridge. Records without a bound function commit trivially.
func (r *Record) Commit(ctx context.Context) error {
	if r == nil || r.commitFn == nil {
		return nil
	}
	return r.commitFn(ctx)
}

// Committer commits Kafka offsets once a record is handled.
type Committer interface {
	Commit(ctx context.Context, record *Record) error
}

// CommitFunc adapts a function to Committer.
type CommitFunc func(ctx context.Context, record *Record) error

// Commit implements Committer.
func (f CommitFunc) Commit(ctx context.Context, record *Record) error {
	return f(ctx, record)
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	clone := make([]byte, len(b))
	copy(clone, b)
	return clone
}

func cloneHeaders(headers map[string][]byte) map[string][]byte {
	if len(headers) == 0 {
		return nil
	}
	clone := make(map[string][]byte, len(headers))
	for k, v := range headers {
		clone[k] = cloneBytes(v)
	}
	return clone
}
