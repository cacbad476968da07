package worker_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/bulk-record-processor/internal/kafka/consumer"
	"github.com/example/bulk-record-processor/internal/worker"
)

type consumerCommits struct {
	mu      sync.Mutex
	records []*consumer.Record
}

func (c *consumerCommits) Commit(_ context.Context, rec *consumer.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return nil
}

func TestKafkaHandlerCommitsThroughConsumer(t *testing.T) {
	h := newHarness(t)
	engine, err := worker.NewEngine(worker.Dependencies{
		Downloader:      h.download,
		Runner:          stubRunner{},
		FailureReporter: stubFailureReporter{},
		StatusReporter:  h.statuses,
	})
	require.NoError(t, err)

	commits := &consumerCommits{}
	handler := worker.KafkaHandler(engine, commits)

	rec := &consumer.Record{Topic: actionTopic, Offset: 12, Value: eventBytes(t, func(e map[string]any) {
		e["payload"].(map[string]any)["status"] = "done"
	})}
	require.NoError(t, handler(context.Background(), rec))

	require.Len(t, commits.records, 1)
	assert.Same(t, rec, commits.records[0])
	assert.Equal(t, uint64(1), engine.Sequence())
}

func TestKafkaHandlerIgnoresNilRecord(t *testing.T) {
	assert.NoError(t, worker.KafkaHandler(nil, nil)(context.Background(), nil))
}

func TestNewRecordFromConsumerCopiesData(t *testing.T) {
	src := &consumer.Record{Topic: "t", Partition: 2, Offset: 3, Key: []byte("k"), Value: []byte("v"), Headers: map[string][]byte{"h": []byte("1")}}
	called := 0
	rec := worker.NewRecordFromConsumer(src, func(context.Context) error {
		called++
		return nil
	})

	src.Value[0] = 'x'
	assert.Equal(t, []byte("v"), rec.Value)
	assert.Equal(t, int32(2), rec.Partition)
	require.NoError(t, rec.Commit(context.Background()))
	assert.Equal(t, 1, called)
	assert.Nil(t, worker.NewRecordFromConsumer(nil, nil))
}
