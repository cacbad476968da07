package consumer

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx context.Context

	mu      sync.Mutex
	marked  []int64
	commits int
}

func (s *fakeSession) Context() context.Context { return s.ctx }
func (s *fakeSession) MemberID() string         { return "member-1" }
func (s *fakeSession) GenerationID() int32      { return 1 }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

func (s *fakeSession) Commit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	msgs chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

type fakeGroup struct {
	sarama.ConsumerGroup
	session *fakeSession
	claim   *fakeClaim
	errs    chan error

	readyDuringClaim bool
}

func (g *fakeGroup) Consume(_ context.Context, _ []string, h sarama.ConsumerGroupHandler) error {
	if err := h.Setup(g.session); err != nil {
		return err
	}
	g.readyDuringClaim = h.(*groupHandler).consumer.IsReady()
	if err := h.ConsumeClaim(g.session, g.claim); err != nil {
		return err
	}
	if err := h.Cleanup(g.session); err != nil {
		return err
	}
	return sarama.ErrClosedConsumerGroup
}

func (g *fakeGroup) Errors() <-chan error { return g.errs }

func (g *fakeGroup) Close() error {
	close(g.errs)
	return nil
}

func newFakeGroup(offsets ...int64) *fakeGroup {
	msgs := make(chan *sarama.ConsumerMessage, len(offsets))
	for _, off := range offsets {
		msgs <- &sarama.ConsumerMessage{
			Topic:     "u-bahn.action.create",
			Partition: 0,
			Offset:    off,
			Value:     []byte(`{}`),
			Headers:   []*sarama.RecordHeader{{Key: []byte("content-type"), Value: []byte("application/json")}},
		}
	}
	close(msgs)
	return &fakeGroup{
		session: &fakeSession{ctx: context.Background()},
		claim:   &fakeClaim{msgs: msgs},
		errs:    make(chan error),
	}
}

func newTestConsumer(t *testing.T, group *fakeGroup, commitOnAck bool) *Consumer {
	t.Helper()
	var gotCfg *sarama.Config
	c, err := New([]string{"broker:9092"}, "group", zerolog.New(io.Discard), commitOnAck,
		WithClientID("test-client"),
		WithGroupFactory(func(_ []string, _ string, cfg *sarama.Config) (sarama.ConsumerGroup, error) {
			gotCfg = cfg
			return group, nil
		}),
	)
	require.NoError(t, err)
	assert.Equal(t, "test-client", gotCfg.ClientID)
	assert.Equal(t, !commitOnAck, gotCfg.Consumer.Offsets.AutoCommit.Enable)
	return c
}

func TestConsumeDispatchesAndCommitsOnce(t *testing.T) {
	group := newFakeGroup(10, 11)
	c := newTestConsumer(t, group, true)

	var seen []int64
	err := c.Consume(context.Background(), []string{"u-bahn.action.create"}, func(ctx context.Context, rec *Record) error {
		seen = append(seen, rec.Offset)
		assert.Equal(t, []byte("application/json"), rec.Headers["content-type"])
		require.NoError(t, c.Commit(ctx, rec))
		require.NoError(t, c.Commit(ctx, rec))
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{10, 11}, seen)
	assert.Equal(t, []int64{10, 11}, group.session.marked)
	assert.Equal(t, 2, group.session.commits)
	assert.True(t, group.readyDuringClaim)
	assert.False(t, c.IsReady())
	require.NoError(t, c.Close())
}

func TestCommitWithoutAckOnlyMarks(t *testing.T) {
	group := newFakeGroup(5)
	c := newTestConsumer(t, group, false)

	err := c.Consume(context.Background(), []string{"t"}, func(ctx context.Context, rec *Record) error {
		return c.Commit(ctx, rec)
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, group.session.marked)
	assert.Zero(t, group.session.commits)
	require.NoError(t, c.Close())
}

func TestCommitRejectsDetachedRecord(t *testing.T) {
	c := newTestConsumer(t, newFakeGroup(), true)
	assert.Error(t, c.Commit(context.Background(), &Record{}))
	assert.Error(t, c.Commit(context.Background(), nil))
	require.NoError(t, c.Close())
}

func TestNewValidatesArguments(t *testing.T) {
	_, err := New(nil, "group", zerolog.Logger{}, true)
	assert.Error(t, err)
	_, err = New([]string{"b"}, "", zerolog.Logger{}, true)
	assert.Error(t, err)
}
