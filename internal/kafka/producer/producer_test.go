package producer

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSyncDeliversMessage(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "upload-1" {
			return errors.New("unexpected key " + string(key))
		}
		if len(msg.Headers) != 1 || string(msg.Headers[0].Key) != "content-type" {
			return errors.New("missing content-type header")
		}
		return nil
	})

	p := newProducer(nil, sp, time.Minute, zerolog.New(io.Discard))
	err := p.PublishSync("upload.status", []byte("upload-1"), map[string][]byte{"content-type": []byte("application/json")}, []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, p.IsReady())
	require.NoError(t, p.Close())
}

func TestPublishSyncFailureClearsReadiness(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := newProducer(nil, sp, time.Minute, zerolog.Logger{})
	p.ready.Store(true)

	err := p.PublishSync("upload.status", nil, nil, []byte(`{}`))
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	assert.False(t, p.IsReady())
	require.NoError(t, p.Close())
}

func TestPublishSyncRequiresTopic(t *testing.T) {
	p := newProducer(nil, mocks.NewSyncProducer(t, nil), time.Minute, zerolog.Logger{})
	assert.Error(t, p.PublishSync("", nil, nil, nil))
	require.NoError(t, p.Close())
}

func TestNewRequiresBrokers(t *testing.T) {
	_, err := New(nil, zerolog.Logger{})
	assert.Error(t, err)
}
