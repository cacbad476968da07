package publisher_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkapublisher "github.com/example/bulk-record-processor/internal/kafka/publisher"
	"github.com/example/bulk-record-processor/internal/models"
	"github.com/example/bulk-record-processor/internal/status"
)

type fakeSyncProducer struct {
	err     error
	topic   string
	key     []byte
	headers map[string][]byte
	payload []byte
}

func (f *fakeSyncProducer) PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error {
	f.topic = topic
	f.key = append([]byte(nil), key...)
	f.headers = headers
	f.payload = append([]byte(nil), payload...)
	return f.err
}

var _ status.Reporter = (*kafkapublisher.StatusPublisher)(nil)

func TestStatusPublisherPublishesReport(t *testing.T) {
	prod := &fakeSyncProducer{}
	pub := kafkapublisher.NewStatusPublisher(prod, "upload.status", zerolog.Nop())
	require.NotNil(t, pub)

	report := models.StatusReport{
		UploadID:  "up-1",
		ObjectKey: "batch1.xlsx",
		Update:    models.UploadStatus{Status: models.UploadStatusCompleted},
		Total:     3,
		Succeeded: 2,
		Failed:    1,
		Timestamp: time.Unix(123, 0).UTC(),
	}

	require.NoError(t, pub.ReportStatus(context.Background(), report))

	assert.Equal(t, "upload.status", prod.topic)
	assert.Equal(t, "up-1", string(prod.key))
	assert.Equal(t, "application/json", string(prod.headers["content-type"]))

	var decoded models.StatusReport
	require.NoError(t, json.Unmarshal(prod.payload, &decoded))
	assert.Equal(t, report, decoded)
}

func TestStatusPublisherPropagatesProducerError(t *testing.T) {
	expectedErr := errors.New("broker down")
	pub := kafkapublisher.NewStatusPublisher(&fakeSyncProducer{err: expectedErr}, "upload.status", zerolog.Nop())

	err := pub.ReportStatus(context.Background(), models.StatusReport{UploadID: "id"})
	assert.ErrorIs(t, err, expectedErr)
}

func TestStatusPublisherHandlesNilInstance(t *testing.T) {
	var pub *kafkapublisher.StatusPublisher
	err := pub.ReportStatus(context.Background(), models.StatusReport{})
	assert.ErrorIs(t, err, kafkapublisher.ErrProducerNotInitialised())
	assert.Nil(t, kafkapublisher.NewStatusPublisher(nil, "t", zerolog.Nop()))
}
