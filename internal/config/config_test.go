package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("S3_UPLOAD_BUCKET", "uploads")
	t.Setenv("S3_FAILED_RECORD_BUCKET", "failures")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "u-bahn.action.create", cfg.Kafka.ActionTopic)
	assert.Equal(t, "bulk-record-processor", cfg.Kafka.GroupID)
	assert.False(t, cfg.Kafka.TLSEnabled())
	assert.Equal(t, 25, cfg.Processor.Concurrency)
	assert.False(t, cfg.Processor.CreateMissingUser)
	assert.Equal(t, 30000, cfg.Processor.FinalizeTimeoutMs)
	assert.Equal(t, "http://localhost:3002/v3/users", cfg.APIs.IdentityURL)
	assert.Equal(t, 30, cfg.Outbound.TimeoutSeconds)
	assert.Equal(t, 8080, cfg.App.Port)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PROCESS_CONCURRENCY_COUNT", "4")
	t.Setenv("CREATE_MISSING_USER", "true")
	t.Setenv("KAFKA_CLIENT_CERT", "cert")
	t.Setenv("KAFKA_CLIENT_CERT_KEY", "key")
	t.Setenv("KAFKA_STATUS_TOPIC", "upload.status")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Processor.Concurrency)
	assert.True(t, cfg.Processor.CreateMissingUser)
	assert.True(t, cfg.Kafka.TLSEnabled())
	assert.Equal(t, "upload.status", cfg.Kafka.StatusTopic)
}

func TestLoadAggregatesErrors(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("S3_UPLOAD_BUCKET", "")
	t.Setenv("S3_FAILED_RECORD_BUCKET", "failures")
	t.Setenv("PROCESS_CONCURRENCY_COUNT", "many")
	t.Setenv("KAFKA_CLIENT_CERT", "cert-only")

	_, err := Load()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "KAFKA_BROKERS is required")
	assert.Contains(t, msg, "S3_UPLOAD_BUCKET is required")
	assert.Contains(t, msg, "PROCESS_CONCURRENCY_COUNT must be a valid integer")
	assert.Contains(t, msg, "must be set together")
}

func TestLoadRejectsZeroConcurrency(t *testing.T) {
	setRequired(t)
	t.Setenv("PROCESS_CONCURRENCY_COUNT", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROCESS_CONCURRENCY_COUNT must be >= 1")
}
