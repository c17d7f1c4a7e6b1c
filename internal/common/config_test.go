package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("notify-worker")
	require.NoError(t, err)

	assert.Equal(t, "notify-worker", cfg.ServiceName)
	assert.Equal(t, 10, cfg.Concurrency)
	assert.Equal(t, 5, cfg.MaxJobAttempts)
	assert.Equal(t, time.Second, cfg.RetryBaseDelay)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "notifications.jobs", cfg.JobsTopic)
	assert.Equal(t, "notifications.dlq", cfg.DLQTopic)
	assert.Equal(t, "templates", cfg.TemplateDir)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "4")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("RETRY_BASE_DELAY", "250ms")

	cfg, err := LoadConfig("notify-worker")
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBaseDelay)
}

func TestLoadConfigRejectsNonPositiveConcurrency(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "0")
	_, err := LoadConfig("notify-worker")
	assert.Error(t, err)
}
