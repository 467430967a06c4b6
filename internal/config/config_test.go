package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DeafMist/competitor-newsletter/internal/config"
	"github.com/stretchr/testify/require"
)

func TestLoadAPIDefaults(t *testing.T) {
	for _, key := range []string{"NEWS_SERVICE_URL", "STORE_BACKEND", "ITEM_SINK", "SHARE_CLOSE_DELAY", "ELASTICSEARCH_INDEX", "KAFKA_TOPIC", "COMPETITORS"} {
		t.Setenv(key, "")
	}

	cfg, err := config.LoadAPI()
	require.NoError(t, err)

	require.Equal(t, "https://ci-backend-1.onrender.com", cfg.Service.URL)
	require.Equal(t, "sqlite", cfg.Store.Backend)
	require.Equal(t, "newsletterItems", cfg.ItemsKey)
	require.Equal(t, "activePage", cfg.ViewKey)
	require.Equal(t, "http", cfg.ItemSink)
	require.Equal(t, 2*time.Second, cfg.ShareCloseDelay)
	require.Equal(t, "newsletter_archive", cfg.Archive.Index)
	require.Equal(t, "newsletter_items", cfg.Kafka.Topic)
	require.Empty(t, cfg.Competitors)
}

func TestLoadAPIOverrides(t *testing.T) {
	t.Setenv("API_BIND_ADDR", ":9090")
	t.Setenv("NEWS_SERVICE_URL", "http://news.local")
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("REDIS_ADDR", "localhost:6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("ITEM_SINK", "kafka")
	t.Setenv("KAFKA_BROKERS", "broker-a:29092, broker-b:29093")
	t.Setenv("HEADER_IMAGE", "/srv/pdfheader.png")
	t.Setenv("COMPETITORS", "Acme, Globex,,")
	t.Setenv("ARCHIVE_ENABLED", "false")

	cfg, err := config.LoadAPI()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.BindAddr)
	require.Equal(t, "http://news.local", cfg.Service.URL)
	require.Equal(t, "redis", cfg.Store.Backend)
	require.Equal(t, "localhost:6380", cfg.RedisAddr)
	require.Equal(t, 2, cfg.RedisDB)
	require.Equal(t, "kafka", cfg.ItemSink)
	require.Equal(t, []string{"broker-a:29092", "broker-b:29093"}, cfg.Kafka.Brokers)
	require.Equal(t, "/srv/pdfheader.png", cfg.HeaderImage)
	require.Equal(t, []string{"Acme", "Globex"}, cfg.Competitors)
	require.False(t, cfg.Archive.Enabled)
}

func TestLoadAPIValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown sink", env: map[string]string{"ITEM_SINK": "smtp"}},
		{name: "unknown backend", env: map[string]string{"STORE_BACKEND": "postgres"}},
		{name: "same keys", env: map[string]string{"STORE_ITEMS_KEY": "k", "STORE_VIEW_KEY": "k"}},
		{name: "negative close delay", env: map[string]string{"SHARE_CLOSE_DELAY": "-1s"}},
		{name: "page size", env: map[string]string{"API_PAGE_SIZE": "500", "API_MAX_PAGE_SIZE": "100"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.LoadAPI()
			require.Error(t, err)
		})
	}
}

func TestLoadWorkerOverrides(t *testing.T) {
	t.Setenv("ELASTICSEARCH_ADDR", "http://localhost:9999")
	t.Setenv("ELASTICSEARCH_INDEX", "custom")
	t.Setenv("KAFKA_BROKERS", "broker-a:29092,broker-b:29093")
	t.Setenv("KAFKA_TOPIC", "custom_topic")
	t.Setenv("KAFKA_CONSUMER_GROUP", "custom-group")
	t.Setenv("WORKER_KEYWORD_LIMIT", "12")
	t.Setenv("WORKER_DEDUPE_TTL", "48h")
	t.Setenv("WORKER_COMMIT_INTERVAL", "5s")
	t.Setenv("WORKER_MAX_RETRIES", "5")

	cfg, err := config.LoadWorker()
	require.NoError(t, err)

	require.Equal(t, "http://localhost:9999", cfg.Archive.Addr)
	require.Equal(t, "custom", cfg.Archive.Index)
	require.Len(t, cfg.Kafka.Brokers, 2)
	require.Equal(t, "custom_topic", cfg.Kafka.Topic)
	require.Equal(t, "custom-group", cfg.KafkaConsumer)
	require.Equal(t, 12, cfg.KeywordLimit)
	require.Equal(t, 48*time.Hour, cfg.DedupeTTL)
	require.Equal(t, 5*time.Second, cfg.CommitInterval)
	require.Equal(t, 5, cfg.MaxRetries)
}

func TestLoadWorkerInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("WORKER_DEDUPE_TTL", "tomorrow")
	cfg, err := config.LoadWorker()
	require.NoError(t, err)
	require.Equal(t, 24*time.Hour, cfg.DedupeTTL)
}

func TestLoadRetention(t *testing.T) {
	t.Setenv("ELASTICSEARCH_INDEX", "ret-index")
	t.Setenv("RETENTION_CRON", "12h")
	t.Setenv("RETENTION_MAX_AGE", "36h")
	t.Setenv("RETENTION_BATCH_SIZE", "123")

	cfg, err := config.LoadRetention()
	require.NoError(t, err)
	require.Equal(t, "ret-index", cfg.Archive.Index)
	require.Equal(t, 12*time.Hour, cfg.Interval)
	require.Equal(t, 36*time.Hour, cfg.MaxAge)
	require.Equal(t, 123, cfg.BatchSize)
	require.Equal(t, ":9092", cfg.MetricsAddr)

	t.Setenv("RETENTION_BATCH_SIZE", "0")
	_, err = config.LoadRetention()
	require.Error(t, err)
}

func TestLoadCLIReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.env")
	require.NoError(t, os.WriteFile(path, []byte("STORE_PATH=/tmp/from-env-file.db\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Setenv("STORE_BACKEND", "sqlite")
	// Setenv restores the original value on cleanup; unset so the file can provide it.
	t.Setenv("STORE_PATH", "")
	require.NoError(t, os.Unsetenv("STORE_PATH"))

	cfg, err := config.LoadCLI()
	require.NoError(t, err)
	require.Equal(t, "/tmp/from-env-file.db", cfg.Store.Path)
	require.Equal(t, time.Second, cfg.LoadingMinDisplay)
}
