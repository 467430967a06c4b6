package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Service points at the remote competitor news service.
type Service struct {
	URL     string
	Timeout time.Duration
}

// Store selects the durable key/value backend.
type Store struct {
	Backend       string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ItemsKey      string
	ViewKey       string
	// UpdatesChannel is the Redis pub/sub channel for change signals; empty disables the bridge.
	UpdatesChannel string
}

// Archive holds Elasticsearch parameters for the curated item archive.
type Archive struct {
	Enabled bool
	Addr    string
	Index   string
}

// Kafka holds broker parameters shared by the API sink and the worker.
type Kafka struct {
	Brokers []string
	Topic   string
}

// API describes HTTP-layer configuration.
type API struct {
	Service
	Store
	Archive
	Kafka
	BindAddr        string
	ItemSink        string
	SinkTimeout     time.Duration
	HeaderImage     string
	ShareCloseDelay time.Duration
	ShareSessionTTL time.Duration
	Competitors     []string
	DefaultPage     int
	MaxPage         int
}

// Worker holds configuration for the Kafka -> remote service + archive worker.
type Worker struct {
	Service
	Archive
	Kafka
	KafkaConsumer    string
	KeywordLimit     int
	KeywordMinLength int
	DedupeCapacity   int
	DedupeTTL        time.Duration
	BatchSize        int
	CommitInterval   time.Duration
	MaxRetries       int
	MetricsAddr      string
}

// Retention configures the archive cleanup loop.
type Retention struct {
	Archive
	Interval    time.Duration
	MaxAge      time.Duration
	BatchSize   int
	MetricsAddr string
}

// CLI configures newsletterctl.
type CLI struct {
	Service
	Store
	HeaderImage       string
	LoadingMinDisplay time.Duration
	Competitors       []string
}

var itemSinks = map[string]struct{}{"none": {}, "http": {}, "kafka": {}}

var storeBackends = map[string]struct{}{"memory": {}, "sqlite": {}, "redis": {}}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}
	c := &API{
		Service:         loadService(),
		Store:           loadStore(),
		Archive:         loadArchive(),
		Kafka:           loadKafka(),
		BindAddr:        getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		ItemSink:        strings.ToLower(getEnv("ITEM_SINK", "http")),
		SinkTimeout:     getDuration("ITEM_SINK_TIMEOUT", "10s"),
		HeaderImage:     getEnv("HEADER_IMAGE", ""),
		ShareCloseDelay: getDuration("SHARE_CLOSE_DELAY", "2s"),
		ShareSessionTTL: getDuration("SHARE_SESSION_TTL", "30m"),
		Competitors:     splitAndTrim(getEnv("COMPETITORS", "")),
		DefaultPage:     getInt("API_PAGE_SIZE", 20),
		MaxPage:         getInt("API_MAX_PAGE_SIZE", 100),
	}

	if err := c.Store.validate(); err != nil {
		return nil, err
	}
	if _, ok := itemSinks[c.ItemSink]; !ok {
		return nil, fmt.Errorf("ITEM_SINK must be one of none, http, kafka")
	}
	if c.ItemSink == "kafka" && len(c.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker when ITEM_SINK=kafka")
	}
	if c.ShareCloseDelay < 0 {
		return nil, fmt.Errorf("SHARE_CLOSE_DELAY cannot be negative")
	}
	if c.ShareSessionTTL <= 0 {
		return nil, fmt.Errorf("SHARE_SESSION_TTL must be positive")
	}
	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}

	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}
	c := &Worker{
		Service:          loadService(),
		Archive:          loadArchive(),
		Kafka:            loadKafka(),
		KafkaConsumer:    getEnv("KAFKA_CONSUMER_GROUP", "newsletter-worker"),
		KeywordLimit:     getInt("WORKER_KEYWORD_LIMIT", 8),
		KeywordMinLength: getInt("WORKER_KEYWORD_MIN_LEN", 4),
		DedupeCapacity:   getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:        getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:        getInt("WORKER_BATCH_SIZE", 10),
		CommitInterval:   getDuration("WORKER_COMMIT_INTERVAL", "2s"),
		MaxRetries:       getInt("WORKER_MAX_RETRIES", 5),
		MetricsAddr:      getEnv("WORKER_METRICS_ADDR", ":9091"),
	}

	if len(c.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.KeywordLimit <= 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_LIMIT must be positive")
	}
	if c.KeywordMinLength < 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_MIN_LEN cannot be negative")
	}
	if c.MaxRetries < 0 {
		return nil, fmt.Errorf("WORKER_MAX_RETRIES cannot be negative")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}
	c := &Retention{
		Archive:     loadArchive(),
		Interval:    getDuration("RETENTION_CRON", "24h"),
		MaxAge:      getDuration("RETENTION_MAX_AGE", "2160h"),
		BatchSize:   getInt("RETENTION_BATCH_SIZE", 500),
		MetricsAddr: getEnv("RETENTION_METRICS_ADDR", ":9092"),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

// LoadCLI builds the newsletterctl config from environment variables.
func LoadCLI() (*CLI, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}
	c := &CLI{
		Service:           loadService(),
		Store:             loadStore(),
		HeaderImage:       getEnv("HEADER_IMAGE", ""),
		LoadingMinDisplay: getDuration("LOADING_MIN_DISPLAY", "1s"),
		Competitors:       splitAndTrim(getEnv("COMPETITORS", "")),
	}
	if err := c.Store.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func loadService() Service {
	return Service{
		URL:     getEnv("NEWS_SERVICE_URL", "https://ci-backend-1.onrender.com"),
		Timeout: getDuration("NEWS_SERVICE_TIMEOUT", "15s"),
	}
}

func loadStore() Store {
	return Store{
		Backend:        strings.ToLower(getEnv("STORE_BACKEND", "sqlite")),
		Path:           getEnv("STORE_PATH", "newsletter.db"),
		RedisAddr:      getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getInt("REDIS_DB", 0),
		ItemsKey:       getEnv("STORE_ITEMS_KEY", "newsletterItems"),
		ViewKey:        getEnv("STORE_VIEW_KEY", "activePage"),
		UpdatesChannel: getEnv("REDIS_UPDATES_CHANNEL", ""),
	}
}

func loadArchive() Archive {
	return Archive{
		Enabled: getBool("ARCHIVE_ENABLED", true),
		Addr:    getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		Index:   getEnv("ELASTICSEARCH_INDEX", "newsletter_archive"),
	}
}

func loadKafka() Kafka {
	return Kafka{
		Brokers: splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		Topic:   getEnv("KAFKA_TOPIC", "newsletter_items"),
	}
}

func (s Store) validate() error {
	if _, ok := storeBackends[s.Backend]; !ok {
		return fmt.Errorf("STORE_BACKEND must be one of memory, sqlite, redis")
	}
	if s.Backend == "sqlite" && s.Path == "" {
		return fmt.Errorf("STORE_PATH is required for the sqlite backend")
	}
	if s.ItemsKey == s.ViewKey {
		return fmt.Errorf("STORE_ITEMS_KEY and STORE_VIEW_KEY must differ")
	}
	return nil
}

// loadEnvFiles reads ENV_FILE when set, otherwise .env.local then .env. Variables already
// present in the environment are never overridden.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err == nil {
		return d
	}
	fd, ferr := time.ParseDuration(fallback)
	if ferr != nil {
		panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
	}
	return fd
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
