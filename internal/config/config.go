package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

type Config struct {
	API       APIConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Providers ProviderConfig
	Webhook   WebhookConfig
	Tracing   TracingConfig
}

type APIConfig struct {
	Addr               string
	PresignTTL         time.Duration
	RateLimitCapacity  int
	RateLimitWindow    time.Duration
	RateLimitKeyHeader string
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency     int
	MaxActivePhotos int
	LocalInputDir   string
	LocalOutputDir  string
	MetricsAddr     string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type DatabaseConfig struct {
	DSN string
}

// ProviderConfig locates the model sidecars. Landmark endpoints form a
// fallback chain: the first is preferred, the rest are tried on provider
// errors only.
type ProviderConfig struct {
	LandmarkEndpoints []string
	SegmentEndpoint   string
	Timeout           time.Duration
}

type WebhookConfig struct {
	SigningSecret string
	MaxAttempts   int
}

type TracingConfig struct {
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

func Load() Config {
	defaultWorkerSlots := max(1, runtime.NumCPU()/2)

	return Config{
		API: APIConfig{
			Addr:               env("PASSPIX_API_ADDR", ":8080"),
			PresignTTL:         envDuration("PASSPIX_PRESIGN_TTL", 15*time.Minute),
			RateLimitCapacity:  envInt("PASSPIX_RATE_LIMIT_CAPACITY", 30),
			RateLimitWindow:    envDuration("PASSPIX_RATE_LIMIT_WINDOW", time.Minute),
			RateLimitKeyHeader: env("PASSPIX_RATE_LIMIT_HEADER", "X-Session-ID"),
		},
		Queue: QueueConfig{
			RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
			RedisPassword: env("REDIS_PASSWORD", ""),
			RedisDB:       envInt("REDIS_DB", 0),
			Name:          env("ASYNC_QUEUE", "default"),
		},
		Worker: WorkerConfig{
			Concurrency:     envInt("WORKER_CONCURRENCY", max(2, runtime.NumCPU())),
			MaxActivePhotos: envInt("WORKER_MAX_ACTIVE_PHOTOS", defaultWorkerSlots),
			LocalInputDir:   env("WORKER_LOCAL_INPUT_DIR", "./uploads/original"),
			LocalOutputDir:  env("WORKER_LOCAL_OUTPUT_DIR", "./uploads/processed"),
			MetricsAddr:     env("WORKER_METRICS_ADDR", ":9090"),
		},
		Storage: StorageConfig{
			Endpoint:  env("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    env("MINIO_BUCKET", "passpix-photos"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
		},
		Database: DatabaseConfig{
			DSN: env("POSTGRES_DSN", ""),
		},
		Providers: ProviderConfig{
			LandmarkEndpoints: envList("PASSPIX_LANDMARK_ENDPOINTS", "http://localhost:9100/v1/landmarks"),
			SegmentEndpoint:   env("PASSPIX_SEGMENT_ENDPOINT", "http://localhost:9101/v1/segment"),
			Timeout:           envDuration("PASSPIX_PROVIDER_TIMEOUT", 60*time.Second),
		},
		Webhook: WebhookConfig{
			SigningSecret: env("PASSPIX_WEBHOOK_SECRET", ""),
			MaxAttempts:   envInt("PASSPIX_WEBHOOK_MAX_ATTEMPTS", 3),
		},
		Tracing: TracingConfig{
			Exporter:     env("PASSPIX_TRACE_EXPORTER", "none"),
			OTLPEndpoint: env("PASSPIX_OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("PASSPIX_OTLP_INSECURE", false),
		},
	}
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envList(key, fallback string) []string {
	raw := env(key, fallback)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
