package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config captures all runtime configuration for the bulk record processor.
type Config struct {
	App       AppConfig
	Kafka     KafkaConfig
	Storage   StorageConfig
	APIs      APIConfig
	Auth      AuthConfig
	Outbound  OutboundConfig
	Processor ProcessorConfig
	Health    HealthConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
}

// KafkaConfig defines broker information, topics and client TLS material.
type KafkaConfig struct {
	Brokers       []string
	ClientID      string
	GroupID       string
	ActionTopic   string
	StatusTopic   string
	ClientCert    string
	ClientCertKey string
	CommitOnAck   bool
}

// TLSEnabled reports whether both halves of the client certificate are set.
func (k KafkaConfig) TLSEnabled() bool {
	return k.ClientCert != "" && k.ClientCertKey != ""
}

// StorageConfig selects the object store and its buckets.
type StorageConfig struct {
	Region             string
	Endpoint           string
	AccessKeyID        string
	SecretAccessKey    string
	UploadBucket       string
	FailedRecordBucket string
	MaxWorkbookBytes   int
}

// APIConfig holds the base URLs of the collaborating HTTP services.
type APIConfig struct {
	RecordURL   string
	StatusURL   string
	IdentityURL string
}

// AuthConfig stores the machine-to-machine client credentials.
type AuthConfig struct {
	TokenURL     string
	Audience     string
	ClientID     string
	ClientSecret string
	ProxyURL     string
}

// OutboundConfig tunes every outbound HTTP client.
type OutboundConfig struct {
	TimeoutSeconds      int
	RateLimitRPS        int
	RateLimitBurst      int
	BreakerMaxFailures  int
	BreakerOpenSeconds  int
	ResponseBodyMaxSize int
}

// ProcessorConfig controls how a workbook is processed.
type ProcessorConfig struct {
	Concurrency       int
	CreateMissingUser bool
	FinalizeTimeoutMs int
}

// HealthConfig controls the health endpoint behaviour.
type HealthConfig struct {
	HandlerTimeoutMs int
}

// Load reads environment variables, applies defaults, validates required
// values and returns a populated Config instance.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.Port = ldr.getInt("APP_PORT", 8080, false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)

	cfg.Kafka.Brokers = ldr.getStringSlice("KAFKA_BROKERS", true)
	cfg.Kafka.ClientID = ldr.getString("KAFKA_CLIENT_ID", "bulk-record-processor", false)
	cfg.Kafka.GroupID = ldr.getString("KAFKA_GROUP_ID", "bulk-record-processor", false)
	cfg.Kafka.ActionTopic = ldr.getString("ACTION_CREATE_TOPIC", "u-bahn.action.create", false)
	cfg.Kafka.StatusTopic = ldr.getString("KAFKA_STATUS_TOPIC", "", false)
	cfg.Kafka.ClientCert = ldr.getString("KAFKA_CLIENT_CERT", "", false)
	cfg.Kafka.ClientCertKey = ldr.getString("KAFKA_CLIENT_CERT_KEY", "", false)
	cfg.Kafka.CommitOnAck = ldr.getBool("KAFKA_COMMIT_ON_ACK", true, false)

	cfg.Storage.Region = ldr.getString("AWS_REGION", "us-east-1", false)
	cfg.Storage.Endpoint = ldr.getString("S3_ENDPOINT", "", false)
	cfg.Storage.AccessKeyID = ldr.getString("S3_ACCESS_KEY_ID", "", false)
	cfg.Storage.SecretAccessKey = ldr.getString("S3_SECRET_ACCESS_KEY", "", false)
	cfg.Storage.UploadBucket = ldr.getString("S3_UPLOAD_BUCKET", "", true)
	cfg.Storage.FailedRecordBucket = ldr.getString("S3_FAILED_RECORD_BUCKET", "", true)
	cfg.Storage.MaxWorkbookBytes = ldr.getInt("WORKBOOK_MAX_BYTES", 50<<20, false)

	cfg.APIs.RecordURL = ldr.getString("RECORD_API_URL", "http://localhost:3001", false)
	cfg.APIs.StatusURL = ldr.getString("STATUS_API_URL", "http://localhost:3001", false)
	cfg.APIs.IdentityURL = ldr.getString("IDENTITY_API_URL", "http://localhost:3002/v3/users", false)

	cfg.Auth.TokenURL = ldr.getString("AUTH0_URL", "", false)
	cfg.Auth.Audience = ldr.getString("AUTH0_AUDIENCE", "", false)
	cfg.Auth.ClientID = ldr.getString("AUTH0_CLIENT_ID", "", false)
	cfg.Auth.ClientSecret = ldr.getString("AUTH0_CLIENT_SECRET", "", false)
	cfg.Auth.ProxyURL = ldr.getString("AUTH0_PROXY_SERVER_URL", "", false)

	cfg.Outbound.TimeoutSeconds = ldr.getInt("HTTP_TIMEOUT_SECONDS", 30, false)
	cfg.Outbound.RateLimitRPS = ldr.getInt("API_RATE_LIMIT_RPS", 50, false)
	cfg.Outbound.RateLimitBurst = ldr.getInt("API_RATE_LIMIT_BURST", 50, false)
	cfg.Outbound.BreakerMaxFailures = ldr.getInt("BREAKER_MAX_FAILURES", 10, false)
	cfg.Outbound.BreakerOpenSeconds = ldr.getInt("BREAKER_OPEN_SECONDS", 30, false)
	cfg.Outbound.ResponseBodyMaxSize = ldr.getInt("HTTP_RESPONSE_MAX_BYTES", 10<<20, false)

	cfg.Processor.Concurrency = ldr.getInt("PROCESS_CONCURRENCY_COUNT", 25, false)
	cfg.Processor.CreateMissingUser = ldr.getBool("CREATE_MISSING_USER", false, false)
	cfg.Processor.FinalizeTimeoutMs = ldr.getInt("FINALIZE_TIMEOUT_MS", 30000, false)

	cfg.Health.HandlerTimeoutMs = ldr.getInt("HEALTH_HANDLER_TIMEOUT_MS", 500, false)

	ldr.positive("APP_PORT", cfg.App.Port)
	ldr.positive("PROCESS_CONCURRENCY_COUNT", cfg.Processor.Concurrency)
	ldr.positive("FINALIZE_TIMEOUT_MS", cfg.Processor.FinalizeTimeoutMs)
	ldr.positive("HTTP_TIMEOUT_SECONDS", cfg.Outbound.TimeoutSeconds)
	if (cfg.Kafka.ClientCert == "") != (cfg.Kafka.ClientCertKey == "") {
		ldr.addError("KAFKA_CLIENT_CERT and KAFKA_CLIENT_CERT_KEY must be set together")
	}
	if cfg.Auth.TokenURL != "" && (cfg.Auth.ClientID == "" || cfg.Auth.ClientSecret == "") {
		ldr.addError("AUTH0_CLIENT_ID and AUTH0_CLIENT_SECRET are required when AUTH0_URL is set")
	}

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		i, err := strconv.Atoi(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid integer", key))
			return def
		}
		return i
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid boolean", key))
			return def
		}
		return parsed
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw := l.getString(key, "", required)
	if raw == "" {
		if required {
			return nil
		}
		return []string{}
	}
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if required && len(out) == 0 {
		l.addError(fmt.Sprintf("%s must contain at least one entry", key))
	}
	return out
}

func (l *envLoader) positive(key string, v int) {
	if v < 1 {
		l.addError(fmt.Sprintf("%s must be >= 1", key))
	}
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
