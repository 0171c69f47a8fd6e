package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App         App         `yaml:"app"`
	HTTP        HTTP        `yaml:"http"`
	Log         Log         `yaml:"log"`
	Postgres    Postgres    `yaml:"postgres"`
	Redis       Redis       `yaml:"redis"`
	EventSource EventSource `yaml:"event_source"`
	Checkpoint  Checkpoint  `yaml:"checkpoint"`
	Consumer    Consumer    `yaml:"consumer"`
	Warehouse   Warehouse   `yaml:"warehouse"`
}

type App struct {
	Name    string `yaml:"name" env:"APP_NAME" env-default:"repairhub"`
	Version string `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
}

type HTTP struct {
	Port        string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	MetricsPort string `yaml:"metrics_port" env:"METRICS_PORT" env-default:"9091"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type Postgres struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-default:"user"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-default:"password"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB" env-default:"repairhub"`
}

// Redis is the general purpose Redis used by the warehouse for idempotency keys.
type Redis struct {
	Addr string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
}

// EventSource identifies the partitioned log. Either Namespace (identity
// based) or ConnectionString (shared secret) must be set together with Name.
// NamespaceSuffix completes a bare namespace label into a host name.
type EventSource struct {
	Namespace        string `yaml:"namespace" env:"EVENT_SOURCE_NAMESPACE"`
	NamespaceSuffix  string `yaml:"namespace_suffix" env:"EVENT_SOURCE_NAMESPACE_SUFFIX" env-default:".servicebus.windows.net"`
	ConnectionString string `yaml:"connection_string" env:"EVENT_SOURCE_CONNECTION_STRING"`
	Name             string `yaml:"name" env:"EVENT_SOURCE_NAME" env-default:"repair-reports"`
	ConsumerGroup    string `yaml:"consumer_group" env:"EVENT_SOURCE_CONSUMER_GROUP" env-default:"$Default"`
	ClientCertFile   string `yaml:"client_cert_file" env:"EVENT_SOURCE_CLIENT_CERT_FILE"`
	ClientKeyFile    string `yaml:"client_key_file" env:"EVENT_SOURCE_CLIENT_KEY_FILE"`
	// StartOffset applies to partitions without a checkpoint: "earliest" or "latest".
	StartOffset string `yaml:"start_offset" env:"EVENT_SOURCE_START_OFFSET" env-default:"earliest"`
}

type Checkpoint struct {
	Backend        string `yaml:"backend" env:"CHECKPOINT_BACKEND" env-default:"redis"`
	Addr           string `yaml:"addr" env:"CHECKPOINT_ADDR" env-default:"localhost:6379"`
	Password       string `yaml:"password" env:"CHECKPOINT_PASSWORD"`
	ClientCertFile string `yaml:"client_cert_file" env:"CHECKPOINT_CLIENT_CERT_FILE"`
	ClientKeyFile  string `yaml:"client_key_file" env:"CHECKPOINT_CLIENT_KEY_FILE"`
	Container      string `yaml:"container" env:"CHECKPOINT_CONTAINER" env-default:"checkpoint-store"`
}

type Consumer struct {
	CheckpointThreshold int           `yaml:"checkpoint_threshold" env:"CONSUMER_CHECKPOINT_THRESHOLD" env-default:"2"`
	LeaseTTL            time.Duration `yaml:"lease_ttl" env:"CONSUMER_LEASE_TTL" env-default:"30s"`
	HandleTimeout       time.Duration `yaml:"handle_timeout" env:"CONSUMER_HANDLE_TIMEOUT" env-default:"30s"`
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout" env:"CONSUMER_SHUTDOWN_TIMEOUT" env-default:"30s"`
	DeadLetterTopic     string        `yaml:"dead_letter_topic" env:"CONSUMER_DEAD_LETTER_TOPIC"`
}

type Warehouse struct {
	URL         string        `yaml:"url" env:"WAREHOUSE_URL" env-default:"http://localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env:"WAREHOUSE_TIMEOUT" env-default:"10s"`
	MaxInFlight int           `yaml:"max_in_flight" env:"WAREHOUSE_MAX_IN_FLIGHT" env-default:"50"`
	// Policy guards outbound part orders: none, retry, circuit-breaker or
	// retry-circuit-breaker. The consumer re-reads it on SIGHUP.
	Policy               string        `yaml:"policy" env:"WAREHOUSE_POLICY" env-default:"retry"`
	RetryMax             int           `yaml:"retry_max" env:"WAREHOUSE_RETRY_MAX" env-default:"3"`
	RetryInitialInterval time.Duration `yaml:"retry_initial_interval" env:"WAREHOUSE_RETRY_INITIAL_INTERVAL" env-default:"200ms"`
	BreakerFailures      uint32        `yaml:"breaker_failures" env:"WAREHOUSE_BREAKER_FAILURES" env-default:"5"`
	BreakerOpenTimeout   time.Duration `yaml:"breaker_open_timeout" env:"WAREHOUSE_BREAKER_OPEN_TIMEOUT" env-default:"30s"`
}

func New() (*Config, error) {
	return Load("config.yaml")
}

// Load reads path when it exists and lets env vars override it.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		// fallback to env vars if file not found
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	} else {
		// Allow env vars to override config file
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config env override: %w", err)
		}
	}

	return cfg, nil
}
