package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// -----------------------------------------------------------------------------
// required: values that differ between environments and have no safe default
// default: values that work for a local docker-compose setup
// -----------------------------------------------------------------------------

type Config struct {
	Kafka   KafkaConfig
	DB      DBConfig
	Redis   RedisConfig
	Mongo   MongoConfig
	Breaker BreakerConfig
	Ops     OpsConfig
	Log     LogConfig
}

type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	// Topics defaults to one topic per event kind when empty.
	Topics          []string      `envconfig:"KAFKA_TOPICS"`
	GroupID         string        `envconfig:"KAFKA_GROUP_ID" default:"processor.consumer"`
	Workers         int           `envconfig:"CONSUMER_WORKERS" default:"1"`
	MaxAttempts     int           `envconfig:"MAX_ATTEMPTS" default:"5"`
	RetryBackoff    time.Duration `envconfig:"RETRY_BACKOFF" default:"500ms"`
	RetryNotFound   bool          `envconfig:"RETRY_NOT_FOUND" default:"true"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

type DBConfig struct {
	Host           string `envconfig:"DB_HOST" default:"localhost"`
	Port           int    `envconfig:"DB_PORT" default:"5432"`
	User           string `envconfig:"DB_USER" required:"true"`
	Password       string `envconfig:"DB_PASSWORD" required:"true"`
	DBName         string `envconfig:"DB_NAME" default:"carts"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"internal/repository/migrations"`
}

type RedisConfig struct {
	// Addr left empty disables the snapshot cache.
	Addr     string        `envconfig:"REDIS_ADDR"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	TTL      time.Duration `envconfig:"CACHE_TTL" default:"15m"`
}

type MongoConfig struct {
	URI    string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	DBName string `envconfig:"MONGO_DB_NAME" default:"cart_processor"`
}

type BreakerConfig struct {
	MaxRequests      uint32        `envconfig:"BREAKER_MAX_REQUESTS" default:"1"`
	Interval         time.Duration `envconfig:"BREAKER_INTERVAL" default:"60s"`
	Timeout          time.Duration `envconfig:"BREAKER_TIMEOUT" default:"30s"`
	ConsecutiveFails uint32        `envconfig:"BREAKER_CONSECUTIVE_FAILS" default:"5"`
}

type OpsConfig struct {
	Port string `envconfig:"OPS_PORT" default:"8081"`
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// LoadConfig reads the environment. Variables from a .env file in the working
// directory fill in whatever the environment does not already set.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrap(err, "failed to load .env")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to process env config")
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("KAFKA_BROKERS must not be empty")
	}
	if c.Kafka.Workers < 1 {
		return errors.Newf("CONSUMER_WORKERS must be at least 1, got %d", c.Kafka.Workers)
	}
	if c.Kafka.MaxAttempts < 1 {
		return errors.Newf("MAX_ATTEMPTS must be at least 1, got %d", c.Kafka.MaxAttempts)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return errors.Newf("LOG_FORMAT must be json or console, got %q", c.Log.Format)
	}
	return nil
}

func NewTestConfig() Config {
	return Config{
		Kafka: KafkaConfig{
			Brokers:         []string{"localhost:9092"},
			GroupID:         "processor.consumer",
			Workers:         1,
			MaxAttempts:     3,
			RetryBackoff:    10 * time.Millisecond,
			RetryNotFound:   true,
			ShutdownTimeout: time.Second,
		},
		DB: DBConfig{
			Host:           "localhost",
			Port:           5432,
			User:           "test",
			Password:       "test",
			DBName:         "test_db",
			MigrationsPath: "internal/repository/migrations",
		},
		Mongo: MongoConfig{
			URI:    "mongodb://localhost:27017",
			DBName: "test_db",
		},
		Breaker: BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Second, ConsecutiveFails: 5},
		Ops:     OpsConfig{Port: "0"},
		Log: LogConfig{
			Level:  "error", // error level only for tests
			Format: "console",
		},
	}
}
