package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
)

type Config struct {
	App         AppConfig
	Server      ServerConfig
	Store       StoreConfig
	Cache       CacheConfig
	Shortener   ShortenerConfig
	Clicks      ClicksConfig
	Maintenance MaintenanceConfig
	Security    SecurityConfig
	OTel        OTelConfig
}

type AppConfig struct {
	Name     string
	Version  string
	Env      string
	LogLevel string
}

type ServerConfig struct {
	Port string
	Host string
}

// StoreConfig selects and configures the durable store backend.
type StoreConfig struct {
	Driver        string // "postgres" or "mongo"
	PostgresDSN   string
	MongoURI      string
	MongoDatabase string
}

type CacheConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	// TTL is fixed at population time; entries are not refreshed on read.
	TTL time.Duration
	// OpTimeout bounds every cache operation so a hung connection cannot
	// stall a redirect.
	OpTimeout time.Duration
}

type ShortenerConfig struct {
	BaseURL            string
	CodeLength         int
	MaxAttempts        int
	DefaultExpiryHours int64
	StrictValidation   bool
	RedirectStatus     int // 301 or 302
}

// ClicksConfig tunes the click accountant and the optional Kafka pipeline.
type ClicksConfig struct {
	QueueSize  int
	Workers    int
	MaxRetries int
	RetryDelay time.Duration

	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
}

type MaintenanceConfig struct {
	SweepInterval time.Duration
}

type SecurityConfig struct {
	APIKeys             []string
	CreateRatePerMinute int
}

type OTelConfig struct {
	Enabled  bool
	Endpoint string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	cfg := &Config{
		App: AppConfig{
			Name:     GetEnv("APP_NAME", "atalho-url"),
			Version:  GetEnv("APP_VERSION", "0.1.0"),
			Env:      GetEnv("APP_ENV", "development"),
			LogLevel: GetEnv("LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port: GetEnv("APP_PORT", "8080"),
			Host: GetEnv("APP_HOST", "localhost"),
		},
		Store: StoreConfig{
			Driver:        GetEnv("STORE_DRIVER", StoreDriverPostgres),
			PostgresDSN:   GetEnv("DATABASE_URL", defaultPostgresDSN()),
			MongoURI:      GetEnv("MONGODB_URI", "mongodb://localhost:27017"),
			MongoDatabase: GetEnv("MONGODB_DATABASE", "atalho"),
		},
		Cache: CacheConfig{
			Enabled:   GetEnvBool("CACHE_ENABLED", true),
			Addr:      GetEnv("REDIS_ADDR", "localhost:6379"),
			Password:  GetEnv("REDIS_PASSWORD", ""),
			DB:        GetEnvInt("REDIS_DB", 0),
			TTL:       GetEnvDuration("CACHE_TTL", time.Hour),
			OpTimeout: GetEnvDuration("CACHE_OP_TIMEOUT", 150*time.Millisecond),
		},
		Shortener: ShortenerConfig{
			BaseURL:            GetEnv("SHORTENER_BASE_URL", "http://localhost:8080"),
			CodeLength:         GetEnvInt("CODE_LENGTH", 8),
			MaxAttempts:        GetEnvInt("CODE_MAX_ATTEMPTS", 10),
			DefaultExpiryHours: GetEnvInt64("DEFAULT_EXPIRY_HOURS", 0),
			StrictValidation:   GetEnvBool("STRICT_URL_VALIDATION", true),
			RedirectStatus:     GetEnvInt("REDIRECT_STATUS", 302),
		},
		Clicks: ClicksConfig{
			QueueSize:  GetEnvInt("CLICKS_QUEUE_SIZE", 10000),
			Workers:    GetEnvInt("CLICKS_WORKERS", 2),
			MaxRetries: GetEnvInt("CLICKS_MAX_RETRIES", 3),
			RetryDelay: GetEnvDuration("CLICKS_RETRY_DELAY", 100*time.Millisecond),

			KafkaEnabled: GetEnvBool("CLICKS_KAFKA_ENABLED", false),
			KafkaBrokers: GetEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			KafkaTopic:   GetEnv("KAFKA_CLICKS_TOPIC", "clicks.recorded"),
			KafkaGroupID: GetEnv("KAFKA_CLICKS_GROUP", "atalho-click-consumer"),
		},
		Maintenance: MaintenanceConfig{
			SweepInterval: GetEnvDuration("SWEEP_INTERVAL", time.Hour),
		},
		Security: SecurityConfig{
			APIKeys:             GetEnvSlice("API_KEYS", nil),
			CreateRatePerMinute: GetEnvInt("CREATE_RATE_PER_MINUTE", 60),
		},
		OTel: OTelConfig{
			Enabled:  GetEnvBool("OTEL_ENABLED", false),
			Endpoint: GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
		},
	}

	if cfg.Store.Driver != StoreDriverPostgres && cfg.Store.Driver != StoreDriverMongo {
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q (got %q)", StoreDriverPostgres, StoreDriverMongo, cfg.Store.Driver)
	}
	if cfg.Shortener.RedirectStatus != 301 && cfg.Shortener.RedirectStatus != 302 {
		return nil, fmt.Errorf("REDIRECT_STATUS must be 301 or 302 (got %d)", cfg.Shortener.RedirectStatus)
	}
	if cfg.Shortener.CodeLength < 1 || cfg.Shortener.CodeLength > 16 {
		return nil, fmt.Errorf("CODE_LENGTH must be between 1 and 16 (got %d)", cfg.Shortener.CodeLength)
	}
	if cfg.Shortener.MaxAttempts < 1 || cfg.Shortener.MaxAttempts > 100 {
		return nil, fmt.Errorf("CODE_MAX_ATTEMPTS must be between 1 and 100 (got %d)", cfg.Shortener.MaxAttempts)
	}
	if cfg.Shortener.DefaultExpiryHours < 0 {
		return nil, fmt.Errorf("DEFAULT_EXPIRY_HOURS must not be negative (got %d)", cfg.Shortener.DefaultExpiryHours)
	}
	if cfg.Cache.TTL <= 0 {
		return nil, fmt.Errorf("CACHE_TTL must be positive (got %s)", cfg.Cache.TTL)
	}

	return cfg, nil
}

func defaultPostgresDSN() string {
	host := GetEnv("DB_HOST", "localhost")
	port := GetEnv("DB_PORT", "5432")
	user := GetEnv("DB_USER", "postgres")
	password := GetEnv("DB_PASSWORD", "postgres")
	dbName := GetEnv("DB_NAME", "atalho")
	sslMode := GetEnv("DB_SSL_MODE", "disable")
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", host, port, user, password, dbName, sslMode)
}
