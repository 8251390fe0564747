package config

import (
	"fmt"

	pkgconfig "github.com/Mino1214/juncom-server/pkg/config"
)

// Config holds all configuration for the juncom server.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"juncom"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"juncom_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"juncom"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINS" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINS" envDefault:"30"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Job queue
	QueueWorkers        int `env:"QUEUE_WORKERS" envDefault:"4"`
	QueuePollIntervalMs int `env:"QUEUE_POLL_INTERVAL_MS" envDefault:"250"`
	QueueMaxAttempts    int `env:"QUEUE_MAX_ATTEMPTS" envDefault:"5"`

	// Orders
	AutoCancelDelaySeconds int `env:"ORDER_AUTOCANCEL_DELAY_SECONDS" envDefault:"60"`

	// Stock cache
	StockCacheTTLSeconds int `env:"STOCK_CACHE_TTL_SECONDS" envDefault:"5"`

	// User cache (auth)
	UserCacheTTLSeconds int `env:"USER_CACHE_TTL_SECONDS" envDefault:"3600"`

	// Email verification codes
	VerificationTTLSeconds int `env:"VERIFICATION_TTL_SECONDS" envDefault:"300"`

	// Payment gateway
	GatewayBaseURL  string `env:"PAYMENT_GATEWAY_URL" envDefault:"https://api.payment.example.com"`
	GatewayMerchant string `env:"PAYMENT_GATEWAY_MERCHANT" envDefault:""`
	GatewayAPIKey   string `env:"PAYMENT_GATEWAY_API_KEY" envDefault:""`

	// Address lookup
	AddressAPIBaseURL string `env:"ADDRESS_API_URL" envDefault:"https://business.juso.go.kr"`
	AddressAPIKey     string `env:"ADDRESS_API_KEY" envDefault:""`

	// Pprof
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32,10.0.0.0/8" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.QueueWorkers < 1 {
		return fmt.Errorf("queue workers must be at least 1, got %d", c.QueueWorkers)
	}
	if c.QueueMaxAttempts < 1 {
		return fmt.Errorf("queue max attempts must be at least 1, got %d", c.QueueMaxAttempts)
	}
	if c.AutoCancelDelaySeconds < 1 {
		return fmt.Errorf("autocancel delay must be at least 1s, got %ds", c.AutoCancelDelaySeconds)
	}
	return nil
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL,
	)
}
