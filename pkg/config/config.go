package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"boxoffice/pkg/client"
	"boxoffice/pkg/logger"
)

type Config struct {
	Port string

	HoldTTL       time.Duration
	MaxHoldTTL    time.Duration
	SweepInterval time.Duration

	CatalogBackend   string
	CatalogSeedFile  string
	MongoURI         string
	MongoDatabase    string
	MongoConnTimeout time.Duration

	PaymentGatewayURL     string
	PaymentGatewayTimeout time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	KafkaBrokers      []string
	KafkaTopic        string
	KafkaMaxAttempts  int
	KafkaBatchTimeout time.Duration

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	cfg := &Config{
		Port: getEnvStr(EnvPort, DefaultPort),

		HoldTTL:       getEnvDuration(EnvHoldTTL, DefaultHoldTTL),
		MaxHoldTTL:    getEnvDuration(EnvMaxHoldTTL, DefaultMaxHoldTTL),
		SweepInterval: getEnvDuration(EnvSweepInterval, DefaultSweepInterval),

		CatalogBackend:   getEnvStr(EnvCatalogBackend, DefaultCatalogBackend),
		CatalogSeedFile:  getEnvStr(EnvCatalogSeedFile, ""),
		MongoURI:         getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabase:    getEnvStr(EnvMongoDatabase, DefaultMongoDatabase),
		MongoConnTimeout: getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		PaymentGatewayURL:     getEnvStr(EnvPaymentGatewayURL, DefaultPaymentGatewayURL),
		PaymentGatewayTimeout: getEnvDuration(EnvPaymentGatewayTimeout, DefaultPaymentGatewayTimeout),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		KafkaBrokers:      splitBrokers(getEnvStr(EnvKafkaBrokers, DefaultKafkaBrokers)),
		KafkaTopic:        getEnvStr(EnvKafkaTopic, DefaultKafkaTopic),
		KafkaMaxAttempts:  getEnvNum(EnvKafkaMaxAttempts, DefaultKafkaMaxAttempts),
		KafkaBatchTimeout: getEnvDuration(EnvKafkaBatchTimeout, DefaultKafkaBatchTimeout),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// SetMongo connects the shared Mongo client. Only called when the catalog
// backend is mongo.
func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.HoldTTL <= 0 {
		errors = append(errors, fmt.Sprintf("HoldTTL must be positive, got: %s", cfg.HoldTTL))
	}
	if cfg.MaxHoldTTL < cfg.HoldTTL {
		errors = append(errors, fmt.Sprintf("MaxHoldTTL (%s) must be >= HoldTTL (%s)", cfg.MaxHoldTTL, cfg.HoldTTL))
	}
	if cfg.SweepInterval <= 0 {
		errors = append(errors, fmt.Sprintf("SweepInterval must be positive, got: %s", cfg.SweepInterval))
	}

	switch cfg.CatalogBackend {
	case CatalogBackendMemory:
	case CatalogBackendMongo:
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty when CatalogBackend is mongo")
		} else if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", cfg.MongoURI))
		}
		if cfg.MongoDatabase == "" {
			errors = append(errors, "MongoDatabase cannot be empty when CatalogBackend is mongo")
		}
		if cfg.MongoConnTimeout <= 0 {
			errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
		}
	default:
		errors = append(errors, fmt.Sprintf("CatalogBackend must be %q or %q, got: %s", CatalogBackendMemory, CatalogBackendMongo, cfg.CatalogBackend))
	}

	if cfg.PaymentGatewayURL != "" && !strings.HasPrefix(cfg.PaymentGatewayURL, "http://") && !strings.HasPrefix(cfg.PaymentGatewayURL, "https://") {
		errors = append(errors, fmt.Sprintf("PaymentGatewayURL must be an http(s) URL, got: %s", cfg.PaymentGatewayURL))
	}
	if cfg.PaymentGatewayTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("PaymentGatewayTimeout must be positive, got: %s", cfg.PaymentGatewayTimeout))
	}

	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	if len(cfg.KafkaBrokers) > 0 {
		if cfg.KafkaTopic == "" {
			errors = append(errors, "KafkaTopic cannot be empty when brokers are configured")
		}
		if cfg.KafkaMaxAttempts <= 0 {
			errors = append(errors, fmt.Sprintf("KafkaMaxAttempts must be positive, got: %d", cfg.KafkaMaxAttempts))
		}
		if cfg.KafkaBatchTimeout <= 0 {
			errors = append(errors, fmt.Sprintf("KafkaBatchTimeout must be positive, got: %s", cfg.KafkaBatchTimeout))
		}
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"port", cfg.Port,
		"hold_ttl", cfg.HoldTTL,
		"max_hold_ttl", cfg.MaxHoldTTL,
		"sweep_interval", cfg.SweepInterval,
		"catalog_backend", cfg.CatalogBackend,
		"catalog_seed_file", cfg.CatalogSeedFile,
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabase,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"payment_gateway_set", cfg.PaymentGatewayURL != "",
		"payment_gateway_timeout", cfg.PaymentGatewayTimeout,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"kafka_brokers", len(cfg.KafkaBrokers),
		"kafka_topic", cfg.KafkaTopic,
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func splitBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown()
}

// ClampHoldTTL bounds a caller-supplied TTL to the configured ceiling, falling
// back to the default when the caller sent nothing.
func (cfg *Config) ClampHoldTTL(requested time.Duration) time.Duration {
	if requested <= 0 {
		return cfg.HoldTTL
	}
	if requested > cfg.MaxHoldTTL {
		return cfg.MaxHoldTTL
	}
	return requested
}
