package config

import "time"

const (
	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultHoldTTL       = 5 * time.Minute
	DefaultMaxHoldTTL    = 1 * time.Hour
	DefaultSweepInterval = 30 * time.Second

	DefaultCatalogBackend   = CatalogBackendMemory
	DefaultMongoURI         = "mongodb://localhost:27017"
	DefaultMongoDatabase    = "boxoffice"
	DefaultMongoConnTimeout = 10 * time.Second

	DefaultPaymentGatewayURL     = ""
	DefaultPaymentGatewayTimeout = 15 * time.Second

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultKafkaBrokers      = ""
	DefaultKafkaTopic        = "boxoffice.booking-events"
	DefaultKafkaMaxAttempts  = 3
	DefaultKafkaBatchTimeout = 10 * time.Millisecond
)

const (
	CatalogBackendMemory = "memory"
	CatalogBackendMongo  = "mongo"
)
