package config

const (
	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvHoldTTL       = "HOLD_TTL"
	EnvMaxHoldTTL    = "MAX_HOLD_TTL"
	EnvSweepInterval = "SWEEP_INTERVAL"

	EnvCatalogBackend   = "CATALOG_BACKEND"
	EnvCatalogSeedFile  = "CATALOG_SEED_FILE"
	EnvMongoURI         = "MONGO_URI"
	EnvMongoDatabase    = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout = "MONGO_CONN_TIMEOUT"

	EnvPaymentGatewayURL     = "PAYMENT_GATEWAY_URL"
	EnvPaymentGatewayTimeout = "PAYMENT_GATEWAY_TIMEOUT"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvKafkaBrokers      = "KAFKA_BROKERS"
	EnvKafkaTopic        = "KAFKA_TOPIC"
	EnvKafkaMaxAttempts  = "KAFKA_MAX_ATTEMPTS"
	EnvKafkaBatchTimeout = "KAFKA_BATCH_TIMEOUT"
)
