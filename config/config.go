package config

import "time"

type Config struct {
	AppName    string `env:"APP_NAME" env-default:"reed"`
	LogLevel   string `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs bool   `env:"PRETTY_LOGS" env-default:"false"`

	// PostgreSQL (resolution store)
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"reed"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Rule and trust policy documents
	RuleFolderPath  string `env:"RULE_FOLDER_PATH" env-default:"rules"`
	TrustPolicyPath string `env:"TRUST_POLICY_PATH" env-default:"rules/trust_policy.yaml"`

	// Tracing
	TracingEnabled      bool   `env:"TRACING_ENABLED" env-default:"false"`
	TracingExporter     string `env:"TRACING_EXPORTER" env-default:"console"`
	TracingOTLPEndpoint string `env:"TRACING_OTLP_ENDPOINT" env-default:"localhost:4317"`
	TracingOTLPProtocol string `env:"TRACING_OTLP_PROTOCOL" env-default:"grpc"`

	// Kafka intake (normalized source rows from ingestion adapters)
	KafkaBrokers        []string      `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaIntakeTopic    string        `env:"KAFKA_INTAKE_TOPIC" env-default:"normalized-source-rows"`
	KafkaConsumerGroup  string        `env:"KAFKA_CONSUMER_GROUP" env-default:"reed-intake"`
	KafkaCommitInterval time.Duration `env:"KAFKA_COMMIT_INTERVAL" env-default:"1s"`

	// Processing
	LinkBatchSize  int `env:"LINK_BATCH_SIZE" env-default:"500"`
	ScoreBatchSize int `env:"SCORE_BATCH_SIZE" env-default:"500"`
}
