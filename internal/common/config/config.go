// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig               `mapstructure:"app"`
	Database DatabaseConfig          `mapstructure:"database"`
	SMS      SMSConfig               `mapstructure:"sms"`
	Bus      BusConfig               `mapstructure:"bus"`
	Workers  map[string]WorkerConfig `mapstructure:"workers"`
	Logging  LoggingConfig           `mapstructure:"logging"`
	Metrics  MetricsConfig           `mapstructure:"metrics"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Enabled   bool     `mapstructure:"enabled"`
}

// SMSConfig holds the settings for the outbound SMS gateway.
type SMSConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	AWSRegion   string `mapstructure:"aws_region"`
	SenderID    string `mapstructure:"sender_id"`
	AlertEmail  string `mapstructure:"alert_email"`
	EmailAlerts bool   `mapstructure:"email_alerts"`
	FromEmail   string `mapstructure:"from_email"`
}

// BusConfig holds the Redis Streams event bus settings.
type BusConfig struct {
	Stream        string `mapstructure:"stream"`
	ConsumerGroup string `mapstructure:"consumer_group"`
	BlockMillis   int    `mapstructure:"block_millis"`
	ClaimMinIdle  int    `mapstructure:"claim_min_idle_millis"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PollInterval   int  `mapstructure:"poll_interval"`   // milliseconds
	BatchSize      int  `mapstructure:"batch_size"`
	MaxAttempts    int  `mapstructure:"max_attempts"`
	InitialBackoff int  `mapstructure:"initial_backoff"` // milliseconds
	MaxBackoff     int  `mapstructure:"max_backoff"`     // milliseconds
	SendTimeout    int  `mapstructure:"send_timeout"`    // milliseconds
	Shards         int  `mapstructure:"shards"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type MetricsConfig struct {
	Address string `mapstructure:"address"`
}
