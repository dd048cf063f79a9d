// internal/workers/outbox-relay/config.go
package outboxrelay

import (
	"time"

	"booking-workers/internal/common/config"
)

const WorkerName = "outbox-relay"

type Config struct {
	PollInterval time.Duration
	BatchSize    int
}

func LoadConfig(wc config.WorkerConfig) *Config {
	return &Config{
		PollInterval: time.Duration(wc.PollInterval) * time.Millisecond,
		BatchSize:    wc.BatchSize,
	}
}
