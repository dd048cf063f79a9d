// internal/workers/session-closer/config.go
package sessioncloser

import (
	"time"

	"booking-workers/internal/common/config"
)

const WorkerName = "session-closer"

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
