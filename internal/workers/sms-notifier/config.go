// internal/workers/sms-notifier/config.go
package smsnotifier

import (
	"time"

	"booking-workers/internal/common/config"
)

const WorkerName = "sms-notifier"

type Config struct {
	Enabled        bool
	SenderID       string
	FromEmail      string
	AlertEmail     string
	EmailAlerts    bool
	BatchSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	SendTimeout    time.Duration
	Shards         int
}

func LoadConfig(wc config.WorkerConfig, sms config.SMSConfig) *Config {
	return &Config{
		Enabled:        sms.Enabled,
		SenderID:       sms.SenderID,
		FromEmail:      sms.FromEmail,
		AlertEmail:     sms.AlertEmail,
		EmailAlerts:    sms.EmailAlerts,
		BatchSize:      wc.BatchSize,
		MaxAttempts:    wc.MaxAttempts,
		InitialBackoff: time.Duration(wc.InitialBackoff) * time.Millisecond,
		MaxBackoff:     time.Duration(wc.MaxBackoff) * time.Millisecond,
		SendTimeout:    time.Duration(wc.SendTimeout) * time.Millisecond,
		Shards:         wc.Shards,
	}
}
