// Package sessioncloser completes sessions whose start time has passed.
// Completion freezes booking state; no notifications go out for it.
package sessioncloser

import (
	"context"
	"time"

	"booking-workers/internal/booking/coordinator"
	"booking-workers/internal/common/logger"
)

type Handler struct {
	config      *Config
	coordinator *coordinator.Coordinator
	logger      logger.Logger
	now         func() time.Time
}

func NewHandler(config *Config, c *coordinator.Coordinator, log logger.Logger) *Handler {
	return &Handler{
		config:      config,
		coordinator: c,
		logger:      log.WithFields(map[string]interface{}{"worker": WorkerName}),
		now:         time.Now,
	}
}

// Run sweeps on the poll interval until the context is cancelled.
func (h *Handler) Run(ctx context.Context) error {
	h.logger.Info("worker started", map[string]interface{}{
		"pollInterval": h.config.PollInterval.String(),
	})

	ticker := time.NewTicker(h.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("worker stopping", nil)
			return ctx.Err()
		case <-ticker.C:
			n, err := h.coordinator.CompleteDueSessions(ctx, h.now(), h.config.BatchSize)
			if err != nil {
				h.logger.WithError(err).Error("sweep failed", nil)
				continue
			}
			if n > 0 {
				h.logger.Info("completed due sessions", map[string]interface{}{"count": n})
			}
		}
	}
}
