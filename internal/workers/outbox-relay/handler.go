// Package outboxrelay polls the notification outbox and publishes pending
// events to the session event bus in commit order. Publish and
// mark-published are two steps, so a crash between them republishes the
// event; downstream dispatch is idempotent and absorbs the duplicate.
package outboxrelay

import (
	"context"
	"time"

	"booking-workers/internal/booking/store"
	"booking-workers/internal/bus"
	"booking-workers/internal/common/logger"
	"booking-workers/internal/common/metrics"
)

type Handler struct {
	config *Config
	store  store.Store
	bus    bus.Bus
	logger logger.Logger
	now    func() time.Time
}

func NewHandler(config *Config, st store.Store, b bus.Bus, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		store:  st,
		bus:    b,
		logger: log.WithFields(map[string]interface{}{"worker": WorkerName}),
		now:    time.Now,
	}
}

// Run polls until the context is cancelled.
func (h *Handler) Run(ctx context.Context) error {
	h.logger.Info("worker started", map[string]interface{}{
		"pollInterval": h.config.PollInterval.String(),
		"batchSize":    h.config.BatchSize,
	})

	ticker := time.NewTicker(h.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("worker stopping", nil)
			return ctx.Err()
		case <-ticker.C:
			if n, err := h.RelayOnce(ctx); err != nil {
				h.logger.WithError(err).Error("relay pass failed", nil)
			} else if n > 0 {
				h.logger.Debug("relayed events", map[string]interface{}{"count": n})
			}
		}
	}
}

// RelayOnce publishes one batch of pending events. It stops at the first
// failure instead of skipping ahead, otherwise a later event of the same
// session could reach the bus before an earlier one.
func (h *Handler) RelayOnce(ctx context.Context) (int, error) {
	events, err := h.store.PendingEvents(ctx, h.config.BatchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, evt := range events {
		if err := h.bus.Publish(ctx, evt); err != nil {
			return published, err
		}
		if err := h.store.MarkPublished(ctx, evt.ID, h.now()); err != nil {
			return published, err
		}
		published++
		metrics.OutboxPublishedTotal.Inc()
	}
	return published, nil
}
