// Package smsnotifier consumes notification events off the session event
// bus and delivers them as SMS. Messages are sharded onto per-shard
// goroutines by session id, so one recipient's backoff delays only its own
// session's events and never the rest of the stream.
package smsnotifier

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"booking-workers/internal/booking/store"
	"booking-workers/internal/bus"
	"booking-workers/internal/common/logger"
	"booking-workers/internal/common/metrics"
	"booking-workers/internal/common/observability"
	"booking-workers/internal/models"
)

type Handler struct {
	config  *Config
	store   store.Store
	bus     bus.Bus
	gateway Gateway
	guard   DeliveryGuard
	alerter AbandonAlerter
	logger  logger.Logger
	obs     *observability.Observability
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewHandler(config *Config, st store.Store, b bus.Bus, gw Gateway, guard DeliveryGuard, alerter AbandonAlerter, obs *observability.Observability, log logger.Logger) *Handler {
	if alerter == nil {
		alerter = NopAlerter{}
	}
	return &Handler{
		config:  config,
		store:   st,
		bus:     b,
		gateway: gw,
		guard:   guard,
		alerter: alerter,
		logger:  log.WithFields(map[string]interface{}{"worker": WorkerName}),
		obs:     obs,
		sleep:   sleepCtx,
	}
}

// Run fetches messages and fans them out to shard goroutines until the
// context is cancelled. A message is acked only after its terminal outcome
// is persisted; anything in flight at shutdown is redelivered.
func (h *Handler) Run(ctx context.Context) error {
	h.logger.Info("worker started", map[string]interface{}{
		"shards":      h.config.Shards,
		"maxAttempts": h.config.MaxAttempts,
	})

	shards := make([]chan bus.Message, h.config.Shards)
	var wg sync.WaitGroup
	for i := range shards {
		shards[i] = make(chan bus.Message, h.config.BatchSize)
		wg.Add(1)
		go func(ch <-chan bus.Message) {
			defer wg.Done()
			h.runShard(ctx, ch)
		}(shards[i])
	}

	for {
		select {
		case <-ctx.Done():
			for _, ch := range shards {
				close(ch)
			}
			wg.Wait()
			h.logger.Info("worker stopping", nil)
			return ctx.Err()
		default:
		}

		msgs, err := h.bus.Fetch(ctx, h.config.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			h.logger.WithError(err).Error("fetch failed", nil)
			if err := h.sleep(ctx, time.Second); err != nil {
				continue
			}
			continue
		}

		for _, msg := range msgs {
			select {
			case shards[h.shardFor(msg.Event.SessionID)] <- msg:
			case <-ctx.Done():
			}
		}
	}
}

func (h *Handler) shardFor(sessionID string) int {
	f := fnv.New32a()
	f.Write([]byte(sessionID))
	return int(f.Sum32() % uint32(h.config.Shards))
}

func (h *Handler) runShard(ctx context.Context, ch <-chan bus.Message) {
	for msg := range ch {
		if err := h.Process(ctx, &msg.Event); err != nil {
			// Interrupted mid-dispatch; leave unacked for redelivery.
			continue
		}
		if err := h.bus.Ack(ctx, msg.BusID); err != nil {
			h.logger.WithError(err).Warn("ack failed", map[string]interface{}{
				"busId": msg.BusID,
			})
		}
	}
}

// Process drives one event to a terminal outcome: delivered, or abandoned
// after max attempts or a permanent provider rejection. Only a cancelled
// context returns an error; terminal outcomes return nil so the caller acks.
func (h *Handler) Process(ctx context.Context, evt *models.NotificationEvent) error {
	log := h.logger.WithFields(map[string]interface{}{
		"eventId":   evt.ID,
		"eventType": evt.Type,
		"sessionId": evt.SessionID,
	})

	already, err := h.guard.Delivered(ctx, evt.ID)
	if err != nil {
		log.WithError(err).Warn("delivery guard check failed", nil)
	} else if already {
		log.Debug("event already delivered, acking duplicate", nil)
		return nil
	}

	if !h.config.Enabled {
		log.Debug("sms sending disabled, marking delivered", nil)
		return h.markDelivered(ctx, evt, 0, log)
	}

	body, err := renderBody(evt)
	if err != nil {
		log.WithError(err).Error("cannot render event, abandoning", nil)
		h.abandon(ctx, evt, 0, err.Error(), log)
		return nil
	}

	for attempt := 1; attempt <= h.config.MaxAttempts; attempt++ {
		res := h.attemptSend(ctx, evt, body)

		switch res.Status {
		case SendDelivered:
			metrics.NotificationSendsTotal.WithLabelValues("delivered").Inc()
			log.Info("sms delivered", map[string]interface{}{
				"attempt":    attempt,
				"providerId": res.ProviderID,
			})
			return h.markDelivered(ctx, evt, attempt, log)

		case SendRejected:
			metrics.NotificationSendsTotal.WithLabelValues("rejected").Inc()
			log.Warn("sms rejected by provider, abandoning", map[string]interface{}{
				"attempt": attempt,
				"reason":  res.Reason,
			})
			h.abandon(ctx, evt, attempt, res.Reason, log)
			return nil

		default:
			metrics.NotificationSendsTotal.WithLabelValues("transient").Inc()
			if attempt == h.config.MaxAttempts {
				break
			}
			delay := h.backoffDelay(attempt)
			log.Warn("sms send failed, backing off", map[string]interface{}{
				"attempt": attempt,
				"delay":   delay.String(),
				"reason":  res.Reason,
			})
			if err := h.sleep(ctx, delay); err != nil {
				return err
			}
		}
	}

	h.abandon(ctx, evt, h.config.MaxAttempts, "retry budget exhausted", log)
	return nil
}

func (h *Handler) attemptSend(ctx context.Context, evt *models.NotificationEvent, body string) *SendResult {
	sendCtx, cancel := context.WithTimeout(ctx, h.config.SendTimeout)
	defer cancel()

	start := time.Now()
	res, err := h.gateway.Send(sendCtx, evt.Recipient, body, evt.ID)
	metrics.NotificationSendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return &SendResult{Status: SendTransient, Reason: err.Error()}
	}
	return res
}

func (h *Handler) markDelivered(ctx context.Context, evt *models.NotificationEvent, attempts int, log logger.Logger) error {
	if _, err := h.guard.MarkDelivered(ctx, evt.ID); err != nil {
		log.WithError(err).Warn("failed to record delivery marker", nil)
	}
	if err := h.store.UpdateEventDelivery(ctx, evt.ID, models.DeliveryDelivered, attempts); err != nil {
		log.WithError(err).Error("failed to persist delivery status", nil)
	}
	if h.obs != nil {
		h.obs.RecordEventDispatched(ctx, "delivered")
	}
	return nil
}

func (h *Handler) abandon(ctx context.Context, evt *models.NotificationEvent, attempts int, reason string, log logger.Logger) {
	if err := h.store.UpdateEventDelivery(ctx, evt.ID, models.DeliveryAbandoned, attempts); err != nil {
		log.WithError(err).Error("failed to persist abandoned status", nil)
	}
	metrics.NotificationsAbandonedTotal.Inc()
	if h.obs != nil {
		h.obs.RecordEventDispatched(ctx, "abandoned")
	}
	h.alerter.NotifyAbandoned(ctx, evt, attempts, reason)
}

// backoffDelay doubles per attempt from the initial delay up to the cap.
func (h *Handler) backoffDelay(attempt int) time.Duration {
	d := h.config.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= h.config.MaxBackoff {
			return h.config.MaxBackoff
		}
	}
	if d > h.config.MaxBackoff {
		return h.config.MaxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
