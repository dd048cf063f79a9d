// internal/workers/sms-notifier/alerts.go
package smsnotifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"booking-workers/internal/common/database"
	"booking-workers/internal/common/logger"
	"booking-workers/internal/models"
)

const abandonedIndex = "abandoned-notifications"

// AbandonAlerter surfaces abandoned notifications to operators. Alerting is
// best effort: a failed alert never blocks or retries the dispatch path.
type AbandonAlerter interface {
	NotifyAbandoned(ctx context.Context, evt *models.NotificationEvent, attempts int, reason string)
}

// Define interface for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// OperatorAlerter indexes each abandoned event into Elasticsearch for the
// ops dashboard and optionally emails the on-call address.
type OperatorAlerter struct {
	es     *database.ElasticsearchClient
	ses    SESService
	config *Config
	logger logger.Logger
}

func NewOperatorAlerter(es *database.ElasticsearchClient, sesClient SESService, config *Config, log logger.Logger) *OperatorAlerter {
	return &OperatorAlerter{
		es:     es,
		ses:    sesClient,
		config: config,
		logger: log.WithFields(map[string]interface{}{"component": "abandon-alerter"}),
	}
}

func (a *OperatorAlerter) NotifyAbandoned(ctx context.Context, evt *models.NotificationEvent, attempts int, reason string) {
	a.indexAbandoned(ctx, evt, attempts, reason)

	if a.config.EmailAlerts && a.ses != nil && a.config.AlertEmail != "" {
		a.emailAlert(ctx, evt, attempts, reason)
	}
}

func (a *OperatorAlerter) indexAbandoned(ctx context.Context, evt *models.NotificationEvent, attempts int, reason string) {
	if a.es == nil {
		return
	}

	doc, err := json.Marshal(map[string]interface{}{
		"eventId":     evt.ID,
		"eventType":   evt.Type,
		"sessionId":   evt.SessionID,
		"recipient":   evt.Recipient,
		"attempts":    attempts,
		"reason":      reason,
		"abandonedAt": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		a.logger.WithError(err).Error("failed to marshal abandoned doc", nil)
		return
	}

	res, err := a.es.Client.Index(
		abandonedIndex,
		bytes.NewReader(doc),
		a.es.Client.Index.WithDocumentID(evt.ID),
		a.es.Client.Index.WithContext(ctx),
	)
	if err != nil {
		a.logger.WithError(err).Error("failed to index abandoned notification", map[string]interface{}{
			"eventId": evt.ID,
		})
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		a.logger.Error("abandoned notification index error", map[string]interface{}{
			"eventId": evt.ID,
			"status":  res.Status(),
		})
	}
}

func (a *OperatorAlerter) emailAlert(ctx context.Context, evt *models.NotificationEvent, attempts int, reason string) {
	subject := fmt.Sprintf("SMS notification abandoned: %s", evt.Type)
	body := fmt.Sprintf(
		"Event %s (%s) for session %s was abandoned after %d attempts.\nRecipient: %s\nReason: %s\n",
		evt.ID, evt.Type, evt.SessionID, attempts, evt.Recipient, reason,
	)

	_, err := a.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{a.config.AlertEmail},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(a.config.FromEmail),
	})
	if err != nil {
		a.logger.WithError(err).Error("failed to send abandon alert email", map[string]interface{}{
			"eventId": evt.ID,
		})
	}
}

// NopAlerter is used when alerting backends are disabled.
type NopAlerter struct{}

func (NopAlerter) NotifyAbandoned(context.Context, *models.NotificationEvent, int, string) {}
