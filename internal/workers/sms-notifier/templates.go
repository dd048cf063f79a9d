// internal/workers/sms-notifier/templates.go
package smsnotifier

import (
	"fmt"
	"strings"

	"booking-workers/internal/models"
)

var smsTemplates = map[models.EventType]string{
	models.EventBooked:           "{{participant_name}} booked a spot in {{session_title}}.",
	models.EventWaitlisted:       "{{participant_name}} joined the waitlist for {{session_title}} at position {{position}}.",
	models.EventPromoted:         "{{participant_name}} moved off the waitlist into {{session_title}}.",
	models.EventSessionFull:      "{{session_title}} is now full.",
	models.EventCancelled:        "{{participant_name}} cancelled their spot in {{session_title}}.",
	models.EventSessionCancelled: "{{session_title}} was cancelled.",
}

func renderBody(evt *models.NotificationEvent) (string, error) {
	tmpl, ok := smsTemplates[evt.Type]
	if !ok {
		return "", fmt.Errorf("no template for event type %s", evt.Type)
	}
	return renderTemplate(tmpl, evt.Payload), nil
}

// Simplified template rendering with placeholder removal for missing values
func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl

	for k, v := range data {
		placeholder := "{{" + k + "}}"
		value := ""
		if s, ok := v.(string); ok {
			value = s
		} else if i, ok := v.(int); ok {
			value = fmt.Sprintf("%d", i)
		} else if v != nil {
			value = fmt.Sprintf("%v", v)
		}
		result = strings.ReplaceAll(result, placeholder, value)
	}

	// Remove any remaining placeholders (missing values)
	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		end += start + 2
		result = result[:start] + result[end:]
	}

	return result
}
