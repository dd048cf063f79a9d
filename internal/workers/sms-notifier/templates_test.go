// internal/workers/sms-notifier/templates_test.go
package smsnotifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking-workers/internal/models"
)

func TestRenderBody(t *testing.T) {
	tests := []struct {
		name     string
		evt      *models.NotificationEvent
		expected string
	}{
		{
			name: "booked",
			evt: &models.NotificationEvent{
				Type: models.EventBooked,
				Payload: map[string]interface{}{
					"session_title":    "Saturday Scramble",
					"participant_name": "Alice",
				},
			},
			expected: "Alice booked a spot in Saturday Scramble.",
		},
		{
			name: "waitlisted with position",
			evt: &models.NotificationEvent{
				Type: models.EventWaitlisted,
				Payload: map[string]interface{}{
					"session_title":    "Saturday Scramble",
					"participant_name": "Bob",
					"position":         2,
				},
			},
			expected: "Bob joined the waitlist for Saturday Scramble at position 2.",
		},
		{
			name: "session cancelled without participant",
			evt: &models.NotificationEvent{
				Type: models.EventSessionCancelled,
				Payload: map[string]interface{}{
					"session_title": "Saturday Scramble",
				},
			},
			expected: "Saturday Scramble was cancelled.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := renderBody(tt.evt)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, body)
		})
	}
}

func TestRenderBody_UnknownType(t *testing.T) {
	_, err := renderBody(&models.NotificationEvent{Type: models.EventType("bogus")})
	assert.Error(t, err)
}

func TestRenderTemplate_MissingPlaceholdersRemoved(t *testing.T) {
	out := renderTemplate("Hi {{name}}, see you at {{venue}}.", map[string]interface{}{
		"name": "Alice",
	})
	assert.Equal(t, "Hi Alice, see you at .", out)
}

func TestRenderTemplate_NonStringValues(t *testing.T) {
	out := renderTemplate("Position {{pos}}, score {{score}}", map[string]interface{}{
		"pos":   3,
		"score": 1.5,
	})
	assert.Equal(t, "Position 3, score 1.5", out)
}
