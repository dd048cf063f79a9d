package bus

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// eventSchema is the wire contract between the relay and the dispatchers.
// Publish rejects envelopes that would be undeliverable rather than letting
// a malformed entry poison the consumer group.
const eventSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["id", "type", "sessionId", "recipient"],
	"properties": {
		"id":           {"type": "string", "minLength": 1},
		"type":         {"type": "string", "enum": ["booked", "waitlisted", "promoted", "session_full", "cancelled", "session_cancelled"]},
		"sessionId":    {"type": "string", "minLength": 1},
		"enrollmentId": {"type": "string"},
		"recipient":    {"type": "string", "minLength": 1},
		"payload":      {"type": "object"}
	}
}`

var compiledEventSchema = gojsonschema.NewStringLoader(eventSchema)

// ValidateEnvelope checks a serialized event against the wire contract.
func ValidateEnvelope(raw []byte) error {
	result, err := gojsonschema.Validate(compiledEventSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("invalid event envelope: %s", strings.Join(msgs, "; "))
}
