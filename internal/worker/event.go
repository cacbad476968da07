package worker

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/example/bulk-record-processor/internal/apperr"
	"github.com/example/bulk-record-processor/internal/models"
	"github.com/example/bulk-record-processor/internal/util"
)

// decodeEvent parses and validates an inbound event. Unknown fields are
// ignored; every envelope field and the payload identity are required.
func decodeEvent(value []byte) (*models.InboundEvent, error) {
	if len(bytes.TrimSpace(value)) == 0 {
		return nil, apperr.Validation("message is empty")
	}

	var event models.InboundEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return nil, apperr.Validation("decode message: %v", err)
	}

	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"topic", event.Topic},
		{"originator", event.Originator},
		{"timestamp", event.Timestamp},
		{"mime-type", event.MimeType},
		{"payload.id", event.Payload.ID},
		{"payload.resource", event.Payload.Resource},
		{"payload.objectKey", event.Payload.ObjectKey},
		{"payload.status", event.Payload.Status},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("message is missing %s", strings.Join(missing, ", "))
	}

	if _, err := util.ParseTimestamp(event.Timestamp); err != nil {
		return nil, apperr.Validation("timestamp: %v", err)
	}
	if _, err := util.ParseUUID(event.Payload.ID); err != nil {
		return nil, apperr.Validation("payload.id: %v", err)
	}
	return &event, nil
}
