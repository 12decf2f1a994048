package events

import (
	"time"

	"github.com/google/uuid"
)

// New creates an event with a fresh ID and the current time. data may be nil.
func New(eventType EventType, runID, subject string, severity EventSeverity, message string, data interface{}) (*Event, error) {
	event := &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		RunID:     runID,
		Subject:   subject,
		Severity:  severity,
		Message:   message,
	}
	if data != nil {
		if err := event.SetData(data); err != nil {
			return nil, err
		}
	}
	return event, nil
}

// NewSimpleEvent creates an event without structured data.
func NewSimpleEvent(eventType EventType, runID, subject string, severity EventSeverity, message string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		RunID:     runID,
		Subject:   subject,
		Severity:  severity,
		Message:   message,
	}
}
