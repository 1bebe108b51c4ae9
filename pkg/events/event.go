package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventType identifies a file lifecycle transition.
type EventType string

const (
	EventFileCreated   EventType = "file:created"
	EventFileUpdated   EventType = "file:updated"
	EventFileDeleted   EventType = "file:deleted"
	EventFileFinalized EventType = "file:finalized"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventFileCreated, EventFileUpdated, EventFileDeleted, EventFileFinalized:
		return true
	}
	return false
}

// FileEvent is one entry on the file-events stream. Metadata carries the
// file's attribute document as a JSON string on create/update/finalize;
// DeletedAt replaces it on delete.
type FileEvent struct {
	Type             EventType
	Timestamp        time.Time
	FileID           string
	StorageElementID string
	Metadata         json.RawMessage
	DeletedAt        time.Time
}

func (e FileEvent) streamValues() map[string]any {
	values := map[string]any{
		"event_type":         string(e.Type),
		"timestamp":          e.Timestamp.UTC().Format(time.RFC3339Nano),
		"file_id":            e.FileID,
		"storage_element_id": e.StorageElementID,
	}
	if e.Type == EventFileDeleted {
		deletedAt := e.DeletedAt
		if deletedAt.IsZero() {
			deletedAt = e.Timestamp
		}
		values["deleted_at"] = deletedAt.UTC().Format(time.RFC3339Nano)
	} else if len(e.Metadata) > 0 {
		values["metadata"] = string(e.Metadata)
	}
	return values
}

// Message pairs a decoded event with its stream entry ID. The ID is part of
// the consumer-side idempotency key.
type Message struct {
	ID    string
	Event FileEvent
}

// IdempotencyKey uniquely identifies one delivery of one event. Consumers
// that persist it can safely re-process redelivered entries.
func (m Message) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s:%s", m.Event.FileID, m.Event.Type, m.ID)
}

func decodeMessage(msg redis.XMessage) (Message, error) {
	get := func(field string) string {
		v, ok := msg.Values[field]
		if !ok {
			return ""
		}
		s, _ := v.(string)
		return s
	}

	event := FileEvent{
		Type:             EventType(get("event_type")),
		FileID:           get("file_id"),
		StorageElementID: get("storage_element_id"),
	}
	if !event.Type.Valid() {
		return Message{}, fmt.Errorf("unknown event_type %q in entry %s", get("event_type"), msg.ID)
	}
	if event.FileID == "" {
		return Message{}, fmt.Errorf("entry %s has no file_id", msg.ID)
	}

	ts, err := time.Parse(time.RFC3339Nano, get("timestamp"))
	if err != nil {
		return Message{}, fmt.Errorf("entry %s has invalid timestamp: %w", msg.ID, err)
	}
	event.Timestamp = ts

	if raw := get("metadata"); raw != "" {
		event.Metadata = json.RawMessage(raw)
	}
	if raw := get("deleted_at"); raw != "" {
		deletedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Message{}, fmt.Errorf("entry %s has invalid deleted_at: %w", msg.ID, err)
		}
		event.DeletedAt = deletedAt
	}

	return Message{ID: msg.ID, Event: event}, nil
}
