package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC().Truncate(time.Millisecond)

	tests := []struct {
		name    string
		values  map[string]any
		wantErr bool
		check   func(t *testing.T, msg Message)
	}{
		{
			name: "created with metadata",
			values: map[string]any{
				"event_type":         "file:created",
				"timestamp":          now.Format(time.RFC3339Nano),
				"file_id":            "f-1",
				"storage_element_id": "se-a",
				"metadata":           `{"filename":"report.pdf"}`,
			},
			check: func(t *testing.T, msg Message) {
				assert.Equal(t, EventFileCreated, msg.Event.Type)
				assert.Equal(t, "f-1", msg.Event.FileID)
				assert.Equal(t, "se-a", msg.Event.StorageElementID)
				assert.True(t, now.Equal(msg.Event.Timestamp))
				var meta map[string]string
				require.NoError(t, json.Unmarshal(msg.Event.Metadata, &meta))
				assert.Equal(t, "report.pdf", meta["filename"])
			},
		},
		{
			name: "deleted with deleted_at",
			values: map[string]any{
				"event_type":         "file:deleted",
				"timestamp":          now.Format(time.RFC3339Nano),
				"file_id":            "f-2",
				"storage_element_id": "se-a",
				"deleted_at":         now.Format(time.RFC3339Nano),
			},
			check: func(t *testing.T, msg Message) {
				assert.Equal(t, EventFileDeleted, msg.Event.Type)
				assert.True(t, now.Equal(msg.Event.DeletedAt))
				assert.Empty(t, msg.Event.Metadata)
			},
		},
		{
			name: "unknown event type",
			values: map[string]any{
				"event_type": "file:exploded",
				"timestamp":  now.Format(time.RFC3339Nano),
				"file_id":    "f-3",
			},
			wantErr: true,
		},
		{
			name: "missing file id",
			values: map[string]any{
				"event_type": "file:created",
				"timestamp":  now.Format(time.RFC3339Nano),
			},
			wantErr: true,
		},
		{
			name: "bad timestamp",
			values: map[string]any{
				"event_type": "file:created",
				"timestamp":  "yesterday",
				"file_id":    "f-4",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg, err := decodeMessage(redis.XMessage{ID: "1-0", Values: tt.values})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "1-0", msg.ID)
			tt.check(t, msg)
		})
	}
}

func TestMessageIdempotencyKey(t *testing.T) {
	t.Parallel()

	msg := Message{
		ID:    "1694000000000-0",
		Event: FileEvent{Type: EventFileCreated, FileID: "f-1"},
	}
	assert.Equal(t, "f-1:file:created:1694000000000-0", msg.IdempotencyKey())
}
