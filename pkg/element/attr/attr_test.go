package attr

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAttributes() *Attributes {
	created := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	return &Attributes{
		SchemaVersion:     SchemaVersion,
		FileID:            "0b9af23e-9f0b-4a53-a3ba-7b4b1f2a9c11",
		OriginalFilename:  "report.pdf",
		StorageFilename:   "report_alice_20250314T092653.000_a1b2c3d4.pdf",
		FileSize:          2048,
		ContentType:       "application/pdf",
		CreatedAt:         created,
		UpdatedAt:         created,
		CreatedByID:       "4f2c6d1a-88f1-41f7-9e29-3c1b4f0a2d55",
		CreatedByUsername: "alice",
		StoragePath:       "2025/03/14/09",
		Checksum:          strings.Repeat("ab", 32),
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	t.Parallel()

	original := validAttributes()
	original.Tags = []string{"reports", "q1"}
	original.Metadata = map[string]string{"department": "finance"}

	data, err := Marshal(original)
	require.NoError(t, err)
	require.LessOrEqual(t, len(data), MaxSize)

	parsed, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestMarshalSizeCap(t *testing.T) {
	t.Parallel()

	a := validAttributes()
	a.Description = "x"
	base, err := Marshal(a)
	require.NoError(t, err)

	// Grow the description so the document lands on exactly 4096 bytes.
	pad := MaxSize - len(base)
	a.Description = strings.Repeat("x", 1+pad)

	data, err := Marshal(a)
	require.NoError(t, err, "a document of exactly %d bytes is legal", MaxSize)
	require.Len(t, data, MaxSize)

	// One more byte crosses the block boundary and is rejected.
	a.Description = strings.Repeat("x", 2+pad)
	_, err = Marshal(a)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestValidateRejectsBrokenDocuments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Attributes)
	}{
		{"wrong schema", func(a *Attributes) { a.SchemaVersion = "3.0" }},
		{"missing file id", func(a *Attributes) { a.FileID = "" }},
		{"missing storage filename", func(a *Attributes) { a.StorageFilename = "" }},
		{"zero size", func(a *Attributes) { a.FileSize = 0 }},
		{"negative size", func(a *Attributes) { a.FileSize = -1 }},
		{"missing created_at", func(a *Attributes) { a.CreatedAt = time.Time{} }},
		{"short checksum", func(a *Attributes) { a.Checksum = "abc123" }},
		{"non-hex checksum", func(a *Attributes) { a.Checksum = strings.Repeat("zz", 32) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := validAttributes()
			tt.mutate(a)
			require.Error(t, a.Validate())
		})
	}
}

func TestUnmarshalMigratesLegacyDocuments(t *testing.T) {
	t.Parallel()

	legacy := map[string]any{
		"schema_version":    "1.0",
		"file_id":           "0b9af23e-9f0b-4a53-a3ba-7b4b1f2a9c11",
		"original_filename": "report.pdf",
		"storage_filename":  "report_alice_20250314T092653.000_a1b2c3d4.pdf",
		"file_size":         2048,
		"content_type":      "application/pdf",
		"created_at":        "2025-03-14T09:26:53Z",
		"storage_path":      "2025/03/14/09",
		"checksum":          strings.Repeat("ab", 32),
		"uploaded_by":       "alice",
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)

	parsed, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, parsed.SchemaVersion)
	assert.Equal(t, "alice", parsed.CreatedByUsername, "uploaded_by carries over")
	assert.Equal(t, "unknown", parsed.CreatedByID)
	assert.Equal(t, parsed.CreatedAt, parsed.UpdatedAt, "updated_at backfills from created_at")
	assert.Equal(t, 1, parsed.Version)
	assert.Empty(t, parsed.UploadedBy, "legacy field is consumed")

	// Documents with no schema_version at all migrate the same way.
	delete(legacy, "schema_version")
	data, err = json.Marshal(legacy)
	require.NoError(t, err)
	unversioned, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, parsed, unversioned)
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	a := &Attributes{
		SchemaVersion:    LegacySchemaVersion,
		FileID:           "f-1",
		OriginalFilename: "report.pdf",
		StorageFilename:  "report_x.pdf",
		FileSize:         10,
		ContentType:      "application/pdf",
		CreatedAt:        time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
		StoragePath:      "2025/03/14/09",
		Checksum:         strings.Repeat("00", 32),
		UploadedBy:       "alice",
	}

	a.Migrate()
	once := *a
	a.Migrate()
	assert.Equal(t, once, *a, "migrating twice changes nothing")

	current := validAttributes()
	snapshot := *current
	current.Migrate()
	assert.Equal(t, snapshot, *current, "current documents pass through untouched")
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Unmarshal([]byte("not json"))
	require.ErrorIs(t, err, ErrInvalid)

	_, err = Unmarshal([]byte(`{"schema_version":"2.0"}`))
	require.ErrorIs(t, err, ErrInvalid)
}
