//go:build integration

package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// Shared container coordinates, filled in by TestMain.
var (
	sharedHost string
	sharedPort int
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("artstore_test"),
		postgres.WithUsername("artstore_test"),
		postgres.WithPassword("artstore_test"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get container port: %v\n", err)
		os.Exit(1)
	}
	sharedHost = host
	sharedPort = port.Int()

	code := m.Run()

	if err := container.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate container: %v\n", err)
	}
	os.Exit(code)
}

// setupStore opens a store against the shared container. Migrations are
// idempotent, so every test can request them.
func setupStore(t *testing.T) *Store {
	t.Helper()
	if sharedHost == "" {
		t.Fatal("shared postgres container not initialized")
	}

	st, err := Open(context.Background(), Config{
		Host:        sharedHost,
		Port:        sharedPort,
		Database:    "artstore_test",
		User:        "artstore_test",
		Password:    "artstore_test",
		SSLMode:     "disable",
		MaxConns:    4,
		MinConns:    1,
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func key(fileID, eventType, streamID string) EventKey {
	return EventKey{FileID: fileID, EventType: eventType, StreamID: streamID}
}

func record(fileID, filename, uploader string, ts time.Time) FileRecord {
	return FileRecord{
		FileID:           fileID,
		OriginalFilename: filename,
		StorageFilename:  fileID + ".bin",
		StoragePath:      "2026/08/" + fileID + ".bin",
		StorageElementID: "se-a",
		FileSize:         1024,
		ContentType:      "application/octet-stream",
		ChecksumSHA256:   "0c1d2e3f",
		UploadedBy:       uploader,
		CreatedAt:        ts,
		UpdatedAt:        ts,
		EventTimestamp:   ts,
	}
}

func TestSearchByFilenameAndDescription(t *testing.T) {
	t.Parallel()
	st := setupStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	// Same term once as a filename token (weight A) and once stemmed inside
	// a description (weight B).
	inName := record("rank-1", "previz reel.mov", "rank-owner", base)
	inDesc := record("rank-2", "chase_040.mov", "rank-owner", base.Add(time.Second))
	inDesc.Description = "Previz passes for the chase sequence"

	applied, err := st.IndexFile(ctx, key("rank-1", "file:created", "1-0"), inName)
	require.NoError(t, err)
	require.True(t, applied)
	applied, err = st.IndexFile(ctx, key("rank-2", "file:created", "1-1"), inDesc)
	require.NoError(t, err)
	require.True(t, applied)

	files, total, err := st.Search(ctx, SearchQuery{Text: "previz", UploadedBy: "rank-owner"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, files, 2)
	assert.Equal(t, "rank-1", files[0].FileID, "filename hit must outrank description hit")
	assert.Equal(t, "rank-2", files[1].FileID)

	// Whole filenames tokenize as single file-type lexemes, so an exact
	// filename query matches too.
	files, _, err = st.Search(ctx, SearchQuery{Text: "chase_040.mov", UploadedBy: "rank-owner"})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "rank-2", files[0].FileID)
}

func TestSearchFilters(t *testing.T) {
	t.Parallel()
	st := setupStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC)

	texture := record("flt-1", "rock_diffuse.png", "flt-alice", base)
	texture.ContentType = "image/png"
	texture.Tags = []string{"texture", "env"}

	render := record("flt-2", "rock_beauty.exr", "flt-bob", base.Add(time.Second))
	render.ContentType = "image/x-exr"
	render.Tags = []string{"render"}
	render.StorageElementID = "se-b"

	doc := record("flt-3", "rock_notes.txt", "flt-alice", base.Add(2*time.Second))
	doc.ContentType = "text/plain"

	for i, rec := range []FileRecord{texture, render, doc} {
		applied, err := st.IndexFile(ctx, key(rec.FileID, "file:created", fmt.Sprintf("2-%d", i)), rec)
		require.NoError(t, err)
		require.True(t, applied)
	}

	byUploader, _, err := st.Search(ctx, SearchQuery{UploadedBy: "flt-alice"})
	require.NoError(t, err)
	require.Len(t, byUploader, 2)
	assert.Equal(t, "flt-3", byUploader[0].FileID, "filter-only listings are newest first")
	assert.Equal(t, "flt-1", byUploader[1].FileID)

	byTag, _, err := st.Search(ctx, SearchQuery{Tag: "texture", UploadedBy: "flt-alice"})
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, "flt-1", byTag[0].FileID)

	images, _, err := st.Search(ctx, SearchQuery{ContentType: "image/", UploadedBy: "flt-bob"})
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "flt-2", images[0].FileID)

	onElement, _, err := st.Search(ctx, SearchQuery{StorageElementID: "se-b", UploadedBy: "flt-bob"})
	require.NoError(t, err)
	require.Len(t, onElement, 1)
	assert.Equal(t, "flt-2", onElement[0].FileID)

	// Tag words live in the search vector as well.
	byText, _, err := st.Search(ctx, SearchQuery{Text: "env", UploadedBy: "flt-alice"})
	require.NoError(t, err)
	require.Len(t, byText, 1)
	assert.Equal(t, "flt-1", byText[0].FileID)
}

func TestSearchPagination(t *testing.T) {
	t.Parallel()
	st := setupStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	for i := range 5 {
		rec := record(fmt.Sprintf("page-%d", i), fmt.Sprintf("take_%03d.mov", i), "page-owner", base.Add(time.Duration(i)*time.Second))
		applied, err := st.IndexFile(ctx, key(rec.FileID, "file:created", fmt.Sprintf("3-%d", i)), rec)
		require.NoError(t, err)
		require.True(t, applied)
	}

	first, total, err := st.Search(ctx, SearchQuery{UploadedBy: "page-owner", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, first, 2)
	assert.Equal(t, "page-4", first[0].FileID)
	assert.Equal(t, "page-3", first[1].FileID)

	second, total, err := st.Search(ctx, SearchQuery{UploadedBy: "page-owner", Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, second, 2)
	assert.Equal(t, "page-2", second[0].FileID)
	assert.Equal(t, "page-1", second[1].FileID)
}

func TestReplayIsIdempotent(t *testing.T) {
	t.Parallel()
	st := setupStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC)

	rec := record("replay-1", "plate_010.dpx", "replay-owner", base)
	k := key("replay-1", "file:created", "4-0")

	applied, err := st.IndexFile(ctx, k, rec)
	require.NoError(t, err)
	assert.True(t, applied)

	// Redelivery of the same stream entry: absorbed without touching the row.
	rec.OriginalFilename = "GARBAGE"
	applied, err = st.IndexFile(ctx, k, rec)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := st.GetFile(ctx, "replay-1")
	require.NoError(t, err)
	assert.Equal(t, "plate_010.dpx", got.OriginalFilename)
}

func TestStaleEventKeepsNewerMetadata(t *testing.T) {
	t.Parallel()
	st := setupStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC)

	newer := record("stale-1", "cut_v2.mov", "stale-owner", base.Add(time.Minute))
	applied, err := st.IndexFile(ctx, key("stale-1", "file:updated", "5-1"), newer)
	require.NoError(t, err)
	assert.True(t, applied)

	// A different stream entry carrying an older document: the ledger admits
	// it, the event_timestamp guard discards its payload.
	older := record("stale-1", "cut_v1.mov", "stale-owner", base)
	applied, err = st.IndexFile(ctx, key("stale-1", "file:created", "5-0"), older)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := st.GetFile(ctx, "stale-1")
	require.NoError(t, err)
	assert.Equal(t, "cut_v2.mov", got.OriginalFilename)
	assert.True(t, got.EventTimestamp.Equal(base.Add(time.Minute)))
}

func TestFinalizePinsExpiry(t *testing.T) {
	t.Parallel()
	st := setupStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 25, 15, 0, 0, 0, time.UTC)
	expires := base.Add(30 * 24 * time.Hour)

	rec := record("fin-1", "master_grade.mov", "fin-owner", base)
	rec.ExpiresAt = &expires
	applied, err := st.IndexFile(ctx, key("fin-1", "file:created", "6-0"), rec)
	require.NoError(t, err)
	assert.True(t, applied)

	finalizedAt := base.Add(time.Hour)
	fin := rec
	fin.RetentionPolicy = "PERMANENT"
	fin.FinalizedAt = &finalizedAt
	fin.ExpiresAt = nil
	fin.UpdatedAt = finalizedAt
	applied, err = st.FinalizeFile(ctx, key("fin-1", "file:finalized", "6-1"), fin)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := st.GetFile(ctx, "fin-1")
	require.NoError(t, err)
	assert.Equal(t, "PERMANENT", got.RetentionPolicy)
	require.NotNil(t, got.FinalizedAt)
	assert.Nil(t, got.ExpiresAt)

	// An attribute document published after the finalize still carries the
	// old TTL; the index must not re-arm the expiry.
	late := rec
	late.Description = "Graded master, approved"
	late.EventTimestamp = base.Add(2 * time.Hour)
	late.UpdatedAt = late.EventTimestamp
	applied, err = st.IndexFile(ctx, key("fin-1", "file:updated", "6-2"), late)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err = st.GetFile(ctx, "fin-1")
	require.NoError(t, err)
	assert.Equal(t, "Graded master, approved", got.Description)
	assert.Equal(t, "PERMANENT", got.RetentionPolicy)
	assert.Nil(t, got.ExpiresAt, "finalized files must not regain an expiry from late attribute updates")
}

func TestDeleteBeforeCreateKeepsTombstone(t *testing.T) {
	t.Parallel()
	st := setupStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 25, 16, 0, 0, 0, time.UTC)

	applied, err := st.MarkDeleted(ctx, key("tomb-1", "file:deleted", "7-1"), "tomb-1", "se-a", base.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, applied)

	// The create event arrives late. Metadata lands, the tombstone holds.
	rec := record("tomb-1", "scratch_take.wav", "tomb-owner", base)
	applied, err = st.IndexFile(ctx, key("tomb-1", "file:created", "7-0"), rec)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := st.GetFile(ctx, "tomb-1")
	require.NoError(t, err)
	assert.Equal(t, "scratch_take.wav", got.OriginalFilename)
	require.NotNil(t, got.DeletedAt, "a late create must not resurrect a deleted file")

	visible, _, err := st.Search(ctx, SearchQuery{UploadedBy: "tomb-owner"})
	require.NoError(t, err)
	assert.Empty(t, visible)

	withDeleted, _, err := st.Search(ctx, SearchQuery{UploadedBy: "tomb-owner", IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, withDeleted, 1)
	assert.Equal(t, "tomb-1", withDeleted[0].FileID)
}

func TestGetFileMissing(t *testing.T) {
	t.Parallel()
	st := setupStore(t)

	_, err := st.GetFile(context.Background(), "missing-1")
	assert.ErrorIs(t, err, ErrFileNotFound)
}
