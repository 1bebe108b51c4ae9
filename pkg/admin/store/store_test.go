package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artstore/artstore/pkg/admin/models"
	"github.com/artstore/artstore/pkg/registry"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "admin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testElement(elementID string, priority uint16) *models.StorageElement {
	return &models.StorageElement{
		ElementID:     elementID,
		Name:          "Element " + elementID,
		Mode:          registry.ModeRW,
		StorageType:   registry.StorageTypeLocal,
		APIURL:        "http://" + elementID + ":8080",
		CapacityBytes: 1 << 30,
		Priority:      priority,
	}
}

func testFile(fileID, elementID string) *models.File {
	return &models.File{
		FileID:           fileID,
		OriginalFilename: "report.pdf",
		StorageFilename:  fileID + "_report.pdf",
		FileSize:         2048,
		ChecksumSHA256:   strings.Repeat("ab", 32),
		RetentionPolicy:  models.RetentionTemporary,
		StorageElementID: elementID,
		UploadedBy:       "fred",
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	config := &Config{}
	config.ApplyDefaults()
	assert.Equal(t, DatabaseTypeSQLite, config.Type)
	assert.NotEmpty(t, config.SQLite.Path)

	bad := &Config{Type: "oracle"}
	bad.ApplyDefaults()
	require.Error(t, bad.Validate())
}

func TestStorageElementCRUD(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	id, err := st.CreateStorageElement(ctx, testElement("elem-01", 10))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = st.CreateStorageElement(ctx, testElement("elem-01", 20))
	require.ErrorIs(t, err, models.ErrDuplicateElement)

	got, err := st.GetStorageElement(ctx, "elem-01")
	require.NoError(t, err)
	assert.Equal(t, "Element elem-01", got.Name)
	assert.Equal(t, registry.ModeRW, got.Mode)

	_, err = st.GetStorageElement(ctx, "elem-99")
	require.ErrorIs(t, err, models.ErrElementNotFound)

	got.Priority = 5
	require.NoError(t, st.UpdateStorageElement(ctx, got))
	updated, err := st.GetStorageElement(ctx, "elem-01")
	require.NoError(t, err)
	assert.Equal(t, uint16(5), updated.Priority)
}

func TestListStorageElementsOrdersByPriority(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	for _, e := range []*models.StorageElement{
		testElement("elem-c", 30),
		testElement("elem-a", 10),
		testElement("elem-b", 10),
	} {
		_, err := st.CreateStorageElement(ctx, e)
		require.NoError(t, err)
	}

	elements, err := st.ListStorageElements(ctx, false)
	require.NoError(t, err)
	require.Len(t, elements, 3)
	assert.Equal(t, "elem-a", elements[0].ElementID, "priority ties break on element_id")
	assert.Equal(t, "elem-b", elements[1].ElementID)
	assert.Equal(t, "elem-c", elements[2].ElementID)
}

func TestDeleteStorageElementIsLogical(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := st.CreateStorageElement(ctx, testElement("elem-01", 10))
	require.NoError(t, err)

	require.NoError(t, st.DeleteStorageElement(ctx, "elem-01", now))

	// The row survives with a deletion stamp.
	got, err := st.GetStorageElement(ctx, "elem-01")
	require.NoError(t, err)
	assert.True(t, got.Deleted())

	live, err := st.ListStorageElements(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, live)
	all, err := st.ListStorageElements(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// Deleting again finds nothing to delete.
	require.ErrorIs(t, st.DeleteStorageElement(ctx, "elem-01", now), models.ErrElementNotFound)

	// The element_id stays reserved forever.
	_, err = st.CreateStorageElement(ctx, testElement("elem-01", 10))
	require.ErrorIs(t, err, models.ErrDuplicateElement)
}

func TestUpdateElementHealth(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.CreateStorageElement(ctx, testElement("elem-01", 10))
	require.NoError(t, err)

	checked := time.Now().UTC().Truncate(time.Second)
	err = st.UpdateElementHealth(ctx, "elem-01", registry.ElementInfo{
		Status:        registry.StatusOnline,
		CapacityBytes: 2 << 30,
		UsedBytes:     1 << 30,
		FileCount:     42,
	}, checked)
	require.NoError(t, err)

	got, err := st.GetStorageElement(ctx, "elem-01")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusOnline, got.Status)
	assert.Equal(t, int64(2<<30), got.CapacityBytes)
	assert.Equal(t, int64(42), got.FileCount)
	require.NotNil(t, got.LastHealthCheck)
}

func TestCreateFileValidates(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	bad := testFile("f-1", "elem-01")
	bad.ChecksumSHA256 = "not-hex"
	require.ErrorIs(t, st.CreateFile(ctx, bad), models.ErrInvalidFile)

	zero := testFile("f-2", "elem-01")
	zero.FileSize = 0
	require.ErrorIs(t, st.CreateFile(ctx, zero), models.ErrInvalidFile)

	good := testFile("f-3", "elem-01")
	require.NoError(t, st.CreateFile(ctx, good))

	// storage_filename is unique per element.
	clash := testFile("f-4", "elem-01")
	clash.StorageFilename = good.StorageFilename
	require.ErrorIs(t, st.CreateFile(ctx, clash), models.ErrDuplicateFile)

	elsewhere := testFile("f-5", "elem-02")
	elsewhere.StorageFilename = good.StorageFilename
	require.NoError(t, st.CreateFile(ctx, elsewhere))
}

func TestListFilesFiltersAndPaginates(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	for i, uploader := range []string{"fred", "fred", "wilma"} {
		f := testFile(string(rune('a'+i))+"-file", "elem-01")
		f.UploadedBy = uploader
		require.NoError(t, st.CreateFile(ctx, f))
	}

	files, total, err := st.ListFiles(ctx, FileFilter{UploadedBy: "fred"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, files, 2)

	page, total, err := st.ListFiles(ctx, FileFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, page, 1)
}

func TestFinalizeFileIsOneWay(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	f := testFile("f-1", "elem-01")
	f.TTLDays = 30
	exp := now.AddDate(0, 0, 30)
	f.TTLExpiresAt = &exp
	require.NoError(t, st.CreateFile(ctx, f))

	finalized, err := st.FinalizeFile(ctx, "f-1", now)
	require.NoError(t, err)
	assert.Equal(t, models.RetentionPermanent, finalized.RetentionPolicy)
	assert.Nil(t, finalized.TTLExpiresAt)
	assert.Zero(t, finalized.TTLDays)
	require.NotNil(t, finalized.FinalizedAt)

	// Finalizing again is a no-op, not an error.
	again, err := st.FinalizeFile(ctx, "f-1", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, finalized.FinalizedAt.Unix(), again.FinalizedAt.Unix())
}

func TestSoftDeleteFileIsIdempotent(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.CreateFile(ctx, testFile("f-1", "elem-01")))

	deleted, err := st.SoftDeleteFile(ctx, "f-1", "user request", now)
	require.NoError(t, err)
	assert.True(t, deleted.Deleted())
	assert.Equal(t, "user request", deleted.DeletionReason)

	// Second delete returns the already-deleted row unchanged.
	again, err := st.SoftDeleteFile(ctx, "f-1", "other reason", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "user request", again.DeletionReason)

	_, total, err := st.ListFiles(ctx, FileFilter{})
	require.NoError(t, err)
	assert.Zero(t, total, "deleted files drop out of default listings")
	files, total, err := st.ListFiles(ctx, FileFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, files, 1)
}
