package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "artstore", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Enabled = false

	shutdown, err := Init(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	// Should be able to call shutdown without error
	err = shutdown(ctx)
	assert.NoError(t, err)

	// Should not be enabled
	assert.False(t, IsEnabled())
}

func TestTracerReturnsNoOp(t *testing.T) {
	// Reset state
	tracer = nil
	enabled = false

	// Without initialization, should return no-op tracer
	tr := Tracer()
	require.NotNil(t, tr)
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()

	// Even without initialization, StartSpan should work (no-op)
	newCtx, span := StartSpan(ctx, "test.operation")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)

	// Should be able to end the span
	span.End()
}

func TestSpanFromContext(t *testing.T) {
	ctx := context.Background()

	// Should return a span even without active span
	span := SpanFromContext(ctx)
	require.NotNil(t, span)
}

func TestAddEvent(t *testing.T) {
	ctx := context.Background()

	// Should not panic with no active span
	require.NotPanics(t, func() {
		AddEvent(ctx, "test.event")
	})
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()

	// Should not panic with nil error
	require.NotPanics(t, func() {
		RecordError(ctx, nil)
	})

	// Should not panic with error
	require.NotPanics(t, func() {
		RecordError(ctx, errors.New("test error"))
	})
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Ok, "success")
	})

	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Error, "failed")
	})
}

func TestSetAttributes(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetAttributes(ctx, ClientIP("192.168.1.1"))
	})
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	traceID := TraceID(ctx)
	assert.Equal(t, "", traceID)
}

func TestSpanID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	spanID := SpanID(ctx)
	assert.Equal(t, "", spanID)
}

func TestAttributeHelpers(t *testing.T) {
	t.Run("ClientIP", func(t *testing.T) {
		attr := ClientIP("192.168.1.100")
		assert.Equal(t, AttrClientIP, string(attr.Key))
		assert.Equal(t, "192.168.1.100", attr.Value.AsString())
	})

	t.Run("ClientAddr", func(t *testing.T) {
		attr := ClientAddr("192.168.1.100:12345")
		assert.Equal(t, AttrClientAddr, string(attr.Key))
		assert.Equal(t, "192.168.1.100:12345", attr.Value.AsString())
	})

	t.Run("FileID", func(t *testing.T) {
		attr := FileID("550e8400-e29b-41d4-a716-446655440000")
		assert.Equal(t, AttrFileID, string(attr.Key))
		assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", attr.Value.AsString())
	})

	t.Run("FileName", func(t *testing.T) {
		attr := FileName("report.pdf")
		assert.Equal(t, AttrFileName, string(attr.Key))
		assert.Equal(t, "report.pdf", attr.Value.AsString())
	})

	t.Run("FileSize", func(t *testing.T) {
		attr := FileSize(1048576)
		assert.Equal(t, AttrFileSize, string(attr.Key))
		assert.Equal(t, int64(1048576), attr.Value.AsInt64())
	})

	t.Run("Offset", func(t *testing.T) {
		attr := Offset(1024)
		assert.Equal(t, AttrOffset, string(attr.Key))
		assert.Equal(t, int64(1024), attr.Value.AsInt64())
	})

	t.Run("Count", func(t *testing.T) {
		attr := Count(4096)
		assert.Equal(t, AttrCount, string(attr.Key))
		assert.Equal(t, int64(4096), attr.Value.AsInt64())
	})

	t.Run("Checksum", func(t *testing.T) {
		attr := Checksum("abcd1234")
		assert.Equal(t, AttrChecksum, string(attr.Key))
		assert.Equal(t, "abcd1234", attr.Value.AsString())
	})

	t.Run("ContentType", func(t *testing.T) {
		attr := ContentType("application/pdf")
		assert.Equal(t, AttrContentType, string(attr.Key))
		assert.Equal(t, "application/pdf", attr.Value.AsString())
	})

	t.Run("ElementID", func(t *testing.T) {
		attr := ElementID("element-1")
		assert.Equal(t, AttrElementID, string(attr.Key))
		assert.Equal(t, "element-1", attr.Value.AsString())
	})

	t.Run("ElementMode", func(t *testing.T) {
		attr := ElementMode("RW")
		assert.Equal(t, AttrElementMode, string(attr.Key))
		assert.Equal(t, "RW", attr.Value.AsString())
	})

	t.Run("TransactionID", func(t *testing.T) {
		attr := TransactionID("txn-42")
		assert.Equal(t, AttrTransactionID, string(attr.Key))
		assert.Equal(t, "txn-42", attr.Value.AsString())
	})

	t.Run("WALState", func(t *testing.T) {
		attr := WALState("committed")
		assert.Equal(t, AttrWALState, string(attr.Key))
		assert.Equal(t, "committed", attr.Value.AsString())
	})

	t.Run("Bucket", func(t *testing.T) {
		attr := Bucket("my-bucket")
		assert.Equal(t, AttrBucket, string(attr.Key))
		assert.Equal(t, "my-bucket", attr.Value.AsString())
	})

	t.Run("StorageKey", func(t *testing.T) {
		attr := StorageKey("2025/11/21/object")
		assert.Equal(t, AttrKey, string(attr.Key))
		assert.Equal(t, "2025/11/21/object", attr.Value.AsString())
	})

	t.Run("EventType", func(t *testing.T) {
		attr := EventType("file:created")
		assert.Equal(t, AttrEventType, string(attr.Key))
		assert.Equal(t, "file:created", attr.Value.AsString())
	})

	t.Run("EventStream", func(t *testing.T) {
		attr := EventStream("artstore:file_events")
		assert.Equal(t, AttrEventStream, string(attr.Key))
		assert.Equal(t, "artstore:file_events", attr.Value.AsString())
	})

	t.Run("EventID", func(t *testing.T) {
		attr := EventID("1700000000000-0")
		assert.Equal(t, AttrEventID, string(attr.Key))
		assert.Equal(t, "1700000000000-0", attr.Value.AsString())
	})

	t.Run("SearchQuery", func(t *testing.T) {
		attr := SearchQuery("quarterly report")
		assert.Equal(t, AttrSearchQuery, string(attr.Key))
		assert.Equal(t, "quarterly report", attr.Value.AsString())
	})

	t.Run("SearchResults", func(t *testing.T) {
		attr := SearchResults(17)
		assert.Equal(t, AttrSearchResults, string(attr.Key))
		assert.Equal(t, int64(17), attr.Value.AsInt64())
	})

	t.Run("Username", func(t *testing.T) {
		attr := Username("admin")
		assert.Equal(t, AttrUsername, string(attr.Key))
		assert.Equal(t, "admin", attr.Value.AsString())
	})

	t.Run("CacheHit", func(t *testing.T) {
		attr := CacheHit(true)
		assert.Equal(t, AttrCacheHit, string(attr.Key))
		assert.True(t, attr.Value.AsBool())
	})
}

func TestStartFileSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartFileSpan(ctx, "upload", "file-123")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	// Without a file ID (upload assigns one mid-flight)
	newCtx2, span2 := StartFileSpan(ctx, "upload", "")
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()

	// With additional attributes
	newCtx3, span3 := StartFileSpan(ctx, "download", "file-456", Offset(0), Count(4096))
	require.NotNil(t, newCtx3)
	require.NotNil(t, span3)
	span3.End()
}

func TestStartStorageSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartStorageSpan(ctx, "write", Bucket("artifacts"), StorageKey("2025/11/21/a.bin"))
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}

func TestStartEventSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartEventSpan(ctx, "apply", "artstore:file_events", EventType("file:created"))
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}

func TestStartSearchSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartSearchSpan(ctx, "files", SearchQuery("report"))
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}
