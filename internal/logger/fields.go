package logger

import "log/slog"

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so aggregated logs
// from the four services can be queried with one vocabulary.
const (
	// Tracing & request correlation
	KeyTraceID   = "trace_id"
	KeyRequestID = "request_id"

	// Files & storage
	KeyFileID          = "file_id"
	KeyStorageFilename = "storage_filename"
	KeyStoragePath     = "storage_path"
	KeyPath            = "path"
	KeySize            = "size"
	KeyChecksum        = "checksum"
	KeyContentType     = "content_type"

	// Storage elements
	KeyElementID      = "element_id"
	KeyStorageMode    = "storage_mode"
	KeyCapacityStatus = "capacity_status"
	KeyUsedBytes      = "used_bytes"
	KeyPriority       = "priority"

	// Write-ahead log
	KeyTransactionID = "transaction_id"
	KeyWALStatus     = "wal_status"
	KeyOperationType = "operation_type"

	// Events & streams
	KeyEventType = "event_type"
	KeyStreamID  = "stream_id"
	KeyGroup     = "consumer_group"
	KeyConsumer  = "consumer"
	KeyAttempt   = "attempt"

	// Auth
	KeySubject   = "sub"
	KeyClientID  = "client_id"
	KeyTokenType = "token_type"
	KeyRole      = "role"
	KeyKeyVer    = "key_version"

	// Operation metadata
	KeyOperation  = "operation"
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyClientIP   = "client_ip"
	KeyStatus     = "status"
)

// Typed attr constructors for the hottest fields.

// FileID returns a slog.Attr for a file identifier
func FileID(id string) slog.Attr {
	return slog.String(KeyFileID, id)
}

// ElementID returns a slog.Attr for a storage element identifier
func ElementID(id string) slog.Attr {
	return slog.String(KeyElementID, id)
}

// TransactionID returns a slog.Attr for a WAL transaction
func TransactionID(id string) slog.Attr {
	return slog.String(KeyTransactionID, id)
}

// Size returns a slog.Attr for a byte size
func Size(n int64) slog.Attr {
	return slog.Int64(KeySize, n)
}

// Path returns a slog.Attr for a filesystem path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// EventType returns a slog.Attr for a file-event type
func EventType(t string) slog.Attr {
	return slog.String(KeyEventType, t)
}

// StreamID returns a slog.Attr for a Redis stream entry ID
func StreamID(id string) slog.Attr {
	return slog.String(KeyStreamID, id)
}

// ClientID returns a slog.Attr for a service-account client ID
func ClientID(id string) slog.Attr {
	return slog.String(KeyClientID, id)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Attempt returns a slog.Attr for a retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}
