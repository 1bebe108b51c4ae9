package registry

import "time"

// Mode is the storage element lifecycle mode.
type Mode string

// Storage element modes, ordered by how much they allow.
const (
	ModeEdit Mode = "EDIT"
	ModeRW   Mode = "RW"
	ModeRO   Mode = "RO"
	ModeAR   Mode = "AR"
)

// Writable reports whether the mode accepts new files.
func (m Mode) Writable() bool {
	return m == ModeEdit || m == ModeRW
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeEdit, ModeRW, ModeRO, ModeAR:
		return true
	}
	return false
}

// Status is the operational health of a storage element.
type Status string

// Storage element statuses.
const (
	StatusOnline      Status = "ONLINE"
	StatusDegraded    Status = "DEGRADED"
	StatusMaintenance Status = "MAINTENANCE"
	StatusOffline     Status = "OFFLINE"
)

// CapacityStatus classifies remaining free space against the mode's
// thresholds.
type CapacityStatus string

// Capacity statuses in increasing order of pressure.
const (
	CapacityOK       CapacityStatus = "OK"
	CapacityWarning  CapacityStatus = "WARNING"
	CapacityCritical CapacityStatus = "CRITICAL"
	CapacityFull     CapacityStatus = "FULL"
)

// StorageType selects the element's backend.
type StorageType string

// Storage backends.
const (
	StorageTypeLocal StorageType = "LOCAL"
	StorageTypeS3    StorageType = "S3"
)

// ElementInfo is the live view of one storage element, as written to the
// per-element Redis hash and embedded in topology snapshots. Fields are
// flat strings and numbers so the hash stays inspectable with HGETALL.
type ElementInfo struct {
	ElementID       string         `json:"element_id" redis:"element_id"`
	Name            string         `json:"name" redis:"name"`
	Mode            Mode           `json:"mode" redis:"mode"`
	Status          Status         `json:"status" redis:"status"`
	StorageType     StorageType    `json:"storage_type" redis:"storage_type"`
	APIURL          string         `json:"api_url" redis:"api_url"`
	CapacityBytes   int64          `json:"capacity_bytes" redis:"capacity_bytes"`
	UsedBytes       int64          `json:"used_bytes" redis:"used_bytes"`
	FileCount       int64          `json:"file_count" redis:"file_count"`
	Priority        uint16         `json:"priority" redis:"priority"`
	CapacityStatus  CapacityStatus `json:"capacity_status" redis:"capacity_status"`
	RetentionDays   int            `json:"retention_days" redis:"retention_days"`
	LastHealthCheck string         `json:"last_health_check" redis:"last_health_check"`
}

// hashFields flattens the info for HSET. Kept explicit so the wire format
// never silently changes with struct reshuffles.
func (e *ElementInfo) hashFields() map[string]any {
	return map[string]any{
		"element_id":        e.ElementID,
		"name":              e.Name,
		"mode":              string(e.Mode),
		"status":            string(e.Status),
		"storage_type":      string(e.StorageType),
		"api_url":           e.APIURL,
		"capacity_bytes":    e.CapacityBytes,
		"used_bytes":        e.UsedBytes,
		"file_count":        e.FileCount,
		"priority":          int64(e.Priority),
		"capacity_status":   string(e.CapacityStatus),
		"retention_days":    e.RetentionDays,
		"last_health_check": e.LastHealthCheck,
	}
}

// Eligible reports whether the element may receive a new upload:
// writable mode, online, and not full.
func (e *ElementInfo) Eligible() bool {
	return e.Mode.Writable() && e.Status == StatusOnline && e.CapacityStatus != CapacityFull
}

// TopologySnapshot is the full topology document published on the discovery
// channel and mirrored into the snapshot key. Version is strictly monotonic
// (Redis INCR); subscribers ignore anything not newer than what they hold.
type TopologySnapshot struct {
	Version         int64         `json:"version"`
	Timestamp       time.Time     `json:"timestamp"`
	Action          string        `json:"action,omitempty"`
	Count           int           `json:"count"`
	StorageElements []ElementInfo `json:"storage_elements"`
}
