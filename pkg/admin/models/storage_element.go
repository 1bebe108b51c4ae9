// Package models defines the admin module's persistent records: the
// storage-element registry, the file registry, JWT signing keys, service
// accounts, admin users, and the audit log.
package models

import (
	"time"

	"github.com/artstore/artstore/pkg/registry"
)

// StorageElement is the admin-owned registry record for one element. The
// live operational view (capacity, health) arrives over Redis; this row is
// the durable identity and configuration.
type StorageElement struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	// ElementID is the short human tag used in Redis keys and URLs. It
	// never changes after creation.
	ElementID string `gorm:"uniqueIndex;not null;size:64" json:"element_id"`

	Name        string               `gorm:"uniqueIndex;not null;size:255" json:"name"`
	Mode        registry.Mode        `gorm:"not null;size:8" json:"mode"`
	StorageType registry.StorageType `gorm:"not null;size:16;default:LOCAL" json:"storage_type"`
	APIURL      string               `gorm:"not null;size:512" json:"api_url"`
	BasePath    string               `gorm:"size:512" json:"base_path,omitempty"`

	CapacityBytes int64 `json:"capacity_bytes"`
	UsedBytes     int64 `json:"used_bytes"`
	FileCount     int64 `json:"file_count"`

	// Priority orders upload placement; lower fills first. It is the only
	// tiebreaker the selector uses besides the element_id ordering.
	Priority uint16 `gorm:"not null;default:100" json:"priority"`

	RetentionDays int `gorm:"default:365" json:"retention_days"`

	Status          registry.Status `gorm:"size:16;default:OFFLINE" json:"status"`
	LastHealthCheck *time.Time      `json:"last_health_check,omitempty"`

	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`
}

// TableName returns the table name for StorageElement.
func (StorageElement) TableName() string {
	return "storage_elements"
}

// Deleted reports whether the element was logically deleted.
func (e *StorageElement) Deleted() bool {
	return e.DeletedAt != nil
}

// Info converts the record into the registry wire shape.
func (e *StorageElement) Info() registry.ElementInfo {
	info := registry.ElementInfo{
		ElementID:     e.ElementID,
		Name:          e.Name,
		Mode:          e.Mode,
		Status:        e.Status,
		StorageType:   e.StorageType,
		APIURL:        e.APIURL,
		CapacityBytes: e.CapacityBytes,
		UsedBytes:     e.UsedBytes,
		FileCount:     e.FileCount,
		Priority:      e.Priority,
		RetentionDays: e.RetentionDays,
	}
	if e.LastHealthCheck != nil {
		info.LastHealthCheck = e.LastHealthCheck.UTC().Format(time.RFC3339)
	}
	return info
}
