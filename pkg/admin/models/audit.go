package models

import "time"

// AuditEntry records one administrative mutation. Writes are
// fire-and-forget: a failed audit insert never fails the operation it
// describes.
type AuditEntry struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	// Actor is the principal that performed the action (username or
	// client_id).
	Actor string `gorm:"size:255;index" json:"actor"`

	// Action is a stable verb like "storage_element.create".
	Action string `gorm:"not null;size:128;index" json:"action"`

	// Target identifies the mutated entity.
	Target string `gorm:"size:255" json:"target,omitempty"`

	// Detail is a short human-readable summary.
	Detail string `gorm:"size:1024" json:"detail,omitempty"`

	SourceIP string `gorm:"size:64" json:"source_ip,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName returns the table name for AuditEntry.
func (AuditEntry) TableName() string {
	return "audit_entries"
}
