package models

import (
	"encoding/json"
	"time"
)

const (
	// LockoutThreshold is how many consecutive failed logins lock an
	// account.
	LockoutThreshold = 5

	// LockoutDuration is how long a locked account stays locked.
	LockoutDuration = 15 * time.Minute

	// passwordHistoryDepth is how many previous password hashes are kept
	// to block reuse.
	passwordHistoryDepth = 5
)

// AdminUser is a human operator account for the admin API.
type AdminUser struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	Username string `gorm:"uniqueIndex;not null;size:255" json:"username"`

	PasswordHash string `gorm:"not null" json:"-"`

	// PasswordHistory is a JSON array of previous hashes, newest first.
	PasswordHistory string `gorm:"type:text" json:"-"`

	Role string `gorm:"not null;size:32;default:READONLY" json:"role"`

	Email       string `gorm:"size:255" json:"email,omitempty"`
	DisplayName string `gorm:"size:255" json:"display_name,omitempty"`

	Enabled bool `gorm:"default:true" json:"enabled"`

	// IsSystem users are created at bootstrap and cannot be deleted.
	IsSystem bool `gorm:"default:false" json:"is_system"`

	FailedLoginCount int        `gorm:"default:0" json:"-"`
	LockedUntil      *time.Time `json:"locked_until,omitempty"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`

	MustChangePassword bool `gorm:"default:false" json:"must_change_password"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for AdminUser.
func (AdminUser) TableName() string {
	return "admin_users"
}

// Locked reports whether the account is in a lockout window.
func (u *AdminUser) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// RecordFailedLogin increments the failure counter and starts the lockout
// window when the threshold is crossed.
func (u *AdminUser) RecordFailedLogin(now time.Time) {
	u.FailedLoginCount++
	if u.FailedLoginCount >= LockoutThreshold {
		until := now.Add(LockoutDuration)
		u.LockedUntil = &until
	}
}

// RecordLogin resets the failure state and stamps the login time.
func (u *AdminUser) RecordLogin(now time.Time) {
	u.FailedLoginCount = 0
	u.LockedUntil = nil
	u.LastLoginAt = &now
}

// HistoryHashes decodes the stored password history.
func (u *AdminUser) HistoryHashes() []string {
	if u.PasswordHistory == "" {
		return nil
	}
	var hashes []string
	if err := json.Unmarshal([]byte(u.PasswordHistory), &hashes); err != nil {
		return nil
	}
	return hashes
}

// PushPasswordHistory records the current hash before a change replaces it.
func (u *AdminUser) PushPasswordHistory() {
	if u.PasswordHash == "" {
		return
	}
	hashes := append([]string{u.PasswordHash}, u.HistoryHashes()...)
	if len(hashes) > passwordHistoryDepth {
		hashes = hashes[:passwordHistoryDepth]
	}
	raw, err := json.Marshal(hashes)
	if err != nil {
		return
	}
	u.PasswordHistory = string(raw)
}
