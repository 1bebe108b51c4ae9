package models

import (
	"encoding/json"
	"time"
)

// AccountStatus is the lifecycle state of a service account.
type AccountStatus string

const (
	AccountActive    AccountStatus = "ACTIVE"
	AccountSuspended AccountStatus = "SUSPENDED"
	AccountExpired   AccountStatus = "EXPIRED"
	AccountDeleted   AccountStatus = "DELETED"
)

// IsValid checks if the status is a known AccountStatus.
func (s AccountStatus) IsValid() bool {
	switch s {
	case AccountActive, AccountSuspended, AccountExpired, AccountDeleted:
		return true
	}
	return false
}

// secretHistoryDepth is how many previous secret hashes are retained to
// block reuse.
const secretHistoryDepth = 5

// ServiceAccount is a machine principal that authenticates with OAuth2
// client credentials.
type ServiceAccount struct {
	ID   string `gorm:"primaryKey;size:36" json:"id"`
	Name string `gorm:"uniqueIndex;not null;size:255" json:"name"`

	// ClientID is the opaque OAuth2 identifier, always prefixed "sa_".
	ClientID string `gorm:"uniqueIndex;not null;size:64" json:"client_id"`

	// ClientSecretHash is the bcrypt hash of the current secret. The
	// plaintext leaves the server exactly once, at create or rotate.
	ClientSecretHash string `gorm:"not null" json:"-"`

	// SecretHistory is a JSON array of previous secret hashes, newest
	// first, capped at secretHistoryDepth.
	SecretHistory string `gorm:"type:text" json:"-"`

	Role      string        `gorm:"not null;size:32;default:SERVICE" json:"role"`
	Status    AccountStatus `gorm:"size:16;default:ACTIVE" json:"status"`
	RateLimit int           `gorm:"default:60" json:"rate_limit"`

	Environment string `gorm:"size:64" json:"environment,omitempty"`
	Description string `gorm:"size:1024" json:"description,omitempty"`

	// IsSystem accounts are created at bootstrap and cannot be mutated or
	// deleted through the API.
	IsSystem bool `gorm:"default:false" json:"is_system"`

	SecretExpiresAt *time.Time `json:"secret_expires_at,omitempty"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for ServiceAccount.
func (ServiceAccount) TableName() string {
	return "service_accounts"
}

// Usable reports whether the account may authenticate right now.
func (a *ServiceAccount) Usable(now time.Time) bool {
	if a.Status != AccountActive {
		return false
	}
	if a.SecretExpiresAt != nil && now.After(*a.SecretExpiresAt) {
		return false
	}
	return true
}

// HistoryHashes decodes the stored secret history.
func (a *ServiceAccount) HistoryHashes() []string {
	if a.SecretHistory == "" {
		return nil
	}
	var hashes []string
	if err := json.Unmarshal([]byte(a.SecretHistory), &hashes); err != nil {
		return nil
	}
	return hashes
}

// PushSecretHistory records the current hash in the history before a
// rotation replaces it.
func (a *ServiceAccount) PushSecretHistory() {
	if a.ClientSecretHash == "" {
		return
	}
	hashes := append([]string{a.ClientSecretHash}, a.HistoryHashes()...)
	if len(hashes) > secretHistoryDepth {
		hashes = hashes[:secretHistoryDepth]
	}
	raw, err := json.Marshal(hashes)
	if err != nil {
		return
	}
	a.SecretHistory = string(raw)
}
