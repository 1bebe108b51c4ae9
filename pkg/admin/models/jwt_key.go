package models

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"
)

// JWTKey is one RSA signing key pair. At most two keys are active at once:
// the current signer and its predecessor during the overlap hour.
type JWTKey struct {
	// Version identifies the key; it travels as the "kid" header on tokens
	// signed with it.
	Version string `gorm:"primaryKey;size:36" json:"version"`

	PublicKeyPEM  string `gorm:"not null;type:text" json:"public_key_pem"`
	PrivateKeyPEM string `gorm:"not null;type:text" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	IsActive  bool      `gorm:"default:true;index" json:"is_active"`

	// RotationCount increments on every rotation the key survives.
	RotationCount int `gorm:"default:0" json:"rotation_count"`
}

// TableName returns the table name for JWTKey.
func (JWTKey) TableName() string {
	return "jwt_keys"
}

// Expired reports whether the key's validity window has lapsed.
func (k *JWTKey) Expired(now time.Time) bool {
	return now.After(k.ExpiresAt)
}

// PrivateKey parses the stored private key PEM.
func (k *JWTKey) PrivateKey() (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(k.PrivateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("jwt key %s: no PEM block in private key", k.Version)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("jwt key %s: parse private key: %w", k.Version, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("jwt key %s: private key is not RSA", k.Version)
	}
	return key, nil
}

// PublicKey parses the stored public key PEM.
func (k *JWTKey) PublicKey() (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(k.PublicKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("jwt key %s: no PEM block in public key", k.Version)
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("jwt key %s: parse public key: %w", k.Version, err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("jwt key %s: public key is not RSA", k.Version)
	}
	return key, nil
}
