package models

import "errors"

// Common errors for admin registry operations.
var (
	// Storage element errors
	ErrElementNotFound  = errors.New("storage element not found")
	ErrDuplicateElement = errors.New("storage element already exists")

	// File registry errors
	ErrFileNotFound      = errors.New("file not found")
	ErrDuplicateFile     = errors.New("file already exists")
	ErrInvalidFile       = errors.New("invalid file record")
	ErrRetentionConflict = errors.New("PERMANENT files cannot become TEMPORARY")

	// JWT key errors
	ErrKeyNotFound     = errors.New("jwt key not found")
	ErrNoActiveKey     = errors.New("no active jwt key")
	ErrTooManyActive   = errors.New("at most two jwt keys may be active")
	ErrDuplicateKey    = errors.New("jwt key version already exists")
	ErrKeyDeactivated  = errors.New("jwt key is deactivated")
	ErrRotationSkipped = errors.New("rotation lock not acquired")

	// Service account errors
	ErrAccountNotFound   = errors.New("service account not found")
	ErrDuplicateAccount  = errors.New("service account already exists")
	ErrAccountImmutable  = errors.New("system service accounts cannot be modified")
	ErrSecretReuse       = errors.New("secret was used recently")
	ErrAccountNotUsable  = errors.New("service account is not active")
	ErrInvalidCredential = errors.New("invalid client credentials")

	// Admin user errors
	ErrAdminNotFound    = errors.New("admin user not found")
	ErrDuplicateAdmin   = errors.New("admin user already exists")
	ErrAdminLocked      = errors.New("account is temporarily locked")
	ErrAdminDisabled    = errors.New("account is disabled")
	ErrPasswordReuse    = errors.New("password was used recently")
	ErrWrongPassword    = errors.New("invalid username or password")
	ErrAdminUndeletable = errors.New("system admin users cannot be deleted")
)
