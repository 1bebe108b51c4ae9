package auth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/golang-jwt/jwt/v5"

	"github.com/artstore/artstore/internal/logger"
)

// SigningKey couples an RSA private key with its version tag. The version is
// written to the "kid" header of minted tokens so verifiers can route
// straight to the matching public key.
type SigningKey struct {
	Version string
	Key     *rsa.PrivateKey
}

// SigningKeyProvider yields the key new tokens are signed with.
type SigningKeyProvider interface {
	SigningKey(ctx context.Context) (*SigningKey, error)
}

// PublicKeyProvider yields the active public keys indexed by version.
// Rotation keeps at most two keys active at a time.
type PublicKeyProvider interface {
	PublicKeys(ctx context.Context) (map[string]*rsa.PublicKey, error)
}

// KeyManagerConfig configures file- or PEM-backed key material.
//
// Inline PEM values take precedence over path values. Inline keys cannot be
// hot-reloaded; Watch is a no-op unless at least one path is configured.
type KeyManagerConfig struct {
	// PrivateKeyPath is the PEM file holding the RSA private key.
	// Only the token-issuing service needs one.
	PrivateKeyPath string `mapstructure:"private_key_path" yaml:"private_key_path"`

	// PublicKeyPath is the PEM file holding the RSA public key.
	PublicKeyPath string `mapstructure:"public_key_path" yaml:"public_key_path"`

	// PrivateKeyPEM carries the private key inline (e.g. from an env value).
	PrivateKeyPEM string `mapstructure:"private_key_pem" yaml:"private_key_pem"`

	// PublicKeyPEM carries the public key inline.
	PublicKeyPEM string `mapstructure:"public_key_pem" yaml:"public_key_pem"`

	// Version tags the loaded pair; it becomes the "kid" header on tokens
	// signed with it. Default: "local".
	Version string `mapstructure:"version" yaml:"version"`
}

// KeyManager holds RSA key material for token signing and validation.
//
// Material comes either from inline PEM strings or from files on disk.
// File-backed material hot-reloads via Watch: on a filesystem event the
// files are re-read, required to start with "-----BEGIN", and parsed before
// the keys are swapped under the write lock. Any failure keeps the previous
// keys in place.
type KeyManager struct {
	mu      sync.RWMutex
	version string
	private *rsa.PrivateKey
	publics map[string]*rsa.PublicKey

	privatePath string
	publicPath  string
}

// NewKeyManager loads key material according to the configuration.
//
// At least one of the private/public sources must be set. When only a
// private key is given, the public half is derived from it.
func NewKeyManager(config KeyManagerConfig) (*KeyManager, error) {
	km := &KeyManager{
		version:     config.Version,
		privatePath: config.PrivateKeyPath,
		publicPath:  config.PublicKeyPath,
	}
	if km.version == "" {
		km.version = "local"
	}

	var privPEM, pubPEM []byte
	switch {
	case config.PrivateKeyPEM != "":
		privPEM = []byte(config.PrivateKeyPEM)
	case config.PrivateKeyPath != "":
		data, err := os.ReadFile(config.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key %s: %w", config.PrivateKeyPath, err)
		}
		privPEM = data
	}
	switch {
	case config.PublicKeyPEM != "":
		pubPEM = []byte(config.PublicKeyPEM)
	case config.PublicKeyPath != "":
		data, err := os.ReadFile(config.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read public key %s: %w", config.PublicKeyPath, err)
		}
		pubPEM = data
	}
	if privPEM == nil && pubPEM == nil {
		return nil, fmt.Errorf("jwt keys: no key material configured")
	}

	if err := km.load(privPEM, pubPEM); err != nil {
		return nil, err
	}
	return km, nil
}

// SigningKey implements SigningKeyProvider.
func (km *KeyManager) SigningKey(_ context.Context) (*SigningKey, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()
	if km.private == nil {
		return nil, ErrNoSigningKey
	}
	return &SigningKey{Version: km.version, Key: km.private}, nil
}

// PublicKeys implements PublicKeyProvider.
func (km *KeyManager) PublicKeys(_ context.Context) (map[string]*rsa.PublicKey, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()
	if len(km.publics) == 0 {
		return nil, ErrNoPublicKeys
	}
	keys := make(map[string]*rsa.PublicKey, len(km.publics))
	for version, key := range km.publics {
		keys[version] = key
	}
	return keys, nil
}

// Watch blocks watching the configured key files for changes until the
// context is cancelled. Returns immediately when no file paths are
// configured (inline PEM material).
//
// Mounted secrets update via symlink swaps, so the parent directories are
// watched and any create or write event triggers a reload attempt.
func (km *KeyManager) Watch(ctx context.Context) error {
	if km.privatePath == "" && km.publicPath == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create key watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dirs := make(map[string]struct{}, 2)
	for _, path := range []string{km.privatePath, km.publicPath} {
		if path != "" {
			dirs[filepath.Dir(path)] = struct{}{}
		}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	logger.InfoCtx(ctx, "watching jwt key files",
		"private_key_path", km.privatePath,
		"public_key_path", km.publicPath,
	)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			if err := km.reload(); err != nil {
				logger.WarnCtx(ctx, "jwt key reload failed, keeping previous keys",
					"event", event.Name, logger.Err(err))
				continue
			}
			logger.InfoCtx(ctx, "jwt keys reloaded", "event", event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WarnCtx(ctx, "jwt key watcher error", logger.Err(err))
		}
	}
}

// reload re-reads the configured key files and swaps the key material.
func (km *KeyManager) reload() error {
	var privPEM, pubPEM []byte
	if km.privatePath != "" {
		data, err := os.ReadFile(km.privatePath)
		if err != nil {
			return fmt.Errorf("read private key: %w", err)
		}
		privPEM = data
	}
	if km.publicPath != "" {
		data, err := os.ReadFile(km.publicPath)
		if err != nil {
			return fmt.Errorf("read public key: %w", err)
		}
		pubPEM = data
	}
	return km.load(privPEM, pubPEM)
}

// load parses the given PEM material and, only if everything parses, swaps
// it in under the write lock.
func (km *KeyManager) load(privPEM, pubPEM []byte) error {
	var (
		private *rsa.PrivateKey
		public  *rsa.PublicKey
	)

	if privPEM != nil {
		if err := checkPEMPrefix(privPEM); err != nil {
			return fmt.Errorf("private key: %w", err)
		}
		key, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
		if err != nil {
			return fmt.Errorf("private key: %w: %v", ErrInvalidKeyPEM, err)
		}
		private = key
	}
	if pubPEM != nil {
		if err := checkPEMPrefix(pubPEM); err != nil {
			return fmt.Errorf("public key: %w", err)
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
		if err != nil {
			return fmt.Errorf("public key: %w: %v", ErrInvalidKeyPEM, err)
		}
		public = key
	}
	if public == nil && private != nil {
		public = &private.PublicKey
	}
	if public == nil {
		return ErrNoPublicKeys
	}

	km.mu.Lock()
	defer km.mu.Unlock()
	km.private = private
	km.publics = map[string]*rsa.PublicKey{km.version: public}
	return nil
}

// checkPEMPrefix guards against swapping in truncated or garbage files.
func checkPEMPrefix(data []byte) error {
	if !strings.HasPrefix(strings.TrimSpace(string(data)), "-----BEGIN") {
		return ErrInvalidKeyPEM
	}
	return nil
}
