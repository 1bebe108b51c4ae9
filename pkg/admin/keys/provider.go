package keys

import (
	"context"
	"crypto/rsa"
	"sync"
	"time"

	"github.com/artstore/artstore/pkg/admin/store"
	"github.com/artstore/artstore/pkg/auth"
)

// defaultCacheTTL bounds how stale the provider's view of the key table can
// get. Rotation invalidates explicitly, so this only matters for rotations
// performed by another replica.
const defaultCacheTTL = 30 * time.Second

// Provider serves signing and verification keys from the admin database.
// It implements auth.SigningKeyProvider and auth.PublicKeyProvider: new
// tokens are signed with the newest active key, and any active public key
// validates.
type Provider struct {
	store *store.Store
	ttl   time.Duration

	mu       sync.RWMutex
	loadedAt time.Time
	signing  *auth.SigningKey
	publics  map[string]*rsa.PublicKey
}

// NewProvider creates a provider over the key table. cacheTTL <= 0 uses the
// default.
func NewProvider(st *store.Store, cacheTTL time.Duration) *Provider {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &Provider{store: st, ttl: cacheTTL}
}

// SigningKey implements auth.SigningKeyProvider.
func (p *Provider) SigningKey(ctx context.Context) (*auth.SigningKey, error) {
	if err := p.refresh(ctx); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.signing == nil {
		return nil, auth.ErrNoSigningKey
	}
	return p.signing, nil
}

// PublicKeys implements auth.PublicKeyProvider.
func (p *Provider) PublicKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	if err := p.refresh(ctx); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.publics) == 0 {
		return nil, auth.ErrNoPublicKeys
	}
	keys := make(map[string]*rsa.PublicKey, len(p.publics))
	for version, key := range p.publics {
		keys[version] = key
	}
	return keys, nil
}

// Invalidate drops the cache so the next call reloads from the database.
// The rotator calls this after committing a rotation.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.loadedAt = time.Time{}
	p.mu.Unlock()
}

// refresh reloads the active keys when the cache is stale. A load failure
// with warm cache keeps serving the previous keys.
func (p *Provider) refresh(ctx context.Context) error {
	p.mu.RLock()
	fresh := time.Since(p.loadedAt) < p.ttl
	warm := !p.loadedAt.IsZero()
	p.mu.RUnlock()
	if fresh {
		return nil
	}

	active, err := p.store.ActiveJWTKeys(ctx)
	if err != nil {
		if warm {
			return nil
		}
		return err
	}

	var signing *auth.SigningKey
	publics := make(map[string]*rsa.PublicKey, len(active))
	for _, key := range active {
		public, err := key.PublicKey()
		if err != nil {
			return err
		}
		publics[key.Version] = public
	}
	if len(active) > 0 {
		private, err := active[0].PrivateKey()
		if err != nil {
			return err
		}
		signing = &auth.SigningKey{Version: active[0].Version, Key: private}
	}

	p.mu.Lock()
	p.loadedAt = time.Now()
	p.signing = signing
	p.publics = publics
	p.mu.Unlock()
	return nil
}
