// Package keys manages the JWT signing key lifecycle for the admin module:
// database-backed key material, a provider feeding the token issuer and
// verifier, and scheduled rotation serialized across replicas with a Redis
// lock.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/artstore/artstore/pkg/admin/models"
)

// DefaultKeyBits is the RSA modulus size for generated signing keys.
const DefaultKeyBits = 2048

// Generate creates a fresh RSA signing key valid from now for the given
// window. The version doubles as the "kid" header on tokens it signs.
func Generate(now time.Time, validity time.Duration, bits int) (*models.JWTKey, error) {
	if bits == 0 {
		bits = DefaultKeyBits
	}

	private, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}

	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(private),
	})
	publicDER, err := x509.MarshalPKIXPublicKey(&private.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicDER,
	})

	return &models.JWTKey{
		Version:       uuid.NewString(),
		PrivateKeyPEM: string(privatePEM),
		PublicKeyPEM:  string(publicPEM),
		CreatedAt:     now,
		ExpiresAt:     now.Add(validity),
		IsActive:      true,
	}, nil
}
