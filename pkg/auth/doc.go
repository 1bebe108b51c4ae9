// Package auth implements the unified JWT scheme shared by every ArtStore
// service.
//
// Tokens are RS256-signed and carry a single claim set (Claims) regardless of
// whether the principal is an interactive admin user or a machine service
// account. Validation is fully local: services hold the active public keys
// and never call the admin module to check a token.
//
// The package provides:
//   - Claims: the unified payload with strict schema validation
//   - Issuer: mints access/refresh token pairs against a signing key provider
//   - Verifier: validates tokens against the active public key set
//   - KeyManager: file- or PEM-backed key material with fsnotify hot reload
//   - password helpers: bcrypt hashing, policy checks, secret generation
//
// Key rotation keeps at most two active keys (the 1 hour overlap window), so
// verification routes by the "kid" header when present and otherwise tries
// every active key.
package auth
