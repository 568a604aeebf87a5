package tenant

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyCache lets a service-account caller authenticate against a
// locally-cached credential instead of round-tripping to the
// (out-of-scope) identity provider on every call. Keys are stored
// bcrypt-hashed, never in the clear, the same way a credential store
// never persists a plaintext secret.
type APIKeyCache struct {
	mu   sync.RWMutex
	byID map[string]apiKeyEntry
	cost int
}

type apiKeyEntry struct {
	hash      []byte
	principal *BasePrincipal
}

// NewAPIKeyCache builds an empty cache. cost <= 0 falls back to
// bcrypt.DefaultCost.
func NewAPIKeyCache(cost int) *APIKeyCache {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &APIKeyCache{byID: make(map[string]apiKeyEntry), cost: cost}
}

// Put registers a plaintext key for principal, hashing it before it is
// stored.
func (c *APIKeyCache) Put(keyID, plaintextKey string, principal *BasePrincipal) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintextKey), c.cost)
	if err != nil {
		return fmt.Errorf("tenant: hash api key: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[keyID] = apiKeyEntry{hash: hash, principal: principal}
	return nil
}

// Authenticate verifies plaintextKey against the cached hash for
// keyID, returning the associated Principal on success.
func (c *APIKeyCache) Authenticate(keyID, plaintextKey string) (*BasePrincipal, error) {
	c.mu.RLock()
	entry, ok := c.byID[keyID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tenant: unknown api key id %q", keyID)
	}
	if err := bcrypt.CompareHashAndPassword(entry.hash, []byte(plaintextKey)); err != nil {
		return nil, fmt.Errorf("tenant: api key authentication failed: %w", err)
	}
	return entry.principal, nil
}

// Revoke removes a cached key, e.g. once the identity provider reports
// it rotated or expired.
func (c *APIKeyCache) Revoke(keyID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byID, keyID)
}
