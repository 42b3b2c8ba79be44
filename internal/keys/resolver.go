package keys

import (
	"crypto/ed25519"
	"fmt"
)

// Resolver finds the public key a manifest was signed with.
type Resolver interface {
	PublicKey(keyID string) (ed25519.PublicKey, error)
}

// RegistryResolver looks key ids up in the registry.
type RegistryResolver struct {
	Store *Store
}

// PublicKey implements Resolver.
func (r RegistryResolver) PublicKey(keyID string) (ed25519.PublicKey, error) {
	return r.Store.PublicKeyFor(keyID)
}

// LegacyLocalKey ignores the key id and returns the local public key.
// Manifests written before key ids existed were always signed with it.
type LegacyLocalKey struct {
	Store *Store
}

// PublicKey implements Resolver.
func (r LegacyLocalKey) PublicKey(string) (ed25519.PublicKey, error) {
	pub, err := r.Store.LocalPublicKey()
	if err != nil {
		return nil, fmt.Errorf("legacy local key: %w", err)
	}
	return pub, nil
}

// ResolverFor picks the resolution strategy for a manifest: registry lookup
// when it names a key id, the legacy local key otherwise.
func (s *Store) ResolverFor(keyID string) Resolver {
	if keyID == "" {
		return LegacyLocalKey{Store: s}
	}
	return RegistryResolver{Store: s}
}
