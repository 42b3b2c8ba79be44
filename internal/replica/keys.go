package replica

import (
	"github.com/roach88/plos/internal/keys"
	"github.com/roach88/plos/internal/meta"
)

// KeyInfo describes one registry entry.
type KeyInfo struct {
	KeyID       string `json:"keyId"`
	Origin      string `json:"origin"`
	Alg         string `json:"alg"`
	PubPath     string `json:"pubPath"`
	Active      bool   `json:"active"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Keys lists the key registry, bootstrapping it (and the local key pair)
// when absent.
func (r *Replica) Keys() ([]KeyInfo, error) {
	origin, err := r.Origin()
	if err != nil {
		return nil, err
	}
	if origin == "" {
		origin = meta.DefaultOrigin
	}
	if _, err := r.keys.EnsureKeypair(); err != nil {
		return nil, err
	}
	reg, err := r.keys.Registry(origin)
	if err != nil {
		return nil, err
	}

	out := make([]KeyInfo, 0, len(reg.Keys))
	for _, id := range reg.IDs() {
		entry := reg.Keys[id]
		info := KeyInfo{
			KeyID:   id,
			Origin:  entry.Origin,
			Alg:     entry.Alg,
			PubPath: entry.PubPath,
			Active:  id == reg.Active,
		}
		pub, err := r.keys.PublicKeyFor(id)
		if err != nil {
			info.Error = err.Error()
		} else {
			info.Fingerprint = keys.Fingerprint(pub)
		}
		out = append(out, info)
	}
	return out, nil
}

// AddKey registers a peer's public key so its segments verify here.
func (r *Replica) AddKey(keyID, origin, pubPath string, activate bool) error {
	// Make sure the local key is registered before the first foreign one.
	if _, err := r.Keys(); err != nil {
		return err
	}
	origin, err := meta.NormalizeName(origin)
	if err != nil {
		return err
	}
	if err := r.keys.Add(keyID, origin, pubPath, activate); err != nil {
		return err
	}
	r.logger.Info("key registered", "keyId", keyID, "origin", origin, "active", activate)
	return nil
}
