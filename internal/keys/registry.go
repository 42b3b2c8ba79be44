package keys

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/roach88/plos/internal/fileutil"
)

// ErrUnknownKey is returned when a key id has no registry entry.
var ErrUnknownKey = errors.New("keys: unknown keyId")

// Entry describes one registered public key.
type Entry struct {
	Origin  string `json:"origin"`
	Alg     string `json:"alg"`
	PubPath string `json:"pubPath"`
}

// Registry maps key ids to public keys and names the key this replica signs
// with.
type Registry struct {
	Active string           `json:"active"`
	Keys   map[string]Entry `json:"keys"`
}

// DefaultKeyID returns the key id assigned to origin's first key.
func DefaultKeyID(origin string) string {
	return origin + "#ed25519-1"
}

// Lookup returns the entry for keyID.
func (r Registry) Lookup(keyID string) (Entry, error) {
	e, ok := r.Keys[keyID]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownKey, keyID)
	}
	return e, nil
}

// IDs returns the registered key ids in sorted order.
func (r Registry) IDs() []string {
	ids := make([]string, 0, len(r.Keys))
	for id := range r.Keys {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func loadRegistry(path string) (Registry, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Registry{}, false, nil
	}
	if err != nil {
		return Registry{}, false, fmt.Errorf("read registry: %w", err)
	}

	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return Registry{}, false, fmt.Errorf("parse registry %s: %w", path, err)
	}
	if reg.Keys == nil {
		reg.Keys = map[string]Entry{}
	}
	return reg, true, nil
}

func saveRegistry(path string, reg Registry) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("save registry: %w", err)
	}
	return nil
}

func validKeyID(keyID string) error {
	if strings.TrimSpace(keyID) == "" {
		return errors.New("keys: keyId must not be empty")
	}
	return nil
}
