package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/plos/internal/fileutil"
)

// File names inside the keys directory.
const (
	PrivateKeyFile = "ed25519.priv.pem"
	PublicKeyFile  = "ed25519.pub.pem"
	RegistryFile   = "registry.json"
)

// Store is the on-disk key material of one replica.
type Store struct {
	root string
	dir  string
}

// NewStore returns a Store for the keys directory dir. Relative registry
// paths are resolved against root.
func NewStore(root, dir string) *Store {
	return &Store{root: root, dir: dir}
}

// Dir returns the keys directory.
func (s *Store) Dir() string { return s.dir }

// PrivatePath returns the path of the local private key.
func (s *Store) PrivatePath() string { return filepath.Join(s.dir, PrivateKeyFile) }

// PublicPath returns the path of the local public key.
func (s *Store) PublicPath() string { return filepath.Join(s.dir, PublicKeyFile) }

// RegistryPath returns the path of the registry file.
func (s *Store) RegistryPath() string { return filepath.Join(s.dir, RegistryFile) }

// EnsureKeypair generates a fresh key pair unless both key files exist.
// It reports whether a new pair was written.
func (s *Store) EnsureKeypair() (bool, error) {
	if fileutil.Exists(s.PrivatePath()) && fileutil.Exists(s.PublicPath()) {
		return false, nil
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return false, fmt.Errorf("generate key: %w", err)
	}
	privPEM, err := EncodePrivateKeyPEM(priv)
	if err != nil {
		return false, err
	}
	pubPEM, err := EncodePublicKeyPEM(pub)
	if err != nil {
		return false, err
	}

	if err := fileutil.WriteAtomic(s.PrivatePath(), privPEM, 0o600); err != nil {
		return false, fmt.Errorf("write private key: %w", err)
	}
	if err := fileutil.WriteAtomic(s.PublicPath(), pubPEM, 0o644); err != nil {
		return false, fmt.Errorf("write public key: %w", err)
	}
	return true, nil
}

// PrivateKey loads the local signing key, generating one on first use.
func (s *Store) PrivateKey() (ed25519.PrivateKey, error) {
	if _, err := s.EnsureKeypair(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.PrivatePath())
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return ParsePrivateKey(data)
}

// LocalPublicKey loads the local public key.
func (s *Store) LocalPublicKey() (ed25519.PublicKey, error) {
	return s.readPublicKey(s.PublicPath())
}

// Registry loads the registry, creating one that registers the local key
// as origin's default key when none exists.
func (s *Store) Registry(origin string) (Registry, error) {
	reg, ok, err := loadRegistry(s.RegistryPath())
	if err != nil || ok {
		return reg, err
	}

	keyID := DefaultKeyID(origin)
	reg = Registry{
		Active: keyID,
		Keys: map[string]Entry{
			keyID: {Origin: origin, Alg: Algorithm, PubPath: s.relative(s.PublicPath())},
		},
	}
	if err := saveRegistry(s.RegistryPath(), reg); err != nil {
		return Registry{}, err
	}
	return reg, nil
}

// ActiveKeyID returns the key id the replica signs with.
func (s *Store) ActiveKeyID(origin string) (string, error) {
	reg, err := s.Registry(origin)
	if err != nil {
		return "", err
	}
	return reg.Active, nil
}

// ErrKeyMismatch is returned when a key that is not the public half of the
// local signing key would become the active key.
var ErrKeyMismatch = errors.New("keys: public key does not match the local signing key")

// Add registers the public key at pubPath under keyID. The key file must
// parse. When activate is set the key becomes the active signing key id;
// only the public half of the local private key can be activated.
func (s *Store) Add(keyID, origin, pubPath string, activate bool) error {
	if err := validKeyID(keyID); err != nil {
		return err
	}
	pub, err := s.readPublicKey(s.resolve(pubPath))
	if err != nil {
		return fmt.Errorf("register %s: %w", keyID, err)
	}

	reg, ok, err := loadRegistry(s.RegistryPath())
	if err != nil {
		return err
	}
	if !ok {
		reg = Registry{Keys: map[string]Entry{}}
	}
	if activate || reg.Active == "" {
		if err := s.matchesLocal(pub); err != nil {
			return fmt.Errorf("activate %s: %w", keyID, err)
		}
		reg.Active = keyID
	}
	reg.Keys[keyID] = Entry{Origin: origin, Alg: Algorithm, PubPath: pubPath}
	return saveRegistry(s.RegistryPath(), reg)
}

// PublicKeyFor resolves keyID through the registry.
func (s *Store) PublicKeyFor(keyID string) (ed25519.PublicKey, error) {
	reg, ok, err := loadRegistry(s.RegistryPath())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s (no registry)", ErrUnknownKey, keyID)
	}
	entry, err := reg.Lookup(keyID)
	if err != nil {
		return nil, err
	}
	if entry.Alg != "" && entry.Alg != Algorithm {
		return nil, fmt.Errorf("%w: %s uses %s", ErrUnsupportedKey, keyID, entry.Alg)
	}
	return s.readPublicKey(s.resolve(entry.PubPath))
}

func (s *Store) matchesLocal(pub ed25519.PublicKey) error {
	priv, err := s.PrivateKey()
	if err != nil {
		return err
	}
	local, ok := priv.Public().(ed25519.PublicKey)
	if !ok || !local.Equal(pub) {
		return ErrKeyMismatch
	}
	return nil
}

func (s *Store) readPublicKey(path string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("public key %s: %w", path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return ParsePublicKey(data)
}

func (s *Store) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.root, filepath.FromSlash(path))
}

func (s *Store) relative(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
