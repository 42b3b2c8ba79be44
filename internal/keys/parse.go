package keys

import (
	"bytes"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// Errors
var (
	ErrInvalidKeyFormat = errors.New("keys: invalid key format")
	ErrUnsupportedKey   = errors.New("keys: unsupported key type (expected Ed25519)")
	ErrKeyDecryption    = errors.New("keys: key is encrypted (passphrase required)")
)

// ParsePrivateKey decodes an Ed25519 private key from PKCS#8 PEM, OpenSSH
// PEM, a raw 32-byte seed or a raw 64-byte key.
func ParsePrivateKey(data []byte) (ed25519.PrivateKey, error) {
	switch len(data) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(data), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(bytes.Clone(data)), nil
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidKeyFormat
	}

	switch block.Type {
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse pkcs8: %w", err)
		}
		return asPrivate(parsed)
	case "OPENSSH PRIVATE KEY":
		parsed, err := ssh.ParseRawPrivateKey(data)
		if err != nil {
			var missing *ssh.PassphraseMissingError
			if errors.As(err, &missing) {
				return nil, ErrKeyDecryption
			}
			return nil, fmt.Errorf("parse openssh key: %w", err)
		}
		return asPrivate(parsed)
	default:
		return nil, fmt.Errorf("%w: PEM block %q", ErrInvalidKeyFormat, block.Type)
	}
}

func asPrivate(key any) (ed25519.PrivateKey, error) {
	switch k := key.(type) {
	case ed25519.PrivateKey:
		return k, nil
	case *ed25519.PrivateKey:
		return *k, nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrUnsupportedKey, key)
	}
}

// ParsePublicKey decodes an Ed25519 public key from SPKI PEM, an OpenSSH
// authorized_keys line or raw 32 bytes.
func ParsePublicKey(data []byte) (ed25519.PublicKey, error) {
	if len(data) == ed25519.PublicKeySize {
		return ed25519.PublicKey(bytes.Clone(data)), nil
	}

	if block, _ := pem.Decode(data); block != nil {
		if block.Type != "PUBLIC KEY" {
			return nil, fmt.Errorf("%w: PEM block %q", ErrInvalidKeyFormat, block.Type)
		}
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse spki: %w", err)
		}
		pub, ok := parsed.(ed25519.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: got %T", ErrUnsupportedKey, parsed)
		}
		return pub, nil
	}

	sshKey, _, _, _, err := ssh.ParseAuthorizedKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFormat, err)
	}
	cryptoKey, ok := sshKey.(ssh.CryptoPublicKey)
	if !ok {
		return nil, ErrInvalidKeyFormat
	}
	pub, ok := cryptoKey.CryptoPublicKey().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrUnsupportedKey, cryptoKey.CryptoPublicKey())
	}
	return pub, nil
}

// EncodePrivateKeyPEM returns the PKCS#8 PEM encoding of key.
func EncodePrivateKeyPEM(key ed25519.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal pkcs8: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// EncodePublicKeyPEM returns the SPKI PEM encoding of key.
func EncodePublicKeyPEM(key ed25519.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal spki: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// Fingerprint returns the OpenSSH SHA256 fingerprint of key.
func Fingerprint(key ed25519.PublicKey) string {
	sshKey, err := ssh.NewPublicKey(key)
	if err != nil {
		return ""
	}
	return ssh.FingerprintSHA256(sshKey)
}
