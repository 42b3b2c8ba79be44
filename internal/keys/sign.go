package keys

import (
	"crypto/ed25519"
	"encoding/base64"
)

// Algorithm is the signature descriptor recorded in manifests and registry
// entries.
const Algorithm = "ed25519"

// Sign returns the base64 Ed25519 signature of message.
func Sign(key ed25519.PrivateKey, message []byte) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(key, message))
}

// Verify checks a base64 signature. Undecodable or wrongly sized signatures
// are reported as invalid, not as errors.
func Verify(key ed25519.PublicKey, message []byte, signature string) bool {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	if len(key) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(key, message, sig)
}
