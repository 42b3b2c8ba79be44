// Package keys manages the replica's Ed25519 signing key and the registry
// of public keys used to verify sealed segments.
//
// Layout under the keys directory:
//
//	ed25519.priv.pem   PKCS#8 private key of this replica
//	ed25519.pub.pem    SPKI public key of this replica
//	registry.json      {active, keys: {keyId: {origin, alg, pubPath}}}
//
// Registry pubPath values are resolved against the replica root, so a
// registry can point at peer keys copied anywhere in the working tree.
// Public key files may be PEM (SPKI), OpenSSH authorized_keys lines, or raw
// 32-byte keys.
package keys
