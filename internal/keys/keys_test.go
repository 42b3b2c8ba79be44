package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	return NewStore(root, filepath.Join(root, "data", "keys")), root
}

func genKey(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

func TestPEMRoundTrip(t *testing.T) {
	pub, priv := genKey(t)

	privPEM, err := EncodePrivateKeyPEM(priv)
	require.NoError(t, err)
	pubPEM, err := EncodePublicKeyPEM(pub)
	require.NoError(t, err)

	gotPriv, err := ParsePrivateKey(privPEM)
	require.NoError(t, err)
	assert.Equal(t, priv, gotPriv)

	gotPub, err := ParsePublicKey(pubPEM)
	require.NoError(t, err)
	assert.Equal(t, pub, gotPub)
}

func TestParseOpenSSHFormats(t *testing.T) {
	pub, priv := genKey(t)

	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	gotPub, err := ParsePublicKey(ssh.MarshalAuthorizedKey(sshPub))
	require.NoError(t, err)
	assert.Equal(t, pub, gotPub)

	block, err := ssh.MarshalPrivateKey(priv, "test")
	require.NoError(t, err)
	gotPriv, err := ParsePrivateKey(pem.EncodeToMemory(block))
	require.NoError(t, err)
	assert.Equal(t, priv, gotPriv)
}

func TestParseRawKeys(t *testing.T) {
	pub, priv := genKey(t)

	gotPub, err := ParsePublicKey([]byte(pub))
	require.NoError(t, err)
	assert.Equal(t, pub, gotPub)

	gotPriv, err := ParsePrivateKey(priv.Seed())
	require.NoError(t, err)
	assert.Equal(t, priv, gotPriv)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := ParsePublicKey([]byte("not a key"))
	assert.ErrorIs(t, err, ErrInvalidKeyFormat)

	_, err = ParsePrivateKey([]byte("not a key"))
	assert.ErrorIs(t, err, ErrInvalidKeyFormat)

	_, err = ParsePublicKey(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{1}}))
	assert.ErrorIs(t, err, ErrInvalidKeyFormat)
}

func TestSignVerify(t *testing.T) {
	pub, priv := genKey(t)
	msg := []byte(`{"root":"sha256:00"}`)

	sig := Sign(priv, msg)
	assert.True(t, Verify(pub, msg, sig))

	tampered := append([]byte(nil), msg...)
	tampered[3] ^= 0x01
	assert.False(t, Verify(pub, tampered, sig))

	other, _ := genKey(t)
	assert.False(t, Verify(other, msg, sig))
	assert.False(t, Verify(pub, msg, "not base64!"))
	assert.False(t, Verify(pub, msg, "c2hvcnQ="))
}

func TestEnsureKeypair(t *testing.T) {
	s, _ := newStore(t)

	created, err := s.EnsureKeypair()
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.EnsureKeypair()
	require.NoError(t, err)
	assert.False(t, created)

	info, err := os.Stat(s.PrivatePath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	priv, err := s.PrivateKey()
	require.NoError(t, err)
	pub, err := s.LocalPublicKey()
	require.NoError(t, err)
	assert.Equal(t, pub, priv.Public())
}

func TestRegistryBootstrap(t *testing.T) {
	s, _ := newStore(t)

	reg, err := s.Registry("A")
	require.NoError(t, err)
	assert.Equal(t, "A#ed25519-1", reg.Active)
	assert.Equal(t, Entry{Origin: "A", Alg: "ed25519", PubPath: "data/keys/ed25519.pub.pem"}, reg.Keys["A#ed25519-1"])

	// An existing registry is never rewritten for another origin.
	again, err := s.ActiveKeyID("B")
	require.NoError(t, err)
	assert.Equal(t, "A#ed25519-1", again)
}

func TestRegistryResolution(t *testing.T) {
	s, root := newStore(t)
	_, err := s.EnsureKeypair()
	require.NoError(t, err)
	_, err = s.Registry("A")
	require.NoError(t, err)

	local, err := s.LocalPublicKey()
	require.NoError(t, err)

	got, err := s.ResolverFor("A#ed25519-1").PublicKey("A#ed25519-1")
	require.NoError(t, err)
	assert.Equal(t, local, got)

	_, err = s.ResolverFor("nobody#1").PublicKey("nobody#1")
	assert.ErrorIs(t, err, ErrUnknownKey)

	// Peer key registered as an OpenSSH line.
	peerPub, _ := genKey(t)
	sshPub, err := ssh.NewPublicKey(peerPub)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "peers"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "peers", "b.pub"), ssh.MarshalAuthorizedKey(sshPub), 0o644))

	require.NoError(t, s.Add("B#ed25519-1", "B", "peers/b.pub", false))
	got, err = s.PublicKeyFor("B#ed25519-1")
	require.NoError(t, err)
	assert.Equal(t, peerPub, got)

	reg, err := s.Registry("A")
	require.NoError(t, err)
	assert.Equal(t, "A#ed25519-1", reg.Active)
	assert.Equal(t, []string{"A#ed25519-1", "B#ed25519-1"}, reg.IDs())
}

func TestAddActivateRequiresLocalKey(t *testing.T) {
	s, root := newStore(t)
	_, err := s.Registry("A")
	require.NoError(t, err)
	_, err = s.EnsureKeypair()
	require.NoError(t, err)

	peerPub, _ := genKey(t)
	pubPEM, err := EncodePublicKeyPEM(peerPub)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.pem"), pubPEM, 0o644))

	err = s.Add("B#ed25519-1", "B", "b.pem", true)
	assert.ErrorIs(t, err, ErrKeyMismatch)

	reg, err := s.Registry("A")
	require.NoError(t, err)
	assert.Equal(t, "A#ed25519-1", reg.Active)
	assert.NotContains(t, reg.Keys, "B#ed25519-1")

	// A rotated id for the same local key pair can be activated.
	localPEM, err := os.ReadFile(s.PublicPath())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a2.pem"), localPEM, 0o644))
	require.NoError(t, s.Add("A#ed25519-2", "A", "a2.pem", true))

	active, err := s.ActiveKeyID("A")
	require.NoError(t, err)
	assert.Equal(t, "A#ed25519-2", active)
}

func TestAddRejectsMissingKeyFile(t *testing.T) {
	s, _ := newStore(t)
	err := s.Add("B#1", "B", "nope.pub", false)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLegacyResolverUsesLocalKey(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.EnsureKeypair()
	require.NoError(t, err)

	r := s.ResolverFor("")
	require.IsType(t, LegacyLocalKey{}, r)

	got, err := r.PublicKey("")
	require.NoError(t, err)
	local, err := s.LocalPublicKey()
	require.NoError(t, err)
	assert.Equal(t, local, got)
}

func TestFingerprint(t *testing.T) {
	pub, _ := genKey(t)
	assert.Regexp(t, `^SHA256:[A-Za-z0-9+/]{43}$`, Fingerprint(pub))
}
