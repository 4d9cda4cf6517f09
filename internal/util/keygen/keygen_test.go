package keygen

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func TestGenerateRSAKeyPair_InvalidBits(t *testing.T) {
	t.Parallel()

	for _, bits := range []int{0, -1} {
		_, err := GenerateRSAKeyPair(bits)
		assert.Error(t, err, "bits=%d", bits)
	}
}

func TestGenerateRSAKeyPair_Formats(t *testing.T) {
	t.Parallel()

	keyPair, err := GenerateRSAKeyPair(2048)
	require.NoError(t, err)

	block, _ := pem.Decode(keyPair.PrivateKey)
	require.NotNil(t, block)
	assert.Equal(t, "RSA PRIVATE KEY", block.Type)

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	require.NoError(t, err)

	parsed, _, _, _, err := ssh.ParseAuthorizedKey(keyPair.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, "ssh-rsa", parsed.Type())

	expected, err := ssh.NewPublicKey(&privateKey.PublicKey)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(parsed.Marshal(), expected.Marshal()), "public key must match private key")

	_, err = ssh.ParsePrivateKey(keyPair.PrivateKey)
	assert.NoError(t, err, "private key must be usable as an SSH signer")
}

func TestGenerateRSAKeyPair_Uniqueness(t *testing.T) {
	t.Parallel()

	a, err := GenerateRSAKeyPair(2048)
	require.NoError(t, err)
	b, err := GenerateRSAKeyPair(2048)
	require.NoError(t, err)

	assert.NotEqual(t, a.PrivateKey, b.PrivateKey)
	assert.NotEqual(t, a.PublicKey, b.PublicKey)
}

func TestKeyPair_WriteFiles(t *testing.T) {
	t.Parallel()

	keyPair, err := GenerateRSAKeyPair(2048)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ssh", "stackfleet_rsa")
	require.NoError(t, keyPair.WriteFiles(path))

	priv, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, keyPair.PrivateKey, priv)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	pub, err := os.ReadFile(path + ".pub")
	require.NoError(t, err)
	assert.Equal(t, keyPair.PublicKey, pub)

	err = keyPair.WriteFiles(path)
	assert.ErrorIs(t, err, ErrKeyExists)
}
