package crypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusdb/guardian/pkg/types"
)

func TestNewSecretsManager(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{name: "valid 32-byte key", key: make([]byte, 32)},
		{name: "invalid short key", key: make([]byte, 16), wantErr: true},
		{name: "invalid long key", key: make([]byte, 64), wantErr: true},
		{name: "empty key", key: []byte{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm, err := NewSecretsManager(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, sm)
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := DeriveKey("correct-horse-battery-staple", []byte("per-deployment-salt"))
	sm, err := NewSecretsManager(key)
	require.NoError(t, err)

	plaintext := []byte("pg_dump output goes here, pretend this is large")
	ciphertext, err := sm.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	got, err := sm.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	sm, err := NewSecretsManager(DeriveKey("pw", []byte("salt")))
	require.NoError(t, err)

	ciphertext, err := sm.Encrypt([]byte("sensitive"))
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = sm.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestDeriveKeyIsDeterministicPerSalt(t *testing.T) {
	k1 := DeriveKey("pw", []byte("salt-a"))
	k2 := DeriveKey("pw", []byte("salt-a"))
	k3 := DeriveKey("pw", []byte("salt-b"))

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Len(t, k1, 32)
}

func TestChecksumReaderHasSha256Prefix(t *testing.T) {
	sum, err := ChecksumReader(strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sum, "sha256:"))
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	for _, algo := range []types.CompressionAlgo{
		types.CompressionNone,
		types.CompressionGzip,
		types.CompressionLZ4,
		types.CompressionZstd,
	} {
		t.Run(string(algo), func(t *testing.T) {
			src := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog\n", 100))

			var compressed bytes.Buffer
			require.NoError(t, Compress(algo, &compressed, bytes.NewReader(src)))

			var out bytes.Buffer
			require.NoError(t, Decompress(algo, &out, bytes.NewReader(compressed.Bytes())))

			assert.Equal(t, src, out.Bytes())
		})
	}
}
