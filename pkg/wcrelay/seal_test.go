package wcrelay

import (
	"crypto/aes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAes256RoundTrip(t *testing.T) {
	key, err := GenerateRandomBytes(32)
	require.NoError(t, err)
	iv, err := GenerateRandomBytes(aes.BlockSize)
	require.NoError(t, err)

	plaintext := []byte(`{"id":1,"jsonrpc":"2.0","method":"wc_sessionRequest"}`)
	ciphertext, err := Aes256Encrypt(plaintext, key, iv)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)
	assert.Zero(t, len(ciphertext)%aes.BlockSize)

	decrypted, err := Aes256Decrypt(ciphertext, key, iv)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestAes256RoundTripBlockAlignedInput(t *testing.T) {
	key, err := GenerateRandomBytes(32)
	require.NoError(t, err)
	iv, err := GenerateRandomBytes(aes.BlockSize)
	require.NoError(t, err)

	// Exactly one block; padding must still strip cleanly.
	plaintext := []byte("0123456789abcdef")
	ciphertext, err := Aes256Encrypt(plaintext, key, iv)
	require.NoError(t, err)
	require.Len(t, ciphertext, 2*aes.BlockSize)

	decrypted, err := Aes256Decrypt(ciphertext, key, iv)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestAes256DecryptRejectsUnalignedCiphertext(t *testing.T) {
	key, err := GenerateRandomBytes(32)
	require.NoError(t, err)
	iv, err := GenerateRandomBytes(aes.BlockSize)
	require.NoError(t, err)

	_, err = Aes256Decrypt([]byte("short"), key, iv)
	assert.Error(t, err)
}

func TestAes256EncryptRejectsBadKeySize(t *testing.T) {
	iv, err := GenerateRandomBytes(aes.BlockSize)
	require.NoError(t, err)

	_, err = Aes256Encrypt([]byte("payload"), []byte("too short"), iv)
	assert.Error(t, err)
}

func TestHmacSha256Verify(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	data := []byte("ciphertext||iv")

	mac := HmacSha256(data, secret)
	assert.True(t, VerifyHmacSha256(data, secret, mac))
	assert.False(t, VerifyHmacSha256([]byte("tampered"), secret, mac))
	assert.False(t, VerifyHmacSha256(data, []byte("other secret key other secret ke"), mac))
}

func TestGenerateRandomBytes(t *testing.T) {
	first, err := GenerateRandomBytes(32)
	require.NoError(t, err)
	second, err := GenerateRandomBytes(32)
	require.NoError(t, err)
	require.Len(t, first, 32)
	assert.NotEqual(t, first, second)
}
