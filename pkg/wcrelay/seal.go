package wcrelay

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"

	"flowwallet.io/wallet-link/pkg/errors"
)

// Payload sealing for relay envelopes: AES-256-CBC with PKCS#5 padding,
// authenticated by HMAC-SHA256 over ciphertext||iv.

func Aes256Encrypt(content, encryptionKey, iv []byte) ([]byte, error) {
	plaintext := pkcs5Padding(content, aes.BlockSize)
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, errors.Wrap(err, "create new cipher block")
	}
	ciphertext := make([]byte, len(plaintext))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, plaintext)
	return ciphertext, nil
}

func Aes256Decrypt(cipherText, encryptionKey, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, errors.Wrap(err, "create new cipher block")
	}
	if len(cipherText)%aes.BlockSize != 0 {
		return nil, errors.New("ciphertext is not block aligned")
	}
	plaintext := make([]byte, len(cipherText))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plaintext, cipherText)
	return pkcs5Unpadding(plaintext)
}

func pkcs5Padding(content []byte, blockSize int) []byte {
	padding := blockSize - len(content)%blockSize
	padText := bytes.Repeat([]byte{byte(padding)}, padding)
	return append(content, padText...)
}

func pkcs5Unpadding(content []byte) ([]byte, error) {
	if len(content) == 0 {
		return nil, errors.New("empty plaintext")
	}
	padding := int(content[len(content)-1])
	if padding == 0 || padding > len(content) {
		return nil, errors.New("malformed padding")
	}
	return content[:len(content)-padding], nil
}

func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func HmacSha256(data, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(data)
	return h.Sum(nil)
}

// VerifyHmacSha256 reports whether mac authenticates data under secret.
func VerifyHmacSha256(data, secret, mac []byte) bool {
	return hmac.Equal(HmacSha256(data, secret), mac)
}
