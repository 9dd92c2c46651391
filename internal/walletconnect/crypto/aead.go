package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"moff.io/walletconnect/internal/walletconnect/protocol"
	"moff.io/walletconnect/pkg/errors"
)

// AES-256-CBC with PKCS#7 padding, authenticated by HMAC-SHA256 under the same key.
// https://docs.walletconnect.com/tech-spec#cryptography
const ivSize = aes.BlockSize

var (
	ErrAuthenticationFailed = errors.New("unable to verify integrity of payload")
	ErrInvalidPadding       = errors.New("invalid padding")
)

// The MAC input is ciphertext then IV, as in the bridge vector checked by
// TestOpenKnownVector.
func hmacSha256(key, iv, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	h.Write(iv)
	return h.Sum(nil)
}

func generateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, errors.WrapAndReport(err, "read random bytes")
	}
	return b, nil
}

func seal(key, plaintext []byte) (*protocol.EncryptionPayload, error) {
	iv, err := generateRandomBytes(ivSize)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(ErrWrongLength, err.Error())
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	data := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(data, padded)
	return &protocol.EncryptionPayload{
		Data: data,
		HMAC: hmacSha256(key, iv, data),
		IV:   iv,
	}, nil
}

// open verifies the HMAC before touching the ciphertext.
func open(key []byte, payload *protocol.EncryptionPayload) ([]byte, error) {
	if payload == nil {
		return nil, errors.Wrap(ErrAuthenticationFailed, "empty payload")
	}
	expected := hmacSha256(key, payload.IV, payload.Data)
	if !hmac.Equal(expected, payload.HMAC) {
		return nil, errors.WithStack(ErrAuthenticationFailed)
	}
	if len(payload.IV) != ivSize {
		return nil, errors.Wrapf(ErrWrongLength, "iv of %d bytes", len(payload.IV))
	}
	if len(payload.Data) == 0 || len(payload.Data)%aes.BlockSize != 0 {
		return nil, errors.Wrapf(ErrInvalidPadding, "ciphertext of %d bytes", len(payload.Data))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(ErrWrongLength, err.Error())
	}
	plaintext := make([]byte, len(payload.Data))
	cipher.NewCBCDecrypter(block, payload.IV).CryptBlocks(plaintext, payload.Data)
	return pkcs7Unpad(plaintext, aes.BlockSize)
}

func pkcs7Pad(src []byte, blockSize int) []byte {
	padding := blockSize - len(src)%blockSize
	out := make([]byte, len(src), len(src)+padding)
	copy(out, src)
	return append(out, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(src []byte, blockSize int) ([]byte, error) {
	n := len(src)
	if n == 0 || n%blockSize != 0 {
		return nil, errors.WithStack(ErrInvalidPadding)
	}
	padding := int(src[n-1])
	if padding == 0 || padding > blockSize {
		return nil, errors.WithStack(ErrInvalidPadding)
	}
	for _, b := range src[n-padding:] {
		if int(b) != padding {
			return nil, errors.WithStack(ErrInvalidPadding)
		}
	}
	return src[:n-padding], nil
}
