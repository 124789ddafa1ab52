// Package cryptoutil implements the Fernet-equivalent field encryption
// used by the storage layer: AES-128-CBC for confidentiality, an
// HMAC-SHA256 tag over version, timestamp, IV and ciphertext for
// integrity, and a random IV per message. This keeps symmetric crypto on
// the standard library, in the style of the retrieval pack's own
// hand-rolled AES helpers rather than pulling in an external crypto
// framework for a single, precisely specified scheme.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

const (
	fernetVersion  byte = 0x80
	macSize             = sha256.Size
	ivSize              = aes.BlockSize // 16
)

// ErrInvalidToken is returned when a ciphertext fails the MAC check or is
// otherwise structurally invalid.
var ErrInvalidToken = errors.New("cryptoutil: invalid or tampered token")

// Key is a 32-byte Fernet-style key: the first 16 bytes sign (HMAC), the
// last 16 bytes encrypt (AES-128).
type Key struct {
	signingKey    [16]byte
	encryptionKey [16]byte
}

// LoadOrCreateKey reads a base64-encoded 32-byte key from path, creating
// a fresh random one on first use.
func LoadOrCreateKey(path string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "cryptoutil: read key file %s", path)
		}
		return generateKey(path)
	}

	raw := make([]byte, 32)
	n, err := base64.RawURLEncoding.Decode(raw, data)
	if err != nil || n != 32 {
		return nil, errors.Wrapf(ErrInvalidToken, "cryptoutil: key file %s is not a valid 32-byte key", path)
	}
	return keyFromBytes(raw), nil
}

func generateKey(path string) (*Key, error) {
	raw := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return nil, errors.Wrap(err, "cryptoutil: generate key")
	}

	encoded := base64.RawURLEncoding.EncodeToString(raw)
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return nil, errors.Wrapf(err, "cryptoutil: write key file %s", path)
	}
	return keyFromBytes(raw), nil
}

// BlindIndex derives a deterministic, keyed lookup value for data: the
// same signing key always produces the same index for the same input,
// letting the storage layer find an encrypted column (whose ciphertext
// is never deterministic) by an equality query without decrypting every
// row.
func (k *Key) BlindIndex(data []byte) string {
	mac := hmac.New(sha256.New, k.signingKey[:])
	mac.Write(data)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func keyFromBytes(raw []byte) *Key {
	k := &Key{}
	copy(k.signingKey[:], raw[:16])
	copy(k.encryptionKey[:], raw[16:])
	return k
}

// Encrypt produces a Fernet-style token: version(1) || timestamp(8) ||
// iv(16) || ciphertext || hmac(32), base64-encoded. The timestamp and
// random IV mean the same plaintext never encrypts to the same token
// twice.
func (k *Key) Encrypt(plaintext []byte, timestamp int64) (string, error) {
	block, err := aes.NewCipher(k.encryptionKey[:])
	if err != nil {
		return "", errors.Wrap(err, "cryptoutil: new cipher")
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", errors.Wrap(err, "cryptoutil: generate iv")
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	body := make([]byte, 0, 1+8+ivSize+len(ciphertext))
	body = append(body, fernetVersion)
	body = binary.BigEndian.AppendUint64(body, uint64(timestamp))
	body = append(body, iv...)
	body = append(body, ciphertext...)

	mac := hmac.New(sha256.New, k.signingKey[:])
	mac.Write(body)
	body = mac.Sum(body)

	return base64.RawURLEncoding.EncodeToString(body), nil
}

// Decrypt verifies and decrypts a token produced by Encrypt.
func (k *Key) Decrypt(token string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if len(raw) < 1+8+ivSize+macSize {
		return nil, errors.Wrap(ErrInvalidToken, "token too short")
	}

	body, tag := raw[:len(raw)-macSize], raw[len(raw)-macSize:]

	mac := hmac.New(sha256.New, k.signingKey[:])
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), tag) {
		return nil, ErrInvalidToken
	}

	if body[0] != fernetVersion {
		return nil, errors.Wrap(ErrInvalidToken, "unsupported token version")
	}

	iv := body[9 : 9+ivSize]
	ciphertext := body[9+ivSize:]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.Wrap(ErrInvalidToken, "malformed ciphertext length")
	}

	block, err := aes.NewCipher(k.encryptionKey[:])
	if err != nil {
		return nil, errors.Wrap(err, "cryptoutil: new cipher")
	}

	plainPadded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plainPadded, ciphertext)

	return pkcs7Unpad(plainPadded)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrInvalidToken, "empty plaintext")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, errors.Wrap(ErrInvalidToken, "invalid padding")
	}
	return data[:len(data)-padLen], nil
}
