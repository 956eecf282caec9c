// Package cipher encrypts link payloads with the passphrase shared between the
// front desk and the doctor application.
//
// Ciphertexts use the OpenSSL "Salted__" envelope (EVP_BytesToKey with MD5,
// AES-256-CBC, PKCS#7 padding, base64), which is what the doctor app's
// crypto library reads and writes for passphrase-keyed AES.
package cipher

import (
	"bytes"
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/md5" // #nosec G501 -- EVP_BytesToKey is defined over MD5 for this envelope
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Cipher encrypts and decrypts UTF-8 payloads.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

var (
	ErrEmptyKey   = errors.New("cipher: empty shared key")
	ErrMalformed  = errors.New("cipher: malformed ciphertext")
	ErrBadPadding = errors.New("cipher: bad padding")
)

const (
	saltMagic = "Salted__"
	saltLen   = 8
	keyLen    = 32
)

// AES is the passphrase-keyed AES cipher.
type AES struct {
	passphrase []byte
	rand       io.Reader
}

// NewAES creates a cipher for the given shared passphrase.
func NewAES(passphrase string) (*AES, error) {
	if passphrase == "" {
		return nil, ErrEmptyKey
	}
	return &AES{passphrase: []byte(passphrase), rand: rand.Reader}, nil
}

// Encrypt returns the base64 OpenSSL envelope of plaintext. Each call uses a fresh salt.
func (c *AES) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(c.rand, salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	key, iv := deriveKey(c.passphrase, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("new aes cipher: %w", err)
	}
	padded := pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(saltMagic)+saltLen+len(padded))
	copy(out, saltMagic)
	copy(out[len(saltMagic):], salt)
	gocipher.NewCBCEncrypter(block, iv).CryptBlocks(out[len(saltMagic)+saltLen:], padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Wrong keys almost always surface as ErrBadPadding.
func (c *AES) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	header := len(saltMagic) + saltLen
	if len(raw) < header+aes.BlockSize || !bytes.HasPrefix(raw, []byte(saltMagic)) {
		return "", ErrMalformed
	}
	body := raw[header:]
	if len(body)%aes.BlockSize != 0 {
		return "", ErrMalformed
	}
	key, iv := deriveKey(c.passphrase, raw[len(saltMagic):header])

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("new aes cipher: %w", err)
	}
	plain := make([]byte, len(body))
	gocipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)

	plain, err = unpad(plain, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// deriveKey implements OpenSSL's EVP_BytesToKey with MD5 and one iteration.
func deriveKey(passphrase, salt []byte) (key, iv []byte) {
	var derived, prev []byte
	for len(derived) < keyLen+aes.BlockSize {
		h := md5.New() // #nosec G401
		h.Write(prev)
		h.Write(passphrase)
		h.Write(salt)
		prev = h.Sum(nil)
		derived = append(derived, prev...)
	}
	return derived[:keyLen], derived[keyLen : keyLen+aes.BlockSize]
}

func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, ErrBadPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size {
		return nil, ErrBadPadding
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, ErrBadPadding
		}
	}
	return b[:len(b)-n], nil
}
