// Package cipher provides authenticated symmetric ciphers to encrypt blocks.
//
// Ciphertexts are laid out as nonce || sealed data || tag: a fresh random nonce
// is drawn for every encryption.
package cipher

import (
	"crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/rand"
	"io"
	"sort"

	"github.com/oneconcern/cryptfs/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// AES256GCM is AES with a 256 bits key in GCM mode
	AES256GCM = "aes-256-gcm"

	// AES128GCM is AES with a 128 bits key in GCM mode
	AES128GCM = "aes-128-gcm"

	// XChaCha20Poly1305 is ChaCha20 with an extended nonce and a Poly1305 authenticator
	XChaCha20Poly1305 = "xchacha20-poly1305"

	// Default cipher for new file systems
	Default = AES256GCM
)

var (
	// ErrUnknownCipher is returned for unsupported cipher names
	ErrUnknownCipher = errors.New("unknown cipher")

	// ErrKeySize is returned when the key doesn't match the size expected by a cipher
	ErrKeySize = errors.New("invalid key size for cipher")

	// ErrDecrypt is returned when a ciphertext cannot be authenticated
	ErrDecrypt = errors.New("decryption failed")

	// ErrRandomSource is returned when a generator cannot produce key material or nonces
	ErrRandomSource = errors.New("random source failed")

	// ErrCipherInit is returned when the underlying AEAD cannot be built
	ErrCipherInit = errors.New("cannot build cipher")
)

// Cipher encrypts and authenticates data
type Cipher interface {
	Name() string
	KeySize() int

	// Overhead is the number of bytes added by encryption
	Overhead() int

	// Encrypt seals plaintext. additionalData is authenticated but not encrypted.
	Encrypt(plaintext, additionalData []byte) ([]byte, error)

	// Decrypt opens a ciphertext produced by Encrypt with the same additionalData
	Decrypt(ciphertext, additionalData []byte) ([]byte, error)

	// Close wipes the key material
	Close() error
}

type spec struct {
	keySize int
	build   func(key []byte) (stdcipher.AEAD, error)
}

func newGCM(key []byte) (stdcipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return stdcipher.NewGCM(block)
}

var registry = map[string]spec{
	AES256GCM:         {keySize: 32, build: newGCM},
	AES128GCM:         {keySize: 16, build: newGCM},
	XChaCha20Poly1305: {keySize: chacha20poly1305.KeySize, build: chacha20poly1305.NewX},
}

// Names lists the supported ciphers
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// KeySize returns the key size expected by a cipher
func KeySize(name string) (int, error) {
	s, ok := registry[name]
	if !ok {
		return 0, ErrUnknownCipher.Wrapf("%q", name)
	}
	return s.keySize, nil
}

// New builds a cipher. The cipher takes a copy of the key material.
func New(name string, key EncryptionKey) (Cipher, error) {
	s, ok := registry[name]
	if !ok {
		return nil, ErrUnknownCipher.Wrapf("%q", name)
	}
	if key.Len() != s.keySize {
		return nil, ErrKeySize.Wrapf("%s expects %d bytes, got %d", name, s.keySize, key.Len())
	}
	owned := NewEncryptionKey(key.Bytes())
	aead, err := s.build(owned.Bytes())
	if err != nil {
		owned.Zero()
		return nil, ErrCipherInit.Wrapf("%s: %v", name, err)
	}
	return &aeadCipher{name: name, key: owned, aead: aead}, nil
}

type aeadCipher struct {
	name string
	key  EncryptionKey
	aead stdcipher.AEAD
}

func (c *aeadCipher) Name() string { return c.name }

func (c *aeadCipher) KeySize() int { return c.key.Len() }

func (c *aeadCipher) Overhead() int {
	return c.aead.NonceSize() + c.aead.Overhead()
}

func (c *aeadCipher) Encrypt(plaintext, additionalData []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	out := make([]byte, nonceSize, nonceSize+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		return nil, ErrRandomSource.Wrap(err)
	}
	return c.aead.Seal(out, out[:nonceSize], plaintext, additionalData), nil
}

func (c *aeadCipher) Decrypt(ciphertext, additionalData []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize+c.aead.Overhead() {
		return nil, ErrDecrypt.Wrapf("ciphertext too short: %d bytes", len(ciphertext))
	}
	plaintext, err := c.aead.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], additionalData)
	if err != nil {
		return nil, ErrDecrypt.Wrap(err)
	}
	return plaintext, nil
}

func (c *aeadCipher) Close() error {
	// the expanded key schedule held by aead cannot be reached; the raw key can
	c.key.Zero()
	return nil
}
