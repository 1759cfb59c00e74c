package cipher

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	mrand "math/rand"
	"sync"

	"github.com/oneconcern/cryptfs/pkg/errors"
)

// ErrKeyDecode is returned when the string form of a key is malformed
var ErrKeyDecode = errors.New("malformed encryption key")

// EncryptionKey holds secret key material.
//
// The zero value is an empty key. Call Zero to wipe the material once it is no longer used.
type EncryptionKey struct {
	data []byte
}

// NewEncryptionKey copies some key material
func NewEncryptionKey(data []byte) EncryptionKey {
	k := EncryptionKey{data: make([]byte, len(data))}
	copy(k.data, data)
	return k
}

// KeyFromString decodes the hex form of a key
func KeyFromString(s string) (EncryptionKey, error) {
	if s == "" {
		return EncryptionKey{}, ErrKeyDecode.Wrapf("empty key")
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return EncryptionKey{}, ErrKeyDecode.Wrap(err)
	}
	return EncryptionKey{data: data}, nil
}

// String returns the hex form of the key
func (k EncryptionKey) String() string {
	return hex.EncodeToString(k.data)
}

// Len is the size of the key in bytes
func (k EncryptionKey) Len() int {
	return len(k.data)
}

// Bytes exposes the key material, without copying it
func (k EncryptionKey) Bytes() []byte {
	return k.data
}

// Equal compares the key material of two keys
func (k EncryptionKey) Equal(other EncryptionKey) bool {
	if len(k.data) != len(other.data) {
		return false
	}
	var diff byte
	for i := range k.data {
		diff |= k.data[i] ^ other.data[i]
	}
	return diff == 0
}

// Zero wipes the key material
func (k EncryptionKey) Zero() {
	for i := range k.data {
		k.data[i] = 0
	}
}

// Generator produces random key material
type Generator interface {
	io.Reader
}

// OSRandom is the cryptographically secure generator from the operating system
var OSRandom Generator = rand.Reader

type pseudoRandom struct {
	mx  sync.Mutex
	rnd *mrand.Rand
}

// NewPseudoRandom builds a deterministic generator: the same seed yields the same sequence of keys.
//
// It is not suitable for production keys.
func NewPseudoRandom(seed int64) Generator {
	return &pseudoRandom{rnd: mrand.New(mrand.NewSource(seed))} //nolint:gosec
}

func (p *pseudoRandom) Read(b []byte) (int, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.rnd.Read(b)
}

// weak is the process-wide pseudo-random generator used by CreatePseudoRandomKey
var weak = NewPseudoRandom(1)

// CreateKey draws a key of the given size from a generator
func CreateKey(gen Generator, size int) (EncryptionKey, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(gen, data); err != nil {
		return EncryptionKey{}, ErrRandomSource.Wrap(err)
	}
	return EncryptionKey{data: data}, nil
}

// CreateOSRandomKey generates a cryptographically secure key
func CreateOSRandomKey(size int) (EncryptionKey, error) {
	return CreateKey(OSRandom, size)
}

// CreatePseudoRandomKey generates a weak key, from a deterministic process-wide sequence.
func CreatePseudoRandomKey(size int) EncryptionKey {
	k, _ := CreateKey(weak, size) // math/rand never fails
	return k
}
