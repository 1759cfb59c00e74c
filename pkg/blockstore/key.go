// Copyright © 2018 One Concern

package blockstore

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

const (
	// KeySize is the size in bytes of a block key
	KeySize = 16

	// KeySizeHex is the length of the hex representation of a key
	KeySizeHex = 2 * KeySize
)

// Key identifies a block. Keys are random: they are produced by the store
// on creation, never derived from the content of a block.
type Key [KeySize]byte

// NewRandomKey returns a fresh random key
func NewRandomKey() Key {
	return Key(uuid.New())
}

// NewKey creates a new key from raw bytes
func NewKey(data []byte) (Key, error) {
	var k Key
	if len(data) != KeySize {
		return Key{}, &BadKeySize{Key: data}
	}
	copy(k[:], data)
	return k, nil
}

// MustNewKey creates a new key from data but panics if there is an error
func MustNewKey(data []byte) Key {
	k, e := NewKey(data)
	if e != nil {
		panic(e.Error())
	}
	return k
}

// KeyFromString decodes the hex representation of a key
func KeyFromString(s string) (Key, error) {
	if len(s) != KeySizeHex {
		return Key{}, &BadKeySize{Key: []byte(s), Hex: true}
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return Key{}, &BadKeyString{Key: s, Err: err}
	}
	return NewKey(data)
}

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// IsZero tells if the key is the zero value
func (k Key) IsZero() bool {
	return k == Key{}
}

// BadKeySize is an error that's returned when the key to create has an invalid size.
type BadKeySize struct {
	Key []byte
	Hex bool
}

func (b *BadKeySize) Error() string {
	if b.Hex {
		return fmt.Sprintf("%q has invalid length of %d, expected %d hex digits", b.Key, len(b.Key), KeySizeHex)
	}
	return fmt.Sprintf("%x has invalid size of %d, expected %d", b.Key, len(b.Key), KeySize)
}

// BadKeyString is an error that's returned when a key string is not valid hex
type BadKeyString struct {
	Key string
	Err error
}

func (b *BadKeyString) Error() string {
	return fmt.Sprintf("%q is not a valid block key: %v", b.Key, b.Err)
}

func (b *BadKeyString) Unwrap() error {
	return b.Err
}
