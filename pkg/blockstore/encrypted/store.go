// Package encrypted wraps a block store so that blocks are encrypted at rest.
//
// A stored block is laid out as:
//
//	formatVersion (uint16, little endian) || cipher output
//
// The format version and the block key are authenticated as additional data, so a
// block copied under another key fails to decrypt.
package encrypted

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/oneconcern/cryptfs/pkg/blockstore"
	"github.com/oneconcern/cryptfs/pkg/blockstore/status"
	"github.com/oneconcern/cryptfs/pkg/cipher"
	"go.uber.org/multierr"
)

const (
	formatVersion    uint16 = 1
	formatHeaderSize        = 2
)

// New wraps base. The store takes ownership of c and closes it on Close.
func New(base blockstore.BlockStore, c cipher.Cipher) blockstore.BlockStore {
	return &encryptedStore{base: base, cipher: c}
}

type encryptedStore struct {
	base   blockstore.BlockStore
	cipher cipher.Cipher
	close  sync.Once
}

func additionalData(key blockstore.Key) []byte {
	ad := make([]byte, formatHeaderSize+blockstore.KeySize)
	binary.LittleEndian.PutUint16(ad, formatVersion)
	copy(ad[formatHeaderSize:], key[:])
	return ad
}

func (e *encryptedStore) encrypt(key blockstore.Key, plaintext []byte) ([]byte, error) {
	sealed, err := e.cipher.Encrypt(plaintext, additionalData(key))
	if err != nil {
		return nil, err
	}
	out := make([]byte, formatHeaderSize+len(sealed))
	binary.LittleEndian.PutUint16(out, formatVersion)
	copy(out[formatHeaderSize:], sealed)
	return out, nil
}

func (e *encryptedStore) decrypt(key blockstore.Key, data []byte) ([]byte, error) {
	if len(data) < formatHeaderSize {
		return nil, status.ErrCorruptBlock.Wrapf("block %v is too short to hold a header", key)
	}
	if v := binary.LittleEndian.Uint16(data); v != formatVersion {
		return nil, status.ErrCorruptBlock.Wrapf("block %v has unsupported format version %d", key, v)
	}
	plaintext, err := e.cipher.Decrypt(data[formatHeaderSize:], additionalData(key))
	if err != nil {
		return nil, status.ErrDecryption.Wrapf("block %v: %v", key, err)
	}
	return plaintext, nil
}

func (e *encryptedStore) Exists(ctx context.Context, key blockstore.Key) (bool, error) {
	return e.base.Exists(ctx, key)
}

func (e *encryptedStore) Create(ctx context.Context, data []byte) (blockstore.Key, error) {
	return blockstore.CreateWithRandomKey(ctx, e, data)
}

func (e *encryptedStore) TryCreate(ctx context.Context, key blockstore.Key, data []byte) (bool, error) {
	encrypted, err := e.encrypt(key, data)
	if err != nil {
		return false, err
	}
	return e.base.TryCreate(ctx, key, encrypted)
}

func (e *encryptedStore) Store(ctx context.Context, key blockstore.Key, data []byte) error {
	encrypted, err := e.encrypt(key, data)
	if err != nil {
		return err
	}
	return e.base.Store(ctx, key, encrypted)
}

func (e *encryptedStore) Load(ctx context.Context, key blockstore.Key) ([]byte, bool, error) {
	data, found, err := e.base.Load(ctx, key)
	if err != nil || !found {
		return nil, found, err
	}
	plaintext, err := e.decrypt(key, data)
	if err != nil {
		return nil, false, err
	}
	return plaintext, true, nil
}

func (e *encryptedStore) Remove(ctx context.Context, key blockstore.Key) (bool, error) {
	return e.base.Remove(ctx, key)
}

func (e *encryptedStore) NumBlocks(ctx context.Context) (uint64, error) {
	return e.base.NumBlocks(ctx)
}

func (e *encryptedStore) BlockSizeFromPhysicalBlockSize(blockSize uint64) uint64 {
	base := e.base.BlockSizeFromPhysicalBlockSize(blockSize)
	overhead := uint64(formatHeaderSize + e.cipher.Overhead())
	if base <= overhead {
		return 0
	}
	return base - overhead
}

// Close wipes the key material, then closes the wrapped store
func (e *encryptedStore) Close() error {
	var err error
	e.close.Do(func() {
		err = multierr.Combine(e.cipher.Close(), e.base.Close())
	})
	return err
}

func (e *encryptedStore) String() string {
	return "encrypted[" + e.cipher.Name() + "](" + e.base.String() + ")"
}
