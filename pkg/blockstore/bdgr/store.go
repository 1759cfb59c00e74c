// Package bdgr stores blocks in an embedded badger database.
package bdgr

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/oneconcern/cryptfs/pkg/blockstore"
	"github.com/oneconcern/cryptfs/pkg/blockstore/status"
)

const maxConflictRetries = 5

var blockPref = [6]byte{'b', 'l', 'o', 'c', 'k', ':'}

// Open a badger backed block store located in directory dir
func Open(dir string) (blockstore.BlockStore, error) {
	return open(dir, badger.DefaultOptions(dir).WithLogger(nil))
}

// OpenInMemory opens a block store which is not persisted
func OpenInMemory() (blockstore.BlockStore, error) {
	return open("memory", badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func open(name string, opts badger.Options) (blockstore.BlockStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger store at %q: %w", name, err)
	}
	return &badgerStore{name: name, db: db}, nil
}

type badgerStore struct {
	name  string
	db    *badger.DB
	close sync.Once
}

func blockKey(key blockstore.Key) []byte {
	return append(blockPref[:], key[:]...)
}

func badgerRewriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrDBClosed):
		return status.ErrClosed.Wrap(err)
	case errors.Is(err, badger.ErrTxnTooBig), errors.Is(err, badger.ErrValueLogSize):
		return status.ErrBlockTooLarge.Wrap(err)
	default:
		return err
	}
}

// update runs fn in a read-write transaction, retrying on conflicts with concurrent transactions
func (b *badgerStore) update(fn func(*badger.Txn) error) error {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		err = b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return badgerRewriteError(err)
		}
	}
	return badgerRewriteError(err)
}

func (b *badgerStore) Exists(_ context.Context, key blockstore.Key) (bool, error) {
	var found bool
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(blockKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, badgerRewriteError(err)
}

func (b *badgerStore) Create(ctx context.Context, data []byte) (blockstore.Key, error) {
	return blockstore.CreateWithRandomKey(ctx, b, data)
}

func (b *badgerStore) TryCreate(_ context.Context, key blockstore.Key, data []byte) (bool, error) {
	var created bool
	err := b.update(func(txn *badger.Txn) error {
		created = false
		bk := blockKey(key)
		_, err := txn.Get(bk)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err = txn.Set(bk, data); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (b *badgerStore) Store(_ context.Context, key blockstore.Key, data []byte) error {
	return b.update(func(txn *badger.Txn) error {
		return txn.Set(blockKey(key), data)
	})
}

func (b *badgerStore) Load(_ context.Context, key blockstore.Key) ([]byte, bool, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKey(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, badgerRewriteError(err)
	}
	return data, true, nil
}

func (b *badgerStore) Remove(_ context.Context, key blockstore.Key) (bool, error) {
	var removed bool
	err := b.update(func(txn *badger.Txn) error {
		removed = false
		bk := blockKey(key)
		if _, err := txn.Get(bk); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		if err := txn.Delete(bk); err != nil {
			return err
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

func (b *badgerStore) NumBlocks(_ context.Context) (uint64, error) {
	var count uint64
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = blockPref[:]
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	})
	return count, badgerRewriteError(err)
}

func (b *badgerStore) BlockSizeFromPhysicalBlockSize(blockSize uint64) uint64 {
	return blockSize
}

func (b *badgerStore) Close() error {
	var err error
	b.close.Do(func() {
		err = b.db.Close()
	})
	return err
}

func (b *badgerStore) String() string {
	return "badger@" + b.name
}
