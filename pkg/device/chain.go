package device

import (
	"github.com/oneconcern/cryptfs/pkg/blobstore"
	"github.com/oneconcern/cryptfs/pkg/blobstore/onblocks"
	"github.com/oneconcern/cryptfs/pkg/blockstore"
	"github.com/oneconcern/cryptfs/pkg/blockstore/caching"
	"github.com/oneconcern/cryptfs/pkg/blockstore/encrypted"
	"github.com/oneconcern/cryptfs/pkg/cipher"
	"github.com/oneconcern/cryptfs/pkg/config"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// BuildBlobStore composes the storage chain over a raw block store:
//
//	raw -> cache -> encryption -> blobs on blocks
//
// The encryption key is decoded from the configuration and only kept by the encryption layer.
// The returned blob store owns base: closing it closes base. On failure, base is closed.
func BuildBlobStore(cfg *config.Config, base blockstore.BlockStore, opts ...Option) (blobstore.BlobStore, error) {
	o := defaultOptions()
	for _, apply := range opts {
		apply(&o)
	}
	return buildBlobStore(cfg, base, o)
}

func buildBlobStore(cfg *config.Config, base blockstore.BlockStore, o options) (blobstore.BlobStore, error) {
	key, err := cipher.KeyFromString(cfg.EncryptionKey)
	if err != nil {
		_ = base.Close()
		return nil, ErrDecode.Wrap(err)
	}
	c, err := cipher.New(cfg.Cipher, key)
	key.Zero()
	if err != nil {
		_ = base.Close()
		return nil, ErrDecode.Wrap(err)
	}

	blockSize := cfg.BlockSize()
	cacheOpts := []caching.Option{
		caching.CacheSize(o.cacheSize),
		caching.BlockSize(int(blockSize)),
		caching.Logger(o.l),
	}
	if o.reg != nil {
		cacheOpts = append(cacheOpts, caching.WithMetrics(o.reg))
	}
	cached, err := caching.New(base, cacheOpts...)
	if err != nil {
		_ = multierr.Combine(c.Close(), base.Close())
		return nil, err
	}

	secure := encrypted.New(cached, c)

	blobs, err := onblocks.New(secure, onblocks.BlockSize(blockSize), onblocks.Logger(o.l))
	if err != nil {
		_ = secure.Close()
		return nil, err
	}
	o.l.Debug("storage chain ready", zap.Stringer("blobs", blobs))
	return blobs, nil
}
