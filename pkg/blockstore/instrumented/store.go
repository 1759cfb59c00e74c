// Package instrumented decorates a block store with tracing spans and debug logs.
package instrumented

import (
	"context"
	"strings"

	"github.com/oneconcern/cryptfs/pkg/blockstore"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	otlog "github.com/opentracing/opentracing-go/log"
	"go.uber.org/zap"
)

// Instrument wraps a block store. Each call opens a span named "blockstore.<store>.<operation>".
func Instrument(tr opentracing.Tracer, l *zap.Logger, store blockstore.BlockStore) blockstore.BlockStore {
	if tr == nil {
		tr = opentracing.GlobalTracer()
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &instrumentedStore{
		tr:    tr,
		store: store,
		l:     l.With(zap.String("store", store.String())),
	}
}

type instrumentedStore struct {
	store blockstore.BlockStore
	tr    opentracing.Tracer
	l     *zap.Logger
}

func (i *instrumentedStore) opName(name string) string {
	return strings.Join([]string{"blockstore", i.String(), name}, ".")
}

func (i *instrumentedStore) spanFromContext(ctx context.Context, name string) opentracing.Span {
	parent := opentracing.SpanFromContext(ctx)
	var span opentracing.Span
	if parent != nil {
		span = i.tr.StartSpan(name, opentracing.ChildOf(parent.Context()))
	} else {
		span = i.tr.StartSpan(name)
	}
	return span
}

func finish(span opentracing.Span, err error) {
	if err != nil {
		ext.Error.Set(span, true)
		span.LogFields(otlog.Error(err))
	}
	span.Finish()
}

func (i *instrumentedStore) Exists(ctx context.Context, key blockstore.Key) (found bool, err error) {
	span := i.spanFromContext(ctx, i.opName("Exists"))
	defer func() { finish(span, err) }()
	i.l.Debug("blockstore exists", zap.Stringer("key", key))

	return i.store.Exists(ctx, key)
}

func (i *instrumentedStore) Create(ctx context.Context, data []byte) (key blockstore.Key, err error) {
	span := i.spanFromContext(ctx, i.opName("Create"))
	defer func() { finish(span, err) }()

	key, err = i.store.Create(ctx, data)
	i.l.Debug("blockstore create", zap.Stringer("key", key), zap.Int("size", len(data)))
	return key, err
}

func (i *instrumentedStore) TryCreate(ctx context.Context, key blockstore.Key, data []byte) (created bool, err error) {
	span := i.spanFromContext(ctx, i.opName("TryCreate"))
	defer func() { finish(span, err) }()
	i.l.Debug("blockstore try create", zap.Stringer("key", key), zap.Int("size", len(data)))

	return i.store.TryCreate(ctx, key, data)
}

func (i *instrumentedStore) Store(ctx context.Context, key blockstore.Key, data []byte) (err error) {
	span := i.spanFromContext(ctx, i.opName("Store"))
	defer func() { finish(span, err) }()
	i.l.Debug("blockstore store", zap.Stringer("key", key), zap.Int("size", len(data)))

	return i.store.Store(ctx, key, data)
}

func (i *instrumentedStore) Load(ctx context.Context, key blockstore.Key) (data []byte, found bool, err error) {
	span := i.spanFromContext(ctx, i.opName("Load"))
	defer func() { finish(span, err) }()
	i.l.Debug("blockstore load", zap.Stringer("key", key))

	return i.store.Load(ctx, key)
}

func (i *instrumentedStore) Remove(ctx context.Context, key blockstore.Key) (removed bool, err error) {
	span := i.spanFromContext(ctx, i.opName("Remove"))
	defer func() { finish(span, err) }()
	i.l.Debug("blockstore remove", zap.Stringer("key", key))

	return i.store.Remove(ctx, key)
}

func (i *instrumentedStore) NumBlocks(ctx context.Context) (n uint64, err error) {
	span := i.spanFromContext(ctx, i.opName("NumBlocks"))
	defer func() { finish(span, err) }()

	return i.store.NumBlocks(ctx)
}

func (i *instrumentedStore) BlockSizeFromPhysicalBlockSize(blockSize uint64) uint64 {
	return i.store.BlockSizeFromPhysicalBlockSize(blockSize)
}

func (i *instrumentedStore) Close() error {
	i.l.Debug("blockstore close")
	return i.store.Close()
}

func (i *instrumentedStore) String() string {
	return i.store.String()
}
