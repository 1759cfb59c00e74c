package fsblob

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oneconcern/cryptfs/internal/testutil"
	"github.com/oneconcern/cryptfs/pkg/blobstore"
	"github.com/oneconcern/cryptfs/pkg/blockstore"
	"github.com/oneconcern/cryptfs/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func setupDir(t testing.TB) (blobstore.BlobStore, *DirBlob) {
	t.Helper()
	bs := testutil.MemoryBlobStore(t)
	b, err := bs.Create(context.Background())
	require.NoError(t, err)
	d, err := InitializeEmptyDir(context.Background(), b, blockstore.Key{})
	require.NoError(t, err)
	return bs, d
}

func reload(t testing.TB, bs blobstore.BlobStore, key blockstore.Key) *DirBlob {
	t.Helper()
	b, found, err := bs.Load(context.Background(), key)
	require.NoError(t, err)
	require.True(t, found)
	d, err := LoadDirBlob(context.Background(), b)
	require.NoError(t, err)
	return d
}

func TestEmptyDir(t *testing.T) {
	bs, d := setupDir(t)
	assert.Zero(t, d.NumChildren())
	assert.Empty(t, d.Children())

	loaded := reload(t, bs, d.Key())
	assert.Zero(t, loaded.NumChildren())
	assert.True(t, loaded.Parent().IsZero())

	_, found := loaded.GetChild("a")
	assert.False(t, found)
}

func TestAddChildren(t *testing.T) {
	bs, d := setupDir(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 123456789)

	entries := []Entry{
		{Name: "b-file", Type: EntryFile, Key: blockstore.NewRandomKey(), Mode: 0644, UID: 1000, GID: 100, LastModification: now},
		{Name: "a-dir", Type: EntryDir, Key: blockstore.NewRandomKey(), Mode: 0755, LastAccess: now, LastMetadataChange: now.Add(-time.Hour)},
		{Name: "c-link", Type: EntrySymlink, Key: blockstore.NewRandomKey(), Mode: 0777},
	}
	for _, e := range entries {
		require.NoError(t, d.AddChild(ctx, e))
	}

	err := d.AddChild(ctx, Entry{Name: "a-dir", Type: EntryFile, Key: blockstore.NewRandomKey()})
	assert.True(t, errors.Is(err, ErrExists))

	loaded := reload(t, bs, d.Key())
	require.Equal(t, 3, loaded.NumChildren())

	children := loaded.Children()
	assert.Equal(t, "a-dir", children[0].Name)
	assert.Equal(t, "b-file", children[1].Name)
	assert.Equal(t, "c-link", children[2].Name)

	got, found := loaded.GetChild("b-file")
	require.True(t, found)
	assert.Equal(t, entries[0].Key, got.Key)
	assert.Equal(t, EntryFile, got.Type)
	assert.EqualValues(t, 0644, got.Mode)
	assert.EqualValues(t, 1000, got.UID)
	assert.EqualValues(t, 100, got.GID)
	assert.True(t, now.Equal(got.LastModification))
	assert.True(t, got.LastAccess.IsZero())

	got, found = loaded.GetChild("a-dir")
	require.True(t, found)
	assert.True(t, now.Add(-time.Hour).Equal(got.LastMetadataChange))

	got, found = loaded.GetChildByKey(entries[2].Key)
	require.True(t, found)
	assert.Equal(t, "c-link", got.Name)

	_, found = loaded.GetChildByKey(blockstore.NewRandomKey())
	assert.False(t, found)
}

func TestInvalidNames(t *testing.T) {
	_, d := setupDir(t)
	ctx := context.Background()
	for _, name := range []string{"", ".", "..", "a/b", "nul\x00"} {
		err := d.AddChild(ctx, Entry{Name: name, Type: EntryFile, Key: blockstore.NewRandomKey()})
		assert.Truef(t, errors.Is(err, ErrInvalidName), "expected %q to be rejected", name)
	}
	assert.Zero(t, d.NumChildren())
}

func TestRemoveRenameUpdate(t *testing.T) {
	bs, d := setupDir(t)
	ctx := context.Background()

	key := blockstore.NewRandomKey()
	require.NoError(t, d.AddChild(ctx, Entry{Name: "old", Type: EntryFile, Key: key, Mode: 0600}))
	require.NoError(t, d.AddChild(ctx, Entry{Name: "other", Type: EntryFile, Key: blockstore.NewRandomKey()}))

	renamed, err := d.RenameChild(ctx, "old", "new")
	require.NoError(t, err)
	assert.True(t, renamed)

	renamed, err = d.RenameChild(ctx, "missing", "whatever")
	require.NoError(t, err)
	assert.False(t, renamed)

	_, err = d.RenameChild(ctx, "new", "other")
	assert.True(t, errors.Is(err, ErrExists))

	updated, err := d.UpdateChild(ctx, "new", func(e *Entry) {
		e.Mode = 0640
		e.Name = "sneaky"
	})
	require.NoError(t, err)
	assert.True(t, updated)

	loaded := reload(t, bs, d.Key())
	got, found := loaded.GetChild("new")
	require.True(t, found)
	assert.Equal(t, key, got.Key)
	assert.EqualValues(t, 0640, got.Mode)
	_, found = loaded.GetChild("old")
	assert.False(t, found)
	_, found = loaded.GetChild("sneaky")
	assert.False(t, found)

	removed, err := loaded.RemoveChild(ctx, "new")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = loaded.RemoveChild(ctx, "new")
	require.NoError(t, err)
	assert.False(t, removed)

	assert.Equal(t, 1, reload(t, bs, d.Key()).NumChildren())
}

func TestLargeDirectory(t *testing.T) {
	bs, d := setupDir(t)
	ctx := context.Background()

	// spans many blocks with the small test block size
	for i := 0; i < 100; i++ {
		require.NoError(t, d.AddChild(ctx, Entry{Name: fmt.Sprintf("entry-%03d", i), Type: EntryFile, Key: blockstore.NewRandomKey()}))
	}
	loaded := reload(t, bs, d.Key())
	assert.Equal(t, 100, loaded.NumChildren())

	for i := 0; i < 100; i += 2 {
		_, err := loaded.RemoveChild(ctx, fmt.Sprintf("entry-%03d", i))
		require.NoError(t, err)
	}
	loaded = reload(t, bs, d.Key())
	assert.Equal(t, 50, loaded.NumChildren())
	assert.Equal(t, "entry-001", loaded.Children()[0].Name)
}

func TestConcurrentLookups(t *testing.T) {
	defer goleak.VerifyNone(t)

	_, d := setupDir(t)
	ctx := context.Background()
	require.NoError(t, d.AddChild(ctx, Entry{Name: "stable", Type: EntryDir, Key: blockstore.NewRandomKey()}))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			assert.NoError(t, d.AddChild(ctx, Entry{Name: fmt.Sprintf("f%d", i), Type: EntryFile, Key: blockstore.NewRandomKey()}))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, found := d.GetChild("stable")
			assert.True(t, found)
		}
	}()
	wg.Wait()
	assert.Equal(t, 21, d.NumChildren())
}

func TestHandlesShareTable(t *testing.T) {
	bs, d := setupDir(t)
	ctx := context.Background()
	first := reload(t, bs, d.Key())
	second := reload(t, bs, d.Key())

	require.NoError(t, first.AddChild(ctx, Entry{Name: "a", Type: EntryDir, Key: blockstore.NewRandomKey()}))
	require.NoError(t, second.AddChild(ctx, Entry{Name: "b", Type: EntryDir, Key: blockstore.NewRandomKey()}))
	_, found := second.GetChild("a")
	assert.True(t, found, "a mutation picks up entries added through other handles")

	err := first.AddChild(ctx, Entry{Name: "b", Type: EntryFile, Key: blockstore.NewRandomKey()})
	assert.True(t, errors.Is(err, ErrExists))

	loaded := reload(t, bs, d.Key())
	assert.Equal(t, 2, loaded.NumChildren())

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		h := reload(t, bs, d.Key())
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				assert.NoError(t, h.AddChild(ctx, Entry{Name: fmt.Sprintf("w%d-%d", w, i), Type: EntryFile, Key: blockstore.NewRandomKey()}))
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 42, reload(t, bs, d.Key()).NumChildren())
}

func TestTypeMismatch(t *testing.T) {
	bs := testutil.MemoryBlobStore(t)
	ctx := context.Background()

	b, err := bs.Create(ctx)
	require.NoError(t, err)
	f, err := InitializeEmptyFile(ctx, b, blockstore.NewRandomKey())
	require.NoError(t, err)

	_, err = LoadDirBlob(ctx, b)
	assert.True(t, errors.Is(err, ErrNotADirectory))
	_, err = LoadSymlinkBlob(ctx, b)
	assert.True(t, errors.Is(err, ErrNotASymlink))

	typ, parent, err := TypeOf(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, TypeFile, typ)
	assert.Equal(t, f.Parent(), parent)

	d, err := bs.Create(ctx)
	require.NoError(t, err)
	_, err = InitializeEmptyDir(ctx, d, blockstore.Key{})
	require.NoError(t, err)
	_, err = LoadFileBlob(ctx, d)
	assert.True(t, errors.Is(err, ErrNotAFile))

	// a blob which was never initialized
	raw, err := bs.Create(ctx)
	require.NoError(t, err)
	_, err = LoadDirBlob(ctx, raw)
	assert.True(t, errors.Is(err, ErrCorruptBlob))
	_, _, err = TypeOf(ctx, raw)
	assert.True(t, errors.Is(err, ErrCorruptBlob))
}

func TestFileBlob(t *testing.T) {
	bs := testutil.MemoryBlobStore(t)
	ctx := context.Background()

	b, err := bs.Create(ctx)
	require.NoError(t, err)
	f, err := InitializeEmptyFile(ctx, b, blockstore.NewRandomKey())
	require.NoError(t, err)

	size, err := f.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)

	require.NoError(t, f.WriteAt(ctx, []byte("hello world"), 0))
	require.NoError(t, f.WriteAt(ctx, []byte("there"), 6))

	loaded, err := LoadFileBlob(ctx, b)
	require.NoError(t, err)
	content, err := loaded.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello there", string(content))

	p := make([]byte, 5)
	n, err := loaded.ReadAt(ctx, p, 6)
	require.NoError(t, err)
	assert.Equal(t, "there", string(p[:n]))

	require.NoError(t, loaded.Resize(ctx, 5))
	content, err = loaded.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
}

func TestSymlinkBlob(t *testing.T) {
	bs := testutil.MemoryBlobStore(t)
	ctx := context.Background()

	b, err := bs.Create(ctx)
	require.NoError(t, err)
	parent := blockstore.NewRandomKey()
	_, err = InitializeSymlink(ctx, b, parent, "../some/target")
	require.NoError(t, err)

	s, err := LoadSymlinkBlob(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "../some/target", s.Target())
	assert.Equal(t, parent, s.Parent())
	assert.Equal(t, b.Key(), s.Key())
}

func TestEntryTypes(t *testing.T) {
	assert.True(t, EntryDir.Valid())
	assert.True(t, EntryFile.Valid())
	assert.True(t, EntrySymlink.Valid())
	assert.False(t, EntryType(7).Valid())
	assert.Equal(t, "directory", EntryDir.String())
	assert.Equal(t, "unknown", EntryType(7).String())
}

func TestUnknownFieldsAreSkipped(t *testing.T) {
	e := Entry{Name: "x", Type: EntryType(9), Key: blockstore.NewRandomKey()}
	raw := append(e.marshal(), 0x52, 0x01, 0xff) // field 10, bytes, 1 byte
	got, err := unmarshalEntry(raw)
	require.NoError(t, err)
	assert.Equal(t, e.Name, got.Name)
	assert.Equal(t, e.Key, got.Key)
	assert.False(t, got.Type.Valid())

	_, err = unmarshalEntry([]byte{0x12, 0x05, 'a'})
	assert.Error(t, err)
}
