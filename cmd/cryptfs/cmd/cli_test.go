package cmd

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

var rootLine = regexp.MustCompile(`^root: ([0-9a-f]{32})\n$`)

func TestInitIsIdempotent(t *testing.T) {
	cleanup := setupTests(t)
	defer cleanup()

	first := run(t, "create file system", false, "init")
	require.Regexp(t, rootLine, first)

	second := run(t, "mount existing file system", false, "init")
	assert.Equal(t, first, second)

	_, err := os.Stat(filepath.Join(testDir, "cryptfs.config"))
	require.NoError(t, err)
}

func TestMemoryProfiles(t *testing.T) {
	cleanup := setupTests(t)
	defer cleanup()

	profDir := filepath.Join(testDir, "prof")
	run(t, "list with profiling", false, "ls", "--mem-prof-dir", profDir)
	for _, name := range []string{"cryptfs-ls.mem.prof", "cryptfs-ls.alloc.prof"} {
		_, err := os.Stat(filepath.Join(profDir, name))
		require.NoError(t, err)
	}
}

func TestMetricsFile(t *testing.T) {
	cleanup := setupTests(t)
	defer cleanup()

	metricsFile := filepath.Join(testDir, "cryptfs.prom")
	run(t, "create directory", false, "mkdir", "/m")
	run(t, "list with metrics", false, "ls", "/m", "--metrics-file", metricsFile)

	content, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), `cryptfs_device_io_count{operation="resolve"}`)
	assert.Contains(t, string(content), "cryptfs_blockcache_cache_hits")
}

func TestFileOperations(t *testing.T) {
	cleanup := setupTests(t)
	defer cleanup()

	local := filepath.Join(testDir, "notes.txt")
	content := "some notes\nworth keeping\n"
	require.NoError(t, os.WriteFile(local, []byte(content), 0640))
	modified := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(local, modified, modified))

	docs := strings.TrimSpace(run(t, "create directory", false, "mkdir", "/docs"))
	assert.Len(t, docs, 32)
	run(t, "create nested directory", false, "mkdir", "/docs/archive")
	notes := strings.TrimSpace(run(t, "copy file", false, "put", local, "/docs/notes.txt"))
	run(t, "create symlink", false, "ln", "notes.txt", "/docs/latest")

	assert.Equal(t, content, run(t, "print file", false, "cat", "/docs/notes.txt"))

	listing := run(t, "list root", false, "ls")
	assert.Equal(t, "docs/\n", listing)

	listing = run(t, "list directory", false, "ls", "/docs", "-l")
	lines := strings.Split(strings.TrimSpace(listing), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "archive/")
	assert.Contains(t, lines[0], "drwxr-xr-x")
	assert.Contains(t, lines[1], "latest")
	assert.Contains(t, lines[1], "Lrwxrwxrwx")
	assert.Contains(t, lines[2], "notes.txt")
	assert.Contains(t, lines[2], "-rw-r-----")
	assert.Contains(t, lines[2], "2020-01-02T03:04:05Z")

	var s statOutput
	require.NoError(t, jsoniter.UnmarshalFromString(run(t, "stat file", false, "stat", "/docs/notes.txt", "--json"), &s))
	assert.Equal(t, "/docs/notes.txt", s.Path)
	assert.Equal(t, "file", s.Kind)
	assert.Equal(t, notes, s.Key)
	assert.Equal(t, docs, s.Parent)
	require.NotNil(t, s.Size)
	assert.EqualValues(t, len(content), *s.Size)
	require.NotNil(t, s.Modified)
	assert.True(t, modified.Equal(*s.Modified))

	s = statOutput{}
	require.NoError(t, jsoniter.UnmarshalFromString(run(t, "stat symlink", false, "stat", "/docs/latest", "--json"), &s))
	assert.Equal(t, "symlink", s.Kind)
	assert.Equal(t, "notes.txt", s.Target)

	s = statOutput{}
	require.NoError(t, jsoniter.UnmarshalFromString(run(t, "stat root", false, "stat", "/", "--json"), &s))
	assert.Equal(t, "root", s.Kind)
	assert.Empty(t, s.Parent)
	require.NotNil(t, s.Entries)
	assert.Equal(t, 1, *s.Entries)

	text := run(t, "stat directory", false, "stat", "/docs")
	assert.Contains(t, text, "kind:")
	assert.Contains(t, text, "directory")
	assert.Contains(t, text, docs)
}

func TestCommandErrors(t *testing.T) {
	cleanup := setupTests(t)
	defer cleanup()

	local := filepath.Join(testDir, "local")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0600))

	run(t, "create directory", false, "mkdir", "/a")
	run(t, "directory exists", true, "mkdir", "/a")
	run(t, "parent is missing", true, "mkdir", "/missing/b")
	run(t, "relative path", true, "mkdir", "a/b")
	run(t, "copy file", false, "put", local, "/a/f")
	run(t, "file exists", true, "put", local, "/a/f")
	run(t, "local file is missing", true, "put", filepath.Join(testDir, "nope"), "/a/g")
	run(t, "not a file", true, "cat", "/a")
	run(t, "not a directory", true, "ls", "/a/f")
	run(t, "descend into a file", true, "stat", "/a/f/g")

	run(t, "missing path", true, "stat", "/nope")
	assert.Equal(t, int(unix.ENOENT), exitMocks.lastStatus())
	run(t, "missing file", true, "cat", "/a/nope")
	assert.Equal(t, int(unix.ENOENT), exitMocks.lastStatus())

	run(t, "statfs", true, "statfs")
	assert.Equal(t, int(unix.ENOTSUP), exitMocks.lastStatus())

	runCmd(t, append([]string{"init", "--loglevel", "verbose"}, defaultArgs()[:4]...), "bad log level", true)
	runCmd(t, append([]string{"init", "--cache-size", "lots"}, defaultArgs()...), "bad cache size", true)
	runCmd(t, append([]string{"init", "--backend", "floppy"}, defaultArgs()...), "bad backend", true)
}

func TestBadgerBackend(t *testing.T) {
	cleanup := setupTests(t)
	defer cleanup()

	args := []string{
		"--config", filepath.Join(testDir, "cryptfs.config"),
		"--backend", "badger",
		"--blocks", filepath.Join(testDir, "badger"),
		"--loglevel", "none",
		"--trace",
	}
	root := runCmd(t, append([]string{"init"}, args...), "create file system", false)
	require.Regexp(t, rootLine, root)

	runCmd(t, append([]string{"mkdir", "/dir"}, args...), "create directory", false)
	assert.Equal(t, "dir/\n", runCmd(t, append([]string{"ls", "/"}, args...), "list root", false))
	assert.Equal(t, root, runCmd(t, append([]string{"init"}, args...), "mount again", false))
}

func TestSettingsFile(t *testing.T) {
	cleanup := setupTests(t)
	defer cleanup()

	settingsFile := filepath.Join(testDir, "settings.yaml")
	settings := "config: " + filepath.Join(testDir, "from-settings.config") + "\n" +
		"blocks: " + filepath.Join(testDir, "from-settings") + "\n" +
		"loglevel: none\n" +
		"cachesize: 1MiB\n"
	require.NoError(t, os.WriteFile(settingsFile, []byte(settings), 0600))
	t.Setenv("CRYPTFS_SETTINGS", settingsFile)

	require.Regexp(t, rootLine, runCmd(t, []string{"init"}, "create from settings", false))
	_, err := os.Stat(filepath.Join(testDir, "from-settings.config"))
	require.NoError(t, err)

	// flags win over settings
	runCmd(t, append([]string{"init"}, defaultArgs()...), "create from flags", false)
	_, err = os.Stat(filepath.Join(testDir, "cryptfs.config"))
	require.NoError(t, err)
}
