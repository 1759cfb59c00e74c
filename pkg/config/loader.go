package config

import (
	"time"

	"github.com/oneconcern/cryptfs/pkg/cipher"
	"github.com/oneconcern/cryptfs/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	// how long to wait for a configuration file another process is creating
	settleAttempts = 50
	settleDelay    = 10 * time.Millisecond
)

// Option for the configuration loader
type Option func(*Loader)

// Fs sets the file system holding configuration files. It defaults to the OS file system.
func Fs(fs afero.Fs) Option {
	return func(l *Loader) {
		if fs != nil {
			l.fs = fs
		}
	}
}

// Logger for the configuration loader
func Logger(zl *zap.Logger) Option {
	return func(l *Loader) {
		if zl != nil {
			l.l = zl
		}
	}
}

// Cipher sets the cipher used by new configurations
func Cipher(name string) Option {
	return func(l *Loader) {
		l.cipher = name
	}
}

// BlockSize sets the physical block size of new configurations, in bytes
func BlockSize(size uint64) Option {
	return func(l *Loader) {
		l.blockSize = size
	}
}

// KeyGenerator sets the source of randomness for strong encryption keys. It defaults to the OS random source.
func KeyGenerator(gen cipher.Generator) Option {
	return func(l *Loader) {
		if gen != nil {
			l.gen = gen
		}
	}
}

// Loader loads or creates configuration files
type Loader struct {
	fs        afero.Fs
	l         *zap.Logger
	cipher    string
	blockSize uint64
	gen       cipher.Generator
}

// NewLoader builds a configuration loader
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		fs:     afero.NewOsFs(),
		l:      zap.NewNop(),
		cipher: cipher.Default,
		gen:    cipher.OSRandom,
	}
	for _, apply := range opts {
		apply(l)
	}
	return l
}

// LoadOrCreate loads the configuration at filename, or creates it with a strong encryption key.
// An existing file is never rewritten.
func (l *Loader) LoadOrCreate(filename string) (*Config, error) {
	return l.loadOrCreate(filename, l.strongKey)
}

// LoadOrCreateWithWeakKey is like LoadOrCreate, but new keys come from a deterministic pseudo-random generator.
//
// Only use this for tests: weak keys offer no protection at all.
func (l *Loader) LoadOrCreateWithWeakKey(filename string) (*Config, error) {
	return l.loadOrCreate(filename, l.weakKey)
}

// LoadExisting loads the configuration at filename. A missing file is not an error.
// A file being created by another process is waited for.
func (l *Loader) LoadExisting(filename string) (*Config, bool, error) {
	return l.load(filename)
}

func (l *Loader) load(filename string) (*Config, bool, error) {
	for attempt := 1; ; attempt++ {
		c, found, err := Load(l.fs, filename)
		if !errors.Is(err, ErrConfigIncomplete) || attempt == settleAttempts {
			return c, found, err
		}
		time.Sleep(settleDelay)
	}
}

// CreateNew creates a configuration at filename, with a strong encryption key.
// It fails with ErrConfigExists if a file exists already.
func (l *Loader) CreateNew(filename string) (*Config, error) {
	return l.createNew(filename, l.strongKey)
}

// CreateNewWithWeakKey is like CreateNew, but the key comes from a deterministic pseudo-random generator.
func (l *Loader) CreateNewWithWeakKey(filename string) (*Config, error) {
	return l.createNew(filename, l.weakKey)
}

type keyFunc func(size int) (cipher.EncryptionKey, error)

func (l *Loader) strongKey(size int) (cipher.EncryptionKey, error) {
	return cipher.CreateKey(l.gen, size)
}

func (l *Loader) weakKey(size int) (cipher.EncryptionKey, error) {
	return cipher.CreatePseudoRandomKey(size), nil
}

func (l *Loader) loadOrCreate(filename string, newKey keyFunc) (*Config, error) {
	c, found, err := l.load(filename)
	if err != nil || found {
		return c, err
	}

	c, err = l.createNew(filename, newKey)
	if errors.Is(err, ErrConfigExists) {
		// lost a race with another creator
		c, found, err = l.load(filename)
		if err == nil && !found {
			err = ErrConfigExists.Wrapf("%s vanished while loading", filename)
		}
	}
	return c, err
}

func (l *Loader) createNew(filename string, newKey keyFunc) (*Config, error) {
	size, err := cipher.KeySize(l.cipher)
	if err != nil {
		return nil, err
	}
	key, err := newKey(size)
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	c := &Config{
		Version:        CurrentVersion,
		Cipher:         l.cipher,
		EncryptionKey:  key.String(),
		BlockSizeBytes: l.blockSize,
		fs:             l.fs,
		filename:       filename,
	}
	if err = c.create(); err != nil {
		return nil, err
	}
	l.l.Info("created configuration", zap.String("filename", filename), zap.String("cipher", l.cipher))
	return c, nil
}
