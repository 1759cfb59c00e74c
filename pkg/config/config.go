// Package config manages the configuration file of a cryptfs filesystem.
//
// The configuration holds the encryption key and the key of the root directory blob.
// It is created once, with a fresh encryption key, and only mutated when the root
// directory is first created.
package config

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/oneconcern/cryptfs/pkg/blobstore/onblocks"
	"github.com/oneconcern/cryptfs/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

// CurrentVersion of the configuration format
const CurrentVersion = 1

var (
	// ErrConfigExists is returned when creating a configuration over an existing file
	ErrConfigExists = errors.New("configuration exists already")

	// ErrInvalidConfig is returned when a configuration file cannot be parsed
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConfigIncomplete is returned when a configuration file is empty: another process is creating it
	ErrConfigIncomplete = errors.New("configuration is being created")
)

// Config of a cryptfs filesystem
type Config struct {
	Version        int    `json:"version" yaml:"version"`
	Cipher         string `json:"cipher" yaml:"cipher"`
	EncryptionKey  string `json:"encryptionKey" yaml:"encryptionKey"`
	RootBlob       string `json:"rootBlob" yaml:"rootBlob"`
	BlockSizeBytes uint64 `json:"blockSizeBytes,omitempty" yaml:"blockSizeBytes,omitempty"`

	fs       afero.Fs
	filename string
}

// Filename is the location of the configuration file
func (c *Config) Filename() string {
	return c.filename
}

// BlockSize is the physical size of blocks
func (c *Config) BlockSize() uint64 {
	if c.BlockSizeBytes == 0 {
		return onblocks.DefaultBlockSize
	}
	return c.BlockSizeBytes
}

// HasRoot tells if the root directory has been created
func (c *Config) HasRoot() bool {
	return c.RootBlob != ""
}

// Load reads the configuration file at filename. A missing file is not an error.
// An empty file fails with ErrConfigIncomplete.
func Load(fs afero.Fs, filename string) (*Config, bool, error) {
	content, err := afero.ReadFile(fs, filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if len(content) == 0 {
		return nil, false, ErrConfigIncomplete.Wrapf("%s", filename)
	}
	c := &Config{fs: fs, filename: filename}
	if err = c.decode(content); err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func (c *Config) decode(content []byte) error {
	var fresh Config
	if err := yaml.UnmarshalStrict(content, &fresh); err != nil {
		return ErrInvalidConfig.Wrapf("%s: %v", c.filename, err)
	}
	if fresh.Version != CurrentVersion {
		return ErrInvalidConfig.Wrapf("%s: unsupported version %d", c.filename, fresh.Version)
	}
	if fresh.EncryptionKey == "" {
		return ErrInvalidConfig.Wrapf("%s: missing encryption key", c.filename)
	}
	fresh.fs, fresh.filename = c.fs, c.filename
	*c = fresh
	return nil
}

func (c *Config) encode() ([]byte, error) {
	return yaml.Marshal(c)
}

// Reload reads the configuration file again, discarding changes which have not been saved
func (c *Config) Reload() error {
	content, err := afero.ReadFile(c.fs, c.filename)
	if err != nil {
		return err
	}
	return c.decode(content)
}

// Save writes the configuration file. The file is replaced atomically.
func (c *Config) Save() error {
	content, err := c.encode()
	if err != nil {
		return err
	}
	dir := filepath.Dir(c.filename)
	if err = c.fs.MkdirAll(dir, 0700); err != nil {
		return err
	}

	tmp, err := c.stage(dir, content)
	if err != nil {
		return err
	}
	if err = c.fs.Rename(tmp, c.filename); err != nil {
		_ = c.fs.Remove(tmp)
		return err
	}
	return nil
}

// create writes a new configuration file, failing if one exists already.
//
// The content is staged in a temporary file. The name is then claimed with an exclusive create,
// and the staged file renamed over the claim: readers see either an empty file or the complete
// configuration. Nothing is left behind on failure.
func (c *Config) create() error {
	content, err := c.encode()
	if err != nil {
		return err
	}
	dir := filepath.Dir(c.filename)
	if err = c.fs.MkdirAll(dir, 0700); err != nil {
		return err
	}

	tmp, err := c.stage(dir, content)
	if err != nil {
		return err
	}
	claim, err := c.fs.OpenFile(c.filename, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		_ = c.fs.Remove(tmp)
		if os.IsExist(err) {
			return ErrConfigExists.Wrapf("%s", c.filename)
		}
		return err
	}
	_ = claim.Close()

	if err = c.fs.Rename(tmp, c.filename); err != nil {
		_ = c.fs.Remove(tmp)
		_ = c.fs.Remove(c.filename)
		return err
	}
	return nil
}

// stage writes content to a temporary file next to the configuration file
func (c *Config) stage(dir string, content []byte) (string, error) {
	tmp, err := afero.TempFile(c.fs, dir, "."+filepath.Base(c.filename)+"-")
	if err != nil {
		return "", err
	}
	_, err = tmp.Write(content)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = c.fs.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// Equal tells if two configurations hold the same settings
func (c *Config) Equal(other *Config) bool {
	if c == nil || other == nil {
		return c == other
	}
	left, err := c.encode()
	if err != nil {
		return false
	}
	right, err := other.encode()
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}
