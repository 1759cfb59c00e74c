package device

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"github.com/juju/mutex/v2"
)

const lockTimeout = time.Minute

// lockName derives the name of the machine-wide lock guarding a configuration file
func lockName(filename string) string {
	if abs, err := filepath.Abs(filename); err == nil {
		filename = abs
	}
	sum := sha256.Sum256([]byte(filename))
	return "cryptfs-" + hex.EncodeToString(sum[:12])
}

// lockConfig acquires the lock guarding a configuration file
func (o options) lockConfig(filename string) (mutex.Releaser, error) {
	return o.acquire(mutex.Spec{
		Name:    lockName(filename),
		Clock:   clock.WallClock,
		Delay:   o.lockDelay,
		Timeout: lockTimeout,
	})
}
