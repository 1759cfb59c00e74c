package internal

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"

	"go.uber.org/zap"
)

const mib = 1024 * 1024

func writeProfIfNExist(path string, name string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		var fprof *os.File
		fprof, err = os.Create(path)
		if err != nil {
			return err
		}
		defer fprof.Close()
		err = pprof.Lookup(name).WriteTo(fprof, 0)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteMemProfiles dumps the heap and allocs profiles of the process into dir,
// as <prefix>.mem.prof and <prefix>.alloc.prof. Profiles which already exist are left untouched.
func WriteMemProfiles(dir, prefix string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	mstats := new(runtime.MemStats)
	runtime.ReadMemStats(mstats)
	logger.Info("memory profile",
		zap.String("dir", dir),
		zap.Uint64("MiB for heap (un-GC)", mstats.Alloc/mib),
		zap.Uint64("MiB for heap (max ever)", mstats.HeapSys/mib),
		zap.Int("num go routines", runtime.NumGoroutine()),
	)

	basePath := filepath.Join(dir, prefix)
	if err := writeProfIfNExist(basePath+".mem.prof", "heap"); err != nil {
		return err
	}
	return writeProfIfNExist(basePath+".alloc.prof", "allocs")
}
