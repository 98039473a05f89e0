package yas

import (
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/michailvoronov/yet-another-storage/internal/device"
	"github.com/michailvoronov/yet-another-storage/internal/layout"
)

// Factory deduplicates open physical volumes by canonical path: two
// Open calls (or an Open racing a Create) for the same file return the
// same *PVManager rather than two independent handles racing on the
// underlying os.File. A mutex guards the map; singleflight additionally
// collapses concurrent callers racing on the same canonical path into
// one boot sequence.
type Factory struct {
	mu    sync.Mutex
	group singleflight.Group
	open  map[string]*PVManager[uint64]
}

// NewFactory returns an empty Factory. Most callers use the
// package-level DefaultFactory via Open/Create instead of managing
// their own.
func NewFactory() *Factory {
	return &Factory{open: make(map[string]*PVManager[uint64])}
}

// DefaultFactory is the process-wide Factory used by the package-level
// Open and Create functions.
var DefaultFactory = NewFactory()

// Open opens path through DefaultFactory.
func Open(path string) (*PVManager[uint64], error) { return DefaultFactory.Open(path) }

// Create creates path through DefaultFactory.
func Create(path string, priority, clusterSize int32) (*PVManager[uint64], error) {
	return DefaultFactory.Create(path, priority, clusterSize)
}

// Open returns the already-open PVManager for path if one exists,
// otherwise opens the file fresh. Concurrent Open calls for the same
// canonical path block on a single boot sequence and share its result.
func (f *Factory) Open(path string) (*PVManager[uint64], error) {
	key, err := canonicalPath(path)
	if err != nil {
		return nil, err
	}

	if pv, ok := f.lookup(key); ok {
		return pv, nil
	}

	v, err, _ := f.group.Do(key, func() (any, error) {
		if pv, ok := f.lookup(key); ok {
			return pv, nil
		}
		dev, err := device.OpenFileDevice(path)
		if err != nil {
			return nil, err
		}
		pv, err := openPV[uint64](dev, 0, layout.DefaultClusterSize)
		if err != nil {
			_ = dev.Close()
			return nil, err
		}
		f.register(key, pv)
		return pv, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*PVManager[uint64]), nil
}

// Create formats a brand-new PV at path and registers it the same way
// Open registers an existing one. Concurrent Create/Open calls for the
// same canonical path are serialized identically to Open.
func (f *Factory) Create(path string, priority, clusterSize int32) (*PVManager[uint64], error) {
	key, err := canonicalPath(path)
	if err != nil {
		return nil, err
	}
	if clusterSize <= 0 {
		clusterSize = layout.DefaultClusterSize
	}

	v, err, _ := f.group.Do(key, func() (any, error) {
		if pv, ok := f.lookup(key); ok {
			return pv, nil
		}
		dev, err := device.CreateFileDevice(path)
		if err != nil {
			return nil, err
		}
		pv, err := createPV[uint64](dev, priority, clusterSize)
		if err != nil {
			_ = dev.Close()
			return nil, err
		}
		f.register(key, pv)
		return pv, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*PVManager[uint64]), nil
}

func (f *Factory) lookup(key string) (*PVManager[uint64], bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pv, ok := f.open[key]
	return pv, ok
}

func (f *Factory) register(key string, pv *PVManager[uint64]) {
	f.mu.Lock()
	f.open[key] = pv
	f.mu.Unlock()

	pv.closeHook = func() {
		f.mu.Lock()
		delete(f.open, key)
		f.mu.Unlock()
	}
}

// canonicalPath resolves path to the form Factory keys its map by:
// symlinks resolved, cleaned, and lowercased on filesystems that are
// case-insensitive by default. EvalSymlinks requires path to already
// exist; Create callers pass a path that may not exist yet, so a
// failure here falls back to the cleaned (non-symlink-resolved) path
// rather than erroring the whole call.
func canonicalPath(path string) (string, error) {
	clean := filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(clean); err == nil {
		clean = resolved
	}
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		clean = strings.ToLower(clean)
	}
	return clean, nil
}
