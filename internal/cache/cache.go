// Package cache stores finished traces on disk, keyed by the program text
// and the settings that shaped the run.
package cache

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/minio/highwayhash"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/phobologic/pytutor/internal/model"
)

// ErrNotCached is returned by Get when no trace is stored under a key.
var ErrNotCached = errors.New("trace not cached")

// Bump when the payload layout or the trace format changes.
const schemaVersion uint16 = 1

var hashKey = []byte("pytutor trace cache key 01234567")

// Params are the run settings that change a trace.
type Params struct {
	MaxSteps  int
	StableIDs bool
	MaxDepth  int
}

// Key returns the cache key of source traced with p.
func Key(source string, p Params) (string, error) {
	h, err := highwayhash.New64(hashKey)
	if err != nil {
		return "", fmt.Errorf("cache key: %w", err)
	}
	var hdr [19]byte
	binary.LittleEndian.PutUint16(hdr[0:], schemaVersion)
	binary.LittleEndian.PutUint64(hdr[2:], uint64(p.MaxSteps))
	binary.LittleEndian.PutUint64(hdr[10:], uint64(p.MaxDepth))
	if p.StableIDs {
		hdr[18] = 1
	}
	_, _ = h.Write(hdr[:])
	_, _ = h.Write([]byte(source))
	return hex.EncodeToString(h.Sum(nil)), nil
}

type payload struct {
	Schema uint16      `msgpack:"schema"`
	Trace  model.Trace `msgpack:"trace"`
}

// Cache is a directory of msgpack encoded traces. A nil *Cache stores
// nothing. It is safe for concurrent use.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// Open returns a cache rooted at dir, creating it if needed.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) pathFor(key string) string {
	return filepath.Join(c.dir, key+".mp")
}

// Get returns the trace stored under key, or ErrNotCached.
func (c *Cache) Get(key string) (model.Trace, error) {
	if c == nil {
		return nil, ErrNotCached
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotCached
		}
		return nil, fmt.Errorf("reading cached trace: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := msgpack.NewDecoder(f)
	dec.UseLooseInterfaceDecoding(true)
	var p payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decoding cached trace: %w", err)
	}
	if p.Schema != schemaVersion {
		return nil, ErrNotCached
	}
	return p.Trace, nil
}

// Put stores trace under key, replacing any previous entry atomically.
func (c *Cache) Put(key string, trace model.Trace) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.CreateTemp(c.dir, "tmp-*")
	if err != nil {
		return fmt.Errorf("writing cached trace: %w", err)
	}
	defer func() { _ = os.Remove(f.Name()) }()

	if err := msgpack.NewEncoder(f).Encode(&payload{Schema: schemaVersion, Trace: trace}); err != nil {
		_ = f.Close()
		return fmt.Errorf("encoding cached trace: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing cached trace: %w", err)
	}
	return os.Rename(f.Name(), c.pathFor(key))
}
