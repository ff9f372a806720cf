// Package cache stores synthesized audio on disk, compressed with zstd.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const ext = ".pcm.zst"

// ErrMiss is returned by Get when the key is not cached.
var ErrMiss = errors.New("cache miss")

// Key derives a cache key from the parts that identify a synthesis
// request: engine, voice, rate, text and so on.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

type entry struct {
	size   int64
	access time.Time
}

// Disk is a size-bounded cache of audio blobs. Entries are evicted least
// recently used first once the directory grows past its capacity.
type Disk struct {
	dir      string
	capacity int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu      sync.Mutex
	entries map[string]*entry
	size    int64
	hits    int64
	misses  int64
}

// Stats reports cache usage.
type Stats struct {
	Entries int
	Size    int64
	Hits    int64
	Misses  int64
}

// Open opens or creates a cache in dir. A capacity of zero or less means
// the cache is never pruned.
func Open(dir string, capacity int64) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	d := &Disk{
		dir:      dir,
		capacity: capacity,
		encoder:  enc,
		decoder:  dec,
		entries:  make(map[string]*entry),
	}
	if err := d.scan(); err != nil {
		return nil, err
	}
	return d, nil
}

// scan rebuilds the index from the files already on disk.
func (d *Disk) scan() error {
	return filepath.WalkDir(d.dir, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if de.IsDir() || !strings.HasSuffix(de.Name(), ext) {
			return nil
		}
		info, err := de.Info()
		if err != nil {
			return nil
		}
		key := strings.TrimSuffix(de.Name(), ext)
		d.entries[key] = &entry{size: info.Size(), access: info.ModTime()}
		d.size += info.Size()
		return nil
	})
}

func (d *Disk) path(key string) string {
	shard := "00"
	if len(key) >= 2 {
		shard = key[:2]
	}
	return filepath.Join(d.dir, shard, key+ext)
}

// Get returns the decompressed blob stored under key.
func (d *Disk) Get(key string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[key]
	if !ok {
		d.misses++
		return nil, ErrMiss
	}

	p := d.path(key)
	raw, err := os.ReadFile(p)
	if err == nil {
		var data []byte
		data, err = d.decoder.DecodeAll(raw, nil)
		if err == nil {
			now := time.Now()
			e.access = now
			_ = os.Chtimes(p, now, now)
			d.hits++
			return data, nil
		}
	}

	// Missing or corrupt: forget it.
	d.remove(key, e)
	d.misses++
	return nil, ErrMiss
}

// Put stores data under key, evicting old entries as needed.
func (d *Disk) Put(key string, data []byte) error {
	compressed := d.encoder.EncodeAll(data, nil)

	d.mu.Lock()
	defer d.mu.Unlock()

	p := d.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if old, ok := d.entries[key]; ok {
		d.size -= old.size
	}
	size := int64(len(compressed))
	d.entries[key] = &entry{size: size, access: time.Now()}
	d.size += size

	d.evict(key)
	return nil
}

// evict drops least recently used entries, never the one named keep,
// until the cache fits its capacity.
func (d *Disk) evict(keep string) {
	if d.capacity <= 0 || d.size <= d.capacity {
		return
	}

	keys := make([]string, 0, len(d.entries))
	for k := range d.entries {
		if k != keep {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return d.entries[keys[i]].access.Before(d.entries[keys[j]].access)
	})

	for _, k := range keys {
		if d.size <= d.capacity {
			break
		}
		d.remove(k, d.entries[k])
	}
}

func (d *Disk) remove(key string, e *entry) {
	_ = os.Remove(d.path(key))
	delete(d.entries, key)
	d.size -= e.size
}

// Clear removes every cached entry.
func (d *Disk) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for k, e := range d.entries {
		if err := os.Remove(d.path(k)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		delete(d.entries, k)
		d.size -= e.size
	}
	return nil
}

// Stats returns a snapshot of cache usage.
func (d *Disk) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{Entries: len(d.entries), Size: d.size, Hits: d.hits, Misses: d.misses}
}

// Close releases the zstd coders.
func (d *Disk) Close() error {
	d.decoder.Close()
	return d.encoder.Close()
}
