package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/mediapool/internal/fs"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrLowDiskSpace is wrapped by the CacheIOError logged when a write is
// skipped because the filesystem is below DiskConfig.MinFreeBytes.
var ErrLowDiskSpace = errors.New("insufficient free disk space")

const (
	blobSuffix = ".blob"
	tmpSuffix  = ".tmp"
)

// DiskConfig holds configuration for the disk store.
type DiskConfig struct {
	Config

	// Dir is the directory where entries are stored. The store owns it exclusively.
	Dir string
	// Compression selects the on-disk encoding of new entries.
	Compression Compression
	// MinFreeBytes keeps this much space free on the filesystem; writes that
	// would cross it are served from memory instead. 0 disables the probe.
	MinFreeBytes int64
	// MaxConcurrentWrites bounds parallel disk writes. Defaults to 16 if <= 0.
	MaxConcurrentWrites int64
	// FS overrides the filesystem implementation. Defaults to fs.Default.
	FS fs.FileSystem
	// OnDegradedWrite is called when an entry could not be written and is
	// kept in memory instead. Optional.
	OnDegradedWrite func(key string, err error)
}

// DiskStore implements Store backed by the local filesystem.
// It keeps the recency index in memory and the blobs on disk. Entries whose
// write failed are kept in memory and count against the same capacity.
type DiskStore struct {
	mu  sync.Mutex
	idx *index

	dir         string
	fs          fs.FileSystem
	compression Compression
	minFree     int64
	writeSem    *semaphore.Weighted
	writeSlots  int64
	fileSeq     atomic.Uint64

	onEvict    EvictFunc
	onDegraded func(key string, err error)
	log        *slog.Logger

	hits     atomic.Int64
	misses   atomic.Int64
	degraded atomic.Int64
}

// NewDiskStore creates a disk-backed store and rebuilds its index from any
// entries already present in cfg.Dir.
func NewDiskStore(cfg DiskConfig) (*DiskStore, error) {
	if cfg.CapacityBytes <= 0 {
		return nil, ErrInvalidCapacity
	}
	if cfg.Dir == "" {
		return nil, errors.New("cache directory must be set")
	}
	if cfg.FS == nil {
		cfg.FS = fs.Default
	}
	maxWrites := cfg.MaxConcurrentWrites
	if maxWrites <= 0 {
		maxWrites = 16
	}

	if err := cfg.FS.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, &CacheIOError{Op: "mkdir", Path: cfg.Dir, Err: err}
	}

	s := &DiskStore{
		idx:         newIndex(cfg.CapacityBytes),
		dir:         cfg.Dir,
		fs:          cfg.FS,
		compression: cfg.Compression,
		minFree:     cfg.MinFreeBytes,
		writeSem:    semaphore.NewWeighted(maxWrites),
		writeSlots:  maxWrites,
		onEvict:     cfg.OnEvict,
		onDegraded:  cfg.OnDegradedWrite,
		log:         cfg.logger(),
	}

	s.scanExistingFiles()

	return s, nil
}

type scannedFile struct {
	path    string
	key     string
	size    int64
	seq     uint64
	modTime time.Time
	ok      bool
}

// scanExistingFiles rebuilds the index from disk. Leftover temp files,
// foreign files and unreadable entries are removed.
func (s *DiskStore) scanExistingFiles() {
	var found []*scannedFile
	_ = s.fs.WalkDir(s.dir, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // keep scanning past unreadable directories
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, blobSuffix) {
			_ = s.fs.Remove(path)
			return nil
		}
		f := &scannedFile{path: path}
		if info, ierr := d.Info(); ierr == nil {
			f.modTime = info.ModTime()
		}
		found = append(found, f)
		return nil
	})

	g := new(errgroup.Group)
	g.SetLimit(8)
	for _, f := range found {
		g.Go(func() error {
			s.inspect(f)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(found, func(i, j int) bool {
		if !found[i].modTime.Equal(found[j].modTime) {
			return found[i].modTime.Before(found[j].modTime)
		}
		return found[i].seq < found[j].seq
	})

	var stale []string
	var maxSeq uint64
	for _, f := range found {
		if !f.ok {
			stale = append(stale, f.path)
			continue
		}
		maxSeq = max(maxSeq, f.seq)
		if old := s.idx.insert(&item{key: f.key, size: f.size, path: f.path}); old != nil {
			stale = append(stale, old.path)
		}
	}
	for _, it := range s.idx.evict() {
		stale = append(stale, it.path)
	}
	s.fileSeq.Store(maxSeq)

	for _, p := range stale {
		_ = s.fs.Remove(p)
	}
	if n := s.idx.lru.Len(); n > 0 {
		s.log.Info("cache index rebuilt", "entries", n, "bytes", s.idx.size, "removed", len(stale))
	}
}

func (s *DiskStore) inspect(f *scannedFile) {
	name := strings.TrimSuffix(filepath.Base(f.path), blobSuffix)
	hash, seqStr, found := strings.Cut(name, ".")
	if !found {
		return
	}
	seq, err := strconv.ParseUint(seqStr, 10, 64)
	if err != nil {
		return
	}
	file, err := s.fs.OpenFile(f.path, os.O_RDONLY, 0)
	if err != nil {
		return
	}
	defer func() { _ = file.Close() }()

	key, rawLen, err := readEntryHeader(file)
	if err != nil || hashKey(key) != hash {
		return
	}
	f.key = key
	f.size = int64(rawLen)
	f.seq = seq
	f.ok = true
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Get returns a cached blob.
func (s *DiskStore) Get(ctx context.Context, key string) ([]byte, bool) {
	_, b, ok := s.Lookup(ctx, key)
	return b, ok
}

// Lookup returns the first cached key of keys.
func (s *DiskStore) Lookup(ctx context.Context, keys ...string) (string, []byte, bool) {
	for _, key := range keys {
		if b, ok := s.Peek(ctx, key); ok {
			s.hits.Add(1)
			return key, b, true
		}
	}
	s.misses.Add(1)
	return "", nil, false
}

// Peek returns a cached blob without counting the lookup. An unreadable
// entry is dropped and reported as absent.
func (s *DiskStore) Peek(_ context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	it, ok := s.idx.get(key)
	var mem []byte
	var path string
	if ok {
		mem, path = it.mem, it.path
	}
	s.mu.Unlock()

	if !ok {
		return nil, false
	}
	if path == "" {
		return mem, true
	}

	raw, err := s.fs.ReadFile(path)
	if err == nil {
		var got string
		var data []byte
		got, data, err = decodeEntry(raw)
		if err == nil && got == key {
			return data, true
		}
		if err == nil {
			err = errCorruptEntry
		}
	}

	// The file vanished or is unreadable. Drop the entry if it still points
	// at the same file; a concurrent Put may already have replaced it.
	s.mu.Lock()
	if cur, ok := s.idx.peek(key); ok && cur.path == path {
		s.idx.remove(key)
	}
	s.mu.Unlock()
	_ = s.fs.Remove(path)

	s.log.Warn("cache read failed", "error", &CacheIOError{Op: "read", Key: key, Path: path, Err: err})
	return nil, false
}

// Put caches a blob. Disk failures degrade the entry to memory; Put never fails.
func (s *DiskStore) Put(ctx context.Context, key string, b []byte) {
	size := int64(len(b))

	s.mu.Lock()
	if size > s.idx.capacity && !s.idx.pinned(key) {
		old, _ := s.idx.remove(key)
		s.mu.Unlock()
		if old != nil && old.path != "" {
			_ = s.fs.Remove(old.path)
		}
		return
	}
	s.mu.Unlock()

	it := &item{key: key, size: size}
	path, err := s.persist(ctx, key, b)
	if err != nil {
		it.mem = b
		s.degraded.Add(1)
		s.log.Warn("cache write degraded to memory", "key", key, "bytes", size, "error", err)
		if s.onDegraded != nil {
			s.onDegraded(key, err)
		}
	} else {
		it.path = path
	}

	s.mu.Lock()
	replaced := s.idx.insert(it)
	victims := s.idx.evict()
	s.mu.Unlock()

	if replaced != nil && replaced.path != "" {
		_ = s.fs.Remove(replaced.path)
	}
	s.drop(victims)
}

func (s *DiskStore) persist(ctx context.Context, key string, b []byte) (string, error) {
	if err := s.writeSem.Acquire(ctx, 1); err != nil {
		return "", &CacheIOError{Op: "write", Key: key, Err: err}
	}
	defer s.writeSem.Release(1)

	raw, err := encodeEntry(key, b, s.compression)
	if err != nil {
		return "", &CacheIOError{Op: "encode", Key: key, Err: err}
	}

	if s.minFree > 0 {
		if free, ok := s.fs.FreeBytes(s.dir); ok && free < uint64(len(raw))+uint64(s.minFree) {
			return "", &CacheIOError{Op: "write", Key: key, Path: s.dir, Err: ErrLowDiskSpace}
		}
	}

	hash := hashKey(key)
	dir := filepath.Join(s.dir, hash[:2])
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", &CacheIOError{Op: "mkdir", Key: key, Path: dir, Err: err}
	}

	base := filepath.Join(dir, fmt.Sprintf("%s.%d", hash, s.fileSeq.Add(1)))
	tmp, final := base+tmpSuffix, base+blobSuffix

	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", &CacheIOError{Op: "create", Key: key, Path: tmp, Err: err}
	}
	if _, err := f.Write(raw); err != nil {
		_ = f.Close() // Intentionally ignore: cleanup path
		_ = s.fs.Remove(tmp)
		return "", &CacheIOError{Op: "write", Key: key, Path: tmp, Err: err}
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return "", &CacheIOError{Op: "close", Key: key, Path: tmp, Err: err}
	}
	if err := s.fs.Rename(tmp, final); err != nil {
		_ = s.fs.Remove(tmp)
		return "", &CacheIOError{Op: "rename", Key: key, Path: final, Err: err}
	}
	return final, nil
}

// Pin protects key from eviction.
func (s *DiskStore) Pin(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idx.pin(key)
}

// Unpin releases a pin and trims the store if it was held over capacity.
func (s *DiskStore) Unpin(key string) {
	s.mu.Lock()
	var victims []*item
	if s.idx.unpin(key) && s.idx.size > s.idx.capacity {
		victims = s.idx.evict()
	}
	s.mu.Unlock()

	s.drop(victims)
}

// Remove drops key unless it is pinned.
func (s *DiskStore) Remove(key string) bool {
	s.mu.Lock()
	if s.idx.pinned(key) {
		s.mu.Unlock()
		return false
	}
	it, ok := s.idx.remove(key)
	s.mu.Unlock()

	if ok && it.path != "" {
		_ = s.fs.Remove(it.path)
	}
	return ok
}

// Size returns the current logical size of the store in bytes.
func (s *DiskStore) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx.size
}

// Len returns the number of entries.
func (s *DiskStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx.lru.Len()
}

// Keys returns the cached keys from least to most recently used.
func (s *DiskStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx.oldestFirst()
}

func (s *DiskStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Hits:           s.hits.Load(),
		Misses:         s.misses.Load(),
		Evictions:      s.idx.evictions,
		EvictedBytes:   s.idx.evictedBytes,
		DegradedWrites: s.degraded.Load(),
		Size:           s.idx.size,
		Capacity:       s.idx.capacity,
		Entries:        s.idx.lru.Len(),
		Pinned:         len(s.idx.pins),
	}
}

// Close waits for in-flight writes to finish.
func (s *DiskStore) Close() error {
	if err := s.writeSem.Acquire(context.Background(), s.writeSlots); err != nil {
		return err
	}
	s.writeSem.Release(s.writeSlots)
	return nil
}

// drop deletes evicted files outside the lock. Pinned entries never reach here.
func (s *DiskStore) drop(victims []*item) {
	for _, it := range victims {
		if it.path != "" {
			if err := s.fs.Remove(it.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.log.Debug("cache evict remove failed", "key", it.key, "error", err)
			}
		}
		s.log.Debug("cache evict", "key", it.key, "bytes", it.size)
		if s.onEvict != nil {
			s.onEvict(it.key, it.size)
		}
	}
}
