// Package cache implements the byte cache that backs media reads.
//
// A Store maps string keys to immutable blobs and keeps their total size
// under a configured capacity by evicting the least recently used entries.
// The capacity is a soft target: entries that are pinned by an in-flight read
// are never evicted, even if that leaves the store over capacity until they
// are unpinned.
//
// # Memory Store
//
// MemoryStore keeps blobs on the heap. It is used when no cache directory is
// configured and in tests.
//
// # Disk Store
//
// DiskStore persists blobs under a directory it owns exclusively:
//   - Synchronous tmp-file + rename writes, optionally LZ4 or ZSTD compressed
//   - Rebuilds its index from disk on startup
//   - Degrades to an in-memory entry when a write fails or free space runs low;
//     the failure is logged and counted, never returned
//
// # Eviction Order
//
// Every Get and Put advances a logical clock. Eviction removes the entry with
// the lowest last-access tick first; ties are broken by insertion sequence.
package cache
