// Package fs provides the filesystem abstraction used by the disk cache.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with write/sync/close capabilities
//   - [FileSystem]: directory-scoped operations (open, rename, remove, walk, free space)
//
// # Implementations
//
//   - [LocalFS]: production implementation using the os package
//   - [FaultyFS]: test utility that injects write, sync and rename failures
//     and can report an arbitrary amount of free space
//
// # Usage
//
// Production code uses fs.Default:
//
//	f, err := fs.Default.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
//
// Tests inject a [FaultyFS] to drive the cache into its degraded path:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".tmp", fs.Fault{FailAfterBytes: 0})
//
// Filesystem calls take no context.Context. Local I/O is not interruptible at
// the syscall level; remote I/O goes through the upstream package instead.
package fs
