// Package hash provides the checksum used to detect corrupt cache entries.
//
// # CRC32-Castagnoli (CRC32C)
//
// Every disk cache entry ends with a CRC32C of its header, key and payload.
// CRC32C is hardware accelerated on amd64 (SSE4.2) and arm64, so verifying
// an entry on read costs far less than fetching it again.
package hash
