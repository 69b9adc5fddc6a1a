package upstream

import "strings"

// RotationSep separates a content id from its rotation suffix in a media key.
const RotationSep = "~"

// MediaKey derives the cache and fetch key for a content id. rotation is a
// cache-busting suffix for backends that rotate URLs (or object versions)
// for the same logical item; it is omitted when empty.
func MediaKey(contentID, rotation string) string {
	if rotation == "" {
		return contentID
	}
	return contentID + RotationSep + rotation
}

// SplitKey reverses MediaKey. Content ids may themselves contain the
// separator; only the last one is significant.
func SplitKey(key string) (contentID, rotation string) {
	i := strings.LastIndex(key, RotationSep)
	if i < 0 {
		return key, ""
	}
	return key[:i], key[i+len(RotationSep):]
}
