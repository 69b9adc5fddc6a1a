package window

// Catalog maps feed positions to media keys.
type Catalog interface {
	// MediaKey returns the key for index. ok is false for unknown positions.
	MediaKey(index int) (key string, ok bool)
}

// Keys is a Catalog backed by a slice.
type Keys []string

// MediaKey implements Catalog.
func (k Keys) MediaKey(index int) (string, bool) {
	if index < 0 || index >= len(k) || k[index] == "" {
		return "", false
	}
	return k[index], true
}
