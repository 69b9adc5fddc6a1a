package pool

// Handle is an opaque decoder owned by the pool. Only the pool calls it.
type Handle interface {
	// Prepare feeds the prefetched bytes. An error fails the load.
	Prepare(data []byte) error
	Play()
	Pause()
	// Release frees the decoder. It is called exactly once.
	Release()
}

// Decoder creates handles for media keys.
type Decoder interface {
	Open(key string) Handle
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(key string) Handle

// Open calls f.
func (f DecoderFunc) Open(key string) Handle { return f(key) }

// NopDecoder creates handles that accept everything and do nothing.
type NopDecoder struct{}

// Open implements Decoder.
func (NopDecoder) Open(string) Handle { return nopHandle{} }

type nopHandle struct{}

func (nopHandle) Prepare([]byte) error { return nil }
func (nopHandle) Play()                {}
func (nopHandle) Pause()               {}
func (nopHandle) Release()             {}
