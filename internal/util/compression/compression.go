// Package compression provides the codecs used to store document bodies.
package compression

// Compressor compresses and restores opaque byte payloads.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// ByName returns the compressor registered under name, falling back to zstd.
func ByName(name string) Compressor {
	switch name {
	case "gzip":
		return GzipCompressor{}
	case "none":
		return NoopCompressor{}
	default:
		return ZstdCompressor{}
	}
}

type NoopCompressor struct{}

func (NoopCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (NoopCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }
