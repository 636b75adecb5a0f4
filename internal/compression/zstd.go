// Package compression wraps zstd for text payloads written by the default
// codec. Compressed and plain payloads can live side by side: Decompress
// passes through anything that does not start with the zstd frame magic.
package compression

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// MinSize is the smallest payload worth compressing.
const MinSize = 128

var magic = []byte{0x28, 0xb5, 0x2f, 0xfd}

type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	enabled bool
}

// NewCompressor returns a Compressor for level 1 (fastest) to 3 (best).
// Any other level selects the zstd default. A disabled compressor still
// decompresses, so entries written with compression stay readable.
func NewCompressor(level int, enabled bool) (*Compressor, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	c := &Compressor{decoder: decoder, enabled: enabled}
	if !enabled {
		return c, nil
	}

	var encoderLevel zstd.EncoderLevel
	switch level {
	case 1:
		encoderLevel = zstd.SpeedFastest
	case 3:
		encoderLevel = zstd.SpeedBetterCompression
	default:
		encoderLevel = zstd.SpeedDefault
	}

	c.encoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(encoderLevel),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		decoder.Close()
		return nil, err
	}
	return c, nil
}

// Compress returns data compressed, or unchanged when compression is off,
// data is small, or compression does not shrink it.
func (c *Compressor) Compress(data []byte) []byte {
	if !c.enabled || len(data) < MinSize {
		return data
	}
	compressed := c.encoder.EncodeAll(data, make([]byte, 0, len(data)))
	if len(compressed) >= len(data) {
		return data
	}
	return compressed
}

// Decompress reverses Compress.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	if !IsCompressed(data) {
		return data, nil
	}
	out, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return out, nil
}

// IsCompressed reports whether data starts a zstd frame.
func IsCompressed(data []byte) bool {
	return bytes.HasPrefix(data, magic)
}

func (c *Compressor) Close() error {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
	return nil
}
