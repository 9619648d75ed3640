package buffer

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Shared zstd encoder and decoder. Both are safe for concurrent use
// through EncodeAll/DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("buffer: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("buffer: zstd decoder initialization failed: " + err.Error())
	}
}

// compress returns data zstd-compressed.
func compress(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/4))
}

// decompress reverses compress and checks the restored length.
func decompress(data []byte, size int) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	if len(out) != size {
		return nil, fmt.Errorf("zstd decode: got %d bytes, want %d", len(out), size)
	}
	return out, nil
}
